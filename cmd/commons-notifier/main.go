package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/openforge/commons/internal/config"
	"github.com/openforge/commons/internal/notifier"
	"github.com/openforge/commons/pkg/kafka"
	"github.com/openforge/commons/pkg/notifications"
	"github.com/openforge/commons/pkg/notifications/backends"
)

func main() {
	configFile := flag.String("config", config.DefaultConfigFile, "Path to HCL configuration file")
	flag.Parse()

	log := hclog.New(&hclog.LoggerOptions{Name: "commons-notifier"})

	cfg, err := config.Load(afero.NewOsFs(), *configFile)
	if err != nil {
		log.Error("failed to load configuration", "path", *configFile, "error", err)
		os.Exit(1)
	}
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	registry, err := backends.NewRegistry(cfg.Backends, log)
	if err != nil {
		log.Error("failed to initialize backend registry", "error", err)
		os.Exit(1)
	}

	brokers := kafka.GetBrokers(cfg)
	dlq, err := notifications.NewDLQPublisher(notifications.DLQPublisherConfig{
		Brokers: brokers,
		Topic:   kafka.GetDLQTopic(cfg),
	})
	if err != nil {
		log.Error("failed to create DLQ publisher", "error", err)
		os.Exit(1)
	}
	defer dlq.Close()

	worker, err := notifier.New(notifier.Config{
		Registry:        registry,
		DLQ:             dlq,
		ShutdownTimeout: config.Duration(cfg.Pipeline.ShutdownTimeout),
		Logger:          log,
	})
	if err != nil {
		log.Error("failed to create notification worker", "error", err)
		os.Exit(1)
	}

	group := kafka.GetConsumerGroup(cfg)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(kafka.GetNotificationsTopic(cfg)),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		log.Error("failed to create consumer", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("consuming notifications", "group", group, "brokers", brokers)
	worker.Run(ctx, client)
	log.Info("shutting down notification worker")
}

package backends

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/forPelevin/gomoji"

	"github.com/openforge/commons/pkg/notifications"
)

// NtfyBackend sends push notifications via ntfy.sh
type NtfyBackend struct {
	serverURL    string
	topic        string
	clickBaseURL string
	client       *http.Client
}

// NtfyBackendConfig holds configuration for the ntfy backend
type NtfyBackendConfig struct {
	// ServerURL is the ntfy server URL (e.g., "https://ntfy.sh")
	ServerURL string

	// Topic is the ntfy topic to send notifications to
	Topic string

	// ClickBaseURL is prefixed to relative redirect paths for the Click
	// header (e.g., "https://commons.example.com").
	ClickBaseURL string

	// Timeout for HTTP requests (optional, defaults to 10s)
	Timeout time.Duration
}

// NewNtfyBackend creates a new ntfy backend
func NewNtfyBackend(cfg NtfyBackendConfig) *NtfyBackend {
	if cfg.ServerURL == "" {
		cfg.ServerURL = "https://ntfy.sh"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &NtfyBackend{
		serverURL:    strings.TrimRight(cfg.ServerURL, "/"),
		topic:        cfg.Topic,
		clickBaseURL: strings.TrimRight(cfg.ClickBaseURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the backend identifier
func (b *NtfyBackend) Name() string {
	return "ntfy"
}

// SupportsBackend checks if this backend should process the message
func (b *NtfyBackend) SupportsBackend(backend string) bool {
	return backend == "ntfy"
}

// Handle processes a notification message
func (b *NtfyBackend) Handle(ctx context.Context, msg *notifications.NotificationMessage) error {
	messageBody := msg.Body
	if messageBody == "" {
		messageBody = fmt.Sprintf("Notification: %d", msg.Type)
	}

	url := fmt.Sprintf("%s/%s", b.serverURL, b.topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(messageBody))
	if err != nil {
		return NewBackendError("ntfy", "build", false, err)
	}

	// Header values are sent without emoji.
	if msg.Subject != "" {
		req.Header.Set("Title", headerSafe(msg.Subject))
	}
	req.Header.Set("Priority", ntfyPriority(msg.Priority))
	if msg.TypeName != "" {
		req.Header.Set("Tags", msg.TypeName)
	}
	if click := b.clickURL(msg.URL); click != "" {
		req.Header.Set("Click", click)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		// Network errors are retryable
		return NewBackendError("ntfy", "send", true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := isRetryableHTTPStatus(resp.StatusCode)
		return NewBackendError("ntfy", "send", retryable,
			fmt.Errorf("ntfy request failed with status %d", resp.StatusCode))
	}

	return nil
}

func (b *NtfyBackend) clickURL(path string) string {
	switch {
	case path == "":
		return ""
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return path
	case b.clickBaseURL == "":
		return ""
	}
	return b.clickBaseURL + path
}

// ntfyPriority maps to ntfy's 1 (min) to 5 (max) scale.
func ntfyPriority(p notifications.Priority) string {
	switch p {
	case notifications.PriorityLow:
		return "2"
	case notifications.PriorityHigh:
		return "4"
	case notifications.PriorityUrgent:
		return "5"
	}
	return "3"
}

func headerSafe(s string) string {
	return strings.TrimSpace(gomoji.RemoveEmojis(s))
}

// isRetryableHTTPStatus determines if an HTTP status code represents a retryable error
func isRetryableHTTPStatus(status int) bool {
	// Retryable: 5xx (server errors), 429 (rate limit), 408 (timeout)
	switch {
	case status >= 500:
		return true
	case status == http.StatusTooManyRequests:
		return true
	case status == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

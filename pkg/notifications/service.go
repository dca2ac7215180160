package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/openforge/commons/pkg/models"
)

// ServiceConfig holds configuration for the notification service.
type ServiceConfig struct {
	DB        *gorm.DB
	Projector *Projector
	Logger    hclog.Logger
}

// Service is the notification read/write surface for one user at a time.
// Every write is scoped to the owning user; ids owned by anyone else are
// ignored.
type Service struct {
	db        *gorm.DB
	projector *Projector
	logger    hclog.Logger
}

// NewService creates a notification service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Projector == nil {
		cfg.Projector = NewProjector(ProjectorConfig{
			Identities: NewDBIdentities(cfg.DB),
			Logger:     cfg.Logger,
		})
	}

	return &Service{
		db:        cfg.DB,
		projector: cfg.Projector,
		logger:    cfg.Logger.Named("notifications"),
	}, nil
}

// List returns a page of userID's notifications, newest first. Limit
// defaults to 20 and is capped at 100.
func (s *Service) List(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]ClientNotification, error) {
	rows, err := models.ListNotifications(s.db.WithContext(ctx), userID, models.NotificationQuery{
		UnreadOnly: unreadOnly,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	return s.projector.ProjectAll(ctx, rows), nil
}

// MarkRead marks ids read and returns how many rows changed.
func (s *Service) MarkRead(ctx context.Context, userID uint, ids []uint) (int64, error) {
	n, err := models.MarkNotificationsRead(s.db.WithContext(ctx), userID, ids)
	if err != nil {
		return 0, fmt.Errorf("error marking notifications read: %w", err)
	}
	s.logger.Debug("marked notifications read", "user_id", userID, "requested", len(ids), "changed", n)
	return n, nil
}

// MarkAllRead marks every unread notification of userID read.
func (s *Service) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	n, err := models.MarkAllNotificationsRead(s.db.WithContext(ctx), userID)
	if err != nil {
		return 0, fmt.Errorf("error marking all notifications read: %w", err)
	}
	return n, nil
}

// Delete removes ids and returns how many rows were deleted.
func (s *Service) Delete(ctx context.Context, userID uint, ids []uint) (int64, error) {
	n, err := models.DeleteNotifications(s.db.WithContext(ctx), userID, ids)
	if err != nil {
		return 0, fmt.Errorf("error deleting notifications: %w", err)
	}
	s.logger.Debug("deleted notifications", "user_id", userID, "requested", len(ids), "deleted", n)
	return n, nil
}

// UnreadCount returns the number of unread notifications of userID.
func (s *Service) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	n, err := models.CountUnreadNotifications(s.db.WithContext(ctx), userID)
	if err != nil {
		return 0, fmt.Errorf("error counting unread notifications: %w", err)
	}
	return n, nil
}

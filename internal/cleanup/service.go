// Package cleanup periodically removes spent one-time link tokens and old
// read notifications.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/factorhub/marketplace/internal/store"
)

// Default values for cleanup settings.
const (
	DefaultTokenRetention        = 30 * 24 * time.Hour
	DefaultNotificationRetention = 90 * 24 * time.Hour
	DefaultInterval              = time.Hour
)

// Settings holds cleanup configuration.
type Settings struct {
	// TokenRetention is how long a token is kept after it expired or was
	// consumed. Until then, following it again reports why it no longer works.
	TokenRetention        time.Duration `json:"token_retention"`
	NotificationRetention time.Duration `json:"notification_retention"`
	Interval              time.Duration `json:"interval"`
}

// DefaultSettings returns the built-in retention periods.
func DefaultSettings() Settings {
	return Settings{
		TokenRetention:        DefaultTokenRetention,
		NotificationRetention: DefaultNotificationRetention,
		Interval:              DefaultInterval,
	}
}

// Validate validates that all cleanup settings have positive values.
func (s *Settings) Validate() error {
	if s.TokenRetention <= 0 {
		return fmt.Errorf("token_retention must be positive, got %v", s.TokenRetention)
	}
	if s.NotificationRetention <= 0 {
		return fmt.Errorf("notification_retention must be positive, got %v", s.NotificationRetention)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", s.Interval)
	}
	return nil
}

// CleanupResult holds the result of one sweep.
type CleanupResult struct {
	TokensRemoved        int64         `json:"tokens_removed"`
	NotificationsRemoved int64         `json:"notifications_removed"`
	Errors               []string      `json:"errors,omitempty"`
	Duration             time.Duration `json:"duration"`
}

// Service runs the sweeps.
type Service struct {
	store    store.Store
	settings Settings
	logger   *slog.Logger
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates a new cleanup service.
func NewService(st store.Store, settings Settings, logger *slog.Logger) (*Service, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		settings: settings,
		logger:   logger.With("component", "cleanup"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}, nil
}

// SetClock replaces the clock used to compute cutoffs.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Run performs one sweep. A failing step is recorded in the result and does
// not stop the other.
func (s *Service) Run(ctx context.Context) *CleanupResult {
	start := time.Now()
	now := s.now()
	result := &CleanupResult{}

	n, err := s.store.Tokens().DeleteStale(ctx, now.Add(-s.settings.TokenRetention))
	if err != nil {
		s.logger.Error("failed to remove stale tokens", "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("tokens: %v", err))
	}
	result.TokensRemoved = n

	n, err = s.store.Notifications().DeleteReadBefore(ctx, now.Add(-s.settings.NotificationRetention))
	if err != nil {
		s.logger.Error("failed to remove read notifications", "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("notifications: %v", err))
	}
	result.NotificationsRemoved = n

	result.Duration = time.Since(start)
	s.logger.Info("cleanup completed",
		"tokens_removed", result.TokensRemoved,
		"notifications_removed", result.NotificationsRemoved,
		"errors", len(result.Errors),
		"duration", result.Duration,
	)
	return result
}

// Start runs a sweep immediately and then once per interval until Stop.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.settings.Interval)
		defer ticker.Stop()
		for {
			s.Run(ctx)
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the loop and waits for a running sweep to finish.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

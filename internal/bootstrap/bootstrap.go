// Package bootstrap assembles the store, queue and optional Redis client
// shared by the marketplace binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/factorhub/marketplace/internal/cache/redis"
	"github.com/factorhub/marketplace/internal/cleanup"
	"github.com/factorhub/marketplace/internal/notify"
	"github.com/factorhub/marketplace/internal/queue"
	memqueue "github.com/factorhub/marketplace/internal/queue/memory"
	pgqueue "github.com/factorhub/marketplace/internal/queue/postgres"
	"github.com/factorhub/marketplace/internal/store"
	memstore "github.com/factorhub/marketplace/internal/store/memory"
	pgstore "github.com/factorhub/marketplace/internal/store/postgres"
	"github.com/factorhub/marketplace/pkg/config"
)

// Backends holds the connections a binary needs.
type Backends struct {
	Store store.Store
	Queue queue.Queue
	// Redis is nil when REDIS_ADDR is not set.
	Redis *redis.Client
	// InProcess is true when the store and queue live in this process only,
	// so events must be dispatched here as well.
	InProcess bool

	closers []func() error
}

// Open connects to the configured store driver and, if configured, Redis.
// Postgres schemas are migrated on open.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		b.Store = memstore.New()
		b.Queue = memqueue.New(cfg.Dispatch.MaxAttempts)
		b.InProcess = true
	default:
		st, err := pgstore.NewPostgresStore(pgstore.DefaultConfig(cfg.DatabaseURL), logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		b.closers = append(b.closers, st.Close)
		if err := st.Migrate(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		b.Store = st
		q := pgqueue.NewPostgresQueue(st.DB(), cfg.Dispatch.MaxAttempts, logger)
		q.SetVisibilityTimeout(cfg.Dispatch.VisibilityTimeout)
		b.Queue = q
	}

	if cfg.Redis.Addr != "" {
		client, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Redis = client
		b.closers = append(b.closers, client.Close)
	}

	return b, nil
}

// Close releases every connection opened by Open, in reverse order.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
	b.closers = nil
}

// Locker returns the Redis lock manager when Redis is configured, and nil
// otherwise so the dispatcher falls back to process-local locks.
func (b *Backends) Locker() notify.Locker {
	if b.Redis == nil {
		return nil
	}
	return redis.NewLockManager(b.Redis)
}

// Senders builds the notification channels from configuration. Without SMTP
// or a webhook, messages are only logged.
func Senders(cfg *config.Config, logger *slog.Logger) []notify.Sender {
	var senders []notify.Sender
	if cfg.SMTP.Host != "" {
		senders = append(senders, notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}))
	}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	if len(senders) == 0 {
		senders = append(senders, notify.NewLogSender(logger))
	}
	return senders
}

// NewDispatcher wires a notification dispatcher onto the backends.
func NewDispatcher(cfg *config.Config, b *Backends, logger *slog.Logger) *notify.Dispatcher {
	notifier := notify.NewNotifier(Senders(cfg, logger), cfg.Notify.Events, logger)
	return notify.NewDispatcher(notify.DispatcherConfig{
		Concurrency:  cfg.Dispatch.Concurrency,
		PollInterval: cfg.Dispatch.PollInterval,
		BaseURL:      cfg.PublicBaseURL,
		LinkSecret:   cfg.LinkSecret(),
	}, b.Store, b.Queue, notifier, b.Locker(), logger)
}

// NewCleanup creates the retention sweeper for spent tokens and read
// notifications.
func NewCleanup(cfg *config.Config, b *Backends, logger *slog.Logger) (*cleanup.Service, error) {
	return cleanup.NewService(b.Store, cleanup.Settings{
		TokenRetention:        cfg.Cleanup.TokenRetention,
		NotificationRetention: cfg.Cleanup.NotificationRetention,
		Interval:              cfg.Cleanup.Interval,
	}, logger)
}

// Package marketplace orchestrates the asset and bid lifecycles: it checks who
// may act, evaluates guards inside a transaction that holds the asset lock,
// persists the transition and emits events once the transaction commits.
package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/queue"
	"github.com/factorhub/marketplace/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultTokenTTL is how long fee-approval and validation links stay valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Config holds the tunable windows of the marketplace.
type Config struct {
	PaymentWindow time.Duration
	TokenTTL      time.Duration
	// LinkSecret keys the one-time links. The dispatcher must use the same value.
	LinkSecret []byte
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   models.Role
}

// Service implements the marketplace operations.
type Service struct {
	store    store.Store
	events   queue.Publisher
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	links    *models.LinkSigner

	paymentWindow time.Duration
	tokenTTL      time.Duration
}

// NewService creates a marketplace service. Events are published to events
// after each successful transition.
func NewService(st store.Store, events queue.Publisher, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = models.DefaultPaymentWindow
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Service{
		store:         st,
		events:        events,
		logger:        logger.With("component", "marketplace"),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		links:         models.NewLinkSigner(cfg.LinkSecret),
		paymentWindow: cfg.PaymentWindow,
		tokenTTL:      cfg.TokenTTL,
	}
}

// SetClock replaces the service clock. Tests use it to move through deadlines.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// PaymentWindow returns the configured payment window.
func (s *Service) PaymentWindow() time.Duration {
	return s.paymentWindow
}

// outbox collects the events of one transaction so they can be published
// after it commits.
type outbox struct {
	events []*models.Event
}

func (o *outbox) add(kind models.EventKind, actorID, assetID, bidID, tokenID string, at time.Time) {
	o.events = append(o.events, &models.Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		AssetID:   assetID,
		BidID:     bidID,
		ActorID:   actorID,
		TokenID:   tokenID,
		CreatedAt: at,
	})
}

// inAssetTx runs fn in a transaction after locking the asset row. Every
// mutation goes through here, so transitions on one asset are serialized.
func (s *Service) inAssetTx(ctx context.Context, assetID string, fn func(tx store.Store, asset *models.Asset, out *outbox) error) error {
	out := &outbox{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		asset, err := tx.Assets().GetForUpdate(ctx, assetID)
		if err != nil {
			return translate(err)
		}
		return fn(tx, asset, out)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, out.events)
	return nil
}

// publish hands committed events to the queue. A failure here never fails
// the operation: the transition is already durable.
func (s *Service) publish(ctx context.Context, events []*models.Event) {
	if s.events == nil {
		return
	}
	for _, ev := range events {
		if err := s.events.Enqueue(ctx, ev); err != nil {
			s.logger.Error("failed to publish event",
				"event_id", ev.ID,
				"kind", ev.Kind,
				"asset_id", ev.AssetID,
				"bid_id", ev.BidID,
				"error", err,
			)
		}
	}
}

// issueToken stores a new one-time token and returns its ID. The raw link
// value is derived from the ID by the link signer and never stored.
func (s *Service) issueToken(ctx context.Context, tx store.Store, purpose models.TokenPurpose, assetID, bidID, email string, expiresAt time.Time) (string, error) {
	id := uuid.New().String()
	tok := &models.ActionToken{
		ID:        id,
		TokenHash: models.HashToken(s.links.Raw(id)),
		Purpose:   purpose,
		AssetID:   assetID,
		BidID:     bidID,
		Email:     email,
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
	}
	if err := tx.Tokens().Create(ctx, tok); err != nil {
		return "", fmt.Errorf("storing %s token: %w", purpose, err)
	}
	return id, nil
}

// checkInput runs struct-tag validation and converts failures to a ValidationError.
func (s *Service) checkInput(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "gtfield":
		return "must be after " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

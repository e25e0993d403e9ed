package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/queue"
	"github.com/factorhub/marketplace/internal/store"
)

// DispatcherConfig holds configuration for the notification dispatcher.
type DispatcherConfig struct {
	Concurrency  int
	PollInterval time.Duration
	LockTTL      time.Duration
	// BaseURL is prefixed to one-time links in emails.
	BaseURL string
	// LinkSecret derives raw links from token IDs. It must match the
	// marketplace service's secret.
	LinkSecret []byte
}

// DefaultDispatcherConfig returns a DispatcherConfig with sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Concurrency:  4,
		PollInterval: time.Second,
		LockTTL:      30 * time.Second,
		BaseURL:      "http://localhost:8080",
	}
}

const (
	lockAttempts = 5
	lockBackoff  = 200 * time.Millisecond
)

// Dispatcher processes events from the queue and delivers their emails and
// bell notifications.
type Dispatcher struct {
	store    store.Store
	queue    queue.Queue
	notifier *Notifier
	locker   Locker
	links    *models.LinkSigner
	cfg      DispatcherConfig
	logger   *slog.Logger
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil locker falls back to a LocalLocker.
func NewDispatcher(cfg DispatcherConfig, s store.Store, q queue.Queue, n *Notifier, locker Locker, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultDispatcherConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Dispatcher{
		store:    s,
		queue:    q,
		notifier: n,
		locker:   locker,
		links:    models.NewLinkSigner(cfg.LinkSecret),
		cfg:      cfg,
		logger:   logger.With("component", "dispatcher"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// SetClock replaces the clock used to decide whether an acceptance is stale.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Start spawns the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("starting dispatcher", "concurrency", d.cfg.Concurrency)
	for i := 0; i < d.cfg.Concurrency; i++ {
		d.wg.Add(1)
		go d.workerLoop(ctx, i)
	}
}

// Stop signals the workers and waits for in-flight events to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("stopping dispatcher")
		close(d.stopCh)
	})
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) workerLoop(ctx context.Context, workerID int) {
	defer d.wg.Done()

	logger := d.logger.With("worker_id", workerID)
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		default:
		}

		ev, err := d.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrNoJobs) {
				logger.Error("failed to dequeue event", "error", err)
			}
			d.sleep(ctx, d.cfg.PollInterval)
			continue
		}

		if err := d.Handle(ctx, ev); err != nil {
			logger.Error("failed to deliver event",
				"event_id", ev.ID,
				"kind", ev.Kind,
				"asset_id", ev.AssetID,
				"bid_id", ev.BidID,
				"attempts", ev.Attempts,
				"error", err,
			)
			if nackErr := d.queue.Nack(ctx, ev.ID, err); nackErr != nil {
				logger.Error("failed to nack event", "event_id", ev.ID, "error", nackErr)
			}
			continue
		}
		if err := d.queue.Ack(ctx, ev.ID); err != nil {
			logger.Error("failed to ack event", "event_id", ev.ID, "error", err)
		}
	}
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-d.stopCh:
	case <-t.C:
	}
}

// Handle delivers everything one event calls for. It is safe to call again
// for the same event: bell entries are unique per event and user, and bid
// emails are guarded by the bid's notification flags.
func (d *Dispatcher) Handle(ctx context.Context, ev *models.Event) error {
	del, err := d.load(ctx, ev)
	if errors.Is(err, store.ErrNotFound) {
		d.logger.Warn("dropping event for missing record", "event_id", ev.ID, "kind", ev.Kind, "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	switch ev.Kind {
	case models.EventAssetCreated:
		if del.linkToken != "" {
			if err := d.notifier.Notify(ctx, feeApprovalEmail(del, d.cfg.BaseURL)); err != nil {
				return err
			}
		}
		return d.bell(ctx, del, del.seller.ID, true)

	case models.EventFeeApproved:
		if err := d.notifier.Notify(ctx, feeApprovedEmail(del)); err != nil {
			return err
		}
		if del.linkToken != "" {
			if err := d.notifier.Notify(ctx, validationRequestEmail(del, d.cfg.BaseURL)); err != nil {
				return err
			}
		}
		return d.bell(ctx, del, del.seller.ID, true)

	case models.EventAssetValidated:
		if err := d.notifier.Notify(ctx, validatedEmail(del)); err != nil {
			return err
		}
		return d.bell(ctx, del, del.seller.ID, true)

	case models.EventAssetPosted, models.EventAssetCancelled, models.EventBidPlaced:
		return d.bell(ctx, del, del.seller.ID, true)

	case models.EventBidAccepted:
		return d.deliverAcceptance(ctx, del)

	case models.EventBidRejected:
		if err := d.notifier.Notify(ctx, bidRejectedEmail(del)); err != nil {
			return err
		}
		return d.bell(ctx, del, del.buyer.ID, false)

	case models.EventBidAcceptanceCancelled:
		return d.bell(ctx, del, del.buyer.ID, false)

	case models.EventPaymentConfirmed:
		return d.deliverPayment(ctx, del)

	default:
		d.logger.Warn("unknown event kind", "event_id", ev.ID, "kind", ev.Kind)
		return nil
	}
}

func (d *Dispatcher) deliverAcceptance(ctx context.Context, del *delivery) error {
	// The acceptance may have been cancelled or gone overdue before delivery.
	if models.DeriveBidStatus(del.bid, d.now()) != models.BidStatusAccepted {
		d.logger.Info("skipping stale acceptance", "event_id", del.event.ID, "bid_id", del.bid.ID)
		return nil
	}
	// After a cancel and re-accept, an event from the earlier acceptance
	// carries a link that no longer redeems. Only the current acceptance's
	// event may claim the notification flags.
	if !del.currentAcceptance() {
		d.logger.Info("skipping event from an earlier acceptance", "event_id", del.event.ID, "bid_id", del.bid.ID)
		return nil
	}

	err := d.once(ctx, del.bid.ID, models.FlagBuyerAcceptanceNotified, func() error {
		if err := d.notifier.Notify(ctx, bidAcceptedBuyerEmail(del, d.cfg.BaseURL)); err != nil {
			return err
		}
		return d.bell(ctx, del, del.buyer.ID, false)
	})
	if err != nil {
		return err
	}
	return d.once(ctx, del.bid.ID, models.FlagSellerAcceptanceNotified, func() error {
		if err := d.notifier.Notify(ctx, bidAcceptedSellerEmail(del)); err != nil {
			return err
		}
		return d.bell(ctx, del, del.seller.ID, true)
	})
}

func (d *Dispatcher) deliverPayment(ctx context.Context, del *delivery) error {
	err := d.once(ctx, del.bid.ID, models.FlagPaymentConfirmationEmailSent, func() error {
		if err := d.notifier.Notify(ctx, paymentBuyerEmail(del)); err != nil {
			return err
		}
		return d.bell(ctx, del, del.buyer.ID, false)
	})
	if err != nil {
		return err
	}
	return d.once(ctx, del.bid.ID, models.FlagSellerPaymentNotificationSent, func() error {
		if err := d.notifier.Notify(ctx, paymentSellerEmail(del)); err != nil {
			return err
		}
		return d.bell(ctx, del, del.seller.ID, true)
	})
}

// once runs fn at most once per bid and flag. The flag is read and set under
// a per-bid lock and only after fn succeeds, so a failed delivery is retried.
func (d *Dispatcher) once(ctx context.Context, bidID string, flag models.NotificationFlag, fn func() error) error {
	unlock, err := d.acquire(ctx, "notify:bid:"+bidID)
	if err != nil {
		return err
	}
	defer unlock()

	bid, err := d.store.Bids().Get(ctx, bidID)
	if err != nil {
		return fmt.Errorf("reloading bid %s: %w", bidID, err)
	}
	if bid.Flag(flag) {
		d.logger.Debug("notification already sent", "bid_id", bidID, "flag", flag)
		return nil
	}

	if err := fn(); err != nil {
		return err
	}
	if _, err := d.store.Bids().MarkNotified(ctx, bidID, flag); err != nil {
		return fmt.Errorf("marking %s on bid %s: %w", flag, bidID, err)
	}
	return nil
}

func (d *Dispatcher) acquire(ctx context.Context, key string) (func(), error) {
	var lastErr error
	for i := 0; i < lockAttempts; i++ {
		unlock, err := d.locker.Acquire(ctx, key, d.cfg.LockTTL)
		if err == nil {
			return unlock, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockBackoff):
		}
	}
	return nil, fmt.Errorf("acquiring %s: %w", key, lastErr)
}

func (d *Dispatcher) bell(ctx context.Context, del *delivery, userID string, forSeller bool) error {
	n := &models.Notification{
		UserID:    userID,
		EventID:   del.event.ID,
		Kind:      del.event.Kind,
		AssetID:   del.asset.ID,
		Message:   bellText(del, forSeller),
		CreatedAt: d.now().UTC(),
	}
	if del.bid != nil {
		n.BidID = del.bid.ID
	}
	created, err := d.store.Notifications().Create(ctx, n)
	if err != nil {
		return fmt.Errorf("creating notification for %s: %w", userID, err)
	}
	if !created {
		d.logger.Debug("notification already exists", "event_id", del.event.ID, "user_id", userID)
	}
	return nil
}

func (d *Dispatcher) load(ctx context.Context, ev *models.Event) (*delivery, error) {
	del := &delivery{event: ev}

	var err error
	if del.asset, err = d.store.Assets().Get(ctx, ev.AssetID); err != nil {
		return nil, fmt.Errorf("loading asset %s: %w", ev.AssetID, err)
	}
	if del.seller, err = d.store.Users().GetByID(ctx, del.asset.SellerID); err != nil {
		return nil, fmt.Errorf("loading seller %s: %w", del.asset.SellerID, err)
	}
	if err := d.loadLink(ctx, del); err != nil {
		return nil, err
	}
	if ev.BidID == "" {
		return del, nil
	}
	if del.bid, err = d.store.Bids().Get(ctx, ev.BidID); err != nil {
		return nil, fmt.Errorf("loading bid %s: %w", ev.BidID, err)
	}
	if del.buyer, err = d.store.Users().GetByID(ctx, del.bid.BuyerID); err != nil {
		return nil, fmt.Errorf("loading buyer %s: %w", del.bid.BuyerID, err)
	}
	return del, nil
}

// loadLink derives the raw link for the event's token and checks that it
// resolves. A missing token leaves the delivery without a link.
func (d *Dispatcher) loadLink(ctx context.Context, del *delivery) error {
	if del.event.TokenID == "" {
		return nil
	}
	raw := d.links.Raw(del.event.TokenID)
	tok, err := d.store.Tokens().GetByHash(ctx, models.HashToken(raw))
	if errors.Is(err, store.ErrNotFound) {
		d.logger.Warn("link token not found, sending without link",
			"event_id", del.event.ID,
			"token_id", del.event.TokenID,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading link token %s: %w", del.event.TokenID, err)
	}
	del.token = tok
	del.linkToken = raw
	return nil
}

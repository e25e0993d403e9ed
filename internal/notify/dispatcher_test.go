package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/factorhub/marketplace/internal/marketplace"
	"github.com/factorhub/marketplace/internal/models"
	qmemory "github.com/factorhub/marketplace/internal/queue/memory"
	"github.com/factorhub/marketplace/internal/store/memory"
)

// teePublisher records events on their way into the queue.
type teePublisher struct {
	q      *qmemory.Queue
	mu     sync.Mutex
	events []*models.Event
}

func (p *teePublisher) Enqueue(ctx context.Context, ev *models.Event) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return p.q.Enqueue(ctx, ev)
}

func (p *teePublisher) last(kind models.EventKind) *models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Kind == kind {
			return p.events[i]
		}
	}
	return nil
}

const testLinkSecret = "dispatcher-link-secret-0123456789"

type dispatchEnv struct {
	store  *memory.Store
	queue  *qmemory.Queue
	tee    *teePublisher
	svc    *marketplace.Service
	sender *recordingSender
	disp   *Dispatcher
	seller marketplace.Actor
	buyer  marketplace.Actor
	admin  marketplace.Actor
}

func newDispatchEnv(t *testing.T) *dispatchEnv {
	t.Helper()
	env := &dispatchEnv{
		store:  memory.New(),
		queue:  qmemory.New(3),
		sender: &recordingSender{},
	}
	env.tee = &teePublisher{q: env.queue}
	env.svc = marketplace.NewService(env.store, env.tee, marketplace.Config{LinkSecret: []byte(testLinkSecret)}, discardLogger())
	notifier := NewNotifier([]Sender{env.sender}, nil, discardLogger())
	env.disp = NewDispatcher(DispatcherConfig{
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		BaseURL:      "https://factor.example/",
		LinkSecret:   []byte(testLinkSecret),
	}, env.store, env.queue, notifier, nil, discardLogger())

	env.seller = env.user(t, "seller@example.com", models.RoleSeller)
	env.buyer = env.user(t, "buyer@example.com", models.RoleBuyer)
	env.admin = env.user(t, "admin@example.com", models.RoleAdmin)
	return env
}

func (e *dispatchEnv) user(t *testing.T, email string, role models.Role) marketplace.Actor {
	t.Helper()
	u := &models.User{Email: email, Name: strings.Split(email, "@")[0], Roles: []models.Role{role}}
	if err := e.store.Users().Create(context.Background(), u, "password123"); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return marketplace.Actor{UserID: u.ID, Role: role}
}

// drain handles every queued event synchronously and returns them.
func (e *dispatchEnv) drain(t *testing.T) []*models.Event {
	t.Helper()
	ctx := context.Background()
	var handled []*models.Event
	for {
		ev, err := e.queue.Dequeue(ctx)
		if err != nil {
			return handled
		}
		if err := e.disp.Handle(ctx, ev); err != nil {
			t.Fatalf("Handle %s: %v", ev.Kind, err)
		}
		if err := e.queue.Ack(ctx, ev.ID); err != nil {
			t.Fatalf("Ack: %v", err)
		}
		handled = append(handled, ev)
	}
}

// acceptedBid runs an asset through to an accepted bid. The events stay
// queued.
func (e *dispatchEnv) acceptedBid(t *testing.T) (*marketplace.AssetView, *marketplace.BidView) {
	t.Helper()
	ctx := context.Background()
	asset, err := e.svc.CreateAsset(ctx, e.seller, marketplace.CreateAssetInput{
		BillToName:       "Acme GmbH",
		BillToEmail:      "ap@acme.example",
		InvoiceNumber:    "INV-7",
		InvoiceDate:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		PaymentDate:      time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		FaceValueInCents: 1_000_000,
		TermMonths:       6,
	})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if _, err := e.svc.ApproveFee(ctx, e.seller, asset.ID); err != nil {
		t.Fatalf("ApproveFee: %v", err)
	}

	validation := models.NewLinkSigner([]byte(testLinkSecret)).Raw(e.tee.last(models.EventFeeApproved).TokenID)
	if res, err := e.svc.ValidateByBillToParty(ctx, validation); err != nil || res.Outcome != marketplace.TokenSuccess {
		t.Fatalf("validate: %+v %v", res, err)
	}
	if _, err := e.svc.Post(ctx, e.seller, asset.ID); err != nil {
		t.Fatalf("Post: %v", err)
	}
	bid, err := e.svc.PlaceOrUpdateBid(ctx, e.buyer, asset.ID, marketplace.BidInput{NumUnits: 1, CentsPerUnit: 950_000})
	if err != nil {
		t.Fatalf("PlaceOrUpdateBid: %v", err)
	}
	if _, err := e.svc.AcceptBid(ctx, e.seller, asset.ID, bid.ID); err != nil {
		t.Fatalf("AcceptBid: %v", err)
	}
	return asset, bid
}

func TestDispatcherLinksInEmails(t *testing.T) {
	env := newDispatchEnv(t)
	env.acceptedBid(t)
	env.drain(t)

	seller := env.sender.to("seller@example.com")
	if len(seller) == 0 || !strings.Contains(seller[0].Body, "https://factor.example/links/fee/") {
		t.Errorf("seller should get a fee approval link, got %+v", seller)
	}
	billTo := env.sender.to("ap@acme.example")
	if len(billTo) != 1 || !strings.Contains(billTo[0].Body, "https://factor.example/links/validate/") {
		t.Errorf("bill-to party should get one validation link, got %+v", billTo)
	}
	buyer := env.sender.to("buyer@example.com")
	if len(buyer) != 1 || !strings.Contains(buyer[0].Body, "/links/payment/") {
		t.Fatalf("buyer should get one acceptance email with a payment link, got %+v", buyer)
	}
	if !strings.Contains(buyer[0].Body, "EUR 9500.00") {
		t.Errorf("acceptance email should state the amount:\n%s", buyer[0].Body)
	}
}

func TestDispatcherAcceptanceDeliveredOnce(t *testing.T) {
	env := newDispatchEnv(t)
	ctx := context.Background()
	_, bid := env.acceptedBid(t)

	var accepted *models.Event
	for _, ev := range env.drain(t) {
		if ev.Kind == models.EventBidAccepted {
			accepted = ev
		}
	}
	if accepted == nil {
		t.Fatal("no bid_accepted event")
	}

	// Redelivery and an admin resend must not send again.
	if err := env.disp.Handle(ctx, accepted); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if err := env.svc.ResendNotifications(ctx, env.admin, bid.ID); err != nil {
		t.Fatalf("ResendNotifications: %v", err)
	}
	env.drain(t)

	if got := len(env.sender.to("buyer@example.com")); got != 1 {
		t.Errorf("buyer got %d acceptance emails, want 1", got)
	}
	stored, _ := env.store.Bids().Get(ctx, bid.ID)
	if !stored.Flag(models.FlagBuyerAcceptanceNotified) || !stored.Flag(models.FlagSellerAcceptanceNotified) {
		t.Error("both acceptance flags should be set")
	}

	bells, _ := env.store.Notifications().ListByUser(ctx, env.buyer.UserID, false)
	if len(bells) != 1 {
		t.Errorf("buyer has %d bell notifications, want 1", len(bells))
	}
}

func TestDispatcherRetriesAfterSenderFailure(t *testing.T) {
	env := newDispatchEnv(t)
	ctx := context.Background()
	_, bid := env.acceptedBid(t)

	// Deliver everything before the acceptance.
	for {
		ev, err := env.queue.Dequeue(ctx)
		if err != nil {
			t.Fatal("bid_accepted event never dequeued")
		}
		if ev.Kind != models.EventBidAccepted {
			if err := env.disp.Handle(ctx, ev); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			_ = env.queue.Ack(ctx, ev.ID)
			continue
		}

		env.sender.setErr(errors.New("smtp down"))
		if err := env.disp.Handle(ctx, ev); err == nil {
			t.Fatal("expected delivery failure")
		}
		stored, _ := env.store.Bids().Get(ctx, bid.ID)
		if stored.Flag(models.FlagBuyerAcceptanceNotified) {
			t.Fatal("flag must stay unset when delivery fails")
		}
		_ = env.queue.Nack(ctx, ev.ID, errors.New("smtp down"))
		break
	}

	env.sender.setErr(nil)
	env.drain(t)

	if got := len(env.sender.to("buyer@example.com")); got != 1 {
		t.Errorf("buyer got %d acceptance emails after retry, want 1", got)
	}
}

func TestDispatcherPaymentNotifiesBothParties(t *testing.T) {
	env := newDispatchEnv(t)
	ctx := context.Background()
	_, bid := env.acceptedBid(t)
	env.drain(t)

	if _, err := env.svc.ConfirmPayment(ctx, env.buyer, bid.ID); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	handled := env.drain(t)
	if len(handled) != 1 || handled[0].Kind != models.EventPaymentConfirmed {
		t.Fatalf("handled %v, want one payment_confirmed", handled)
	}
	if err := env.disp.Handle(ctx, handled[0]); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	var buyerPaid, sellerPaid int
	for _, m := range env.sender.to("buyer@example.com") {
		if m.Kind == models.EventPaymentConfirmed {
			buyerPaid++
		}
	}
	for _, m := range env.sender.to("seller@example.com") {
		if m.Kind == models.EventPaymentConfirmed {
			sellerPaid++
		}
	}
	if buyerPaid != 1 || sellerPaid != 1 {
		t.Errorf("payment emails buyer=%d seller=%d, want 1 each", buyerPaid, sellerPaid)
	}

	stored, _ := env.store.Bids().Get(ctx, bid.ID)
	if !stored.Flag(models.FlagPaymentConfirmationEmailSent) || !stored.Flag(models.FlagSellerPaymentNotificationSent) {
		t.Error("payment flags should be set")
	}
}

func TestDispatcherSkipsStaleAcceptance(t *testing.T) {
	env := newDispatchEnv(t)
	_, _ = env.acceptedBid(t)

	env.disp.SetClock(func() time.Time { return time.Now().Add(48 * time.Hour) })
	env.drain(t)

	if got := len(env.sender.to("buyer@example.com")); got != 0 {
		t.Errorf("overdue acceptance should not be announced, got %d emails", got)
	}
}

func TestDispatcherReacceptanceMailsCurrentLink(t *testing.T) {
	env := newDispatchEnv(t)
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	env.svc.SetClock(func() time.Time { return clock })
	env.disp.SetClock(func() time.Time { return clock })

	asset, bid := env.acceptedBid(t)
	first := env.tee.last(models.EventBidAccepted)
	if _, err := env.svc.CancelAcceptance(ctx, env.seller, asset.ID, bid.ID); err != nil {
		t.Fatalf("CancelAcceptance: %v", err)
	}
	clock = clock.Add(time.Minute)
	if _, err := env.svc.AcceptBid(ctx, env.seller, asset.ID, bid.ID); err != nil {
		t.Fatalf("re-AcceptBid: %v", err)
	}
	second := env.tee.last(models.EventBidAccepted)
	if second.ID == first.ID {
		t.Fatal("re-acceptance should emit a new event")
	}

	// Both acceptances are still queued when the dispatcher catches up.
	env.drain(t)

	signer := models.NewLinkSigner([]byte(testLinkSecret))
	var acceptance []Message
	for _, m := range env.sender.to("buyer@example.com") {
		if m.Kind == models.EventBidAccepted {
			acceptance = append(acceptance, m)
		}
	}
	if len(acceptance) != 1 {
		t.Fatalf("buyer got %d acceptance emails, want 1", len(acceptance))
	}
	if strings.Contains(acceptance[0].Body, signer.Raw(first.TokenID)) {
		t.Error("acceptance email carries the link of the cancelled acceptance")
	}
	current := signer.Raw(second.TokenID)
	if !strings.Contains(acceptance[0].Body, "/links/payment/"+current) {
		t.Fatalf("acceptance email should carry the current link:\n%s", acceptance[0].Body)
	}

	res, err := env.svc.ConfirmPaymentByToken(ctx, current)
	if err != nil || res.Outcome != marketplace.TokenSuccess {
		t.Errorf("redeeming the mailed link: %+v, %v", res, err)
	}
}

func TestDispatcherEventsCarryNoRawLinks(t *testing.T) {
	env := newDispatchEnv(t)
	env.acceptedBid(t)

	signer := models.NewLinkSigner([]byte(testLinkSecret))
	for _, ev := range env.drain(t) {
		if ev.TokenID == "" {
			continue
		}
		raw := signer.Raw(ev.TokenID)
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(data), raw) {
			t.Errorf("%s event exposes its raw link", ev.Kind)
		}
		var mailed bool
		for _, m := range env.sender.all() {
			if strings.Contains(m.Body, raw) {
				mailed = true
			}
		}
		if !mailed {
			t.Errorf("%s link was never mailed", ev.Kind)
		}
	}
}

func TestDispatcherWorkerPool(t *testing.T) {
	env := newDispatchEnv(t)
	env.acceptedBid(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.disp.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for (env.queue.Len() > 0 || len(env.sender.to("buyer@example.com")) == 0) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	env.disp.Stop()

	if n := env.queue.Len(); n != 0 {
		t.Fatalf("%d events left in the queue", n)
	}
	if len(env.sender.to("buyer@example.com")) != 1 {
		t.Error("workers should have delivered the acceptance email")
	}
}

func TestDispatcherDeadLettersPersistentFailures(t *testing.T) {
	env := newDispatchEnv(t)
	env.sender.setErr(errors.New("always failing"))
	env.acceptedBid(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.disp.Start(ctx)

	// Every event that sends an email fails: asset_created, fee_approved,
	// asset_validated and bid_accepted.
	deadline := time.Now().Add(5 * time.Second)
	for len(env.queue.Dead()) < 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	env.disp.Stop()

	dead := env.queue.Dead()
	if len(dead) != 4 {
		t.Fatalf("%d dead events, want 4", len(dead))
	}
	for _, ev := range dead {
		if ev.Attempts != 3 {
			t.Errorf("%s parked after %d attempts, want 3", ev.Kind, ev.Attempts)
		}
	}
}

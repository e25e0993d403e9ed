package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// setupTestStore connects to TEST_DATABASE_URL, applies migrations and
// clears the tables.
func setupTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	s, err := NewPostgresStore(DefaultConfig(dsn), slog.Default())
	if err != nil {
		t.Skipf("failed to connect to database: %v", err)
	}

	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	for _, table := range []string{"notifications", "action_tokens", "bids", "assets", "users", "event_queue"} {
		if _, err := s.DB().ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to clean %s: %v", table, err)
		}
	}

	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s store.Store, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Email: uuid.New().String() + "@example.com", Roles: []models.Role{role}}
	if err := s.Users().Create(context.Background(), u, "password123"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func createTestAsset(t *testing.T, s store.Store, sellerID string, state models.AssetState) *models.Asset {
	t.Helper()
	a := &models.Asset{
		SellerID:         sellerID,
		BillToParty:      models.BillToParty{Name: "Debtor GmbH", Email: "ap@debtor.example"},
		InvoiceNumber:    "INV-" + uuid.New().String()[:8],
		InvoiceDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PaymentDate:      time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		FaceValueInCents: 1_000_000,
		TermMonths:       6,
		State:            state,
	}
	if err := s.Assets().Create(context.Background(), a); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	return a
}

func TestAssetUpdateOptimisticLocking(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, models.RoleSeller)
	asset := createTestAsset(t, s, seller.ID, models.AssetStateDraft)

	stale := *asset
	if err := asset.Apply(models.AssetActionApproveFee, time.Now().UTC()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Assets().Update(ctx, asset); err != nil {
		t.Fatalf("update: %v", err)
	}

	stale.State = models.AssetStateCancelled
	if err := s.Assets().Update(ctx, &stale); !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("stale update: got %v, want ErrConcurrentModification", err)
	}

	got, err := s.Assets().Get(ctx, asset.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != models.AssetStateFeeApproved || got.FeesInCents != 10_000 || got.Version != 2 {
		t.Errorf("unexpected asset after update: %+v", got)
	}
}

func TestBidUniquePerBuyer(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, models.RoleSeller)
	buyer := createTestUser(t, s, models.RoleBuyer)
	asset := createTestAsset(t, s, seller.ID, models.AssetStatePosted)

	first := &models.Bid{AssetID: asset.ID, BuyerID: buyer.ID, NumUnits: 1, CentsPerUnit: 950_000}
	if err := s.Bids().Create(ctx, first); err != nil {
		t.Fatalf("create bid: %v", err)
	}
	second := &models.Bid{AssetID: asset.ID, BuyerID: buyer.ID, NumUnits: 2, CentsPerUnit: 1}
	if err := s.Bids().Create(ctx, second); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("second bid: got %v, want ErrDuplicate", err)
	}

	byAsset, err := s.Bids().ListByAssets(ctx, []string{asset.ID, uuid.New().String()})
	if err != nil {
		t.Fatalf("list by assets: %v", err)
	}
	if len(byAsset[asset.ID]) != 1 {
		t.Errorf("ListByAssets returned %d bids, want 1", len(byAsset[asset.ID]))
	}
}

// TestMarkNotifiedOnce verifies that concurrent MarkNotified calls on the
// same flag report success exactly once.
func TestMarkNotifiedOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, models.RoleSeller)
	buyer := createTestUser(t, s, models.RoleBuyer)
	asset := createTestAsset(t, s, seller.ID, models.AssetStatePosted)
	bid := &models.Bid{AssetID: asset.ID, BuyerID: buyer.ID, NumUnits: 1, CentsPerUnit: 950_000}
	if err := s.Bids().Create(ctx, bid); err != nil {
		t.Fatalf("create bid: %v", err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 10
	properties := gopter.NewProperties(parameters)

	properties.Property("exactly one concurrent caller wins a flag", prop.ForAll(
		func(callers int) bool {
			if _, err := s.DB().ExecContext(ctx, `UPDATE bids SET payment_confirmation_email_sent = FALSE WHERE id = $1`, bid.ID); err != nil {
				return false
			}

			var mu sync.Mutex
			wins := 0
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.Bids().MarkNotified(ctx, bid.ID, models.FlagPaymentConfirmationEmailSent)
					if err == nil && ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			return wins == 1
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// TestGetForUpdateSerializes checks that a second transaction blocks on the
// asset row lock until the first commits.
func TestGetForUpdateSerializes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, models.RoleSeller)
	asset := createTestAsset(t, s, seller.ID, models.AssetStateDraft)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.WithTx(ctx, func(tx store.Store) error {
			a, err := tx.Assets().GetForUpdate(ctx, asset.ID)
			if err != nil {
				return err
			}
			close(locked)
			<-release
			if err := a.Apply(models.AssetActionApproveFee, time.Now().UTC()); err != nil {
				return err
			}
			return tx.Assets().Update(ctx, a)
		})
	}()

	<-locked
	second := make(chan *models.Asset, 1)
	go func() {
		_ = s.WithTx(ctx, func(tx store.Store) error {
			a, err := tx.Assets().GetForUpdate(ctx, asset.ID)
			if err == nil {
				second <- a
			}
			return err
		})
	}()

	select {
	case <-second:
		t.Fatal("second transaction acquired the row lock while the first held it")
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first transaction: %v", err)
	}
	a := <-second
	if a.State != models.AssetStateFeeApproved {
		t.Errorf("second transaction saw state %s, want fee_approved", a.State)
	}
}

func TestTokenConsumeOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, models.RoleSeller)
	asset := createTestAsset(t, s, seller.ID, models.AssetStateDraft)

	raw, err := models.GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	tok := &models.ActionToken{
		TokenHash: models.HashToken(raw),
		Purpose:   models.TokenPurposeFeeApproval,
		AssetID:   asset.ID,
		Email:     seller.Email,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.Tokens().Create(ctx, tok); err != nil {
		t.Fatalf("create token: %v", err)
	}

	got, err := s.Tokens().GetByHash(ctx, models.HashToken(raw))
	if err != nil || got.ID != tok.ID {
		t.Fatalf("get by hash: %v %+v", err, got)
	}
	if err := s.Tokens().Consume(ctx, tok.ID, time.Now()); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := s.Tokens().Consume(ctx, tok.ID, time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second consume: got %v, want ErrNotFound", err)
	}
}

func TestDeleteStaleTokens(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, models.RoleSeller)
	asset := createTestAsset(t, s, seller.ID, models.AssetStateDraft)

	now := time.Now().UTC()
	consumedLongAgo := now.Add(-48 * time.Hour)
	tokens := map[string]*models.ActionToken{
		"live":     {ExpiresAt: now.Add(time.Hour)},
		"expired":  {ExpiresAt: now.Add(-48 * time.Hour)},
		"consumed": {ExpiresAt: now.Add(time.Hour), ConsumedAt: &consumedLongAgo},
	}
	for name, tok := range tokens {
		tok.TokenHash = models.HashToken(name)
		tok.Purpose = models.TokenPurposeFeeApproval
		tok.AssetID = asset.ID
		tok.Email = seller.Email
		if err := s.Tokens().Create(ctx, tok); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	n, err := s.Tokens().DeleteStale(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete stale: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d tokens, want 2", n)
	}
	if _, err := s.Tokens().GetByHash(ctx, models.HashToken("live")); err != nil {
		t.Errorf("live token removed: %v", err)
	}
}

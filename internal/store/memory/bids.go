package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
	"github.com/google/uuid"
)

type bidStore struct{ s *Store }

func (r *bidStore) Create(ctx context.Context, bid *models.Bid) error {
	return r.s.do(func(t *tables) error {
		for _, b := range t.bids {
			if b.AssetID == bid.AssetID && b.BuyerID == bid.BuyerID {
				return store.ErrDuplicate
			}
		}
		if bid.ID == "" {
			bid.ID = uuid.New().String()
		}
		if bid.CreatedAt.IsZero() {
			bid.CreatedAt = time.Now().UTC()
		}
		bid.UpdatedAt = bid.CreatedAt
		if bid.State == "" {
			bid.State = models.BidStatePending
		}
		bid.Version = 1
		t.bids[bid.ID] = *bid
		return nil
	})
}

func (r *bidStore) Get(ctx context.Context, id string) (*models.Bid, error) {
	var out *models.Bid
	err := r.s.do(func(t *tables) error {
		b, ok := t.bids[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *bidStore) GetByAssetAndBuyer(ctx context.Context, assetID, buyerID string) (*models.Bid, error) {
	bids, err := r.filter(func(b *models.Bid) bool { return b.AssetID == assetID && b.BuyerID == buyerID }, true)
	if err != nil {
		return nil, err
	}
	if len(bids) == 0 {
		return nil, store.ErrNotFound
	}
	return bids[0], nil
}

func (r *bidStore) ListByAsset(ctx context.Context, assetID string) ([]*models.Bid, error) {
	return r.filter(func(b *models.Bid) bool { return b.AssetID == assetID }, true)
}

func (r *bidStore) ListByAssets(ctx context.Context, assetIDs []string) (map[string][]*models.Bid, error) {
	want := make(map[string]bool, len(assetIDs))
	for _, id := range assetIDs {
		want[id] = true
	}
	bids, err := r.filter(func(b *models.Bid) bool { return want[b.AssetID] }, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*models.Bid, len(assetIDs))
	for _, b := range bids {
		out[b.AssetID] = append(out[b.AssetID], b)
	}
	return out, nil
}

func (r *bidStore) ListByBuyer(ctx context.Context, buyerID string) ([]*models.Bid, error) {
	return r.filter(func(b *models.Bid) bool { return b.BuyerID == buyerID }, false)
}

// Update keeps the stored notification flags, except that a bid going back
// to pending loses its acceptance flags.
func (r *bidStore) Update(ctx context.Context, bid *models.Bid) error {
	return r.s.do(func(t *tables) error {
		cur, ok := t.bids[bid.ID]
		if !ok {
			return store.ErrNotFound
		}
		if cur.Version != bid.Version {
			return store.ErrConcurrentModification
		}

		bid.BuyerAcceptanceNotified = cur.BuyerAcceptanceNotified
		bid.SellerAcceptanceNotified = cur.SellerAcceptanceNotified
		bid.PaymentConfirmationEmailSent = cur.PaymentConfirmationEmailSent
		bid.SellerPaymentNotificationSent = cur.SellerPaymentNotificationSent
		if bid.State == models.BidStatePending {
			bid.BuyerAcceptanceNotified = false
			bid.SellerAcceptanceNotified = false
		}

		bid.Version++
		t.bids[bid.ID] = *bid
		return nil
	})
}

func (r *bidStore) MarkNotified(ctx context.Context, bidID string, flag models.NotificationFlag) (bool, error) {
	if !flag.IsValid() {
		return false, fmt.Errorf("unknown notification flag %q", flag)
	}
	var flipped bool
	err := r.s.do(func(t *tables) error {
		b, ok := t.bids[bidID]
		if !ok {
			return store.ErrNotFound
		}
		if b.Flag(flag) {
			return nil
		}
		b.SetFlag(flag)
		t.bids[bidID] = b
		flipped = true
		return nil
	})
	return flipped, err
}

func (r *bidStore) filter(keep func(*models.Bid) bool, oldestFirst bool) ([]*models.Bid, error) {
	var out []*models.Bid
	err := r.s.do(func(t *tables) error {
		for _, b := range t.bids {
			b := b
			if keep(&b) {
				out = append(out, &b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt) == oldestFirst
	})
	return out, err
}

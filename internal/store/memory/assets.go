package memory

import (
	"context"
	"sort"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
	"github.com/google/uuid"
)

type assetStore struct{ s *Store }

func (r *assetStore) Create(ctx context.Context, asset *models.Asset) error {
	return r.s.do(func(t *tables) error {
		if asset.ID == "" {
			asset.ID = uuid.New().String()
		}
		if _, ok := t.assets[asset.ID]; ok {
			return store.ErrDuplicate
		}
		if asset.CreatedAt.IsZero() {
			asset.CreatedAt = time.Now().UTC()
		}
		asset.UpdatedAt = asset.CreatedAt
		if asset.State == "" {
			asset.State = models.AssetStateDraft
		}
		asset.Version = 1
		t.assets[asset.ID] = *asset
		return nil
	})
}

func (r *assetStore) Get(ctx context.Context, id string) (*models.Asset, error) {
	var out *models.Asset
	err := r.s.do(func(t *tables) error {
		a, ok := t.assets[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

// GetForUpdate is Get: the transaction already holds the only lock.
func (r *assetStore) GetForUpdate(ctx context.Context, id string) (*models.Asset, error) {
	return r.Get(ctx, id)
}

func (r *assetStore) Update(ctx context.Context, asset *models.Asset) error {
	return r.s.do(func(t *tables) error {
		cur, ok := t.assets[asset.ID]
		if !ok {
			return store.ErrNotFound
		}
		if cur.Version != asset.Version {
			return store.ErrConcurrentModification
		}
		asset.Version++
		t.assets[asset.ID] = *asset
		return nil
	})
}

func (r *assetStore) ListBySeller(ctx context.Context, sellerID string) ([]*models.Asset, error) {
	return r.filter(func(a *models.Asset) bool { return a.SellerID == sellerID })
}

func (r *assetStore) ListByState(ctx context.Context, state models.AssetState) ([]*models.Asset, error) {
	return r.filter(func(a *models.Asset) bool { return a.State == state })
}

func (r *assetStore) filter(keep func(*models.Asset) bool) ([]*models.Asset, error) {
	var out []*models.Asset
	err := r.s.do(func(t *tables) error {
		for _, a := range t.assets {
			a := a
			if keep(&a) {
				out = append(out, &a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

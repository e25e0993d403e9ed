package memory

import (
	"context"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
	"github.com/google/uuid"
)

type tokenStore struct{ s *Store }

func (r *tokenStore) Create(ctx context.Context, token *models.ActionToken) error {
	return r.s.do(func(t *tables) error {
		for _, existing := range t.tokens {
			if existing.TokenHash == token.TokenHash {
				return store.ErrDuplicate
			}
		}
		if token.ID == "" {
			token.ID = uuid.New().String()
		}
		if token.CreatedAt.IsZero() {
			token.CreatedAt = time.Now().UTC()
		}
		t.tokens[token.ID] = *token
		return nil
	})
}

func (r *tokenStore) GetByHash(ctx context.Context, hash string) (*models.ActionToken, error) {
	var out *models.ActionToken
	err := r.s.do(func(t *tables) error {
		for _, tok := range t.tokens {
			if tok.TokenHash == hash {
				tok := tok
				out = &tok
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *tokenStore) Consume(ctx context.Context, id string, at time.Time) error {
	return r.s.do(func(t *tables) error {
		tok, ok := t.tokens[id]
		if !ok || tok.ConsumedAt != nil {
			return store.ErrNotFound
		}
		tok.ConsumedAt = &at
		t.tokens[id] = tok
		return nil
	})
}

func (r *tokenStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.s.do(func(t *tables) error {
		for id, tok := range t.tokens {
			if tok.ExpiresAt.Before(before) || (tok.ConsumedAt != nil && tok.ConsumedAt.Before(before)) {
				delete(t.tokens, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

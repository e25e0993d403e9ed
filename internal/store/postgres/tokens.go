package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
	"github.com/google/uuid"
)

// TokenStore implements store.TokenStore using PostgreSQL.
type TokenStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *TokenStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create stores a new action token.
func (s *TokenStore) Create(ctx context.Context, token *models.ActionToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO action_tokens (id, token_hash, purpose, asset_id, bid_id, email, expires_at, consumed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.conn().ExecContext(ctx, query,
		token.ID, token.TokenHash, string(token.Purpose), token.AssetID, nullString(token.BidID),
		token.Email, token.ExpiresAt, token.ConsumedAt, token.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("inserting action token: %w", err)
	}
	return nil
}

// GetByHash retrieves a token by hash.
func (s *TokenStore) GetByHash(ctx context.Context, hash string) (*models.ActionToken, error) {
	query := `
		SELECT id, token_hash, purpose, asset_id, bid_id, email, expires_at, consumed_at, created_at
		FROM action_tokens WHERE token_hash = $1`

	var t models.ActionToken
	var purpose string
	var bidID sql.NullString
	var consumedAt sql.NullTime

	err := s.conn().QueryRowContext(ctx, query, hash).Scan(
		&t.ID, &t.TokenHash, &purpose, &t.AssetID, &bidID, &t.Email,
		&t.ExpiresAt, &consumedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	t.Purpose = models.TokenPurpose(purpose)
	t.BidID = bidID.String
	t.ConsumedAt = timePtr(consumedAt)
	return &t, nil
}

// Consume marks a token used exactly once.
func (s *TokenStore) Consume(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE action_tokens SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`

	result, err := s.conn().ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("consuming action token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteStale removes tokens that expired or were consumed before the cutoff.
func (s *TokenStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM action_tokens WHERE expires_at < $1 OR consumed_at < $1`

	result, err := s.conn().ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("deleting stale action tokens: %w", err)
	}
	return result.RowsAffected()
}

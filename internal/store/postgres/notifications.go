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

// NotificationStore implements store.NotificationStore using PostgreSQL.
type NotificationStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *NotificationStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create inserts a bell notification unless the user already has one for the event.
func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (id, user_id, event_id, kind, asset_id, bid_id, message, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id, user_id) DO NOTHING`

	result, err := s.conn().ExecContext(ctx, query,
		n.ID, n.UserID, n.EventID, string(n.Kind), n.AssetID, nullString(n.BidID),
		n.Message, n.ReadAt, n.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows == 1, nil
}

// ListByUser retrieves a user's notifications.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, event_id, kind, asset_id, bid_id, message, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC`

	rows, err := s.conn().QueryContext(ctx, query, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		var kind string
		var bidID sql.NullString
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.EventID, &kind, &n.AssetID, &bidID, &n.Message, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.Kind = models.EventKind(kind)
		n.BidID = bidID.String
		n.ReadAt = timePtr(readAt)
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkRead marks a notification read. Already-read notifications are left as is.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	query := `UPDATE notifications SET read_at = COALESCE(read_at, $3) WHERE id = $1 AND user_id = $2`

	result, err := s.conn().ExecContext(ctx, query, id, userID, at)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
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

// DeleteReadBefore removes notifications read before the cutoff.
func (s *NotificationStore) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE read_at < $1`

	result, err := s.conn().ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("deleting read notifications: %w", err)
	}
	return result.RowsAffected()
}

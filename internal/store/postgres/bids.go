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
	"github.com/lib/pq"
)

// BidStore implements store.BidStore using PostgreSQL.
type BidStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *BidStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const bidColumns = `
	id, asset_id, buyer_id, num_units, cents_per_unit, state,
	accepted_at, payment_deadline, payment_approved_at, rejected_at,
	buyer_acceptance_notified, seller_acceptance_notified,
	payment_confirmation_email_sent, seller_payment_notification_sent,
	version, created_at, updated_at`

// flagColumns whitelists the columns MarkNotified may touch.
var flagColumns = map[models.NotificationFlag]string{
	models.FlagBuyerAcceptanceNotified:       "buyer_acceptance_notified",
	models.FlagSellerAcceptanceNotified:      "seller_acceptance_notified",
	models.FlagPaymentConfirmationEmailSent:  "payment_confirmation_email_sent",
	models.FlagSellerPaymentNotificationSent: "seller_payment_notification_sent",
}

// Create inserts a new bid.
func (s *BidStore) Create(ctx context.Context, bid *models.Bid) error {
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

	query := `
		INSERT INTO bids (` + bidColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := s.conn().ExecContext(ctx, query,
		bid.ID, bid.AssetID, bid.BuyerID, bid.NumUnits, bid.CentsPerUnit, string(bid.State),
		bid.AcceptedAt, bid.PaymentDeadline, bid.PaymentApprovedAt, bid.RejectedAt,
		bid.BuyerAcceptanceNotified, bid.SellerAcceptanceNotified,
		bid.PaymentConfirmationEmailSent, bid.SellerPaymentNotificationSent,
		bid.Version, bid.CreatedAt, bid.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("inserting bid: %w", err)
	}

	s.logger.Debug("bid created", "bid_id", bid.ID, "asset_id", bid.AssetID)
	return nil
}

// Get retrieves a bid by ID.
func (s *BidStore) Get(ctx context.Context, id string) (*models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`
	bid, err := scanBid(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return bid, nil
}

// GetByAssetAndBuyer retrieves the buyer's bid on an asset.
func (s *BidStore) GetByAssetAndBuyer(ctx context.Context, assetID, buyerID string) (*models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE asset_id = $1 AND buyer_id = $2`
	bid, err := scanBid(s.conn().QueryRowContext(ctx, query, assetID, buyerID))
	if err != nil {
		return nil, notFound(err)
	}
	return bid, nil
}

// ListByAsset retrieves all bids on an asset.
func (s *BidStore) ListByAsset(ctx context.Context, assetID string) ([]*models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE asset_id = $1 ORDER BY created_at ASC`
	return s.list(ctx, query, assetID)
}

// ListByAssets retrieves the bids of several assets in one round trip.
func (s *BidStore) ListByAssets(ctx context.Context, assetIDs []string) (map[string][]*models.Bid, error) {
	result := make(map[string][]*models.Bid, len(assetIDs))
	if len(assetIDs) == 0 {
		return result, nil
	}

	query := `SELECT ` + bidColumns + ` FROM bids WHERE asset_id = ANY($1::uuid[]) ORDER BY created_at ASC`
	bids, err := s.list(ctx, query, pq.Array(assetIDs))
	if err != nil {
		return nil, err
	}
	for _, b := range bids {
		result[b.AssetID] = append(result[b.AssetID], b)
	}
	return result, nil
}

// ListByBuyer retrieves all bids placed by a buyer.
func (s *BidStore) ListByBuyer(ctx context.Context, buyerID string) ([]*models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE buyer_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, buyerID)
}

// Update writes the bid with optimistic locking. Notification flags are only
// set through MarkNotified; a bid going back to pending clears its
// acceptance flags so a later acceptance is announced again.
func (s *BidStore) Update(ctx context.Context, bid *models.Bid) error {
	query := `
		UPDATE bids SET
			num_units = $1, cents_per_unit = $2, state = $3,
			accepted_at = $4, payment_deadline = $5, payment_approved_at = $6, rejected_at = $7,
			buyer_acceptance_notified = CASE WHEN $3 = 'pending' THEN FALSE ELSE buyer_acceptance_notified END,
			seller_acceptance_notified = CASE WHEN $3 = 'pending' THEN FALSE ELSE seller_acceptance_notified END,
			updated_at = $8, version = version + 1
		WHERE id = $9 AND version = $10`

	result, err := s.conn().ExecContext(ctx, query,
		bid.NumUnits, bid.CentsPerUnit, string(bid.State),
		bid.AcceptedAt, bid.PaymentDeadline, bid.PaymentApprovedAt, bid.RejectedAt,
		bid.UpdatedAt, bid.ID, bid.Version,
	)
	if err != nil {
		return fmt.Errorf("updating bid: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := s.conn().QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bids WHERE id = $1)`, bid.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking bid existence: %w", err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrConcurrentModification
	}

	bid.Version++
	return nil
}

// MarkNotified flips a notification flag from false to true. The version is
// left alone so a concurrent business update on the bid is not invalidated.
func (s *BidStore) MarkNotified(ctx context.Context, bidID string, flag models.NotificationFlag) (bool, error) {
	column, ok := flagColumns[flag]
	if !ok {
		return false, fmt.Errorf("unknown notification flag %q", flag)
	}

	query := fmt.Sprintf(`UPDATE bids SET %s = TRUE WHERE id = $1 AND %s = FALSE`, column, column)
	result, err := s.conn().ExecContext(ctx, query, bidID)
	if err != nil {
		return false, fmt.Errorf("marking bid notified: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 1 {
		return true, nil
	}

	// Distinguish "already set" from a missing bid.
	if _, err := s.Get(ctx, bidID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *BidStore) list(ctx context.Context, query string, args ...any) ([]*models.Bid, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bids: %w", err)
	}
	defer rows.Close()

	var bids []*models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bid: %w", err)
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

func scanBid(row scanner) (*models.Bid, error) {
	var b models.Bid
	var state string
	var acceptedAt, deadline, approvedAt, rejectedAt sql.NullTime

	err := row.Scan(
		&b.ID, &b.AssetID, &b.BuyerID, &b.NumUnits, &b.CentsPerUnit, &state,
		&acceptedAt, &deadline, &approvedAt, &rejectedAt,
		&b.BuyerAcceptanceNotified, &b.SellerAcceptanceNotified,
		&b.PaymentConfirmationEmailSent, &b.SellerPaymentNotificationSent,
		&b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.State = models.BidState(state)
	b.AcceptedAt = timePtr(acceptedAt)
	b.PaymentDeadline = timePtr(deadline)
	b.PaymentApprovedAt = timePtr(approvedAt)
	b.RejectedAt = timePtr(rejectedAt)
	return &b, nil
}

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
	"github.com/shopspring/decimal"
)

// AssetStore implements store.AssetStore using PostgreSQL.
type AssetStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *AssetStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const assetColumns = `
	id, seller_id, bill_to_name, bill_to_email, invoice_number, invoice_date, payment_date,
	face_value_in_cents, term_months, proposed_discount, fees_in_cents, state,
	fee_approved_at, validated_at, posted_at, cancelled_at, version, created_at, updated_at`

// Create inserts a new asset.
func (s *AssetStore) Create(ctx context.Context, asset *models.Asset) error {
	if asset.ID == "" {
		asset.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = asset.CreatedAt
	if asset.State == "" {
		asset.State = models.AssetStateDraft
	}
	asset.Version = 1

	query := `
		INSERT INTO assets (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := s.conn().ExecContext(ctx, query,
		asset.ID, asset.SellerID, asset.BillToParty.Name, asset.BillToParty.Email,
		asset.InvoiceNumber, asset.InvoiceDate, asset.PaymentDate,
		asset.FaceValueInCents, asset.TermMonths, nullDecimal(asset.ProposedDiscount),
		asset.FeesInCents, string(asset.State),
		asset.FeeApprovedAt, asset.ValidatedAt, asset.PostedAt, asset.CancelledAt,
		asset.Version, asset.CreatedAt, asset.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("inserting asset: %w", err)
	}

	s.logger.Debug("asset created", "asset_id", asset.ID, "seller_id", asset.SellerID)
	return nil
}

// Get retrieves an asset by ID.
func (s *AssetStore) Get(ctx context.Context, id string) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`
	asset, err := scanAsset(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return asset, nil
}

// GetForUpdate retrieves an asset by ID with a row lock held until the
// transaction ends.
func (s *AssetStore) GetForUpdate(ctx context.Context, id string) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1 FOR UPDATE`
	asset, err := scanAsset(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return asset, nil
}

// Update writes the asset with optimistic locking.
func (s *AssetStore) Update(ctx context.Context, asset *models.Asset) error {
	query := `
		UPDATE assets SET
			fees_in_cents = $1, state = $2,
			fee_approved_at = $3, validated_at = $4, posted_at = $5, cancelled_at = $6,
			proposed_discount = $7, updated_at = $8, version = version + 1
		WHERE id = $9 AND version = $10`

	result, err := s.conn().ExecContext(ctx, query,
		asset.FeesInCents, string(asset.State),
		asset.FeeApprovedAt, asset.ValidatedAt, asset.PostedAt, asset.CancelledAt,
		nullDecimal(asset.ProposedDiscount), asset.UpdatedAt,
		asset.ID, asset.Version,
	)
	if err != nil {
		return fmt.Errorf("updating asset: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := s.conn().QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM assets WHERE id = $1)`, asset.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking asset existence: %w", err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrConcurrentModification
	}

	asset.Version++
	return nil
}

// ListBySeller retrieves all assets owned by a seller.
func (s *AssetStore) ListBySeller(ctx context.Context, sellerID string) ([]*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE seller_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, sellerID)
}

// ListByState retrieves all assets in a state.
func (s *AssetStore) ListByState(ctx context.Context, state models.AssetState) ([]*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE state = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, string(state))
}

func (s *AssetStore) list(ctx context.Context, query string, args ...any) ([]*models.Asset, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func scanAsset(row scanner) (*models.Asset, error) {
	var a models.Asset
	var state string
	var discount decimal.NullDecimal
	var feeApprovedAt, validatedAt, postedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.SellerID, &a.BillToParty.Name, &a.BillToParty.Email, &a.InvoiceNumber,
		&a.InvoiceDate, &a.PaymentDate, &a.FaceValueInCents, &a.TermMonths, &discount,
		&a.FeesInCents, &state, &feeApprovedAt, &validatedAt, &postedAt, &cancelledAt,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.State = models.AssetState(state)
	if discount.Valid {
		d := discount.Decimal
		a.ProposedDiscount = &d
	}
	a.FeeApprovedAt = timePtr(feeApprovedAt)
	a.ValidatedAt = timePtr(validatedAt)
	a.PostedAt = timePtr(postedAt)
	a.CancelledAt = timePtr(cancelledAt)
	return &a, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
	"github.com/shopspring/decimal"
)

var maxDiscount = decimal.NewFromInt(100)

// CreateAssetInput describes a new invoice listing.
type CreateAssetInput struct {
	BillToName       string           `json:"bill_to_name" validate:"required,max=255"`
	BillToEmail      string           `json:"bill_to_email" validate:"required,email"`
	InvoiceNumber    string           `json:"invoice_number" validate:"required,max=255"`
	InvoiceDate      time.Time        `json:"invoice_date" validate:"required"`
	PaymentDate      time.Time        `json:"payment_date" validate:"required,gtfield=InvoiceDate"`
	FaceValueInCents int64            `json:"face_value_in_cents" validate:"gt=0"`
	TermMonths       int              `json:"term_months" validate:"gt=0,lte=120"`
	ProposedDiscount *decimal.Decimal `json:"proposed_discount,omitempty"`
}

// CreateAsset creates a draft asset for the seller and emails them a
// fee-approval link.
func (s *Service) CreateAsset(ctx context.Context, actor Actor, in CreateAssetInput) (*AssetView, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	if d := in.ProposedDiscount; d != nil && (d.IsNegative() || d.GreaterThanOrEqual(maxDiscount)) {
		return nil, &ValidationError{Fields: map[string]string{"ProposedDiscount": "must be between 0 and 100"}}
	}

	now := s.now()
	asset := &models.Asset{
		SellerID:         actor.UserID,
		BillToParty:      models.BillToParty{Name: in.BillToName, Email: in.BillToEmail},
		InvoiceNumber:    in.InvoiceNumber,
		InvoiceDate:      in.InvoiceDate,
		PaymentDate:      in.PaymentDate,
		FaceValueInCents: in.FaceValueInCents,
		TermMonths:       in.TermMonths,
		ProposedDiscount: in.ProposedDiscount,
		State:            models.AssetStateDraft,
		CreatedAt:        now,
	}

	out := &outbox{}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		seller, err := tx.Users().GetByID(ctx, actor.UserID)
		if err != nil {
			return translate(err)
		}
		if err := tx.Assets().Create(ctx, asset); err != nil {
			return fmt.Errorf("creating asset: %w", err)
		}
		tokenID, err := s.issueToken(ctx, tx, models.TokenPurposeFeeApproval, asset.ID, "", seller.Email, now.Add(s.tokenTTL))
		if err != nil {
			return err
		}
		out.add(models.EventAssetCreated, actor.UserID, asset.ID, "", tokenID, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, out.events)

	s.logger.Info("asset created", "asset_id", asset.ID, "seller_id", asset.SellerID)
	return newAssetView(asset, nil, now), nil
}

// ApproveFee freezes the platform fee on the seller's behalf and sends the
// bill-to-party a validation link.
func (s *Service) ApproveFee(ctx context.Context, actor Actor, assetID string) (*AssetView, error) {
	var view *AssetView
	err := s.inAssetTx(ctx, assetID, func(tx store.Store, asset *models.Asset, out *outbox) error {
		if asset.SellerID != actor.UserID {
			return fmt.Errorf("%w: only the seller may approve the fee", ErrForbidden)
		}
		if err := s.approveFee(ctx, tx, asset, actor.UserID, out); err != nil {
			return err
		}
		view = newAssetView(asset, nil, s.now())
		return nil
	})
	return view, err
}

func (s *Service) approveFee(ctx context.Context, tx store.Store, asset *models.Asset, actorID string, out *outbox) error {
	now := s.now()
	if err := asset.Apply(models.AssetActionApproveFee, now); err != nil {
		return translate(err)
	}
	if err := tx.Assets().Update(ctx, asset); err != nil {
		return translate(err)
	}
	tokenID, err := s.issueToken(ctx, tx, models.TokenPurposeValidation, asset.ID, "", asset.BillToParty.Email, now.Add(s.tokenTTL))
	if err != nil {
		return err
	}
	out.add(models.EventFeeApproved, actorID, asset.ID, "", tokenID, now)
	s.logger.Info("fee approved", "asset_id", asset.ID, "fees_in_cents", asset.FeesInCents)
	return nil
}

// Post makes a validated asset visible in the marketplace.
func (s *Service) Post(ctx context.Context, actor Actor, assetID string) (*AssetView, error) {
	return s.sellerTransition(ctx, actor, assetID, models.AssetActionPost, models.EventAssetPosted)
}

// Cancel withdraws an asset that has not been posted.
func (s *Service) Cancel(ctx context.Context, actor Actor, assetID string) (*AssetView, error) {
	return s.sellerTransition(ctx, actor, assetID, models.AssetActionCancel, models.EventAssetCancelled)
}

func (s *Service) sellerTransition(ctx context.Context, actor Actor, assetID string, action models.AssetAction, kind models.EventKind) (*AssetView, error) {
	var view *AssetView
	err := s.inAssetTx(ctx, assetID, func(tx store.Store, asset *models.Asset, out *outbox) error {
		if asset.SellerID != actor.UserID {
			return fmt.Errorf("%w: only the seller may %s this asset", ErrForbidden, action)
		}
		now := s.now()
		if err := asset.Apply(action, now); err != nil {
			return fmt.Errorf("%w: cannot %s a %s asset", ErrInvalidTransition, action, asset.State)
		}
		if err := tx.Assets().Update(ctx, asset); err != nil {
			return translate(err)
		}
		out.add(kind, actor.UserID, asset.ID, "", "", now)
		view = newAssetView(asset, nil, now)
		return nil
	})
	if err == nil {
		s.logger.Info("asset transition", "asset_id", assetID, "action", action)
	}
	return view, err
}

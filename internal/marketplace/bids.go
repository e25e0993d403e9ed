package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
)

// BidInput is a buyer's offer.
type BidInput struct {
	NumUnits     int64 `json:"num_units" validate:"gt=0"`
	CentsPerUnit int64 `json:"cents_per_unit" validate:"gt=0"`
}

// PlaceOrUpdateBid creates the buyer's bid on a posted asset or edits it while
// it is still pending. Submission stays open while another bid is accepted.
func (s *Service) PlaceOrUpdateBid(ctx context.Context, actor Actor, assetID string, in BidInput) (*BidView, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	if models.BidAmountOverflows(in.NumUnits, in.CentsPerUnit) {
		return nil, &ValidationError{Fields: map[string]string{
			"CentsPerUnit": "num_units * cents_per_unit exceeds the maximum bid amount",
		}}
	}

	var view *BidView
	err := s.inAssetTx(ctx, assetID, func(tx store.Store, asset *models.Asset, out *outbox) error {
		if asset.SellerID == actor.UserID {
			return fmt.Errorf("%w: sellers cannot bid on their own assets", ErrForbidden)
		}
		if !asset.IsPosted() {
			return fmt.Errorf("%w: asset is %s, not posted", ErrInvalidTransition, asset.State)
		}

		now := s.now()
		bid, err := tx.Bids().GetByAssetAndBuyer(ctx, asset.ID, actor.UserID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			bid = &models.Bid{
				AssetID:      asset.ID,
				BuyerID:      actor.UserID,
				NumUnits:     in.NumUnits,
				CentsPerUnit: in.CentsPerUnit,
				State:        models.BidStatePending,
				CreatedAt:    now,
			}
			if err := tx.Bids().Create(ctx, bid); err != nil {
				return fmt.Errorf("creating bid: %w", err)
			}
		case err != nil:
			return err
		default:
			if !bid.IsMutable() {
				return ErrBidImmutable
			}
			bid.NumUnits = in.NumUnits
			bid.CentsPerUnit = in.CentsPerUnit
			bid.UpdatedAt = now
			if err := tx.Bids().Update(ctx, bid); err != nil {
				return translate(err)
			}
		}

		out.add(models.EventBidPlaced, actor.UserID, asset.ID, bid.ID, "", now)
		view = newBidView(bid, asset, now)
		return nil
	})
	return view, err
}

// AcceptBid accepts a pending bid and starts its payment window. It fails
// with ErrAssetAlreadyCommitted while another accepted bid on the asset is
// inside its window or paid; the check runs under the asset lock.
func (s *Service) AcceptBid(ctx context.Context, actor Actor, assetID, bidID string) (*BidView, error) {
	var view *BidView
	err := s.inAssetTx(ctx, assetID, func(tx store.Store, asset *models.Asset, out *outbox) error {
		bid, err := s.sellerBid(ctx, tx, actor, asset, bidID)
		if err != nil {
			return err
		}
		if !asset.IsPosted() {
			return fmt.Errorf("%w: asset is %s, not posted", ErrInvalidTransition, asset.State)
		}
		if bid.State != models.BidStatePending {
			return fmt.Errorf("%w: bid is %s", ErrInvalidTransition, bid.State)
		}

		now := s.now()
		bids, err := tx.Bids().ListByAsset(ctx, asset.ID)
		if err != nil {
			return err
		}
		if !models.CanAcceptOtherBids(bids, now) {
			return ErrAssetAlreadyCommitted
		}

		if err := bid.Accept(now, s.paymentWindow); err != nil {
			return translate(err)
		}
		if err := tx.Bids().Update(ctx, bid); err != nil {
			return translate(err)
		}

		buyer, err := tx.Users().GetByID(ctx, bid.BuyerID)
		if err != nil {
			return translate(err)
		}
		tokenID, err := s.issueToken(ctx, tx, models.TokenPurposePaymentApproval, asset.ID, bid.ID, buyer.Email, *bid.PaymentDeadline)
		if err != nil {
			return err
		}

		out.add(models.EventBidAccepted, actor.UserID, asset.ID, bid.ID, tokenID, now)
		view = newBidView(bid, asset, now)
		s.logger.Info("bid accepted", "asset_id", asset.ID, "bid_id", bid.ID, "payment_deadline", bid.PaymentDeadline)
		return nil
	})
	return view, err
}

// RejectBid rejects a pending bid. An accepted bid must have its acceptance
// cancelled first.
func (s *Service) RejectBid(ctx context.Context, actor Actor, assetID, bidID string) (*BidView, error) {
	return s.sellerBidTransition(ctx, actor, assetID, bidID, models.EventBidRejected, func(b *models.Bid) error {
		return b.Reject(s.now())
	})
}

// CancelAcceptance reverts an accepted, unpaid bid to pending. Overdue bids
// qualify; paid ones do not.
func (s *Service) CancelAcceptance(ctx context.Context, actor Actor, assetID, bidID string) (*BidView, error) {
	return s.sellerBidTransition(ctx, actor, assetID, bidID, models.EventBidAcceptanceCancelled, func(b *models.Bid) error {
		return b.CancelAcceptance(s.now())
	})
}

func (s *Service) sellerBidTransition(ctx context.Context, actor Actor, assetID, bidID string, kind models.EventKind, apply func(*models.Bid) error) (*BidView, error) {
	var view *BidView
	err := s.inAssetTx(ctx, assetID, func(tx store.Store, asset *models.Asset, out *outbox) error {
		bid, err := s.sellerBid(ctx, tx, actor, asset, bidID)
		if err != nil {
			return err
		}
		if err := apply(bid); err != nil {
			return translate(err)
		}
		if err := tx.Bids().Update(ctx, bid); err != nil {
			return translate(err)
		}
		now := s.now()
		out.add(kind, actor.UserID, asset.ID, bid.ID, "", now)
		view = newBidView(bid, asset, now)
		return nil
	})
	return view, err
}

// sellerBid loads a bid that must belong to asset, on behalf of the asset's seller.
func (s *Service) sellerBid(ctx context.Context, tx store.Store, actor Actor, asset *models.Asset, bidID string) (*models.Bid, error) {
	if asset.SellerID != actor.UserID {
		return nil, fmt.Errorf("%w: only the seller may decide on bids", ErrForbidden)
	}
	bid, err := tx.Bids().Get(ctx, bidID)
	if err != nil {
		return nil, translate(err)
	}
	if bid.AssetID != asset.ID {
		return nil, fmt.Errorf("%w: bid %s is not on asset %s", ErrNotFound, bidID, asset.ID)
	}
	return bid, nil
}

// ConfirmPayment records the buyer's bank transfer for an accepted bid.
// A repeated call returns ErrAlreadyCompleted; a call after the window
// returns ErrDeadlineExpired.
func (s *Service) ConfirmPayment(ctx context.Context, actor Actor, bidID string) (*BidView, error) {
	current, err := s.store.Bids().Get(ctx, bidID)
	if err != nil {
		return nil, translate(err)
	}

	var view *BidView
	err = s.inAssetTx(ctx, current.AssetID, func(tx store.Store, asset *models.Asset, out *outbox) error {
		bid, err := tx.Bids().Get(ctx, bidID)
		if err != nil {
			return translate(err)
		}
		if bid.BuyerID != actor.UserID {
			return fmt.Errorf("%w: only the bidder may confirm payment", ErrForbidden)
		}
		now := s.now()
		if err := s.confirmPayment(ctx, tx, asset, bid, actor.UserID, now, out); err != nil {
			return err
		}
		view = newBidView(bid, asset, now)
		return nil
	})
	return view, err
}

// confirmPayment applies the payment guards in order: already paid, not
// accepted, past deadline.
func (s *Service) confirmPayment(ctx context.Context, tx store.Store, asset *models.Asset, bid *models.Bid, actorID string, now time.Time, out *outbox) error {
	if bid.PaymentApprovedByBuyer() {
		return ErrAlreadyCompleted
	}
	if !bid.Accepted() {
		return fmt.Errorf("%w: bid is %s, not accepted", ErrInvalidTransition, bid.State)
	}
	if models.DeriveBidStatus(bid, now) == models.BidStatusOverdue {
		return fmt.Errorf("%w: deadline was %s", ErrDeadlineExpired, bid.PaymentDeadline.Format(time.RFC3339))
	}

	if err := bid.ConfirmPayment(now); err != nil {
		return translate(err)
	}
	if err := tx.Bids().Update(ctx, bid); err != nil {
		return translate(err)
	}
	out.add(models.EventPaymentConfirmed, actorID, asset.ID, bid.ID, "", now)
	s.logger.Info("payment confirmed", "asset_id", asset.ID, "bid_id", bid.ID)
	return nil
}

// ResendNotifications re-emits the event matching the bid's current state.
// Notifications already delivered are skipped by the dispatcher, so this only
// fills in what failed before.
func (s *Service) ResendNotifications(ctx context.Context, actor Actor, bidID string) error {
	if actor.Role != models.RoleAdmin {
		return fmt.Errorf("%w: admin only", ErrForbidden)
	}
	current, err := s.store.Bids().Get(ctx, bidID)
	if err != nil {
		return translate(err)
	}

	return s.inAssetTx(ctx, current.AssetID, func(tx store.Store, asset *models.Asset, out *outbox) error {
		bid, err := tx.Bids().Get(ctx, bidID)
		if err != nil {
			return translate(err)
		}
		now := s.now()
		switch models.DeriveBidStatus(bid, now) {
		case models.BidStatusPaymentConfirmed:
			out.add(models.EventPaymentConfirmed, actor.UserID, asset.ID, bid.ID, "", now)
		case models.BidStatusAccepted:
			buyer, err := tx.Users().GetByID(ctx, bid.BuyerID)
			if err != nil {
				return translate(err)
			}
			tokenID, err := s.issueToken(ctx, tx, models.TokenPurposePaymentApproval, asset.ID, bid.ID, buyer.Email, *bid.PaymentDeadline)
			if err != nil {
				return err
			}
			out.add(models.EventBidAccepted, actor.UserID, asset.ID, bid.ID, tokenID, now)
		case models.BidStatusRejected:
			out.add(models.EventBidRejected, actor.UserID, asset.ID, bid.ID, "", now)
		case models.BidStatusPending:
			out.add(models.EventBidPlaced, actor.UserID, asset.ID, bid.ID, "", now)
		default:
			return fmt.Errorf("%w: nothing to resend for an overdue bid", ErrInvalidTransition)
		}
		s.logger.Info("notifications re-emitted", "asset_id", asset.ID, "bid_id", bid.ID)
		return nil
	})
}

package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
)

// TokenOutcome is the result of following a one-time link.
type TokenOutcome string

const (
	TokenSuccess          TokenOutcome = "success"
	TokenNotFound         TokenOutcome = "not_found"
	TokenAlreadyCompleted TokenOutcome = "already_completed"
	TokenDeadlinePassed   TokenOutcome = "deadline_passed"
	// TokenInvalid means the token exists but the action no longer applies,
	// for example because the asset was cancelled.
	TokenInvalid TokenOutcome = "invalid"
	// TokenPending means the link is known and awaits an explicit
	// confirmation. Only LookupLink reports it.
	TokenPending TokenOutcome = "pending"
)

// TokenResult reports what a one-time link did.
type TokenResult struct {
	Outcome TokenOutcome        `json:"status"`
	Purpose models.TokenPurpose `json:"purpose"`
	Asset   *AssetView          `json:"asset,omitempty"`
	Bid     *BidView            `json:"bid,omitempty"`
	Reason  string              `json:"reason,omitempty"`
}

// ApproveFeeByToken approves the fee through the link emailed to the seller.
func (s *Service) ApproveFeeByToken(ctx context.Context, raw string) (*TokenResult, error) {
	return s.redeem(ctx, raw, models.TokenPurposeFeeApproval, func(tx store.Store, tok *models.ActionToken, asset *models.Asset, res *TokenResult, out *outbox) error {
		if asset.FeeApprovedBySeller() {
			return ErrAlreadyCompleted
		}
		if tok.IsExpired(s.now()) {
			return ErrDeadlineExpired
		}
		if err := s.approveFee(ctx, tx, asset, asset.SellerID, out); err != nil {
			return err
		}
		res.Asset = newAssetView(asset, nil, s.now())
		return nil
	})
}

// ValidateByBillToParty records the debtor's confirmation of the invoice.
// Following the same link again reports TokenAlreadyCompleted without
// touching the asset.
func (s *Service) ValidateByBillToParty(ctx context.Context, raw string) (*TokenResult, error) {
	return s.redeem(ctx, raw, models.TokenPurposeValidation, func(tx store.Store, tok *models.ActionToken, asset *models.Asset, res *TokenResult, out *outbox) error {
		if asset.ValidatedByBillToParty() {
			return ErrAlreadyCompleted
		}
		now := s.now()
		if tok.IsExpired(now) {
			return ErrDeadlineExpired
		}
		if !asset.FeeApprovedBySeller() {
			return fmt.Errorf("%w: fee not approved", ErrInvalidTransition)
		}
		if err := asset.Apply(models.AssetActionValidate, now); err != nil {
			return translate(err)
		}
		if err := tx.Assets().Update(ctx, asset); err != nil {
			return translate(err)
		}
		out.add(models.EventAssetValidated, "", asset.ID, "", "", now)
		res.Asset = newAssetView(asset, nil, now)
		s.logger.Info("asset validated by bill-to-party", "asset_id", asset.ID)
		return nil
	})
}

// ConfirmPaymentByToken confirms payment through the link emailed to the
// buyer on acceptance. The link expires with the payment window.
func (s *Service) ConfirmPaymentByToken(ctx context.Context, raw string) (*TokenResult, error) {
	return s.redeem(ctx, raw, models.TokenPurposePaymentApproval, func(tx store.Store, tok *models.ActionToken, asset *models.Asset, res *TokenResult, out *outbox) error {
		bid, err := tx.Bids().Get(ctx, tok.BidID)
		if err != nil {
			return translate(err)
		}
		now := s.now()
		res.Bid = newBidView(bid, asset, now)

		// A link from an earlier acceptance of the same bid no longer applies.
		if bid.State == models.BidStateAccepted && !tok.ExpiresAt.Equal(*bid.PaymentDeadline) {
			return fmt.Errorf("%w: link belongs to an earlier acceptance", ErrInvalidTransition)
		}
		if err := s.confirmPayment(ctx, tx, asset, bid, bid.BuyerID, now, out); err != nil {
			return err
		}
		res.Bid = newBidView(bid, asset, now)
		return nil
	})
}

// LookupLink checks that raw is a link for purpose without acting on it.
// Following a link only shows what it will do; the action runs when the
// recipient confirms.
func (s *Service) LookupLink(ctx context.Context, raw string, purpose models.TokenPurpose) (*TokenResult, error) {
	res := &TokenResult{Purpose: purpose, Outcome: TokenNotFound}
	if raw == "" {
		return res, nil
	}
	tok, err := s.store.Tokens().GetByHash(ctx, models.HashToken(raw))
	if errors.Is(err, store.ErrNotFound) || (err == nil && tok.Purpose != purpose) {
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	res.Outcome = TokenPending
	return res, nil
}

type redeemFunc func(tx store.Store, tok *models.ActionToken, asset *models.Asset, res *TokenResult, out *outbox) error

// redeem resolves a raw token and runs fn under the asset lock. Expected
// failures become outcomes; only infrastructure errors are returned.
func (s *Service) redeem(ctx context.Context, raw string, purpose models.TokenPurpose, fn redeemFunc) (*TokenResult, error) {
	res := &TokenResult{Purpose: purpose}
	if raw == "" {
		res.Outcome = TokenNotFound
		return res, nil
	}

	tok, err := s.store.Tokens().GetByHash(ctx, models.HashToken(raw))
	if errors.Is(err, store.ErrNotFound) || (err == nil && tok.Purpose != purpose) {
		res.Outcome = TokenNotFound
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	err = s.inAssetTx(ctx, tok.AssetID, func(tx store.Store, asset *models.Asset, out *outbox) error {
		if err := fn(tx, tok, asset, res, out); err != nil {
			return err
		}
		if err := tx.Tokens().Consume(ctx, tok.ID, s.now()); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})

	switch {
	case err == nil:
		res.Outcome = TokenSuccess
	case errors.Is(err, ErrAlreadyCompleted):
		res.Outcome = TokenAlreadyCompleted
	case errors.Is(err, ErrDeadlineExpired):
		res.Outcome = TokenDeadlinePassed
	case errors.Is(err, ErrNotFound):
		res.Outcome = TokenNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAssetAlreadyCommitted):
		res.Outcome = TokenInvalid
		res.Reason = err.Error()
	default:
		return nil, err
	}

	s.logger.Debug("token redeemed", "purpose", purpose, "asset_id", tok.AssetID, "outcome", res.Outcome)
	return res, nil
}

package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidAssetTransition is returned by Asset.Apply when the transition
// table does not allow the action from the current state.
var ErrInvalidAssetTransition = errors.New("invalid asset transition")

// BillToParty is the debtor of the underlying invoice. It is not necessarily
// a platform user and is read-only from the marketplace's point of view.
type BillToParty struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Asset is one invoice tokenized for factoring.
type Asset struct {
	ID               string           `json:"id"`
	SellerID         string           `json:"seller_id"`
	BillToParty      BillToParty      `json:"bill_to_party"`
	InvoiceNumber    string           `json:"invoice_number"`
	InvoiceDate      time.Time        `json:"invoice_date"`
	PaymentDate      time.Time        `json:"payment_date"`
	FaceValueInCents int64            `json:"face_value_in_cents"`
	TermMonths       int              `json:"term_months"`
	ProposedDiscount *decimal.Decimal `json:"proposed_discount,omitempty"` // percent, e.g. 5.5
	FeesInCents      int64            `json:"fees_in_cents"`
	State            AssetState       `json:"state"`
	FeeApprovedAt    *time.Time       `json:"fee_approved_at,omitempty"`
	ValidatedAt      *time.Time       `json:"validated_at,omitempty"`
	PostedAt         *time.Time       `json:"posted_at,omitempty"`
	CancelledAt      *time.Time       `json:"cancelled_at,omitempty"`
	Version          int              `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// FeeApprovedBySeller reports whether the seller approved the platform fee.
// Like the other flags it survives cancellation.
func (a *Asset) FeeApprovedBySeller() bool {
	return a.FeeApprovedAt != nil
}

// ValidatedByBillToParty reports whether the debtor confirmed the invoice.
func (a *Asset) ValidatedByBillToParty() bool {
	return a.ValidatedAt != nil
}

// IsPosted reports whether the asset is live in the marketplace.
func (a *Asset) IsPosted() bool {
	return a.State == AssetStatePosted
}

// IsCancelled reports whether the asset was withdrawn.
func (a *Asset) IsCancelled() bool {
	return a.State == AssetStateCancelled
}

// APY returns the annualized yield implied by the proposed discount, or nil
// when the seller did not propose one.
func (a *Asset) APY() *decimal.Decimal {
	if a.ProposedDiscount == nil || a.TermMonths <= 0 {
		return nil
	}
	apy := annualize(a.ProposedDiscount.Div(hundred), a.TermMonths).Mul(hundred)
	return &apy
}

// Apply moves the asset along the transition table and stamps the matching
// timestamp. It does not check who is asking; callers do.
func (a *Asset) Apply(action AssetAction, now time.Time) error {
	next, ok := a.State.Next(action)
	if !ok {
		return ErrInvalidAssetTransition
	}

	switch action {
	case AssetActionApproveFee:
		a.FeesInCents = ComputeFee(a.FaceValueInCents)
		a.FeeApprovedAt = &now
	case AssetActionValidate:
		a.ValidatedAt = &now
	case AssetActionPost:
		a.PostedAt = &now
	case AssetActionCancel:
		a.CancelledAt = &now
	}

	a.State = next
	a.UpdatedAt = now
	return nil
}

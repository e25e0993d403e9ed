package models

import (
	"errors"
	"fmt"
	"time"
)

// DefaultPaymentWindow is how long a buyer has to confirm payment after the
// seller accepts their bid.
const DefaultPaymentWindow = 24 * time.Hour

// ErrInvalidBidTransition is returned when a bid mutation is not allowed from
// its current state.
var ErrInvalidBidTransition = errors.New("invalid bid transition")

// BidState is the persisted lifecycle state of a bid. Overdue is never stored;
// see DeriveBidStatus.
type BidState string

const (
	BidStatePending          BidState = "pending"
	BidStateAccepted         BidState = "accepted"
	BidStateRejected         BidState = "rejected"
	BidStatePaymentConfirmed BidState = "payment_confirmed"
)

// IsValid returns true if the bid state is a known state.
func (s BidState) IsValid() bool {
	switch s {
	case BidStatePending, BidStateAccepted, BidStateRejected, BidStatePaymentConfirmed:
		return true
	default:
		return false
	}
}

// BidStatus is the read-time status of a bid at a given instant.
type BidStatus string

const (
	BidStatusPending          BidStatus = "pending"
	BidStatusAccepted         BidStatus = "accepted"
	BidStatusPaymentConfirmed BidStatus = "payment_confirmed"
	BidStatusOverdue          BidStatus = "overdue"
	BidStatusRejected         BidStatus = "rejected"
)

// NotificationFlag names one of the per-bid "already sent" markers used to
// make notification dispatch idempotent.
type NotificationFlag string

const (
	FlagBuyerAcceptanceNotified       NotificationFlag = "buyer_acceptance_notified"
	FlagSellerAcceptanceNotified      NotificationFlag = "seller_acceptance_notified"
	FlagPaymentConfirmationEmailSent  NotificationFlag = "payment_confirmation_email_sent"
	FlagSellerPaymentNotificationSent NotificationFlag = "seller_payment_notification_sent"
)

// IsValid returns true if the flag is a known marker.
func (f NotificationFlag) IsValid() bool {
	switch f {
	case FlagBuyerAcceptanceNotified, FlagSellerAcceptanceNotified,
		FlagPaymentConfirmationEmailSent, FlagSellerPaymentNotificationSent:
		return true
	default:
		return false
	}
}

// Bid is a buyer's offer on an asset. There is at most one per (asset, buyer).
type Bid struct {
	ID                string     `json:"id"`
	AssetID           string     `json:"asset_id"`
	BuyerID           string     `json:"buyer_id"`
	NumUnits          int64      `json:"num_units"`
	CentsPerUnit      int64      `json:"cents_per_unit"`
	State             BidState   `json:"state"`
	AcceptedAt        *time.Time `json:"accepted_at,omitempty"`
	PaymentDeadline   *time.Time `json:"payment_deadline,omitempty"`
	PaymentApprovedAt *time.Time `json:"payment_approved_at,omitempty"`
	RejectedAt        *time.Time `json:"rejected_at,omitempty"`

	BuyerAcceptanceNotified       bool `json:"-"`
	SellerAcceptanceNotified      bool `json:"-"`
	PaymentConfirmationEmailSent  bool `json:"-"`
	SellerPaymentNotificationSent bool `json:"-"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AmountCents returns the total offered in cents.
func (b *Bid) AmountCents() int64 {
	return BidAmountCents(b.NumUnits, b.CentsPerUnit)
}

// Accepted reports whether the seller accepted this bid. It stays true after
// the payment deadline passes.
func (b *Bid) Accepted() bool {
	return b.State == BidStateAccepted || b.State == BidStatePaymentConfirmed
}

// Rejected reports whether the seller rejected this bid.
func (b *Bid) Rejected() bool {
	return b.State == BidStateRejected
}

// PaymentApprovedByBuyer reports whether the buyer confirmed the transfer.
func (b *Bid) PaymentApprovedByBuyer() bool {
	return b.State == BidStatePaymentConfirmed
}

// IsMutable reports whether the buyer may still edit the bid.
func (b *Bid) IsMutable() bool {
	return b.State == BidStatePending
}

// Flag returns the current value of a notification marker.
func (b *Bid) Flag(f NotificationFlag) bool {
	switch f {
	case FlagBuyerAcceptanceNotified:
		return b.BuyerAcceptanceNotified
	case FlagSellerAcceptanceNotified:
		return b.SellerAcceptanceNotified
	case FlagPaymentConfirmationEmailSent:
		return b.PaymentConfirmationEmailSent
	case FlagSellerPaymentNotificationSent:
		return b.SellerPaymentNotificationSent
	default:
		return false
	}
}

// SetFlag sets a notification marker. Markers only go from false to true.
func (b *Bid) SetFlag(f NotificationFlag) {
	switch f {
	case FlagBuyerAcceptanceNotified:
		b.BuyerAcceptanceNotified = true
	case FlagSellerAcceptanceNotified:
		b.SellerAcceptanceNotified = true
	case FlagPaymentConfirmationEmailSent:
		b.PaymentConfirmationEmailSent = true
	case FlagSellerPaymentNotificationSent:
		b.SellerPaymentNotificationSent = true
	}
}

// Accept marks the bid accepted and starts the payment window.
func (b *Bid) Accept(now time.Time, window time.Duration) error {
	if b.State != BidStatePending {
		return fmt.Errorf("%w: cannot accept a %s bid", ErrInvalidBidTransition, b.State)
	}
	deadline := now.Add(window)
	b.State = BidStateAccepted
	b.AcceptedAt = &now
	b.PaymentDeadline = &deadline
	b.UpdatedAt = now
	return nil
}

// Reject marks a pending bid rejected.
func (b *Bid) Reject(now time.Time) error {
	if b.State != BidStatePending {
		return fmt.Errorf("%w: cannot reject a %s bid", ErrInvalidBidTransition, b.State)
	}
	b.State = BidStateRejected
	b.RejectedAt = &now
	b.UpdatedAt = now
	return nil
}

// CancelAcceptance reverts an unpaid accepted bid to pending. The acceptance
// notification markers are reset so a later acceptance is announced again.
func (b *Bid) CancelAcceptance(now time.Time) error {
	if b.State != BidStateAccepted {
		return fmt.Errorf("%w: cannot cancel acceptance of a %s bid", ErrInvalidBidTransition, b.State)
	}
	b.State = BidStatePending
	b.AcceptedAt = nil
	b.PaymentDeadline = nil
	b.BuyerAcceptanceNotified = false
	b.SellerAcceptanceNotified = false
	b.UpdatedAt = now
	return nil
}

// ConfirmPayment records the buyer's payment confirmation. The caller is
// responsible for the deadline check.
func (b *Bid) ConfirmPayment(now time.Time) error {
	if b.State != BidStateAccepted {
		return fmt.Errorf("%w: cannot confirm payment on a %s bid", ErrInvalidBidTransition, b.State)
	}
	b.State = BidStatePaymentConfirmed
	b.PaymentApprovedAt = &now
	b.UpdatedAt = now
	return nil
}

package models

import (
	"fmt"
	"time"
)

// DeriveBidStatus returns the status of b at instant now. Overdue is computed
// here on every read and never written.
func DeriveBidStatus(b *Bid, now time.Time) BidStatus {
	switch b.State {
	case BidStateRejected:
		return BidStatusRejected
	case BidStatePaymentConfirmed:
		return BidStatusPaymentConfirmed
	case BidStateAccepted:
		if b.PaymentDeadline != nil && now.After(*b.PaymentDeadline) {
			return BidStatusOverdue
		}
		return BidStatusAccepted
	default:
		return BidStatusPending
	}
}

// IsActiveAccepted reports whether b currently commits its asset: accepted and
// not overdue. A confirmed payment keeps the bid active for good.
func IsActiveAccepted(b *Bid, now time.Time) bool {
	if !b.Accepted() {
		return false
	}
	return DeriveBidStatus(b, now) != BidStatusOverdue
}

// ActiveAcceptedBid returns the bid currently committing the asset, or nil.
func ActiveAcceptedBid(bids []*Bid, now time.Time) *Bid {
	for _, b := range bids {
		if IsActiveAccepted(b, now) {
			return b
		}
	}
	return nil
}

// CanAcceptOtherBids reports whether the seller may accept a bid on an asset
// with the given bids. It is false only while some accepted bid is still
// inside its payment window or has been paid.
func CanAcceptOtherBids(bids []*Bid, now time.Time) bool {
	return ActiveAcceptedBid(bids, now) == nil
}

// RemainingSeconds returns the whole seconds left before the payment deadline,
// clamped at zero. Bids without a deadline have none left.
func RemainingSeconds(b *Bid, now time.Time) int64 {
	if b.PaymentDeadline == nil {
		return 0
	}
	left := b.PaymentDeadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int64(left / time.Second)
}

// FormatCountdown renders seconds as "Xh Ym Zs".
func FormatCountdown(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

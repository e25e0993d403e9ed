package models

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// bidOp is one step in a generated bid history.
type bidOp struct {
	Bid     int
	Kind    int // 0 accept, 1 reject, 2 cancel acceptance, 3 confirm payment
	Advance int // minutes to advance the clock before the step
}

func genBidOp(numBids int) gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, numBids-1),
		gen.IntRange(0, 3),
		gen.IntRange(0, 36*60),
	).Map(func(vals []interface{}) bidOp {
		return bidOp{Bid: vals[0].(int), Kind: vals[1].(int), Advance: vals[2].(int)}
	})
}

func pendingBids(n int) []*Bid {
	bids := make([]*Bid, n)
	for i := range bids {
		bids[i] = &Bid{
			ID:           string(rune('a' + i)),
			AssetID:      "asset-1",
			BuyerID:      string(rune('A' + i)),
			NumUnits:     1,
			CentsPerUnit: 900_000,
			State:        BidStatePending,
			CreatedAt:    baseTime,
		}
	}
	return bids
}

// applyBidOp applies op the way the marketplace service does: acceptance is
// gated on CanAcceptOtherBids and payment on the deadline.
func applyBidOp(bids []*Bid, op bidOp, now time.Time) {
	b := bids[op.Bid]
	switch op.Kind {
	case 0:
		if CanAcceptOtherBids(bids, now) {
			_ = b.Accept(now, DefaultPaymentWindow)
		}
	case 1:
		_ = b.Reject(now)
	case 2:
		if DeriveBidStatus(b, now) == BidStatusAccepted {
			_ = b.CancelAcceptance(now)
		}
	case 3:
		if DeriveBidStatus(b, now) == BidStatusAccepted {
			_ = b.ConfirmPayment(now)
		}
	}
}

func TestSingleActiveAcceptedBid(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("at most one active accepted bid at any instant", prop.ForAll(
		func(ops []bidOp) bool {
			bids := pendingBids(4)
			now := baseTime
			for _, op := range ops {
				now = now.Add(time.Duration(op.Advance) * time.Minute)
				applyBidOp(bids, op, now)

				active := 0
				for _, b := range bids {
					if b.Accepted() && DeriveBidStatus(b, now) != BidStatusOverdue {
						active++
					}
				}
				if active > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, genBidOp(4)),
	))

	properties.TestingRun(t)
}

func TestDeriveBidStatus(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("accepted bid is overdue exactly after its deadline", prop.ForAll(
		func(offsetSeconds int) bool {
			b := pendingBids(1)[0]
			_ = b.Accept(baseTime, DefaultPaymentWindow)
			now := b.PaymentDeadline.Add(time.Duration(offsetSeconds) * time.Second)
			status := DeriveBidStatus(b, now)
			if offsetSeconds > 0 {
				return status == BidStatusOverdue && CanAcceptOtherBids([]*Bid{b}, now)
			}
			return status == BidStatusAccepted && !CanAcceptOtherBids([]*Bid{b}, now)
		},
		gen.IntRange(-48*3600, 48*3600),
	))

	properties.Property("confirmed payment is never overdue", prop.ForAll(
		func(offsetSeconds int) bool {
			b := pendingBids(1)[0]
			_ = b.Accept(baseTime, DefaultPaymentWindow)
			_ = b.ConfirmPayment(baseTime.Add(time.Hour))
			now := baseTime.Add(time.Duration(offsetSeconds) * time.Second)
			return DeriveBidStatus(b, now) == BidStatusPaymentConfirmed && IsActiveAccepted(b, now)
		},
		gen.IntRange(0, 365*24*3600),
	))

	properties.Property("remaining seconds never negative and bounded by window", prop.ForAll(
		func(offsetSeconds int) bool {
			b := pendingBids(1)[0]
			_ = b.Accept(baseTime, DefaultPaymentWindow)
			rem := RemainingSeconds(b, baseTime.Add(time.Duration(offsetSeconds)*time.Second))
			return rem >= 0 && rem <= int64(DefaultPaymentWindow/time.Second)
		},
		gen.IntRange(0, 72*3600),
	))

	properties.TestingRun(t)
}

func TestDeriveBidStatusTable(t *testing.T) {
	deadline := baseTime.Add(DefaultPaymentWindow)
	tests := []struct {
		name string
		bid  Bid
		now  time.Time
		want BidStatus
	}{
		{"pending", Bid{State: BidStatePending}, baseTime, BidStatusPending},
		{"rejected", Bid{State: BidStateRejected}, baseTime, BidStatusRejected},
		{"accepted at deadline", Bid{State: BidStateAccepted, PaymentDeadline: &deadline}, deadline, BidStatusAccepted},
		{"accepted past deadline", Bid{State: BidStateAccepted, PaymentDeadline: &deadline}, deadline.Add(time.Second), BidStatusOverdue},
		{"paid after deadline", Bid{State: BidStatePaymentConfirmed, PaymentDeadline: &deadline}, deadline.Add(time.Hour), BidStatusPaymentConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveBidStatus(&tt.bid, tt.now); got != tt.want {
				t.Errorf("DeriveBidStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBidTransitions(t *testing.T) {
	b := pendingBids(1)[0]

	if err := b.ConfirmPayment(baseTime); err == nil {
		t.Fatal("expected confirm on pending bid to fail")
	}
	if err := b.Accept(baseTime, DefaultPaymentWindow); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !b.PaymentDeadline.Equal(baseTime.Add(24 * time.Hour)) {
		t.Errorf("deadline = %v, want acceptedAt + 24h", b.PaymentDeadline)
	}
	if err := b.Reject(baseTime); err == nil {
		t.Error("expected reject of accepted bid to fail")
	}

	b.SetFlag(FlagBuyerAcceptanceNotified)
	if err := b.CancelAcceptance(baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("cancel acceptance: %v", err)
	}
	if b.State != BidStatePending || b.PaymentDeadline != nil || b.Flag(FlagBuyerAcceptanceNotified) {
		t.Errorf("cancel acceptance did not reset bid: %+v", b)
	}
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{0, "0h 0m 0s"},
		{-5, "0h 0m 0s"},
		{59, "0h 0m 59s"},
		{3661, "1h 1m 1s"},
		{86400, "24h 0m 0s"},
	}
	for _, tt := range tests {
		if got := FormatCountdown(tt.secs); got != tt.want {
			t.Errorf("FormatCountdown(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

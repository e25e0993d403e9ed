package models

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func TestMoneyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("bid amount survives cents to decimal conversion", prop.ForAll(
		func(units, perUnit int64) bool {
			cents := BidAmountCents(units, perUnit)
			amount := CentsToDecimal(cents)
			return amount.Mul(hundred).Equal(decimal.NewFromInt(cents))
		},
		gen.Int64Range(1, 10_000),
		gen.Int64Range(1, 10_000_000),
	))

	properties.Property("overflow check agrees with exact multiplication", prop.ForAll(
		func(units, perUnit int64) bool {
			exact := decimal.NewFromInt(units).Mul(decimal.NewFromInt(perUnit))
			fits := exact.LessThanOrEqual(decimal.NewFromInt(MaxBidAmountCents))
			if BidAmountOverflows(units, perUnit) {
				return !fits
			}
			return fits && decimal.NewFromInt(BidAmountCents(units, perUnit)).Equal(exact)
		},
		gen.Int64Range(1, 1<<40),
		gen.Int64Range(1, 1<<40),
	))

	properties.Property("discount and price reconstruct face value", prop.ForAll(
		func(face, price int64) bool {
			d := Discount(face, price)
			// face * (1 - d) == price, exactly, when price divides evenly.
			back := decimal.NewFromInt(face).Mul(decimal.NewFromInt(1).Sub(d)).Round(0)
			return back.Equal(decimal.NewFromInt(price))
		},
		gen.Int64Range(1, 1_000_000_000),
		gen.Int64Range(0, 1_000_000_000),
	))

	properties.Property("fee is within half a cent of one percent", prop.ForAll(
		func(face int64) bool {
			fee := decimal.NewFromInt(ComputeFee(face))
			exact := decimal.NewFromInt(face).Mul(FeeRate)
			return fee.Sub(exact).Abs().LessThanOrEqual(decimal.RequireFromString("0.5"))
		},
		gen.Int64Range(1, 1_000_000_000_000),
	))

	properties.TestingRun(t)
}

func TestComputeFee(t *testing.T) {
	tests := []struct {
		face int64
		want int64
	}{
		{1_000_000, 10_000},
		{150, 2},
		{149, 1},
		{50, 1},
		{49, 0},
	}
	for _, tt := range tests {
		if got := ComputeFee(tt.face); got != tt.want {
			t.Errorf("ComputeFee(%d) = %d, want %d", tt.face, got, tt.want)
		}
	}
}

func TestAPY(t *testing.T) {
	// 10,000 face bought at 9,500 over 6 months: 5% discount, 10% APY.
	got := APY(1_000_000, 950_000, 6)
	if !got.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("APY = %s, want 0.1", got)
	}
	if !APY(1_000_000, 950_000, 0).IsZero() {
		t.Error("APY with zero term should be zero")
	}

	pct := decimal.RequireFromString("5")
	a := &Asset{TermMonths: 6, ProposedDiscount: &pct}
	if apy := a.APY(); apy == nil || !apy.Equal(decimal.NewFromInt(10)) {
		t.Errorf("asset APY = %v, want 10", apy)
	}
}

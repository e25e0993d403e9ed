package models

import (
	"math"

	"github.com/shopspring/decimal"
)

// MaxBidAmountCents is the largest bid total that int64 cents can carry.
const MaxBidAmountCents = math.MaxInt64

// FeeRate is the platform fee charged to sellers on face value.
var FeeRate = decimal.RequireFromString("0.01")

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// ComputeFee returns the platform fee for a face value, rounded half away
// from zero to whole cents.
func ComputeFee(faceValueInCents int64) int64 {
	return decimal.NewFromInt(faceValueInCents).Mul(FeeRate).Round(0).IntPart()
}

// BidAmountCents returns the total offered by a bid in cents. Callers must
// reject inputs for which BidAmountOverflows is true.
func BidAmountCents(numUnits, centsPerUnit int64) int64 {
	return numUnits * centsPerUnit
}

// BidAmountOverflows reports whether numUnits * centsPerUnit, both positive,
// exceeds MaxBidAmountCents.
func BidAmountOverflows(numUnits, centsPerUnit int64) bool {
	if numUnits <= 0 || centsPerUnit <= 0 {
		return false
	}
	return numUnits > MaxBidAmountCents/centsPerUnit
}

// CentsToDecimal converts integer cents to an exact currency amount.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Discount returns the fraction of face value given up at price. Both values
// are in cents. The result is a fraction, not a percentage.
func Discount(faceValueInCents, priceInCents int64) decimal.Decimal {
	if faceValueInCents <= 0 {
		return decimal.Zero
	}
	face := decimal.NewFromInt(faceValueInCents)
	return face.Sub(decimal.NewFromInt(priceInCents)).Div(face)
}

// APY returns the simple annualized yield, as a fraction, of buying at price
// an invoice of faceValue that pays in termMonths.
func APY(faceValueInCents, priceInCents int64, termMonths int) decimal.Decimal {
	if termMonths <= 0 {
		return decimal.Zero
	}
	return annualize(Discount(faceValueInCents, priceInCents), termMonths)
}

func annualize(discount decimal.Decimal, termMonths int) decimal.Decimal {
	return discount.Mul(twelve).Div(decimal.NewFromInt(int64(termMonths)))
}

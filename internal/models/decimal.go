package models

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// DivisionPrecision is the number of fractional digits kept by SafeDiv
const DivisionPrecision int32 = 34

var (
	// ZeroBD is the decimal zero
	ZeroBD = decimal.Zero
	// OneBD is the decimal one
	OneBD = decimal.NewFromInt(1)
	// TwoBD is the decimal two
	TwoBD = decimal.NewFromInt(2)
	// LPTokenDecimals is the decimal count of every pair's LP token
	LPTokenDecimals = 18
)

// ConvertTokenToDecimal scales a raw uint256 token amount by 10^decimals.
// A nil amount converts to zero.
func ConvertTokenToDecimal(amount *big.Int, decimals int) decimal.Decimal {
	if amount == nil {
		return ZeroBD
	}
	if decimals <= 0 {
		return decimal.NewFromBigInt(amount, 0)
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// SafeDiv returns a/b, or zero when b is zero
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return ZeroBD
	}
	return a.DivRound(b, DivisionPrecision)
}

// Priced wraps a computed derived price as a present optional value
func Priced(v decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: v, Valid: true}
}

// OrZero unwraps an optional derived price, treating "not yet priced" as zero
func OrZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return ZeroBD
	}
	return v.Decimal
}

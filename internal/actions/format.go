package actions

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
	hundred  = decimal.NewFromInt(100)
)

// Fixed-point scales are applied as exponents, never by division, so a
// value just under a tier boundary is not rounded up into it.
const (
	wadDecimals = 18
	apyDecimals = 16
)

// FormatCompact renders raw as "x.xxM" from one million, "x.xxK" from one
// thousand, and the plain integer otherwise.
func FormatCompact(raw *big.Int) string {
	v := decimal.NewFromBigInt(orZero(raw), 0)
	switch {
	case v.GreaterThanOrEqual(million):
		return v.Shift(-6).StringFixed(2) + "M"
	case v.GreaterThanOrEqual(thousand):
		return v.Shift(-3).StringFixed(2) + "K"
	default:
		return v.String()
	}
}

// FormatAPY converts an on-chain APY fraction scaled by 1e18 to a percentage.
func FormatAPY(raw *big.Int) string {
	return decimal.NewFromBigInt(orZero(raw), -apyDecimals).StringFixed(2) + "%"
}

// UtilizationRate is borrowed/supplied as a percentage, "0%" when nothing is supplied.
func UtilizationRate(supplied, borrowed *big.Int) string {
	if orZero(supplied).Sign() == 0 {
		return "0%"
	}
	s := decimal.NewFromBigInt(supplied, 0)
	b := decimal.NewFromBigInt(orZero(borrowed), 0)
	return b.Mul(hundred).DivRound(s, 2).StringFixed(2) + "%"
}

// FormatHealth renders a 1e18-scaled health factor with two decimals.
func FormatHealth(raw *big.Int) string {
	return decimal.NewFromBigInt(orZero(raw), -wadDecimals).StringFixed(2)
}

var healthTiers = []struct {
	min    decimal.Decimal
	status string
	risk   string
}{
	{decimal.NewFromInt(2), "Excellent", "Very Low"},
	{decimal.RequireFromString("1.5"), "Strong", "Low"},
	{decimal.RequireFromString("1.2"), "Good", "Moderate"},
	{decimal.RequireFromString("1.1"), "Moderate", "High"},
	{decimal.NewFromInt(1), "Caution", "High"},
}

// HealthBucket classifies a 1e18-scaled health factor.
func HealthBucket(raw *big.Int) (status, risk string) {
	h := decimal.NewFromBigInt(orZero(raw), -wadDecimals)
	for _, tier := range healthTiers {
		if h.GreaterThanOrEqual(tier.min) {
			return tier.status, tier.risk
		}
	}
	return "At Risk", "Very High"
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

package id

import (
	"fmt"
	"math/big"
	"strings"

	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/shopspring/decimal"
)

// DefaultDecimals applies when a token carries no registry override.
const DefaultDecimals = 18

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// maxUint256Digits is the decimal length of 2^256-1.
const maxUint256Digits = 78

// normalizeExponentLimit bounds the exponents NormalizeDecimal will expand.
const normalizeExponentLimit = 1000

// ScaleAmount converts a human decimal amount into integer base units,
// rounding half away from zero at the token precision.
func ScaleAmount(human string, decimals int) (*big.Int, error) {
	if decimals < 0 || decimals > 77 {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("unsupported token decimals %d", decimals))
	}
	raw := strings.TrimSpace(human)
	if raw == "" {
		return nil, clierr.New(clierr.CodeInvalidAmount, "amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInvalidAmount, fmt.Sprintf("amount %q is not numeric", human), err)
	}
	if d.IsNegative() {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("amount %q must be non-negative", human))
	}
	if d.IsZero() {
		return new(big.Int), nil
	}
	// Integer digits of the scaled value, from the coefficient and exponent
	// alone, so extreme exponents never materialize a power of ten.
	magnitude := int64(len(d.Coefficient().String())) + int64(d.Exponent()) + int64(decimals)
	if magnitude > maxUint256Digits {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("amount %q overflows uint256", human))
	}
	if magnitude < 0 {
		// Below 0.1 base units.
		return new(big.Int), nil
	}
	out := d.Shift(int32(decimals)).Round(0).BigInt()
	if out.Cmp(maxUint256) > 0 {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("amount %q overflows uint256", human))
	}
	return out, nil
}

// DisplayAmount renders base units as a decimal string without trailing zeros.
func DisplayAmount(base *big.Int, decimals int) string {
	if base == nil {
		return "0"
	}
	return decimal.NewFromBigInt(base, -int32(decimals)).String()
}

// ParseBaseUnits parses an already-scaled non-negative integer that must fit uint256.
func ParseBaseUnits(raw, field string) (*big.Int, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("%s is required", field))
	}
	v, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("%s must be an integer in base units", field))
	}
	if v.Sign() < 0 {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("%s must be non-negative", field))
	}
	if v.Cmp(maxUint256) > 0 {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("%s overflows uint256", field))
	}
	return v, nil
}

// NormalizeDecimal trims redundant zeros so equal amounts compare equal as strings.
func NormalizeDecimal(v string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil || d.Exponent() > normalizeExponentLimit || d.Exponent() < -normalizeExponentLimit {
		return strings.TrimSpace(v)
	}
	return d.String()
}

package utils

import "math/big"

// MulDiv returns floor(a * b / den). den must be non-zero. All engine
// arithmetic goes through floor division; no floating point anywhere.
func MulDiv(a, b, den *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

// MulDivUint is MulDiv with uint64 multiplier and denominator, the common
// basis-points case.
func MulDivUint(a *big.Int, b, den uint64) *big.Int {
	out := new(big.Int).Mul(a, new(big.Int).SetUint64(b))
	return out.Quo(out, new(big.Int).SetUint64(den))
}

// ParseAmount parses a base-10 unsigned integer amount string. Returns nil
// for empty, malformed, or negative input.
func ParseAmount(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil
	}
	return v
}

// AmountString renders an amount for storage and JSON. nil renders as "0";
// amounts are stored as strings because they exceed int64 at 18 decimals.
func AmountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

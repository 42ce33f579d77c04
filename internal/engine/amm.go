package engine

import (
	"fmt"
	"math/big"
	"strings"

	"go-ledger/internal/utils"
)

// PriceScale is the fixed-point scale for quoted mid-prices (1e8, the e8s
// token convention).
var PriceScale = new(big.Int).SetUint64(100_000_000)

// Pair is a canonical ordered token pair. Pools and oracle prices are keyed
// by the canonical "BASE/QUOTE" form instead of the free-form strings the
// price-feed lookup used to scan.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// NewPair validates and normalizes two token symbols into a Pair.
func NewPair(base, quote string) (Pair, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return Pair{}, ErrInvalidToken
	}
	if base == quote {
		return Pair{}, ErrIdenticalTokens
	}
	return Pair{Base: base, Quote: quote}, nil
}

// ParsePair parses the canonical "BASE/QUOTE" form.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return Pair{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}
	return NewPair(parts[0], parts[1])
}

// String returns the canonical pool key.
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// SwapQuote is the result of pricing a trade against a pool without
// executing it.
type SwapQuote struct {
	AmountIn       *big.Int
	AmountInNet    *big.Int
	AmountOut      *big.Int
	Fee            *big.Int
	PriceImpactBps uint64
}

// QuoteSwap prices amountIn against a constant-product pool with reserveIn /
// reserveOut and feeBps fee. Quoting is pure: reserves are read, never
// written.
//
//	fee = floor(amountIn * feeBps / 10000)
//	out = floor(reserveOut * (amountIn-fee) / (reserveIn + (amountIn-fee)))
//
// The formula guarantees out < reserveOut strictly, so a pool can never be
// drained by a swap.
func QuoteSwap(reserveIn, reserveOut, amountIn *big.Int, feeBps uint64) (*SwapQuote, error) {
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrZeroReserves
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientDeposit
	}

	fee := utils.MulDivUint(amountIn, feeBps, BasisPoints)
	netIn := new(big.Int).Sub(amountIn, fee)
	if netIn.Sign() <= 0 {
		return nil, ErrInsufficientDeposit
	}

	denom := new(big.Int).Add(reserveIn, netIn)
	out := utils.MulDiv(reserveOut, netIn, denom)

	return &SwapQuote{
		AmountIn:       new(big.Int).Set(amountIn),
		AmountInNet:    netIn,
		AmountOut:      out,
		Fee:            fee,
		PriceImpactBps: priceImpactBps(reserveIn, reserveOut, amountIn, out),
	}, nil
}

// priceImpactBps is the relative mid-price change of the hypothetical trade,
// in basis points, integer arithmetic only. With mid = reserveOut/reserveIn
// before and after (fee retained inside reserveIn):
//
//	impact = floor((rOut*rIn' - rOut'*rIn) * 10000 / (rOut * rIn'))
func priceImpactBps(reserveIn, reserveOut, amountIn, amountOut *big.Int) uint64 {
	newIn := new(big.Int).Add(reserveIn, amountIn)
	newOut := new(big.Int).Sub(reserveOut, amountOut)

	num := new(big.Int).Mul(reserveOut, newIn)
	num.Sub(num, new(big.Int).Mul(newOut, reserveIn))
	if num.Sign() <= 0 {
		return 0
	}
	num.Mul(num, big.NewInt(BasisPoints))
	den := new(big.Int).Mul(reserveOut, newIn)
	num.Quo(num, den)
	if !num.IsUint64() {
		return BasisPoints
	}
	return num.Uint64()
}

// MidPrice is reserveOut/reserveIn at PriceScale fixed point.
func MidPrice(reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrZeroReserves
	}
	return utils.MulDiv(reserveOut, PriceScale, reserveIn), nil
}

// Venue identifies one of the two compared AMM venues.
type Venue string

const (
	VenueA Venue = "A"
	VenueB Venue = "B"
)

// SelectVenue picks the cheaper of two venue prices subject to a market-price
// ceiling from the oracle. Pure and total: no transfer is attempted before
// this decision, and it never mutates anything.
func SelectVenue(priceA, priceB, marketPrice *big.Int) (Venue, *big.Int, error) {
	venue, best := VenueA, priceA
	if priceB.Cmp(priceA) < 0 {
		venue, best = VenueB, priceB
	}
	if marketPrice != nil && best.Cmp(marketPrice) > 0 {
		return "", nil, ErrAboveMarketAverage
	}
	return venue, new(big.Int).Set(best), nil
}

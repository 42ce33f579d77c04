// Package engine holds the pure ledger arithmetic: reward accrual, restake
// compounding, constant-product quoting and venue selection. Everything here
// is integer math on big.Int with floor division; no I/O, no clocks.
package engine

import "errors"

// Sentinel errors of the engine and the services built on it. Handlers branch
// with errors.Is and map each to a stable code via Code.
var (
	ErrInsufficientDeposit  = errors.New("deposit amount must be positive")
	ErrInsufficientWithdraw = errors.New("withdraw amount must be positive")
	ErrAlreadyStaking       = errors.New("account already has an active stake")
	ErrNotStaking           = errors.New("account has no active stake")
	ErrMinimumPeriodNotMet  = errors.New("minimum staking period not met")
	ErrInsufficientBalance  = errors.New("withdraw amount exceeds staked balance")
	ErrMaxRestakesReached   = errors.New("maximum restake count reached")
	ErrRestakeNotAvailable  = errors.New("restake not available before minimum period")
	ErrRateTooHigh          = errors.New("reward rate exceeds ceiling")
	ErrPoolNotFound         = errors.New("pool not found")
	ErrSlippageExceeded     = errors.New("output below slippage minimum")
	ErrAboveMarketAverage   = errors.New("best venue price above market average")
	ErrZeroReserves         = errors.New("pool reserves must be positive")
	ErrIdenticalTokens      = errors.New("pair tokens must differ")
	ErrInvalidToken         = errors.New("invalid token symbol")

	// ErrLedgerTransfer wraps failures reported by the external Ledger. The
	// staged state of the failing operation is discarded, never committed.
	ErrLedgerTransfer = errors.New("ledger transfer failed")
)

var errorCodes = map[error]string{
	ErrInsufficientDeposit:  "INSUFFICIENT_DEPOSIT",
	ErrInsufficientWithdraw: "INSUFFICIENT_WITHDRAW",
	ErrAlreadyStaking:       "ALREADY_STAKING",
	ErrNotStaking:           "NOT_STAKING",
	ErrMinimumPeriodNotMet:  "MINIMUM_PERIOD_NOT_MET",
	ErrInsufficientBalance:  "INSUFFICIENT_BALANCE",
	ErrMaxRestakesReached:   "MAX_RESTAKES_REACHED",
	ErrRestakeNotAvailable:  "RESTAKE_NOT_AVAILABLE",
	ErrRateTooHigh:          "RATE_TOO_HIGH",
	ErrPoolNotFound:         "POOL_NOT_FOUND",
	ErrSlippageExceeded:     "SLIPPAGE_EXCEEDED",
	ErrAboveMarketAverage:   "ABOVE_MARKET_AVERAGE",
	ErrZeroReserves:         "ZERO_RESERVES",
	ErrIdenticalTokens:      "IDENTICAL_TOKENS",
	ErrInvalidToken:         "INVALID_TOKEN",
	ErrLedgerTransfer:       "LEDGER_TRANSFER_FAILED",
}

// Code returns the stable API code for err, or "INTERNAL" when err is not one
// of the sentinels above.
func Code(err error) string {
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "INTERNAL"
}

// IsValidation reports whether err is a caller mistake (bad input or
// unsatisfied precondition) as opposed to a ledger or internal failure.
func IsValidation(err error) bool {
	if err == nil || errors.Is(err, ErrLedgerTransfer) {
		return false
	}
	return Code(err) != "INTERNAL"
}

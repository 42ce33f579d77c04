package engine

import (
	"math/big"

	"go-ledger/internal/utils"
)

const (
	// BasisPoints is the denominator for all bps-scaled parameters.
	BasisPoints = 10000

	// SecondsPerYear is the annualization constant for reward proration.
	SecondsPerYear = 365 * 86400
)

var rewardDenominator = new(big.Int).SetUint64(BasisPoints * SecondsPerYear)

// PendingReward computes the time-prorated yield on amount at rateBps over
// elapsed seconds:
//
//	floor(amount * rateBps * elapsed / (10000 * 31536000))
//
// A negative elapsed (clock skew between checkpoint and now) yields zero —
// skew is a recoverable no-reward case, never an underflow.
func PendingReward(amount *big.Int, rateBps uint64, elapsed int64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || rateBps == 0 || elapsed <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(rateBps))
	out.Mul(out, big.NewInt(elapsed))
	return out.Quo(out, rewardDenominator)
}

// RestakeAccrualBonus is the bonus folded into ongoing accrual for a position
// that has restaked restakeCount times:
//
//	floor(reward * bonusBps * restakeCount / 10000)
//
// Scaled by the current count, unlike RestakeStepBonus. The two formulas are
// intentionally asymmetric and must not be unified.
func RestakeAccrualBonus(reward *big.Int, bonusBps uint64, restakeCount uint32) *big.Int {
	if reward == nil || reward.Sign() <= 0 || bonusBps == 0 || restakeCount == 0 {
		return new(big.Int)
	}
	return utils.MulDivUint(reward, bonusBps*uint64(restakeCount), BasisPoints)
}

// RestakeStepBonus is the principal-proportional bonus granted by the restake
// operation itself, scaled by the index of the restake being performed:
//
//	floor(principal * bonusBps * (restakeCount+1) / 10000)
func RestakeStepBonus(principal *big.Int, bonusBps uint64, restakeCount uint32) *big.Int {
	if principal == nil || principal.Sign() <= 0 || bonusBps == 0 {
		return new(big.Int)
	}
	return utils.MulDivUint(principal, bonusBps*uint64(restakeCount+1), BasisPoints)
}

// AccruedReward is PendingReward plus the ongoing restake bonus — the total a
// restaking position is owed as of now.
func AccruedReward(amount *big.Int, rateBps uint64, elapsed int64, bonusBps uint64, restakeCount uint32) *big.Int {
	reward := PendingReward(amount, rateBps, elapsed)
	if restakeCount > 0 {
		reward.Add(reward, RestakeAccrualBonus(reward, bonusBps, restakeCount))
	}
	return reward
}

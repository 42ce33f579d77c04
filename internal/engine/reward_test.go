package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func e18(n int64) *big.Int {
	out := big.NewInt(n)
	return out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestPendingRewardFullYear(t *testing.T) {
	// 100 tokens at 5% APY over exactly one year pays exactly 5 tokens.
	reward := PendingReward(e18(100), 500, SecondsPerYear)
	assert.Equal(t, e18(5), reward)
}

func TestPendingRewardProration(t *testing.T) {
	amount := e18(100)

	// Half a year pays exactly half.
	half := PendingReward(amount, 500, SecondsPerYear/2)
	assert.Equal(t, e18(5).Div(e18(5), big.NewInt(2)), half)

	// One second on a small stake floors to zero, never rounds up.
	dust := PendingReward(big.NewInt(1000), 500, 1)
	assert.Zero(t, dust.Sign())
}

func TestPendingRewardExactFloor(t *testing.T) {
	// floor(amount * rate * elapsed / (10000 * 31536000)) verified against
	// independent big.Int arithmetic.
	amount, _ := new(big.Int).SetString("123456789012345678901", 10)
	rate := uint64(777)
	elapsed := int64(1234567)

	expected := new(big.Int).Mul(amount, new(big.Int).SetUint64(rate))
	expected.Mul(expected, big.NewInt(elapsed))
	expected.Quo(expected, new(big.Int).SetUint64(10000*31536000))

	assert.Equal(t, expected, PendingReward(amount, rate, elapsed))
}

func TestPendingRewardDegenerateInputs(t *testing.T) {
	assert.Zero(t, PendingReward(nil, 500, 1000).Sign())
	assert.Zero(t, PendingReward(big.NewInt(0), 500, 1000).Sign())
	assert.Zero(t, PendingReward(e18(100), 0, 1000).Sign())
	assert.Zero(t, PendingReward(e18(100), 500, 0).Sign())

	// Clock skew: a checkpoint ahead of now yields zero, not a panic or a
	// negative reward.
	assert.Zero(t, PendingReward(e18(100), 500, -60).Sign())
}

func TestRestakeAccrualBonus(t *testing.T) {
	reward := e18(10)

	// Scaled by the current restake count.
	assert.Zero(t, RestakeAccrualBonus(reward, 50, 0).Sign())

	one := RestakeAccrualBonus(reward, 50, 1)
	expected := new(big.Int).Mul(reward, big.NewInt(50))
	expected.Quo(expected, big.NewInt(BasisPoints))
	assert.Equal(t, expected, one)

	three := RestakeAccrualBonus(reward, 50, 3)
	assert.Equal(t, new(big.Int).Mul(one, big.NewInt(3)), three)
}

func TestRestakeStepBonus(t *testing.T) {
	principal := e18(1000)

	// Scaled by count+1: the first restake already pays a bonus.
	first := RestakeStepBonus(principal, 50, 0)
	expected := new(big.Int).Mul(principal, big.NewInt(50))
	expected.Quo(expected, big.NewInt(BasisPoints))
	assert.Equal(t, expected, first)

	second := RestakeStepBonus(principal, 50, 1)
	assert.Equal(t, new(big.Int).Mul(first, big.NewInt(2)), second)

	assert.Zero(t, RestakeStepBonus(principal, 0, 5).Sign())
	assert.Zero(t, RestakeStepBonus(nil, 50, 5).Sign())
}

func TestAccruedRewardCombinesBonus(t *testing.T) {
	amount := e18(100)
	elapsed := int64(SecondsPerYear)

	base := PendingReward(amount, 500, elapsed)
	require.Positive(t, base.Sign())

	// No restakes: accrued equals base.
	assert.Equal(t, base, AccruedReward(amount, 500, elapsed, 50, 0))

	// Two restakes: base plus floor(base * 50 * 2 / 10000).
	bonus := RestakeAccrualBonus(base, 50, 2)
	expected := new(big.Int).Add(base, bonus)
	assert.Equal(t, expected, AccruedReward(amount, 500, elapsed, 50, 2))
}

func TestRewardDeterminism(t *testing.T) {
	// Same inputs always produce byte-identical outputs.
	for i := 0; i < 10; i++ {
		a := AccruedReward(e18(12345), 777, 999999, 50, 3)
		b := AccruedReward(e18(12345), 777, 999999, 50, 3)
		assert.Equal(t, a, b)
	}
}

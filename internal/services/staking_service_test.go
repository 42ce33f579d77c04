package services

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ledger/internal/config"
	"go-ledger/internal/engine"
	"go-ledger/internal/ledger"
)

var (
	vaultAddr = common.HexToAddress("0x0000000000000000000000000000000000000A11")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func e18(n int64) *big.Int {
	out := big.NewInt(n)
	return out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type stakingFixture struct {
	service *StakingService
	ledger  *ledger.InMemoryLedger
	clock   *ledger.ManualClock
	policy  *PolicyService
}

func newStakingFixture(t *testing.T, policyCfg config.PolicyConfig, transferFeeBps uint64) *stakingFixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	tokenLedger := ledger.NewInMemoryLedger(transferFeeBps)
	// Vault holds the reward budget.
	tokenLedger.Mint(vaultAddr, e18(1_000_000))

	policy := NewPolicyService(policyCfg, nil, nil, logger)
	service := NewStakingService(policy, tokenLedger, clock, vaultAddr, nil, nil, nil, logger)
	return &stakingFixture{service: service, ledger: tokenLedger, clock: clock, policy: policy}
}

func (f *stakingFixture) balance(t *testing.T, account common.Address) *big.Int {
	t.Helper()
	bal, err := f.ledger.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return bal
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()
	f.ledger.Mint(alice, e18(100))

	dep, err := f.service.Deposit(ctx, alice, alice, e18(100))
	require.NoError(t, err)
	assert.Equal(t, e18(100).String(), dep.AmountReceived)
	assert.Zero(t, f.balance(t, alice).Sign())

	// One second past the minimum period.
	elapsed := int64(30*86400 + 1)
	f.clock.Advance(time.Duration(elapsed) * time.Second)

	expectedReward := engine.PendingReward(e18(100), 500, elapsed)
	require.Positive(t, expectedReward.Sign())

	res, err := f.service.Withdraw(ctx, alice, alice, e18(100))
	require.NoError(t, err)
	assert.Equal(t, expectedReward.String(), res.RewardPaid)
	assert.True(t, res.Closed)
	assert.Equal(t, "0", res.Remaining)

	// Alice holds principal plus the exact prorated reward.
	want := new(big.Int).Add(e18(100), expectedReward)
	assert.Equal(t, want, f.balance(t, alice))

	info := f.service.GetStakeInfo(alice)
	assert.False(t, info.IsStaking)
	assert.Equal(t, "0", info.Amount)
}

func TestPartialWithdrawKeepsPositionOpen(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()
	f.ledger.Mint(alice, e18(100))

	_, err := f.service.Deposit(ctx, alice, alice, e18(100))
	require.NoError(t, err)
	f.clock.Advance(31 * 24 * time.Hour)

	res, err := f.service.Withdraw(ctx, alice, alice, e18(40))
	require.NoError(t, err)
	assert.False(t, res.Closed)
	assert.Equal(t, e18(60).String(), res.Remaining)

	info := f.service.GetStakeInfo(alice)
	assert.True(t, info.IsStaking)
	assert.Equal(t, e18(60).String(), info.Amount)
}

func TestWithdrawValidationOrder(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()

	// Amount check precedes every state check.
	_, err := f.service.Withdraw(ctx, alice, alice, big.NewInt(0))
	assert.ErrorIs(t, err, engine.ErrInsufficientWithdraw)

	_, err = f.service.Withdraw(ctx, alice, alice, e18(1))
	assert.ErrorIs(t, err, engine.ErrNotStaking)

	f.ledger.Mint(alice, e18(100))
	_, err = f.service.Deposit(ctx, alice, alice, e18(100))
	require.NoError(t, err)

	// Over-withdraw reports the balance problem even while the minimum
	// period is also unmet.
	_, err = f.service.Withdraw(ctx, alice, alice, e18(101))
	assert.ErrorIs(t, err, engine.ErrInsufficientBalance)

	_, err = f.service.Withdraw(ctx, alice, alice, e18(100))
	assert.ErrorIs(t, err, engine.ErrMinimumPeriodNotMet)
}

func TestDepositValidation(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()

	_, err := f.service.Deposit(ctx, alice, alice, big.NewInt(0))
	assert.ErrorIs(t, err, engine.ErrInsufficientDeposit)

	_, err = f.service.Deposit(ctx, alice, alice, nil)
	assert.ErrorIs(t, err, engine.ErrInsufficientDeposit)
}

func TestDepositForOtherAccount(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()
	f.ledger.Mint(alice, e18(200))

	// Funding someone else's fresh position is allowed.
	_, err := f.service.Deposit(ctx, alice, bob, e18(100))
	require.NoError(t, err)
	assert.True(t, f.service.GetStakeInfo(bob).IsStaking)

	// Topping up someone else's active position is not.
	_, err = f.service.Deposit(ctx, alice, bob, e18(100))
	assert.ErrorIs(t, err, engine.ErrAlreadyStaking)
}

func TestSelfRedepositSettlesRewards(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()
	f.ledger.Mint(alice, e18(200))

	_, err := f.service.Deposit(ctx, alice, alice, e18(100))
	require.NoError(t, err)

	elapsed := int64(10 * 86400)
	f.clock.Advance(time.Duration(elapsed) * time.Second)
	expectedReward := engine.PendingReward(e18(100), 500, elapsed)
	require.Positive(t, expectedReward.Sign())

	dep, err := f.service.Deposit(ctx, alice, alice, e18(100))
	require.NoError(t, err)
	assert.Equal(t, expectedReward.String(), dep.RewardPaid)

	// The new position replaces the old one; start time resets.
	info := f.service.GetStakeInfo(alice)
	assert.Equal(t, e18(100).String(), info.Amount)
	assert.Equal(t, f.clock.Now().Unix(), info.StartTime)

	// Alice got the settled reward back on the ledger.
	assert.Equal(t, expectedReward, f.balance(t, alice))
}

func TestDepositRecordsActualReceived(t *testing.T) {
	// 100 bps fee-on-transfer: the position records what the vault received,
	// not the nominal amount.
	f := newStakingFixture(t, config.DefaultPolicy(), 100)
	ctx := context.Background()
	f.ledger.Mint(alice, big.NewInt(10000))

	dep, err := f.service.Deposit(ctx, alice, alice, big.NewInt(10000))
	require.NoError(t, err)
	assert.Equal(t, "9900", dep.AmountReceived)
	assert.Equal(t, "9900", f.service.GetStakeInfo(alice).Amount)
}

func TestClaimRewardsAdvancesCheckpoint(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()
	f.ledger.Mint(alice, e18(100))

	_, err := f.service.Deposit(ctx, alice, alice, e18(100))
	require.NoError(t, err)

	elapsed := int64(100 * 86400)
	f.clock.Advance(time.Duration(elapsed) * time.Second)
	expected := engine.PendingReward(e18(100), 500, elapsed)

	paid, err := f.service.ClaimRewards(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, expected, paid)

	// Immediately claiming again pays nothing.
	paid, err = f.service.ClaimRewards(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, paid.Sign())
}

func TestClaimRollbackOnLedgerFailure(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()
	f.ledger.Mint(alice, e18(100))

	_, err := f.service.Deposit(ctx, alice, alice, e18(100))
	require.NoError(t, err)

	elapsed := int64(100 * 86400)
	f.clock.Advance(time.Duration(elapsed) * time.Second)
	expected := engine.PendingReward(e18(100), 500, elapsed)
	require.Positive(t, expected.Sign())

	f.ledger.FailNextTransfer(errors.New("rpc timeout"))
	_, err = f.service.ClaimRewards(ctx, alice)
	assert.ErrorIs(t, err, engine.ErrLedgerTransfer)

	// The checkpoint did not advance: a retry pays the full reward.
	paid, err := f.service.ClaimRewards(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, expected, paid)
}

func TestWithdrawRollbackOnPrincipalFailure(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()
	f.ledger.Mint(alice, e18(100))

	_, err := f.service.Deposit(ctx, alice, alice, e18(100))
	require.NoError(t, err)
	f.clock.Advance(31 * 24 * time.Hour)

	// Settle rewards first so the pending reward is zero and the principal
	// transfer is the next ledger call.
	_, err = f.service.ClaimRewards(ctx, alice)
	require.NoError(t, err)

	f.ledger.FailNextTransfer(errors.New("rpc timeout"))
	_, err = f.service.Withdraw(ctx, alice, alice, e18(100))
	assert.ErrorIs(t, err, engine.ErrLedgerTransfer)

	info := f.service.GetStakeInfo(alice)
	assert.True(t, info.IsStaking)
	assert.Equal(t, e18(100).String(), info.Amount)

	// Retry succeeds.
	res, err := f.service.Withdraw(ctx, alice, alice, e18(100))
	require.NoError(t, err)
	assert.True(t, res.Closed)
}

func TestRestakeCompounds(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()
	f.ledger.Mint(alice, e18(100))

	_, err := f.service.Deposit(ctx, alice, alice, e18(100))
	require.NoError(t, err)

	elapsed := int64(31 * 86400)
	f.clock.Advance(time.Duration(elapsed) * time.Second)

	reward := engine.AccruedReward(e18(100), 500, elapsed, 50, 0)
	bonus := engine.RestakeStepBonus(e18(100), 50, 0)
	expectedAmount := new(big.Int).Add(e18(100), new(big.Int).Add(reward, bonus))

	res, err := f.service.Restake(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, reward.String(), res.Reward)
	assert.Equal(t, bonus.String(), res.Bonus)
	assert.Equal(t, expectedAmount.String(), res.NewAmount)
	assert.Equal(t, uint32(1), res.RestakeCount)

	// Compounding is internal: no ledger movement.
	assert.Zero(t, f.balance(t, alice).Sign())

	// Start time reset: withdrawing right after a restake is too early.
	_, err = f.service.Withdraw(ctx, alice, alice, e18(1))
	assert.ErrorIs(t, err, engine.ErrMinimumPeriodNotMet)
}

func TestRestakeGuards(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.MaxRestakes = 1
	f := newStakingFixture(t, policy, 0)
	ctx := context.Background()
	f.ledger.Mint(alice, e18(100))

	_, err := f.service.Restake(ctx, alice)
	assert.ErrorIs(t, err, engine.ErrNotStaking)

	_, err = f.service.Deposit(ctx, alice, alice, e18(100))
	require.NoError(t, err)

	// Before the minimum period restake is unavailable.
	_, err = f.service.Restake(ctx, alice)
	assert.ErrorIs(t, err, engine.ErrRestakeNotAvailable)

	f.clock.Advance(31 * 24 * time.Hour)
	_, err = f.service.Restake(ctx, alice)
	require.NoError(t, err)

	// The cap check fires before the period check.
	f.clock.Advance(31 * 24 * time.Hour)
	_, err = f.service.Restake(ctx, alice)
	assert.ErrorIs(t, err, engine.ErrMaxRestakesReached)
}

func TestRestakeReplayDeterminism(t *testing.T) {
	// Two engines fed the identical operation sequence end in the identical
	// state.
	run := func() *StakeInfo {
		f := newStakingFixture(t, config.DefaultPolicy(), 0)
		ctx := context.Background()
		f.ledger.Mint(alice, e18(777))
		_, err := f.service.Deposit(ctx, alice, alice, e18(777))
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			f.clock.Advance(31 * 24 * time.Hour)
			_, err = f.service.Restake(ctx, alice)
			require.NoError(t, err)
		}
		return f.service.GetStakeInfo(alice)
	}

	a, b := run(), run()
	assert.Equal(t, a.Amount, b.Amount)
	assert.Equal(t, a.TotalRestaked, b.TotalRestaked)
	assert.Equal(t, a.RestakeCount, b.RestakeCount)
}

func TestSetRewardRateCeiling(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()

	err := f.policy.SetRewardRate(ctx, 1001, "admin")
	assert.ErrorIs(t, err, engine.ErrRateTooHigh)
	assert.Equal(t, uint64(500), f.policy.Snapshot().RewardRateBps)

	require.NoError(t, f.policy.SetRewardRate(ctx, 1000, "admin"))
	assert.Equal(t, uint64(1000), f.policy.Snapshot().RewardRateBps)
}

func TestRateChangeAppliesToSubsequentAccrual(t *testing.T) {
	f := newStakingFixture(t, config.DefaultPolicy(), 0)
	ctx := context.Background()
	f.ledger.Mint(alice, e18(100))

	_, err := f.service.Deposit(ctx, alice, alice, e18(100))
	require.NoError(t, err)

	f.clock.Advance(10 * 86400 * time.Second)
	first, err := f.service.ClaimRewards(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, engine.PendingReward(e18(100), 500, 10*86400), first)

	require.NoError(t, f.policy.SetRewardRate(ctx, 1000, "admin"))

	f.clock.Advance(10 * 86400 * time.Second)
	second, err := f.service.ClaimRewards(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, engine.PendingReward(e18(100), 1000, 10*86400), second)
}

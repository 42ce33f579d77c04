package services

import (
	"context"
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

var poolVault = common.HexToAddress("0x0000000000000000000000000000000000000B22")

type swapFixture struct {
	service *SwapService
	ledger  *ledger.InMemoryLedger
	oracle  *ledger.StaticOracle
	clock   *ledger.ManualClock
}

func newSwapFixture(t *testing.T, reserveBase, reserveQuote *big.Int, feeBps uint64) *swapFixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	tokenLedger := ledger.NewInMemoryLedger(0)
	oracle := ledger.NewStaticOracle()
	policy := NewPolicyService(config.DefaultPolicy(), nil, nil, logger)
	service := NewSwapService(tokenLedger, oracle, clock, policy, nil, nil, nil, logger)

	if reserveBase != nil {
		_, err := service.CreatePool(context.Background(), "TKA", "TKB", reserveBase, reserveQuote, feeBps, 10, poolVault)
		require.NoError(t, err)
	}
	return &swapFixture{service: service, ledger: tokenLedger, oracle: oracle, clock: clock}
}

func (f *swapFixture) balance(t *testing.T, account common.Address) *big.Int {
	t.Helper()
	bal, err := f.ledger.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return bal
}

func TestCreatePoolValidation(t *testing.T) {
	f := newSwapFixture(t, nil, nil, 0)
	ctx := context.Background()

	_, err := f.service.CreatePool(ctx, "TKA", "TKA", big.NewInt(1), big.NewInt(1), 30, 10, poolVault)
	assert.ErrorIs(t, err, engine.ErrIdenticalTokens)

	_, err = f.service.CreatePool(ctx, "TKA", "TKB", big.NewInt(0), big.NewInt(1), 30, 10, poolVault)
	assert.ErrorIs(t, err, engine.ErrZeroReserves)

	_, err = f.service.CreatePool(ctx, "TKA", "TKB", big.NewInt(1000), big.NewInt(2500), 30, 10, poolVault)
	require.NoError(t, err)

	_, err = f.service.CreatePool(ctx, "tka", "tkb", big.NewInt(1), big.NewInt(1), 30, 10, poolVault)
	assert.Error(t, err)
}

func TestQuoteMatchesEngine(t *testing.T) {
	f := newSwapFixture(t, big.NewInt(1000), big.NewInt(2500), 30)

	quote, err := f.service.Quote("TKA/TKB", "tka", big.NewInt(10000))
	require.NoError(t, err)
	assert.Equal(t, "30", quote.Fee)
	assert.Equal(t, "2272", quote.AmountOut)
	assert.Equal(t, "TKB", quote.TokenOut)

	// Reverse direction swaps the reserve orientation.
	reverse, err := f.service.Quote("TKA/TKB", "TKB", big.NewInt(10000))
	require.NoError(t, err)
	assert.Equal(t, "TKA", reverse.TokenOut)

	_, err = f.service.Quote("TKA/TKB", "TKC", big.NewInt(100))
	assert.ErrorIs(t, err, engine.ErrInvalidToken)

	_, err = f.service.Quote("TKX/TKB", "TKX", big.NewInt(100))
	assert.ErrorIs(t, err, engine.ErrPoolNotFound)
}

func TestQuoteIsPure(t *testing.T) {
	f := newSwapFixture(t, big.NewInt(1000), big.NewInt(2500), 30)

	first, err := f.service.Quote("TKA/TKB", "TKA", big.NewInt(10000))
	require.NoError(t, err)
	second, err := f.service.Quote("TKA/TKB", "TKA", big.NewInt(10000))
	require.NoError(t, err)
	assert.Equal(t, first.AmountOut, second.AmountOut)

	pools := f.service.ListPools()
	require.Len(t, pools, 1)
	assert.Equal(t, "1000", pools[0].ReserveBase)
	assert.Equal(t, "2500", pools[0].ReserveQuote)
}

func TestExecuteSwapCommitsReserves(t *testing.T) {
	f := newSwapFixture(t, big.NewInt(1000), big.NewInt(2500), 30)
	ctx := context.Background()
	f.ledger.Mint(alice, big.NewInt(10000))

	res, err := f.service.ExecuteSwap(ctx, alice, "TKA/TKB", "TKA", big.NewInt(10000), nil)
	require.NoError(t, err)
	assert.Equal(t, "2272", res.AmountOut)
	assert.Equal(t, "30", res.Fee)
	assert.NotEmpty(t, res.ReceiptID)

	// Reserves move by the nominal amounts, fee retained in the in-side.
	pools := f.service.ListPools()
	require.Len(t, pools, 1)
	assert.Equal(t, "11000", pools[0].ReserveBase)
	assert.Equal(t, "228", pools[0].ReserveQuote)

	// Trader paid 10000 and received 2272.
	assert.Equal(t, big.NewInt(2272), f.balance(t, alice))

	// The pool price moved against the trade direction: the same input now
	// buys less.
	quote, err := f.service.Quote("TKA/TKB", "TKA", big.NewInt(10000))
	require.NoError(t, err)
	nextOut, ok := new(big.Int).SetString(quote.AmountOut, 10)
	require.True(t, ok)
	assert.Negative(t, nextOut.Cmp(big.NewInt(2272)))
}

func TestExecuteSwapSlippageGuard(t *testing.T) {
	f := newSwapFixture(t, big.NewInt(1000), big.NewInt(2500), 30)
	ctx := context.Background()
	f.ledger.Mint(alice, big.NewInt(10000))

	_, err := f.service.ExecuteSwap(ctx, alice, "TKA/TKB", "TKA", big.NewInt(10000), big.NewInt(2273))
	assert.ErrorIs(t, err, engine.ErrSlippageExceeded)

	// Rejected before any transfer: balance and reserves untouched.
	assert.Equal(t, big.NewInt(10000), f.balance(t, alice))
	pools := f.service.ListPools()
	assert.Equal(t, "1000", pools[0].ReserveBase)

	// At exactly the quoted output the trade clears.
	_, err = f.service.ExecuteSwap(ctx, alice, "TKA/TKB", "TKA", big.NewInt(10000), big.NewInt(2272))
	require.NoError(t, err)
}

func TestExecuteSwapRefundsOnPushFailure(t *testing.T) {
	// Quote reserve huge relative to base: the output exceeds what the vault
	// holds after the pull, so the push leg fails and the pull is refunded.
	f := newSwapFixture(t, big.NewInt(1000), big.NewInt(2_500_000), 0)
	ctx := context.Background()
	f.ledger.Mint(alice, big.NewInt(100))

	_, err := f.service.ExecuteSwap(ctx, alice, "TKA/TKB", "TKA", big.NewInt(100), nil)
	assert.ErrorIs(t, err, engine.ErrLedgerTransfer)

	// Trader made whole, reserves unchanged.
	assert.Equal(t, big.NewInt(100), f.balance(t, alice))
	pools := f.service.ListPools()
	assert.Equal(t, "1000", pools[0].ReserveBase)
	assert.Equal(t, "2500000", pools[0].ReserveQuote)
}

func TestExecuteSwapPullFailure(t *testing.T) {
	f := newSwapFixture(t, big.NewInt(1000), big.NewInt(2500), 30)
	ctx := context.Background()

	// Trader has no funds: the pull leg fails, nothing commits.
	_, err := f.service.ExecuteSwap(ctx, alice, "TKA/TKB", "TKA", big.NewInt(10000), nil)
	assert.ErrorIs(t, err, engine.ErrLedgerTransfer)

	pools := f.service.ListPools()
	assert.Equal(t, "1000", pools[0].ReserveBase)
}

func TestAddLiquidity(t *testing.T) {
	f := newSwapFixture(t, big.NewInt(1000), big.NewInt(2500), 30)
	ctx := context.Background()
	f.ledger.Mint(bob, big.NewInt(10000))

	view, err := f.service.AddLiquidity(ctx, bob, "TKA/TKB", big.NewInt(500), big.NewInt(1250))
	require.NoError(t, err)
	assert.Equal(t, "1500", view.ReserveBase)
	assert.Equal(t, "3750", view.ReserveQuote)

	_, err = f.service.AddLiquidity(ctx, bob, "TKA/TKB", big.NewInt(0), big.NewInt(1))
	assert.ErrorIs(t, err, engine.ErrInsufficientDeposit)
}

func TestGetRates(t *testing.T) {
	f := newSwapFixture(t, big.NewInt(1000), big.NewInt(2500), 30)

	rates, err := f.service.GetRates("TKA/TKB")
	require.NoError(t, err)
	// 2500/1000 at 1e8 scale.
	assert.Equal(t, "250000000", rates.MidPrice)
	assert.Equal(t, uint64(30), rates.FeeBps)
	assert.Equal(t, uint64(10), rates.SpreadBps)

	_, err = f.service.GetRates("TKX/TKB")
	assert.ErrorIs(t, err, engine.ErrPoolNotFound)
}

func TestRouteQuoteVenueSelection(t *testing.T) {
	f := newSwapFixture(t, big.NewInt(1000), big.NewInt(2500), 30)
	ctx := context.Background()
	pair, _ := engine.NewPair("TKA", "TKB")

	// Pool mid-price is 2.5e8. A cheaper external venue wins.
	f.oracle.SetPrice(pair, big.NewInt(260_000_000))
	res, err := f.service.RouteQuote(ctx, "TKA/TKB", big.NewInt(240_000_000))
	require.NoError(t, err)
	assert.Equal(t, "B", res.Venue)
	assert.Equal(t, "240000000", res.Price)

	// A pricier external venue loses to the pool.
	res, err = f.service.RouteQuote(ctx, "TKA/TKB", big.NewInt(260_000_000))
	require.NoError(t, err)
	assert.Equal(t, "A", res.Venue)
	assert.Equal(t, "250000000", res.Price)

	// Market ceiling below both venues rejects the route.
	f.oracle.SetPrice(pair, big.NewInt(230_000_000))
	_, err = f.service.RouteQuote(ctx, "TKA/TKB", big.NewInt(240_000_000))
	assert.ErrorIs(t, err, engine.ErrAboveMarketAverage)
}

func TestRouteQuoteWithoutOraclePrice(t *testing.T) {
	// No oracle feed for the pair: routing proceeds without a ceiling.
	f := newSwapFixture(t, big.NewInt(1000), big.NewInt(2500), 30)

	res, err := f.service.RouteQuote(context.Background(), "TKA/TKB", nil)
	require.NoError(t, err)
	assert.Equal(t, "A", res.Venue)
	assert.Empty(t, res.MarketPrice)
}

package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ledger/internal/engine"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestInMemoryLedgerTransfer(t *testing.T) {
	l := NewInMemoryLedger(0)
	l.Mint(alice, big.NewInt(1000))

	received, err := l.Transfer(context.Background(), alice, bob, big.NewInt(400))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(400), received)

	balA, _ := l.BalanceOf(context.Background(), alice)
	balB, _ := l.BalanceOf(context.Background(), bob)
	assert.Equal(t, big.NewInt(600), balA)
	assert.Equal(t, big.NewInt(400), balB)
}

func TestInMemoryLedgerInsufficientFunds(t *testing.T) {
	l := NewInMemoryLedger(0)
	l.Mint(alice, big.NewInt(100))

	_, err := l.Transfer(context.Background(), alice, bob, big.NewInt(101))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Nothing moved.
	balA, _ := l.BalanceOf(context.Background(), alice)
	assert.Equal(t, big.NewInt(100), balA)
}

func TestInMemoryLedgerFeeOnTransfer(t *testing.T) {
	// 100 bps fee: recipient receives 1% less than sent.
	l := NewInMemoryLedger(100)
	l.Mint(alice, big.NewInt(10000))

	received, err := l.Transfer(context.Background(), alice, bob, big.NewInt(10000))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(9900), received)

	balB, _ := l.BalanceOf(context.Background(), bob)
	assert.Equal(t, big.NewInt(9900), balB)
}

func TestInMemoryLedgerFailureInjection(t *testing.T) {
	l := NewInMemoryLedger(0)
	l.Mint(alice, big.NewInt(1000))

	boom := errors.New("boom")
	l.FailNextTransfer(boom)

	_, err := l.Transfer(context.Background(), alice, bob, big.NewInt(100))
	assert.ErrorIs(t, err, boom)

	// Injection is single-shot and no balance moved on failure.
	balA, _ := l.BalanceOf(context.Background(), alice)
	assert.Equal(t, big.NewInt(1000), balA)

	received, err := l.Transfer(context.Background(), alice, bob, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), received)
}

func TestManualClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := NewManualClock(start)
	assert.Equal(t, start, clock.Now())

	clock.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clock.Now())

	later := start.Add(24 * time.Hour)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestStaticOracle(t *testing.T) {
	oracle := NewStaticOracle()
	pair, err := engine.NewPair("TKA", "TKB")
	require.NoError(t, err)

	_, err = oracle.MarketPrice(context.Background(), pair)
	assert.ErrorIs(t, err, ErrPriceNotFound)

	oracle.SetPrice(pair, big.NewInt(250_000_000))
	price, err := oracle.MarketPrice(context.Background(), pair)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(250_000_000), price)
}

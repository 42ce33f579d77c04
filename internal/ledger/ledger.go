// Package ledger declares the external collaborators of the engine: the
// token ledger that moves balances, the market-price oracle, and the clock.
// The engine consumes these interfaces and never implements token transfer
// mechanics itself.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"go-ledger/internal/engine"
)

var (
	// ErrInsufficientFunds is returned by a Ledger when the source balance
	// cannot cover a transfer.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrPriceNotFound is returned by an Oracle with no feed for the pair.
	ErrPriceNotFound = errors.New("oracle: price not found for pair")
)

// Ledger moves token balances. Transfer returns the amount actually received
// by the recipient, which may be less than requested for fee-on-transfer
// tokens — callers must record the actual amount, never the nominal one.
type Ledger interface {
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) (*big.Int, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// Oracle reports an external market price for a pair at engine.PriceScale.
type Oracle interface {
	MarketPrice(ctx context.Context, pair engine.Pair) (*big.Int, error)
}

// Clock samples "now". Every operation samples it exactly once and uses that
// timestamp consistently throughout its computation.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a settable clock for tests and replay.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{t: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// InMemoryLedger is a Ledger for tests and dev mode. It supports
// fee-on-transfer semantics (transferFeeBps withheld from the recipient) and
// failure injection so transactional rollback paths can be exercised.
type InMemoryLedger struct {
	mu             sync.Mutex
	balances       map[common.Address]*big.Int
	transferFeeBps uint64
	failNext       error
}

func NewInMemoryLedger(transferFeeBps uint64) *InMemoryLedger {
	return &InMemoryLedger{
		balances:       make(map[common.Address]*big.Int),
		transferFeeBps: transferFeeBps,
	}
}

// Mint credits an account out of thin air. Test/dev setup only.
func (l *InMemoryLedger) Mint(account common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(account, amount)
}

// FailNextTransfer makes the next Transfer call return err without moving
// any balance.
func (l *InMemoryLedger) FailNextTransfer(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

func (l *InMemoryLedger) Transfer(_ context.Context, from, to common.Address, amount *big.Int) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int), nil
	}

	bal := l.balanceLocked(from)
	if bal.Cmp(amount) < 0 {
		return nil, ErrInsufficientFunds
	}
	bal.Sub(bal, amount)

	received := new(big.Int).Set(amount)
	if l.transferFeeBps > 0 {
		fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(l.transferFeeBps))
		fee.Quo(fee, big.NewInt(engine.BasisPoints))
		received.Sub(received, fee)
	}
	l.credit(to, received)
	return received, nil
}

func (l *InMemoryLedger) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(account)), nil
}

func (l *InMemoryLedger) balanceLocked(account common.Address) *big.Int {
	bal, ok := l.balances[account]
	if !ok {
		bal = new(big.Int)
		l.balances[account] = bal
	}
	return bal
}

func (l *InMemoryLedger) credit(account common.Address, amount *big.Int) {
	l.balanceLocked(account).Add(l.balanceLocked(account), amount)
}

// StaticOracle is an Oracle backed by a fixed price table keyed by the
// canonical pair string.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]*big.Int
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{prices: make(map[string]*big.Int)}
}

func (o *StaticOracle) SetPrice(pair engine.Pair, price *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[pair.String()] = new(big.Int).Set(price)
}

func (o *StaticOracle) MarketPrice(_ context.Context, pair engine.Pair) (*big.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[pair.String()]
	if !ok {
		return nil, ErrPriceNotFound
	}
	return new(big.Int).Set(price), nil
}

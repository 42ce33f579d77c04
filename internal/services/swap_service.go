package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-ledger/internal/engine"
	"go-ledger/internal/events"
	"go-ledger/internal/ledger"
	"go-ledger/internal/metrics"
	"go-ledger/internal/models"
	"go-ledger/internal/repository"
	"go-ledger/internal/utils"
)

// pool is the authoritative in-memory state of one constant-product pool.
// All mutation happens under mu; quoting copies the reserves out and works
// on the copies.
type pool struct {
	mu           sync.Mutex
	pair         engine.Pair
	reserveBase  *big.Int
	reserveQuote *big.Int
	feeBps       uint64
	spreadBps    uint64
	vault        common.Address
}

// PoolView is the read-only projection of a pool.
type PoolView struct {
	Pair         string `json:"pair"`
	BaseToken    string `json:"base_token"`
	QuoteToken   string `json:"quote_token"`
	ReserveBase  string `json:"reserve_base"`
	ReserveQuote string `json:"reserve_quote"`
	FeeBps       uint64 `json:"fee_bps"`
	SpreadBps    uint64 `json:"spread_bps"`
	VaultAddress string `json:"vault_address"`
}

// QuoteResult is the priced trade returned to callers without execution.
type QuoteResult struct {
	Pair           string `json:"pair"`
	TokenIn        string `json:"token_in"`
	TokenOut       string `json:"token_out"`
	AmountIn       string `json:"amount_in"`
	AmountInNet    string `json:"amount_in_net"`
	AmountOut      string `json:"amount_out"`
	Fee            string `json:"fee"`
	PriceImpactBps uint64 `json:"price_impact_bps"`
}

// SwapResult reports one committed swap.
type SwapResult struct {
	ReceiptID      string `json:"receipt_id"`
	Pair           string `json:"pair"`
	TokenIn        string `json:"token_in"`
	TokenOut       string `json:"token_out"`
	Trader         string `json:"trader"`
	AmountIn       string `json:"amount_in"`
	AmountOut      string `json:"amount_out"`
	Fee            string `json:"fee"`
	PriceImpactBps uint64 `json:"price_impact_bps"`
	Timestamp      int64  `json:"timestamp"`
}

// RatesResult is the quoted mid-price of a pool plus its pricing parameters.
type RatesResult struct {
	Pair       string `json:"pair"`
	MidPrice   string `json:"mid_price"`
	PriceScale string `json:"price_scale"`
	FeeBps     uint64 `json:"fee_bps"`
	SpreadBps  uint64 `json:"spread_bps"`
	AsOf       int64  `json:"as_of"`
}

// RouteResult reports the venue comparison outcome for a routed quote.
type RouteResult struct {
	Pair          string `json:"pair"`
	Venue         string `json:"venue"`
	Price         string `json:"price"`
	PoolPrice     string `json:"pool_price"`
	ExternalPrice string `json:"external_price"`
	MarketPrice   string `json:"market_price,omitempty"`
}

// SwapService owns liquidity pools and executes swaps against them. Reserves
// are mutated only after every Ledger leg of the swap has succeeded; a failed
// push leg triggers a compensating refund of the pulled input.
type SwapService struct {
	ledger ledger.Ledger
	oracle ledger.Oracle
	clock  ledger.Clock
	policy *PolicyService

	mu    sync.RWMutex
	pools map[string]*pool

	poolRepo    repository.PoolRepository
	receiptRepo repository.ReceiptRepository
	publisher   *events.Publisher
	sink        PayoutSink
	logger      *logrus.Logger
}

// NewSwapService creates a SwapService. Oracle, repositories, publisher and
// sink may be nil.
func NewSwapService(
	lgr ledger.Ledger,
	oracle ledger.Oracle,
	clock ledger.Clock,
	policy *PolicyService,
	poolRepo repository.PoolRepository,
	receiptRepo repository.ReceiptRepository,
	publisher *events.Publisher,
	logger *logrus.Logger,
) *SwapService {
	return &SwapService{
		ledger:      lgr,
		oracle:      oracle,
		clock:       clock,
		policy:      policy,
		pools:       make(map[string]*pool),
		poolRepo:    poolRepo,
		receiptRepo: receiptRepo,
		publisher:   publisher,
		logger:      logger,
	}
}

// SetSink attaches the live push sink (websocket hub).
func (s *SwapService) SetSink(sink PayoutSink) { s.sink = sink }

// LoadFromStore reloads pool snapshots from the repository at startup.
func (s *SwapService) LoadFromStore(ctx context.Context) error {
	if s.poolRepo == nil {
		return nil
	}
	rows, err := s.poolRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pools: %w", err)
	}
	for _, row := range rows {
		pair, err := engine.ParsePair(row.Pair)
		if err != nil {
			s.logger.WithFields(logrus.Fields{"pair": row.Pair}).Warn("Skipping stored pool with invalid pair")
			continue
		}
		reserveBase := utils.ParseAmount(row.ReserveBase)
		reserveQuote := utils.ParseAmount(row.ReserveQuote)
		if reserveBase == nil || reserveQuote == nil {
			s.logger.WithFields(logrus.Fields{"pair": row.Pair}).Warn("Skipping stored pool with invalid reserves")
			continue
		}
		p := &pool{
			pair:         pair,
			reserveBase:  reserveBase,
			reserveQuote: reserveQuote,
			feeBps:       row.FeeBps,
			spreadBps:    row.SpreadBps,
			vault:        common.HexToAddress(row.VaultAddress),
		}
		s.mu.Lock()
		s.pools[pair.String()] = p
		s.mu.Unlock()
		s.updateReserveGauges(p)
	}
	s.logger.WithFields(logrus.Fields{"pools": len(rows)}).Info("Liquidity pools loaded from store")
	return nil
}

// CreatePool registers a new pool with initial reserves. The vault must
// already hold the reserves (seeding) or they are pulled from the funder via
// AddLiquidity afterwards. Existing pools are not overwritten.
func (s *SwapService) CreatePool(ctx context.Context, base, quote string, reserveBase, reserveQuote *big.Int, feeBps, spreadBps uint64, vault common.Address) (*PoolView, error) {
	pair, err := engine.NewPair(base, quote)
	if err != nil {
		return nil, err
	}
	if reserveBase == nil || reserveQuote == nil || reserveBase.Sign() <= 0 || reserveQuote.Sign() <= 0 {
		return nil, engine.ErrZeroReserves
	}
	if feeBps == 0 {
		feeBps = s.policy.Snapshot().DefaultPoolFeeBps
	}
	if spreadBps == 0 {
		spreadBps = s.policy.Snapshot().DefaultSpreadBps
	}

	p := &pool{
		pair:         pair,
		reserveBase:  new(big.Int).Set(reserveBase),
		reserveQuote: new(big.Int).Set(reserveQuote),
		feeBps:       feeBps,
		spreadBps:    spreadBps,
		vault:        vault,
	}

	s.mu.Lock()
	if _, exists := s.pools[pair.String()]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("pool %s already exists", pair.String())
	}
	s.pools[pair.String()] = p
	s.mu.Unlock()

	s.updateReserveGauges(p)
	s.persistPool(ctx, p)
	s.logger.WithFields(logrus.Fields{
		"pair":          pair.String(),
		"reserve_base":  reserveBase.String(),
		"reserve_quote": reserveQuote.String(),
		"fee_bps":       feeBps,
	}).Info("Pool created")
	s.publisher.Publish("pools", "created", s.view(p))
	return s.view(p), nil
}

func (s *SwapService) getPool(pairKey string) (*pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[pairKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrPoolNotFound, pairKey)
	}
	return p, nil
}

// direction resolves tokenIn against the pool's pair and returns the oriented
// reserve copies. The returned reserves are copies: quoting never holds the
// pool lock while computing.
func (p *pool) direction(tokenIn string) (reserveIn, reserveOut *big.Int, tokenOut string, baseIn bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch tokenIn {
	case p.pair.Base:
		return new(big.Int).Set(p.reserveBase), new(big.Int).Set(p.reserveQuote), p.pair.Quote, true, nil
	case p.pair.Quote:
		return new(big.Int).Set(p.reserveQuote), new(big.Int).Set(p.reserveBase), p.pair.Base, false, nil
	default:
		return nil, nil, "", false, fmt.Errorf("%w: %q not in pair %s", engine.ErrInvalidToken, tokenIn, p.pair.String())
	}
}

// Quote prices a trade without executing it. Pure: pool reserves are copied
// under the lock and never written.
func (s *SwapService) Quote(pairKey, tokenIn string, amountIn *big.Int) (*QuoteResult, error) {
	pair, err := engine.ParsePair(pairKey)
	if err != nil {
		return nil, err
	}
	p, err := s.getPool(pair.String())
	if err != nil {
		metrics.SwapOperations.WithLabelValues("quote", "rejected").Inc()
		return nil, err
	}
	reserveIn, reserveOut, tokenOut, _, err := p.direction(normalizeToken(tokenIn))
	if err != nil {
		metrics.SwapOperations.WithLabelValues("quote", "rejected").Inc()
		return nil, err
	}
	quote, err := engine.QuoteSwap(reserveIn, reserveOut, amountIn, p.feeBps)
	if err != nil {
		metrics.SwapOperations.WithLabelValues("quote", "rejected").Inc()
		return nil, err
	}
	metrics.SwapOperations.WithLabelValues("quote", "ok").Inc()
	return &QuoteResult{
		Pair:           pair.String(),
		TokenIn:        normalizeToken(tokenIn),
		TokenOut:       tokenOut,
		AmountIn:       quote.AmountIn.String(),
		AmountInNet:    quote.AmountInNet.String(),
		AmountOut:      quote.AmountOut.String(),
		Fee:            quote.Fee.String(),
		PriceImpactBps: quote.PriceImpactBps,
	}, nil
}

// ExecuteSwap executes a swap for trader against the pool. The trade is
// re-priced under the pool lock, checked against minAmountOut, then the input
// is pulled trader→vault and the output pushed vault→trader. If the push leg
// fails the pulled input is refunded and the reserves stay untouched.
func (s *SwapService) ExecuteSwap(ctx context.Context, trader common.Address, pairKey, tokenIn string, amountIn, minAmountOut *big.Int) (*SwapResult, error) {
	timer := time.Now()
	defer func() { metrics.OperationDuration.WithLabelValues("swap").Observe(time.Since(timer).Seconds()) }()

	pair, err := engine.ParsePair(pairKey)
	if err != nil {
		metrics.SwapOperations.WithLabelValues("execute", "rejected").Inc()
		return nil, err
	}
	p, err := s.getPool(pair.String())
	if err != nil {
		metrics.SwapOperations.WithLabelValues("execute", "rejected").Inc()
		return nil, err
	}
	tokenIn = normalizeToken(tokenIn)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := s.clock.Now().Unix()

	var reserveIn, reserveOut *big.Int
	var tokenOut string
	baseIn := false
	switch tokenIn {
	case p.pair.Base:
		reserveIn, reserveOut, tokenOut, baseIn = p.reserveBase, p.reserveQuote, p.pair.Quote, true
	case p.pair.Quote:
		reserveIn, reserveOut, tokenOut = p.reserveQuote, p.reserveBase, p.pair.Base
	default:
		metrics.SwapOperations.WithLabelValues("execute", "rejected").Inc()
		return nil, fmt.Errorf("%w: %q not in pair %s", engine.ErrInvalidToken, tokenIn, p.pair.String())
	}

	quote, err := engine.QuoteSwap(reserveIn, reserveOut, amountIn, p.feeBps)
	if err != nil {
		metrics.SwapOperations.WithLabelValues("execute", "rejected").Inc()
		return nil, err
	}
	if minAmountOut != nil && quote.AmountOut.Cmp(minAmountOut) < 0 {
		metrics.SwapOperations.WithLabelValues("execute", "rejected").Inc()
		return nil, fmt.Errorf("%w: out %s below minimum %s",
			engine.ErrSlippageExceeded, quote.AmountOut.String(), minAmountOut.String())
	}

	if _, err := s.ledger.Transfer(ctx, trader, p.vault, amountIn); err != nil {
		metrics.SwapOperations.WithLabelValues("execute", "ledger_error").Inc()
		return nil, fmt.Errorf("%w: pull leg: %v", engine.ErrLedgerTransfer, err)
	}
	if _, err := s.ledger.Transfer(ctx, p.vault, trader, quote.AmountOut); err != nil {
		// Compensating refund: the pool must not keep the input when the
		// output never reached the trader.
		if _, refundErr := s.ledger.Transfer(ctx, p.vault, trader, amountIn); refundErr != nil {
			s.logger.WithFields(logrus.Fields{
				"trader": trader.Hex(),
				"pair":   p.pair.String(),
				"amount": amountIn.String(),
				"error":  refundErr.Error(),
			}).Error("Swap refund failed, manual reconciliation required")
		}
		metrics.SwapOperations.WithLabelValues("execute", "ledger_error").Inc()
		return nil, fmt.Errorf("%w: push leg: %v", engine.ErrLedgerTransfer, err)
	}

	// Commit: reserves move by the nominal quote amounts. The fee stays in
	// reserveIn, which is what makes the product grow over time.
	reserveIn.Add(reserveIn, quote.AmountIn)
	reserveOut.Sub(reserveOut, quote.AmountOut)
	s.updateReserveGaugesLocked(p)

	receipt := &models.SwapReceipt{
		ID:             uuid.New().String(),
		Pair:           p.pair.String(),
		TokenIn:        tokenIn,
		Trader:         trader.Hex(),
		AmountIn:       quote.AmountIn.String(),
		AmountOut:      quote.AmountOut.String(),
		Fee:            quote.Fee.String(),
		PriceImpactBps: quote.PriceImpactBps,
		Timestamp:      now,
	}
	if s.receiptRepo != nil {
		if err := s.receiptRepo.CreateSwapReceipt(ctx, receipt); err != nil {
			s.logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("Failed to persist swap receipt")
		}
	}
	s.persistPoolLocked(ctx, p)

	metrics.SwapOperations.WithLabelValues("execute", "ok").Inc()
	metrics.SwapPriceImpactBps.Observe(float64(quote.PriceImpactBps))
	s.logger.WithFields(logrus.Fields{
		"trader":           trader.Hex(),
		"pair":             p.pair.String(),
		"token_in":         tokenIn,
		"amount_in":        quote.AmountIn.String(),
		"amount_out":       quote.AmountOut.String(),
		"price_impact_bps": quote.PriceImpactBps,
		"base_in":          baseIn,
	}).Info("Swap executed")

	s.publisher.Publish("swap", "executed", receipt)
	if s.sink != nil {
		s.sink.PushSwap(receipt)
	}

	return &SwapResult{
		ReceiptID:      receipt.ID,
		Pair:           receipt.Pair,
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		Trader:         receipt.Trader,
		AmountIn:       receipt.AmountIn,
		AmountOut:      receipt.AmountOut,
		Fee:            receipt.Fee,
		PriceImpactBps: receipt.PriceImpactBps,
		Timestamp:      now,
	}, nil
}

// AddLiquidity pulls both legs from the funder into the pool vault and grows
// the reserves by the amounts actually received.
func (s *SwapService) AddLiquidity(ctx context.Context, funder common.Address, pairKey string, amountBase, amountQuote *big.Int) (*PoolView, error) {
	pair, err := engine.ParsePair(pairKey)
	if err != nil {
		return nil, err
	}
	p, err := s.getPool(pair.String())
	if err != nil {
		return nil, err
	}
	if amountBase == nil || amountQuote == nil || amountBase.Sign() <= 0 || amountQuote.Sign() <= 0 {
		return nil, engine.ErrInsufficientDeposit
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	receivedBase, err := s.ledger.Transfer(ctx, funder, p.vault, amountBase)
	if err != nil {
		return nil, fmt.Errorf("%w: base leg: %v", engine.ErrLedgerTransfer, err)
	}
	receivedQuote, err := s.ledger.Transfer(ctx, funder, p.vault, amountQuote)
	if err != nil {
		if _, refundErr := s.ledger.Transfer(ctx, p.vault, funder, receivedBase); refundErr != nil {
			s.logger.WithFields(logrus.Fields{
				"funder": funder.Hex(),
				"pair":   p.pair.String(),
				"error":  refundErr.Error(),
			}).Error("Liquidity refund failed, manual reconciliation required")
		}
		return nil, fmt.Errorf("%w: quote leg: %v", engine.ErrLedgerTransfer, err)
	}

	p.reserveBase.Add(p.reserveBase, receivedBase)
	p.reserveQuote.Add(p.reserveQuote, receivedQuote)
	s.updateReserveGaugesLocked(p)
	s.persistPoolLocked(ctx, p)

	s.logger.WithFields(logrus.Fields{
		"funder":         funder.Hex(),
		"pair":           p.pair.String(),
		"received_base":  receivedBase.String(),
		"received_quote": receivedQuote.String(),
	}).Info("Liquidity added")
	s.publisher.Publish("pools", "liquidity_added", s.viewLocked(p))
	return s.viewLocked(p), nil
}

// GetRates returns the pool mid-price (quote per base at engine.PriceScale)
// plus the fee and the configured quoted spread.
func (s *SwapService) GetRates(pairKey string) (*RatesResult, error) {
	pair, err := engine.ParsePair(pairKey)
	if err != nil {
		return nil, err
	}
	p, err := s.getPool(pair.String())
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	mid, err := engine.MidPrice(p.reserveBase, p.reserveQuote)
	feeBps, spreadBps := p.feeBps, p.spreadBps
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &RatesResult{
		Pair:       pair.String(),
		MidPrice:   mid.String(),
		PriceScale: engine.PriceScale.String(),
		FeeBps:     feeBps,
		SpreadBps:  spreadBps,
		AsOf:       s.clock.Now().Unix(),
	}, nil
}

// ListPools returns a snapshot of every pool.
func (s *SwapService) ListPools() []*PoolView {
	s.mu.RLock()
	pools := make([]*pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	s.mu.RUnlock()

	views := make([]*PoolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, s.view(p))
	}
	return views
}

// RouteQuote compares the internal pool price against an externally supplied
// venue price, capped by the oracle market price. externalPrice may be nil,
// in which case only the pool venue competes. The decision is made before any
// transfer is attempted.
func (s *SwapService) RouteQuote(ctx context.Context, pairKey string, externalPrice *big.Int) (*RouteResult, error) {
	pair, err := engine.ParsePair(pairKey)
	if err != nil {
		return nil, err
	}
	p, err := s.getPool(pair.String())
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	poolPrice, err := engine.MidPrice(p.reserveBase, p.reserveQuote)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var marketPrice *big.Int
	if s.oracle != nil {
		marketPrice, err = s.oracle.MarketPrice(ctx, pair)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"pair":  pair.String(),
				"error": err.Error(),
			}).Warn("No oracle price, routing without market ceiling")
			marketPrice = nil
		}
	}

	candidateB := externalPrice
	if candidateB == nil {
		candidateB = poolPrice
	}
	venue, best, err := engine.SelectVenue(poolPrice, candidateB, marketPrice)
	if err != nil {
		metrics.SwapOperations.WithLabelValues("route", "rejected").Inc()
		return nil, err
	}

	metrics.SwapOperations.WithLabelValues("route", "ok").Inc()
	result := &RouteResult{
		Pair:          pair.String(),
		Venue:         string(venue),
		Price:         best.String(),
		PoolPrice:     poolPrice.String(),
		ExternalPrice: candidateB.String(),
	}
	if marketPrice != nil {
		result.MarketPrice = marketPrice.String()
	}
	return result, nil
}

func (s *SwapService) view(p *pool) *PoolView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.viewLocked(p)
}

func (s *SwapService) viewLocked(p *pool) *PoolView {
	return &PoolView{
		Pair:         p.pair.String(),
		BaseToken:    p.pair.Base,
		QuoteToken:   p.pair.Quote,
		ReserveBase:  p.reserveBase.String(),
		ReserveQuote: p.reserveQuote.String(),
		FeeBps:       p.feeBps,
		SpreadBps:    p.spreadBps,
		VaultAddress: p.vault.Hex(),
	}
}

func (s *SwapService) updateReserveGauges(p *pool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.updateReserveGaugesLocked(p)
}

func (s *SwapService) updateReserveGaugesLocked(p *pool) {
	base, _ := new(big.Float).SetInt(p.reserveBase).Float64()
	quote, _ := new(big.Float).SetInt(p.reserveQuote).Float64()
	metrics.PoolReserve.WithLabelValues(p.pair.String(), "base").Set(base)
	metrics.PoolReserve.WithLabelValues(p.pair.String(), "quote").Set(quote)
}

func (s *SwapService) persistPool(ctx context.Context, p *pool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.persistPoolLocked(ctx, p)
}

// persistPoolLocked writes the post-commit pool snapshot. Write-behind: a
// failure is logged and the in-memory commit stands.
func (s *SwapService) persistPoolLocked(ctx context.Context, p *pool) {
	if s.poolRepo == nil {
		return
	}
	row := &models.LiquidityPool{
		Pair:         p.pair.String(),
		BaseToken:    p.pair.Base,
		QuoteToken:   p.pair.Quote,
		ReserveBase:  p.reserveBase.String(),
		ReserveQuote: p.reserveQuote.String(),
		FeeBps:       p.feeBps,
		SpreadBps:    p.spreadBps,
		VaultAddress: p.vault.Hex(),
	}
	if err := s.poolRepo.Save(ctx, row); err != nil {
		s.logger.WithFields(logrus.Fields{
			"pair":  p.pair.String(),
			"error": err.Error(),
		}).Warn("Failed to persist pool snapshot")
	}
}

func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

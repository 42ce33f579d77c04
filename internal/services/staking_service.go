package services

import (
	"context"
	"fmt"
	"math/big"
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

// PayoutSink receives committed payouts/receipts for live push (websocket
// hub). Nil-safe via interface check at call sites.
type PayoutSink interface {
	PushPayout(payout *models.RewardPayout)
	PushSwap(receipt *models.SwapReceipt)
}

// position is the authoritative in-memory stake state. Amounts are big.Int;
// the models.StakePosition row is a string-encoded snapshot of this.
type position struct {
	amount               *big.Int
	startTime            int64
	lastRewardCheckpoint int64
	isStaking            bool
	restakeCount         uint32
	totalRestaked        *big.Int
}

func newPosition() *position {
	return &position{amount: new(big.Int), totalRestaked: new(big.Int)}
}

func (p *position) clone() *position {
	return &position{
		amount:               new(big.Int).Set(p.amount),
		startTime:            p.startTime,
		lastRewardCheckpoint: p.lastRewardCheckpoint,
		isStaking:            p.isStaking,
		restakeCount:         p.restakeCount,
		totalRestaked:        new(big.Int).Set(p.totalRestaked),
	}
}

// StakeInfo is the read-only view returned by GetStakeInfo.
type StakeInfo struct {
	Account              string `json:"account"`
	Amount               string `json:"amount"`
	StartTime            int64  `json:"start_time"`
	LastRewardCheckpoint int64  `json:"last_reward_checkpoint"`
	IsStaking            bool   `json:"is_staking"`
	RestakeCount         uint32 `json:"restake_count"`
	TotalRestaked        string `json:"total_restaked"`
	PendingReward        string `json:"pending_reward"`
	AsOf                 int64  `json:"as_of"`
}

// DepositResult reports a committed deposit.
type DepositResult struct {
	Account        string `json:"account"`
	AmountReceived string `json:"amount_received"`
	RewardPaid     string `json:"reward_paid"`
	StartTime      int64  `json:"start_time"`
}

// WithdrawResult reports a committed withdrawal.
type WithdrawResult struct {
	Account    string `json:"account"`
	Principal  string `json:"principal"`
	RewardPaid string `json:"reward_paid"`
	Remaining  string `json:"remaining"`
	Closed     bool   `json:"closed"`
}

// RestakeResult reports a committed restake.
type RestakeResult struct {
	Account      string `json:"account"`
	Reward       string `json:"reward"`
	Bonus        string `json:"bonus"`
	NewAmount    string `json:"new_amount"`
	RestakeCount uint32 `json:"restake_count"`
}

// StakingService owns stake positions and executes the staking operations.
// All mutation for one account is serialized behind that account's lock; the
// Ledger call is the only suspension point and its failure discards the
// staged state (no partial commit). Different accounts proceed concurrently.
type StakingService struct {
	policy *PolicyService
	ledger ledger.Ledger
	clock  ledger.Clock
	vault  common.Address

	mu        sync.Mutex
	positions map[common.Address]*position
	locks     map[common.Address]*sync.Mutex

	positionRepo repository.PositionRepository
	receiptRepo  repository.ReceiptRepository
	publisher    *events.Publisher
	sink         PayoutSink
	logger       *logrus.Logger
}

// NewStakingService creates a StakingService. Repositories, publisher and
// sink may be nil; the in-memory state is always authoritative.
func NewStakingService(
	policy *PolicyService,
	lgr ledger.Ledger,
	clock ledger.Clock,
	vault common.Address,
	positionRepo repository.PositionRepository,
	receiptRepo repository.ReceiptRepository,
	publisher *events.Publisher,
	logger *logrus.Logger,
) *StakingService {
	return &StakingService{
		policy:       policy,
		ledger:       lgr,
		clock:        clock,
		vault:        vault,
		positions:    make(map[common.Address]*position),
		locks:        make(map[common.Address]*sync.Mutex),
		positionRepo: positionRepo,
		receiptRepo:  receiptRepo,
		publisher:    publisher,
		logger:       logger,
	}
}

// SetSink attaches the live push sink (websocket hub).
func (s *StakingService) SetSink(sink PayoutSink) { s.sink = sink }

// LoadFromStore reloads position snapshots from the repository at startup.
func (s *StakingService) LoadFromStore(ctx context.Context) error {
	if s.positionRepo == nil {
		return nil
	}
	rows, err := s.positionRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	for _, row := range rows {
		pos := &position{
			amount:               utils.ParseAmount(row.Amount),
			startTime:            row.StartTime,
			lastRewardCheckpoint: row.LastRewardCheckpoint,
			isStaking:            row.IsStaking,
			restakeCount:         row.RestakeCount,
			totalRestaked:        utils.ParseAmount(row.TotalRestaked),
		}
		if pos.amount == nil {
			pos.amount = new(big.Int)
		}
		if pos.totalRestaked == nil {
			pos.totalRestaked = new(big.Int)
		}
		s.positions[common.HexToAddress(row.Account)] = pos
		if pos.isStaking {
			active++
		}
	}
	metrics.ActivePositions.Set(float64(active))
	s.logger.WithFields(logrus.Fields{
		"positions": len(rows),
		"active":    active,
	}).Info("Stake positions loaded from store")
	return nil
}

// accountLock returns the per-account mutex, creating it on first use.
func (s *StakingService) accountLock(account common.Address) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[account]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[account] = lock
	}
	return lock
}

func (s *StakingService) getPosition(account common.Address) *position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[account]
}

func (s *StakingService) putPosition(account common.Address, pos *position) {
	s.mu.Lock()
	s.positions[account] = pos
	active := 0
	for _, p := range s.positions {
		if p.isStaking {
			active++
		}
	}
	s.mu.Unlock()
	metrics.ActivePositions.Set(float64(active))
}

// accrued computes the pending reward (base accrual plus the ongoing restake
// bonus) for pos as of now under the given policy snapshot.
func accrued(pos *position, now int64, policy PolicySnapshot) *big.Int {
	if pos == nil || !pos.isStaking || pos.amount.Sign() <= 0 {
		return new(big.Int)
	}
	elapsed := now - pos.lastRewardCheckpoint
	return engine.AccruedReward(pos.amount, policy.RewardRateBps, elapsed, policy.RestakeBonusBps, pos.restakeCount)
}

// payReward transfers reward from the vault to account. Returns the amount
// actually delivered. Callers advance the staged checkpoint only when this
// succeeds.
func (s *StakingService) payReward(ctx context.Context, account common.Address, reward *big.Int) (*big.Int, error) {
	if reward.Sign() <= 0 {
		return new(big.Int), nil
	}
	received, err := s.ledger.Transfer(ctx, s.vault, account, reward)
	if err != nil {
		return nil, fmt.Errorf("%w: reward payout: %v", engine.ErrLedgerTransfer, err)
	}
	return received, nil
}

// recordPayout persists and pushes a committed reward settlement.
func (s *StakingService) recordPayout(ctx context.Context, account common.Address, amount *big.Int, operation string, now int64) {
	if amount.Sign() <= 0 {
		return
	}
	metrics.RewardsPaid.WithLabelValues(operation).Inc()
	payout := &models.RewardPayout{
		ID:        uuid.New().String(),
		Account:   account.Hex(),
		Amount:    utils.AmountString(amount),
		Operation: operation,
		Timestamp: now,
	}
	if s.receiptRepo != nil {
		if err := s.receiptRepo.CreateRewardPayout(ctx, payout); err != nil {
			s.logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("Failed to persist reward payout")
		}
	}
	s.publisher.Publish("staking", "reward_paid", payout)
	if s.sink != nil {
		s.sink.PushPayout(payout)
	}
}

// persistPosition writes the post-commit snapshot. Persistence is
// write-behind: a failure is logged, the in-memory commit stands.
func (s *StakingService) persistPosition(ctx context.Context, account common.Address, pos *position) {
	if s.positionRepo == nil {
		return
	}
	row := &models.StakePosition{
		Account:              account.Hex(),
		Amount:               utils.AmountString(pos.amount),
		StartTime:            pos.startTime,
		LastRewardCheckpoint: pos.lastRewardCheckpoint,
		IsStaking:            pos.isStaking,
		RestakeCount:         pos.restakeCount,
		TotalRestaked:        utils.AmountString(pos.totalRestaked),
	}
	if err := s.positionRepo.Save(ctx, row); err != nil {
		s.logger.WithFields(logrus.Fields{
			"account": account.Hex(),
			"error":   err.Error(),
		}).Warn("Failed to persist position snapshot")
	}
}

// Deposit stakes amount for account. caller is the funding account; when it
// differs from account the target must not already be staking. A self-deposit
// over an active position settles pending rewards first, then the new
// position overwrites — the actual ledger-received amount is recorded, never
// the nominal one.
func (s *StakingService) Deposit(ctx context.Context, caller, account common.Address, amount *big.Int) (*DepositResult, error) {
	timer := time.Now()
	defer func() { metrics.OperationDuration.WithLabelValues("deposit").Observe(time.Since(timer).Seconds()) }()

	if amount == nil || amount.Sign() <= 0 {
		metrics.StakingOperations.WithLabelValues("deposit", "rejected").Inc()
		return nil, engine.ErrInsufficientDeposit
	}

	lock := s.accountLock(account)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now().Unix()
	policy := s.policy.Snapshot()
	existing := s.getPosition(account)

	if existing != nil && existing.isStaking && caller != account {
		metrics.StakingOperations.WithLabelValues("deposit", "rejected").Inc()
		return nil, engine.ErrAlreadyStaking
	}

	// Settle the caller's own pending rewards before the new position
	// overwrites the checkpointed state; skipping this would silently drop
	// accrued yield.
	rewardPaid := new(big.Int)
	if existing != nil && existing.isStaking {
		reward := accrued(existing, now, policy)
		paid, err := s.payReward(ctx, account, reward)
		if err != nil {
			metrics.StakingOperations.WithLabelValues("deposit", "ledger_error").Inc()
			return nil, err
		}
		rewardPaid = paid
	}

	received, err := s.ledger.Transfer(ctx, caller, s.vault, amount)
	if err != nil {
		metrics.StakingOperations.WithLabelValues("deposit", "ledger_error").Inc()
		return nil, fmt.Errorf("%w: deposit: %v", engine.ErrLedgerTransfer, err)
	}
	if received.Sign() <= 0 {
		metrics.StakingOperations.WithLabelValues("deposit", "rejected").Inc()
		return nil, engine.ErrInsufficientDeposit
	}

	pos := newPosition()
	pos.amount.Set(received)
	pos.startTime = now
	pos.lastRewardCheckpoint = now
	pos.isStaking = true
	s.putPosition(account, pos)
	s.persistPosition(ctx, account, pos)
	s.recordPayout(ctx, account, rewardPaid, models.PayoutOnDeposit, now)

	metrics.StakingOperations.WithLabelValues("deposit", "ok").Inc()
	s.logger.WithFields(logrus.Fields{
		"account":  account.Hex(),
		"received": received.String(),
		"reward":   rewardPaid.String(),
	}).Info("Deposit committed")

	result := &DepositResult{
		Account:        account.Hex(),
		AmountReceived: received.String(),
		RewardPaid:     utils.AmountString(rewardPaid),
		StartTime:      now,
	}
	s.publisher.Publish("staking", "deposit", result)
	return result, nil
}

// Withdraw removes amount of principal for caller, settling rewards first.
// Validation order is load-bearing: the zero-amount check precedes the
// minimum-period check.
func (s *StakingService) Withdraw(ctx context.Context, caller, recipient common.Address, amount *big.Int) (*WithdrawResult, error) {
	timer := time.Now()
	defer func() { metrics.OperationDuration.WithLabelValues("withdraw").Observe(time.Since(timer).Seconds()) }()

	if amount == nil || amount.Sign() <= 0 {
		metrics.StakingOperations.WithLabelValues("withdraw", "rejected").Inc()
		return nil, engine.ErrInsufficientWithdraw
	}

	lock := s.accountLock(caller)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now().Unix()
	policy := s.policy.Snapshot()
	pos := s.getPosition(caller)

	if pos == nil || !pos.isStaking {
		metrics.StakingOperations.WithLabelValues("withdraw", "rejected").Inc()
		return nil, engine.ErrNotStaking
	}
	if amount.Cmp(pos.amount) > 0 {
		metrics.StakingOperations.WithLabelValues("withdraw", "rejected").Inc()
		return nil, engine.ErrInsufficientBalance
	}
	if now < pos.startTime+policy.MinStakingPeriodS {
		metrics.StakingOperations.WithLabelValues("withdraw", "rejected").Inc()
		return nil, engine.ErrMinimumPeriodNotMet
	}

	staged := pos.clone()
	reward := accrued(pos, now, policy)

	rewardPaid, err := s.payReward(ctx, caller, reward)
	if err != nil {
		metrics.StakingOperations.WithLabelValues("withdraw", "ledger_error").Inc()
		return nil, err
	}
	if _, err := s.ledger.Transfer(ctx, s.vault, recipient, amount); err != nil {
		// Staged state is discarded: the checkpoint must not advance when
		// the principal transfer fails.
		metrics.StakingOperations.WithLabelValues("withdraw", "ledger_error").Inc()
		return nil, fmt.Errorf("%w: principal: %v", engine.ErrLedgerTransfer, err)
	}

	staged.lastRewardCheckpoint = now
	staged.amount.Sub(staged.amount, amount)
	closed := false
	if staged.amount.Sign() == 0 {
		staged.isStaking = false
		staged.restakeCount = 0
		staged.totalRestaked = new(big.Int)
		closed = true
	}
	s.putPosition(caller, staged)
	s.persistPosition(ctx, caller, staged)
	s.recordPayout(ctx, caller, rewardPaid, models.PayoutOnWithdraw, now)

	metrics.StakingOperations.WithLabelValues("withdraw", "ok").Inc()
	s.logger.WithFields(logrus.Fields{
		"account":   caller.Hex(),
		"principal": amount.String(),
		"reward":    rewardPaid.String(),
		"closed":    closed,
	}).Info("Withdraw committed")

	result := &WithdrawResult{
		Account:    caller.Hex(),
		Principal:  amount.String(),
		RewardPaid: utils.AmountString(rewardPaid),
		Remaining:  staged.amount.String(),
		Closed:     closed,
	}
	s.publisher.Publish("staking", "withdraw", result)
	return result, nil
}

// Restake compounds the pending reward plus the principal-proportional step
// bonus back into the position. No ledger transfer occurs — this is the
// difference from ClaimRewards.
func (s *StakingService) Restake(ctx context.Context, caller common.Address) (*RestakeResult, error) {
	timer := time.Now()
	defer func() { metrics.OperationDuration.WithLabelValues("restake").Observe(time.Since(timer).Seconds()) }()

	lock := s.accountLock(caller)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now().Unix()
	policy := s.policy.Snapshot()
	pos := s.getPosition(caller)

	if pos == nil || !pos.isStaking {
		metrics.StakingOperations.WithLabelValues("restake", "rejected").Inc()
		return nil, engine.ErrNotStaking
	}
	if pos.restakeCount >= policy.MaxRestakes {
		metrics.StakingOperations.WithLabelValues("restake", "rejected").Inc()
		return nil, engine.ErrMaxRestakesReached
	}
	if now < pos.startTime+policy.MinStakingPeriodS {
		metrics.StakingOperations.WithLabelValues("restake", "rejected").Inc()
		return nil, engine.ErrRestakeNotAvailable
	}

	elapsed := now - pos.lastRewardCheckpoint
	reward := engine.AccruedReward(pos.amount, policy.RewardRateBps, elapsed, policy.RestakeBonusBps, pos.restakeCount)
	bonus := engine.RestakeStepBonus(pos.amount, policy.RestakeBonusBps, pos.restakeCount)

	staged := pos.clone()
	compounded := new(big.Int).Add(reward, bonus)
	staged.amount.Add(staged.amount, compounded)
	staged.startTime = now
	staged.lastRewardCheckpoint = now
	staged.restakeCount++
	staged.totalRestaked.Add(staged.totalRestaked, compounded)

	s.putPosition(caller, staged)
	s.persistPosition(ctx, caller, staged)

	metrics.StakingOperations.WithLabelValues("restake", "ok").Inc()
	s.logger.WithFields(logrus.Fields{
		"account":       caller.Hex(),
		"reward":        reward.String(),
		"bonus":         bonus.String(),
		"restake_count": staged.restakeCount,
	}).Info("Restake committed")

	result := &RestakeResult{
		Account:      caller.Hex(),
		Reward:       reward.String(),
		Bonus:        bonus.String(),
		NewAmount:    staged.amount.String(),
		RestakeCount: staged.restakeCount,
	}
	s.publisher.Publish("staking", "restake", result)
	return result, nil
}

// ClaimRewards settles the pending reward through the Ledger and advances
// the checkpoint. The checkpoint does not move if the transfer fails.
func (s *StakingService) ClaimRewards(ctx context.Context, caller common.Address) (*big.Int, error) {
	timer := time.Now()
	defer func() { metrics.OperationDuration.WithLabelValues("claim").Observe(time.Since(timer).Seconds()) }()

	lock := s.accountLock(caller)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now().Unix()
	policy := s.policy.Snapshot()
	pos := s.getPosition(caller)

	if pos == nil || !pos.isStaking {
		metrics.StakingOperations.WithLabelValues("claim", "rejected").Inc()
		return nil, engine.ErrNotStaking
	}

	reward := accrued(pos, now, policy)
	rewardPaid, err := s.payReward(ctx, caller, reward)
	if err != nil {
		metrics.StakingOperations.WithLabelValues("claim", "ledger_error").Inc()
		return nil, err
	}

	staged := pos.clone()
	staged.lastRewardCheckpoint = now
	s.putPosition(caller, staged)
	s.persistPosition(ctx, caller, staged)
	s.recordPayout(ctx, caller, rewardPaid, models.PayoutOnClaim, now)

	metrics.StakingOperations.WithLabelValues("claim", "ok").Inc()
	s.logger.WithFields(logrus.Fields{
		"account": caller.Hex(),
		"reward":  rewardPaid.String(),
	}).Info("Rewards claimed")
	return rewardPaid, nil
}

// GetStakeInfo returns the current position plus the live pending reward.
func (s *StakingService) GetStakeInfo(account common.Address) *StakeInfo {
	lock := s.accountLock(account)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now().Unix()
	policy := s.policy.Snapshot()
	pos := s.getPosition(account)
	if pos == nil {
		pos = newPosition()
	}
	return &StakeInfo{
		Account:              account.Hex(),
		Amount:               utils.AmountString(pos.amount),
		StartTime:            pos.startTime,
		LastRewardCheckpoint: pos.lastRewardCheckpoint,
		IsStaking:            pos.isStaking,
		RestakeCount:         pos.restakeCount,
		TotalRestaked:        utils.AmountString(pos.totalRestaked),
		PendingReward:        utils.AmountString(accrued(pos, now, policy)),
		AsOf:                 now,
	}
}

package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"go-ledger/internal/config"
	"go-ledger/internal/engine"
	"go-ledger/internal/events"
	"go-ledger/internal/models"
	"go-ledger/internal/repository"
)

// PolicySnapshot is a consistent read of every policy parameter, taken under
// one lock so an operation never mixes parameters from two policy versions.
type PolicySnapshot struct {
	RewardRateBps     uint64 `json:"reward_rate_bps"`
	MinStakingPeriodS int64  `json:"min_staking_period_s"`
	RestakeBonusBps   uint64 `json:"restake_bonus_bps"`
	MaxRestakes       uint32 `json:"max_restakes"`
	DefaultPoolFeeBps uint64 `json:"default_pool_fee_bps"`
	DefaultSpreadBps  uint64 `json:"default_spread_bps"`
}

// PolicyService owns the mutable policy parameters. Every accrual and
// withdrawal computation reads a snapshot; only the authorized admin
// operation mutates.
type PolicyService struct {
	mu               sync.RWMutex
	params           PolicySnapshot
	maxRewardRateBps uint64

	repo      repository.PolicyRepository
	publisher *events.Publisher
	logger    *logrus.Logger
}

// NewPolicyService seeds the policy store from configuration. repo and
// publisher may be nil (no audit persistence / no events).
func NewPolicyService(cfg config.PolicyConfig, repo repository.PolicyRepository, publisher *events.Publisher, logger *logrus.Logger) *PolicyService {
	return &PolicyService{
		params: PolicySnapshot{
			RewardRateBps:     cfg.RewardRateBps,
			MinStakingPeriodS: cfg.MinStakingPeriodS,
			RestakeBonusBps:   cfg.RestakeBonusBps,
			MaxRestakes:       cfg.MaxRestakes,
			DefaultPoolFeeBps: cfg.DefaultPoolFeeBps,
			DefaultSpreadBps:  cfg.DefaultSpreadBps,
		},
		maxRewardRateBps: cfg.MaxRewardRateBps,
		repo:             repo,
		publisher:        publisher,
		logger:           logger,
	}
}

// Snapshot returns a consistent copy of the current parameters.
func (s *PolicyService) Snapshot() PolicySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// SetRewardRate updates the staking reward rate. Rates above the configured
// ceiling (1000 bps = 10% APY by default) are rejected before any mutation.
func (s *PolicyService) SetRewardRate(ctx context.Context, newRateBps uint64, changedBy string) error {
	s.mu.Lock()
	if newRateBps > s.maxRewardRateBps {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d bps (max %d)", engine.ErrRateTooHigh, newRateBps, s.maxRewardRateBps)
	}
	oldRate := s.params.RewardRateBps
	s.params.RewardRateBps = newRateBps
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"old_rate_bps": oldRate,
		"new_rate_bps": newRateBps,
		"changed_by":   changedBy,
	}).Info("Reward rate updated")

	if s.repo != nil {
		change := &models.PolicyChange{
			Parameter: "reward_rate_bps",
			OldValue:  strconv.FormatUint(oldRate, 10),
			NewValue:  strconv.FormatUint(newRateBps, 10),
			ChangedBy: changedBy,
		}
		if err := s.repo.RecordChange(ctx, change); err != nil {
			s.logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("Failed to record policy change")
		}
	}
	s.publisher.Publish("policy", "reward_rate", map[string]any{
		"old_rate_bps": oldRate,
		"new_rate_bps": newRateBps,
		"changed_by":   changedBy,
	})
	return nil
}

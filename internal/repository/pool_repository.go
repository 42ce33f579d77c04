package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-ledger/internal/models"
)

// PoolRepository defines the interface for liquidity pool snapshots.
type PoolRepository interface {
	Save(ctx context.Context, pool *models.LiquidityPool) error
	GetByPair(ctx context.Context, pair string) (*models.LiquidityPool, error)
	ListAll(ctx context.Context) ([]*models.LiquidityPool, error)
}

// ReceiptRepository defines the interface for swap receipts and reward
// payouts. Both are append-only.
type ReceiptRepository interface {
	CreateSwapReceipt(ctx context.Context, receipt *models.SwapReceipt) error
	CreateRewardPayout(ctx context.Context, payout *models.RewardPayout) error
	FindSwapsByTrader(ctx context.Context, trader string, limit int) ([]*models.SwapReceipt, error)
	FindPayoutsByAccount(ctx context.Context, account string, limit int) ([]*models.RewardPayout, error)
}

// PolicyRepository records policy parameter changes.
type PolicyRepository interface {
	RecordChange(ctx context.Context, change *models.PolicyChange) error
	History(ctx context.Context, parameter string, limit int) ([]*models.PolicyChange, error)
}

type poolRepository struct {
	db *gorm.DB
}

// NewPoolRepository creates a new PoolRepository instance
func NewPoolRepository(db *gorm.DB) PoolRepository {
	return &poolRepository{db: db}
}

// Save upserts a pool snapshot keyed by pair.
func (r *poolRepository) Save(ctx context.Context, pool *models.LiquidityPool) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair"}},
			UpdateAll: true,
		}).
		Create(pool).Error
}

// GetByPair retrieves a pool by canonical pair key
func (r *poolRepository) GetByPair(ctx context.Context, pair string) (*models.LiquidityPool, error) {
	var pool models.LiquidityPool
	err := r.db.WithContext(ctx).Where("pair = ?", pair).First(&pool).Error
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// ListAll lists every stored pool
func (r *poolRepository) ListAll(ctx context.Context) ([]*models.LiquidityPool, error) {
	var pools []*models.LiquidityPool
	err := r.db.WithContext(ctx).Order("pair ASC").Find(&pools).Error
	return pools, err
}

type receiptRepository struct {
	db *gorm.DB
}

// NewReceiptRepository creates a new ReceiptRepository instance
func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) CreateSwapReceipt(ctx context.Context, receipt *models.SwapReceipt) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}

func (r *receiptRepository) CreateRewardPayout(ctx context.Context, payout *models.RewardPayout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *receiptRepository) FindSwapsByTrader(ctx context.Context, trader string, limit int) ([]*models.SwapReceipt, error) {
	var receipts []*models.SwapReceipt
	err := r.db.WithContext(ctx).
		Where("trader = ?", trader).
		Order("timestamp DESC").
		Limit(limit).
		Find(&receipts).Error
	return receipts, err
}

func (r *receiptRepository) FindPayoutsByAccount(ctx context.Context, account string, limit int) ([]*models.RewardPayout, error) {
	var payouts []*models.RewardPayout
	err := r.db.WithContext(ctx).
		Where("account = ?", account).
		Order("timestamp DESC").
		Limit(limit).
		Find(&payouts).Error
	return payouts, err
}

type policyRepository struct {
	db *gorm.DB
}

// NewPolicyRepository creates a new PolicyRepository instance
func NewPolicyRepository(db *gorm.DB) PolicyRepository {
	return &policyRepository{db: db}
}

func (r *policyRepository) RecordChange(ctx context.Context, change *models.PolicyChange) error {
	return r.db.WithContext(ctx).Create(change).Error
}

func (r *policyRepository) History(ctx context.Context, parameter string, limit int) ([]*models.PolicyChange, error) {
	var changes []*models.PolicyChange
	err := r.db.WithContext(ctx).
		Where("parameter = ?", parameter).
		Order("id DESC").
		Limit(limit).
		Find(&changes).Error
	return changes, err
}

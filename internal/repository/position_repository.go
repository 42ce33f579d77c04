package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-ledger/internal/models"
)

// PositionRepository defines the interface for stake position snapshots.
type PositionRepository interface {
	Save(ctx context.Context, position *models.StakePosition) error
	GetByAccount(ctx context.Context, account string) (*models.StakePosition, error)
	ListAll(ctx context.Context) ([]*models.StakePosition, error)
	ListActive(ctx context.Context) ([]*models.StakePosition, error)
}

// positionRepository implements PositionRepository
type positionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new PositionRepository instance
func NewPositionRepository(db *gorm.DB) PositionRepository {
	return &positionRepository{db: db}
}

// Save upserts a position snapshot keyed by account.
func (r *positionRepository) Save(ctx context.Context, position *models.StakePosition) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			UpdateAll: true,
		}).
		Create(position).Error
}

// GetByAccount retrieves a position by account address
func (r *positionRepository) GetByAccount(ctx context.Context, account string) (*models.StakePosition, error) {
	var position models.StakePosition
	err := r.db.WithContext(ctx).Where("account = ?", account).First(&position).Error
	if err != nil {
		return nil, err
	}
	return &position, nil
}

// ListAll lists every stored position snapshot
func (r *positionRepository) ListAll(ctx context.Context) ([]*models.StakePosition, error) {
	var positions []*models.StakePosition
	err := r.db.WithContext(ctx).Order("account ASC").Find(&positions).Error
	return positions, err
}

// ListActive lists positions with is_staking = true
func (r *positionRepository) ListActive(ctx context.Context) ([]*models.StakePosition, error) {
	var positions []*models.StakePosition
	err := r.db.WithContext(ctx).
		Where("is_staking = ?", true).
		Order("account ASC").
		Find(&positions).Error
	return positions, err
}

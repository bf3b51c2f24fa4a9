package repository

import (
	"context"
	"errors"

	"tokencore/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPoolNotFound = errors.New("代币池不存在")
	ErrPoolExists   = errors.New("该空间的代币池已存在")
)

type PoolRepository struct {
	db *gorm.DB
}

func NewPoolRepository(db *gorm.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

func (r *PoolRepository) Create(ctx context.Context, pool *model.TokenPool) error {
	err := r.db.WithContext(ctx).Create(pool).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrPoolExists
	}
	return err
}

func (r *PoolRepository) GetBySpaceID(ctx context.Context, spaceID int64) (*model.TokenPool, error) {
	var pool model.TokenPool
	err := r.db.WithContext(ctx).Where("space_id = ?", spaceID).First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	return &pool, nil
}

// GetBySpaceIDForUpdate 行锁读取
// 同一代币池上的发行・销毁・配布必须串行，守恒不变式才有保证
func (r *PoolRepository) GetBySpaceIDForUpdate(ctx context.Context, tx *gorm.DB, spaceID int64) (*model.TokenPool, error) {
	var pool model.TokenPool
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("space_id = ?", spaceID).
		First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	return &pool, nil
}

// Save 带乐观锁的保存，作为行锁之外的最后防线
func (r *PoolRepository) Save(ctx context.Context, tx *gorm.DB, pool *model.TokenPool) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.TokenPool{}).
		Where("id = ? AND version = ?", pool.ID, pool.Version).
		Updates(map[string]interface{}{
			"total_supply":             pool.TotalSupply,
			"issued_amount":            pool.IssuedAmount,
			"burned_amount":            pool.BurnedAmount,
			"circulating_supply":       pool.CirculatingSupply,
			"reserve_pool":             pool.ReservePool,
			"reward_pool":              pool.RewardPool,
			"governance_pool":          pool.GovernancePool,
			"ecosystem_pool":           pool.EcosystemPool,
			"issue_rate":               pool.IssueRate,
			"burn_rate":                pool.BurnRate,
			"collection_threshold":     pool.CollectionThreshold,
			"max_supply":               pool.MaxSupply,
			"status":                   pool.Status,
			"last_reward_distribution": pool.LastRewardDistribution,
			"last_burn_at":             pool.LastBurnAt,
			"version":                  gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	pool.Version++
	return nil
}

func (r *PoolRepository) List(ctx context.Context, page, pageSize int) ([]*model.TokenPool, int64, error) {
	var pools []*model.TokenPool
	var total int64

	query := r.db.WithContext(ctx).Model(&model.TokenPool{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("space_id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&pools).Error

	return pools, total, err
}

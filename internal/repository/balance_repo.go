package repository

import (
	"context"
	"errors"

	"tokencore/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBalanceNotFound  = errors.New("余额账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrBalanceFrozen    = errors.New("账户已冻结")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
)

type PointBalanceRepository struct {
	db *gorm.DB
}

func NewPointBalanceRepository(db *gorm.DB) *PointBalanceRepository {
	return &PointBalanceRepository{db: db}
}

func (r *PointBalanceRepository) GetByUser(ctx context.Context, userID string, spaceID int64) (*model.PointBalance, error) {
	var balance model.PointBalance
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND space_id = ?", userID, spaceID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// GetByUserForUpdate 行锁读取，用于事务内的余额变动
func (r *PointBalanceRepository) GetByUserForUpdate(ctx context.Context, tx *gorm.DB, userID string, spaceID int64) (*model.PointBalance, error) {
	var balance model.PointBalance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND space_id = ?", userID, spaceID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

func (r *PointBalanceRepository) GetOrCreate(ctx context.Context, userID string, spaceID int64) (*model.PointBalance, error) {
	balance, err := r.GetByUser(ctx, userID, spaceID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, ErrBalanceNotFound) {
		return nil, err
	}

	newBalance := &model.PointBalance{
		UserID:  userID,
		SpaceID: spaceID,
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "space_id"}},
			DoNothing: true,
		}).
		Create(newBalance).Error
	if err != nil {
		return nil, err
	}

	return r.GetByUser(ctx, userID, spaceID)
}

// TotalBalance 空间内全用户余额合计，治理参与率的分母
func (r *PointBalanceRepository) TotalBalance(ctx context.Context, spaceID int64) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&model.PointBalance{}).
		Where("space_id = ?", spaceID).
		Select("SUM(current_balance)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// ListAbove 余额超过阈值的账户，按余额降序返回，回收候补筛选用
func (r *PointBalanceRepository) ListAbove(ctx context.Context, spaceID int64, threshold decimal.Decimal, limit int) ([]*model.PointBalance, error) {
	var balances []*model.PointBalance
	err := r.db.WithContext(ctx).
		Where("space_id = ? AND current_balance > ?", spaceID, threshold).
		Order("current_balance DESC").
		Limit(limit).
		Find(&balances).Error
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// Save 带乐观锁的余额保存，版本不一致时返回 ErrOptimisticLock
func (r *PointBalanceRepository) Save(ctx context.Context, tx *gorm.DB, balance *model.PointBalance) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.PointBalance{}).
		Where("id = ? AND version = ?", balance.ID, balance.Version).
		Updates(map[string]interface{}{
			"current_balance": balance.CurrentBalance,
			"total_earned":    balance.TotalEarned,
			"total_spent":     balance.TotalSpent,
			"total_collected": balance.TotalCollected,
			"frozen":          balance.Frozen,
			"version":         gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	balance.Version++
	return nil
}

type LegacyBalanceRepository struct {
	db *gorm.DB
}

func NewLegacyBalanceRepository(db *gorm.DB) *LegacyBalanceRepository {
	return &LegacyBalanceRepository{db: db}
}

func (r *LegacyBalanceRepository) GetByUser(ctx context.Context, userID string, spaceID int64) (*model.LegacyBalance, error) {
	var balance model.LegacyBalance
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND space_id = ?", userID, spaceID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// SetBalance 将镜像余额强制写为指定值（不存在则创建）
// 镜像只接受来自权威侧的单向同步
func (r *LegacyBalanceRepository) SetBalance(ctx context.Context, tx *gorm.DB, userID string, spaceID int64, value decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "space_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"current_balance": value}),
		}).
		Create(&model.LegacyBalance{
			UserID:         userID,
			SpaceID:        spaceID,
			CurrentBalance: value,
		}).Error
}

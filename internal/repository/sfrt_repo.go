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
	ErrSfrtBalanceNotFound = errors.New("SFRT余额账户不存在")
	ErrSfrtNotEnough       = errors.New("SFRT余额不足")
	ErrSfrtTxNotFound      = errors.New("SFRT流水不存在")
)

type SfrtRepository struct {
	db *gorm.DB
}

func NewSfrtRepository(db *gorm.DB) *SfrtRepository {
	return &SfrtRepository{db: db}
}

func (r *SfrtRepository) GetBalance(ctx context.Context, userID string, spaceID int64) (*model.SfrtBalance, error) {
	var balance model.SfrtBalance
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND space_id = ?", userID, spaceID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSfrtBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// GetOrCreateBalance 首次入账时自动建户，零值账户
func (r *SfrtRepository) GetOrCreateBalance(ctx context.Context, tx *gorm.DB, userID string, spaceID int64) (*model.SfrtBalance, error) {
	if tx == nil {
		tx = r.db
	}

	balance := &model.SfrtBalance{
		UserID:  userID,
		SpaceID: spaceID,
	}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(balance).Error
	if err != nil {
		return nil, err
	}

	var existing model.SfrtBalance
	err = tx.WithContext(ctx).
		Where("user_id = ? AND space_id = ?", userID, spaceID).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

// Credit 入账，乐观锁保护并发
func (r *SfrtRepository) Credit(ctx context.Context, tx *gorm.DB, balance *model.SfrtBalance, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.SfrtBalance{}).
		Where("id = ? AND version = ?", balance.ID, balance.Version).
		Updates(map[string]interface{}{
			"balance":      balance.Balance.Add(amount),
			"total_earned": balance.TotalEarned.Add(amount),
			"version":      balance.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	balance.Balance = balance.Balance.Add(amount)
	balance.TotalEarned = balance.TotalEarned.Add(amount)
	balance.Version++
	return nil
}

// Withdraw 出账，余额不足直接拒绝
func (r *SfrtRepository) Withdraw(ctx context.Context, tx *gorm.DB, balance *model.SfrtBalance, amount decimal.Decimal) error {
	if balance.Balance.LessThan(amount) {
		return ErrSfrtNotEnough
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.SfrtBalance{}).
		Where("id = ? AND version = ?", balance.ID, balance.Version).
		Updates(map[string]interface{}{
			"balance":         balance.Balance.Sub(amount),
			"total_withdrawn": balance.TotalWithdrawn.Add(amount),
			"version":         balance.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	balance.Balance = balance.Balance.Sub(amount)
	balance.TotalWithdrawn = balance.TotalWithdrawn.Add(amount)
	balance.Version++
	return nil
}

func (r *SfrtRepository) CreateTx(ctx context.Context, tx *gorm.DB, record *model.SfrtTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

// GetByRelatedTxID 按业务流水号查已有分账记录，幂等判定用
// 不存在返回 nil 而不是错误
func (r *SfrtRepository) GetByRelatedTxID(ctx context.Context, relatedTxID string) ([]*model.SfrtTransaction, error) {
	var records []*model.SfrtTransaction
	err := r.db.WithContext(ctx).
		Where("related_tx_id = ?", relatedTxID).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *SfrtRepository) ListTxByUser(ctx context.Context, userID string, spaceID int64, page, pageSize int) ([]*model.SfrtTransaction, int64, error) {
	var records []*model.SfrtTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.SfrtTransaction{}).
		Where("user_id = ? AND space_id = ?", userID, spaceID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error

	return records, total, err
}

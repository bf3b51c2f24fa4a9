package repository

import (
	"context"
	"errors"
	"time"

	"tokencore/internal/model"

	"gorm.io/gorm"
)

var (
	ErrRewardNotFound      = errors.New("奖励发放记录不存在")
	ErrRewardStatusInvalid = errors.New("奖励状态不允许该转移")
)

type RewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

func (r *RewardRepository) Create(ctx context.Context, tx *gorm.DB, reward *model.RewardDistribution) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(reward).Error
}

func (r *RewardRepository) GetByRewardNo(ctx context.Context, rewardNo string) (*model.RewardDistribution, error) {
	var reward model.RewardDistribution
	err := r.db.WithContext(ctx).Where("reward_no = ?", rewardNo).First(&reward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	return &reward, nil
}

// GetByReference 按触发事件参照查询（幂等判定用），不存在时返回 nil
func (r *RewardRepository) GetByReference(ctx context.Context, category, referenceID string) (*model.RewardDistribution, error) {
	var reward model.RewardDistribution
	err := r.db.WithContext(ctx).
		Where("category = ? AND reference_id = ?", category, referenceID).
		First(&reward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reward, nil
}

// UpdateStatus 状态转移（compare-and-set）
//
// 【关键点】WHERE 条件携带 fromStatus，数据库层面保证同一条记录
// 不会被并发地做两次相同转移；RowsAffected == 0 即竞争失败或状态不合法
func (r *RewardRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, rewardNo string, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanRewardTransitionTo(fromStatus, toStatus) {
		return ErrRewardStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.RewardDistribution{}).
		Where("reward_no = ? AND status = ?", rewardNo, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRewardStatusInvalid
	}
	return nil
}

// RewardFilter 奖励查询过滤条件
type RewardFilter struct {
	SpaceID   int64
	UserID    string
	Status    string
	Category  string
	StartTime *time.Time
	EndTime   *time.Time
}

func (r *RewardRepository) List(ctx context.Context, filter RewardFilter, page, pageSize int) ([]*model.RewardDistribution, int64, error) {
	var rewards []*model.RewardDistribution
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RewardDistribution{})
	if filter.SpaceID > 0 {
		query = query.Where("space_id = ?", filter.SpaceID)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at < ?", *filter.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rewards).Error

	return rewards, total, err
}

// ListInWindow 时间窗口内全量读取（统计用）
func (r *RewardRepository) ListInWindow(ctx context.Context, spaceID int64, start, end time.Time) ([]*model.RewardDistribution, error) {
	var rewards []*model.RewardDistribution
	err := r.db.WithContext(ctx).
		Where("space_id = ? AND created_at >= ? AND created_at < ?", spaceID, start, end).
		Order("created_at ASC").
		Find(&rewards).Error
	return rewards, err
}

// GetExpirable 取已过期但仍处于 PENDING/APPROVED 的奖励
func (r *RewardRepository) GetExpirable(ctx context.Context, limit int) ([]*model.RewardDistribution, error) {
	var rewards []*model.RewardDistribution
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]string{model.RewardStatusPending, model.RewardStatusApproved}, time.Now()).
		Limit(limit).
		Find(&rewards).Error
	return rewards, err
}

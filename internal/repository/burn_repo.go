package repository

import (
	"context"
	"errors"
	"time"

	"tokencore/internal/model"

	"gorm.io/gorm"
)

var (
	ErrBurnNotFound      = errors.New("销毁决议不存在")
	ErrBurnStatusInvalid = errors.New("销毁决议状态不允许该转移")
)

type BurnRepository struct {
	db *gorm.DB
}

func NewBurnRepository(db *gorm.DB) *BurnRepository {
	return &BurnRepository{db: db}
}

func (r *BurnRepository) Create(ctx context.Context, tx *gorm.DB, decision *model.BurnDecision) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(decision).Error
}

func (r *BurnRepository) GetByBurnNo(ctx context.Context, burnNo string) (*model.BurnDecision, error) {
	var decision model.BurnDecision
	err := r.db.WithContext(ctx).Where("burn_no = ?", burnNo).First(&decision).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBurnNotFound
		}
		return nil, err
	}
	return &decision, nil
}

// UpdateStatus 状态转移（compare-and-set），与奖励仓库同一套路
func (r *BurnRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, burnNo string, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanBurnTransitionTo(fromStatus, toStatus) {
		return ErrBurnStatusInvalid
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
		Model(&model.BurnDecision{}).
		Where("burn_no = ? AND status = ?", burnNo, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBurnStatusInvalid
	}
	return nil
}

// Cancel 从任意非终态取消（终态之外一律允许，终态拒绝）
func (r *BurnRepository) Cancel(ctx context.Context, burnNo, actor, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&model.BurnDecision{}).
		Where("burn_no = ? AND status NOT IN ?", burnNo,
			[]string{model.BurnStatusCompleted, model.BurnStatusFailed,
				model.BurnStatusRejected, model.BurnStatusCancelled}).
		Updates(map[string]interface{}{
			"status":         model.BurnStatusCancelled,
			"decided_by":     actor,
			"failure_reason": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBurnStatusInvalid
	}
	return nil
}

// BurnFilter 销毁决议查询过滤条件
type BurnFilter struct {
	SpaceID      int64
	Status       string
	DecisionType string
	StartTime    *time.Time
	EndTime      *time.Time
}

func (r *BurnRepository) List(ctx context.Context, filter BurnFilter, page, pageSize int) ([]*model.BurnDecision, int64, error) {
	var decisions []*model.BurnDecision
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BurnDecision{})
	if filter.SpaceID > 0 {
		query = query.Where("space_id = ?", filter.SpaceID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DecisionType != "" {
		query = query.Where("decision_type = ?", filter.DecisionType)
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
		Find(&decisions).Error

	return decisions, total, err
}

// ListInWindow 时间窗口内全量读取
// 统计永远基于完整决议集合计算，不依赖运行中的累加计数器
func (r *BurnRepository) ListInWindow(ctx context.Context, spaceID int64, start, end time.Time) ([]*model.BurnDecision, error) {
	var decisions []*model.BurnDecision
	err := r.db.WithContext(ctx).
		Where("space_id = ? AND created_at >= ? AND created_at < ?", spaceID, start, end).
		Order("created_at ASC").
		Find(&decisions).Error
	return decisions, err
}

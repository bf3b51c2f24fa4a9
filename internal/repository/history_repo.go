package repository

import (
	"context"
	"errors"
	"time"

	"tokencore/internal/model"

	"gorm.io/gorm"
)

var (
	ErrHistoryNotFound = errors.New("余额履历不存在")
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append 追加一条余额履历。履历只追加，不提供更新方法
func (r *HistoryRepository) Append(ctx context.Context, tx *gorm.DB, entry *model.BalanceHistory) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *HistoryRepository) GetByHistoryNo(ctx context.Context, historyNo string) (*model.BalanceHistory, error) {
	var entry model.BalanceHistory
	err := r.db.WithContext(ctx).Where("history_no = ?", historyNo).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHistoryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// GetLatest 取用户最近一条履历，不存在时返回 nil
func (r *HistoryRepository) GetLatest(ctx context.Context, userID string, spaceID int64) (*model.BalanceHistory, error) {
	var entry model.BalanceHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND space_id = ?", userID, spaceID).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// HistoryFilter 履历查询过滤条件
type HistoryFilter struct {
	Kind      string
	StartTime *time.Time
	EndTime   *time.Time
}

func (r *HistoryRepository) ListByUser(ctx context.Context, userID string, spaceID int64, filter HistoryFilter, page, pageSize int) ([]*model.BalanceHistory, int64, error) {
	var entries []*model.BalanceHistory
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BalanceHistory{}).
		Where("user_id = ? AND space_id = ?", userID, spaceID)
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
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
		Find(&entries).Error

	return entries, total, err
}

// ListBetween 按时间窗口取全部履历（统计用，时间升序）
func (r *HistoryRepository) ListBetween(ctx context.Context, userID string, spaceID int64, start, end time.Time) ([]*model.BalanceHistory, error) {
	var entries []*model.BalanceHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND space_id = ? AND created_at >= ? AND created_at < ?",
			userID, spaceID, start, end).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// Delete 管理员显式删除履历（罕见操作，必须带原因走服务层审计）
func (r *HistoryRepository) Delete(ctx context.Context, historyNo string) error {
	result := r.db.WithContext(ctx).
		Where("history_no = ?", historyNo).
		Delete(&model.BalanceHistory{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrHistoryNotFound
	}
	return nil
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PointBalance 用户积分余额表（权威数据）
// 当前余额由履历推导而来，是余额的唯一真实来源
type PointBalance struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string          `gorm:"type:varchar(64);uniqueIndex:idx_point_user_space;not null" json:"user_id"`
	SpaceID        int64           `gorm:"uniqueIndex:idx_point_user_space;not null;default:1" json:"space_id"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"current_balance"`
	TotalEarned    decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_earned"`
	TotalSpent     decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_spent"`
	TotalCollected decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_collected"`
	Frozen         bool            `gorm:"not null;default:false" json:"frozen"` // 冻结中的账户拒绝一切变动
	Version        int             `gorm:"not null;default:0" json:"version"`    // 乐观锁版本号
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PointBalance) TableName() string {
	return "point_balance"
}

// Apply 按变动类型累计各项合计并更新当前余额
// 调用方已通过履历校验 after = before + delta，这里只做累计
func (b *PointBalance) Apply(kind string, amount, after decimal.Decimal) {
	b.CurrentBalance = after
	switch kind {
	case HistoryKindEarn:
		b.TotalEarned = b.TotalEarned.Add(amount)
	case HistoryKindSpend:
		b.TotalSpent = b.TotalSpent.Add(amount.Abs())
	case HistoryKindCollect:
		b.TotalCollected = b.TotalCollected.Add(amount.Abs())
	}
}

// IsActive 账户是否可变动
func (b *PointBalance) IsActive() bool {
	return !b.Frozen
}

// LegacyBalance 旧系统余额镜像表
//
// 【迁移期产物】旧消费方仍然读取这张表，因此每次权威余额变动时同步刷新。
// 依赖方向严格单向：PointBalance -> LegacyBalance，镜像永远不反向回写。
// 两者出现偏差时由一致性检查报告，并以 PointBalance 为准显式修复。
type LegacyBalance struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string          `gorm:"type:varchar(64);uniqueIndex:idx_legacy_user_space;not null" json:"user_id"`
	SpaceID        int64           `gorm:"uniqueIndex:idx_legacy_user_space;not null;default:1" json:"space_id"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"current_balance"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LegacyBalance) TableName() string {
	return "legacy_balance"
}

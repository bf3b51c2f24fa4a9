package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SFRT交易类型
const (
	SfrtTxRewardBuyer     = "REWARD_BUYER"     // 买方奖励
	SfrtTxRewardSeller    = "REWARD_SELLER"    // 卖方奖励
	SfrtTxPlatformReserve = "PLATFORM_RESERVE" // 平台蓄积
	SfrtTxManualAdjust    = "MANUAL_ADJUST"    // 手动调整
	SfrtTxWithdraw        = "WITHDRAW"         // 提取
)

// SfrtPlatformUserID 平台蓄积专用账户
const SfrtPlatformUserID = "PLATFORM"

// SfrtBalance SFRT余额表
// 主交易额按固定比例派生的二级奖励代币，与投票・销毁机制相互独立
type SfrtBalance struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string          `gorm:"type:varchar(64);uniqueIndex:idx_sfrt_user_space;not null" json:"user_id"`
	SpaceID        int64           `gorm:"uniqueIndex:idx_sfrt_user_space;not null;default:1" json:"space_id"`
	Balance        decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"balance"`
	TotalEarned    decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_earned"`
	TotalWithdrawn decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_withdrawn"`
	Version        int             `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SfrtBalance) TableName() string {
	return "sfrt_balance"
}

// SfrtTransaction SFRT流水表
// 每笔派生奖励・手动调整都关联到来源主交易，保证可追溯
type SfrtTransaction struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SfrtNo      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"sfrt_no"`
	UserID      string          `gorm:"type:varchar(64);index;not null" json:"user_id"`
	SpaceID     int64           `gorm:"not null;default:1" json:"space_id"`
	Type        string          `gorm:"type:varchar(20);not null" json:"type"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	RelatedTxID string          `gorm:"type:varchar(64);index" json:"related_tx_id"` // 来源主交易ID
	Reason      string          `gorm:"type:varchar(256)" json:"reason"`
	OperatorID  string          `gorm:"type:varchar(64)" json:"operator_id"` // 手动调整时的操作者
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (SfrtTransaction) TableName() string {
	return "sfrt_transaction"
}

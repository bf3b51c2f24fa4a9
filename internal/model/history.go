package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 余额变动类型常量
// ============================================================================

const (
	HistoryKindEarn     = "EARN"     // 奖励获得
	HistoryKindSpend    = "SPEND"    // 使用・支付
	HistoryKindCollect  = "COLLECT"  // 回收
	HistoryKindBurn     = "BURN"     // 销毁
	HistoryKindTransfer = "TRANSFER" // 转账
)

// ValidHistoryKind 变动类型白名单
func ValidHistoryKind(kind string) bool {
	switch kind {
	case HistoryKindEarn, HistoryKindSpend, HistoryKindCollect,
		HistoryKindBurn, HistoryKindTransfer:
		return true
	}
	return false
}

// ============================================================================
// 余额履历实体
// ============================================================================

// BalanceHistory 余额履历表
// 记录每一笔余额变动，是所有余额推理的基础
//
// 【重要】履历表设计原则：
// 1. 只追加，不修改 —— 保证审计可追溯；删除仅限管理员显式操作
// 2. 记录变动前后余额 —— balanceAfter = balanceBefore + amount 是铁律
// 3. 每笔履历携带参照ID —— 便于关联奖励、销毁、转账等来源
type BalanceHistory struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	HistoryNo     string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"history_no"` // 履历号（全局唯一）
	UserID        string          `gorm:"type:varchar(64);index;not null" json:"user_id"`
	SpaceID       int64           `gorm:"index;not null;default:1" json:"space_id"`
	Kind          string          `gorm:"type:varchar(20);not null" json:"kind"`             // 变动类型
	Amount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`         // 变动量（正数入账，负数出账）
	BalanceBefore decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"balance_before"` // 变动前余额
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"balance_after"`  // 变动后余额
	ReferenceID   string          `gorm:"type:varchar(64);index" json:"reference_id"`        // 来源参照ID
	Reason        string          `gorm:"type:varchar(256)" json:"reason"`                   // 变动原因
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (BalanceHistory) TableName() string {
	return "balance_history"
}

// IsBalanceValid 校验余额不变式：balanceAfter = balanceBefore + amount
// 违反此不变式属于致命领域错误，绝不自动修正
func (h *BalanceHistory) IsBalanceValid() bool {
	return h.BalanceAfter.Equal(h.BalanceBefore.Add(h.Amount))
}

// IsPositiveChange 是否为入账变动
func (h *BalanceHistory) IsPositiveChange() bool {
	return h.Amount.Sign() > 0
}

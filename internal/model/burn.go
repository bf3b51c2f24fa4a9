package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 销毁决议状态常量与状态机
// ============================================================================

const (
	BurnStatusProposed    = "PROPOSED"     // 已提案
	BurnStatusUnderReview = "UNDER_REVIEW" // 审查中
	BurnStatusApproved    = "APPROVED"     // 已批准
	BurnStatusScheduled   = "SCHEDULED"    // 已排期
	BurnStatusExecuting   = "EXECUTING"    // 执行中
	BurnStatusCompleted   = "COMPLETED"    // 完成
	BurnStatusFailed      = "FAILED"       // 失败
	BurnStatusRejected    = "REJECTED"     // 驳回
	BurnStatusCancelled   = "CANCELLED"    // 取消
)

// ValidBurnTransitions 销毁决议状态转移白名单
var ValidBurnTransitions = map[string][]string{
	BurnStatusProposed:    {BurnStatusUnderReview, BurnStatusApproved, BurnStatusRejected, BurnStatusCancelled},
	BurnStatusUnderReview: {BurnStatusApproved, BurnStatusRejected, BurnStatusCancelled},
	BurnStatusApproved:    {BurnStatusScheduled, BurnStatusExecuting, BurnStatusCancelled},
	BurnStatusScheduled:   {BurnStatusExecuting, BurnStatusCancelled},
	BurnStatusExecuting:   {BurnStatusCompleted, BurnStatusFailed},
}

// CanBurnTransitionTo 判断销毁状态转移是否合法
func CanBurnTransitionTo(currentStatus, targetStatus string) bool {
	allowed, exists := ValidBurnTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsBurnTerminal 是否为终态
func IsBurnTerminal(status string) bool {
	switch status {
	case BurnStatusCompleted, BurnStatusFailed, BurnStatusRejected, BurnStatusCancelled:
		return true
	}
	return false
}

// 决议类型
const (
	BurnDecisionManual      = "MANUAL"       // 管理员决定
	BurnDecisionAiAutomatic = "AI_AUTOMATIC" // AI自动判定
	BurnDecisionGovernance  = "GOVERNANCE"   // 治理提案
)

// 触发原因
const (
	BurnTriggerInflationControl = "INFLATION_CONTROL"  // 通胀控制
	BurnTriggerExcessSupply     = "EXCESS_SUPPLY"      // 供给过剩
	BurnTriggerLowActivity      = "LOW_ACTIVITY"       // 活跃度下降
	BurnTriggerMarketCorrection = "MARKET_CORRECTION"  // 市场修正
	BurnTriggerGovernance       = "GOVERNANCE_MANDATE" // 治理指令
	BurnTriggerEcosystemHealth  = "ECOSYSTEM_HEALTH"   // 生态健全性
)

// BurnDecision 销毁决议表
// 供给削减的提案・审批・执行全过程记录
type BurnDecision struct {
	ID                      int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	BurnNo                  string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"burn_no"`
	SpaceID                 int64           `gorm:"index;not null" json:"space_id"`
	ProposedAmount          decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"proposed_amount"`
	ActualAmount            decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"actual_amount"`
	CirculatingSupplyBefore decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"circulating_supply_before"`
	CirculatingSupplyAfter  decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"circulating_supply_after"`
	BurnRateProposed        decimal.Decimal `gorm:"type:decimal(10,6);not null" json:"burn_rate_proposed"` // proposedAmount / circulatingSupplyBefore
	BurnRateActual          decimal.Decimal `gorm:"type:decimal(10,6);not null;default:0" json:"burn_rate_actual"`
	DecisionType            string          `gorm:"type:varchar(20);not null" json:"decision_type"`
	TriggerReason           string          `gorm:"type:varchar(32);not null" json:"trigger_reason"`
	Rationale               string          `gorm:"type:varchar(512)" json:"rationale"` // 决定根据
	AiConfidenceScore       decimal.Decimal `gorm:"type:decimal(5,4);not null;default:0" json:"ai_confidence_score"`
	EconomicIndicators      string          `gorm:"type:text" json:"economic_indicators"` // JSON格式的经济指标快照（审计用）
	Status                  string          `gorm:"type:varchar(20);index;not null;default:PROPOSED" json:"status"`
	FailureReason           string          `gorm:"type:varchar(256)" json:"failure_reason"`
	ProposalNo              string          `gorm:"type:varchar(64)" json:"proposal_no"` // 治理提案编号（治理触发时）
	DecidedBy               string          `gorm:"type:varchar(64)" json:"decided_by"`
	ApprovedBy              string          `gorm:"type:varchar(64)" json:"approved_by"`
	ApprovedAt              *time.Time      `json:"approved_at"`
	ScheduledAt             *time.Time      `json:"scheduled_at"`
	ExecutedBy              string          `gorm:"type:varchar(64)" json:"executed_by"`
	ExecutedAt              *time.Time      `json:"executed_at"`
	TxRef                   string          `gorm:"type:varchar(64)" json:"tx_ref"`
	CreatedAt               time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt               time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BurnDecision) TableName() string {
	return "burn_decision"
}

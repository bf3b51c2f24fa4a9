package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tokencore/pkg/money"
)

// ============================================================================
// 奖励发放状态常量与状态机
// ============================================================================

const (
	RewardStatusPending    = "PENDING"    // 待审批
	RewardStatusApproved   = "APPROVED"   // 已审批
	RewardStatusProcessing = "PROCESSING" // 处理中
	RewardStatusCompleted  = "COMPLETED"  // 完成
	RewardStatusFailed     = "FAILED"     // 失败
	RewardStatusCancelled  = "CANCELLED"  // 取消
	RewardStatusExpired    = "EXPIRED"    // 过期
)

// ValidRewardTransitions 奖励状态转移白名单
// 未列出的转移一律拒绝（例如 COMPLETED -> PENDING）
var ValidRewardTransitions = map[string][]string{
	RewardStatusPending:    {RewardStatusApproved, RewardStatusCancelled, RewardStatusExpired},
	RewardStatusApproved:   {RewardStatusProcessing, RewardStatusCancelled, RewardStatusExpired},
	RewardStatusProcessing: {RewardStatusCompleted, RewardStatusFailed},
}

// CanRewardTransitionTo 判断奖励状态转移是否合法
func CanRewardTransitionTo(currentStatus, targetStatus string) bool {
	allowed, exists := ValidRewardTransitions[currentStatus]
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

// 奖励类别
const (
	RewardCategoryContent    = "CONTENT_CREATION"  // 内容创作
	RewardCategoryLearning   = "LEARNING_PROGRESS" // 学习进度
	RewardCategoryGovernance = "GOVERNANCE"        // 治理参与
	RewardCategoryPurchase   = "PURCHASE"          // 购买
)

// 触发类型
const (
	RewardTriggerAutomatic  = "AUTOMATIC"     // 自动
	RewardTriggerManual     = "MANUAL"        // 手动
	RewardTriggerAiDecision = "AI_DECISION"   // AI判定
	RewardTriggerEventBased = "EVENT_BASED"   // 事件驱动
	RewardTriggerPurchase   = "SHOP_PURCHASE" // 商店购买
)

var (
	ErrRewardAmountInvalid = errors.New("奖励金额必须大于0")
	ErrRewardFieldMissing  = errors.New("奖励必填字段缺失")
)

// RewardDistribution 奖励发放表
// 一次业务事件只创建一条发放记录，之后只做状态转移，绝不重建
type RewardDistribution struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RewardNo      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"reward_no"`
	UserID        string          `gorm:"type:varchar(64);index;not null" json:"user_id"`
	SpaceID       int64           `gorm:"index;not null;default:1" json:"space_id"`
	Category      string          `gorm:"type:varchar(32);not null" json:"category"`
	TriggerType   string          `gorm:"type:varchar(32);not null" json:"trigger_type"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Multiplier    decimal.Decimal `gorm:"type:decimal(10,4);not null;default:1" json:"multiplier"`
	FinalAmount   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"final_amount"` // amount × multiplier
	ReferenceID   string          `gorm:"type:varchar(64);index" json:"reference_id"`      // 触发事件参照（投稿ID、购买交易ID等）
	Reason        string          `gorm:"type:varchar(256)" json:"reason"`
	Status        string          `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	FailureReason string          `gorm:"type:varchar(256)" json:"failure_reason"`
	ApprovedBy    string          `gorm:"type:varchar(64)" json:"approved_by"`
	ApprovedAt    *time.Time      `json:"approved_at"`
	ProcessedAt   *time.Time      `json:"processed_at"`
	TxRef         string          `gorm:"type:varchar(64)" json:"tx_ref"` // 完成时关联的余额履历参照
	ExpiresAt     *time.Time      `gorm:"index" json:"expires_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RewardDistribution) TableName() string {
	return "reward_distribution"
}

// IsExpired 是否已过有效期
func (r *RewardDistribution) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// newReward 类别构造器共通部分。只校验和构造，不产生任何副作用
func newReward(userID string, spaceID int64, category, triggerType string,
	amount decimal.Decimal, referenceID, reason string) (*RewardDistribution, error) {
	if amount.Sign() <= 0 {
		return nil, ErrRewardAmountInvalid
	}
	if userID == "" || spaceID <= 0 || category == "" || triggerType == "" {
		return nil, ErrRewardFieldMissing
	}
	return &RewardDistribution{
		UserID:      userID,
		SpaceID:     spaceID,
		Category:    category,
		TriggerType: triggerType,
		Amount:      amount,
		Multiplier:  decimal.NewFromInt(1),
		FinalAmount: money.RoundAmount(amount),
		ReferenceID: referenceID,
		Reason:      reason,
		Status:      RewardStatusPending,
	}, nil
}

// NewContentReward 内容创作奖励
func NewContentReward(userID string, spaceID int64, amount decimal.Decimal, contentID, reason string) (*RewardDistribution, error) {
	return newReward(userID, spaceID, RewardCategoryContent, RewardTriggerEventBased, amount, contentID, reason)
}

// NewLearningReward 学习进度奖励
func NewLearningReward(userID string, spaceID int64, amount decimal.Decimal, progressID, reason string) (*RewardDistribution, error) {
	return newReward(userID, spaceID, RewardCategoryLearning, RewardTriggerAutomatic, amount, progressID, reason)
}

// NewGovernanceReward 治理参与奖励
func NewGovernanceReward(userID string, spaceID int64, amount decimal.Decimal, proposalRef, reason string) (*RewardDistribution, error) {
	return newReward(userID, spaceID, RewardCategoryGovernance, RewardTriggerEventBased, amount, proposalRef, reason)
}

// NewPurchaseReward 购买奖励（由支付方的购买确认事件触发）
func NewPurchaseReward(userID string, spaceID int64, amount decimal.Decimal, purchaseTxID string) (*RewardDistribution, error) {
	return newReward(userID, spaceID, RewardCategoryPurchase, RewardTriggerPurchase, amount, purchaseTxID, "购买奖励")
}

// SetMultiplier 设置倍率并重算最终发放额（小数第8位，四舍五入）
func (r *RewardDistribution) SetMultiplier(m decimal.Decimal) {
	r.Multiplier = m
	r.FinalAmount = money.RoundAmount(r.Amount.Mul(m))
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 治理提案状态常量与状态机
// ============================================================================

const (
	ProposalStatusDraft        = "DRAFT"         // 草案
	ProposalStatusVotingActive = "VOTING_ACTIVE" // 投票中
	ProposalStatusPassed       = "PASSED"        // 可决
	ProposalStatusRejected     = "REJECTED"      // 否决
	ProposalStatusQueued       = "QUEUED"        // 待执行
	ProposalStatusExecuted     = "EXECUTED"      // 已执行
	ProposalStatusCancelled    = "CANCELLED"     // 取消
)

// ValidProposalTransitions 提案状态转移白名单
// QUEUED -> REJECTED 表示执行失败；任何非终态均可转 CANCELLED
var ValidProposalTransitions = map[string][]string{
	ProposalStatusDraft:        {ProposalStatusVotingActive, ProposalStatusCancelled},
	ProposalStatusVotingActive: {ProposalStatusPassed, ProposalStatusRejected, ProposalStatusCancelled},
	ProposalStatusPassed:       {ProposalStatusQueued, ProposalStatusCancelled},
	ProposalStatusQueued:       {ProposalStatusExecuted, ProposalStatusRejected, ProposalStatusCancelled},
}

// CanProposalTransitionTo 判断提案状态转移是否合法
func CanProposalTransitionTo(currentStatus, targetStatus string) bool {
	allowed, exists := ValidProposalTransitions[currentStatus]
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

// IsProposalTerminal 是否为终态
func IsProposalTerminal(status string) bool {
	switch status {
	case ProposalStatusExecuted, ProposalStatusRejected, ProposalStatusCancelled:
		return true
	}
	return false
}

// 提案类型
const (
	ProposalTypeParameterChange  = "PARAMETER_CHANGE"  // 代币池参数变更
	ProposalTypeBurnDecision     = "BURN_DECISION"     // 销毁决定
	ProposalTypeRewardAdjustment = "REWARD_ADJUSTMENT" // 奖励调整
	ProposalTypePolicyChange     = "POLICY_CHANGE"     // 政策变更
	ProposalTypeEmergencyAction  = "EMERGENCY_ACTION"  // 紧急行动
)

// GovernanceProposal 治理提案表
//
// 【重要】votesFor 等合计列只是派生视图。
// 投票可以变更，增量维护的计数器会漂移，
// 因此 finalize 时必须从完整投票集合重新计算后回写。
type GovernanceProposal struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProposalNo         string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"proposal_no"`
	SpaceID            int64           `gorm:"index;not null" json:"space_id"`
	ProposerID         string          `gorm:"type:varchar(64);not null" json:"proposer_id"`
	Title              string          `gorm:"type:varchar(256);not null" json:"title"`
	Description        string          `gorm:"type:text" json:"description"`
	ProposalType       string          `gorm:"type:varchar(32);not null" json:"proposal_type"`
	Parameters         string          `gorm:"type:text" json:"parameters"`                       // JSON格式的提案参数（参数变更内容等）
	MinimumQuorum      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"minimum_quorum"` // 法定最低投票权
	VotingStart        time.Time       `gorm:"not null" json:"voting_start"`
	VotingEnd          time.Time       `gorm:"index;not null" json:"voting_end"`
	Status             string          `gorm:"type:varchar(20);index;not null;default:DRAFT" json:"status"`
	VotesFor           int             `gorm:"not null;default:0" json:"votes_for"`
	VotesAgainst       int             `gorm:"not null;default:0" json:"votes_against"`
	VotesAbstain       int             `gorm:"not null;default:0" json:"votes_abstain"`
	VotingPowerFor     decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"voting_power_for"`
	VotingPowerAgainst decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"voting_power_against"`
	VotingPowerAbstain decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"voting_power_abstain"`
	TotalVotingPower   decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_voting_power"`
	QuorumReached      bool            `gorm:"not null;default:false" json:"quorum_reached"`
	ExecutedBy         string          `gorm:"type:varchar(64)" json:"executed_by"`
	ExecutedAt         *time.Time      `json:"executed_at"`
	ExecutionResult    string          `gorm:"type:varchar(512)" json:"execution_result"`
	CancelledBy        string          `gorm:"type:varchar(64)" json:"cancelled_by"`
	CancelledAt        *time.Time      `json:"cancelled_at"`
	CancellationReason string          `gorm:"type:varchar(256)" json:"cancellation_reason"`
	CreatedAt          time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GovernanceProposal) TableName() string {
	return "governance_proposal"
}

// IsVotingEnded 投票期是否已结束
func (p *GovernanceProposal) IsVotingEnded(now time.Time) bool {
	return !now.Before(p.VotingEnd)
}

// IsVotingOpen 是否处于可投票窗口
func (p *GovernanceProposal) IsVotingOpen(now time.Time) bool {
	return p.Status == ProposalStatusVotingActive &&
		!now.Before(p.VotingStart) && now.Before(p.VotingEnd)
}

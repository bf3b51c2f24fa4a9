package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 投票类型
const (
	VoteTypeFor     = "FOR"     // 赞成
	VoteTypeAgainst = "AGAINST" // 反对
	VoteTypeAbstain = "ABSTAIN" // 弃权
)

// ValidVoteType 投票类型白名单
func ValidVoteType(voteType string) bool {
	switch voteType {
	case VoteTypeFor, VoteTypeAgainst, VoteTypeAbstain:
		return true
	}
	return false
}

// GovernanceVote 治理投票表
// 每个 (提案, 投票人) 只允许一条有效投票；变更不覆盖历史，
// 而是在 vote_change 表追加记录
type GovernanceVote struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProposalNo       string          `gorm:"type:varchar(64);uniqueIndex:idx_vote_proposal_voter;not null" json:"proposal_no"`
	VoterID          string          `gorm:"type:varchar(64);uniqueIndex:idx_vote_proposal_voter;not null" json:"voter_id"`
	VoteType         string          `gorm:"type:varchar(10);not null" json:"vote_type"`
	VotingPower      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"voting_power"`
	BalanceSnapshot  decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"balance_snapshot"`  // 投票时点的代币余额
	DelegatedPower   decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"delegated_power"`   // 受委任的投票权
	ReputationScore  decimal.Decimal `gorm:"type:decimal(10,4);not null;default:50" json:"reputation_score"` // 信誉分（0-100）
	IsDelegateVote   bool            `gorm:"not null;default:false" json:"is_delegate_vote"`
	DelegatorID      string          `gorm:"type:varchar(64)" json:"delegator_id"` // 委任人ID（委任投票时；选票记在代投人名下）
	ConfidenceLevel  int             `gorm:"not null;default:0" json:"confidence_level"`
	Reason           string          `gorm:"type:varchar(256)" json:"reason"`
	IsChanged        bool            `gorm:"not null;default:false" json:"is_changed"`
	PreviousVoteType string          `gorm:"type:varchar(10)" json:"previous_vote_type"`
	VotedAt          time.Time       `gorm:"not null" json:"voted_at"`
	LastChangedAt    *time.Time      `json:"last_changed_at"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GovernanceVote) TableName() string {
	return "governance_vote"
}

// VoteChange 投票变更履历表
// 只追加，不修改；"当前投票" 即该序列之上的折叠结果
type VoteChange struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	VoteID       int64     `gorm:"index;not null" json:"vote_id"`
	ProposalNo   string    `gorm:"type:varchar(64);index;not null" json:"proposal_no"`
	VoterID      string    `gorm:"type:varchar(64);not null" json:"voter_id"`
	FromVoteType string    `gorm:"type:varchar(10);not null" json:"from_vote_type"`
	ToVoteType   string    `gorm:"type:varchar(10);not null" json:"to_vote_type"`
	Reason       string    `gorm:"type:varchar(256)" json:"reason"`
	ChangedAt    time.Time `gorm:"not null" json:"changed_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (VoteChange) TableName() string {
	return "vote_change"
}

package repository

import (
	"context"
	"errors"
	"time"

	"tokencore/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrProposalNotFound      = errors.New("治理提案不存在")
	ErrProposalStatusInvalid = errors.New("提案状态不允许该转移")
)

type ProposalRepository struct {
	db *gorm.DB
}

func NewProposalRepository(db *gorm.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

func (r *ProposalRepository) Create(ctx context.Context, tx *gorm.DB, proposal *model.GovernanceProposal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(proposal).Error
}

func (r *ProposalRepository) GetByProposalNo(ctx context.Context, proposalNo string) (*model.GovernanceProposal, error) {
	var proposal model.GovernanceProposal
	err := r.db.WithContext(ctx).Where("proposal_no = ?", proposalNo).First(&proposal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProposalNotFound
		}
		return nil, err
	}
	return &proposal, nil
}

// UpdateStatus 提案状态转移（compare-and-set）
func (r *ProposalRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, proposalNo string, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanProposalTransitionTo(fromStatus, toStatus) {
		return ErrProposalStatusInvalid
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
		Model(&model.GovernanceProposal{}).
		Where("proposal_no = ? AND status = ?", proposalNo, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProposalStatusInvalid
	}
	return nil
}

// ProposalTallies 结算时由全量选票重算出的聚合值
// 提案行上的计数列只是派生视图，写入前必须先重算
type ProposalTallies struct {
	VotesFor      int
	VotesAgainst  int
	VotesAbstain  int
	PowerFor      decimal.Decimal
	PowerAgainst  decimal.Decimal
	PowerAbstain  decimal.Decimal
	TotalPower    decimal.Decimal
	QuorumReached bool
}

// SaveTallies 将重算后的聚合值写回提案行
func (r *ProposalRepository) SaveTallies(ctx context.Context, tx *gorm.DB, proposalNo string, tallies ProposalTallies) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.GovernanceProposal{}).
		Where("proposal_no = ?", proposalNo).
		Updates(map[string]interface{}{
			"votes_for":            tallies.VotesFor,
			"votes_against":        tallies.VotesAgainst,
			"votes_abstain":        tallies.VotesAbstain,
			"voting_power_for":     tallies.PowerFor,
			"voting_power_against": tallies.PowerAgainst,
			"voting_power_abstain": tallies.PowerAbstain,
			"total_voting_power":   tallies.TotalPower,
			"quorum_reached":       tallies.QuorumReached,
		}).Error
}

// GetFinalizable 查出所有投票期已结束、仍处于投票中的提案
// 由定时任务调用，逐条结算
func (r *ProposalRepository) GetFinalizable(ctx context.Context, now time.Time, limit int) ([]*model.GovernanceProposal, error) {
	var proposals []*model.GovernanceProposal
	err := r.db.WithContext(ctx).
		Where("status = ? AND voting_end < ?", model.ProposalStatusVotingActive, now).
		Order("voting_end ASC").
		Limit(limit).
		Find(&proposals).Error
	return proposals, err
}

// GetActivatable 查出投票期已开始但仍处于草稿的提案
func (r *ProposalRepository) GetActivatable(ctx context.Context, now time.Time, limit int) ([]*model.GovernanceProposal, error) {
	var proposals []*model.GovernanceProposal
	err := r.db.WithContext(ctx).
		Where("status = ? AND voting_start <= ?", model.ProposalStatusDraft, now).
		Order("voting_start ASC").
		Limit(limit).
		Find(&proposals).Error
	return proposals, err
}

// ProposalFilter 提案查询过滤条件
type ProposalFilter struct {
	SpaceID      int64
	Status       string
	ProposalType string
	ProposerID   string
}

func (r *ProposalRepository) List(ctx context.Context, filter ProposalFilter, page, pageSize int) ([]*model.GovernanceProposal, int64, error) {
	var proposals []*model.GovernanceProposal
	var total int64

	query := r.db.WithContext(ctx).Model(&model.GovernanceProposal{})
	if filter.SpaceID > 0 {
		query = query.Where("space_id = ?", filter.SpaceID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ProposalType != "" {
		query = query.Where("proposal_type = ?", filter.ProposalType)
	}
	if filter.ProposerID != "" {
		query = query.Where("proposer_id = ?", filter.ProposerID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&proposals).Error

	return proposals, total, err
}

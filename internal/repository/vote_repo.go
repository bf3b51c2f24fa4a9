package repository

import (
	"context"
	"errors"

	"tokencore/internal/model"

	"gorm.io/gorm"
)

var (
	ErrVoteNotFound  = errors.New("选票不存在")
	ErrDuplicateVote = errors.New("该投票人已对此提案投过票")
)

type VoteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) *VoteRepository {
	return &VoteRepository{db: db}
}

// Create 写入选票
// 唯一索引 (proposal_no, voter_id) 兜底重复投票，应用层先查再插只是快速路径
func (r *VoteRepository) Create(ctx context.Context, tx *gorm.DB, vote *model.GovernanceVote) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(vote).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateVote
	}
	return err
}

func (r *VoteRepository) GetByProposalAndVoter(ctx context.Context, proposalNo, voterID string) (*model.GovernanceVote, error) {
	var vote model.GovernanceVote
	err := r.db.WithContext(ctx).
		Where("proposal_no = ? AND voter_id = ?", proposalNo, voterID).
		First(&vote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVoteNotFound
		}
		return nil, err
	}
	return &vote, nil
}

// ListByProposal 读取提案下的全量选票，结算重算聚合值时使用
func (r *VoteRepository) ListByProposal(ctx context.Context, proposalNo string) ([]*model.GovernanceVote, error) {
	var votes []*model.GovernanceVote
	err := r.db.WithContext(ctx).
		Where("proposal_no = ?", proposalNo).
		Order("voted_at ASC").
		Find(&votes).Error
	return votes, err
}

func (r *VoteRepository) ListByProposalPaged(ctx context.Context, proposalNo string, page, pageSize int) ([]*model.GovernanceVote, int64, error) {
	var votes []*model.GovernanceVote
	var total int64

	query := r.db.WithContext(ctx).Model(&model.GovernanceVote{}).
		Where("proposal_no = ?", proposalNo)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("voted_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&votes).Error

	return votes, total, err
}

func (r *VoteRepository) ListByVoter(ctx context.Context, voterID string, page, pageSize int) ([]*model.GovernanceVote, int64, error) {
	var votes []*model.GovernanceVote
	var total int64

	query := r.db.WithContext(ctx).Model(&model.GovernanceVote{}).
		Where("voter_id = ?", voterID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("voted_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&votes).Error

	return votes, total, err
}

// Update 改票时原地更新选票行，历史进 vote_changes 表
func (r *VoteRepository) Update(ctx context.Context, tx *gorm.DB, vote *model.GovernanceVote) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.GovernanceVote{}).
		Where("id = ?", vote.ID).
		Updates(map[string]interface{}{
			"vote_type":          vote.VoteType,
			"reason":             vote.Reason,
			"is_changed":         vote.IsChanged,
			"previous_vote_type": vote.PreviousVoteType,
			"last_changed_at":    vote.LastChangedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVoteNotFound
	}
	return nil
}

// AppendChange 改票历史只追加不修改
func (r *VoteRepository) AppendChange(ctx context.Context, tx *gorm.DB, change *model.VoteChange) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(change).Error
}

func (r *VoteRepository) ListChanges(ctx context.Context, voteID int64) ([]*model.VoteChange, error) {
	var changes []*model.VoteChange
	err := r.db.WithContext(ctx).
		Where("vote_id = ?", voteID).
		Order("changed_at ASC").
		Find(&changes).Error
	return changes, err
}

func (r *VoteRepository) CountChanges(ctx context.Context, voteID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.VoteChange{}).
		Where("vote_id = ?", voteID).
		Count(&count).Error
	return count, err
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"tokencore/internal/config"
	"tokencore/internal/model"
	"tokencore/internal/repository"
	"tokencore/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrProposalTypeUnknown = errors.New("未知的提案类型")
	ErrVotingNotEnded      = errors.New("投票期尚未结束")
	ErrExecutionTooEarly   = errors.New("尚未到达可执行时刻")
)

// 紧急提案的标题前缀，列表页无需解析类型即可识别
const emergencyTitlePrefix = "[紧急] "

// GovernanceService 治理提案服务
//
// 提案生命周期：DRAFT -> VOTING_ACTIVE -> PASSED/REJECTED -> QUEUED -> EXECUTED。
// 结算（finalize）时从完整投票集合重算聚合值，执行时按提案类型
// 把可决内容落到代币池参数或销毁决议上。
type GovernanceService struct {
	db           *gorm.DB
	cfg          *config.Config
	proposalRepo *repository.ProposalRepository
	outboxRepo   *repository.OutboxRepository
	voteService  *VoteService
	poolService  *PoolService
	burnService  *BurnService
}

func NewGovernanceService(db *gorm.DB, cfg *config.Config,
	voteService *VoteService, poolService *PoolService, burnService *BurnService) *GovernanceService {
	return &GovernanceService{
		db:           db,
		cfg:          cfg,
		proposalRepo: repository.NewProposalRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		voteService:  voteService,
		poolService:  poolService,
		burnService:  burnService,
	}
}

func validProposalType(proposalType string) bool {
	switch proposalType {
	case model.ProposalTypeParameterChange, model.ProposalTypeBurnDecision,
		model.ProposalTypeRewardAdjustment, model.ProposalTypePolicyChange,
		model.ProposalTypeEmergencyAction:
		return true
	}
	return false
}

type CreateProposalRequest struct {
	SpaceID       int64  `json:"space_id" binding:"required"`
	ProposerID    string `json:"proposer_id" binding:"required"`
	Title         string `json:"title" binding:"required"`
	Description   string `json:"description"`
	ProposalType  string `json:"proposal_type" binding:"required"`
	Parameters    string `json:"parameters"` // JSON格式的提案参数
	MinimumQuorum string `json:"minimum_quorum"`
}

// CreateProposal 创建提案，从 DRAFT 开始
// 投票期 = 创建时刻 + 延迟 ~ 开始 + 时长，法定投票权缺省取配置值
func (s *GovernanceService) CreateProposal(ctx context.Context, req *CreateProposalRequest) (*model.GovernanceProposal, error) {
	if !validProposalType(req.ProposalType) {
		return nil, ErrProposalTypeUnknown
	}

	quorum := decimal.NewFromInt(int64(s.cfg.Governance.DefaultMinimumQuorum))
	if req.MinimumQuorum != "" {
		q, err := decimal.NewFromString(req.MinimumQuorum)
		if err != nil || q.Sign() <= 0 {
			return nil, errors.New("法定投票权必须为正数")
		}
		quorum = q
	}

	now := time.Now()
	votingStart := now.Add(time.Duration(s.cfg.Governance.VotingDelayHours) * time.Hour)
	votingEnd := votingStart.Add(time.Duration(s.cfg.Governance.VotingDurationHours) * time.Hour)

	proposal := &model.GovernanceProposal{
		ProposalNo:    idgen.GenerateProposalNo(),
		SpaceID:       req.SpaceID,
		ProposerID:    req.ProposerID,
		Title:         req.Title,
		Description:   req.Description,
		ProposalType:  req.ProposalType,
		Parameters:    req.Parameters,
		MinimumQuorum: quorum,
		VotingStart:   votingStart,
		VotingEnd:     votingEnd,
		Status:        model.ProposalStatusDraft,
	}
	if err := s.proposalRepo.Create(ctx, nil, proposal); err != nil {
		return nil, err
	}

	log.Printf("提案创建成功: proposalNo=%s, type=%s, votingStart=%s",
		proposal.ProposalNo, req.ProposalType, votingStart.Format(time.RFC3339))
	return proposal, nil
}

// CreateEmergencyProposal 紧急提案
//
// 跳过草案期立即进入投票，投票窗口缩短，法定投票权降低。
// 标题加前缀，让紧急提案在列表里一眼可辨。
func (s *GovernanceService) CreateEmergencyProposal(ctx context.Context, req *CreateProposalRequest) (*model.GovernanceProposal, error) {
	if !validProposalType(req.ProposalType) {
		return nil, ErrProposalTypeUnknown
	}

	now := time.Now()
	proposal := &model.GovernanceProposal{
		ProposalNo:    idgen.GenerateProposalNo(),
		SpaceID:       req.SpaceID,
		ProposerID:    req.ProposerID,
		Title:         emergencyTitlePrefix + req.Title,
		Description:   req.Description,
		ProposalType:  req.ProposalType,
		Parameters:    req.Parameters,
		MinimumQuorum: decimal.NewFromInt(int64(s.cfg.Governance.EmergencyQuorum)),
		VotingStart:   now,
		VotingEnd:     now.Add(time.Duration(s.cfg.Governance.EmergencyWindowHours) * time.Hour),
		Status:        model.ProposalStatusVotingActive,
	}
	if err := s.proposalRepo.Create(ctx, nil, proposal); err != nil {
		return nil, err
	}

	log.Printf("紧急提案创建成功: proposalNo=%s, votingEnd=%s",
		proposal.ProposalNo, proposal.VotingEnd.Format(time.RFC3339))
	return proposal, nil
}

// transition 状态转移共通处理：CAS更新 + 发件箱事件
func (s *GovernanceService) transition(ctx context.Context, tx *gorm.DB, proposalNo, from, to, actor string, extra map[string]interface{}) error {
	apply := func(tx *gorm.DB) error {
		if err := s.proposalRepo.UpdateStatus(ctx, tx, proposalNo, from, to, extra); err != nil {
			return err
		}
		return s.outboxRepo.CreateTransition(ctx, tx, s.cfg.Kafka.Topic.StateTransition, model.TransitionEvent{
			EntityType: "proposal",
			EntityID:   proposalNo,
			FromState:  from,
			ToState:    to,
			Actor:      actor,
			OccurredAt: time.Now(),
		})
	}
	if tx != nil {
		return apply(tx)
	}
	return s.db.Transaction(apply)
}

// Activate 到达投票开始时刻后 DRAFT -> VOTING_ACTIVE
// 由定时任务批量触发，也可手动调用
func (s *GovernanceService) Activate(ctx context.Context, proposalNo, actor string) error {
	proposal, err := s.proposalRepo.GetByProposalNo(ctx, proposalNo)
	if err != nil {
		return err
	}
	if time.Now().Before(proposal.VotingStart) {
		return errors.New("尚未到达投票开始时刻")
	}
	return s.transition(ctx, nil, proposalNo, model.ProposalStatusDraft, model.ProposalStatusVotingActive, actor, nil)
}

// Finalize 投票期结束后的结算 VOTING_ACTIVE -> PASSED/REJECTED
//
// 【关键点】聚合值从全量选票重算后回写，同一事务内完成状态转移。
// 可决条件：达到法定投票权 且 赞成权 > 反对权。
func (s *GovernanceService) Finalize(ctx context.Context, proposalNo, actor string) (*model.GovernanceProposal, error) {
	proposal, err := s.proposalRepo.GetByProposalNo(ctx, proposalNo)
	if err != nil {
		return nil, err
	}
	if proposal.Status != model.ProposalStatusVotingActive {
		return nil, repository.ErrProposalStatusInvalid
	}
	if !proposal.IsVotingEnded(time.Now()) {
		return nil, ErrVotingNotEnded
	}

	tallies, err := s.voteService.ComputeTallies(ctx, proposalNo, proposal.MinimumQuorum)
	if err != nil {
		return nil, fmt.Errorf("重算投票聚合失败: %w", err)
	}

	outcome := model.ProposalStatusRejected
	if tallies.QuorumReached && tallies.PowerFor.GreaterThan(tallies.PowerAgainst) {
		outcome = model.ProposalStatusPassed
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.proposalRepo.SaveTallies(ctx, tx, proposalNo, *tallies); err != nil {
			return err
		}
		return s.transition(ctx, tx, proposalNo, model.ProposalStatusVotingActive, outcome, actor, nil)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("提案结算完成: proposalNo=%s, outcome=%s, for=%s, against=%s, quorum=%v",
		proposalNo, outcome, tallies.PowerFor.String(), tallies.PowerAgainst.String(), tallies.QuorumReached)
	return s.proposalRepo.GetByProposalNo(ctx, proposalNo)
}

// Queue 可决提案进入执行队列 PASSED -> QUEUED
func (s *GovernanceService) Queue(ctx context.Context, proposalNo, actor string) error {
	return s.transition(ctx, nil, proposalNo, model.ProposalStatusPassed, model.ProposalStatusQueued, actor, nil)
}

// 提案参数的JSON结构（按类型取用需要的字段）
type proposalParameters struct {
	BurnAmount          string `json:"burn_amount"`
	IssueRate           string `json:"issue_rate"`
	BurnRate            string `json:"burn_rate"`
	CollectionThreshold string `json:"collection_threshold"`
}

// Execute 执行可决内容 QUEUED -> EXECUTED
//
// 执行延迟从投票结束起算，给社区留出对可决结果的反应时间。
// 执行失败时转移到 REJECTED 并记录失败原因。
func (s *GovernanceService) Execute(ctx context.Context, proposalNo, executor string) (*model.GovernanceProposal, error) {
	proposal, err := s.proposalRepo.GetByProposalNo(ctx, proposalNo)
	if err != nil {
		return nil, err
	}
	if proposal.Status != model.ProposalStatusQueued {
		return nil, repository.ErrProposalStatusInvalid
	}

	executableAt := proposal.VotingEnd.Add(time.Duration(s.cfg.Governance.ExecutionDelayHours) * time.Hour)
	if time.Now().Before(executableAt) {
		return nil, ErrExecutionTooEarly
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		result, execErr := s.applyProposal(ctx, tx, proposal, executor)
		if execErr != nil {
			return execErr
		}
		return s.transition(ctx, tx, proposalNo, model.ProposalStatusQueued, model.ProposalStatusExecuted, executor,
			map[string]interface{}{
				"executed_by":      executor,
				"executed_at":      now,
				"execution_result": result,
			})
	})
	if err != nil {
		// 执行失败：QUEUED -> REJECTED，失败原因落库
		if markErr := s.proposalRepo.UpdateStatus(ctx, nil, proposalNo,
			model.ProposalStatusQueued, model.ProposalStatusRejected, map[string]interface{}{
				"execution_result": fmt.Sprintf("执行失败: %v", err),
			}); markErr != nil {
			log.Printf("[治理] 标记执行失败出错: proposalNo=%s, err=%v", proposalNo, markErr)
		}
		return nil, err
	}

	log.Printf("提案执行完成: proposalNo=%s, executor=%s", proposalNo, executor)
	return s.proposalRepo.GetByProposalNo(ctx, proposalNo)
}

// applyProposal 按提案类型落地可决内容，返回执行结果摘要
func (s *GovernanceService) applyProposal(ctx context.Context, tx *gorm.DB, proposal *model.GovernanceProposal, executor string) (string, error) {
	var params proposalParameters
	if proposal.Parameters != "" {
		if err := json.Unmarshal([]byte(proposal.Parameters), &params); err != nil {
			return "", fmt.Errorf("提案参数解析失败: %w", err)
		}
	}

	switch proposal.ProposalType {
	case model.ProposalTypeBurnDecision:
		amount, err := decimal.NewFromString(params.BurnAmount)
		if err != nil || amount.Sign() <= 0 {
			return "", errors.New("提案参数缺少有效的销毁量")
		}
		decision, err := s.burnService.CreateGovernanceDecision(ctx, tx, proposal.SpaceID, amount, proposal.ProposalNo, executor)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("已创建销毁决议 %s", decision.BurnNo), nil

	case model.ProposalTypeParameterChange:
		var issueRate, burnRate, threshold *decimal.Decimal
		if params.IssueRate != "" {
			v, err := decimal.NewFromString(params.IssueRate)
			if err != nil || v.Sign() <= 0 {
				return "", errors.New("提案参数中的发行率无效")
			}
			issueRate = &v
		}
		if params.BurnRate != "" {
			v, err := decimal.NewFromString(params.BurnRate)
			if err != nil || v.Sign() <= 0 {
				return "", errors.New("提案参数中的销毁率无效")
			}
			burnRate = &v
		}
		if params.CollectionThreshold != "" {
			v, err := decimal.NewFromString(params.CollectionThreshold)
			if err != nil || v.Sign() <= 0 {
				return "", errors.New("提案参数中的回收阈值无效")
			}
			threshold = &v
		}
		if issueRate == nil && burnRate == nil && threshold == nil {
			return "", errors.New("参数变更提案没有任何变更项")
		}
		if err := s.poolService.UpdateParameters(ctx, tx, proposal.SpaceID, issueRate, burnRate, threshold); err != nil {
			return "", err
		}
		return "代币池参数已更新", nil

	default:
		// 奖励调整・政策变更・紧急行动没有自动落地对象，
		// 可决即生效，由运营侧按提案内容跟进
		return "可决生效，无自动执行项", nil
	}
}

// Cancel 取消提案，终态以外都允许
func (s *GovernanceService) Cancel(ctx context.Context, proposalNo, actor, reason string) error {
	proposal, err := s.proposalRepo.GetByProposalNo(ctx, proposalNo)
	if err != nil {
		return err
	}
	if model.IsProposalTerminal(proposal.Status) {
		return repository.ErrProposalStatusInvalid
	}
	now := time.Now()
	return s.transition(ctx, nil, proposalNo, proposal.Status, model.ProposalStatusCancelled, actor,
		map[string]interface{}{
			"cancelled_by":        actor,
			"cancelled_at":        now,
			"cancellation_reason": reason,
		})
}

func (s *GovernanceService) GetProposal(ctx context.Context, proposalNo string) (*model.GovernanceProposal, error) {
	return s.proposalRepo.GetByProposalNo(ctx, proposalNo)
}

func (s *GovernanceService) ListProposals(ctx context.Context, filter repository.ProposalFilter, page, pageSize int) ([]*model.GovernanceProposal, int64, error) {
	return s.proposalRepo.List(ctx, filter, page, pageSize)
}

// ActivateDue 批量激活到期草案，定时任务调用
func (s *GovernanceService) ActivateDue(ctx context.Context, limit int) (int, error) {
	proposals, err := s.proposalRepo.GetActivatable(ctx, time.Now(), limit)
	if err != nil {
		return 0, err
	}
	activated := 0
	for _, p := range proposals {
		if err := s.transition(ctx, nil, p.ProposalNo,
			model.ProposalStatusDraft, model.ProposalStatusVotingActive, "SCHEDULER", nil); err != nil {
			continue
		}
		activated++
	}
	return activated, nil
}

// FinalizeDue 批量结算投票期已结束的提案，定时任务调用
func (s *GovernanceService) FinalizeDue(ctx context.Context, limit int) (int, error) {
	proposals, err := s.proposalRepo.GetFinalizable(ctx, time.Now(), limit)
	if err != nil {
		return 0, err
	}
	finalized := 0
	for _, p := range proposals {
		if _, err := s.Finalize(ctx, p.ProposalNo, "SCHEDULER"); err != nil {
			log.Printf("[治理] 提案结算失败: proposalNo=%s, err=%v", p.ProposalNo, err)
			continue
		}
		finalized++
	}
	return finalized, nil
}

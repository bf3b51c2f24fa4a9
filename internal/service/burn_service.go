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
	"tokencore/pkg/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrBurnAmountInvalid   = errors.New("销毁量必须大于0且不超过流通量")
	ErrBurnTriggerUnknown  = errors.New("未知的销毁触发原因")
	ErrAiConfidenceInvalid = errors.New("AI置信度必须在0和1之间")
)

// BurnService 销毁决议服务
//
// 供给削减走完整的提案・审批・执行流程，每一步都是
// 白名单状态机上的一次转移。实际的池级销毁只发生在执行阶段。
type BurnService struct {
	db          *gorm.DB
	cfg         *config.Config
	burnRepo    *repository.BurnRepository
	outboxRepo  *repository.OutboxRepository
	poolService *PoolService
}

func NewBurnService(db *gorm.DB, cfg *config.Config, poolService *PoolService) *BurnService {
	return &BurnService{
		db:          db,
		cfg:         cfg,
		burnRepo:    repository.NewBurnRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		poolService: poolService,
	}
}

func validBurnTrigger(reason string) bool {
	switch reason {
	case model.BurnTriggerInflationControl, model.BurnTriggerExcessSupply,
		model.BurnTriggerLowActivity, model.BurnTriggerMarketCorrection,
		model.BurnTriggerGovernance, model.BurnTriggerEcosystemHealth:
		return true
	}
	return false
}

// newDecision 决议构造共通部分：校验销毁量并固定提案时点的流通量快照
func (s *BurnService) newDecision(ctx context.Context, spaceID int64, amount decimal.Decimal,
	decisionType, triggerReason, rationale, decidedBy string) (*model.BurnDecision, error) {
	if !validBurnTrigger(triggerReason) {
		return nil, ErrBurnTriggerUnknown
	}

	pool, err := s.poolService.GetPool(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	amount = money.RoundAmount(amount)
	if amount.Sign() <= 0 || amount.GreaterThan(pool.CirculatingSupply) {
		return nil, ErrBurnAmountInvalid
	}

	return &model.BurnDecision{
		BurnNo:                  idgen.GenerateBurnNo(),
		SpaceID:                 spaceID,
		ProposedAmount:          amount,
		CirculatingSupplyBefore: pool.CirculatingSupply,
		BurnRateProposed:        money.Rate(amount, pool.CirculatingSupply),
		DecisionType:            decisionType,
		TriggerReason:           triggerReason,
		Rationale:               rationale,
		DecidedBy:               decidedBy,
		Status:                  model.BurnStatusProposed,
	}, nil
}

type CreateBurnRequest struct {
	SpaceID       int64           `json:"space_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	TriggerReason string          `json:"trigger_reason" binding:"required"`
	Rationale     string          `json:"rationale"`
	DecidedBy     string          `json:"decided_by" binding:"required"`
}

// CreateDecision 管理员手动创建销毁决议，从 PROPOSED 开始
func (s *BurnService) CreateDecision(ctx context.Context, req *CreateBurnRequest) (*model.BurnDecision, error) {
	decision, err := s.newDecision(ctx, req.SpaceID, req.Amount,
		model.BurnDecisionManual, req.TriggerReason, req.Rationale, req.DecidedBy)
	if err != nil {
		return nil, err
	}
	if err := s.burnRepo.Create(ctx, nil, decision); err != nil {
		return nil, err
	}
	log.Printf("销毁决议创建成功: burnNo=%s, amount=%s, rate=%s",
		decision.BurnNo, decision.ProposedAmount.String(), decision.BurnRateProposed.String())
	return decision, nil
}

type CreateAiBurnRequest struct {
	SpaceID            int64                  `json:"space_id" binding:"required"`
	Amount             decimal.Decimal        `json:"amount" binding:"required"`
	TriggerReason      string                 `json:"trigger_reason" binding:"required"`
	Rationale          string                 `json:"rationale"`
	ConfidenceScore    decimal.Decimal        `json:"confidence_score" binding:"required"`
	EconomicIndicators map[string]interface{} `json:"economic_indicators"`
}

// CreateAiDecision AI自动判定的销毁决议
//
// 判定模型已经完成评估，所以直接从 APPROVED 开始，跳过人工审查。
// 置信度和判定时点的经济指标快照一并落库，供事后审计。
func (s *BurnService) CreateAiDecision(ctx context.Context, req *CreateAiBurnRequest) (*model.BurnDecision, error) {
	if req.ConfidenceScore.Sign() < 0 || req.ConfidenceScore.GreaterThan(decimal.NewFromInt(1)) {
		return nil, ErrAiConfidenceInvalid
	}

	decision, err := s.newDecision(ctx, req.SpaceID, req.Amount,
		model.BurnDecisionAiAutomatic, req.TriggerReason, req.Rationale, "AI_ENGINE")
	if err != nil {
		return nil, err
	}

	decision.Status = model.BurnStatusApproved
	decision.AiConfidenceScore = req.ConfidenceScore
	decision.ApprovedBy = "AI_ENGINE"
	now := time.Now()
	decision.ApprovedAt = &now
	if req.EconomicIndicators != nil {
		indicators, mErr := json.Marshal(req.EconomicIndicators)
		if mErr != nil {
			return nil, fmt.Errorf("经济指标序列化失败: %w", mErr)
		}
		decision.EconomicIndicators = string(indicators)
	}

	if err := s.burnRepo.Create(ctx, nil, decision); err != nil {
		return nil, err
	}
	log.Printf("AI销毁决议创建成功: burnNo=%s, amount=%s, confidence=%s",
		decision.BurnNo, decision.ProposedAmount.String(), decision.AiConfidenceScore.String())
	return decision, nil
}

// CreateGovernanceDecision 治理提案通过后生成的销毁决议
// 提案本身就是审批，所以同样从 APPROVED 开始，并关联提案编号
func (s *BurnService) CreateGovernanceDecision(ctx context.Context, tx *gorm.DB, spaceID int64,
	amount decimal.Decimal, proposalNo, executor string) (*model.BurnDecision, error) {
	decision, err := s.newDecision(ctx, spaceID, amount,
		model.BurnDecisionGovernance, model.BurnTriggerGovernance,
		fmt.Sprintf("治理提案 %s 可决", proposalNo), executor)
	if err != nil {
		return nil, err
	}

	decision.Status = model.BurnStatusApproved
	decision.ProposalNo = proposalNo
	decision.ApprovedBy = executor
	now := time.Now()
	decision.ApprovedAt = &now

	if err := s.burnRepo.Create(ctx, tx, decision); err != nil {
		return nil, err
	}
	return decision, nil
}

// transition 状态转移共通处理：CAS更新 + 发件箱事件
func (s *BurnService) transition(ctx context.Context, burnNo, fromStatus, toStatus, actor string, extra map[string]interface{}) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.burnRepo.UpdateStatus(ctx, tx, burnNo, fromStatus, toStatus, extra); err != nil {
			return err
		}
		return s.outboxRepo.CreateTransition(ctx, tx, s.cfg.Kafka.Topic.StateTransition, model.TransitionEvent{
			EntityType: "burn",
			EntityID:   burnNo,
			FromState:  fromStatus,
			ToState:    toStatus,
			Actor:      actor,
			OccurredAt: time.Now(),
		})
	})
}

// StartReview 进入人工审查 PROPOSED -> UNDER_REVIEW
func (s *BurnService) StartReview(ctx context.Context, burnNo, reviewer string) error {
	return s.transition(ctx, burnNo, model.BurnStatusProposed, model.BurnStatusUnderReview, reviewer, nil)
}

// Approve 审批通过 PROPOSED/UNDER_REVIEW -> APPROVED
func (s *BurnService) Approve(ctx context.Context, burnNo, approver string) error {
	decision, err := s.burnRepo.GetByBurnNo(ctx, burnNo)
	if err != nil {
		return err
	}
	now := time.Now()
	return s.transition(ctx, burnNo, decision.Status, model.BurnStatusApproved, approver,
		map[string]interface{}{
			"approved_by": approver,
			"approved_at": now,
		})
}

// Reject 否决 PROPOSED/UNDER_REVIEW -> REJECTED
func (s *BurnService) Reject(ctx context.Context, burnNo, approver, reason string) error {
	decision, err := s.burnRepo.GetByBurnNo(ctx, burnNo)
	if err != nil {
		return err
	}
	return s.transition(ctx, burnNo, decision.Status, model.BurnStatusRejected, approver,
		map[string]interface{}{
			"failure_reason": reason,
		})
}

// Schedule 预约执行 APPROVED -> SCHEDULED
func (s *BurnService) Schedule(ctx context.Context, burnNo string, scheduledAt time.Time, operator string) error {
	if scheduledAt.Before(time.Now()) {
		return errors.New("预约时刻必须在将来")
	}
	return s.transition(ctx, burnNo, model.BurnStatusApproved, model.BurnStatusScheduled, operator,
		map[string]interface{}{
			"scheduled_at": scheduledAt,
		})
}

// StartExecution 占住执行权 APPROVED/SCHEDULED -> EXECUTING
//
// 【关键点】CAS 转移天然拒绝并发的二重执行：
// 两个执行者同时开始时只有一个能把状态推进到 EXECUTING。
func (s *BurnService) StartExecution(ctx context.Context, burnNo, executor string) error {
	decision, err := s.burnRepo.GetByBurnNo(ctx, burnNo)
	if err != nil {
		return err
	}
	if decision.Status != model.BurnStatusApproved && decision.Status != model.BurnStatusScheduled {
		return repository.ErrBurnStatusInvalid
	}
	if decision.Status == model.BurnStatusScheduled &&
		decision.ScheduledAt != nil && decision.ScheduledAt.After(time.Now()) {
		return errors.New("尚未到达预约执行时刻")
	}
	return s.transition(ctx, burnNo, decision.Status, model.BurnStatusExecuting, executor, nil)
}

// CompleteExecution 执行完成 EXECUTING -> COMPLETED
//
// actualAmount 是执行侧回报的实际销毁量，允许少于提案量
// （部分成交・手续费扣减等）。实际销毁率的分母固定取提案时点的
// 流通量快照，和提案率同一基准，两者才有可比性。
// txRef 为空时自动生成。
func (s *BurnService) CompleteExecution(ctx context.Context, burnNo string,
	actualAmount decimal.Decimal, txRef, executor string) (*model.BurnDecision, error) {
	decision, err := s.burnRepo.GetByBurnNo(ctx, burnNo)
	if err != nil {
		return nil, err
	}
	if decision.Status != model.BurnStatusExecuting {
		return nil, repository.ErrBurnStatusInvalid
	}

	actualAmount = money.RoundAmount(actualAmount)
	if !money.IsPositive(actualAmount) {
		return nil, ErrBurnAmountInvalid
	}
	if txRef == "" {
		txRef = idgen.GenerateTxRef()
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		pool, err := s.poolService.ExecuteBurn(ctx, tx, decision.SpaceID, actualAmount)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := s.burnRepo.UpdateStatus(ctx, tx, burnNo, model.BurnStatusExecuting,
			model.BurnStatusCompleted, map[string]interface{}{
				"actual_amount":            actualAmount,
				"circulating_supply_after": pool.CirculatingSupply,
				"burn_rate_actual":         money.Rate(actualAmount, decision.CirculatingSupplyBefore),
				"executed_by":              executor,
				"executed_at":              now,
				"tx_ref":                   txRef,
			}); err != nil {
			return err
		}

		return s.outboxRepo.CreateTransition(ctx, tx, s.cfg.Kafka.Topic.StateTransition, model.TransitionEvent{
			EntityType: "burn",
			EntityID:   burnNo,
			FromState:  model.BurnStatusExecuting,
			ToState:    model.BurnStatusCompleted,
			Actor:      executor,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("销毁执行完成: burnNo=%s, actual=%s, executor=%s",
		burnNo, actualAmount.String(), executor)
	return s.burnRepo.GetByBurnNo(ctx, burnNo)
}

// MarkFailed 执行失败 EXECUTING -> FAILED，失败原因落库
func (s *BurnService) MarkFailed(ctx context.Context, burnNo, reason, actor string) error {
	return s.transition(ctx, burnNo, model.BurnStatusExecuting, model.BurnStatusFailed, actor,
		map[string]interface{}{
			"failure_reason": reason,
		})
}

// Execute 单步执行：按提案量开始并完成
// 池级销毁失败时自动置 FAILED。分步控制走 StartExecution / CompleteExecution
func (s *BurnService) Execute(ctx context.Context, burnNo, executor string) (*model.BurnDecision, error) {
	decision, err := s.burnRepo.GetByBurnNo(ctx, burnNo)
	if err != nil {
		return nil, err
	}
	if err := s.StartExecution(ctx, burnNo, executor); err != nil {
		return nil, err
	}

	completed, err := s.CompleteExecution(ctx, burnNo, decision.ProposedAmount, "", executor)
	if err != nil {
		if markErr := s.MarkFailed(ctx, burnNo, err.Error(), executor); markErr != nil {
			log.Printf("[销毁] 标记失败状态出错: burnNo=%s, err=%v", burnNo, markErr)
		}
		return nil, err
	}
	return completed, nil
}

// Cancel 取消，终态以外都允许
func (s *BurnService) Cancel(ctx context.Context, burnNo, actor, reason string) error {
	return s.burnRepo.Cancel(ctx, burnNo, actor, reason)
}

func (s *BurnService) GetDecision(ctx context.Context, burnNo string) (*model.BurnDecision, error) {
	return s.burnRepo.GetByBurnNo(ctx, burnNo)
}

func (s *BurnService) ListDecisions(ctx context.Context, filter repository.BurnFilter, page, pageSize int) ([]*model.BurnDecision, int64, error) {
	return s.burnRepo.List(ctx, filter, page, pageSize)
}

// BurnStatistics 期间销毁统计
type BurnStatistics struct {
	SpaceID         int64           `json:"space_id"`
	TotalDecisions  int             `json:"total_decisions"`
	CompletedCount  int             `json:"completed_count"`
	TotalBurned     decimal.Decimal `json:"total_burned"` // 已完成决议的实际销毁量合计
	CountByStatus   map[string]int  `json:"count_by_status"`
	CountByType     map[string]int  `json:"count_by_type"`
	ApprovalRate    decimal.Decimal `json:"approval_rate"`   // 走到批准及之后的决议占比
	CompletionRate  decimal.Decimal `json:"completion_rate"` // 已完成决议占比
	AverageProposed decimal.Decimal `json:"average_proposed"`
	AverageActual   decimal.Decimal `json:"average_actual"` // 已完成决议的实际销毁量均值
	AverageRate     decimal.Decimal `json:"average_rate"`   // 已完成决议的实际销毁率均值
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
}

// 批准及之后的阶段，审批通过率按此集合统计
var approvedOnwardStatuses = map[string]bool{
	model.BurnStatusApproved:  true,
	model.BurnStatusScheduled: true,
	model.BurnStatusExecuting: true,
	model.BurnStatusCompleted: true,
	model.BurnStatusFailed:    true,
}

// Statistics 时间窗口内的销毁统计，基于全量决议聚合
func (s *BurnService) Statistics(ctx context.Context, spaceID int64, start, end time.Time) (*BurnStatistics, error) {
	decisions, err := s.burnRepo.ListInWindow(ctx, spaceID, start, end)
	if err != nil {
		return nil, err
	}

	stats := &BurnStatistics{
		SpaceID:         spaceID,
		TotalBurned:     decimal.Zero,
		CountByStatus:   make(map[string]int),
		CountByType:     make(map[string]int),
		ApprovalRate:    decimal.Zero,
		CompletionRate:  decimal.Zero,
		AverageProposed: decimal.Zero,
		AverageActual:   decimal.Zero,
		AverageRate:     decimal.Zero,
		PeriodStart:     start,
		PeriodEnd:       end,
	}
	approvedCount := 0
	proposedSum := decimal.Zero
	rateSum := decimal.Zero
	for _, d := range decisions {
		stats.TotalDecisions++
		stats.CountByStatus[d.Status]++
		stats.CountByType[d.DecisionType]++
		proposedSum = proposedSum.Add(d.ProposedAmount)
		if approvedOnwardStatuses[d.Status] {
			approvedCount++
		}
		if d.Status == model.BurnStatusCompleted {
			stats.CompletedCount++
			stats.TotalBurned = stats.TotalBurned.Add(d.ActualAmount)
			rateSum = rateSum.Add(d.BurnRateActual)
		}
	}
	if stats.TotalDecisions > 0 {
		total := decimal.NewFromInt(int64(stats.TotalDecisions))
		stats.ApprovalRate = money.Rate(decimal.NewFromInt(int64(approvedCount)), total)
		stats.CompletionRate = money.Rate(decimal.NewFromInt(int64(stats.CompletedCount)), total)
		stats.AverageProposed = money.RoundAmount(proposedSum.Div(total))
	}
	if stats.CompletedCount > 0 {
		completed := decimal.NewFromInt(int64(stats.CompletedCount))
		stats.AverageActual = money.RoundAmount(stats.TotalBurned.Div(completed))
		stats.AverageRate = money.RoundRate(rateSum.Div(completed))
	}
	return stats, nil
}

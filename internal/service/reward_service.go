package service

import (
	"context"
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

var ErrRewardNotProcessable = errors.New("奖励当前状态不可处理")

// RewardService 奖励发放服务
//
// 一次业务事件只创建一条发放记录，之后只做状态转移。
// 实际入账发生在 Process：发放额从奖励子池划出，
// 以 EARN 履历进入用户余额，整个过程在一个事务里。
type RewardService struct {
	db          *gorm.DB
	cfg         *config.Config
	rewardRepo  *repository.RewardRepository
	outboxRepo  *repository.OutboxRepository
	poolService *PoolService
	balanceSvc  *BalanceService
}

func NewRewardService(db *gorm.DB, cfg *config.Config, poolService *PoolService, balanceSvc *BalanceService) *RewardService {
	return &RewardService{
		db:          db,
		cfg:         cfg,
		rewardRepo:  repository.NewRewardRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		poolService: poolService,
		balanceSvc:  balanceSvc,
	}
}

type CreateRewardRequest struct {
	UserID      string          `json:"user_id" binding:"required"`
	SpaceID     int64           `json:"space_id" binding:"required"`
	Category    string          `json:"category" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Multiplier  string          `json:"multiplier"`
	ReferenceID string          `json:"reference_id"`
	Reason      string          `json:"reason"`
}

// CreateReward 创建奖励发放记录
//
// 【关键点】referenceID 非空时先查重：同一类别下同一参照事件
// 已有记录就直接返回旧记录，保证事件重放不会重复发奖。
func (s *RewardService) CreateReward(ctx context.Context, req *CreateRewardRequest) (*model.RewardDistribution, error) {
	if req.ReferenceID != "" {
		existing, err := s.rewardRepo.GetByReference(ctx, req.Category, req.ReferenceID)
		if err != nil {
			return nil, fmt.Errorf("查询奖励记录失败: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	var reward *model.RewardDistribution
	var err error
	switch req.Category {
	case model.RewardCategoryContent:
		reward, err = model.NewContentReward(req.UserID, req.SpaceID, req.Amount, req.ReferenceID, req.Reason)
	case model.RewardCategoryLearning:
		reward, err = model.NewLearningReward(req.UserID, req.SpaceID, req.Amount, req.ReferenceID, req.Reason)
	case model.RewardCategoryGovernance:
		reward, err = model.NewGovernanceReward(req.UserID, req.SpaceID, req.Amount, req.ReferenceID, req.Reason)
	case model.RewardCategoryPurchase:
		reward, err = model.NewPurchaseReward(req.UserID, req.SpaceID, req.Amount, req.ReferenceID)
	default:
		return nil, errors.New("未知的奖励类别")
	}
	if err != nil {
		return nil, err
	}

	if req.Multiplier != "" {
		m, mErr := decimal.NewFromString(req.Multiplier)
		if mErr != nil || m.Sign() <= 0 {
			return nil, errors.New("倍率必须为正数")
		}
		reward.SetMultiplier(m)
	}

	reward.RewardNo = idgen.GenerateRewardNo()
	if s.cfg.Token.RewardExpiryHours > 0 {
		expiresAt := time.Now().Add(time.Duration(s.cfg.Token.RewardExpiryHours) * time.Hour)
		reward.ExpiresAt = &expiresAt
	}

	if err := s.rewardRepo.Create(ctx, nil, reward); err != nil {
		return nil, fmt.Errorf("创建奖励记录失败: %w", err)
	}

	log.Printf("奖励创建成功: rewardNo=%s, userID=%s, category=%s, finalAmount=%s",
		reward.RewardNo, req.UserID, req.Category, reward.FinalAmount.String())
	return reward, nil
}

// Approve 审批通过 PENDING -> APPROVED
func (s *RewardService) Approve(ctx context.Context, rewardNo, approver string) (*model.RewardDistribution, error) {
	reward, err := s.rewardRepo.GetByRewardNo(ctx, rewardNo)
	if err != nil {
		return nil, err
	}
	if reward.IsExpired(time.Now()) {
		return nil, errors.New("奖励已过有效期")
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.rewardRepo.UpdateStatus(ctx, tx, rewardNo, reward.Status, model.RewardStatusApproved,
			map[string]interface{}{
				"approved_by": approver,
				"approved_at": now,
			}); err != nil {
			return err
		}
		return s.outboxRepo.CreateTransition(ctx, tx, s.cfg.Kafka.Topic.StateTransition, model.TransitionEvent{
			EntityType: "reward",
			EntityID:   rewardNo,
			FromState:  reward.Status,
			ToState:    model.RewardStatusApproved,
			Actor:      approver,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.rewardRepo.GetByRewardNo(ctx, rewardNo)
}

// Process 执行发放 APPROVED -> PROCESSING -> COMPLETED
//
// 入账・池扣减・状态转移在同一事务内提交。发放失败时
// 转移到 FAILED 并记录失败原因，永远不会留在 PROCESSING。
func (s *RewardService) Process(ctx context.Context, rewardNo, operator string) (*model.RewardDistribution, error) {
	reward, err := s.rewardRepo.GetByRewardNo(ctx, rewardNo)
	if err != nil {
		return nil, err
	}
	if reward.Status != model.RewardStatusApproved {
		return nil, ErrRewardNotProcessable
	}
	if reward.IsExpired(time.Now()) {
		return nil, errors.New("奖励已过有效期")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 先占住 PROCESSING，并发的第二次 Process 在这里被 CAS 拒绝
		if err := s.rewardRepo.UpdateStatus(ctx, tx, rewardNo, model.RewardStatusApproved,
			model.RewardStatusProcessing, nil); err != nil {
			return err
		}

		if _, err := s.poolService.DrawReward(ctx, tx, reward.SpaceID, reward.FinalAmount); err != nil {
			return fmt.Errorf("奖励子池扣减失败: %w", err)
		}

		entry, err := s.balanceSvc.RecordDeltaInTx(ctx, tx, &RecordDeltaRequest{
			UserID:      reward.UserID,
			SpaceID:     reward.SpaceID,
			Kind:        model.HistoryKindEarn,
			Amount:      reward.FinalAmount,
			ReferenceID: reward.RewardNo,
			Reason:      fmt.Sprintf("奖励发放-%s", reward.Category),
		})
		if err != nil {
			return fmt.Errorf("奖励入账失败: %w", err)
		}

		now := time.Now()
		if err := s.rewardRepo.UpdateStatus(ctx, tx, rewardNo, model.RewardStatusProcessing,
			model.RewardStatusCompleted, map[string]interface{}{
				"processed_at": now,
				"tx_ref":       entry.HistoryNo,
			}); err != nil {
			return err
		}

		return s.outboxRepo.CreateTransition(ctx, tx, s.cfg.Kafka.Topic.StateTransition, model.TransitionEvent{
			EntityType: "reward",
			EntityID:   rewardNo,
			FromState:  model.RewardStatusApproved,
			ToState:    model.RewardStatusCompleted,
			Actor:      operator,
			OccurredAt: now,
		})
	})
	if err != nil {
		// 事务整体回滚后记录失败状态。状态转移失败本身（CAS冲突）除外
		if !errors.Is(err, repository.ErrRewardStatusInvalid) {
			s.markFailed(ctx, rewardNo, err.Error())
		}
		return nil, err
	}

	log.Printf("奖励发放完成: rewardNo=%s, userID=%s, amount=%s",
		rewardNo, reward.UserID, reward.FinalAmount.String())
	return s.rewardRepo.GetByRewardNo(ctx, rewardNo)
}

// markFailed 发放失败时把记录从 APPROVED 直接转移到 FAILED 不可行
// （白名单只允许 PROCESSING -> FAILED），所以先占 PROCESSING 再置 FAILED
func (s *RewardService) markFailed(ctx context.Context, rewardNo, reason string) {
	_ = s.rewardRepo.UpdateStatus(ctx, nil, rewardNo, model.RewardStatusApproved, model.RewardStatusProcessing, nil)
	if err := s.rewardRepo.UpdateStatus(ctx, nil, rewardNo, model.RewardStatusProcessing,
		model.RewardStatusFailed, map[string]interface{}{
			"failure_reason": reason,
		}); err != nil {
		log.Printf("[奖励] 标记失败状态出错: rewardNo=%s, err=%v", rewardNo, err)
	}
}

// Cancel 取消 PENDING/APPROVED -> CANCELLED
func (s *RewardService) Cancel(ctx context.Context, rewardNo, operator, reason string) error {
	reward, err := s.rewardRepo.GetByRewardNo(ctx, rewardNo)
	if err != nil {
		return err
	}
	return s.rewardRepo.UpdateStatus(ctx, nil, rewardNo, reward.Status, model.RewardStatusCancelled,
		map[string]interface{}{
			"failure_reason": fmt.Sprintf("取消(%s): %s", operator, reason),
		})
}

// ExpireOverdue 过期清扫，定时任务调用
// 返回本轮置为 EXPIRED 的记录数
func (s *RewardService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	rewards, err := s.rewardRepo.GetExpirable(ctx, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, reward := range rewards {
		err := s.rewardRepo.UpdateStatus(ctx, nil, reward.RewardNo, reward.Status,
			model.RewardStatusExpired, map[string]interface{}{
				"failure_reason": "超过有效期未处理",
			})
		if err != nil {
			// 并发转移冲突跳过，下一轮清扫自然收敛
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *RewardService) GetReward(ctx context.Context, rewardNo string) (*model.RewardDistribution, error) {
	return s.rewardRepo.GetByRewardNo(ctx, rewardNo)
}

func (s *RewardService) ListRewards(ctx context.Context, filter repository.RewardFilter, page, pageSize int) ([]*model.RewardDistribution, int64, error) {
	return s.rewardRepo.List(ctx, filter, page, pageSize)
}

// RewardStatistics 期间奖励统计
type RewardStatistics struct {
	SpaceID          int64                      `json:"space_id"`
	TotalCount       int                        `json:"total_count"`
	CompletedCount   int                        `json:"completed_count"`
	TotalDistributed decimal.Decimal            `json:"total_distributed"` // 已完成发放的合计
	CountByCategory  map[string]int             `json:"count_by_category"`
	AmountByCategory map[string]decimal.Decimal `json:"amount_by_category"`
	PeriodStart      time.Time                  `json:"period_start"`
	PeriodEnd        time.Time                  `json:"period_end"`
}

// Statistics 时间窗口内的奖励发放统计，基于全量记录聚合
func (s *RewardService) Statistics(ctx context.Context, spaceID int64, start, end time.Time) (*RewardStatistics, error) {
	rewards, err := s.rewardRepo.ListInWindow(ctx, spaceID, start, end)
	if err != nil {
		return nil, err
	}

	stats := &RewardStatistics{
		SpaceID:          spaceID,
		TotalDistributed: decimal.Zero,
		CountByCategory:  make(map[string]int),
		AmountByCategory: make(map[string]decimal.Decimal),
		PeriodStart:      start,
		PeriodEnd:        end,
	}
	for _, r := range rewards {
		stats.TotalCount++
		stats.CountByCategory[r.Category]++
		if r.Status == model.RewardStatusCompleted {
			stats.CompletedCount++
			stats.TotalDistributed = stats.TotalDistributed.Add(r.FinalAmount)
			prev, ok := stats.AmountByCategory[r.Category]
			if !ok {
				prev = decimal.Zero
			}
			stats.AmountByCategory[r.Category] = prev.Add(r.FinalAmount)
		}
	}
	return stats, nil
}

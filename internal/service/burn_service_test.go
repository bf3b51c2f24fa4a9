package service

import (
	"context"
	"testing"
	"time"

	"tokencore/internal/model"
	"tokencore/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// burnFixture 销毁测试共通环境：流通量100000的代币池
type burnFixture struct {
	db      *gorm.DB
	poolSvc *PoolService
	svc     *BurnService
}

func newBurnFixture(t *testing.T) *burnFixture {
	db := newTestDB(t)
	cfg := testConfig()
	poolSvc := NewPoolService(db, nil, cfg)
	svc := NewBurnService(db, cfg, poolSvc)

	ctx := context.Background()
	_, err := poolSvc.CreatePool(ctx, &CreatePoolRequest{SpaceID: 1, AdminUserID: "admin"})
	require.NoError(t, err)
	_, err = poolSvc.Issue(ctx, 1, decimal.NewFromInt(100000), "admin")
	require.NoError(t, err)

	return &burnFixture{db: db, poolSvc: poolSvc, svc: svc}
}

func TestBurnService_CreateDecision(t *testing.T) {
	f := newBurnFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CreateDecision(ctx, &CreateBurnRequest{
		SpaceID:       1,
		Amount:        decimal.NewFromInt(1000),
		TriggerReason: model.BurnTriggerInflationControl,
		Rationale:     "流通量持续超过目标区间",
		DecidedBy:     "admin",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, decision.BurnNo)
	assert.Equal(t, model.BurnStatusProposed, decision.Status)
	assert.Equal(t, model.BurnDecisionManual, decision.DecisionType)
	assert.True(t, decision.CirculatingSupplyBefore.Equal(decimal.NewFromInt(100000)))
	// 提案销毁率 = 1000 / 100000
	assert.True(t, decision.BurnRateProposed.Equal(decimal.RequireFromString("0.01")))
}

func TestBurnService_CreateDecision_Rejections(t *testing.T) {
	f := newBurnFixture(t)
	ctx := context.Background()

	// 超过流通量
	_, err := f.svc.CreateDecision(ctx, &CreateBurnRequest{
		SpaceID:       1,
		Amount:        decimal.NewFromInt(200000),
		TriggerReason: model.BurnTriggerExcessSupply,
		DecidedBy:     "admin",
	})
	assert.ErrorIs(t, err, ErrBurnAmountInvalid)

	// 非正数
	_, err = f.svc.CreateDecision(ctx, &CreateBurnRequest{
		SpaceID:       1,
		Amount:        decimal.Zero,
		TriggerReason: model.BurnTriggerExcessSupply,
		DecidedBy:     "admin",
	})
	assert.ErrorIs(t, err, ErrBurnAmountInvalid)

	// 未知触发原因
	_, err = f.svc.CreateDecision(ctx, &CreateBurnRequest{
		SpaceID:       1,
		Amount:        decimal.NewFromInt(100),
		TriggerReason: "PANIC",
		DecidedBy:     "admin",
	})
	assert.ErrorIs(t, err, ErrBurnTriggerUnknown)
}

func TestBurnService_CreateAiDecision(t *testing.T) {
	f := newBurnFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CreateAiDecision(ctx, &CreateAiBurnRequest{
		SpaceID:         1,
		Amount:          decimal.NewFromInt(500),
		TriggerReason:   model.BurnTriggerEcosystemHealth,
		ConfidenceScore: decimal.RequireFromString("0.92"),
		EconomicIndicators: map[string]interface{}{
			"velocity": 0.34,
		},
	})
	require.NoError(t, err)

	// 判定模型已完成评估，跳过人工审查直接进入 APPROVED
	assert.Equal(t, model.BurnStatusApproved, decision.Status)
	assert.Equal(t, model.BurnDecisionAiAutomatic, decision.DecisionType)
	assert.Equal(t, "AI_ENGINE", decision.ApprovedBy)
	assert.NotEmpty(t, decision.EconomicIndicators)

	// 置信度越界
	_, err = f.svc.CreateAiDecision(ctx, &CreateAiBurnRequest{
		SpaceID:         1,
		Amount:          decimal.NewFromInt(500),
		TriggerReason:   model.BurnTriggerEcosystemHealth,
		ConfidenceScore: decimal.RequireFromString("1.5"),
	})
	assert.ErrorIs(t, err, ErrAiConfidenceInvalid)
}

func TestBurnService_ApprovalFlow(t *testing.T) {
	f := newBurnFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CreateDecision(ctx, &CreateBurnRequest{
		SpaceID:       1,
		Amount:        decimal.NewFromInt(1000),
		TriggerReason: model.BurnTriggerLowActivity,
		DecidedBy:     "admin",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.StartReview(ctx, decision.BurnNo, "reviewer"))
	require.NoError(t, f.svc.Approve(ctx, decision.BurnNo, "approver"))

	approved, err := f.svc.GetDecision(ctx, decision.BurnNo)
	require.NoError(t, err)
	assert.Equal(t, model.BurnStatusApproved, approved.Status)
	assert.Equal(t, "approver", approved.ApprovedBy)
	assert.NotNil(t, approved.ApprovedAt)

	// 已批准的决议不能再否决
	err = f.svc.Reject(ctx, decision.BurnNo, "approver", "复审")
	assert.ErrorIs(t, err, repository.ErrBurnStatusInvalid)
}

func TestBurnService_Execute(t *testing.T) {
	f := newBurnFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CreateDecision(ctx, &CreateBurnRequest{
		SpaceID:       1,
		Amount:        decimal.NewFromInt(1000),
		TriggerReason: model.BurnTriggerInflationControl,
		DecidedBy:     "admin",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Approve(ctx, decision.BurnNo, "approver"))

	executed, err := f.svc.Execute(ctx, decision.BurnNo, "executor")
	require.NoError(t, err)

	assert.Equal(t, model.BurnStatusCompleted, executed.Status)
	assert.True(t, executed.ActualAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, executed.CirculatingSupplyAfter.Equal(decimal.NewFromInt(99000)))
	// 实际销毁率以提案时点的流通量快照为分母
	assert.True(t, executed.BurnRateActual.Equal(decimal.RequireFromString("0.01")))
	assert.NotEmpty(t, executed.TxRef)
	assert.Equal(t, "executor", executed.ExecutedBy)

	// 池的流通量永久减少
	pool, err := f.poolSvc.GetPool(ctx, 1)
	require.NoError(t, err)
	assert.True(t, pool.CirculatingSupply.Equal(decimal.NewFromInt(99000)))
	assert.True(t, pool.BurnedAmount.Equal(decimal.NewFromInt(1000)))

	// 终态不可再次执行
	_, err = f.svc.Execute(ctx, decision.BurnNo, "executor")
	assert.ErrorIs(t, err, repository.ErrBurnStatusInvalid)
}

func TestBurnService_Execute_RateUsesSupplySnapshot(t *testing.T) {
	f := newBurnFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CreateDecision(ctx, &CreateBurnRequest{
		SpaceID:       1,
		Amount:        decimal.NewFromInt(1000),
		TriggerReason: model.BurnTriggerInflationControl,
		DecidedBy:     "admin",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Approve(ctx, decision.BurnNo, "approver"))

	// 提案后流通量翻倍，实际销毁率的分母仍是提案时点的快照
	_, err = f.poolSvc.Issue(ctx, 1, decimal.NewFromInt(100000), "admin")
	require.NoError(t, err)

	executed, err := f.svc.Execute(ctx, decision.BurnNo, "executor")
	require.NoError(t, err)

	assert.True(t, executed.CirculatingSupplyBefore.Equal(decimal.NewFromInt(100000)))
	assert.True(t, executed.CirculatingSupplyAfter.Equal(decimal.NewFromInt(199000)))
	assert.True(t, executed.BurnRateActual.Equal(decimal.RequireFromString("0.01")))
	// 与提案率同一基准才有可比性
	assert.True(t, executed.BurnRateActual.Equal(executed.BurnRateProposed))
}

func TestBurnService_StepwiseExecution(t *testing.T) {
	f := newBurnFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CreateDecision(ctx, &CreateBurnRequest{
		SpaceID:       1,
		Amount:        decimal.NewFromInt(10000),
		TriggerReason: model.BurnTriggerExcessSupply,
		DecidedBy:     "admin",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Approve(ctx, decision.BurnNo, "approver"))

	// EXECUTING 之前不能回报结果
	_, err = f.svc.CompleteExecution(ctx, decision.BurnNo, decimal.NewFromInt(9500), "", "executor")
	assert.ErrorIs(t, err, repository.ErrBurnStatusInvalid)

	require.NoError(t, f.svc.StartExecution(ctx, decision.BurnNo, "executor"))

	// 占住后不可并发再占
	err = f.svc.StartExecution(ctx, decision.BurnNo, "executor2")
	assert.ErrorIs(t, err, repository.ErrBurnStatusInvalid)

	// 实际销毁量可少于提案量
	completed, err := f.svc.CompleteExecution(ctx, decision.BurnNo,
		decimal.NewFromInt(9500), "tx-external-001", "executor")
	require.NoError(t, err)

	assert.Equal(t, model.BurnStatusCompleted, completed.Status)
	assert.True(t, completed.ActualAmount.Equal(decimal.NewFromInt(9500)))
	assert.True(t, completed.CirculatingSupplyAfter.Equal(decimal.NewFromInt(90500)))
	// 9500 / 100000
	assert.True(t, completed.BurnRateActual.Equal(decimal.RequireFromString("0.0095")))
	assert.Equal(t, "tx-external-001", completed.TxRef)

	pool, err := f.poolSvc.GetPool(ctx, 1)
	require.NoError(t, err)
	assert.True(t, pool.CirculatingSupply.Equal(decimal.NewFromInt(90500)))
	assert.True(t, pool.BurnedAmount.Equal(decimal.NewFromInt(9500)))
}

func TestBurnService_MarkFailed(t *testing.T) {
	f := newBurnFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CreateDecision(ctx, &CreateBurnRequest{
		SpaceID:       1,
		Amount:        decimal.NewFromInt(500),
		TriggerReason: model.BurnTriggerLowActivity,
		DecidedBy:     "admin",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Approve(ctx, decision.BurnNo, "approver"))
	require.NoError(t, f.svc.StartExecution(ctx, decision.BurnNo, "executor"))

	// 非正的实际量被拒绝，状态仍停留在 EXECUTING
	_, err = f.svc.CompleteExecution(ctx, decision.BurnNo, decimal.Zero, "", "executor")
	assert.ErrorIs(t, err, ErrBurnAmountInvalid)

	require.NoError(t, f.svc.MarkFailed(ctx, decision.BurnNo, "链上交易超时", "executor"))

	failed, err := f.svc.GetDecision(ctx, decision.BurnNo)
	require.NoError(t, err)
	assert.Equal(t, model.BurnStatusFailed, failed.Status)
	assert.Equal(t, "链上交易超时", failed.FailureReason)

	// FAILED 是终态
	_, err = f.svc.CompleteExecution(ctx, decision.BurnNo, decimal.NewFromInt(500), "", "executor")
	assert.ErrorIs(t, err, repository.ErrBurnStatusInvalid)
}

func TestBurnService_Schedule(t *testing.T) {
	f := newBurnFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CreateDecision(ctx, &CreateBurnRequest{
		SpaceID:       1,
		Amount:        decimal.NewFromInt(500),
		TriggerReason: model.BurnTriggerMarketCorrection,
		DecidedBy:     "admin",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Approve(ctx, decision.BurnNo, "approver"))

	// 过去时刻不可预约
	err = f.svc.Schedule(ctx, decision.BurnNo, time.Now().Add(-time.Hour), "operator")
	assert.Error(t, err)

	future := time.Now().Add(time.Hour)
	require.NoError(t, f.svc.Schedule(ctx, decision.BurnNo, future, "operator"))

	// 预约时刻未到不可执行
	_, err = f.svc.Execute(ctx, decision.BurnNo, "executor")
	assert.Error(t, err)

	scheduled, err := f.svc.GetDecision(ctx, decision.BurnNo)
	require.NoError(t, err)
	assert.Equal(t, model.BurnStatusScheduled, scheduled.Status)
}

func TestBurnService_Cancel(t *testing.T) {
	f := newBurnFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CreateDecision(ctx, &CreateBurnRequest{
		SpaceID:       1,
		Amount:        decimal.NewFromInt(500),
		TriggerReason: model.BurnTriggerExcessSupply,
		DecidedBy:     "admin",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, decision.BurnNo, "admin", "方针变更"))

	cancelled, err := f.svc.GetDecision(ctx, decision.BurnNo)
	require.NoError(t, err)
	assert.Equal(t, model.BurnStatusCancelled, cancelled.Status)

	// 终态不可再取消
	err = f.svc.Cancel(ctx, decision.BurnNo, "admin", "再次取消")
	assert.ErrorIs(t, err, repository.ErrBurnStatusInvalid)
}

func TestBurnService_Statistics(t *testing.T) {
	f := newBurnFixture(t)
	ctx := context.Background()

	for _, amount := range []int64{1000, 2000} {
		decision, err := f.svc.CreateDecision(ctx, &CreateBurnRequest{
			SpaceID:       1,
			Amount:        decimal.NewFromInt(amount),
			TriggerReason: model.BurnTriggerInflationControl,
			DecidedBy:     "admin",
		})
		require.NoError(t, err)
		require.NoError(t, f.svc.Approve(ctx, decision.BurnNo, "approver"))
		_, err = f.svc.Execute(ctx, decision.BurnNo, "executor")
		require.NoError(t, err)
	}

	now := time.Now()
	stats, err := f.svc.Statistics(ctx, 1, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.CompletedCount)
	assert.True(t, stats.TotalBurned.Equal(decimal.NewFromInt(3000)))
	assert.True(t, stats.ApprovalRate.Equal(decimal.NewFromInt(1)))
	assert.True(t, stats.CompletionRate.Equal(decimal.NewFromInt(1)))
	assert.True(t, stats.AverageProposed.Equal(decimal.NewFromInt(1500)))
	assert.True(t, stats.AverageActual.Equal(decimal.NewFromInt(1500)))
}

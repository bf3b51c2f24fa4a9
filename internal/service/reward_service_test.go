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

// rewardFixture 奖励测试共通环境：已发行代币的池 + 有余额账户的用户
type rewardFixture struct {
	db         *gorm.DB
	balanceSvc *BalanceService
	poolSvc    *PoolService
	svc        *RewardService
}

func newRewardFixture(t *testing.T) *rewardFixture {
	db := newTestDB(t)
	cfg := testConfig()
	balanceSvc := NewBalanceService(db, nil, cfg)
	poolSvc := NewPoolService(db, nil, cfg)
	svc := NewRewardService(db, cfg, poolSvc, balanceSvc)

	ctx := context.Background()
	_, err := poolSvc.CreatePool(ctx, &CreatePoolRequest{SpaceID: 1, AdminUserID: "admin"})
	require.NoError(t, err)
	_, err = poolSvc.Issue(ctx, 1, decimal.NewFromInt(100000), "admin")
	require.NoError(t, err)

	// 入账对象的余额账户预先建好
	_, err = balanceSvc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_1", SpaceID: 1, Kind: model.HistoryKindEarn, Amount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	return &rewardFixture{db: db, balanceSvc: balanceSvc, poolSvc: poolSvc, svc: svc}
}

func TestRewardService_CreateReward(t *testing.T) {
	f := newRewardFixture(t)
	ctx := context.Background()

	reward, err := f.svc.CreateReward(ctx, &CreateRewardRequest{
		UserID:      "user_1",
		SpaceID:     1,
		Category:    model.RewardCategoryContent,
		Amount:      decimal.NewFromInt(100),
		Multiplier:  "1.5",
		ReferenceID: "content_9",
		Reason:      "优质投稿",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, reward.RewardNo)
	assert.Equal(t, model.RewardStatusPending, reward.Status)
	assert.True(t, reward.FinalAmount.Equal(decimal.NewFromInt(150)))
	assert.NotNil(t, reward.ExpiresAt)

	// 同一参照事件的重放返回既存记录，不会重复发奖
	again, err := f.svc.CreateReward(ctx, &CreateRewardRequest{
		UserID:      "user_1",
		SpaceID:     1,
		Category:    model.RewardCategoryContent,
		Amount:      decimal.NewFromInt(100),
		ReferenceID: "content_9",
	})
	require.NoError(t, err)
	assert.Equal(t, reward.RewardNo, again.RewardNo)

	// 未知类别
	_, err = f.svc.CreateReward(ctx, &CreateRewardRequest{
		UserID: "user_1", SpaceID: 1, Category: "MINING", Amount: decimal.NewFromInt(10),
	})
	assert.Error(t, err)
}

func TestRewardService_ProcessRoundTrip(t *testing.T) {
	f := newRewardFixture(t)
	ctx := context.Background()

	reward, err := f.svc.CreateReward(ctx, &CreateRewardRequest{
		UserID:   "user_1",
		SpaceID:  1,
		Category: model.RewardCategoryLearning,
		Amount:   decimal.NewFromInt(150),
		Reason:   "课程完成",
	})
	require.NoError(t, err)

	// 未审批不可处理
	_, err = f.svc.Process(ctx, reward.RewardNo, "operator")
	assert.ErrorIs(t, err, ErrRewardNotProcessable)

	_, err = f.svc.Approve(ctx, reward.RewardNo, "approver")
	require.NoError(t, err)

	processed, err := f.svc.Process(ctx, reward.RewardNo, "operator")
	require.NoError(t, err)
	assert.Equal(t, model.RewardStatusCompleted, processed.Status)
	assert.NotEmpty(t, processed.TxRef)
	assert.NotNil(t, processed.ProcessedAt)

	// 入账金额与最终发放额一致
	balance, err := f.balanceSvc.CurrentBalance(ctx, "user_1", 1)
	require.NoError(t, err)
	assert.True(t, balance.CurrentBalance.Equal(decimal.NewFromInt(160))) // 10 + 150

	// 奖励子池相应减少：40000 - 150
	pool, err := f.poolSvc.GetPool(ctx, 1)
	require.NoError(t, err)
	assert.True(t, pool.RewardPool.Equal(decimal.NewFromInt(39850)))

	// 第二次处理被拒绝，不会重复入账
	_, err = f.svc.Process(ctx, reward.RewardNo, "operator")
	assert.ErrorIs(t, err, ErrRewardNotProcessable)

	balance, err = f.balanceSvc.CurrentBalance(ctx, "user_1", 1)
	require.NoError(t, err)
	assert.True(t, balance.CurrentBalance.Equal(decimal.NewFromInt(160)))
}

func TestRewardService_Process_PoolShortage(t *testing.T) {
	f := newRewardFixture(t)
	ctx := context.Background()

	// 超过奖励子池余量（40000）的发放
	reward, err := f.svc.CreateReward(ctx, &CreateRewardRequest{
		UserID:   "user_1",
		SpaceID:  1,
		Category: model.RewardCategoryGovernance,
		Amount:   decimal.NewFromInt(50000),
	})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, reward.RewardNo, "approver")
	require.NoError(t, err)

	_, err = f.svc.Process(ctx, reward.RewardNo, "operator")
	require.Error(t, err)

	// 整体回滚后记录转移到 FAILED，绝不滞留在中间状态
	failed, err := f.svc.GetReward(ctx, reward.RewardNo)
	require.NoError(t, err)
	assert.Equal(t, model.RewardStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.FailureReason)

	// 余额与池都未被动过
	balance, err := f.balanceSvc.CurrentBalance(ctx, "user_1", 1)
	require.NoError(t, err)
	assert.True(t, balance.CurrentBalance.Equal(decimal.NewFromInt(10)))

	pool, err := f.poolSvc.GetPool(ctx, 1)
	require.NoError(t, err)
	assert.True(t, pool.RewardPool.Equal(decimal.NewFromInt(40000)))
}

func TestRewardService_Cancel(t *testing.T) {
	f := newRewardFixture(t)
	ctx := context.Background()

	reward, err := f.svc.CreateReward(ctx, &CreateRewardRequest{
		UserID:   "user_1",
		SpaceID:  1,
		Category: model.RewardCategoryContent,
		Amount:   decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, reward.RewardNo, "admin", "误发"))

	cancelled, err := f.svc.GetReward(ctx, reward.RewardNo)
	require.NoError(t, err)
	assert.Equal(t, model.RewardStatusCancelled, cancelled.Status)

	// 取消后不可审批
	_, err = f.svc.Approve(ctx, reward.RewardNo, "approver")
	assert.ErrorIs(t, err, repository.ErrRewardStatusInvalid)
}

func TestRewardService_ExpireOverdue(t *testing.T) {
	f := newRewardFixture(t)
	ctx := context.Background()

	reward, err := f.svc.CreateReward(ctx, &CreateRewardRequest{
		UserID:   "user_1",
		SpaceID:  1,
		Category: model.RewardCategoryContent,
		Amount:   decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	// 把有效期拨到过去
	past := time.Now().Add(-time.Hour)
	err = f.db.Model(&model.RewardDistribution{}).
		Where("reward_no = ?", reward.RewardNo).
		Update("expires_at", past).Error
	require.NoError(t, err)

	count, err := f.svc.ExpireOverdue(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expired, err := f.svc.GetReward(ctx, reward.RewardNo)
	require.NoError(t, err)
	assert.Equal(t, model.RewardStatusExpired, expired.Status)

	// 没有过期对象时是正常的空扫
	count, err = f.svc.ExpireOverdue(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

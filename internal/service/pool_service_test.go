package service

import (
	"context"
	"testing"

	"tokencore/internal/model"
	"tokencore/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolService_CreatePool_Defaults(t *testing.T) {
	svc := NewPoolService(newTestDB(t), nil, testConfig())
	ctx := context.Background()

	pool, err := svc.CreatePool(ctx, &CreatePoolRequest{SpaceID: 1, AdminUserID: "admin"})
	require.NoError(t, err)

	assert.True(t, pool.MaxSupply.Equal(decimal.NewFromInt(1000000)))
	assert.True(t, pool.IssueRate.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, pool.BurnRate.Equal(decimal.RequireFromString("0.0005")))
	assert.True(t, pool.CollectionThreshold.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, model.PoolStatusActive, pool.Status)

	// 同一空间不可重复创建
	_, err = svc.CreatePool(ctx, &CreatePoolRequest{SpaceID: 1, AdminUserID: "admin"})
	assert.ErrorIs(t, err, repository.ErrPoolExists)
}

func TestPoolService_Issue(t *testing.T) {
	svc := NewPoolService(newTestDB(t), nil, testConfig())
	ctx := context.Background()

	_, err := svc.CreatePool(ctx, &CreatePoolRequest{SpaceID: 1, AdminUserID: "admin"})
	require.NoError(t, err)

	pool, err := svc.Issue(ctx, 1, decimal.NewFromInt(50000), "admin")
	require.NoError(t, err)

	assert.True(t, pool.TotalSupply.Equal(decimal.NewFromInt(50000)))
	assert.True(t, pool.CirculatingSupply.Equal(decimal.NewFromInt(50000)))
	assert.True(t, pool.RewardPool.Equal(decimal.NewFromInt(20000)))
	assert.True(t, pool.GovernancePool.Equal(decimal.NewFromInt(10000)))
	assert.True(t, pool.EcosystemPool.Equal(decimal.NewFromInt(10000)))
	assert.True(t, pool.ReservePool.Equal(decimal.NewFromInt(10000)))

	// 超过最大供给量
	_, err = svc.Issue(ctx, 1, decimal.NewFromInt(960000), "admin")
	assert.ErrorIs(t, err, ErrMaxSupplyExceeded)

	remain, err := svc.IssuableAmount(ctx, 1)
	require.NoError(t, err)
	assert.True(t, remain.Equal(decimal.NewFromInt(950000)))
}

func TestPoolService_Issue_InactivePool(t *testing.T) {
	svc := NewPoolService(newTestDB(t), nil, testConfig())
	ctx := context.Background()

	_, err := svc.CreatePool(ctx, &CreatePoolRequest{SpaceID: 1, AdminUserID: "admin"})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, 1, model.PoolStatusPaused, "admin")
	require.NoError(t, err)

	_, err = svc.Issue(ctx, 1, decimal.NewFromInt(100), "admin")
	assert.ErrorIs(t, err, ErrPoolInactive)
}

func TestPoolService_UpdateStatus(t *testing.T) {
	svc := NewPoolService(newTestDB(t), nil, testConfig())
	ctx := context.Background()

	_, err := svc.CreatePool(ctx, &CreatePoolRequest{SpaceID: 1, AdminUserID: "admin"})
	require.NoError(t, err)

	pool, err := svc.UpdateStatus(ctx, 1, model.PoolStatusPaused, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.PoolStatusPaused, pool.Status)

	_, err = svc.UpdateStatus(ctx, 1, "FROZEN", "admin")
	assert.ErrorIs(t, err, ErrPoolStatusUnknown)
}

func TestPoolService_CollectionCandidates(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	svc := NewPoolService(db, nil, cfg)
	balanceSvc := NewBalanceService(db, nil, cfg)
	ctx := context.Background()

	_, err := svc.CreatePool(ctx, &CreatePoolRequest{SpaceID: 1, AdminUserID: "admin"})
	require.NoError(t, err)

	// 回收阈值1000：user_top 和 user_rich 达线，user_mid 未达
	for user, amount := range map[string]int64{
		"user_top": 2500, "user_rich": 1500, "user_mid": 800,
	} {
		_, err = balanceSvc.RecordDelta(ctx, &RecordDeltaRequest{
			UserID: user, SpaceID: 1, Kind: model.HistoryKindEarn,
			Amount: decimal.NewFromInt(amount),
		})
		require.NoError(t, err)
	}

	candidates, err := svc.CollectionCandidates(ctx, 1, 100)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// 余额降序
	assert.Equal(t, "user_top", candidates[0].UserID)
	assert.True(t, candidates[0].ExcessAmount.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, "user_rich", candidates[1].UserID)
	assert.True(t, candidates[1].ExcessAmount.Equal(decimal.NewFromInt(500)))

	// 池暂停期间回收候补为空
	_, err = svc.UpdateStatus(ctx, 1, model.PoolStatusPaused, "admin")
	require.NoError(t, err)
	candidates, err = svc.CollectionCandidates(ctx, 1, 100)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestPoolService_CheckHealth(t *testing.T) {
	db := newTestDB(t)
	svc := NewPoolService(db, nil, testConfig())
	ctx := context.Background()

	_, err := svc.CreatePool(ctx, &CreatePoolRequest{SpaceID: 1, AdminUserID: "admin"})
	require.NoError(t, err)
	_, err = svc.Issue(ctx, 1, decimal.NewFromInt(1000), "admin")
	require.NoError(t, err)

	report, err := svc.CheckHealth(ctx, 1)
	require.NoError(t, err)
	assert.True(t, report.Healthy)
	// 利用率 1000/1000000
	assert.True(t, report.UtilizationRate.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, report.UtilizationPercent.Equal(decimal.RequireFromString("0.1")))

	// 人为破坏守恒不变式
	err = db.Model(&model.TokenPool{}).Where("space_id = ?", 1).
		Update("circulating_supply", decimal.NewFromInt(1)).Error
	require.NoError(t, err)

	report, err = svc.CheckHealth(ctx, 1)
	require.NoError(t, err)
	assert.False(t, report.Healthy)
}

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
)

func newBalanceService(t *testing.T) *BalanceService {
	// redisClient 为 nil 时分布式锁被跳过，只依赖数据库乐观锁
	return NewBalanceService(newTestDB(t), nil, testConfig())
}

func TestBalanceService_RecordDelta(t *testing.T) {
	svc := newBalanceService(t)
	ctx := context.Background()

	entry, err := svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID:  "user_1",
		SpaceID: 1,
		Kind:    model.HistoryKindEarn,
		Amount:  decimal.NewFromInt(100),
		Reason:  "初始奖励",
	})
	require.NoError(t, err)
	assert.True(t, entry.BalanceBefore.IsZero())
	assert.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(100)))
	assert.True(t, entry.IsBalanceValid())

	// 出账
	entry, err = svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID:  "user_1",
		SpaceID: 1,
		Kind:    model.HistoryKindSpend,
		Amount:  decimal.NewFromInt(-30),
	})
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(70)))

	balance, err := svc.CurrentBalance(ctx, "user_1", 1)
	require.NoError(t, err)
	assert.True(t, balance.CurrentBalance.Equal(decimal.NewFromInt(70)))
	assert.True(t, balance.TotalEarned.Equal(decimal.NewFromInt(100)))
	assert.True(t, balance.TotalSpent.Equal(decimal.NewFromInt(30)))
}

func TestBalanceService_RecordDelta_Rejections(t *testing.T) {
	svc := newBalanceService(t)
	ctx := context.Background()

	// 未知变动类型
	_, err := svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_1", SpaceID: 1, Kind: "RECHARGE", Amount: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, ErrHistoryKindBad)

	// 变动量为0
	_, err = svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_1", SpaceID: 1, Kind: model.HistoryKindEarn, Amount: decimal.Zero,
	})
	assert.ErrorIs(t, err, ErrAmountZero)

	// 余额不足
	_, err = svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_1", SpaceID: 1, Kind: model.HistoryKindSpend, Amount: decimal.NewFromInt(-50),
	})
	assert.ErrorIs(t, err, repository.ErrBalanceNotEnough)

	// 冻结账户拒绝一切变动
	_, err = svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_2", SpaceID: 1, Kind: model.HistoryKindEarn, Amount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	require.NoError(t, svc.SetFrozen(ctx, "user_2", 1, true, "admin"))

	_, err = svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_2", SpaceID: 1, Kind: model.HistoryKindEarn, Amount: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, repository.ErrBalanceFrozen)

	// 解冻后恢复
	require.NoError(t, svc.SetFrozen(ctx, "user_2", 1, false, "admin"))
	_, err = svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_2", SpaceID: 1, Kind: model.HistoryKindEarn, Amount: decimal.NewFromInt(10),
	})
	assert.NoError(t, err)
}

func TestBalanceService_Statistics(t *testing.T) {
	svc := newBalanceService(t)
	ctx := context.Background()

	_, err := svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_1", SpaceID: 1, Kind: model.HistoryKindEarn, Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	_, err = svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_1", SpaceID: 1, Kind: model.HistoryKindSpend, Amount: decimal.NewFromInt(-30),
	})
	require.NoError(t, err)

	now := time.Now()
	stats, err := svc.Statistics(ctx, "user_1", 1, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.EntryCount)
	assert.True(t, stats.TotalEarned.Equal(decimal.NewFromInt(100)))
	assert.True(t, stats.TotalSpent.Equal(decimal.NewFromInt(30)))
	assert.True(t, stats.NetChange.Equal(decimal.NewFromInt(70)))
	assert.Equal(t, 1, stats.CountByKind[model.HistoryKindEarn])
	assert.Equal(t, 1, stats.CountByKind[model.HistoryKindSpend])
	assert.True(t, stats.AmountByKind[model.HistoryKindEarn].Equal(decimal.NewFromInt(100)))
	assert.True(t, stats.AmountByKind[model.HistoryKindSpend].Equal(decimal.NewFromInt(-30)))
	assert.True(t, stats.MaxIncrease.Equal(decimal.NewFromInt(100)))
	assert.True(t, stats.MaxDecrease.Equal(decimal.NewFromInt(30)))
	assert.True(t, stats.AvgChange.Equal(decimal.NewFromInt(35)))
}

func TestBalanceService_DeleteHistory(t *testing.T) {
	svc := newBalanceService(t)
	ctx := context.Background()

	entry, err := svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_1", SpaceID: 1, Kind: model.HistoryKindEarn, Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	// 没有原因不允许删除
	err = svc.DeleteHistory(ctx, entry.HistoryNo, "admin", "")
	assert.Error(t, err)

	require.NoError(t, svc.DeleteHistory(ctx, entry.HistoryNo, "admin", "误登录修正"))

	// 再删同一条 -> 不存在
	err = svc.DeleteHistory(ctx, entry.HistoryNo, "admin", "再次删除")
	assert.ErrorIs(t, err, repository.ErrHistoryNotFound)
}

func TestBalanceService_ConsistencyAndRepair(t *testing.T) {
	db := newTestDB(t)
	svc := NewBalanceService(db, nil, testConfig())
	ctx := context.Background()

	_, err := svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_1", SpaceID: 1, Kind: model.HistoryKindEarn, Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	report, err := svc.CheckConsistency(ctx, "user_1", 1)
	require.NoError(t, err)
	assert.True(t, report.Consistent)

	// 模拟锁外写入导致的权威余额漂移
	err = db.Model(&model.PointBalance{}).
		Where("user_id = ? AND space_id = ?", "user_1", 1).
		Update("current_balance", decimal.NewFromInt(999)).Error
	require.NoError(t, err)

	report, err = svc.CheckConsistency(ctx, "user_1", 1)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.True(t, report.HistoryDrift.Equal(decimal.NewFromInt(899)))

	// 修复以最新履历为准
	report, err = svc.Repair(ctx, "user_1", 1, "admin")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.True(t, report.AuthoritativeValue.Equal(decimal.NewFromInt(100)))
	assert.True(t, report.LegacyValue.Equal(decimal.NewFromInt(100)))
}

func TestBalanceService_LegacyMirrorSync(t *testing.T) {
	db := newTestDB(t)
	svc := NewBalanceService(db, nil, testConfig())
	ctx := context.Background()

	_, err := svc.RecordDelta(ctx, &RecordDeltaRequest{
		UserID: "user_1", SpaceID: 1, Kind: model.HistoryKindEarn, Amount: decimal.NewFromInt(42),
	})
	require.NoError(t, err)

	var legacy model.LegacyBalance
	require.NoError(t, db.Where("user_id = ? AND space_id = ?", "user_1", 1).First(&legacy).Error)
	assert.True(t, legacy.CurrentBalance.Equal(decimal.NewFromInt(42)))
}

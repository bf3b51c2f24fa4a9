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

func newSfrtService(t *testing.T) *SfrtService {
	return NewSfrtService(newTestDB(t), testConfig())
}

func TestSfrtService_Simulate(t *testing.T) {
	svc := newSfrtService(t)

	split, err := svc.Simulate(decimal.NewFromInt(100))
	require.NoError(t, err)

	// 100 × 1.25% / 1.25% / 2.5%
	assert.True(t, split.BuyerReward.Equal(decimal.RequireFromString("1.25")))
	assert.True(t, split.SellerReward.Equal(decimal.RequireFromString("1.25")))
	assert.True(t, split.PlatformCut.Equal(decimal.RequireFromString("2.5")))
	assert.False(t, split.AlreadyDone)

	_, err = svc.Simulate(decimal.Zero)
	assert.ErrorIs(t, err, ErrSfrtAmountInvalid)
}

func TestSfrtService_Distribute(t *testing.T) {
	svc := newSfrtService(t)
	ctx := context.Background()

	req := &DistributeSfrtRequest{
		RelatedTxID: "TX20260901001",
		SpaceID:     1,
		BuyerID:     "buyer_1",
		SellerID:    "seller_1",
		BaseAmount:  decimal.NewFromInt(100),
	}
	split, err := svc.Distribute(ctx, req)
	require.NoError(t, err)
	assert.False(t, split.AlreadyDone)

	// 三方各自入账
	for user, expected := range map[string]string{
		"buyer_1":                "1.25",
		"seller_1":               "1.25",
		model.SfrtPlatformUserID: "2.5",
	} {
		balance, err := svc.GetBalance(ctx, user, 1)
		require.NoError(t, err)
		assert.True(t, balance.Balance.Equal(decimal.RequireFromString(expected)), user)
		assert.True(t, balance.TotalEarned.Equal(decimal.RequireFromString(expected)), user)
	}

	// 流水3条，都关联到来源交易
	txs, total, err := svc.ListTransactions(ctx, "buyer_1", 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, model.SfrtTxRewardBuyer, txs[0].Type)
	assert.Equal(t, "TX20260901001", txs[0].RelatedTxID)

	// 同一主交易重放 -> 幂等命中，返回既存结果且不重复入账
	replay, err := svc.Distribute(ctx, req)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyDone)
	assert.True(t, replay.BuyerReward.Equal(decimal.RequireFromString("1.25")))

	balance, err := svc.GetBalance(ctx, "buyer_1", 1)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.RequireFromString("1.25")))
}

func TestSfrtService_Withdraw(t *testing.T) {
	svc := newSfrtService(t)
	ctx := context.Background()

	_, err := svc.Distribute(ctx, &DistributeSfrtRequest{
		RelatedTxID: "TX20260901002",
		SpaceID:     1,
		BuyerID:     "buyer_1",
		SellerID:    "seller_1",
		BaseAmount:  decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	// 买方得到 12.5，提取 10
	record, err := svc.Withdraw(ctx, "buyer_1", 1, decimal.NewFromInt(10), "提现")
	require.NoError(t, err)
	assert.Equal(t, model.SfrtTxWithdraw, record.Type)
	// 流水按出账记负数
	assert.True(t, record.Amount.Equal(decimal.NewFromInt(-10)))

	balance, err := svc.GetBalance(ctx, "buyer_1", 1)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, balance.TotalWithdrawn.Equal(decimal.NewFromInt(10)))

	// 余额不足
	_, err = svc.Withdraw(ctx, "buyer_1", 1, decimal.NewFromInt(100), "提现")
	assert.ErrorIs(t, err, repository.ErrSfrtNotEnough)

	_, err = svc.Withdraw(ctx, "buyer_1", 1, decimal.Zero, "提现")
	assert.ErrorIs(t, err, ErrSfrtAmountInvalid)
}

func TestSfrtService_Adjust(t *testing.T) {
	svc := newSfrtService(t)
	ctx := context.Background()

	// 正数入账，账户不存在时自动开户
	record, err := svc.Adjust(ctx, &AdjustSfrtRequest{
		UserID:     "user_1",
		SpaceID:    1,
		Amount:     decimal.NewFromInt(30),
		Reason:     "活动补偿",
		OperatorID: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SfrtTxManualAdjust, record.Type)
	assert.Equal(t, "admin", record.OperatorID)

	balance, err := svc.GetBalance(ctx, "user_1", 1)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(30)))

	// 负数出账
	_, err = svc.Adjust(ctx, &AdjustSfrtRequest{
		UserID:     "user_1",
		SpaceID:    1,
		Amount:     decimal.NewFromInt(-20),
		Reason:     "误发回收",
		OperatorID: "admin",
	})
	require.NoError(t, err)

	balance, err = svc.GetBalance(ctx, "user_1", 1)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(10)))

	// 出账超过余额
	_, err = svc.Adjust(ctx, &AdjustSfrtRequest{
		UserID: "user_1", SpaceID: 1, Amount: decimal.NewFromInt(-50),
		Reason: "回收", OperatorID: "admin",
	})
	assert.ErrorIs(t, err, repository.ErrSfrtNotEnough)

	// 零变动没有意义
	_, err = svc.Adjust(ctx, &AdjustSfrtRequest{
		UserID: "user_1", SpaceID: 1, Amount: decimal.Zero,
		Reason: "无", OperatorID: "admin",
	})
	assert.ErrorIs(t, err, ErrAmountZero)
}

func TestSfrtService_GetBalance_Unknown(t *testing.T) {
	svc := newSfrtService(t)

	// 未开户返回零值账户而不是错误
	balance, err := svc.GetBalance(context.Background(), "ghost", 1)
	require.NoError(t, err)
	assert.Equal(t, "ghost", balance.UserID)
	assert.True(t, balance.Balance.IsZero())
}

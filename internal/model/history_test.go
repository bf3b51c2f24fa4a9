package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidHistoryKind(t *testing.T) {
	assert.True(t, ValidHistoryKind(HistoryKindEarn))
	assert.True(t, ValidHistoryKind(HistoryKindSpend))
	assert.True(t, ValidHistoryKind(HistoryKindCollect))
	assert.True(t, ValidHistoryKind(HistoryKindBurn))
	assert.True(t, ValidHistoryKind(HistoryKindTransfer))

	assert.False(t, ValidHistoryKind("RECHARGE"))
	assert.False(t, ValidHistoryKind(""))
}

func TestBalanceHistory_IsBalanceValid(t *testing.T) {
	h := &BalanceHistory{
		Amount:        decimal.NewFromInt(30),
		BalanceBefore: decimal.NewFromInt(100),
		BalanceAfter:  decimal.NewFromInt(130),
	}
	assert.True(t, h.IsBalanceValid())

	// 变动后余额与 before + amount 不一致时必须拒绝
	h.BalanceAfter = decimal.NewFromInt(131)
	assert.False(t, h.IsBalanceValid())

	// 出账方向
	h = &BalanceHistory{
		Amount:        decimal.NewFromInt(-50),
		BalanceBefore: decimal.NewFromInt(100),
		BalanceAfter:  decimal.NewFromInt(50),
	}
	assert.True(t, h.IsBalanceValid())
	assert.False(t, h.IsPositiveChange())
}

func TestPointBalance_Apply(t *testing.T) {
	b := &PointBalance{
		CurrentBalance: decimal.NewFromInt(100),
		TotalEarned:    decimal.NewFromInt(100),
	}

	b.Apply(HistoryKindEarn, decimal.NewFromInt(50), decimal.NewFromInt(150))
	assert.True(t, b.CurrentBalance.Equal(decimal.NewFromInt(150)))
	assert.True(t, b.TotalEarned.Equal(decimal.NewFromInt(150)))

	b.Apply(HistoryKindSpend, decimal.NewFromInt(-30), decimal.NewFromInt(120))
	assert.True(t, b.CurrentBalance.Equal(decimal.NewFromInt(120)))
	assert.True(t, b.TotalSpent.Equal(decimal.NewFromInt(30)))

	b.Apply(HistoryKindCollect, decimal.NewFromInt(-20), decimal.NewFromInt(100))
	assert.True(t, b.TotalCollected.Equal(decimal.NewFromInt(20)))
}

func TestPointBalance_IsActive(t *testing.T) {
	b := &PointBalance{}
	assert.True(t, b.IsActive())

	b.Frozen = true
	assert.False(t, b.IsActive())
}

package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundAmount(t *testing.T) {
	// 第9位四舍五入
	got := RoundAmount(decimal.RequireFromString("1.234567895"))
	assert.True(t, got.Equal(decimal.RequireFromString("1.23456790")))

	// 已在精度内的值原样保留
	got = RoundAmount(decimal.RequireFromString("0.5"))
	assert.True(t, got.Equal(decimal.RequireFromString("0.5")))
}

func TestRate(t *testing.T) {
	got := Rate(decimal.NewFromInt(1), decimal.NewFromInt(3))
	assert.True(t, got.Equal(decimal.RequireFromString("0.333333")))

	// 分母为0不报错，返回零
	assert.True(t, Rate(decimal.NewFromInt(1), decimal.Zero).IsZero())
}

func TestPercent(t *testing.T) {
	got := Percent(decimal.NewFromInt(250), decimal.NewFromInt(1000))
	assert.True(t, got.Equal(decimal.NewFromInt(25)))

	assert.True(t, Percent(decimal.NewFromInt(1), decimal.Zero).IsZero())
}

func TestMulAmount(t *testing.T) {
	got := MulAmount(decimal.NewFromInt(100), decimal.RequireFromString("0.0125"))
	assert.True(t, got.Equal(decimal.RequireFromString("1.25")))
}

package money

import (
	"github.com/shopspring/decimal"
)

// ============================================================================
// 金额・比率的精度策略
// ============================================================================
//
// 代币量和比率的精度统一收口在这里。
// 各服务各自写舍入的话精度会参差不齐，对账时出现微小误差，
// 所以计算值的舍入一律经过本包。
//
//   - 金额（代币量）: 小数点后8位，四舍五入
//   - 比率・占比:     小数点后6位，四舍五入
//
// 输入值原样保留，只舍入计算产生的值。
// ============================================================================

const (
	// AmountScale 代币量的小数位数
	AmountScale = 8
	// RateScale 比率・占比的小数位数
	RateScale = 6
)

// RoundAmount 舍入计算产生的代币量（小数点后8位，四舍五入）
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// RoundRate 舍入计算产生的比率（小数点后6位，四舍五入）
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(RateScale)
}

// Rate 按比率精度计算 分子/分母，分母为0时返回零
func Rate(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return decimal.Zero
	}
	return numerator.DivRound(denominator, RateScale)
}

// Percent 按百分比（0-100）计算 分子/分母
func Percent(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return decimal.Zero
	}
	return numerator.DivRound(denominator, RateScale).Mul(decimal.NewFromInt(100))
}

// MulAmount 按金额精度计算 金额 × 比率
func MulAmount(amount, rate decimal.Decimal) decimal.Decimal {
	return RoundAmount(amount.Mul(rate))
}

// IsPositive 金额是否为正
func IsPositive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

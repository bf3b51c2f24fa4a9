package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activePool(maxSupply int64) *TokenPool {
	return &TokenPool{
		SpaceID:   1,
		MaxSupply: decimal.NewFromInt(maxSupply),
		Status:    PoolStatusActive,
	}
}

func TestTokenPool_Issue(t *testing.T) {
	pool := activePool(1000000)

	ok := pool.Issue(decimal.NewFromInt(50000))
	require.True(t, ok)

	assert.True(t, pool.TotalSupply.Equal(decimal.NewFromInt(50000)))
	assert.True(t, pool.IssuedAmount.Equal(decimal.NewFromInt(50000)))
	assert.True(t, pool.CirculatingSupply.Equal(decimal.NewFromInt(50000)))

	// 子池按 40/20/20/20 切分
	assert.True(t, pool.RewardPool.Equal(decimal.NewFromInt(20000)))
	assert.True(t, pool.GovernancePool.Equal(decimal.NewFromInt(10000)))
	assert.True(t, pool.EcosystemPool.Equal(decimal.NewFromInt(10000)))
	assert.True(t, pool.ReservePool.Equal(decimal.NewFromInt(10000)))

	assert.True(t, pool.IsHealthy())
}

func TestTokenPool_Issue_Rejections(t *testing.T) {
	pool := activePool(1000000)

	// 超过最大供给量
	assert.False(t, pool.Issue(decimal.NewFromInt(2000000)))
	assert.True(t, pool.TotalSupply.IsZero())

	// 非正数
	assert.False(t, pool.Issue(decimal.Zero))
	assert.False(t, pool.Issue(decimal.NewFromInt(-100)))

	// 非活跃状态
	pool.Status = PoolStatusPaused
	assert.False(t, pool.Issue(decimal.NewFromInt(100)))
}

func TestTokenPool_Burn(t *testing.T) {
	pool := activePool(1000000)
	require.True(t, pool.Issue(decimal.NewFromInt(100000)))

	ok := pool.Burn(decimal.NewFromInt(1000))
	require.True(t, ok)

	assert.True(t, pool.BurnedAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, pool.CirculatingSupply.Equal(decimal.NewFromInt(99000)))
	// 销毁不减少累计发行量
	assert.True(t, pool.IssuedAmount.Equal(decimal.NewFromInt(100000)))
	assert.NotNil(t, pool.LastBurnAt)
	assert.True(t, pool.IsHealthy())

	// 超过流通量的销毁拒绝
	assert.False(t, pool.Burn(decimal.NewFromInt(200000)))
}

func TestTokenPool_DistributeRewards(t *testing.T) {
	pool := activePool(1000000)
	require.True(t, pool.Issue(decimal.NewFromInt(100000)))

	ok := pool.DistributeRewards(decimal.NewFromInt(500))
	require.True(t, ok)
	assert.True(t, pool.RewardPool.Equal(decimal.NewFromInt(39500)))
	assert.NotNil(t, pool.LastRewardDistribution)

	// 奖励子池余额不足
	assert.False(t, pool.DistributeRewards(decimal.NewFromInt(100000)))
}

func TestTokenPool_IssuableAmount(t *testing.T) {
	pool := activePool(1000000)
	assert.True(t, pool.IssuableAmount().Equal(decimal.NewFromInt(1000000)))

	require.True(t, pool.Issue(decimal.NewFromInt(300000)))
	assert.True(t, pool.IssuableAmount().Equal(decimal.NewFromInt(700000)))
}

func TestTokenPool_IsCollectionTarget(t *testing.T) {
	pool := activePool(1000000)
	pool.CollectionThreshold = decimal.NewFromInt(1000)

	assert.False(t, pool.IsCollectionTarget(decimal.NewFromInt(1000)))
	assert.True(t, pool.IsCollectionTarget(decimal.NewFromInt(1001)))

	pool.Status = PoolStatusPaused
	assert.False(t, pool.IsCollectionTarget(decimal.NewFromInt(1001)))
}

func TestTokenPool_IsHealthy(t *testing.T) {
	pool := activePool(1000000)
	require.True(t, pool.Issue(decimal.NewFromInt(100000)))
	assert.True(t, pool.IsHealthy())

	// 流通量守恒被破坏
	pool.CirculatingSupply = pool.CirculatingSupply.Sub(decimal.NewFromInt(1))
	assert.False(t, pool.IsHealthy())
}

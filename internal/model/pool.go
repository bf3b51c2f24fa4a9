package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 代币池状态常量
// ============================================================================

const (
	PoolStatusActive     = "ACTIVE"     // 活跃
	PoolStatusPaused     = "PAUSED"     // 暂停
	PoolStatusMigrating  = "MIGRATING"  // 迁移中
	PoolStatusDeprecated = "DEPRECATED" // 废弃
)

// 发行时的子池分配比例
// 发行量按固定比例切分到四个子池，比例合计必须为1
var (
	IssueAllocReward     = decimal.RequireFromString("0.40")
	IssueAllocGovernance = decimal.RequireFromString("0.20")
	IssueAllocEcosystem  = decimal.RequireFromString("0.20")
	IssueAllocReserve    = decimal.RequireFromString("0.20")
)

// TokenPool 代币池表
// 每个空间一条记录，集中管理总供给、流通量和四个子池
//
// 【守恒不变式】
//
//	circulatingSupply = issuedAmount - burnedAmount
//	totalSupply <= maxSupply
//	各子池余额 >= 0
type TokenPool struct {
	ID                     int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SpaceID                int64           `gorm:"uniqueIndex;not null" json:"space_id"`
	TotalSupply            decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_supply"`
	IssuedAmount           decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"issued_amount"`
	BurnedAmount           decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"burned_amount"`
	CirculatingSupply      decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"circulating_supply"`
	ReservePool            decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"reserve_pool"`
	RewardPool             decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"reward_pool"`
	GovernancePool         decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"governance_pool"`
	EcosystemPool          decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"ecosystem_pool"`
	IssueRate              decimal.Decimal `gorm:"type:decimal(10,6);not null;default:0.001" json:"issue_rate"`
	BurnRate               decimal.Decimal `gorm:"type:decimal(10,6);not null;default:0.0005" json:"burn_rate"`
	CollectionThreshold    decimal.Decimal `gorm:"type:decimal(20,8);not null;default:1000" json:"collection_threshold"`
	MaxSupply              decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"max_supply"`
	Status                 string          `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status"`
	LastRewardDistribution *time.Time      `json:"last_reward_distribution"`
	LastBurnAt             *time.Time      `json:"last_burn_at"`
	AdminUserID            string          `gorm:"type:varchar(64);not null" json:"admin_user_id"`
	Version                int             `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TokenPool) TableName() string {
	return "token_pool"
}

// IsActive 代币池是否可操作
func (p *TokenPool) IsActive() bool {
	return p.Status == PoolStatusActive
}

// Issue 发行代币
// 非活跃或超出最大供给量时返回 false，状态不变
func (p *TokenPool) Issue(amount decimal.Decimal) bool {
	if amount.Sign() <= 0 {
		return false
	}
	if !p.IsActive() {
		return false
	}
	if p.TotalSupply.Add(amount).GreaterThan(p.MaxSupply) {
		return false
	}

	p.TotalSupply = p.TotalSupply.Add(amount)
	p.IssuedAmount = p.IssuedAmount.Add(amount)
	p.CirculatingSupply = p.CirculatingSupply.Add(amount)

	// 子池分配：40% 奖励 / 20% 治理 / 20% 生态 / 20% 储备
	p.RewardPool = p.RewardPool.Add(amount.Mul(IssueAllocReward))
	p.GovernancePool = p.GovernancePool.Add(amount.Mul(IssueAllocGovernance))
	p.EcosystemPool = p.EcosystemPool.Add(amount.Mul(IssueAllocEcosystem))
	p.ReservePool = p.ReservePool.Add(amount.Mul(IssueAllocReserve))

	return true
}

// Burn 销毁代币，永久减少流通量
func (p *TokenPool) Burn(amount decimal.Decimal) bool {
	if amount.Sign() <= 0 {
		return false
	}
	if !p.IsActive() {
		return false
	}
	if p.CirculatingSupply.LessThan(amount) {
		return false
	}

	p.BurnedAmount = p.BurnedAmount.Add(amount)
	p.CirculatingSupply = p.CirculatingSupply.Sub(amount)
	now := time.Now()
	p.LastBurnAt = &now

	return true
}

// DistributeRewards 从奖励子池划出配布额度
func (p *TokenPool) DistributeRewards(amount decimal.Decimal) bool {
	if amount.Sign() <= 0 {
		return false
	}
	if !p.IsActive() {
		return false
	}
	if p.RewardPool.LessThan(amount) {
		return false
	}

	p.RewardPool = p.RewardPool.Sub(amount)
	now := time.Now()
	p.LastRewardDistribution = &now

	return true
}

// IssuableAmount 可发行余量 = max(maxSupply - totalSupply, 0)
func (p *TokenPool) IssuableAmount() decimal.Decimal {
	remain := p.MaxSupply.Sub(p.TotalSupply)
	if remain.Sign() < 0 {
		return decimal.Zero
	}
	return remain
}

// IsCollectionTarget 用户余额是否达到回收对象线
func (p *TokenPool) IsCollectionTarget(userBalance decimal.Decimal) bool {
	return userBalance.GreaterThan(p.CollectionThreshold) && p.IsActive()
}

// IsHealthy 代币池健全性检查
// 流通量守恒且各数量非负时为健全，治理与销毁触发器以此为依据
func (p *TokenPool) IsHealthy() bool {
	if !p.CirculatingSupply.Equal(p.IssuedAmount.Sub(p.BurnedAmount)) {
		return false
	}
	return p.TotalSupply.Sign() >= 0 &&
		p.IssuedAmount.Sign() >= 0 &&
		p.BurnedAmount.Sign() >= 0 &&
		p.CirculatingSupply.Sign() >= 0 &&
		p.ReservePool.Sign() >= 0 &&
		p.RewardPool.Sign() >= 0 &&
		p.GovernancePool.Sign() >= 0 &&
		p.EcosystemPool.Sign() >= 0
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tokencore/internal/config"
	"tokencore/internal/infrastructure/lock"
	"tokencore/internal/model"
	"tokencore/internal/repository"
	"tokencore/pkg/idgen"
	"tokencore/pkg/money"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrPoolInactive          = errors.New("代币池当前不可操作")
	ErrMaxSupplyExceeded     = errors.New("超过最大供给量上限")
	ErrPoolNotEnough         = errors.New("代币池余量不足")
	ErrPoolStatusUnknown     = errors.New("未知的代币池状态")
	ErrPoolInvariantViolated = errors.New("代币池守恒不变式被破坏")
)

// PoolService 代币池服务
//
// 池上的每次变更都在 FOR UPDATE 行锁 + 乐观锁版本号双重保护下执行：
// 行锁把并发请求串行化，版本号兜底意外的锁外写入。
type PoolService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	poolRepo    *repository.PoolRepository
	balanceRepo *repository.PointBalanceRepository
	outboxRepo  *repository.OutboxRepository
}

func NewPoolService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *PoolService {
	return &PoolService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		poolRepo:    repository.NewPoolRepository(db),
		balanceRepo: repository.NewPointBalanceRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

type CreatePoolRequest struct {
	SpaceID     int64  `json:"space_id" binding:"required"`
	MaxSupply   string `json:"max_supply"`
	AdminUserID string `json:"admin_user_id" binding:"required"`
}

// CreatePool 为一个空间创建代币池，参数缺省时使用配置默认值
func (s *PoolService) CreatePool(ctx context.Context, req *CreatePoolRequest) (*model.TokenPool, error) {
	maxSupply := req.MaxSupply
	if maxSupply == "" {
		maxSupply = s.cfg.Token.DefaultMaxSupply
	}
	maxSupplyDec, err := decimal.NewFromString(maxSupply)
	if err != nil || maxSupplyDec.Sign() <= 0 {
		return nil, errors.New("最大供给量必须为正数")
	}

	issueRate, err := decimal.NewFromString(s.cfg.Token.DefaultIssueRate)
	if err != nil {
		return nil, fmt.Errorf("默认发行率配置无效: %w", err)
	}
	burnRate, err := decimal.NewFromString(s.cfg.Token.DefaultBurnRate)
	if err != nil {
		return nil, fmt.Errorf("默认销毁率配置无效: %w", err)
	}
	threshold, err := decimal.NewFromString(s.cfg.Token.CollectionThreshold)
	if err != nil {
		return nil, fmt.Errorf("回收阈值配置无效: %w", err)
	}

	pool := &model.TokenPool{
		SpaceID:             req.SpaceID,
		MaxSupply:           maxSupplyDec,
		IssueRate:           issueRate,
		BurnRate:            burnRate,
		CollectionThreshold: threshold,
		Status:              model.PoolStatusActive,
		AdminUserID:         req.AdminUserID,
	}
	if err := s.poolRepo.Create(ctx, pool); err != nil {
		return nil, err
	}

	log.Printf("代币池创建成功: spaceID=%d, maxSupply=%s", req.SpaceID, maxSupplyDec.String())
	return pool, nil
}

// GetPool 查询代币池
func (s *PoolService) GetPool(ctx context.Context, spaceID int64) (*model.TokenPool, error) {
	return s.poolRepo.GetBySpaceID(ctx, spaceID)
}

// ListPools 分页查询代币池
func (s *PoolService) ListPools(ctx context.Context, page, pageSize int) ([]*model.TokenPool, int64, error) {
	return s.poolRepo.List(ctx, page, pageSize)
}

// Issue 发行代币
// 发行量按 40/20/20/20 切分到奖励・治理・生态・储备四个子池
func (s *PoolService) Issue(ctx context.Context, spaceID int64, amount decimal.Decimal, operator string) (*model.TokenPool, error) {
	if !money.IsPositive(amount) {
		return nil, errors.New("发行量必须大于0")
	}
	amount = money.RoundAmount(amount)

	// 同一空间的发行串行化。redisClient 为 nil 时（单机/测试）
	// 退化为仅依赖 FOR UPDATE 行锁
	if s.redisClient != nil {
		poolLock := lock.NewPoolLock(s.redisClient, spaceID, idgen.GenerateTxRef())
		if err := poolLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer poolLock.Unlock(ctx)
	}

	var result *model.TokenPool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		pool, err := s.poolRepo.GetBySpaceIDForUpdate(ctx, tx, spaceID)
		if err != nil {
			return err
		}
		if !pool.IsActive() {
			return ErrPoolInactive
		}
		if !pool.Issue(amount) {
			return ErrMaxSupplyExceeded
		}
		if err := s.poolRepo.Save(ctx, tx, pool); err != nil {
			return err
		}
		if err := s.outboxRepo.CreateTransition(ctx, tx, s.cfg.Kafka.Topic.StateTransition, model.TransitionEvent{
			EntityType: "pool",
			EntityID:   fmt.Sprintf("%d", spaceID),
			FromState:  "ISSUE",
			ToState:    amount.String(),
			Actor:      operator,
			OccurredAt: time.Now(),
		}); err != nil {
			return err
		}
		result = pool
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("代币发行成功: spaceID=%d, amount=%s, totalSupply=%s, operator=%s",
		spaceID, amount.String(), result.TotalSupply.String(), operator)
	return result, nil
}

// ExecuteBurn 池级销毁，只允许由销毁决议的执行流程调用
// 在调用方的事务里执行，保证决议状态与池状态同时提交
func (s *PoolService) ExecuteBurn(ctx context.Context, tx *gorm.DB, spaceID int64, amount decimal.Decimal) (*model.TokenPool, error) {
	pool, err := s.poolRepo.GetBySpaceIDForUpdate(ctx, tx, spaceID)
	if err != nil {
		return nil, err
	}
	if !pool.IsActive() {
		return nil, ErrPoolInactive
	}
	if !pool.Burn(amount) {
		return nil, ErrPoolNotEnough
	}
	if err := s.poolRepo.Save(ctx, tx, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// DrawReward 从奖励子池划出发放额度
// 同样在调用方（奖励处理）的事务里执行
func (s *PoolService) DrawReward(ctx context.Context, tx *gorm.DB, spaceID int64, amount decimal.Decimal) (*model.TokenPool, error) {
	pool, err := s.poolRepo.GetBySpaceIDForUpdate(ctx, tx, spaceID)
	if err != nil {
		return nil, err
	}
	if !pool.IsActive() {
		return nil, ErrPoolInactive
	}
	if !pool.DistributeRewards(amount) {
		return nil, ErrPoolNotEnough
	}
	if err := s.poolRepo.Save(ctx, tx, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// IssuableAmount 剩余可发行量 = max(maxSupply - totalSupply, 0)
func (s *PoolService) IssuableAmount(ctx context.Context, spaceID int64) (decimal.Decimal, error) {
	pool, err := s.poolRepo.GetBySpaceID(ctx, spaceID)
	if err != nil {
		return decimal.Zero, err
	}
	return pool.IssuableAmount(), nil
}

// UpdateStatus 代币池状态变更（暂停・恢复・迁移・废弃）
func (s *PoolService) UpdateStatus(ctx context.Context, spaceID int64, status, operator string) (*model.TokenPool, error) {
	switch status {
	case model.PoolStatusActive, model.PoolStatusPaused,
		model.PoolStatusMigrating, model.PoolStatusDeprecated:
	default:
		return nil, ErrPoolStatusUnknown
	}

	var result *model.TokenPool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		pool, err := s.poolRepo.GetBySpaceIDForUpdate(ctx, tx, spaceID)
		if err != nil {
			return err
		}
		from := pool.Status
		pool.Status = status
		if err := s.poolRepo.Save(ctx, tx, pool); err != nil {
			return err
		}
		if err := s.outboxRepo.CreateTransition(ctx, tx, s.cfg.Kafka.Topic.StateTransition, model.TransitionEvent{
			EntityType: "pool",
			EntityID:   fmt.Sprintf("%d", spaceID),
			FromState:  from,
			ToState:    status,
			Actor:      operator,
			OccurredAt: time.Now(),
		}); err != nil {
			return err
		}
		result = pool
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("代币池状态变更: spaceID=%d, status=%s, operator=%s", spaceID, status, operator)
	return result, nil
}

// UpdateParameters 治理提案通过后应用的参数变更
func (s *PoolService) UpdateParameters(ctx context.Context, tx *gorm.DB, spaceID int64, issueRate, burnRate, collectionThreshold *decimal.Decimal) error {
	apply := func(tx *gorm.DB) error {
		pool, err := s.poolRepo.GetBySpaceIDForUpdate(ctx, tx, spaceID)
		if err != nil {
			return err
		}
		if issueRate != nil {
			pool.IssueRate = money.RoundRate(*issueRate)
		}
		if burnRate != nil {
			pool.BurnRate = money.RoundRate(*burnRate)
		}
		if collectionThreshold != nil {
			pool.CollectionThreshold = money.RoundAmount(*collectionThreshold)
		}
		return s.poolRepo.Save(ctx, tx, pool)
	}
	if tx != nil {
		return apply(tx)
	}
	return s.db.Transaction(apply)
}

// CollectionCandidate 回收候补账户
type CollectionCandidate struct {
	UserID         string          `json:"user_id"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	ExcessAmount   decimal.Decimal `json:"excess_amount"` // 超过回收阈值的部分
}

// CollectionCandidates 回收候补一览
//
// 余额超过池回收阈值的账户，按余额降序。池非活跃时回收暂停，
// 返回空列表。只做筛选，不执行实际回收。
func (s *PoolService) CollectionCandidates(ctx context.Context, spaceID int64, limit int) ([]*CollectionCandidate, error) {
	pool, err := s.poolRepo.GetBySpaceID(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	balances, err := s.balanceRepo.ListAbove(ctx, spaceID, pool.CollectionThreshold, limit)
	if err != nil {
		return nil, err
	}

	candidates := make([]*CollectionCandidate, 0, len(balances))
	for _, b := range balances {
		if !pool.IsCollectionTarget(b.CurrentBalance) {
			continue
		}
		candidates = append(candidates, &CollectionCandidate{
			UserID:         b.UserID,
			CurrentBalance: b.CurrentBalance,
			ExcessAmount:   b.CurrentBalance.Sub(pool.CollectionThreshold),
		})
	}
	return candidates, nil
}

// PoolHealthReport 代币池健全性检查结果
type PoolHealthReport struct {
	SpaceID            int64           `json:"space_id"`
	Healthy            bool            `json:"healthy"`
	CirculatingSupply  decimal.Decimal `json:"circulating_supply"`
	ExpectedSupply     decimal.Decimal `json:"expected_supply"` // issuedAmount - burnedAmount
	IssuableAmount     decimal.Decimal `json:"issuable_amount"`
	UtilizationRate    decimal.Decimal `json:"utilization_rate"`    // totalSupply / maxSupply
	UtilizationPercent decimal.Decimal `json:"utilization_percent"` // 同上，百分比表示
}

// CheckHealth 守恒不变式检查
// circulatingSupply == issuedAmount - burnedAmount 且各子池非负
func (s *PoolService) CheckHealth(ctx context.Context, spaceID int64) (*PoolHealthReport, error) {
	pool, err := s.poolRepo.GetBySpaceID(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	report := &PoolHealthReport{
		SpaceID:            spaceID,
		Healthy:            pool.IsHealthy(),
		CirculatingSupply:  pool.CirculatingSupply,
		ExpectedSupply:     pool.IssuedAmount.Sub(pool.BurnedAmount),
		IssuableAmount:     pool.IssuableAmount(),
		UtilizationRate:    money.Rate(pool.TotalSupply, pool.MaxSupply),
		UtilizationPercent: money.Percent(pool.TotalSupply, pool.MaxSupply),
	}
	if !report.Healthy {
		log.Printf("[健全性警告] 代币池守恒不变式被破坏: spaceID=%d, circulating=%s, expected=%s",
			spaceID, report.CirculatingSupply.String(), report.ExpectedSupply.String())
	}
	return report, nil
}

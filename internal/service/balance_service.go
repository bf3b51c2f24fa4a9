package service

import (
	"context"
	"encoding/json"
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
	ErrInvariantViolated = errors.New("余额不变式被破坏: balanceAfter != balanceBefore + amount")
	ErrHistoryKindBad    = errors.New("未知的余额变动类型")
	ErrAmountZero        = errors.New("变动量不能为0")
)

// BalanceService 余额账本服务
//
// 余额的唯一真实来源是履历表：每笔变动先写履历（带变动前后余额），
// 再同步权威余额行和旧系统镜像。三者在同一事务中落库。
type BalanceService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	balanceRepo *repository.PointBalanceRepository
	legacyRepo  *repository.LegacyBalanceRepository
	historyRepo *repository.HistoryRepository
	outboxRepo  *repository.OutboxRepository
}

func NewBalanceService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *BalanceService {
	return &BalanceService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		balanceRepo: repository.NewPointBalanceRepository(db),
		legacyRepo:  repository.NewLegacyBalanceRepository(db),
		historyRepo: repository.NewHistoryRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

type RecordDeltaRequest struct {
	UserID      string          `json:"user_id" binding:"required"`
	SpaceID     int64           `json:"space_id" binding:"required"`
	Kind        string          `json:"kind" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	ReferenceID string          `json:"reference_id"`
	Reason      string          `json:"reason"`
}

// RecordDelta 记录一笔余额变动
//
// 【关键点】履历条目在构造时就带上变动前后余额，
// 落库前用 IsBalanceValid 复核不变式，违反即拒绝，绝不自动修正。
func (s *BalanceService) RecordDelta(ctx context.Context, req *RecordDeltaRequest) (*model.BalanceHistory, error) {
	if !model.ValidHistoryKind(req.Kind) {
		return nil, ErrHistoryKindBad
	}
	if req.Amount.IsZero() {
		return nil, ErrAmountZero
	}

	amount := money.RoundAmount(req.Amount)
	historyNo := idgen.GenerateHistoryNo()

	// 同一用户的变动串行化。redisClient 为 nil 时（单机/测试）退化为
	// 仅依赖数据库乐观锁
	if s.redisClient != nil {
		balanceLock := lock.NewBalanceLock(s.redisClient, req.UserID, req.SpaceID, historyNo)
		if err := balanceLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer balanceLock.Unlock(ctx)
	}

	balance, err := s.balanceRepo.GetOrCreate(ctx, req.UserID, req.SpaceID)
	if err != nil {
		return nil, fmt.Errorf("获取余额账户失败: %w", err)
	}
	if !balance.IsActive() {
		return nil, repository.ErrBalanceFrozen
	}

	before := balance.CurrentBalance
	after := before.Add(amount)
	if after.Sign() < 0 {
		return nil, repository.ErrBalanceNotEnough
	}

	entry := &model.BalanceHistory{
		HistoryNo:     historyNo,
		UserID:        req.UserID,
		SpaceID:       req.SpaceID,
		Kind:          req.Kind,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceID:   req.ReferenceID,
		Reason:        req.Reason,
	}
	if !entry.IsBalanceValid() {
		return nil, ErrInvariantViolated
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.historyRepo.Append(ctx, tx, entry); err != nil {
			return fmt.Errorf("写入履历失败: %w", err)
		}

		balance.Apply(req.Kind, amount, after)
		if err := s.balanceRepo.Save(ctx, tx, balance); err != nil {
			if errors.Is(err, repository.ErrOptimisticLock) {
				return errors.New("系统繁忙，请重试")
			}
			return fmt.Errorf("更新余额失败: %w", err)
		}

		// 镜像同步严格单向：权威余额 -> 旧系统表
		if err := s.legacyRepo.SetBalance(ctx, tx, req.UserID, req.SpaceID, after); err != nil {
			return fmt.Errorf("同步旧系统余额失败: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"history_no":  historyNo,
			"user_id":     req.UserID,
			"space_id":    req.SpaceID,
			"kind":        req.Kind,
			"amount":      amount.String(),
			"balance":     after.String(),
			"occurred_at": time.Now().Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: historyNo,
			Topic:      s.cfg.Kafka.Topic.BalanceChanged,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("余额变动成功: historyNo=%s, userID=%s, kind=%s, amount=%s, after=%s",
		historyNo, req.UserID, req.Kind, amount.String(), after.String())
	return entry, nil
}

// RecordDeltaInTx 在外部事务内记录一笔余额变动
//
// 奖励发放・销毁执行等流程需要把入账和自身的状态转移放进同一个事务，
// 由调用方负责事务边界和并发控制，这里只做校验和落库。
func (s *BalanceService) RecordDeltaInTx(ctx context.Context, tx *gorm.DB, req *RecordDeltaRequest) (*model.BalanceHistory, error) {
	if !model.ValidHistoryKind(req.Kind) {
		return nil, ErrHistoryKindBad
	}
	if req.Amount.IsZero() {
		return nil, ErrAmountZero
	}
	amount := money.RoundAmount(req.Amount)

	balance, err := s.balanceRepo.GetOrCreate(ctx, req.UserID, req.SpaceID)
	if err != nil {
		return nil, fmt.Errorf("获取余额账户失败: %w", err)
	}
	if !balance.IsActive() {
		return nil, repository.ErrBalanceFrozen
	}

	before := balance.CurrentBalance
	after := before.Add(amount)
	if after.Sign() < 0 {
		return nil, repository.ErrBalanceNotEnough
	}

	entry := &model.BalanceHistory{
		HistoryNo:     idgen.GenerateHistoryNo(),
		UserID:        req.UserID,
		SpaceID:       req.SpaceID,
		Kind:          req.Kind,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceID:   req.ReferenceID,
		Reason:        req.Reason,
	}
	if !entry.IsBalanceValid() {
		return nil, ErrInvariantViolated
	}

	if err := s.historyRepo.Append(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("写入履历失败: %w", err)
	}
	balance.Apply(req.Kind, amount, after)
	if err := s.balanceRepo.Save(ctx, tx, balance); err != nil {
		return nil, fmt.Errorf("更新余额失败: %w", err)
	}
	if err := s.legacyRepo.SetBalance(ctx, tx, req.UserID, req.SpaceID, after); err != nil {
		return nil, fmt.Errorf("同步旧系统余额失败: %w", err)
	}
	return entry, nil
}

// CurrentBalance 查询当前余额，账户不存在时返回零值账户
func (s *BalanceService) CurrentBalance(ctx context.Context, userID string, spaceID int64) (*model.PointBalance, error) {
	balance, err := s.balanceRepo.GetByUser(ctx, userID, spaceID)
	if err != nil {
		if errors.Is(err, repository.ErrBalanceNotFound) {
			return &model.PointBalance{
				UserID:  userID,
				SpaceID: spaceID,
			}, nil
		}
		return nil, err
	}
	return balance, nil
}

// ListHistory 分页查询余额履历
func (s *BalanceService) ListHistory(ctx context.Context, userID string, spaceID int64, filter repository.HistoryFilter, page, pageSize int) ([]*model.BalanceHistory, int64, error) {
	return s.historyRepo.ListByUser(ctx, userID, spaceID, filter, page, pageSize)
}

// SetFrozen 冻结・解冻账户
func (s *BalanceService) SetFrozen(ctx context.Context, userID string, spaceID int64, frozen bool, operator string) error {
	balance, err := s.balanceRepo.GetByUser(ctx, userID, spaceID)
	if err != nil {
		return err
	}
	balance.Frozen = frozen
	if err := s.balanceRepo.Save(ctx, nil, balance); err != nil {
		return err
	}
	log.Printf("账户冻结状态变更: userID=%s, frozen=%v, operator=%s", userID, frozen, operator)
	return nil
}

// BalanceStatistics 期间余额统计
type BalanceStatistics struct {
	UserID       string                     `json:"user_id"`
	SpaceID      int64                      `json:"space_id"`
	TotalEarned  decimal.Decimal            `json:"total_earned"`
	TotalSpent   decimal.Decimal            `json:"total_spent"`
	NetChange    decimal.Decimal            `json:"net_change"`
	AvgChange    decimal.Decimal            `json:"avg_change"`
	MaxIncrease  decimal.Decimal            `json:"max_increase"`  // 单笔最大入账
	MaxDecrease  decimal.Decimal            `json:"max_decrease"`  // 单笔最大出账（绝对值）
	StartBalance decimal.Decimal            `json:"start_balance"` // 窗口首笔的变动前余额
	EndBalance   decimal.Decimal            `json:"end_balance"`   // 窗口末笔的变动后余额
	EntryCount   int                        `json:"entry_count"`
	CountByKind  map[string]int             `json:"count_by_kind"`
	AmountByKind map[string]decimal.Decimal `json:"amount_by_kind"` // 各类别的净额合计
	PeriodStart  time.Time                  `json:"period_start"`
	PeriodEnd    time.Time                  `json:"period_end"`
}

// Statistics 对时间窗口内的履历做全量聚合
// 永远基于履历重算，不读累加列
func (s *BalanceService) Statistics(ctx context.Context, userID string, spaceID int64, start, end time.Time) (*BalanceStatistics, error) {
	entries, err := s.historyRepo.ListBetween(ctx, userID, spaceID, start, end)
	if err != nil {
		return nil, err
	}

	stats := &BalanceStatistics{
		UserID:       userID,
		SpaceID:      spaceID,
		TotalEarned:  decimal.Zero,
		TotalSpent:   decimal.Zero,
		NetChange:    decimal.Zero,
		AvgChange:    decimal.Zero,
		MaxIncrease:  decimal.Zero,
		MaxDecrease:  decimal.Zero,
		StartBalance: decimal.Zero,
		EndBalance:   decimal.Zero,
		CountByKind:  make(map[string]int),
		AmountByKind: make(map[string]decimal.Decimal),
		PeriodStart:  start,
		PeriodEnd:    end,
	}
	for _, e := range entries {
		stats.EntryCount++
		stats.CountByKind[e.Kind]++
		stats.AmountByKind[e.Kind] = stats.AmountByKind[e.Kind].Add(e.Amount)
		stats.NetChange = stats.NetChange.Add(e.Amount)
		if e.IsPositiveChange() {
			stats.TotalEarned = stats.TotalEarned.Add(e.Amount)
			if e.Amount.GreaterThan(stats.MaxIncrease) {
				stats.MaxIncrease = e.Amount
			}
		} else {
			abs := e.Amount.Abs()
			stats.TotalSpent = stats.TotalSpent.Add(abs)
			if abs.GreaterThan(stats.MaxDecrease) {
				stats.MaxDecrease = abs
			}
		}
	}
	if stats.EntryCount > 0 {
		// ListBetween 按时间升序返回
		stats.StartBalance = entries[0].BalanceBefore
		stats.EndBalance = entries[stats.EntryCount-1].BalanceAfter
		stats.AvgChange = money.RoundAmount(stats.NetChange.Div(decimal.NewFromInt(int64(stats.EntryCount))))
	}
	return stats, nil
}

// DeleteHistory 管理员显式删除一条履历
//
// 【重要】履历原则上只追加。删除仅用于误登录等极端情况，
// 必须带操作人和原因，且不回滚余额：余额如需修正走 Repair。
func (s *BalanceService) DeleteHistory(ctx context.Context, historyNo, operator, reason string) error {
	if reason == "" {
		return errors.New("删除履历必须填写原因")
	}
	entry, err := s.historyRepo.GetByHistoryNo(ctx, historyNo)
	if err != nil {
		return err
	}
	if err := s.historyRepo.Delete(ctx, historyNo); err != nil {
		return err
	}
	log.Printf("[审计] 履历删除: historyNo=%s, userID=%s, amount=%s, operator=%s, reason=%s",
		historyNo, entry.UserID, entry.Amount.String(), operator, reason)
	return nil
}

// ConsistencyReport 权威余额・履历・旧镜像三方对账结果
type ConsistencyReport struct {
	UserID             string          `json:"user_id"`
	SpaceID            int64           `json:"space_id"`
	Consistent         bool            `json:"consistent"`
	AuthoritativeValue decimal.Decimal `json:"authoritative_value"`
	LatestHistoryAfter decimal.Decimal `json:"latest_history_after"`
	LegacyValue        decimal.Decimal `json:"legacy_value"`
	HistoryDrift       decimal.Decimal `json:"history_drift"` // 权威余额 - 最新履历余额
	LegacyDrift        decimal.Decimal `json:"legacy_drift"`  // 权威余额 - 镜像余额
}

// CheckConsistency 三方对账：权威余额 vs 最新履历 vs 旧系统镜像
func (s *BalanceService) CheckConsistency(ctx context.Context, userID string, spaceID int64) (*ConsistencyReport, error) {
	balance, err := s.balanceRepo.GetByUser(ctx, userID, spaceID)
	if err != nil {
		return nil, err
	}

	report := &ConsistencyReport{
		UserID:             userID,
		SpaceID:            spaceID,
		AuthoritativeValue: balance.CurrentBalance,
	}

	latest, err := s.historyRepo.GetLatest(ctx, userID, spaceID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		report.LatestHistoryAfter = latest.BalanceAfter
	}

	legacy, err := s.legacyRepo.GetByUser(ctx, userID, spaceID)
	if err != nil {
		return nil, err
	}
	if legacy != nil {
		report.LegacyValue = legacy.CurrentBalance
	}

	report.HistoryDrift = balance.CurrentBalance.Sub(report.LatestHistoryAfter)
	report.LegacyDrift = balance.CurrentBalance.Sub(report.LegacyValue)
	report.Consistent = report.HistoryDrift.IsZero() && report.LegacyDrift.IsZero()
	return report, nil
}

// Repair 余额修复
//
// 履历是唯一真实来源：修复就是把权威余额行和旧镜像
// 显式重置为最新履历的变动后余额。只能由管理员触发。
func (s *BalanceService) Repair(ctx context.Context, userID string, spaceID int64, operator string) (*ConsistencyReport, error) {
	if s.redisClient != nil {
		repairLock := lock.NewRepairLock(s.redisClient, userID, spaceID, operator)
		if err := repairLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer repairLock.Unlock(ctx)
	}

	balance, err := s.balanceRepo.GetByUser(ctx, userID, spaceID)
	if err != nil {
		return nil, err
	}

	latest, err := s.historyRepo.GetLatest(ctx, userID, spaceID)
	if err != nil {
		return nil, err
	}
	truth := decimal.Zero
	if latest != nil {
		truth = latest.BalanceAfter
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		balance.CurrentBalance = truth
		if err := s.balanceRepo.Save(ctx, tx, balance); err != nil {
			return fmt.Errorf("修复权威余额失败: %w", err)
		}
		if err := s.legacyRepo.SetBalance(ctx, tx, userID, spaceID, truth); err != nil {
			return fmt.Errorf("修复旧系统镜像失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("余额修复完成: userID=%s, spaceID=%d, value=%s, operator=%s",
		userID, spaceID, truth.String(), operator)
	return s.CheckConsistency(ctx, userID, spaceID)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tokencore/internal/config"
	"tokencore/internal/model"
	"tokencore/internal/repository"
	"tokencore/pkg/idgen"
	"tokencore/pkg/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 主交易额的固定分账比例
// 买方 1.25% / 卖方 1.25% / 平台 2.5%
var (
	SfrtBuyerRate    = decimal.RequireFromString("0.0125")
	SfrtSellerRate   = decimal.RequireFromString("0.0125")
	SfrtPlatformRate = decimal.RequireFromString("0.025")
)

var (
	ErrSfrtAmountInvalid = errors.New("分账基准金额必须大于0")
	ErrSfrtPartyMissing  = errors.New("买方和卖方不能为空")
)

// SfrtService SFRT分账服务
//
// SFRT是从主交易额按固定比例派生的二级奖励代币，
// 与主代币的投票・销毁机制相互独立。每笔主交易只分账一次，
// 以来源交易ID做幂等判定。
type SfrtService struct {
	db       *gorm.DB
	cfg      *config.Config
	sfrtRepo *repository.SfrtRepository
}

func NewSfrtService(db *gorm.DB, cfg *config.Config) *SfrtService {
	return &SfrtService{
		db:       db,
		cfg:      cfg,
		sfrtRepo: repository.NewSfrtRepository(db),
	}
}

// SfrtSplit 一笔主交易的分账结果
type SfrtSplit struct {
	RelatedTxID  string          `json:"related_tx_id"`
	BaseAmount   decimal.Decimal `json:"base_amount"`
	BuyerReward  decimal.Decimal `json:"buyer_reward"`
	SellerReward decimal.Decimal `json:"seller_reward"`
	PlatformCut  decimal.Decimal `json:"platform_cut"`
	AlreadyDone  bool            `json:"already_done"` // 幂等命中时为true
}

// Simulate 只计算不落库，交易确认前的预览用
func (s *SfrtService) Simulate(baseAmount decimal.Decimal) (*SfrtSplit, error) {
	if baseAmount.Sign() <= 0 {
		return nil, ErrSfrtAmountInvalid
	}
	return &SfrtSplit{
		BaseAmount:   baseAmount,
		BuyerReward:  money.MulAmount(baseAmount, SfrtBuyerRate),
		SellerReward: money.MulAmount(baseAmount, SfrtSellerRate),
		PlatformCut:  money.MulAmount(baseAmount, SfrtPlatformRate),
	}, nil
}

type DistributeSfrtRequest struct {
	RelatedTxID string          `json:"related_tx_id" binding:"required"` // 来源主交易ID
	SpaceID     int64           `json:"space_id" binding:"required"`
	BuyerID     string          `json:"buyer_id" binding:"required"`
	SellerID    string          `json:"seller_id" binding:"required"`
	BaseAmount  decimal.Decimal `json:"base_amount" binding:"required"`
}

// Distribute 对一笔主交易执行分账
//
// 【关键点】以 relatedTxID 做幂等判定：已有分账记录的交易
// 直接返回既存结果，事件重放不会重复入账。
// 买方・卖方・平台三方入账在同一事务提交。
func (s *SfrtService) Distribute(ctx context.Context, req *DistributeSfrtRequest) (*SfrtSplit, error) {
	if req.BaseAmount.Sign() <= 0 {
		return nil, ErrSfrtAmountInvalid
	}
	if req.BuyerID == "" || req.SellerID == "" {
		return nil, ErrSfrtPartyMissing
	}

	existing, err := s.sfrtRepo.GetByRelatedTxID(ctx, req.RelatedTxID)
	if err != nil {
		return nil, fmt.Errorf("查询分账记录失败: %w", err)
	}
	if len(existing) > 0 {
		split := &SfrtSplit{RelatedTxID: req.RelatedTxID, BaseAmount: req.BaseAmount, AlreadyDone: true}
		for _, tx := range existing {
			switch tx.Type {
			case model.SfrtTxRewardBuyer:
				split.BuyerReward = tx.Amount
			case model.SfrtTxRewardSeller:
				split.SellerReward = tx.Amount
			case model.SfrtTxPlatformReserve:
				split.PlatformCut = tx.Amount
			}
		}
		return split, nil
	}

	split, err := s.Simulate(req.BaseAmount)
	if err != nil {
		return nil, err
	}
	split.RelatedTxID = req.RelatedTxID

	err = s.db.Transaction(func(tx *gorm.DB) error {
		credits := []struct {
			userID string
			txType string
			amount decimal.Decimal
		}{
			{req.BuyerID, model.SfrtTxRewardBuyer, split.BuyerReward},
			{req.SellerID, model.SfrtTxRewardSeller, split.SellerReward},
			{model.SfrtPlatformUserID, model.SfrtTxPlatformReserve, split.PlatformCut},
		}
		for _, c := range credits {
			balance, err := s.sfrtRepo.GetOrCreateBalance(ctx, tx, c.userID, req.SpaceID)
			if err != nil {
				return fmt.Errorf("获取SFRT账户失败: %w", err)
			}
			if err := s.sfrtRepo.Credit(ctx, tx, balance, c.amount); err != nil {
				return fmt.Errorf("SFRT入账失败: %w", err)
			}
			if err := s.sfrtRepo.CreateTx(ctx, tx, &model.SfrtTransaction{
				SfrtNo:      idgen.GenerateSfrtNo(),
				UserID:      c.userID,
				SpaceID:     req.SpaceID,
				Type:        c.txType,
				Amount:      c.amount,
				RelatedTxID: req.RelatedTxID,
				Reason:      fmt.Sprintf("主交易分账-%s", c.txType),
			}); err != nil {
				return fmt.Errorf("SFRT流水写入失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("SFRT分账完成: relatedTxID=%s, base=%s, buyer=%s, seller=%s, platform=%s",
		req.RelatedTxID, req.BaseAmount.String(), split.BuyerReward.String(),
		split.SellerReward.String(), split.PlatformCut.String())
	return split, nil
}

type AdjustSfrtRequest struct {
	UserID     string          `json:"user_id" binding:"required"`
	SpaceID    int64           `json:"space_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount" binding:"required"` // 正数入账，负数出账
	Reason     string          `json:"reason" binding:"required"`
	OperatorID string          `json:"operator_id" binding:"required"`
}

// Adjust 手动调整，仅限管理员，必须带原因
func (s *SfrtService) Adjust(ctx context.Context, req *AdjustSfrtRequest) (*model.SfrtTransaction, error) {
	if req.Amount.IsZero() {
		return nil, ErrAmountZero
	}
	amount := money.RoundAmount(req.Amount)

	var record *model.SfrtTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		balance, err := s.sfrtRepo.GetOrCreateBalance(ctx, tx, req.UserID, req.SpaceID)
		if err != nil {
			return err
		}
		if amount.Sign() > 0 {
			if err := s.sfrtRepo.Credit(ctx, tx, balance, amount); err != nil {
				return err
			}
		} else {
			if err := s.sfrtRepo.Withdraw(ctx, tx, balance, amount.Abs()); err != nil {
				return err
			}
		}
		record = &model.SfrtTransaction{
			SfrtNo:     idgen.GenerateSfrtNo(),
			UserID:     req.UserID,
			SpaceID:    req.SpaceID,
			Type:       model.SfrtTxManualAdjust,
			Amount:     amount,
			Reason:     req.Reason,
			OperatorID: req.OperatorID,
		}
		return s.sfrtRepo.CreateTx(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("SFRT手动调整: userID=%s, amount=%s, operator=%s",
		req.UserID, amount.String(), req.OperatorID)
	return record, nil
}

// Withdraw 提取，余额不足直接拒绝
func (s *SfrtService) Withdraw(ctx context.Context, userID string, spaceID int64, amount decimal.Decimal, reason string) (*model.SfrtTransaction, error) {
	if amount.Sign() <= 0 {
		return nil, ErrSfrtAmountInvalid
	}
	amount = money.RoundAmount(amount)

	var record *model.SfrtTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		balance, err := s.sfrtRepo.GetOrCreateBalance(ctx, tx, userID, spaceID)
		if err != nil {
			return err
		}
		if err := s.sfrtRepo.Withdraw(ctx, tx, balance, amount); err != nil {
			return err
		}
		record = &model.SfrtTransaction{
			SfrtNo:  idgen.GenerateSfrtNo(),
			UserID:  userID,
			SpaceID: spaceID,
			Type:    model.SfrtTxWithdraw,
			Amount:  amount.Neg(),
			Reason:  reason,
		}
		return s.sfrtRepo.CreateTx(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetBalance 查询SFRT余额，账户不存在时返回零值账户
func (s *SfrtService) GetBalance(ctx context.Context, userID string, spaceID int64) (*model.SfrtBalance, error) {
	balance, err := s.sfrtRepo.GetBalance(ctx, userID, spaceID)
	if err != nil {
		if errors.Is(err, repository.ErrSfrtBalanceNotFound) {
			return &model.SfrtBalance{UserID: userID, SpaceID: spaceID}, nil
		}
		return nil, err
	}
	return balance, nil
}

func (s *SfrtService) ListTransactions(ctx context.Context, userID string, spaceID int64, page, pageSize int) ([]*model.SfrtTransaction, int64, error) {
	return s.sfrtRepo.ListTxByUser(ctx, userID, spaceID, page, pageSize)
}

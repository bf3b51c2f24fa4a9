package handler

import (
	"errors"
	"strconv"
	"time"

	"tokencore/internal/config"
	"tokencore/internal/repository"
	"tokencore/internal/service"
	"tokencore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	balanceService    *service.BalanceService
	poolService       *service.PoolService
	rewardService     *service.RewardService
	burnService       *service.BurnService
	voteService       *service.VoteService
	governanceService *service.GovernanceService
	sfrtService       *service.SfrtService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	balanceService := service.NewBalanceService(db, rdb, cfg)
	poolService := service.NewPoolService(db, rdb, cfg)
	rewardService := service.NewRewardService(db, cfg, poolService, balanceService)
	burnService := service.NewBurnService(db, cfg, poolService)
	voteService := service.NewVoteService(db, cfg)
	governanceService := service.NewGovernanceService(db, cfg, voteService, poolService, burnService)
	sfrtService := service.NewSfrtService(db, cfg)

	return &Handler{
		balanceService:    balanceService,
		poolService:       poolService,
		rewardService:     rewardService,
		burnService:       burnService,
		voteService:       voteService,
		governanceService: governanceService,
		sfrtService:       sfrtService,
	}
}

// fail 把领域错误映射到业务错误码
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrBalanceNotFound):
		response.BusinessError(c, response.CodeBalanceNotFound, err.Error())
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, service.ErrInvariantViolated):
		response.BusinessError(c, response.CodeBalanceInvariant, err.Error())
	case errors.Is(err, repository.ErrBalanceFrozen):
		response.BusinessError(c, response.CodeBalanceFrozen, err.Error())
	case errors.Is(err, repository.ErrPoolNotFound):
		response.BusinessError(c, response.CodePoolNotFound, err.Error())
	case errors.Is(err, service.ErrPoolInactive):
		response.BusinessError(c, response.CodePoolInactive, err.Error())
	case errors.Is(err, service.ErrMaxSupplyExceeded):
		response.BusinessError(c, response.CodeMaxSupplyExceeded, err.Error())
	case errors.Is(err, service.ErrPoolNotEnough):
		response.BusinessError(c, response.CodePoolNotEnough, err.Error())
	case errors.Is(err, repository.ErrRewardNotFound):
		response.BusinessError(c, response.CodeRewardNotFound, err.Error())
	case errors.Is(err, repository.ErrRewardStatusInvalid),
		errors.Is(err, service.ErrRewardNotProcessable):
		response.BusinessError(c, response.CodeRewardStatusInvalid, err.Error())
	case errors.Is(err, repository.ErrBurnNotFound):
		response.BusinessError(c, response.CodeBurnNotFound, err.Error())
	case errors.Is(err, repository.ErrBurnStatusInvalid):
		response.BusinessError(c, response.CodeBurnStatusInvalid, err.Error())
	case errors.Is(err, repository.ErrProposalNotFound):
		response.BusinessError(c, response.CodeProposalNotFound, err.Error())
	case errors.Is(err, repository.ErrProposalStatusInvalid):
		response.BusinessError(c, response.CodeProposalStatus, err.Error())
	case errors.Is(err, service.ErrVotingClosed),
		errors.Is(err, service.ErrVotingNotEnded):
		response.BusinessError(c, response.CodeVotingClosed, err.Error())
	case errors.Is(err, repository.ErrDuplicateVote):
		response.BusinessError(c, response.CodeDuplicateVote, err.Error())
	case errors.Is(err, repository.ErrSfrtNotEnough):
		response.BusinessError(c, response.CodeSfrtNotEnough, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// parseUserSpace 查询串里的 user_id + space_id 共通解析
func parseUserSpace(c *gin.Context) (string, int64, bool) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return "", 0, false
	}
	spaceID, err := strconv.ParseInt(c.DefaultQuery("space_id", "1"), 10, 64)
	if err != nil || spaceID <= 0 {
		response.ParamError(c, "space_id 参数错误")
		return "", 0, false
	}
	return userID, spaceID, true
}

func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

// parseWindow 统计接口共通的时间窗口参数（RFC3339，缺省为最近30天）
func parseWindow(c *gin.Context) (time.Time, time.Time, bool) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)
	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.ParamError(c, "start 参数必须为 RFC3339 格式")
			return start, end, false
		}
		start = t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.ParamError(c, "end 参数必须为 RFC3339 格式")
			return start, end, false
		}
		end = t
	}
	return start, end, true
}

// ============================================================
// 余额相关接口
// ============================================================

// GetBalance 查询当前余额
// GET /api/v1/balance/current?user_id=xxx&space_id=1
func (h *Handler) GetBalance(c *gin.Context) {
	userID, spaceID, ok := parseUserSpace(c)
	if !ok {
		return
	}

	balance, err := h.balanceService.CurrentBalance(c.Request.Context(), userID, spaceID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, balance)
}

// RecordDeltaRequest 余额变动请求
type RecordDeltaRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	SpaceID     int64  `json:"space_id" binding:"required"`
	Kind        string `json:"kind" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	ReferenceID string `json:"reference_id"`
	Reason      string `json:"reason"`
}

// RecordDelta 记录余额变动
// POST /api/v1/balance/record
func (h *Handler) RecordDelta(c *gin.Context) {
	var req RecordDeltaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 参数错误")
		return
	}

	entry, err := h.balanceService.RecordDelta(c.Request.Context(), &service.RecordDeltaRequest{
		UserID:      req.UserID,
		SpaceID:     req.SpaceID,
		Kind:        req.Kind,
		Amount:      amount,
		ReferenceID: req.ReferenceID,
		Reason:      req.Reason,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, entry)
}

// ListHistory 查询余额履历
// GET /api/v1/balance/history?user_id=xxx&space_id=1&kind=EARN&page=1&page_size=10
func (h *Handler) ListHistory(c *gin.Context) {
	userID, spaceID, ok := parseUserSpace(c)
	if !ok {
		return
	}
	page, pageSize := parsePagination(c)

	filter := repository.HistoryFilter{Kind: c.Query("kind")}
	if v := c.Query("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartTime = &t
		}
	}
	if v := c.Query("end"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndTime = &t
		}
	}

	entries, total, err := h.balanceService.ListHistory(c.Request.Context(), userID, spaceID, filter, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// BalanceStatistics 期间余额统计
// GET /api/v1/balance/statistics?user_id=xxx&space_id=1&start=...&end=...
func (h *Handler) BalanceStatistics(c *gin.Context) {
	userID, spaceID, ok := parseUserSpace(c)
	if !ok {
		return
	}
	start, end, ok := parseWindow(c)
	if !ok {
		return
	}

	stats, err := h.balanceService.Statistics(c.Request.Context(), userID, spaceID, start, end)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, stats)
}

// CheckConsistency 三方对账
// GET /api/v1/balance/consistency?user_id=xxx&space_id=1
func (h *Handler) CheckConsistency(c *gin.Context) {
	userID, spaceID, ok := parseUserSpace(c)
	if !ok {
		return
	}

	report, err := h.balanceService.CheckConsistency(c.Request.Context(), userID, spaceID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, report)
}

// RepairBalance 余额修复（管理员）
// POST /api/v1/balance/repair
func (h *Handler) RepairBalance(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		SpaceID  int64  `json:"space_id" binding:"required"`
		Operator string `json:"operator" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	report, err := h.balanceService.Repair(c.Request.Context(), req.UserID, req.SpaceID, req.Operator)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, report)
}

// SetFrozen 冻结・解冻账户（管理员）
// POST /api/v1/balance/frozen
func (h *Handler) SetFrozen(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		SpaceID  int64  `json:"space_id" binding:"required"`
		Frozen   *bool  `json:"frozen" binding:"required"`
		Operator string `json:"operator" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.balanceService.SetFrozen(c.Request.Context(), req.UserID, req.SpaceID, *req.Frozen, req.Operator); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "冻结状态已更新"})
}

// DeleteHistory 删除一条余额履历（管理员，罕见操作）
// POST /api/v1/balance/history/delete
func (h *Handler) DeleteHistory(c *gin.Context) {
	var req struct {
		HistoryNo string `json:"history_no" binding:"required"`
		Operator  string `json:"operator" binding:"required"`
		Reason    string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.balanceService.DeleteHistory(c.Request.Context(), req.HistoryNo, req.Operator, req.Reason); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "履历已删除"})
}

// ============================================================
// 代币池相关接口
// ============================================================

// CreatePool 创建代币池
// POST /api/v1/pool/create
func (h *Handler) CreatePool(c *gin.Context) {
	var req service.CreatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	pool, err := h.poolService.CreatePool(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pool)
}

// GetPool 查询代币池
// GET /api/v1/pool/detail?space_id=1
func (h *Handler) GetPool(c *gin.Context) {
	spaceID, err := strconv.ParseInt(c.Query("space_id"), 10, 64)
	if err != nil || spaceID <= 0 {
		response.ParamError(c, "space_id 参数错误")
		return
	}

	pool, err := h.poolService.GetPool(c.Request.Context(), spaceID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pool)
}

// ListPools 查询代币池列表
// GET /api/v1/pool/list?page=1&page_size=10
func (h *Handler) ListPools(c *gin.Context) {
	page, pageSize := parsePagination(c)
	pools, total, err := h.poolService.ListPools(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      pools,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// IssueTokens 发行代币
// POST /api/v1/pool/issue
func (h *Handler) IssueTokens(c *gin.Context) {
	var req struct {
		SpaceID  int64  `json:"space_id" binding:"required"`
		Amount   string `json:"amount" binding:"required"`
		Operator string `json:"operator" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 参数错误")
		return
	}

	pool, err := h.poolService.Issue(c.Request.Context(), req.SpaceID, amount, req.Operator)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pool)
}

// IssuableAmount 剩余可发行量
// GET /api/v1/pool/issuable?space_id=1
func (h *Handler) IssuableAmount(c *gin.Context) {
	spaceID, err := strconv.ParseInt(c.Query("space_id"), 10, 64)
	if err != nil || spaceID <= 0 {
		response.ParamError(c, "space_id 参数错误")
		return
	}

	amount, err := h.poolService.IssuableAmount(c.Request.Context(), spaceID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"space_id": spaceID, "issuable_amount": amount})
}

// UpdatePoolStatus 代币池状态变更
// POST /api/v1/pool/status
func (h *Handler) UpdatePoolStatus(c *gin.Context) {
	var req struct {
		SpaceID  int64  `json:"space_id" binding:"required"`
		Status   string `json:"status" binding:"required"`
		Operator string `json:"operator" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	pool, err := h.poolService.UpdateStatus(c.Request.Context(), req.SpaceID, req.Status, req.Operator)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pool)
}

// PoolHealth 代币池健全性检查
// GET /api/v1/pool/health?space_id=1
func (h *Handler) PoolHealth(c *gin.Context) {
	spaceID, err := strconv.ParseInt(c.Query("space_id"), 10, 64)
	if err != nil || spaceID <= 0 {
		response.ParamError(c, "space_id 参数错误")
		return
	}

	report, err := h.poolService.CheckHealth(c.Request.Context(), spaceID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, report)
}

// CollectionCandidates 回收候补一览
// GET /api/v1/pool/collection-candidates?space_id=1&limit=100
func (h *Handler) CollectionCandidates(c *gin.Context) {
	spaceID, err := strconv.ParseInt(c.Query("space_id"), 10, 64)
	if err != nil || spaceID <= 0 {
		response.ParamError(c, "space_id 参数错误")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	candidates, err := h.poolService.CollectionCandidates(c.Request.Context(), spaceID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"candidates": candidates, "count": len(candidates)})
}

// ============================================================
// 奖励相关接口
// ============================================================

// CreateRewardRequest 创建奖励请求
type CreateRewardRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	SpaceID     int64  `json:"space_id" binding:"required"`
	Category    string `json:"category" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Multiplier  string `json:"multiplier"`
	ReferenceID string `json:"reference_id"`
	Reason      string `json:"reason"`
}

// CreateReward 创建奖励
// POST /api/v1/reward/create
func (h *Handler) CreateReward(c *gin.Context) {
	var req CreateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 参数错误")
		return
	}

	reward, err := h.rewardService.CreateReward(c.Request.Context(), &service.CreateRewardRequest{
		UserID:      req.UserID,
		SpaceID:     req.SpaceID,
		Category:    req.Category,
		Amount:      amount,
		Multiplier:  req.Multiplier,
		ReferenceID: req.ReferenceID,
		Reason:      req.Reason,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, reward)
}

// ApproveReward 审批奖励
// POST /api/v1/reward/approve
func (h *Handler) ApproveReward(c *gin.Context) {
	var req struct {
		RewardNo string `json:"reward_no" binding:"required"`
		Approver string `json:"approver" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	reward, err := h.rewardService.Approve(c.Request.Context(), req.RewardNo, req.Approver)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, reward)
}

// ProcessReward 执行发放
// POST /api/v1/reward/process
func (h *Handler) ProcessReward(c *gin.Context) {
	var req struct {
		RewardNo string `json:"reward_no" binding:"required"`
		Operator string `json:"operator" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	reward, err := h.rewardService.Process(c.Request.Context(), req.RewardNo, req.Operator)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, reward)
}

// CancelReward 取消奖励
// POST /api/v1/reward/cancel
func (h *Handler) CancelReward(c *gin.Context) {
	var req struct {
		RewardNo string `json:"reward_no" binding:"required"`
		Operator string `json:"operator" binding:"required"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.rewardService.Cancel(c.Request.Context(), req.RewardNo, req.Operator, req.Reason); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "奖励已取消"})
}

// GetReward 查询奖励详情
// GET /api/v1/reward/detail?reward_no=xxx
func (h *Handler) GetReward(c *gin.Context) {
	rewardNo := c.Query("reward_no")
	if rewardNo == "" {
		response.ParamError(c, "reward_no 参数不能为空")
		return
	}

	reward, err := h.rewardService.GetReward(c.Request.Context(), rewardNo)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, reward)
}

// ListRewards 查询奖励列表
// GET /api/v1/reward/list?space_id=1&user_id=xxx&category=...&status=...
func (h *Handler) ListRewards(c *gin.Context) {
	page, pageSize := parsePagination(c)
	filter := repository.RewardFilter{
		UserID:   c.Query("user_id"),
		Category: c.Query("category"),
		Status:   c.Query("status"),
	}
	if v := c.Query("space_id"); v != "" {
		spaceID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.ParamError(c, "space_id 参数错误")
			return
		}
		filter.SpaceID = spaceID
	}

	rewards, total, err := h.rewardService.ListRewards(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      rewards,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// RewardStatistics 期间奖励统计
// GET /api/v1/reward/statistics?space_id=1&start=...&end=...
func (h *Handler) RewardStatistics(c *gin.Context) {
	spaceID, err := strconv.ParseInt(c.Query("space_id"), 10, 64)
	if err != nil || spaceID <= 0 {
		response.ParamError(c, "space_id 参数错误")
		return
	}
	start, end, ok := parseWindow(c)
	if !ok {
		return
	}

	stats, err := h.rewardService.Statistics(c.Request.Context(), spaceID, start, end)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, stats)
}

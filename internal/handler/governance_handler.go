package handler

import (
	"strconv"
	"time"

	"tokencore/internal/repository"
	"tokencore/internal/service"
	"tokencore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ============================================================
// 销毁决议相关接口
// ============================================================

// CreateBurnRequest 创建销毁决议请求
type CreateBurnRequest struct {
	SpaceID       int64  `json:"space_id" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	TriggerReason string `json:"trigger_reason" binding:"required"`
	Rationale     string `json:"rationale"`
	DecidedBy     string `json:"decided_by" binding:"required"`
}

// CreateBurn 创建销毁决议
// POST /api/v1/burn/create
func (h *Handler) CreateBurn(c *gin.Context) {
	var req CreateBurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 参数错误")
		return
	}

	decision, err := h.burnService.CreateDecision(c.Request.Context(), &service.CreateBurnRequest{
		SpaceID:       req.SpaceID,
		Amount:        amount,
		TriggerReason: req.TriggerReason,
		Rationale:     req.Rationale,
		DecidedBy:     req.DecidedBy,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, decision)
}

// CreateAiBurnRequest AI销毁决议请求
type CreateAiBurnRequest struct {
	SpaceID            int64                  `json:"space_id" binding:"required"`
	Amount             string                 `json:"amount" binding:"required"`
	TriggerReason      string                 `json:"trigger_reason" binding:"required"`
	Rationale          string                 `json:"rationale"`
	ConfidenceScore    string                 `json:"confidence_score" binding:"required"`
	EconomicIndicators map[string]interface{} `json:"economic_indicators"`
}

// CreateAiBurn AI自动判定的销毁决议
// POST /api/v1/burn/ai-create
func (h *Handler) CreateAiBurn(c *gin.Context) {
	var req CreateAiBurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 参数错误")
		return
	}
	confidence, err := decimal.NewFromString(req.ConfidenceScore)
	if err != nil {
		response.ParamError(c, "confidence_score 参数错误")
		return
	}

	decision, err := h.burnService.CreateAiDecision(c.Request.Context(), &service.CreateAiBurnRequest{
		SpaceID:            req.SpaceID,
		Amount:             amount,
		TriggerReason:      req.TriggerReason,
		Rationale:          req.Rationale,
		ConfidenceScore:    confidence,
		EconomicIndicators: req.EconomicIndicators,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, decision)
}

// burnActionRequest 审查・审批・执行等共通请求体
type burnActionRequest struct {
	BurnNo string `json:"burn_no" binding:"required"`
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason"`
}

// ReviewBurn 进入人工审查
// POST /api/v1/burn/review
func (h *Handler) ReviewBurn(c *gin.Context) {
	var req burnActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.burnService.StartReview(c.Request.Context(), req.BurnNo, req.Actor); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已进入审查"})
}

// ApproveBurn 审批通过
// POST /api/v1/burn/approve
func (h *Handler) ApproveBurn(c *gin.Context) {
	var req burnActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.burnService.Approve(c.Request.Context(), req.BurnNo, req.Actor); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已批准"})
}

// RejectBurn 否决
// POST /api/v1/burn/reject
func (h *Handler) RejectBurn(c *gin.Context) {
	var req burnActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.burnService.Reject(c.Request.Context(), req.BurnNo, req.Actor, req.Reason); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已否决"})
}

// ScheduleBurn 预约执行
// POST /api/v1/burn/schedule
func (h *Handler) ScheduleBurn(c *gin.Context) {
	var req struct {
		BurnNo      string `json:"burn_no" binding:"required"`
		ScheduledAt string `json:"scheduled_at" binding:"required"`
		Operator    string `json:"operator" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		response.ParamError(c, "scheduled_at 参数必须为 RFC3339 格式")
		return
	}

	if err := h.burnService.Schedule(c.Request.Context(), req.BurnNo, scheduledAt, req.Operator); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已预约执行"})
}

// ExecuteBurn 执行销毁
// POST /api/v1/burn/execute
func (h *Handler) ExecuteBurn(c *gin.Context) {
	var req burnActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	decision, err := h.burnService.Execute(c.Request.Context(), req.BurnNo, req.Actor)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, decision)
}

// StartBurnExecution 分步执行：占住执行权
// POST /api/v1/burn/start
func (h *Handler) StartBurnExecution(c *gin.Context) {
	var req burnActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.burnService.StartExecution(c.Request.Context(), req.BurnNo, req.Actor); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已开始执行"})
}

// CompleteBurnExecution 分步执行：回报实际销毁结果
// POST /api/v1/burn/complete
func (h *Handler) CompleteBurnExecution(c *gin.Context) {
	var req struct {
		BurnNo       string `json:"burn_no" binding:"required"`
		ActualAmount string `json:"actual_amount" binding:"required"`
		TxRef        string `json:"tx_ref"`
		Actor        string `json:"actor" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	actualAmount, err := decimal.NewFromString(req.ActualAmount)
	if err != nil {
		response.ParamError(c, "actual_amount 参数错误")
		return
	}

	decision, err := h.burnService.CompleteExecution(c.Request.Context(),
		req.BurnNo, actualAmount, req.TxRef, req.Actor)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, decision)
}

// FailBurnExecution 分步执行：标记执行失败
// POST /api/v1/burn/fail
func (h *Handler) FailBurnExecution(c *gin.Context) {
	var req burnActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if req.Reason == "" {
		response.ParamError(c, "reason 参数不能为空")
		return
	}
	if err := h.burnService.MarkFailed(c.Request.Context(), req.BurnNo, req.Reason, req.Actor); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已标记失败"})
}

// CancelBurn 取消销毁决议
// POST /api/v1/burn/cancel
func (h *Handler) CancelBurn(c *gin.Context) {
	var req burnActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.burnService.Cancel(c.Request.Context(), req.BurnNo, req.Actor, req.Reason); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已取消"})
}

// GetBurn 查询销毁决议详情
// GET /api/v1/burn/detail?burn_no=xxx
func (h *Handler) GetBurn(c *gin.Context) {
	burnNo := c.Query("burn_no")
	if burnNo == "" {
		response.ParamError(c, "burn_no 参数不能为空")
		return
	}

	decision, err := h.burnService.GetDecision(c.Request.Context(), burnNo)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, decision)
}

// ListBurns 查询销毁决议列表
// GET /api/v1/burn/list?space_id=1&status=...&decision_type=...
func (h *Handler) ListBurns(c *gin.Context) {
	page, pageSize := parsePagination(c)
	filter := repository.BurnFilter{
		Status:       c.Query("status"),
		DecisionType: c.Query("decision_type"),
	}
	if v := c.Query("space_id"); v != "" {
		spaceID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.ParamError(c, "space_id 参数错误")
			return
		}
		filter.SpaceID = spaceID
	}

	decisions, total, err := h.burnService.ListDecisions(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      decisions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// BurnStatistics 期间销毁统计
// GET /api/v1/burn/statistics?space_id=1&start=...&end=...
func (h *Handler) BurnStatistics(c *gin.Context) {
	spaceID, err := strconv.ParseInt(c.Query("space_id"), 10, 64)
	if err != nil || spaceID <= 0 {
		response.ParamError(c, "space_id 参数错误")
		return
	}
	start, end, ok := parseWindow(c)
	if !ok {
		return
	}

	stats, err := h.burnService.Statistics(c.Request.Context(), spaceID, start, end)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, stats)
}

// ============================================================
// 治理提案相关接口
// ============================================================

// CreateProposal 创建提案
// POST /api/v1/governance/proposal/create
func (h *Handler) CreateProposal(c *gin.Context) {
	var req service.CreateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	proposal, err := h.governanceService.CreateProposal(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, proposal)
}

// CreateEmergencyProposal 创建紧急提案
// POST /api/v1/governance/proposal/emergency
func (h *Handler) CreateEmergencyProposal(c *gin.Context) {
	var req service.CreateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	proposal, err := h.governanceService.CreateEmergencyProposal(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, proposal)
}

// proposalActionRequest 激活・结算・执行等共通请求体
type proposalActionRequest struct {
	ProposalNo string `json:"proposal_no" binding:"required"`
	Actor      string `json:"actor" binding:"required"`
	Reason     string `json:"reason"`
}

// ActivateProposal 激活提案
// POST /api/v1/governance/proposal/activate
func (h *Handler) ActivateProposal(c *gin.Context) {
	var req proposalActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.governanceService.Activate(c.Request.Context(), req.ProposalNo, req.Actor); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "提案已进入投票"})
}

// FinalizeProposal 结算提案
// POST /api/v1/governance/proposal/finalize
func (h *Handler) FinalizeProposal(c *gin.Context) {
	var req proposalActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	proposal, err := h.governanceService.Finalize(c.Request.Context(), req.ProposalNo, req.Actor)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, proposal)
}

// QueueProposal 可决提案入队
// POST /api/v1/governance/proposal/queue
func (h *Handler) QueueProposal(c *gin.Context) {
	var req proposalActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.governanceService.Queue(c.Request.Context(), req.ProposalNo, req.Actor); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "提案已进入执行队列"})
}

// ExecuteProposal 执行提案
// POST /api/v1/governance/proposal/execute
func (h *Handler) ExecuteProposal(c *gin.Context) {
	var req proposalActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	proposal, err := h.governanceService.Execute(c.Request.Context(), req.ProposalNo, req.Actor)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, proposal)
}

// CancelProposal 取消提案
// POST /api/v1/governance/proposal/cancel
func (h *Handler) CancelProposal(c *gin.Context) {
	var req proposalActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.governanceService.Cancel(c.Request.Context(), req.ProposalNo, req.Actor, req.Reason); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "提案已取消"})
}

// GetProposal 查询提案详情
// GET /api/v1/governance/proposal/detail?proposal_no=xxx
func (h *Handler) GetProposal(c *gin.Context) {
	proposalNo := c.Query("proposal_no")
	if proposalNo == "" {
		response.ParamError(c, "proposal_no 参数不能为空")
		return
	}

	proposal, err := h.governanceService.GetProposal(c.Request.Context(), proposalNo)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, proposal)
}

// ListProposals 查询提案列表
// GET /api/v1/governance/proposal/list?space_id=1&status=...&proposal_type=...
func (h *Handler) ListProposals(c *gin.Context) {
	page, pageSize := parsePagination(c)
	filter := repository.ProposalFilter{
		Status:       c.Query("status"),
		ProposalType: c.Query("proposal_type"),
		ProposerID:   c.Query("proposer_id"),
	}
	if v := c.Query("space_id"); v != "" {
		spaceID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.ParamError(c, "space_id 参数错误")
			return
		}
		filter.SpaceID = spaceID
	}

	proposals, total, err := h.governanceService.ListProposals(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      proposals,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 投票相关接口
// ============================================================

// CastVote 投票
// POST /api/v1/governance/vote/cast
func (h *Handler) CastVote(c *gin.Context) {
	var req service.CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	vote, err := h.voteService.CastVote(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, vote)
}

// CastDelegateVote 委任投票
// POST /api/v1/governance/vote/delegate
func (h *Handler) CastDelegateVote(c *gin.Context) {
	var req service.CastDelegateVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	vote, err := h.voteService.CastDelegateVote(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, vote)
}

// ChangeVote 改票
// POST /api/v1/governance/vote/change
func (h *Handler) ChangeVote(c *gin.Context) {
	var req service.ChangeVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	vote, err := h.voteService.ChangeVote(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, vote)
}

// GetVote 查询选票
// GET /api/v1/governance/vote/detail?proposal_no=xxx&voter_id=xxx
func (h *Handler) GetVote(c *gin.Context) {
	proposalNo := c.Query("proposal_no")
	voterID := c.Query("voter_id")
	if proposalNo == "" || voterID == "" {
		response.ParamError(c, "proposal_no 和 voter_id 参数不能为空")
		return
	}

	vote, err := h.voteService.GetVote(c.Request.Context(), proposalNo, voterID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, vote)
}

// ListVotes 查询提案下的选票列表
// GET /api/v1/governance/vote/list?proposal_no=xxx
func (h *Handler) ListVotes(c *gin.Context) {
	proposalNo := c.Query("proposal_no")
	if proposalNo == "" {
		response.ParamError(c, "proposal_no 参数不能为空")
		return
	}
	page, pageSize := parsePagination(c)

	votes, total, err := h.voteService.ListVotes(c.Request.Context(), proposalNo, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      votes,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListVotesByVoter 查询投票人的投票履历
// GET /api/v1/governance/vote/by-voter?voter_id=xxx
func (h *Handler) ListVotesByVoter(c *gin.Context) {
	voterID := c.Query("voter_id")
	if voterID == "" {
		response.ParamError(c, "voter_id 参数不能为空")
		return
	}
	page, pageSize := parsePagination(c)

	votes, total, err := h.voteService.ListVotesByVoter(c.Request.Context(), voterID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      votes,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// VoteStatistics 提案投票统计
// GET /api/v1/governance/vote/statistics?proposal_no=xxx
func (h *Handler) VoteStatistics(c *gin.Context) {
	proposalNo := c.Query("proposal_no")
	if proposalNo == "" {
		response.ParamError(c, "proposal_no 参数不能为空")
		return
	}

	stats, err := h.voteService.Statistics(c.Request.Context(), proposalNo)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, stats)
}

// ============================================================
// SFRT相关接口
// ============================================================

// SimulateSfrt 分账预览
// GET /api/v1/sfrt/simulate?amount=100
func (h *Handler) SimulateSfrt(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		response.ParamError(c, "amount 参数错误")
		return
	}

	split, err := h.sfrtService.Simulate(amount)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, split)
}

// DistributeSfrtRequest SFRT分账请求
type DistributeSfrtRequest struct {
	RelatedTxID string `json:"related_tx_id" binding:"required"`
	SpaceID     int64  `json:"space_id" binding:"required"`
	BuyerID     string `json:"buyer_id" binding:"required"`
	SellerID    string `json:"seller_id" binding:"required"`
	BaseAmount  string `json:"base_amount" binding:"required"`
}

// DistributeSfrt 对一笔主交易执行分账
// POST /api/v1/sfrt/distribute
func (h *Handler) DistributeSfrt(c *gin.Context) {
	var req DistributeSfrtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	baseAmount, err := decimal.NewFromString(req.BaseAmount)
	if err != nil {
		response.ParamError(c, "base_amount 参数错误")
		return
	}

	split, err := h.sfrtService.Distribute(c.Request.Context(), &service.DistributeSfrtRequest{
		RelatedTxID: req.RelatedTxID,
		SpaceID:     req.SpaceID,
		BuyerID:     req.BuyerID,
		SellerID:    req.SellerID,
		BaseAmount:  baseAmount,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, split)
}

// AdjustSfrt 手动调整（管理员）
// POST /api/v1/sfrt/adjust
func (h *Handler) AdjustSfrt(c *gin.Context) {
	var req struct {
		UserID     string `json:"user_id" binding:"required"`
		SpaceID    int64  `json:"space_id" binding:"required"`
		Amount     string `json:"amount" binding:"required"`
		Reason     string `json:"reason" binding:"required"`
		OperatorID string `json:"operator_id" binding:"required"`
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

	record, err := h.sfrtService.Adjust(c.Request.Context(), &service.AdjustSfrtRequest{
		UserID:     req.UserID,
		SpaceID:    req.SpaceID,
		Amount:     amount,
		Reason:     req.Reason,
		OperatorID: req.OperatorID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, record)
}

// WithdrawSfrt 提取
// POST /api/v1/sfrt/withdraw
func (h *Handler) WithdrawSfrt(c *gin.Context) {
	var req struct {
		UserID  string `json:"user_id" binding:"required"`
		SpaceID int64  `json:"space_id" binding:"required"`
		Amount  string `json:"amount" binding:"required"`
		Reason  string `json:"reason"`
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

	record, err := h.sfrtService.Withdraw(c.Request.Context(), req.UserID, req.SpaceID, amount, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, record)
}

// GetSfrtBalance 查询SFRT余额
// GET /api/v1/sfrt/balance?user_id=xxx&space_id=1
func (h *Handler) GetSfrtBalance(c *gin.Context) {
	userID, spaceID, ok := parseUserSpace(c)
	if !ok {
		return
	}

	balance, err := h.sfrtService.GetBalance(c.Request.Context(), userID, spaceID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, balance)
}

// ListSfrtTransactions 查询SFRT流水
// GET /api/v1/sfrt/transactions?user_id=xxx&space_id=1
func (h *Handler) ListSfrtTransactions(c *gin.Context) {
	userID, spaceID, ok := parseUserSpace(c)
	if !ok {
		return
	}
	page, pageSize := parsePagination(c)

	records, total, err := h.sfrtService.ListTransactions(c.Request.Context(), userID, spaceID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"tokencore/internal/config"
	"tokencore/internal/model"
	"tokencore/internal/repository"
	"tokencore/pkg/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrVotingClosed    = errors.New("提案当前不在投票期内")
	ErrVoteTypeUnknown = errors.New("未知的投票类型")
	ErrSelfDelegation  = errors.New("不能委任自己代投")
	ErrVoteChangeLimit = errors.New("改票次数已达上限")
)

// 委任投票的置信度固定值
const delegateVoteConfidence = 90

// 每张选票允许的最大改票次数
const maxVoteChanges = 3

// ============================================================================
// 投票权计算策略
// ============================================================================

// VotingPowerResult 投票权计算结果及其构成要素
type VotingPowerResult struct {
	Power           decimal.Decimal
	BalanceSnapshot decimal.Decimal
	DelegatedPower  decimal.Decimal
	ReputationScore decimal.Decimal
}

// PowerPolicy 投票权计算策略
// 计算公式可插拔，缺省实现见 BalanceWeightedPolicy
type PowerPolicy interface {
	CalculatePower(ctx context.Context, voterID string, spaceID int64, delegatedPower decimal.Decimal) (*VotingPowerResult, error)
}

// BalanceWeightedPolicy 缺省策略：余额加权 × 信誉系数
//
//	power = (balanceSnapshot + delegatedPower)
//	        × (delegationMultiplier + activityBonus)
//	        × reputationScore / 100
//
// 信誉分暂无外部数据源，统一取中间值50；活跃度加成暂为0。
type BalanceWeightedPolicy struct {
	balanceRepo *repository.PointBalanceRepository

	DelegationMultiplier decimal.Decimal
	ActivityBonus        decimal.Decimal
	ReputationScore      decimal.Decimal
}

func NewBalanceWeightedPolicy(balanceRepo *repository.PointBalanceRepository) *BalanceWeightedPolicy {
	return &BalanceWeightedPolicy{
		balanceRepo:          balanceRepo,
		DelegationMultiplier: decimal.NewFromInt(1),
		ActivityBonus:        decimal.Zero,
		ReputationScore:      decimal.NewFromInt(50),
	}
}

func (p *BalanceWeightedPolicy) CalculatePower(ctx context.Context, voterID string, spaceID int64, delegatedPower decimal.Decimal) (*VotingPowerResult, error) {
	snapshot := decimal.Zero
	balance, err := p.balanceRepo.GetByUser(ctx, voterID, spaceID)
	if err != nil {
		if !errors.Is(err, repository.ErrBalanceNotFound) {
			return nil, err
		}
	} else {
		snapshot = balance.CurrentBalance
	}

	base := snapshot.Add(delegatedPower)
	multiplier := p.DelegationMultiplier.Add(p.ActivityBonus)
	power := base.Mul(multiplier).Mul(p.ReputationScore).Div(decimal.NewFromInt(100))

	return &VotingPowerResult{
		Power:           money.RoundAmount(power),
		BalanceSnapshot: snapshot,
		DelegatedPower:  delegatedPower,
		ReputationScore: p.ReputationScore,
	}, nil
}

// ============================================================================
// 投票服务
// ============================================================================

// VoteService 治理投票服务
type VoteService struct {
	db           *gorm.DB
	cfg          *config.Config
	voteRepo     *repository.VoteRepository
	proposalRepo *repository.ProposalRepository
	balanceRepo  *repository.PointBalanceRepository
	powerPolicy  PowerPolicy
}

func NewVoteService(db *gorm.DB, cfg *config.Config) *VoteService {
	balanceRepo := repository.NewPointBalanceRepository(db)
	return &VoteService{
		db:           db,
		cfg:          cfg,
		voteRepo:     repository.NewVoteRepository(db),
		proposalRepo: repository.NewProposalRepository(db),
		balanceRepo:  balanceRepo,
		powerPolicy:  NewBalanceWeightedPolicy(balanceRepo),
	}
}

// SetPowerPolicy 替换投票权计算策略
func (s *VoteService) SetPowerPolicy(policy PowerPolicy) {
	s.powerPolicy = policy
}

// openProposal 校验提案存在且在投票期内
func (s *VoteService) openProposal(ctx context.Context, proposalNo string) (*model.GovernanceProposal, error) {
	proposal, err := s.proposalRepo.GetByProposalNo(ctx, proposalNo)
	if err != nil {
		return nil, err
	}
	if !proposal.IsVotingOpen(time.Now()) {
		return nil, ErrVotingClosed
	}
	return proposal, nil
}

type CastVoteRequest struct {
	ProposalNo      string `json:"proposal_no" binding:"required"`
	VoterID         string `json:"voter_id" binding:"required"`
	VoteType        string `json:"vote_type" binding:"required"`
	ConfidenceLevel int    `json:"confidence_level"`
	Reason          string `json:"reason"`
}

// CastVote 投票
//
// 【关键点】每个 (提案, 投票人) 只允许一票。重复投票应该走 ChangeVote，
// 这里直接拒绝；数据库的复合唯一索引兜底竞态下的双写。
func (s *VoteService) CastVote(ctx context.Context, req *CastVoteRequest) (*model.GovernanceVote, error) {
	if !model.ValidVoteType(req.VoteType) {
		return nil, ErrVoteTypeUnknown
	}

	proposal, err := s.openProposal(ctx, req.ProposalNo)
	if err != nil {
		return nil, err
	}

	existing, err := s.voteRepo.GetByProposalAndVoter(ctx, req.ProposalNo, req.VoterID)
	if err != nil && !errors.Is(err, repository.ErrVoteNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, repository.ErrDuplicateVote
	}

	power, err := s.powerPolicy.CalculatePower(ctx, req.VoterID, proposal.SpaceID, decimal.Zero)
	if err != nil {
		return nil, fmt.Errorf("计算投票权失败: %w", err)
	}

	vote := &model.GovernanceVote{
		ProposalNo:      req.ProposalNo,
		VoterID:         req.VoterID,
		VoteType:        req.VoteType,
		VotingPower:     power.Power,
		BalanceSnapshot: power.BalanceSnapshot,
		DelegatedPower:  power.DelegatedPower,
		ReputationScore: power.ReputationScore,
		ConfidenceLevel: req.ConfidenceLevel,
		Reason:          req.Reason,
		VotedAt:         time.Now(),
	}
	if err := s.voteRepo.Create(ctx, nil, vote); err != nil {
		return nil, err
	}

	log.Printf("投票成功: proposalNo=%s, voterID=%s, type=%s, power=%s",
		req.ProposalNo, req.VoterID, req.VoteType, power.Power.String())
	return vote, nil
}

type CastDelegateVoteRequest struct {
	ProposalNo  string `json:"proposal_no" binding:"required"`
	DelegateID  string `json:"delegate_id" binding:"required"`  // 代投人
	DelegatorID string `json:"delegator_id" binding:"required"` // 委任人
	VoteType    string `json:"vote_type" binding:"required"`
	Reason      string `json:"reason"`
}

// CastDelegateVote 委任投票
//
// 选票记在代投人名下，委任人的余额折算成 delegatedPower 并入
// 代投人的投票权。代投人在同一提案上已有选票时拒绝，
// 每个 (提案, 投票人) 一票的约束对委任投票同样成立。
func (s *VoteService) CastDelegateVote(ctx context.Context, req *CastDelegateVoteRequest) (*model.GovernanceVote, error) {
	if !model.ValidVoteType(req.VoteType) {
		return nil, ErrVoteTypeUnknown
	}
	if req.DelegateID == req.DelegatorID {
		return nil, ErrSelfDelegation
	}

	proposal, err := s.openProposal(ctx, req.ProposalNo)
	if err != nil {
		return nil, err
	}

	existing, err := s.voteRepo.GetByProposalAndVoter(ctx, req.ProposalNo, req.DelegateID)
	if err != nil && !errors.Is(err, repository.ErrVoteNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, repository.ErrDuplicateVote
	}

	// 委任人的余额快照即受委任的投票权
	delegatedPower := decimal.Zero
	delegatorBalance, err := s.balanceRepo.GetByUser(ctx, req.DelegatorID, proposal.SpaceID)
	if err != nil {
		if !errors.Is(err, repository.ErrBalanceNotFound) {
			return nil, err
		}
	} else {
		delegatedPower = delegatorBalance.CurrentBalance
	}

	power, err := s.powerPolicy.CalculatePower(ctx, req.DelegateID, proposal.SpaceID, delegatedPower)
	if err != nil {
		return nil, fmt.Errorf("计算投票权失败: %w", err)
	}

	vote := &model.GovernanceVote{
		ProposalNo:      req.ProposalNo,
		VoterID:         req.DelegateID,
		VoteType:        req.VoteType,
		VotingPower:     power.Power,
		BalanceSnapshot: power.BalanceSnapshot,
		DelegatedPower:  power.DelegatedPower,
		ReputationScore: power.ReputationScore,
		IsDelegateVote:  true,
		DelegatorID:     req.DelegatorID,
		ConfidenceLevel: delegateVoteConfidence,
		Reason:          req.Reason,
		VotedAt:         time.Now(),
	}
	if err := s.voteRepo.Create(ctx, nil, vote); err != nil {
		return nil, err
	}

	log.Printf("委任投票成功: proposalNo=%s, delegate=%s, delegator=%s, power=%s",
		req.ProposalNo, req.DelegateID, req.DelegatorID, power.Power.String())
	return vote, nil
}

type ChangeVoteRequest struct {
	ProposalNo string `json:"proposal_no" binding:"required"`
	VoterID    string `json:"voter_id" binding:"required"`
	VoteType   string `json:"vote_type" binding:"required"`
	Reason     string `json:"reason"`
}

// ChangeVote 改票
//
// 选票行原地更新，变更事实在 vote_change 表追加一条履历。
// 两者在同一事务提交，保证履历和现状永远一致。
func (s *VoteService) ChangeVote(ctx context.Context, req *ChangeVoteRequest) (*model.GovernanceVote, error) {
	if !model.ValidVoteType(req.VoteType) {
		return nil, ErrVoteTypeUnknown
	}

	if _, err := s.openProposal(ctx, req.ProposalNo); err != nil {
		return nil, err
	}

	vote, err := s.voteRepo.GetByProposalAndVoter(ctx, req.ProposalNo, req.VoterID)
	if err != nil {
		return nil, err
	}
	if vote.VoteType == req.VoteType {
		return nil, errors.New("新投票类型与当前一致")
	}

	changeCount, err := s.voteRepo.CountChanges(ctx, vote.ID)
	if err != nil {
		return nil, err
	}
	if changeCount >= maxVoteChanges {
		return nil, ErrVoteChangeLimit
	}

	from := vote.VoteType
	now := time.Now()
	vote.PreviousVoteType = from
	vote.VoteType = req.VoteType
	vote.Reason = req.Reason
	vote.IsChanged = true
	vote.LastChangedAt = &now

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.voteRepo.Update(ctx, tx, vote); err != nil {
			return err
		}
		return s.voteRepo.AppendChange(ctx, tx, &model.VoteChange{
			VoteID:       vote.ID,
			ProposalNo:   req.ProposalNo,
			VoterID:      req.VoterID,
			FromVoteType: from,
			ToVoteType:   req.VoteType,
			Reason:       req.Reason,
			ChangedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("改票成功: proposalNo=%s, voterID=%s, %s -> %s",
		req.ProposalNo, req.VoterID, from, req.VoteType)
	return vote, nil
}

func (s *VoteService) GetVote(ctx context.Context, proposalNo, voterID string) (*model.GovernanceVote, error) {
	return s.voteRepo.GetByProposalAndVoter(ctx, proposalNo, voterID)
}

func (s *VoteService) ListVotes(ctx context.Context, proposalNo string, page, pageSize int) ([]*model.GovernanceVote, int64, error) {
	return s.voteRepo.ListByProposalPaged(ctx, proposalNo, page, pageSize)
}

// ListVotesByVoter 投票人维度的投票履历，跨提案
func (s *VoteService) ListVotesByVoter(ctx context.Context, voterID string, page, pageSize int) ([]*model.GovernanceVote, int64, error) {
	return s.voteRepo.ListByVoter(ctx, voterID, page, pageSize)
}

func (s *VoteService) ListChanges(ctx context.Context, voteID int64) ([]*model.VoteChange, error) {
	return s.voteRepo.ListChanges(ctx, voteID)
}

// ComputeTallies 从完整投票集合重算聚合值
//
// 【重要】投票可以变更，增量维护的计数器会漂移，
// 所以结算永远用全量选票折叠，提案行上的计数列只是回写的视图。
func (s *VoteService) ComputeTallies(ctx context.Context, proposalNo string, minimumQuorum decimal.Decimal) (*repository.ProposalTallies, error) {
	votes, err := s.voteRepo.ListByProposal(ctx, proposalNo)
	if err != nil {
		return nil, err
	}

	tallies := &repository.ProposalTallies{
		PowerFor:     decimal.Zero,
		PowerAgainst: decimal.Zero,
		PowerAbstain: decimal.Zero,
		TotalPower:   decimal.Zero,
	}
	for _, v := range votes {
		tallies.TotalPower = tallies.TotalPower.Add(v.VotingPower)
		switch v.VoteType {
		case model.VoteTypeFor:
			tallies.VotesFor++
			tallies.PowerFor = tallies.PowerFor.Add(v.VotingPower)
		case model.VoteTypeAgainst:
			tallies.VotesAgainst++
			tallies.PowerAgainst = tallies.PowerAgainst.Add(v.VotingPower)
		case model.VoteTypeAbstain:
			tallies.VotesAbstain++
			tallies.PowerAbstain = tallies.PowerAbstain.Add(v.VotingPower)
		}
	}
	tallies.QuorumReached = tallies.TotalPower.GreaterThanOrEqual(minimumQuorum)
	return tallies, nil
}

// ============================================================================
// 投票统计
// ============================================================================

// 投票权规模分档边界
var (
	powerBucketSmall  = decimal.NewFromInt(10)
	powerBucketMedium = decimal.NewFromInt(100)
	powerBucketLarge  = decimal.NewFromInt(1000)
)

// 空间内尚无任何余额数据时，参与率分母退回的假定可投权
var assumedEligiblePower = decimal.NewFromInt(1000)

// VoteStatistics 提案投票统计
type VoteStatistics struct {
	ProposalNo        string          `json:"proposal_no"`
	TotalVotes        int             `json:"total_votes"`
	TotalPower        decimal.Decimal `json:"total_power"`
	CountByType       map[string]int  `json:"count_by_type"`
	PowerBuckets      map[string]int  `json:"power_buckets"`      // Small/Medium/Large/Whale
	MedianPower       decimal.Decimal `json:"median_power"`       // 投票权中位数
	TopDecileShare    decimal.Decimal `json:"top_decile_share"`   // 前10%投票人占总投票权比例
	ApprovalRate      decimal.Decimal `json:"approval_rate"`      // 赞成权 / 已投权
	ParticipationRate decimal.Decimal `json:"participation_rate"` // 已投权 / 空间内可投权
	AverageConfidence decimal.Decimal `json:"average_confidence"`
	DelegateVotes     int             `json:"delegate_votes"`
	ChangedVotes      int             `json:"changed_votes"`
}

// Statistics 提案投票统计，基于全量选票计算
//
// 参与率的分母取空间内全用户余额合计折算的可投权；
// 空间内尚无任何余额数据时退回假定可投权，避免分母为0。
func (s *VoteService) Statistics(ctx context.Context, proposalNo string) (*VoteStatistics, error) {
	proposal, err := s.proposalRepo.GetByProposalNo(ctx, proposalNo)
	if err != nil {
		return nil, err
	}
	votes, err := s.voteRepo.ListByProposal(ctx, proposalNo)
	if err != nil {
		return nil, err
	}

	stats := &VoteStatistics{
		ProposalNo:        proposalNo,
		TotalPower:        decimal.Zero,
		CountByType:       make(map[string]int),
		PowerBuckets:      map[string]int{"Small": 0, "Medium": 0, "Large": 0, "Whale": 0},
		MedianPower:       decimal.Zero,
		TopDecileShare:    decimal.Zero,
		ApprovalRate:      decimal.Zero,
		ParticipationRate: decimal.Zero,
		AverageConfidence: decimal.Zero,
	}

	powerFor := decimal.Zero
	confidenceSum := 0
	powers := make([]decimal.Decimal, 0, len(votes))
	for _, v := range votes {
		stats.TotalVotes++
		stats.CountByType[v.VoteType]++
		stats.TotalPower = stats.TotalPower.Add(v.VotingPower)
		powers = append(powers, v.VotingPower)
		if v.VoteType == model.VoteTypeFor {
			powerFor = powerFor.Add(v.VotingPower)
		}
		confidenceSum += v.ConfidenceLevel

		switch {
		case v.VotingPower.LessThan(powerBucketSmall):
			stats.PowerBuckets["Small"]++
		case v.VotingPower.LessThan(powerBucketMedium):
			stats.PowerBuckets["Medium"]++
		case v.VotingPower.LessThan(powerBucketLarge):
			stats.PowerBuckets["Large"]++
		default:
			stats.PowerBuckets["Whale"]++
		}
		if v.IsDelegateVote {
			stats.DelegateVotes++
		}
		if v.IsChanged {
			stats.ChangedVotes++
		}
	}

	if len(powers) > 0 {
		sort.Slice(powers, func(i, j int) bool { return powers[i].GreaterThan(powers[j]) })

		// 中位数（降序排列后的中间值，偶数个取两者均值）
		mid := len(powers) / 2
		if len(powers)%2 == 1 {
			stats.MedianPower = powers[mid]
		} else {
			stats.MedianPower = money.RoundAmount(powers[mid-1].Add(powers[mid]).Div(decimal.NewFromInt(2)))
		}

		// 前10%投票人（至少1人）的投票权集中度
		topN := len(powers) / 10
		if topN == 0 {
			topN = 1
		}
		topPower := decimal.Zero
		for i := 0; i < topN; i++ {
			topPower = topPower.Add(powers[i])
		}
		stats.TopDecileShare = money.Rate(topPower, stats.TotalPower)
		stats.ApprovalRate = money.Rate(powerFor, stats.TotalPower)
		stats.AverageConfidence = money.RoundRate(
			decimal.NewFromInt(int64(confidenceSum)).Div(decimal.NewFromInt(int64(stats.TotalVotes))))
	}

	eligibleBalance, err := s.balanceRepo.TotalBalance(ctx, proposal.SpaceID)
	if err != nil {
		return nil, err
	}
	eligiblePower := assumedEligiblePower
	if eligibleBalance.Sign() > 0 {
		// 可投权按缺省策略对全空间余额折算
		policy := NewBalanceWeightedPolicy(s.balanceRepo)
		eligiblePower = eligibleBalance.
			Mul(policy.DelegationMultiplier.Add(policy.ActivityBonus)).
			Mul(policy.ReputationScore).
			Div(decimal.NewFromInt(100))
	}
	stats.ParticipationRate = money.Rate(stats.TotalPower, eligiblePower)

	return stats, nil
}

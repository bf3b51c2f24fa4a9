package service

import (
	"context"
	"testing"

	"tokencore/internal/model"
	"tokencore/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openProposalFixture 建好治理环境并返回一个立即可投的提案
func openProposalFixture(t *testing.T) (*governanceFixture, *model.GovernanceProposal) {
	f := newGovernanceFixture(t)
	proposal, err := f.svc.CreateEmergencyProposal(context.Background(), &CreateProposalRequest{
		SpaceID:      1,
		ProposerID:   "user_a",
		Title:        "投票对象",
		ProposalType: model.ProposalTypePolicyChange,
	})
	require.NoError(t, err)
	return f, proposal
}

func TestVoteService_CastVote(t *testing.T) {
	f, proposal := openProposalFixture(t)
	ctx := context.Background()

	vote, err := f.voteSvc.CastVote(ctx, &CastVoteRequest{
		ProposalNo:      proposal.ProposalNo,
		VoterID:         "user_a",
		VoteType:        model.VoteTypeFor,
		ConfidenceLevel: 80,
		Reason:          "支持",
	})
	require.NoError(t, err)

	// 余额400 × (1+0) × 50/100 = 200
	assert.True(t, vote.VotingPower.Equal(decimal.NewFromInt(200)))
	assert.True(t, vote.BalanceSnapshot.Equal(decimal.NewFromInt(400)))
	assert.True(t, vote.DelegatedPower.IsZero())
	assert.Equal(t, 80, vote.ConfidenceLevel)
	assert.False(t, vote.IsDelegateVote)

	// 重复投票直接拒绝
	_, err = f.voteSvc.CastVote(ctx, &CastVoteRequest{
		ProposalNo: proposal.ProposalNo, VoterID: "user_a", VoteType: model.VoteTypeAgainst,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateVote)

	// 投票类型白名单
	_, err = f.voteSvc.CastVote(ctx, &CastVoteRequest{
		ProposalNo: proposal.ProposalNo, VoterID: "user_b", VoteType: "VETO",
	})
	assert.ErrorIs(t, err, ErrVoteTypeUnknown)
}

func TestVoteService_CastVote_NoBalance(t *testing.T) {
	f, proposal := openProposalFixture(t)

	// 余额不存在的投票人按快照0计权，投票本身不被拒绝
	vote, err := f.voteSvc.CastVote(context.Background(), &CastVoteRequest{
		ProposalNo: proposal.ProposalNo, VoterID: "user_nobody", VoteType: model.VoteTypeAbstain,
	})
	require.NoError(t, err)
	assert.True(t, vote.VotingPower.IsZero())
	assert.True(t, vote.BalanceSnapshot.IsZero())
}

func TestVoteService_CastDelegateVote(t *testing.T) {
	f, proposal := openProposalFixture(t)
	ctx := context.Background()

	// user_b 委任 user_a 代投，选票记在代投人名下，
	// 委任人的余额并入代投人的投票权
	vote, err := f.voteSvc.CastDelegateVote(ctx, &CastDelegateVoteRequest{
		ProposalNo:  proposal.ProposalNo,
		DelegateID:  "user_a",
		DelegatorID: "user_b",
		VoteType:    model.VoteTypeFor,
	})
	require.NoError(t, err)

	assert.Equal(t, "user_a", vote.VoterID)
	assert.Equal(t, "user_b", vote.DelegatorID)
	assert.True(t, vote.IsDelegateVote)
	assert.Equal(t, delegateVoteConfidence, vote.ConfidenceLevel)
	// (代投人余额400 + 委任余额100) × (1+0) × 50/100 = 250
	assert.True(t, vote.VotingPower.Equal(decimal.NewFromInt(250)))
	assert.True(t, vote.BalanceSnapshot.Equal(decimal.NewFromInt(400)))
	assert.True(t, vote.DelegatedPower.Equal(decimal.NewFromInt(100)))

	// 代投人已经有票，本人再投被挡
	_, err = f.voteSvc.CastVote(ctx, &CastVoteRequest{
		ProposalNo: proposal.ProposalNo, VoterID: "user_a", VoteType: model.VoteTypeAgainst,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateVote)

	// 不能委任自己
	_, err = f.voteSvc.CastDelegateVote(ctx, &CastDelegateVoteRequest{
		ProposalNo:  proposal.ProposalNo,
		DelegateID:  "user_a",
		DelegatorID: "user_a",
		VoteType:    model.VoteTypeFor,
	})
	assert.ErrorIs(t, err, ErrSelfDelegation)
}

func TestVoteService_CastDelegateVote_DelegatorWithoutBalance(t *testing.T) {
	f, proposal := openProposalFixture(t)

	// 委任人余额不存在时按0并入，投票权只剩代投人自身的部分
	vote, err := f.voteSvc.CastDelegateVote(context.Background(), &CastDelegateVoteRequest{
		ProposalNo:  proposal.ProposalNo,
		DelegateID:  "user_b",
		DelegatorID: "user_nobody",
		VoteType:    model.VoteTypeAbstain,
	})
	require.NoError(t, err)
	assert.True(t, vote.VotingPower.Equal(decimal.NewFromInt(50)))
	assert.True(t, vote.DelegatedPower.IsZero())
}

func TestVoteService_ChangeVote(t *testing.T) {
	f, proposal := openProposalFixture(t)
	ctx := context.Background()

	vote, err := f.voteSvc.CastVote(ctx, &CastVoteRequest{
		ProposalNo: proposal.ProposalNo, VoterID: "user_a", VoteType: model.VoteTypeFor,
	})
	require.NoError(t, err)

	// 同类型改票没有意义
	_, err = f.voteSvc.ChangeVote(ctx, &ChangeVoteRequest{
		ProposalNo: proposal.ProposalNo, VoterID: "user_a", VoteType: model.VoteTypeFor,
	})
	assert.Error(t, err)

	changed, err := f.voteSvc.ChangeVote(ctx, &ChangeVoteRequest{
		ProposalNo: proposal.ProposalNo,
		VoterID:    "user_a",
		VoteType:   model.VoteTypeAgainst,
		Reason:     "重新考虑后反对",
	})
	require.NoError(t, err)

	assert.Equal(t, model.VoteTypeAgainst, changed.VoteType)
	assert.Equal(t, model.VoteTypeFor, changed.PreviousVoteType)
	assert.True(t, changed.IsChanged)
	require.NotNil(t, changed.LastChangedAt)
	// 投票权不随改票重算
	assert.True(t, changed.VotingPower.Equal(decimal.NewFromInt(200)))

	// 变更履历恰好一条
	changes, err := f.voteSvc.ListChanges(ctx, vote.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, model.VoteTypeFor, changes[0].FromVoteType)
	assert.Equal(t, model.VoteTypeAgainst, changes[0].ToVoteType)

	// 聚合值反映改票后的现状
	tallies, err := f.voteSvc.ComputeTallies(ctx, proposal.ProposalNo, proposal.MinimumQuorum)
	require.NoError(t, err)
	assert.Equal(t, 0, tallies.VotesFor)
	assert.Equal(t, 1, tallies.VotesAgainst)
	assert.True(t, tallies.PowerAgainst.Equal(decimal.NewFromInt(200)))
}

func TestVoteService_ChangeVote_Limit(t *testing.T) {
	f, proposal := openProposalFixture(t)
	ctx := context.Background()

	_, err := f.voteSvc.CastVote(ctx, &CastVoteRequest{
		ProposalNo: proposal.ProposalNo, VoterID: "user_a", VoteType: model.VoteTypeFor,
	})
	require.NoError(t, err)

	// 改满3次
	for _, voteType := range []string{model.VoteTypeAgainst, model.VoteTypeFor, model.VoteTypeAgainst} {
		_, err = f.voteSvc.ChangeVote(ctx, &ChangeVoteRequest{
			ProposalNo: proposal.ProposalNo, VoterID: "user_a", VoteType: voteType,
		})
		require.NoError(t, err)
	}

	// 第4次被挡
	_, err = f.voteSvc.ChangeVote(ctx, &ChangeVoteRequest{
		ProposalNo: proposal.ProposalNo, VoterID: "user_a", VoteType: model.VoteTypeFor,
	})
	assert.ErrorIs(t, err, ErrVoteChangeLimit)
}

func TestVoteService_ListVotesByVoter(t *testing.T) {
	f, proposal := openProposalFixture(t)
	ctx := context.Background()

	second, err := f.svc.CreateEmergencyProposal(ctx, &CreateProposalRequest{
		SpaceID:      1,
		ProposerID:   "user_b",
		Title:        "第二件",
		ProposalType: model.ProposalTypePolicyChange,
	})
	require.NoError(t, err)

	for _, no := range []string{proposal.ProposalNo, second.ProposalNo} {
		_, err = f.voteSvc.CastVote(ctx, &CastVoteRequest{
			ProposalNo: no, VoterID: "user_a", VoteType: model.VoteTypeFor,
		})
		require.NoError(t, err)
	}

	votes, total, err := f.voteSvc.ListVotesByVoter(ctx, "user_a", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, votes, 2)

	_, total, err = f.voteSvc.ListVotesByVoter(ctx, "user_b", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestVoteService_Statistics(t *testing.T) {
	f, proposal := openProposalFixture(t)
	ctx := context.Background()

	_, err := f.voteSvc.CastVote(ctx, &CastVoteRequest{
		ProposalNo: proposal.ProposalNo, VoterID: "user_a", VoteType: model.VoteTypeFor,
	})
	require.NoError(t, err)
	// 无余额的代投人替 user_b 投，权重只来自委任部分：100 × 0.5 = 50
	_, err = f.voteSvc.CastDelegateVote(ctx, &CastDelegateVoteRequest{
		ProposalNo:  proposal.ProposalNo,
		DelegateID:  "user_c",
		DelegatorID: "user_b",
		VoteType:    model.VoteTypeAgainst,
	})
	require.NoError(t, err)

	stats, err := f.voteSvc.Statistics(ctx, proposal.ProposalNo)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalVotes)
	assert.True(t, stats.TotalPower.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, 1, stats.CountByType[model.VoteTypeFor])
	assert.Equal(t, 1, stats.CountByType[model.VoteTypeAgainst])

	// 200属于Large档，50属于Medium档
	assert.Equal(t, 1, stats.PowerBuckets["Large"])
	assert.Equal(t, 1, stats.PowerBuckets["Medium"])
	assert.Equal(t, 0, stats.PowerBuckets["Small"])
	assert.Equal(t, 0, stats.PowerBuckets["Whale"])

	// 中位数 (200+50)/2，前10%（最少1人）占比 200/250
	assert.True(t, stats.MedianPower.Equal(decimal.NewFromInt(125)))
	assert.True(t, stats.TopDecileShare.Equal(decimal.RequireFromString("0.8")))

	// 赞成权 200 / 已投权 250
	assert.True(t, stats.ApprovalRate.Equal(decimal.RequireFromString("0.8")))

	// 空间内可投权 = 余额合计500折算的250，全员已投 -> 参与率1
	assert.True(t, stats.ParticipationRate.Equal(decimal.NewFromInt(1)))

	// 置信度：本人投票未填0，委任投票固定90
	assert.True(t, stats.AverageConfidence.Equal(decimal.NewFromInt(45)))

	assert.Equal(t, 1, stats.DelegateVotes)
	assert.Equal(t, 0, stats.ChangedVotes)
}

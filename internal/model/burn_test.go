package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanBurnTransitionTo(t *testing.T) {
	// 人工审批路径
	assert.True(t, CanBurnTransitionTo(BurnStatusProposed, BurnStatusUnderReview))
	assert.True(t, CanBurnTransitionTo(BurnStatusUnderReview, BurnStatusApproved))
	assert.True(t, CanBurnTransitionTo(BurnStatusApproved, BurnStatusScheduled))
	assert.True(t, CanBurnTransitionTo(BurnStatusScheduled, BurnStatusExecuting))
	assert.True(t, CanBurnTransitionTo(BurnStatusExecuting, BurnStatusCompleted))

	// 跳过审查直接批准，以及执行失败
	assert.True(t, CanBurnTransitionTo(BurnStatusProposed, BurnStatusApproved))
	assert.True(t, CanBurnTransitionTo(BurnStatusApproved, BurnStatusExecuting))
	assert.True(t, CanBurnTransitionTo(BurnStatusExecuting, BurnStatusFailed))

	// 终态不可再转移
	assert.False(t, CanBurnTransitionTo(BurnStatusCompleted, BurnStatusExecuting))
	assert.False(t, CanBurnTransitionTo(BurnStatusRejected, BurnStatusApproved))
	assert.False(t, CanBurnTransitionTo(BurnStatusCancelled, BurnStatusProposed))

	// 不可跳级
	assert.False(t, CanBurnTransitionTo(BurnStatusProposed, BurnStatusExecuting))
	assert.False(t, CanBurnTransitionTo(BurnStatusProposed, BurnStatusCompleted))
}

func TestIsBurnTerminal(t *testing.T) {
	assert.True(t, IsBurnTerminal(BurnStatusCompleted))
	assert.True(t, IsBurnTerminal(BurnStatusFailed))
	assert.True(t, IsBurnTerminal(BurnStatusRejected))
	assert.True(t, IsBurnTerminal(BurnStatusCancelled))

	assert.False(t, IsBurnTerminal(BurnStatusProposed))
	assert.False(t, IsBurnTerminal(BurnStatusExecuting))
}

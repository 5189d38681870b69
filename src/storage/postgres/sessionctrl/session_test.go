package sessionctrl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algomind/src/core/model"
)

func TestToTurnsRestoresConversationOrder(t *testing.T) {
	rows := []Message{
		{ID: 3, Role: RoleAssistant, Content: "动态规划把问题拆成重叠子问题"},
		{ID: 2, Role: RoleUser, Content: "什么是动态规划"},
		{ID: 1, Role: RoleAssistant, Content: "你好"},
	}

	turns := toTurns(rows)
	assert.Equal(t, []model.Turn{
		{Role: RoleAssistant, Content: "你好"},
		{Role: RoleUser, Content: "什么是动态规划"},
		{Role: RoleAssistant, Content: "动态规划把问题拆成重叠子问题"},
	}, turns)
}

func TestToTurnsEmpty(t *testing.T) {
	assert.Empty(t, toTurns(nil))
}

func TestRecentTurnsShortCircuits(t *testing.T) {
	svc, err := NewSessionService(nil, 3)
	require.NoError(t, err)

	turns, err := svc.RecentTurns(context.Background(), "", 6)
	require.NoError(t, err)
	assert.Nil(t, turns)

	turns, err = svc.RecentTurns(context.Background(), "s-1", 0)
	require.NoError(t, err)
	assert.Nil(t, turns)
}

func TestAppendSkipsEmptyTurns(t *testing.T) {
	svc, err := NewSessionService(nil, 3)
	require.NoError(t, err)

	// nothing to write, so the nil db is never touched
	err = svc.Append(context.Background(), "s-1", model.Turn{Role: RoleUser}, model.Turn{Role: RoleAssistant})
	assert.NoError(t, err)
}

func TestDeleteSessionRequiresID(t *testing.T) {
	svc, err := NewSessionService(nil, 3)
	require.NoError(t, err)

	assert.Error(t, svc.DeleteSession(context.Background(), ""))
}

func TestNewSessionServiceRejectsBadNode(t *testing.T) {
	_, err := NewSessionService(nil, 5000)
	assert.Error(t, err)
}

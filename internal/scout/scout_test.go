package scout

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/reqctx"
)

type stubCreator struct {
	lastIn domain.TaskCreate
	task   *domain.Task
	err    error
}

func (s *stubCreator) Create(_ context.Context, in domain.TaskCreate, _ reqctx.Keys) (*domain.Task, error) {
	s.lastIn = in
	if s.err != nil {
		return nil, s.err
	}
	return s.task, nil
}

func TestLaunchRequest_Normalize_FillsDefaults(t *testing.T) {
	r := LaunchRequest{}
	r.Normalize()
	assert.Equal(t, 5, r.NumTasks)
	assert.Equal(t, 2, r.MaxDepth)
}

func TestLaunchRequest_Normalize_ClampsToBounds(t *testing.T) {
	r := LaunchRequest{NumTasks: 99, MaxDepth: 99}
	r.Normalize()
	assert.Equal(t, 10, r.NumTasks)
	assert.Equal(t, 3, r.MaxDepth)

	r2 := LaunchRequest{NumTasks: -1, MaxDepth: -1}
	r2.Normalize()
	assert.Equal(t, 1, r2.NumTasks)
	assert.Equal(t, 1, r2.MaxDepth)
}

func TestLaunchRequest_Normalize_LeavesInBoundsValuesUntouched(t *testing.T) {
	r := LaunchRequest{NumTasks: 7, MaxDepth: 3}
	r.Normalize()
	assert.Equal(t, 7, r.NumTasks)
	assert.Equal(t, 3, r.MaxDepth)
}

func TestLaunch_CreatesRootTaskWithPromptAndReturnsResult(t *testing.T) {
	creator := &stubCreator{task: &domain.Task{ID: "t1", Status: domain.TaskStatusPending}}

	result, err := Launch(context.Background(), creator, LaunchRequest{NumTasks: 3, MaxDepth: 2}, reqctx.Keys{})
	require.NoError(t, err)

	assert.Equal(t, "t1", result.TaskID)
	assert.Equal(t, string(domain.TaskStatusPending), result.Status)
	assert.Equal(t, 3, result.NumTasks)
	assert.Equal(t, 2, result.MaxDepth)

	assert.Contains(t, creator.lastIn.Description, "exactly 3 follow-up improvements")
	assert.True(t, strings.Contains(creator.lastIn.Description, "Max depth budget: 2"))
	assert.Empty(t, creator.lastIn.AssignedAgents)
}

func TestLaunch_AssignsRequestedAgent(t *testing.T) {
	creator := &stubCreator{task: &domain.Task{ID: "t1"}}

	_, err := Launch(context.Background(), creator, LaunchRequest{AgentID: "agent-1"}, reqctx.Keys{})
	require.NoError(t, err)

	assert.Equal(t, []string{"agent-1"}, creator.lastIn.AssignedAgents)
}

func TestLaunch_PropagatesCreatorError(t *testing.T) {
	boom := assert.AnError
	creator := &stubCreator{err: boom}

	_, err := Launch(context.Background(), creator, LaunchRequest{}, reqctx.Keys{})
	assert.ErrorIs(t, err, boom)
}

package agentsvc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurek775/saladin/internal/bus"
	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/repository"
)

func newTestService() *Service {
	return New(repository.NewMemoryAgentRepo(), bus.New(16, nil))
}

func TestService_CreateAndGet(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	agent, err := svc.Create(ctx, domain.AgentCreate{
		Name: "researcher", Role: domain.AgentRoleWorker,
		LLMProvider: "anthropic", LLMModel: "claude-sonnet-4-20250514",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusIdle, agent.Status)

	got, err := svc.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "researcher", got.Name)
}

func TestService_Workers_FiltersByRole(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.AgentCreate{Name: "w1", Role: domain.AgentRoleWorker})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.AgentCreate{Name: "sup", Role: domain.AgentRoleSupervisor})
	require.NoError(t, err)

	workers, err := svc.Workers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "w1", workers[0].Name)
}

func TestService_SetStatus(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	agent, err := svc.Create(ctx, domain.AgentCreate{Name: "w1", Role: domain.AgentRoleWorker})
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(ctx, agent.ID, domain.AgentStatusBusy))

	got, err := svc.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusBusy, got.Status)
}

func TestService_DeleteDropsAgent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	agent, err := svc.Create(ctx, domain.AgentCreate{Name: "w1", Role: domain.AgentRoleWorker})
	require.NoError(t, err)

	ok, err := svc.Delete(ctx, agent.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Get(ctx, agent.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

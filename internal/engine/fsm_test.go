package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurek775/saladin/internal/agentsvc"
	"github.com/kurek775/saladin/internal/bus"
	"github.com/kurek775/saladin/internal/config"
	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/llm"
	"github.com/kurek775/saladin/internal/reqctx"
	"github.com/kurek775/saladin/internal/repository"
)

const (
	workerMaxTokens     = 4096
	supervisorMaxTokens = 2048
)

func approveJSON(feedback string) string {
	return fmt.Sprintf("```json\n{\"decision\":\"approve\",\"feedback\":%q}\n```", feedback)
}

func reviseJSON(feedback string) string {
	return fmt.Sprintf("```json\n{\"decision\":\"revise\",\"feedback\":%q}\n```", feedback)
}

func rejectJSON(feedback string) string {
	return fmt.Sprintf("```json\n{\"decision\":\"reject\",\"feedback\":%q}\n```", feedback)
}

func TestEngine_Run_HappyPath_SingleWorkerApprove(t *testing.T) {
	tasks := repository.NewMemoryTaskRepo()
	agents := agentsvc.New(repository.NewMemoryAgentRepo(), bus.New(64, nil))

	agent, err := agents.Create(context.Background(), domain.AgentCreate{Name: "worker-1", Role: domain.AgentRoleWorker, LLMProvider: "openai", LLMModel: "gpt-5"})
	require.NoError(t, err)

	stub := llm.NewStub()
	stub.Handler = func(req llm.Request) (*llm.Response, error) {
		if req.MaxTokens == workerMaxTokens {
			return &llm.Response{Content: llm.TextContent("worker output")}, nil
		}
		return &llm.Response{Content: llm.TextContent(approveJSON("looks good"))}, nil
	}

	cfg := &config.Config{GraphTimeout: 5 * time.Second}
	e, err := New(context.Background(), tasks, agents, stub, bus.New(64, nil), cfg, nil, nil)
	require.NoError(t, err)

	task := &domain.Task{ID: "t1", Description: "do work", AssignedAgents: []string{agent.ID}, MaxRevisions: 3, Status: domain.TaskStatusPending}
	require.NoError(t, tasks.Save(context.Background(), task))

	e.Run(context.Background(), reqctx.Keys{}, "t1")

	got, err := tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusApproved, got.Status)
	assert.Equal(t, "worker output", got.FinalOutput)
	require.Len(t, got.SupervisorReviews, 1)
	assert.Equal(t, domain.DecisionApprove, got.SupervisorReviews[0].Decision)
}

func TestEngine_Run_ReviseOnceThenApprove(t *testing.T) {
	tasks := repository.NewMemoryTaskRepo()
	agents := agentsvc.New(repository.NewMemoryAgentRepo(), bus.New(64, nil))
	agent, err := agents.Create(context.Background(), domain.AgentCreate{Name: "worker-1", Role: domain.AgentRoleWorker, LLMProvider: "openai", LLMModel: "gpt-5"})
	require.NoError(t, err)

	var supervisorCalls int32
	stub := llm.NewStub()
	stub.Handler = func(req llm.Request) (*llm.Response, error) {
		if req.MaxTokens == workerMaxTokens {
			return &llm.Response{Content: llm.TextContent("worker output")}, nil
		}
		n := atomic.AddInt32(&supervisorCalls, 1)
		if n == 1 {
			return &llm.Response{Content: llm.TextContent(reviseJSON("needs more detail"))}, nil
		}
		return &llm.Response{Content: llm.TextContent(approveJSON("now it's good"))}, nil
	}

	cfg := &config.Config{GraphTimeout: 5 * time.Second}
	e, err := New(context.Background(), tasks, agents, stub, bus.New(64, nil), cfg, nil, nil)
	require.NoError(t, err)

	task := &domain.Task{ID: "t1", Description: "do work", AssignedAgents: []string{agent.ID}, MaxRevisions: 3, Status: domain.TaskStatusPending}
	require.NoError(t, tasks.Save(context.Background(), task))

	e.Run(context.Background(), reqctx.Keys{}, "t1")

	got, err := tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusApproved, got.Status)
	assert.Equal(t, 1, got.CurrentRevision)
	require.Len(t, got.SupervisorReviews, 2)
	assert.Equal(t, domain.DecisionRevise, got.SupervisorReviews[0].Decision)
	assert.Equal(t, domain.DecisionApprove, got.SupervisorReviews[1].Decision)
}

func TestEngine_Run_ReviseBudgetExhausted_ForcesApprove(t *testing.T) {
	tasks := repository.NewMemoryTaskRepo()
	agents := agentsvc.New(repository.NewMemoryAgentRepo(), bus.New(64, nil))
	agent, err := agents.Create(context.Background(), domain.AgentCreate{Name: "worker-1", Role: domain.AgentRoleWorker, LLMProvider: "openai", LLMModel: "gpt-5"})
	require.NoError(t, err)

	stub := llm.NewStub()
	stub.Handler = func(req llm.Request) (*llm.Response, error) {
		if req.MaxTokens == workerMaxTokens {
			return &llm.Response{Content: llm.TextContent("worker output")}, nil
		}
		// Supervisor always asks for a revision; the revision budget forces
		// the FSM to finalize as approved anyway once it's exhausted.
		return &llm.Response{Content: llm.TextContent(reviseJSON("still not satisfied"))}, nil
	}

	cfg := &config.Config{GraphTimeout: 5 * time.Second}
	e, err := New(context.Background(), tasks, agents, stub, bus.New(64, nil), cfg, nil, nil)
	require.NoError(t, err)

	task := &domain.Task{ID: "t1", Description: "do work", AssignedAgents: []string{agent.ID}, MaxRevisions: 1, Status: domain.TaskStatusPending}
	require.NoError(t, tasks.Save(context.Background(), task))

	e.Run(context.Background(), reqctx.Keys{}, "t1")

	got, err := tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusApproved, got.Status)
	assert.Equal(t, 1, got.CurrentRevision)
	assert.Equal(t, "worker output", got.FinalOutput)
}

func TestEngine_Run_ParallelWorkers_ErrorIsolatedFromHealthyOutput(t *testing.T) {
	tasks := repository.NewMemoryTaskRepo()
	agents := agentsvc.New(repository.NewMemoryAgentRepo(), bus.New(64, nil))
	good, err := agents.Create(context.Background(), domain.AgentCreate{Name: "good", Role: domain.AgentRoleWorker, LLMProvider: "openai", LLMModel: "good-model"})
	require.NoError(t, err)
	bad, err := agents.Create(context.Background(), domain.AgentCreate{Name: "bad", Role: domain.AgentRoleWorker, LLMProvider: "openai", LLMModel: "bad-model"})
	require.NoError(t, err)

	stub := llm.NewStub()
	stub.Handler = func(req llm.Request) (*llm.Response, error) {
		// The supervisor reuses the first worker's model, so tell it apart by
		// its token budget.
		if req.MaxTokens == supervisorMaxTokens {
			return &llm.Response{Content: llm.TextContent(approveJSON("fine"))}, nil
		}
		switch req.Model {
		case "good-model":
			return &llm.Response{Content: llm.TextContent("healthy output")}, nil
		case "bad-model":
			return nil, fmt.Errorf("provider unavailable")
		default:
			return &llm.Response{Content: llm.TextContent(approveJSON("fine"))}, nil
		}
	}

	cfg := &config.Config{GraphTimeout: 5 * time.Second}
	e, err := New(context.Background(), tasks, agents, stub, bus.New(64, nil), cfg, nil, nil)
	require.NoError(t, err)

	task := &domain.Task{ID: "t1", Description: "do work", AssignedAgents: []string{good.ID, bad.ID}, MaxRevisions: 3, Status: domain.TaskStatusPending}
	require.NoError(t, tasks.Save(context.Background(), task))

	e.Run(context.Background(), reqctx.Keys{}, "t1")

	got, err := tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusApproved, got.Status)
	require.Len(t, got.WorkerOutputs, 2)

	var sawHealthy, sawError bool
	for _, wo := range got.WorkerOutputs {
		if wo.Output == "healthy output" {
			sawHealthy = true
		}
		if wo.AgentID == bad.ID {
			assert.Contains(t, wo.Output, "Error:")
			sawError = true
		}
	}
	assert.True(t, sawHealthy)
	assert.True(t, sawError)

	badAgent, err := agents.Get(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusIdle, badAgent.Status)
}

func TestEngine_Run_SuspendsForHumanApproval(t *testing.T) {
	tasks := repository.NewMemoryTaskRepo()
	agents := agentsvc.New(repository.NewMemoryAgentRepo(), bus.New(64, nil))
	agent, err := agents.Create(context.Background(), domain.AgentCreate{Name: "worker-1", Role: domain.AgentRoleWorker, LLMProvider: "openai", LLMModel: "gpt-5"})
	require.NoError(t, err)

	stub := llm.NewStub()
	stub.Handler = func(req llm.Request) (*llm.Response, error) {
		if req.MaxTokens == workerMaxTokens {
			return &llm.Response{Content: llm.TextContent("worker output")}, nil
		}
		return &llm.Response{Content: llm.TextContent(approveJSON("looks good"))}, nil
	}

	cfg := &config.Config{GraphTimeout: 5 * time.Second}
	e, err := New(context.Background(), tasks, agents, stub, bus.New(64, nil), cfg, nil, nil)
	require.NoError(t, err)

	task := &domain.Task{ID: "t1", Description: "do work", AssignedAgents: []string{agent.ID}, MaxRevisions: 3, RequiresHumanApproval: true, Status: domain.TaskStatusPending}
	require.NoError(t, tasks.Save(context.Background(), task))

	e.Run(context.Background(), reqctx.Keys{}, "t1")

	got, err := tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPendingHumanApproval, got.Status)
	require.Len(t, got.SupervisorReviews, 1)
	assert.Equal(t, domain.DecisionApprove, got.SupervisorReviews[0].Decision)
}

func TestEngine_Resume_HumanOverride_OverwritesSupervisorReviewInPlace(t *testing.T) {
	tasks := repository.NewMemoryTaskRepo()
	agents := agentsvc.New(repository.NewMemoryAgentRepo(), bus.New(64, nil))
	agent, err := agents.Create(context.Background(), domain.AgentCreate{Name: "worker-1", Role: domain.AgentRoleWorker, LLMProvider: "openai", LLMModel: "gpt-5"})
	require.NoError(t, err)

	stub := llm.NewStub()
	stub.Handler = func(req llm.Request) (*llm.Response, error) {
		if req.MaxTokens == workerMaxTokens {
			return &llm.Response{Content: llm.TextContent("worker output")}, nil
		}
		return &llm.Response{Content: llm.TextContent(approveJSON("supervisor says fine"))}, nil
	}

	cfg := &config.Config{GraphTimeout: 5 * time.Second}
	e, err := New(context.Background(), tasks, agents, stub, bus.New(64, nil), cfg, nil, nil)
	require.NoError(t, err)

	task := &domain.Task{ID: "t1", Description: "do work", AssignedAgents: []string{agent.ID}, MaxRevisions: 3, RequiresHumanApproval: true, Status: domain.TaskStatusPending}
	require.NoError(t, tasks.Save(context.Background(), task))

	e.Run(context.Background(), reqctx.Keys{}, "t1")

	suspended, err := tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusPendingHumanApproval, suspended.Status)
	require.Len(t, suspended.SupervisorReviews, 1)
	assert.Equal(t, domain.DecisionApprove, suspended.SupervisorReviews[0].Decision)

	resumed, err := e.Resume(context.Background(), reqctx.Keys{}, "t1", domain.HumanDecision{Decision: domain.DecisionReject, Feedback: "human says no"})
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusRejected, resumed.Status)
	assert.Equal(t, "human says no", resumed.FinalOutput)

	// The human's override replaces the supervisor's own verdict for this
	// revision rather than appending a second entry.
	require.Len(t, resumed.SupervisorReviews, 1)
	assert.Equal(t, domain.DecisionReject, resumed.SupervisorReviews[0].Decision)
	assert.Equal(t, "human says no", resumed.SupervisorReviews[0].Feedback)
}

func TestEngine_Resume_ReviseContinuesLoopSynchronously(t *testing.T) {
	tasks := repository.NewMemoryTaskRepo()
	agents := agentsvc.New(repository.NewMemoryAgentRepo(), bus.New(64, nil))
	agent, err := agents.Create(context.Background(), domain.AgentCreate{Name: "worker-1", Role: domain.AgentRoleWorker, LLMProvider: "openai", LLMModel: "gpt-5"})
	require.NoError(t, err)

	stub := llm.NewStub()
	stub.Handler = func(req llm.Request) (*llm.Response, error) {
		if req.MaxTokens == workerMaxTokens {
			return &llm.Response{Content: llm.TextContent("revised output")}, nil
		}
		return &llm.Response{Content: llm.TextContent(approveJSON("good after revision"))}, nil
	}

	cfg := &config.Config{GraphTimeout: 5 * time.Second}
	e, err := New(context.Background(), tasks, agents, stub, bus.New(64, nil), cfg, nil, nil)
	require.NoError(t, err)

	task := &domain.Task{
		ID: "t1", Description: "do work", AssignedAgents: []string{agent.ID},
		MaxRevisions: 3, Status: domain.TaskStatusPendingHumanApproval, CurrentRevision: 0,
	}
	require.NoError(t, tasks.Save(context.Background(), task))

	resumed, err := e.Resume(context.Background(), reqctx.Keys{}, "t1", domain.HumanDecision{Decision: domain.DecisionRevise, Feedback: "try again"})
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusApproved, resumed.Status)
	assert.Equal(t, "revised output", resumed.FinalOutput)
	assert.Equal(t, 1, resumed.CurrentRevision)
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kurek775/saladin/internal/agentsvc"
	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/llm"
)

// WorkerResult is one agent's output for a dispatch round.
type WorkerResult struct {
	AgentID   string
	AgentName string
	Output    string
}

// dispatchWorkers runs every assigned agent concurrently against the
// provider and returns one WorkerResult per agent that exists. Unknown
// agents are skipped with a warning, not an error; a failing agent yields an
// error-text output instead of aborting the round.
func dispatchWorkers(
	ctx context.Context,
	agents *agentsvc.Service,
	provider llm.Provider,
	agentIDs []string,
	taskDescription string,
	revision int,
	feedback string,
	onOutput func(result WorkerResult),
) []WorkerResult {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []WorkerResult
	)

	for _, agentID := range agentIDs {
		agentID := agentID
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, ok := runSingleWorker(ctx, agents, provider, agentID, taskDescription, revision, feedback)
			if !ok {
				return
			}
			if onOutput != nil {
				onOutput(result)
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return results
}

func runSingleWorker(
	ctx context.Context,
	agents *agentsvc.Service,
	provider llm.Provider,
	agentID string,
	taskDescription string,
	revision int,
	feedback string,
) (WorkerResult, bool) {
	agent, err := agents.Get(ctx, agentID)
	if err != nil {
		slog.Warn("engine: unknown agent skipped", "agent_id", agentID, "error", err)
		return WorkerResult{}, false
	}

	_ = agents.SetStatus(ctx, agentID, domain.AgentStatusBusy)
	defer func() {
		_ = agents.SetStatus(ctx, agentID, domain.AgentStatusIdle)
	}()

	systemPrompt := workerSystemPrompt(agent.SystemPrompt, revision, feedback)
	message := workerTaskMessage(taskDescription, feedback)

	resp, err := llm.WithRetry(ctx, func() (*llm.Response, error) {
		return provider.ChatCompletion(ctx, llm.Request{
			Provider:  agent.LLMProvider,
			Model:     agent.LLMModel,
			MaxTokens: 4096,
			Messages: []llm.Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: message},
			},
		})
	})
	if err != nil {
		_ = agents.SetStatus(ctx, agentID, domain.AgentStatusError)
		return WorkerResult{AgentID: agentID, AgentName: agent.Name, Output: fmt.Sprintf("Error: %s", err)}, true
	}

	return WorkerResult{
		AgentID:   agentID,
		AgentName: agent.Name,
		Output:    resp.Content.ToText(),
	}, true
}

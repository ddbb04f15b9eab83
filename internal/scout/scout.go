// Package scout launches a self-improvement analysis task: a single root
// task whose description asks a worker to survey the codebase and describe a
// batch of follow-up improvements. Grounded on the source's scout endpoint,
// minus its create_task tool loop — dispatch is a one-shot completion here
// (see DESIGN.md's scope decision), so num_tasks and max_depth are
// embedded in the prompt as budget guidance rather than mechanically
// enforced by a tool-calling agent.
package scout

import (
	"context"
	"fmt"

	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/reqctx"
)

const promptTemplate = `You are a codebase scout for the saladin self-improvement system.

Your mission:
1. Analyze the codebase structure, code quality, and architecture.
2. Avoid duplicating improvements already noted in prior runs.
3. Describe exactly %d follow-up improvements you identified, each specific and actionable.

Focus areas: code quality, missing tests, error handling gaps, performance issues, security concerns, documentation, and architectural improvements.

Be specific. Include file paths and line numbers when possible.
Max depth budget: %d — any follow-up work this identifies should stay within that depth.`

// LaunchRequest is the payload for POST /api/scout/launch.
type LaunchRequest struct {
	NumTasks int    `json:"num_tasks"`
	MaxDepth int    `json:"max_depth"`
	AgentID  string `json:"agent_id"`
}

// Normalize clamps the request to the source's bounds, filling in defaults
// for zero values.
func (r *LaunchRequest) Normalize() {
	if r.NumTasks == 0 {
		r.NumTasks = 5
	}
	if r.NumTasks < 1 {
		r.NumTasks = 1
	}
	if r.NumTasks > 10 {
		r.NumTasks = 10
	}
	if r.MaxDepth == 0 {
		r.MaxDepth = 2
	}
	if r.MaxDepth < 1 {
		r.MaxDepth = 1
	}
	if r.MaxDepth > 3 {
		r.MaxDepth = 3
	}
}

// LaunchResult is the response body for POST /api/scout/launch.
type LaunchResult struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	NumTasks int    `json:"num_tasks"`
	MaxDepth int    `json:"max_depth"`
}

// Creator is the subset of tasksvc.Service that Launch needs.
type Creator interface {
	Create(ctx context.Context, in domain.TaskCreate, keys reqctx.Keys) (*domain.Task, error)
}

// Launch creates the scout's root task and returns its identity.
func Launch(ctx context.Context, tasks Creator, req LaunchRequest, keys reqctx.Keys) (*LaunchResult, error) {
	req.Normalize()

	var assigned []string
	if req.AgentID != "" {
		assigned = []string{req.AgentID}
	}

	task, err := tasks.Create(ctx, domain.TaskCreate{
		Description:    fmt.Sprintf(promptTemplate, req.NumTasks, req.MaxDepth),
		AssignedAgents: assigned,
	}, keys)
	if err != nil {
		return nil, err
	}

	return &LaunchResult{
		TaskID:   task.ID,
		Status:   string(task.Status),
		NumTasks: req.NumTasks,
		MaxDepth: req.MaxDepth,
	}, nil
}

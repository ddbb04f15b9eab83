// Package engine implements the task-orchestration state machine: a fixed
// topology (dispatch → review → approve|reject|revise) hand-rolled as a Go
// loop rather than compiled from a generic graph library, per the design
// note that a small native FSM is simpler and easier to test than a generic
// framework for a graph shape this narrow.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kurek775/saladin/internal/agentsvc"
	"github.com/kurek775/saladin/internal/bus"
	"github.com/kurek775/saladin/internal/config"
	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/llm"
	"github.com/kurek775/saladin/internal/reqctx"
	"github.com/kurek775/saladin/internal/repository"
)

// Engine drives tasks through the orchestration FSM. It is assembled once at
// startup and threaded through the HTTP handlers and task service — there
// are no package-level singletons.
type Engine struct {
	tasks     repository.TaskRepository
	agents    *agentsvc.Service
	llmClient llm.KeyedProvider
	bus       *bus.Bus
	cfg       *config.Config
	durable   bool
	logger    *slog.Logger
}

// New builds an Engine. If checkpointer is non-nil, its Ping is called once:
// a failure here fails startup rather than silently degrading to in-process
// suspend/resume (see the design notes on checkpointer construction).
func New(ctx context.Context, tasks repository.TaskRepository, agents *agentsvc.Service, llmClient llm.KeyedProvider, b *bus.Bus, cfg *config.Config, checkpointer Checkpointer, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	durable := false
	if checkpointer != nil {
		if err := checkpointer.Ping(ctx); err != nil {
			return nil, fmt.Errorf("engine: checkpointer unavailable: %w", err)
		}
		durable = true
	}
	return &Engine{
		tasks:     tasks,
		agents:    agents,
		llmClient: llmClient,
		bus:       b,
		cfg:       cfg,
		durable:   durable,
		logger:    logger,
	}, nil
}

// Durable reports whether this Engine has durable checkpoint support, and
// therefore resumes suspended tasks in-place via Resume rather than by
// direct task mutation at the API layer.
func (e *Engine) Durable() bool {
	return e.durable
}

// Run executes the FSM for taskID starting at dispatch_workers, looping
// through revision rounds until a terminal state, a human-approval
// suspension, or the global deadline. It never returns an error: all
// failure paths end the task in a terminal or suspended status and emit a
// log event, matching the "fatal engine" error-taxonomy entry.
func (e *Engine) Run(ctx context.Context, keys reqctx.Keys, taskID string) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.GraphTimeout)
	defer cancel()

	provider := e.llmClient.WithKeys(keys)

	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		e.logger.Error("engine: task not found at run start", "task_id", taskID, "error", err)
		return
	}

	for {
		suspended, err := e.runRound(ctx, provider, task)
		if err != nil {
			if ctx.Err() != nil {
				e.failTimeout(context.Background(), taskID)
			} else {
				e.failFatal(context.Background(), taskID, err)
			}
			return
		}
		if suspended {
			return
		}

		task, err = e.tasks.Get(ctx, taskID)
		if err != nil {
			e.logger.Error("engine: task vanished mid-run", "task_id", taskID, "error", err)
			return
		}
		if task.Status.IsTerminal() {
			return
		}
	}
}

// runRound executes one dispatch+review cycle. It returns suspended=true
// when the task has entered pending_human_approval and this Run call should
// end without error (the FSM "suspends" by the goroutine exiting; see the
// interrupt/resume design notes).
func (e *Engine) runRound(ctx context.Context, provider llm.Provider, task *domain.Task) (bool, error) {
	review, err := e.dispatchAndReview(ctx, provider, task)
	if err != nil {
		return false, err
	}

	if task.RequiresHumanApproval {
		if err := e.suspendForApproval(ctx, task.ID, review); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, e.route(ctx, task.ID, review)
}

// dispatchAndReview runs the dispatch node then the review node, returning
// the supervisor's verdict for this round.
func (e *Engine) dispatchAndReview(ctx context.Context, provider llm.Provider, task *domain.Task) (ReviewResult, error) {
	revision := task.CurrentRevision
	feedback := latestFeedback(task, revision)

	var onOutputEvents []WorkerResult
	results := dispatchWorkers(ctx, e.agents, provider, task.AssignedAgents, task.Description, revision, feedback, func(r WorkerResult) {
		preview := r.Output
		if len(preview) > 500 {
			preview = preview[:500]
		}
		e.bus.Publish(domain.NewEvent(domain.EventWorkerOutput, map[string]any{
			"task_id":    task.ID,
			"agent_id":   r.AgentID,
			"agent_name": r.AgentName,
			"output":     preview,
			"revision":   revision,
		}))
		onOutputEvents = append(onOutputEvents, r)
	})

	now := time.Now().UTC()
	var updated *domain.Task
	err := e.tasks.WithLock(ctx, task.ID, func(t *domain.Task) error {
		for _, r := range results {
			t.WorkerOutputs = append(t.WorkerOutputs, domain.WorkerOutput{
				AgentID: r.AgentID, AgentName: r.AgentName, Output: r.Output,
				Revision: revision, Timestamp: now,
			})
		}
		t.Status = domain.TaskStatusUnderReview
		t.UpdatedAt = now
		updated = t
		return nil
	})
	if err != nil {
		return ReviewResult{}, err
	}
	e.bus.Publish(domain.NewEvent(domain.EventTaskUpdate, map[string]any{
		"action": "status_changed", "task": updated,
	}))

	e.logEvent(ctx, task.ID, "info", "Supervisor reviewing worker outputs...")

	supProvider, supModel := firstAgentProviderModel(ctx, e.agents, task.AssignedAgents)
	domainOutputs := roundOutputs(updated, revision)

	review, err := judge(ctx, provider, supProvider, supModel, task.Description, domainOutputs, revision, task.MaxRevisions)
	if err != nil {
		return ReviewResult{}, err
	}

	if err := e.persistReview(ctx, task.ID, review, revision); err != nil {
		return ReviewResult{}, err
	}

	e.bus.Publish(domain.NewEvent(domain.EventSupervisorReview, map[string]any{
		"task_id": task.ID, "decision": review.Decision, "feedback": review.Feedback, "revision": revision,
	}))

	return review, nil
}

// persistReview records review as the verdict for revision, overwriting any
// review already persisted for that revision in place rather than appending
// a second entry — this is what lets Resume re-persist a human's override of
// the supervisor's own just-persisted verdict without leaving both on the
// task's history.
func (e *Engine) persistReview(ctx context.Context, taskID string, review ReviewResult, revision int) error {
	return e.tasks.WithLock(ctx, taskID, func(t *domain.Task) error {
		entry := domain.SupervisorReview{
			Decision: review.Decision, Feedback: review.Feedback, Revision: revision, Timestamp: time.Now().UTC(),
		}
		for i, existing := range t.SupervisorReviews {
			if existing.Revision == revision {
				t.SupervisorReviews[i] = entry
				t.UpdatedAt = time.Now().UTC()
				return nil
			}
		}
		t.SupervisorReviews = append(t.SupervisorReviews, entry)
		t.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (e *Engine) suspendForApproval(ctx context.Context, taskID string, review ReviewResult) error {
	var updated *domain.Task
	err := e.tasks.WithLock(ctx, taskID, func(t *domain.Task) error {
		t.Status = domain.TaskStatusPendingHumanApproval
		t.UpdatedAt = time.Now().UTC()
		updated = t
		return nil
	})
	if err != nil {
		return err
	}
	e.bus.Publish(domain.NewEvent(domain.EventHumanApprovalRequired, map[string]any{
		"task_id": taskID, "supervisor_decision": review.Decision, "supervisor_feedback": review.Feedback,
	}))
	e.bus.Publish(domain.NewEvent(domain.EventTaskUpdate, map[string]any{
		"action": "status_changed", "task": updated,
	}))
	return nil
}

// route applies the routing predicate to review and runs the resulting
// terminal or revise node.
func (e *Engine) route(ctx context.Context, taskID string, review ReviewResult) error {
	switch e.nextNode(ctx, taskID, review) {
	case nodeApprove:
		return e.approve(ctx, taskID)
	case nodeReject:
		return e.reject(ctx, taskID, review)
	default:
		return e.revise(ctx, taskID)
	}
}

type node string

const (
	nodeApprove node = "approve"
	nodeReject  node = "reject"
	nodeRevise  node = "revise"
)

func (e *Engine) nextNode(ctx context.Context, taskID string, review ReviewResult) node {
	switch review.Decision {
	case domain.DecisionApprove:
		return nodeApprove
	case domain.DecisionReject:
		return nodeReject
	case domain.DecisionRevise:
		task, err := e.tasks.Get(ctx, taskID)
		if err != nil {
			return nodeApprove
		}
		if task.CurrentRevision >= task.MaxRevisions {
			return nodeApprove
		}
		return nodeRevise
	default:
		return nodeApprove
	}
}

func (e *Engine) approve(ctx context.Context, taskID string) error {
	var updated *domain.Task
	err := e.tasks.WithLock(ctx, taskID, func(t *domain.Task) error {
		t.FinalOutput = joinRoundOutputs(t, t.CurrentRevision)
		t.Status = domain.TaskStatusApproved
		t.UpdatedAt = time.Now().UTC()
		updated = t
		return nil
	})
	if err != nil {
		return err
	}
	e.bus.Publish(domain.NewEvent(domain.EventTaskUpdate, map[string]any{"action": "completed", "task": updated}))
	return nil
}

func (e *Engine) reject(ctx context.Context, taskID string, review ReviewResult) error {
	finalOutput := review.Feedback
	if finalOutput == "" {
		finalOutput = "Rejected by supervisor"
	}
	var updated *domain.Task
	err := e.tasks.WithLock(ctx, taskID, func(t *domain.Task) error {
		t.FinalOutput = finalOutput
		t.Status = domain.TaskStatusRejected
		t.UpdatedAt = time.Now().UTC()
		updated = t
		return nil
	})
	if err != nil {
		return err
	}
	e.bus.Publish(domain.NewEvent(domain.EventTaskUpdate, map[string]any{"action": "completed", "task": updated}))
	return nil
}

func (e *Engine) revise(ctx context.Context, taskID string) error {
	var newRevision int
	err := e.tasks.WithLock(ctx, taskID, func(t *domain.Task) error {
		t.CurrentRevision++
		t.Status = domain.TaskStatusRevision
		t.UpdatedAt = time.Now().UTC()
		newRevision = t.CurrentRevision
		return nil
	})
	if err != nil {
		return err
	}
	e.bus.Publish(domain.NewEvent(domain.EventTaskUpdate, map[string]any{
		"action": "revision", "task_id": taskID, "current_revision": newRevision,
	}))
	e.logEvent(ctx, taskID, "info", fmt.Sprintf("Revision %d requested. Re-dispatching workers.", newRevision))
	return nil
}

func (e *Engine) failTimeout(ctx context.Context, taskID string) {
	message := fmt.Sprintf("Execution timed out after %s", e.cfg.GraphTimeout)
	e.logger.Error("engine: task timed out", "task_id", taskID)
	_ = e.tasks.WithLock(ctx, taskID, func(t *domain.Task) error {
		t.Status = domain.TaskStatusFailed
		t.FinalOutput = message
		t.UpdatedAt = time.Now().UTC()
		return nil
	})
	e.logEvent(ctx, taskID, "error", message)
}

func (e *Engine) failFatal(ctx context.Context, taskID string, cause error) {
	e.logger.Error("engine: task failed", "task_id", taskID, "error", cause)
	_ = e.tasks.WithLock(ctx, taskID, func(t *domain.Task) error {
		t.Status = domain.TaskStatusFailed
		t.FinalOutput = fmt.Sprintf("Task failed: %s", cause)
		t.UpdatedAt = time.Now().UTC()
		return nil
	})
	e.logEvent(ctx, taskID, "error", fmt.Sprintf("Task failed: %s", cause))
}

// logEvent publishes a log event to the bus for live consumers and appends
// it to the task's durable execution log for GET .../logs. Append failures
// are logged but never fail the FSM transition that triggered them — the
// bus publish is the primary signal, the durable trail a best-effort copy.
func (e *Engine) logEvent(ctx context.Context, taskID, level, message string) {
	e.bus.Publish(domain.NewEvent(domain.EventLog, map[string]any{
		"task_id": taskID, "level": level, "message": message,
	}))
	entry := domain.ExecutionLogEntry{
		TaskID:    taskID,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.tasks.Append(ctx, entry); err != nil {
		e.logger.Error("engine: failed to append execution log", "task_id", taskID, "error", err)
	}
}

func latestFeedback(task *domain.Task, revision int) string {
	if revision == 0 {
		return ""
	}
	for i := len(task.SupervisorReviews) - 1; i >= 0; i-- {
		if task.SupervisorReviews[i].Revision == revision-1 {
			return task.SupervisorReviews[i].Feedback
		}
	}
	return ""
}

func roundOutputs(task *domain.Task, revision int) []domain.WorkerOutput {
	var out []domain.WorkerOutput
	for _, wo := range task.WorkerOutputs {
		if wo.Revision == revision {
			out = append(out, wo)
		}
	}
	return out
}

func joinRoundOutputs(task *domain.Task, revision int) string {
	outputs := roundOutputs(task, revision)
	texts := make([]string, len(outputs))
	for i, wo := range outputs {
		texts[i] = wo.Output
	}
	joined := ""
	for i, t := range texts {
		if i > 0 {
			joined += "\n\n"
		}
		joined += t
	}
	return joined
}

func firstAgentProviderModel(ctx context.Context, agents *agentsvc.Service, agentIDs []string) (string, string) {
	if len(agentIDs) == 0 {
		return "", ""
	}
	agent, err := agents.Get(ctx, agentIDs[0])
	if err != nil {
		return "", ""
	}
	return agent.LLMProvider, agent.LLMModel
}

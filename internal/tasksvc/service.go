// Package tasksvc owns task creation, the hierarchical self-spawning safety
// envelope, and background launch, grounded on the engine's task service.
// Unlike that service, lineage is validated here before a task is ever
// persisted: AutoTaskError surfaces as a 400 with the rule name rather than
// letting a runaway fan-out tree through.
package tasksvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kurek775/saladin/internal/agentsvc"
	"github.com/kurek775/saladin/internal/bus"
	"github.com/kurek775/saladin/internal/config"
	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/queue"
	"github.com/kurek775/saladin/internal/reqctx"
	"github.com/kurek775/saladin/internal/repository"
)

// RunJobType names the queue job a task run is dispatched as when USE_QUEUE
// routes FSM execution through an external worker process.
const RunJobType = "run_task"

// RunPayload is the queue job payload for RunJobType.
type RunPayload struct {
	TaskID string      `json:"task_id"`
	Keys   reqctx.Keys `json:"keys"`
}

// AutoTaskError reports a lineage-safety violation; Rule names which guard
// tripped, so HTTP handlers and tool-calling callers can surface it as-is.
type AutoTaskError struct {
	Rule string
}

func (e *AutoTaskError) Error() string {
	return fmt.Sprintf("auto-task rejected: %s", e.Rule)
}

// Runner executes the orchestration FSM for one task. internal/engine
// implements this; tasksvc depends only on the interface so cmd/server can
// wire tasksvc and engine in either construction order.
type Runner interface {
	Run(ctx context.Context, keys reqctx.Keys, taskID string)
}

// Resumer continues a task suspended in pending_human_approval with a human
// decision. internal/engine implements this for its durable (checkpointer)
// mode; Durable reports whether that mode is active.
type Resumer interface {
	Resume(ctx context.Context, keys reqctx.Keys, taskID string, decision domain.HumanDecision) (*domain.Task, error)
	Durable() bool
}

// Service creates tasks, enforces lineage limits, and schedules their
// background FSM run.
type Service struct {
	tasks   repository.TaskRepository
	agents  *agentsvc.Service
	bus     *bus.Bus
	cfg     *config.Config
	runner  Runner
	resumer Resumer
	launch  func(fn func())
	queue   queue.Queue
}

// New builds a Service. launch controls how in-process background FSM runs
// are scheduled; nil means one goroutine per run. USE_QUEUE routing is set
// separately with SetQueue, and queued runs bypass launch.
func New(tasks repository.TaskRepository, agents *agentsvc.Service, b *bus.Bus, cfg *config.Config, runner Runner, launch func(fn func())) *Service {
	if launch == nil {
		launch = func(fn func()) { go fn() }
	}
	return &Service{tasks: tasks, agents: agents, bus: b, cfg: cfg, runner: runner, launch: launch}
}

// SetRunner wires the orchestration engine after both are constructed,
// breaking the tasksvc/engine construction cycle.
func (s *Service) SetRunner(r Runner) {
	s.runner = r
}

// SetResumer wires the engine's durable-resume path.
func (s *Service) SetResumer(r Resumer) {
	s.resumer = r
}

// SetQueue routes background FSM runs through q (USE_QUEUE=true) instead of
// a local goroutine. The caller is responsible for registering
// RunJobType against q with a handler built from NewQueueHandler — normally
// in the same process for RunJobType, but on a separate worker process when
// q is a RedisQueue.
func (s *Service) SetQueue(q queue.Queue) {
	s.queue = q
}

// List returns a page of tasks.
func (s *Service) List(ctx context.Context, skip, limit int) ([]domain.Task, error) {
	return s.tasks.List(ctx, skip, limit)
}

// Count returns the total number of tasks.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.tasks.Count(ctx)
}

// Get returns one task, or repository.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*domain.Task, error) {
	return s.tasks.Get(ctx, id)
}

// Logs returns a task's durable execution-log trail.
func (s *Service) Logs(ctx context.Context, id string) ([]domain.ExecutionLogEntry, error) {
	return s.tasks.Logs(ctx, id)
}

// Create validates lineage, persists the task, and schedules its background
// FSM run. keys carries the BYOK credentials the run should inherit.
func (s *Service) Create(ctx context.Context, in domain.TaskCreate, keys reqctx.Keys) (*domain.Task, error) {
	var parent *domain.Task
	depth := 0

	if in.ParentTaskID != "" {
		if !s.cfg.AllowAutoTaskCreation {
			return nil, &AutoTaskError{Rule: "auto_task_creation_disabled"}
		}

		var err error
		parent, err = s.tasks.Get(ctx, in.ParentTaskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, &AutoTaskError{Rule: "parent_not_found"}
			}
			return nil, err
		}

		if parent.Depth+1 > s.cfg.MaxTaskDepth {
			return nil, &AutoTaskError{Rule: "max_task_depth_exceeded"}
		}

		childCount, err := s.tasks.CountByParent(ctx, parent.ID)
		if err != nil {
			return nil, err
		}
		if childCount >= s.cfg.MaxChildTasksPerTask {
			return nil, &AutoTaskError{Rule: "max_child_tasks_per_task_exceeded"}
		}

		autoCreated, err := s.tasks.CountAutoCreated(ctx)
		if err != nil {
			return nil, err
		}
		if autoCreated >= s.cfg.MaxTotalAutoTasks {
			return nil, &AutoTaskError{Rule: "max_total_auto_tasks_exceeded"}
		}

		depth = parent.Depth + 1
	}

	agentIDs := in.AssignedAgents
	if len(agentIDs) == 0 {
		workers, err := s.agents.Workers(ctx)
		if err != nil {
			return nil, err
		}
		for _, w := range workers {
			agentIDs = append(agentIDs, w.ID)
		}
	}

	now := time.Now().UTC()
	task := &domain.Task{
		ID:                    uuid.NewString(),
		Description:           in.Description,
		Status:                domain.TaskStatusPending,
		AssignedAgents:        agentIDs,
		MaxRevisions:          s.cfg.MaxRevisions,
		RequiresHumanApproval: in.RequiresHumanApproval,
		CreatedAt:             now,
		UpdatedAt:             now,
		ParentTaskID:          in.ParentTaskID,
		Depth:                 depth,
		SpawnedByAgent:        in.SpawnedByAgent,
	}

	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, err
	}

	if parent != nil {
		if err := s.tasks.WithLock(ctx, parent.ID, func(p *domain.Task) error {
			p.ChildTaskIDs = append(p.ChildTaskIDs, task.ID)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	s.bus.Publish(domain.NewEvent(domain.EventTaskUpdate, map[string]any{
		"action": "created",
		"task":   task,
	}))

	s.launchRun(task.ID, keys)

	return task, nil
}

// UpdateStatus transitions a task's status under its per-task mutex and
// publishes a task_update event — used by background launch's status
// bookkeeping and its failure path.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	var updated *domain.Task
	err := s.tasks.WithLock(ctx, id, func(t *domain.Task) error {
		t.Status = status
		t.UpdatedAt = time.Now().UTC()
		updated = t
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Publish(domain.NewEvent(domain.EventTaskUpdate, map[string]any{
		"action": "status_changed",
		"task":   updated,
	}))
	return nil
}

func (s *Service) launchRun(taskID string, keys reqctx.Keys) {
	if s.queue != nil {
		ctx := context.Background()
		if _, err := s.queue.Enqueue(ctx, RunJobType, RunPayload{TaskID: taskID, Keys: keys}); err != nil {
			_ = s.UpdateStatus(ctx, taskID, domain.TaskStatusFailed)
		}
		return
	}
	s.launch(func() {
		s.runTask(context.Background(), taskID, keys)
	})
}

// runTask transitions a task to running and hands it to the orchestration
// engine. Shared by the in-process launcher and NewQueueHandler so both
// paths apply the same status bookkeeping.
func (s *Service) runTask(ctx context.Context, taskID string, keys reqctx.Keys) {
	if err := s.UpdateStatus(ctx, taskID, domain.TaskStatusRunning); err != nil {
		return
	}
	if s.runner == nil {
		_ = s.UpdateStatus(ctx, taskID, domain.TaskStatusFailed)
		return
	}
	s.runner.Run(ctx, keys, taskID)
}

// NewQueueHandler builds the queue.Queue handler for RunJobType: unmarshal
// the payload and run the FSM exactly as the in-process launcher would.
// Register it with q.RegisterHandler(tasksvc.RunJobType, ...) on whichever
// process (server or a dedicated worker) consumes that queue.
func NewQueueHandler(s *Service) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var job RunPayload
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("tasksvc: invalid run_task payload: %w", err)
		}
		s.runTask(ctx, job.TaskID, job.Keys)
		return nil
	}
}

// ResumeRevise re-launches a background FSM run from the dispatch node for
// the in-process (non-checkpointer) interrupt/resume fallback.
func (s *Service) ResumeRevise(taskID string, keys reqctx.Keys) {
	s.launchRun(taskID, keys)
}

// ErrNotPendingApproval is returned by ApproveHuman when the task isn't
// currently suspended waiting on a human decision.
var ErrNotPendingApproval = errors.New("tasksvc: task is not pending human approval")

// ApproveHuman resolves a task suspended in pending_human_approval. When the
// engine has durable checkpoint support, resolution is delegated to the
// engine's Resume, which continues the FSM in place. Otherwise the decision
// is applied directly here, short-circuiting the FSM — a revise decision
// schedules a fresh background run rather than continuing synchronously.
func (s *Service) ApproveHuman(ctx context.Context, taskID string, decision domain.HumanDecision, keys reqctx.Keys) (*domain.Task, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusPendingHumanApproval {
		return nil, ErrNotPendingApproval
	}

	if s.resumer != nil && s.resumer.Durable() {
		return s.resumer.Resume(ctx, keys, taskID, decision)
	}

	var updated *domain.Task
	err = s.tasks.WithLock(ctx, taskID, func(t *domain.Task) error {
		entry := domain.SupervisorReview{
			Decision:  decision.Decision,
			Feedback:  decision.Feedback,
			Revision:  t.CurrentRevision,
			Timestamp: time.Now().UTC(),
		}
		overwritten := false
		for i, existing := range t.SupervisorReviews {
			if existing.Revision == t.CurrentRevision {
				t.SupervisorReviews[i] = entry
				overwritten = true
				break
			}
		}
		if !overwritten {
			t.SupervisorReviews = append(t.SupervisorReviews, entry)
		}

		switch decision.Decision {
		case domain.DecisionApprove:
			t.Status = domain.TaskStatusApproved
			t.FinalOutput = joinRoundOutputs(t.WorkerOutputs, t.CurrentRevision)
		case domain.DecisionReject:
			t.Status = domain.TaskStatusRejected
			if decision.Feedback != "" {
				t.FinalOutput = decision.Feedback
			} else {
				t.FinalOutput = "Rejected by human"
			}
		case domain.DecisionRevise:
			t.Status = domain.TaskStatusRevision
			t.CurrentRevision++
		}
		t.UpdatedAt = time.Now().UTC()
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(domain.NewEvent(domain.EventTaskUpdate, map[string]any{
		"action": "status_changed",
		"task":   updated,
	}))

	if decision.Decision == domain.DecisionRevise {
		s.ResumeRevise(taskID, keys)
	}

	return updated, nil
}

// joinRoundOutputs joins the worker outputs for one revision round, in the
// order they were appended — mirrors internal/engine's own round join used
// when the FSM approves a round itself.
func joinRoundOutputs(outputs []domain.WorkerOutput, revision int) string {
	joined := ""
	first := true
	for _, wo := range outputs {
		if wo.Revision != revision {
			continue
		}
		if !first {
			joined += "\n\n"
		}
		joined += wo.Output
		first = false
	}
	return joined
}

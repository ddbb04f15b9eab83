package domain

import "time"

// TaskStatus is the current position of a task in the orchestration state
// machine (see internal/engine). approved, rejected and failed are sinks.
type TaskStatus string

const (
	TaskStatusPending               TaskStatus = "pending"
	TaskStatusRunning                TaskStatus = "running"
	TaskStatusUnderReview            TaskStatus = "under_review"
	TaskStatusRevision                TaskStatus = "revision"
	TaskStatusApproved                TaskStatus = "approved"
	TaskStatusRejected                TaskStatus = "rejected"
	TaskStatusFailed                  TaskStatus = "failed"
	TaskStatusPendingHumanApproval     TaskStatus = "pending_human_approval"
)

// IsTerminal reports whether status is one of the FSM's absorbing states.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusApproved, TaskStatusRejected, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// SupervisorDecision is the supervisor's verdict on a round of worker output.
type SupervisorDecision string

const (
	DecisionApprove SupervisorDecision = "approve"
	DecisionRevise  SupervisorDecision = "revise"
	DecisionReject  SupervisorDecision = "reject"
)

// WorkerOutput is one worker agent's response for a given revision round.
// Append-only once persisted to a task.
type WorkerOutput struct {
	AgentID   string    `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Output    string    `json:"output"`
	Revision  int       `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

// SupervisorReview is the supervisor's verdict for a given revision round.
// Append-only once persisted to a task, except for the human-override path
// (see internal/engine), which overwrites the review for the current
// revision in place.
type SupervisorReview struct {
	Decision  SupervisorDecision `json:"decision"`
	Feedback  string             `json:"feedback"`
	Revision  int                `json:"revision"`
	Timestamp time.Time          `json:"timestamp"`
}

// Task is a unit of work assigned to one or more worker agents and judged by
// a supervisor across bounded revision rounds.
type Task struct {
	ID                     string             `json:"id" gorm:"primaryKey"`
	Description            string             `json:"description"`
	Status                 TaskStatus         `json:"status"`
	AssignedAgents         []string           `json:"assigned_agents"`
	WorkerOutputs          []WorkerOutput     `json:"worker_outputs"`
	SupervisorReviews      []SupervisorReview `json:"supervisor_reviews"`
	CurrentRevision        int                `json:"current_revision"`
	MaxRevisions           int                `json:"max_revisions"`
	FinalOutput            string             `json:"final_output"`
	RequiresHumanApproval  bool               `json:"requires_human_approval"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`

	// Lineage — the self-spawning safety envelope (see internal/tasksvc).
	ParentTaskID    string   `json:"parent_task_id"`
	Depth           int      `json:"depth"`
	ChildTaskIDs    []string `json:"child_task_ids"`
	SpawnedByAgent  string   `json:"spawned_by_agent"`
}

// TaskCreate is the payload for POST /api/tasks.
type TaskCreate struct {
	Description           string   `json:"description"`
	AssignedAgents        []string `json:"assigned_agents"`
	RequiresHumanApproval bool     `json:"requires_human_approval"`

	// A non-empty ParentTaskID names the parent task and puts the request
	// through the lineage checks. SpawnedByAgent is never read from the HTTP
	// body.
	ParentTaskID   string `json:"parent_task_id"`
	SpawnedByAgent string `json:"-"`
}

// HumanDecision is the payload for POST /api/tasks/{id}/approve.
type HumanDecision struct {
	Decision SupervisorDecision `json:"decision"`
	Feedback string              `json:"feedback"`
}

// ExecutionLogEntry is a durable record of an FSM transition for a task,
// independent of the ephemeral event bus — used to render a task's timeline
// after the fact.
type ExecutionLogEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID    string    `json:"task_id" gorm:"index"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

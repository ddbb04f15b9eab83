// Package repository abstracts task/agent persistence behind one contract
// with two interchangeable backends: in-memory maps and a relational
// (Postgres via GORM) store. The engine's dispatch/review/revise nodes only
// ever talk to these interfaces, never to a concrete backend.
package repository

import (
	"context"
	"errors"

	"github.com/kurek775/saladin/internal/domain"
)

// ErrNotFound is returned by Get when no record exists for the given ID.
var ErrNotFound = errors.New("repository: not found")

// AgentRepository persists Agent records.
type AgentRepository interface {
	List(ctx context.Context, skip, limit int) ([]domain.Agent, error)
	Get(ctx context.Context, id string) (*domain.Agent, error)
	Save(ctx context.Context, agent *domain.Agent) error
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// TaskRepository persists Task records, including their append-only worker
// output and supervisor review history.
type TaskRepository interface {
	List(ctx context.Context, skip, limit int) ([]domain.Task, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	Save(ctx context.Context, task *domain.Task) error
	Count(ctx context.Context) (int, error)

	// CountByParent reports how many tasks currently name parentID as their
	// parent — used by the lineage safety envelope's sibling-count guard.
	CountByParent(ctx context.Context, parentID string) (int, error)

	// CountAutoCreated reports how many tasks in the system have a non-empty
	// ParentTaskID — the global auto-spawn ceiling's denominator.
	CountAutoCreated(ctx context.Context) (int, error)

	// Append persists a durable execution-log line for a task, independent
	// of the ephemeral event bus.
	Append(ctx context.Context, entry domain.ExecutionLogEntry) error

	// Logs returns a task's execution-log trail in chronological order.
	Logs(ctx context.Context, taskID string) ([]domain.ExecutionLogEntry, error)

	// WithLock serializes read-modify-write access to a single task: it
	// loads the current record, hands it to fn for in-place mutation, then
	// persists the result — all while holding that task's per-ID mutex, so
	// two concurrent FSM nodes for the same task can never clobber each
	// other's writes. fn returning an error aborts the save.
	WithLock(ctx context.Context, taskID string, fn func(*domain.Task) error) error
}

// Store bundles both repositories plus whatever per-task write-serialization
// the backend provides (see memory.go / postgres.go for how each backend
// implements the per-task mutex requirement from the concurrency model).
type Store struct {
	Agents AgentRepository
	Tasks  TaskRepository
}

package repository

import (
	"context"
	"sync"

	"github.com/kurek775/saladin/internal/domain"
)

// MemoryAgentRepo keeps agents in a process-local map. Grounded on the
// engine's in-memory store: a plain map keyed by ID, guarded by a mutex
// since agent CRUD can be hit concurrently by the HTTP API and by dispatch
// nodes flipping status.
type MemoryAgentRepo struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
}

// NewMemoryAgentRepo builds an empty in-memory agent repository.
func NewMemoryAgentRepo() *MemoryAgentRepo {
	return &MemoryAgentRepo{agents: make(map[string]domain.Agent)}
}

func (r *MemoryAgentRepo) List(_ context.Context, skip, limit int) ([]domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return paginate(out, skip, limit), nil
}

func (r *MemoryAgentRepo) Get(_ context.Context, id string) (*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (r *MemoryAgentRepo) Save(_ context.Context, agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = *agent
	return nil
}

func (r *MemoryAgentRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return false, nil
	}
	delete(r.agents, id)
	return true, nil
}

func (r *MemoryAgentRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents), nil
}

// MemoryTaskRepo keeps tasks in a process-local map, with a per-task mutex
// layer implementing the engine's "no lost writes" requirement.
type MemoryTaskRepo struct {
	mu      sync.RWMutex
	tasks   map[string]domain.Task
	logs    map[string][]domain.ExecutionLogEntry
	taskMux *taskMutexes
}

// NewMemoryTaskRepo builds an empty in-memory task repository.
func NewMemoryTaskRepo() *MemoryTaskRepo {
	return &MemoryTaskRepo{
		tasks:   make(map[string]domain.Task),
		logs:    make(map[string][]domain.ExecutionLogEntry),
		taskMux: newTaskMutexes(),
	}
}

func (r *MemoryTaskRepo) List(_ context.Context, skip, limit int) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return paginate(out, skip, limit), nil
}

func (r *MemoryTaskRepo) Get(_ context.Context, id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := t
	return &cp, nil
}

func (r *MemoryTaskRepo) Save(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = *task
	return nil
}

func (r *MemoryTaskRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks), nil
}

func (r *MemoryTaskRepo) CountByParent(_ context.Context, parentID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.tasks {
		if t.ParentTaskID == parentID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryTaskRepo) CountAutoCreated(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.tasks {
		if t.ParentTaskID != "" {
			n++
		}
	}
	return n, nil
}

func (r *MemoryTaskRepo) Append(_ context.Context, entry domain.ExecutionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[entry.TaskID] = append(r.logs[entry.TaskID], entry)
	return nil
}

func (r *MemoryTaskRepo) Logs(_ context.Context, taskID string) ([]domain.ExecutionLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ExecutionLogEntry, len(r.logs[taskID]))
	copy(out, r.logs[taskID])
	return out, nil
}

func (r *MemoryTaskRepo) WithLock(ctx context.Context, taskID string, fn func(*domain.Task) error) error {
	lock := r.taskMux.get(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if err := fn(task); err != nil {
		return err
	}
	return r.Save(ctx, task)
}

func paginate[T any](items []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	end := skip + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}

// Package agentsvc owns agent CRUD and per-agent status transitions,
// grounded on the engine's agent service: list/get/create/update/delete plus
// a status setter serialized per agent so two concurrent dispatch rounds
// never interleave writes to the same agent's status field.
package agentsvc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kurek775/saladin/internal/bus"
	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/repository"
)

// Service is the agent CRUD and status-bookkeeping surface used by the HTTP
// API and by the engine's dispatch/review nodes.
type Service struct {
	repo repository.AgentRepository
	bus  *bus.Bus

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Service backed by repo, publishing agent_update events on b.
func New(repo repository.AgentRepository, b *bus.Bus) *Service {
	return &Service{repo: repo, bus: b, locks: make(map[string]*sync.Mutex)}
}

func (s *Service) lockFor(agentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[agentID] = l
	}
	return l
}

// List returns a page of agents.
func (s *Service) List(ctx context.Context, skip, limit int) ([]domain.Agent, error) {
	return s.repo.List(ctx, skip, limit)
}

// Count returns the total number of configured agents.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Get returns one agent, or repository.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*domain.Agent, error) {
	return s.repo.Get(ctx, id)
}

// Workers returns every configured worker-role agent — the pool the task
// service and scout dispatcher assign tasks against.
func (s *Service) Workers(ctx context.Context) ([]domain.Agent, error) {
	all, err := s.repo.List(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Agent, 0, len(all))
	for _, a := range all {
		if a.Role == domain.AgentRoleWorker {
			out = append(out, a)
		}
	}
	return out, nil
}

// Create persists a new agent and publishes an agent_update(created) event.
func (s *Service) Create(ctx context.Context, in domain.AgentCreate) (*domain.Agent, error) {
	agent := &domain.Agent{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Role:         in.Role,
		SystemPrompt: in.SystemPrompt,
		LLMProvider:  in.LLMProvider,
		LLMModel:     in.LLMModel,
		Status:       domain.AgentStatusIdle,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, agent); err != nil {
		return nil, err
	}
	s.publish("created", agent)
	return agent, nil
}

// Update applies the non-nil fields of in to the agent and publishes
// agent_update(updated).
func (s *Service) Update(ctx context.Context, id string, in domain.AgentUpdate) (*domain.Agent, error) {
	agent, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		agent.Name = *in.Name
	}
	if in.SystemPrompt != nil {
		agent.SystemPrompt = *in.SystemPrompt
	}
	if in.LLMProvider != nil {
		agent.LLMProvider = *in.LLMProvider
	}
	if in.LLMModel != nil {
		agent.LLMModel = *in.LLMModel
	}
	if err := s.repo.Save(ctx, agent); err != nil {
		return nil, err
	}
	s.publish("updated", agent)
	return agent, nil
}

// Delete removes an agent and drops its status mutex.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()

	s.bus.Publish(domain.NewEvent(domain.EventAgentUpdate, map[string]any{
		"action":   "deleted",
		"agent_id": id,
	}))
	return true, nil
}

// SetStatus transitions an agent's status under that agent's own mutex, so
// concurrent worker-dispatch goroutines touching the same agent never race.
func (s *Service) SetStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	agent, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	agent.Status = status
	if err := s.repo.Save(ctx, agent); err != nil {
		return err
	}
	s.publish("status_changed", agent)
	return nil
}

func (s *Service) publish(action string, agent *domain.Agent) {
	s.bus.Publish(domain.NewEvent(domain.EventAgentUpdate, map[string]any{
		"action": action,
		"agent":  agent,
	}))
}

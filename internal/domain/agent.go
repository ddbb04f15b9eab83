package domain

import "time"

// AgentRole distinguishes a worker agent from the supervisor that judges its
// output.
type AgentRole string

const (
	AgentRoleWorker     AgentRole = "worker"
	AgentRoleSupervisor AgentRole = "supervisor"
)

// AgentStatus tracks what an agent is doing right now. Transitions are
// serialized per agent by the agent service.
type AgentStatus string

const (
	AgentStatusIdle  AgentStatus = "idle"
	AgentStatusBusy  AgentStatus = "busy"
	AgentStatusError AgentStatus = "error"
)

// Agent is a configured participant in the task pipeline: either a worker
// that produces output, or the supervisor that judges it.
type Agent struct {
	ID            string      `json:"id" gorm:"primaryKey"`
	Name          string      `json:"name"`
	Role          AgentRole   `json:"role"`
	SystemPrompt  string      `json:"system_prompt"`
	LLMProvider   string      `json:"llm_provider"`
	LLMModel      string      `json:"llm_model"`
	Status        AgentStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
}

// AgentCreate is the payload for POST /api/agents.
type AgentCreate struct {
	Name         string    `json:"name"`
	Role         AgentRole `json:"role"`
	SystemPrompt string    `json:"system_prompt"`
	LLMProvider  string    `json:"llm_provider"`
	LLMModel     string    `json:"llm_model"`
}

// AgentUpdate is the payload for PATCH /api/agents/{id}. Nil fields are left
// unchanged.
type AgentUpdate struct {
	Name         *string `json:"name"`
	SystemPrompt *string `json:"system_prompt"`
	LLMProvider  *string `json:"llm_provider"`
	LLMModel     *string `json:"llm_model"`
}

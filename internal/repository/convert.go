package repository

import (
	"time"

	"github.com/kurek775/saladin/internal/domain"
)

func agentFromRow(row AgentRow) domain.Agent {
	return domain.Agent{
		ID:           row.ID,
		Name:         row.Name,
		Role:         domain.AgentRole(row.Role),
		SystemPrompt: row.SystemPrompt,
		LLMProvider:  row.LLMProvider,
		LLMModel:     row.LLMModel,
		Status:       domain.AgentStatus(row.Status),
		CreatedAt:    row.CreatedAt,
	}
}

func rowFromAgent(a domain.Agent) AgentRow {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return AgentRow{
		ID:           a.ID,
		Name:         a.Name,
		Role:         string(a.Role),
		SystemPrompt: a.SystemPrompt,
		LLMProvider:  a.LLMProvider,
		LLMModel:     a.LLMModel,
		Status:       string(a.Status),
		CreatedAt:    createdAt,
	}
}

func taskFromRow(row TaskRow, woRows []WorkerOutputRow, srRows []SupervisorReviewRow) domain.Task {
	workerOutputs := make([]domain.WorkerOutput, len(woRows))
	for i, wo := range woRows {
		workerOutputs[i] = domain.WorkerOutput{
			AgentID:   wo.AgentID,
			AgentName: wo.AgentName,
			Output:    wo.Output,
			Revision:  wo.Revision,
			Timestamp: time.Unix(wo.Timestamp, 0).UTC(),
		}
	}
	reviews := make([]domain.SupervisorReview, len(srRows))
	for i, sr := range srRows {
		reviews[i] = domain.SupervisorReview{
			Decision:  domain.SupervisorDecision(sr.Decision),
			Feedback:  sr.Feedback,
			Revision:  sr.Revision,
			Timestamp: time.Unix(sr.Timestamp, 0).UTC(),
		}
	}
	return domain.Task{
		ID:                    row.ID,
		Description:           row.Description,
		Status:                domain.TaskStatus(row.Status),
		AssignedAgents:        []string(row.AssignedAgents),
		WorkerOutputs:         workerOutputs,
		SupervisorReviews:     reviews,
		CurrentRevision:       row.CurrentRevision,
		MaxRevisions:          row.MaxRevisions,
		FinalOutput:           row.FinalOutput,
		RequiresHumanApproval: row.RequiresHumanApproval,
		CreatedAt:             time.Unix(row.CreatedAt, 0).UTC(),
		UpdatedAt:             time.Unix(row.UpdatedAt, 0).UTC(),
		ParentTaskID:          row.ParentTaskID,
		Depth:                 row.Depth,
		ChildTaskIDs:          []string(row.ChildTaskIDs),
		SpawnedByAgent:        row.SpawnedByAgent,
	}
}

func rowFromTask(t domain.Task) TaskRow {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := t.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return TaskRow{
		ID:                    t.ID,
		Description:           t.Description,
		Status:                string(t.Status),
		AssignedAgents:        StringSlice(t.AssignedAgents),
		CurrentRevision:       t.CurrentRevision,
		MaxRevisions:          t.MaxRevisions,
		FinalOutput:           t.FinalOutput,
		RequiresHumanApproval: t.RequiresHumanApproval,
		ParentTaskID:          t.ParentTaskID,
		Depth:                 t.Depth,
		ChildTaskIDs:          StringSlice(t.ChildTaskIDs),
		SpawnedByAgent:        t.SpawnedByAgent,
		CreatedAt:             createdAt.Unix(),
		UpdatedAt:             updatedAt.Unix(),
	}
}

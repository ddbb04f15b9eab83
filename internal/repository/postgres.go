package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kurek775/saladin/internal/domain"
)

// StringSlice stores a []string as a JSON array column — the engine's
// relational backend keeps assigned_agents and child_task_ids as JSON
// columns rather than a join table, matching the design's "Persisted state
// layout" section.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal([]string(s))
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for StringSlice: %T", value)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(s))
}

// AgentRow is the GORM row shape for agents.
type AgentRow struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	Role         string
	SystemPrompt string
	LLMProvider  string
	LLMModel     string
	Status       string
	CreatedAt    time.Time
}

// TaskRow is the GORM row shape for tasks. Worker outputs and supervisor
// reviews live in their own child tables and are loaded eagerly on Get, as
// the design requires.
type TaskRow struct {
	ID                    string `gorm:"primaryKey"`
	Description           string
	Status                string
	AssignedAgents        StringSlice `gorm:"type:jsonb"`
	CurrentRevision       int
	MaxRevisions          int
	FinalOutput           string
	RequiresHumanApproval bool
	ParentTaskID          string `gorm:"index"`
	Depth                 int
	ChildTaskIDs          StringSlice `gorm:"type:jsonb"`
	SpawnedByAgent        string
	CreatedAt             int64
	UpdatedAt             int64
}

// WorkerOutputRow is a child row of TaskRow.
type WorkerOutputRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	TaskID    string `gorm:"index"`
	AgentID   string
	AgentName string
	Output    string
	Revision  int
	Timestamp int64
}

// SupervisorReviewRow is a child row of TaskRow.
type SupervisorReviewRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	TaskID    string `gorm:"index"`
	Decision  string
	Feedback  string
	Revision  int
	Timestamp int64
}

// Models returns every row type AutoMigrate needs for the relational
// backend.
func Models() []any {
	return []any{
		&AgentRow{},
		&TaskRow{},
		&WorkerOutputRow{},
		&SupervisorReviewRow{},
		&domain.ExecutionLogEntry{},
	}
}

// PostgresAgentRepo is the relational AgentRepository backend.
type PostgresAgentRepo struct {
	db *gorm.DB
}

// NewPostgresAgentRepo wraps an already-connected *gorm.DB.
func NewPostgresAgentRepo(db *gorm.DB) *PostgresAgentRepo {
	return &PostgresAgentRepo{db: db}
}

func (r *PostgresAgentRepo) List(ctx context.Context, skip, limit int) ([]domain.Agent, error) {
	var rows []AgentRow
	q := r.db.WithContext(ctx).Offset(skip)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Agent, len(rows))
	for i, row := range rows {
		out[i] = agentFromRow(row)
	}
	return out, nil
}

func (r *PostgresAgentRepo) Get(ctx context.Context, id string) (*domain.Agent, error) {
	var row AgentRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a := agentFromRow(row)
	return &a, nil
}

func (r *PostgresAgentRepo) Save(ctx context.Context, agent *domain.Agent) error {
	row := rowFromAgent(*agent)
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *PostgresAgentRepo) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&AgentRow{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresAgentRepo) Count(ctx context.Context) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&AgentRow{}).Count(&n).Error
	return int(n), err
}

// PostgresTaskRepo is the relational TaskRepository backend.
type PostgresTaskRepo struct {
	db      *gorm.DB
	taskMux *taskMutexes
}

// NewPostgresTaskRepo wraps an already-connected *gorm.DB.
func NewPostgresTaskRepo(db *gorm.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db, taskMux: newTaskMutexes()}
}

func (r *PostgresTaskRepo) List(ctx context.Context, skip, limit int) ([]domain.Task, error) {
	var rows []TaskRow
	q := r.db.WithContext(ctx).Offset(skip)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Task, len(rows))
	for i, row := range rows {
		t, err := r.loadFull(ctx, row)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (r *PostgresTaskRepo) Get(ctx context.Context, id string) (*domain.Task, error) {
	var row TaskRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t, err := r.loadFull(ctx, row)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresTaskRepo) loadFull(ctx context.Context, row TaskRow) (domain.Task, error) {
	var woRows []WorkerOutputRow
	if err := r.db.WithContext(ctx).Where("task_id = ?", row.ID).Order("id").Find(&woRows).Error; err != nil {
		return domain.Task{}, err
	}
	var srRows []SupervisorReviewRow
	if err := r.db.WithContext(ctx).Where("task_id = ?", row.ID).Order("id").Find(&srRows).Error; err != nil {
		return domain.Task{}, err
	}
	return taskFromRow(row, woRows, srRows), nil
}

// Save upserts the task row, appends worker outputs beyond what's already
// persisted (those are genuinely append-only), and upserts supervisor
// reviews by (task_id, revision) — a human override replaces the
// supervisor's own verdict for the current revision in place, and a
// count-based append would silently drop that replacement since the row
// count doesn't change.
func (r *PostgresTaskRepo) Save(ctx context.Context, task *domain.Task) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := rowFromTask(*task)
		if err := tx.Save(&row).Error; err != nil {
			return err
		}

		var existingWO int64
		if err := tx.Model(&WorkerOutputRow{}).Where("task_id = ?", task.ID).Count(&existingWO).Error; err != nil {
			return err
		}
		for _, wo := range task.WorkerOutputs[min(int(existingWO), len(task.WorkerOutputs)):] {
			rec := WorkerOutputRow{
				TaskID:    task.ID,
				AgentID:   wo.AgentID,
				AgentName: wo.AgentName,
				Output:    wo.Output,
				Revision:  wo.Revision,
				Timestamp: wo.Timestamp.Unix(),
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}

		for _, sr := range task.SupervisorReviews {
			var existing SupervisorReviewRow
			err := tx.Where("task_id = ? AND revision = ?", task.ID, sr.Revision).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				rec := SupervisorReviewRow{
					TaskID:    task.ID,
					Decision:  string(sr.Decision),
					Feedback:  sr.Feedback,
					Revision:  sr.Revision,
					Timestamp: sr.Timestamp.Unix(),
				}
				if err := tx.Create(&rec).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				existing.Decision = string(sr.Decision)
				existing.Feedback = sr.Feedback
				existing.Timestamp = sr.Timestamp.Unix()
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
			}
		}

		return nil
	})
}

func (r *PostgresTaskRepo) Count(ctx context.Context) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&TaskRow{}).Count(&n).Error
	return int(n), err
}

func (r *PostgresTaskRepo) CountByParent(ctx context.Context, parentID string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&TaskRow{}).Where("parent_task_id = ?", parentID).Count(&n).Error
	return int(n), err
}

func (r *PostgresTaskRepo) CountAutoCreated(ctx context.Context) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&TaskRow{}).Where("parent_task_id <> ''").Count(&n).Error
	return int(n), err
}

func (r *PostgresTaskRepo) Append(ctx context.Context, entry domain.ExecutionLogEntry) error {
	return r.db.WithContext(ctx).Create(&entry).Error
}

func (r *PostgresTaskRepo) Logs(ctx context.Context, taskID string) ([]domain.ExecutionLogEntry, error) {
	var entries []domain.ExecutionLogEntry
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id").Find(&entries).Error
	return entries, err
}

func (r *PostgresTaskRepo) WithLock(ctx context.Context, taskID string, fn func(*domain.Task) error) error {
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

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

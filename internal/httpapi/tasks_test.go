package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurek775/saladin/internal/agentsvc"
	"github.com/kurek775/saladin/internal/bus"
	"github.com/kurek775/saladin/internal/config"
	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/repository"
	"github.com/kurek775/saladin/internal/tasksvc"
)

func newTasksTestApp() (*fiber.App, *tasksvc.Service, repository.TaskRepository) {
	tasks := repository.NewMemoryTaskRepo()
	agents := agentsvc.New(repository.NewMemoryAgentRepo(), bus.New(16, nil))
	cfg := &config.Config{MaxRevisions: 3, MaxTaskDepth: 2, MaxChildTasksPerTask: 2, MaxTotalAutoTasks: 3}
	svc := tasksvc.New(tasks, agents, bus.New(16, nil), cfg, nil, func(fn func()) { fn() })

	h := NewTasksHandler(svc)
	app := fiber.New()
	app.Use(byokMiddleware)
	g := app.Group("/api/tasks")
	g.Get("", h.List)
	g.Get("/:id", h.Get)
	g.Get("/:id/logs", h.Logs)
	g.Post("", h.Create)
	g.Post("/:id/approve", h.Approve)
	return app, svc, tasks
}

func TestTasksHandler_Create_ReturnsCreatedTask(t *testing.T) {
	app, _, _ := newTasksTestApp()

	body, _ := json.Marshal(domain.TaskCreate{Description: "survey the repo"})
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var got domain.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "survey the repo", got.Description)
}

func TestTasksHandler_Create_LineageViolationReturns400(t *testing.T) {
	app, _, _ := newTasksTestApp()

	body, _ := json.Marshal(domain.TaskCreate{Description: "x", ParentTaskID: "missing-parent"})
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTasksHandler_Get_NotFoundReturns404(t *testing.T) {
	app, _, _ := newTasksTestApp()

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTasksHandler_Approve_NotPendingReturns400(t *testing.T) {
	app, _, tasks := newTasksTestApp()
	require.NoError(t, tasks.Save(context.Background(), &domain.Task{ID: "t1", Status: domain.TaskStatusRunning}))

	body, _ := json.Marshal(domain.HumanDecision{Decision: domain.DecisionApprove})
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/t1/approve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTasksHandler_Approve_ApprovesSuspendedTask(t *testing.T) {
	app, _, tasks := newTasksTestApp()
	require.NoError(t, tasks.Save(context.Background(), &domain.Task{
		ID:     "t1",
		Status: domain.TaskStatusPendingHumanApproval,
	}))

	body, _ := json.Marshal(domain.HumanDecision{Decision: domain.DecisionApprove})
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/t1/approve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got domain.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, domain.TaskStatusApproved, got.Status)
}

func TestTasksHandler_Logs_ReturnsExecutionLog(t *testing.T) {
	app, _, tasks := newTasksTestApp()
	require.NoError(t, tasks.Save(context.Background(), &domain.Task{ID: "t1"}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/t1/logs", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got []domain.ExecutionLogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Empty(t, got)
}

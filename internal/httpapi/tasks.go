package httpapi

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/repository"
	"github.com/kurek775/saladin/internal/tasksvc"
)

// TasksHandler handles task creation, listing, and the human-approval
// endpoint, grounded on the source's tasks.py and approval.py routes.
type TasksHandler struct {
	tasks *tasksvc.Service
}

func NewTasksHandler(tasks *tasksvc.Service) *TasksHandler {
	return &TasksHandler{tasks: tasks}
}

// List returns a page of tasks.
//
// GET /api/tasks?skip=0&limit=100
func (h *TasksHandler) List(c *fiber.Ctx) error {
	ctx := c.Context()
	skip, _ := strconv.Atoi(c.Query("skip", "0"))
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	if skip < 0 {
		skip = 0
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}

	tasks, err := h.tasks.List(ctx, skip, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(tasks)
}

// Get returns one task by ID.
//
// GET /api/tasks/:id
func (h *TasksHandler) Get(c *fiber.Ctx) error {
	ctx := c.Context()
	task, err := h.tasks.Get(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(task)
}

// Logs returns a task's durable execution-log trail.
//
// GET /api/tasks/:id/logs
func (h *TasksHandler) Logs(c *fiber.Ctx) error {
	ctx := c.Context()
	logs, err := h.tasks.Logs(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(logs)
}

// Create validates lineage, persists a task, and schedules its background
// FSM run. A lineage violation surfaces as 400 with the rule name.
//
// POST /api/tasks
func (h *TasksHandler) Create(c *fiber.Ctx) error {
	ctx := c.Context()
	var in domain.TaskCreate
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	task, err := h.tasks.Create(ctx, in, keysFromCtx(c))
	if err != nil {
		var autoErr *tasksvc.AutoTaskError
		if errors.As(err, &autoErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": autoErr.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

// Approve resolves a task suspended in pending_human_approval.
//
// POST /api/tasks/:id/approve
func (h *TasksHandler) Approve(c *fiber.Ctx) error {
	ctx := c.Context()
	var decision domain.HumanDecision
	if err := c.BodyParser(&decision); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	task, err := h.tasks.ApproveHuman(ctx, c.Params("id"), decision, keysFromCtx(c))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
		case errors.Is(err, tasksvc.ErrNotPendingApproval):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}
	return c.JSON(task)
}

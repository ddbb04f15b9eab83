package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kurek775/saladin/internal/scout"
	"github.com/kurek775/saladin/internal/tasksvc"
)

// ScoutHandler launches the self-improvement scout task, grounded on the
// source's scout.py launch endpoint.
type ScoutHandler struct {
	tasks *tasksvc.Service
}

func NewScoutHandler(tasks *tasksvc.Service) *ScoutHandler {
	return &ScoutHandler{tasks: tasks}
}

// Launch creates the scout's root task.
//
// POST /api/scout/launch
func (h *ScoutHandler) Launch(c *fiber.Ctx) error {
	ctx := c.Context()
	var req scout.LaunchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	result, err := scout.Launch(ctx, h.tasks, req, keysFromCtx(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(result)
}

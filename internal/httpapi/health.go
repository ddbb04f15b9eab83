package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// processStart is when this process started; Details reports uptime from it.
var processStart = time.Now()

// HealthHandler reports liveness and a detailed snapshot of live
// collaborators, grounded on the teacher's health.go plus metrics.go's
// pattern of exposing live-runner/subscriber counts.
type HealthHandler struct {
	deps Deps
}

func NewHealthHandler(deps Deps) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Status is a bare liveness probe.
//
// GET /api/health
func (h *HealthHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "saladin-server",
	})
}

// Details reports process uptime, repository counts, the configured
// provider/model, the storage backend, durable-resume availability, and the
// live WebSocket-subscriber count.
//
// GET /api/health/details
func (h *HealthHandler) Details(c *fiber.Ctx) error {
	ctx := c.Context()

	agentCount, _ := h.deps.Agents.Count(ctx)
	taskCount, _ := h.deps.Tasks.Count(ctx)

	return c.JSON(fiber.Map{
		"status":           "ok",
		"service":          "saladin-server",
		"uptime_seconds":   int(time.Since(processStart).Seconds()),
		"llm_provider":     h.deps.Cfg.LLMProvider,
		"llm_model":        h.deps.Cfg.LLMModel,
		"storage_backend":  h.deps.Cfg.StorageBackend,
		"durable_resume":   h.deps.Durable,
		"agent_count":      agentCount,
		"task_count":       taskCount,
		"ws_subscribers":   h.deps.Fabric.ActiveCount(),
	})
}

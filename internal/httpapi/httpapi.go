// Package httpapi wires the Fiber route table: agent/task CRUD, the scout
// launcher, settings (BYOK key validation, sandbox mode, queue stats), and
// the WebSocket event stream. Grounded on the teacher's internal/handlers
// package split (one handler struct per resource, constructed with its
// dependencies and registered by a single RegisterRoutes).
package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kurek775/saladin/internal/agentsvc"
	"github.com/kurek775/saladin/internal/broadcast"
	"github.com/kurek775/saladin/internal/config"
	"github.com/kurek775/saladin/internal/queue"
	"github.com/kurek775/saladin/internal/tasksvc"
)

// Deps bundles every collaborator the route table needs.
type Deps struct {
	Agents  *agentsvc.Service
	Tasks   *tasksvc.Service
	Fabric  *broadcast.Fabric
	Queue   queue.Queue
	Cfg     *config.Config
	Durable bool
}

// RegisterRoutes mounts every resource's handlers onto app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Use(byokMiddleware)

	health := NewHealthHandler(deps)
	app.Get("/api/health", health.Status)
	app.Get("/api/health/details", health.Details)

	agents := NewAgentsHandler(deps.Agents)
	agentGroup := app.Group("/api/agents")
	agentGroup.Get("", agents.List)
	agentGroup.Get("/:id", agents.Get)
	agentGroup.Post("", agents.Create)
	agentGroup.Patch("/:id", agents.Update)
	agentGroup.Delete("/:id", agents.Delete)

	tasks := NewTasksHandler(deps.Tasks)
	taskGroup := app.Group("/api/tasks")
	taskGroup.Get("", tasks.List)
	taskGroup.Get("/:id", tasks.Get)
	taskGroup.Get("/:id/logs", tasks.Logs)
	taskGroup.Post("", tasks.Create)
	taskGroup.Post("/:id/approve", tasks.Approve)

	scoutHandler := NewScoutHandler(deps.Tasks)
	app.Post("/api/scout/launch", scoutHandler.Launch)

	settings := NewSettingsHandler(deps.Cfg, deps.Queue)
	settingsGroup := app.Group("/api/settings")
	settingsGroup.Post("/validate-key", settings.ValidateKey)
	settingsGroup.Get("/sandbox-mode", settings.GetSandboxMode)
	settingsGroup.Put("/sandbox-mode", settings.SetSandboxMode)
	settingsGroup.Get("/queue-stats", settings.QueueStats)

	ws := NewWSHandler(deps.Fabric, deps.Cfg.WSHeartbeatInterval)
	app.Get("/ws", ws.Upgrade, ws.Stream)
}

package httpapi

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/kurek775/saladin/internal/agentsvc"
	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/repository"
)

// AgentsHandler handles agent CRUD, grounded on the source's agents route
// and the teacher's jobs.go handler shape.
type AgentsHandler struct {
	agents *agentsvc.Service
}

func NewAgentsHandler(agents *agentsvc.Service) *AgentsHandler {
	return &AgentsHandler{agents: agents}
}

// List returns a page of configured agents.
//
// GET /api/agents?skip=0&limit=100
func (h *AgentsHandler) List(c *fiber.Ctx) error {
	ctx := c.Context()
	skip, _ := strconv.Atoi(c.Query("skip", "0"))
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	if skip < 0 {
		skip = 0
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}

	agents, err := h.agents.List(ctx, skip, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(agents)
}

// Get returns one agent by ID.
//
// GET /api/agents/:id
func (h *AgentsHandler) Get(c *fiber.Ctx) error {
	ctx := c.Context()
	agent, err := h.agents.Get(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "agent not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(agent)
}

// Create registers a new agent.
//
// POST /api/agents
func (h *AgentsHandler) Create(c *fiber.Ctx) error {
	ctx := c.Context()
	var in domain.AgentCreate
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	agent, err := h.agents.Create(ctx, in)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(agent)
}

// Update applies a partial update to an agent.
//
// PATCH /api/agents/:id
func (h *AgentsHandler) Update(c *fiber.Ctx) error {
	ctx := c.Context()
	var in domain.AgentUpdate
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	agent, err := h.agents.Update(ctx, c.Params("id"), in)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "agent not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(agent)
}

// Delete removes an agent.
//
// DELETE /api/agents/:id
func (h *AgentsHandler) Delete(c *fiber.Ctx) error {
	ctx := c.Context()
	ok, err := h.agents.Delete(ctx, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "agent not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

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
	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/repository"
)

func newAgentsTestApp() (*fiber.App, *agentsvc.Service) {
	svc := agentsvc.New(repository.NewMemoryAgentRepo(), bus.New(16, nil))
	h := NewAgentsHandler(svc)

	app := fiber.New()
	g := app.Group("/api/agents")
	g.Get("", h.List)
	g.Get("/:id", h.Get)
	g.Post("", h.Create)
	g.Patch("/:id", h.Update)
	g.Delete("/:id", h.Delete)
	return app, svc
}

func TestAgentsHandler_Create_ReturnsCreatedAgent(t *testing.T) {
	app, _ := newAgentsTestApp()

	body, _ := json.Marshal(domain.AgentCreate{Name: "Scout", Role: domain.AgentRoleWorker})
	req := httptest.NewRequest(http.MethodPost, "/api/agents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var got domain.Agent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "Scout", got.Name)
	assert.NotEmpty(t, got.ID)
}

func TestAgentsHandler_Get_NotFoundReturns404(t *testing.T) {
	app, _ := newAgentsTestApp()

	req := httptest.NewRequest(http.MethodGet, "/api/agents/missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAgentsHandler_Create_InvalidBodyReturns400(t *testing.T) {
	app, _ := newAgentsTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/agents", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAgentsHandler_List_ReturnsPersistedAgents(t *testing.T) {
	app, svc := newAgentsTestApp()
	_, err := svc.Create(context.Background(), domain.AgentCreate{Name: "Worker A", Role: domain.AgentRoleWorker})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got []domain.Agent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Len(t, got, 1)
}

func TestAgentsHandler_Delete_RemovesAgent(t *testing.T) {
	app, svc := newAgentsTestApp()
	agent, err := svc.Create(context.Background(), domain.AgentCreate{Name: "Worker A", Role: domain.AgentRoleWorker})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/agents/"+agent.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	req2 := httptest.NewRequest(http.MethodGet, "/api/agents/"+agent.ID, nil)
	resp2, err := app.Test(req2)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp2.StatusCode)
}

package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kurek775/saladin/internal/config"
	"github.com/kurek775/saladin/internal/queue"
)

// SettingsHandler covers BYOK key validation, the sandbox-mode toggle, and
// queue statistics, grounded on the source's settings.py and the teacher's
// metrics.go queue-stats endpoint.
type SettingsHandler struct {
	cfg   *config.Config
	queue queue.Queue

	httpClient *http.Client
}

func NewSettingsHandler(cfg *config.Config, q queue.Queue) *SettingsHandler {
	return &SettingsHandler{cfg: cfg, queue: q, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

type validateKeyRequest struct {
	Provider string `json:"provider"`
	Key      string `json:"key"`
}

type validateKeyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidateKey makes a minimal API call against the named provider to check
// that the supplied key is accepted.
//
// POST /api/settings/validate-key
func (h *SettingsHandler) ValidateKey(c *fiber.Ctx) error {
	var req validateKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return c.JSON(validateKeyResponse{Valid: false, Error: "Key is empty"})
	}

	var httpReq *http.Request
	var err error
	switch provider {
	case "openai":
		httpReq, err = http.NewRequest(http.MethodGet, "https://api.openai.com/v1/models", nil)
		if err == nil {
			httpReq.Header.Set("Authorization", "Bearer "+key)
		}
	case "anthropic":
		httpReq, err = http.NewRequest(http.MethodGet, "https://api.anthropic.com/v1/models", nil)
		if err == nil {
			httpReq.Header.Set("x-api-key", key)
			httpReq.Header.Set("anthropic-version", "2023-06-01")
		}
	case "google":
		httpReq, err = http.NewRequest(http.MethodGet, "https://generativelanguage.googleapis.com/v1/models?key="+key, nil)
	default:
		return c.JSON(validateKeyResponse{Valid: false, Error: fmt.Sprintf("Unknown provider: %s", provider)})
	}
	if err != nil {
		return c.JSON(validateKeyResponse{Valid: false, Error: err.Error()})
	}

	resp, err := h.httpClient.Do(httpReq.WithContext(c.Context()))
	if err != nil {
		return c.JSON(validateKeyResponse{Valid: false, Error: err.Error()})
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return c.JSON(validateKeyResponse{Valid: true})
	}
	return c.JSON(validateKeyResponse{Valid: false, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)})
}

type sandboxModeResponse struct {
	Mode string `json:"mode"`
}

// GetSandboxMode reports the current sandbox mode.
//
// GET /api/settings/sandbox-mode
func (h *SettingsHandler) GetSandboxMode(c *fiber.Ctx) error {
	return c.JSON(sandboxModeResponse{Mode: h.cfg.SandboxMode})
}

// SetSandboxMode updates the process-wide sandbox mode. Only the settings
// endpoints read this field; the new value is what GetSandboxMode reports
// from then on.
//
// PUT /api/settings/sandbox-mode
func (h *SettingsHandler) SetSandboxMode(c *fiber.Ctx) error {
	var body sandboxModeResponse
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if body.Mode != "local" && body.Mode != "docker" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Mode must be 'local' or 'docker'"})
	}
	h.cfg.SandboxMode = body.Mode
	return c.JSON(sandboxModeResponse{Mode: h.cfg.SandboxMode})
}

type queueStatsResponse struct {
	Active    int `json:"active"`
	Pending   int `json:"pending"`
	Scheduled int `json:"scheduled"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// QueueStats reports live queue statistics for whichever backend is active.
//
// GET /api/settings/queue-stats
func (h *SettingsHandler) QueueStats(c *fiber.Ctx) error {
	ctx := c.Context()
	stats, err := h.queue.Stats(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(queueStatsResponse{
		Active:    stats.Active,
		Pending:   stats.Pending,
		Scheduled: stats.Scheduled,
		Completed: stats.Completed,
		Failed:    stats.Failed,
	})
}

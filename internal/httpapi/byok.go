package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kurek775/saladin/internal/reqctx"
)

// byokMiddleware reads BYOK credential headers into a reqctx.Keys and stores
// it on the fiber.Ctx, so every handler can retrieve it with keysFromCtx
// without re-parsing headers.
func byokMiddleware(c *fiber.Ctx) error {
	var keys reqctx.Keys
	keys.OpenAI = c.Get("X-OpenAI-Key")
	keys.Anthropic = c.Get("X-Anthropic-Key")
	keys.Google = c.Get("X-Google-Key")
	c.Locals("byokKeys", keys)
	return c.Next()
}

func keysFromCtx(c *fiber.Ctx) reqctx.Keys {
	if keys, ok := c.Locals("byokKeys").(reqctx.Keys); ok {
		return keys
	}
	return reqctx.Keys{}
}

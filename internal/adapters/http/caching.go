package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses that the
// handler left unset.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || len(c.Response().Header.Peek(fiber.HeaderCacheControl)) > 0 {
			return err
		}

		path := c.Path()
		var ttl string
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10"
		case path == "/metrics":
			ttl = "no-cache"
		case path == "/v1/counties":
			ttl = "public, max-age=3600" // registry changes only on deploy
		case strings.HasPrefix(path, "/v1/geocode"):
			ttl = "private, max-age=300"
		case strings.HasPrefix(path, "/v1/parcels/"):
			ttl = "public, max-age=600"
		case strings.HasPrefix(path, "/v1/sessions"), strings.HasPrefix(path, "/v1/surveys"):
			ttl = "no-store"
		case strings.HasPrefix(path, "/v1/"):
			ttl = "private, max-age=0"
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}
		return err
	}
}

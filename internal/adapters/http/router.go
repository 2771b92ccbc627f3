package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/siteintel/internal/pkg/metrics"
)

const (
	apiTimeout    = 15 * time.Second
	uploadTimeout = 60 * time.Second
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	api := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, apiTimeout) }
	upload := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, uploadTimeout) }

	// Format and geometry validation
	v1.Get("/counties", CountiesHandler(deps))
	v1.Post("/parcel-ids/validate", ValidateParcelIDHandler(deps))
	v1.Post("/parcel-ids/detect", DetectCountyHandler(deps))
	v1.Post("/geometry/validate", ValidateGeometryHandler(deps))

	// Geocoding
	v1.Get("/geocode", api(GeocodeHandler(deps)))
	v1.Get("/geocode/autocomplete", api(AutocompleteHandler(deps)))
	v1.Delete("/geocode/autocomplete/session", EndAutocompleteSessionHandler(deps))

	// Parcels and matching
	v1.Get("/parcels/search", api(SearchParcelsHandler(deps)))
	v1.Get("/parcels/:id", api(GetParcelHandler(deps)))
	v1.Post("/match", api(MatchHandler(deps)))

	// Surveys
	v1.Post("/surveys/extract", upload(ExtractSurveyHandler(deps)))
	v1.Post("/surveys/match", upload(MatchSurveyHandler(deps)))
	v1.Post("/surveys", api(UploadSurveyHandler(deps)))
	v1.Get("/surveys/:id", api(GetSurveyHandler(deps)))

	// Calibration
	v1.Post("/calibrations", api(CalibrateHandler(deps)))

	// Selection sessions
	v1.Post("/sessions", api(StartSessionHandler(deps)))
	v1.Get("/sessions/:id", api(GetSessionHandler(deps)))
	v1.Post("/sessions/:id/events", api(SessionEventHandler(deps)))
	v1.Post("/sessions/:id/change-parcel", api(ChangeParcelHandler(deps)))
	v1.Get("/sessions/:id/lock", api(SessionLockHandler(deps)))
	v1.Delete("/sessions/:id", AbandonSessionHandler(deps))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app)

	// WebSocket relay of parcel lock events
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}

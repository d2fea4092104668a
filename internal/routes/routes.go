package routes

import (
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/credential"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func Setup(
	app *fiber.App,
	codec *credential.Codec,
	resolver *identity.Resolver,
	healthHandler *handlers.HealthHandler,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	projectHandler *handlers.ProjectHandler,
	eventHandler *handlers.EventHandler,
	deviceHandler *handlers.DeviceHandler,
	metricHandler *handlers.MetricHandler,
) {
	api := app.Group("/api/v1")

	// General API rate limiter: 60 req/min per IP. Ingestion has its own.
	api.Use(limiter.New(limiter.Config{
		Next:              isIngestRoute,
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Auth, public. Stricter limit: 10 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/token", authHandler.Token)

	bearer := middleware.JWTProtected(codec)
	api.Post("/auth/logout", bearer, authHandler.Logout)
	api.Get("/auth/me", bearer, authHandler.Me)
	api.Put("/auth/password", bearer, authHandler.ChangePassword)
	api.Get("/auth/sessions", bearer, authHandler.Sessions)

	users := api.Group("/users", bearer)
	users.Get("/", userHandler.List)
	users.Post("/", userHandler.Create)
	users.Get("/:id", userHandler.Get)
	users.Put("/:id", userHandler.Update)

	projects := api.Group("/projects", bearer)
	projects.Get("/", projectHandler.List)
	projects.Post("/", projectHandler.Create)
	projects.Get("/:id", projectHandler.Get)
	projects.Put("/:id", projectHandler.Update)
	projects.Delete("/:id", projectHandler.Delete)
	projects.Post("/:id/apikey", projectHandler.RegenerateAPIKey)
	projects.Post("/:id/apikey/token", projectHandler.IssueKeyToken)
	projects.Get("/:id/members", projectHandler.ListMembers)
	projects.Post("/:id/members", projectHandler.AddMember)
	projects.Put("/:id/members/:user_id", projectHandler.UpdateMember)
	projects.Delete("/:id/members/:user_id", projectHandler.RemoveMember)

	// Ingestion: api_key bearer token or X-API-Key, limited per credential
	ingestLimit := limiter.New(limiter.Config{
		Max:               IngestRateLimit,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      ingestKey,
	})
	ingest := middleware.IngestAuth(resolver)
	api.Post("/events", ingestLimit, ingest, eventHandler.Create)
	api.Post("/events/batch", ingestLimit, ingest, eventHandler.CreateBatch)
	api.Post("/events/session/start", ingestLimit, ingest, eventHandler.SessionStart())
	api.Post("/events/session/end", ingestLimit, ingest, eventHandler.SessionEnd())
	api.Post("/events/install", ingestLimit, ingest, eventHandler.Install())
	api.Post("/metrics/record", ingestLimit, ingest, metricHandler.Record)

	api.Get("/events", bearer, eventHandler.List)
	api.Get("/events/:id", bearer, eventHandler.Get)

	api.Get("/devices", bearer, deviceHandler.List)
	api.Get("/devices/:id", bearer, deviceHandler.Get)

	api.Get("/metrics", bearer, metricHandler.ListRecords)
	api.Post("/metrics/rollup", bearer, metricHandler.Rollup)
	api.Get("/metrics/definitions", bearer, metricHandler.ListDefinitions)
	api.Post("/metrics/definitions", bearer, metricHandler.CreateDefinition)
	api.Get("/metrics/definitions/:id", bearer, metricHandler.GetDefinition)
	api.Put("/metrics/definitions/:id", bearer, metricHandler.UpdateDefinition)
	api.Delete("/metrics/definitions/:id", bearer, metricHandler.DeleteDefinition)
	api.Get("/metrics/definitions/:id/data", bearer, metricHandler.Data)
}

// IngestRateLimit is the per-credential request budget per minute on
// ingestion routes.
const IngestRateLimit = 600

func isIngestRoute(c *fiber.Ctx) bool {
	if c.Method() != fiber.MethodPost {
		return false
	}
	path := strings.TrimSuffix(c.Path(), "/")
	switch path {
	case "/api/v1/events", "/api/v1/events/batch", "/api/v1/events/session/start",
		"/api/v1/events/session/end", "/api/v1/events/install", "/api/v1/metrics/record":
		return true
	}
	return false
}

// ingestKey buckets by the presented credential so SDK clients sharing
// one address do not share a budget. Requests without one fall back to
// the client IP.
func ingestKey(c *fiber.Ctx) string {
	if auth := c.Get(fiber.HeaderAuthorization); auth != "" {
		return "bearer:" + credential.HashToken(auth)
	}
	if key := c.Get(middleware.APIKeyHeader); key != "" {
		return "key:" + credential.HashToken(key)
	}
	return "ip:" + c.IP()
}

package http

import (
	"fmt"
	"strings"
	"time"

	"scoreboard/internal/identity"
	"scoreboard/internal/server/core"
	"scoreboard/internal/server/processor"
	"scoreboard/internal/server/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hashicorp/go-hclog"
)

const rateLimitRate = 20 // req/sec

// Options tunes the fiber app
type Options struct {
	Dev          bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// MetricsPath serves prometheus metrics when set
	MetricsPath string
	// AnonymousWrites lets unauthenticated clients write as a development
	// operator; only meaningful without account storage
	AnonymousWrites bool
	// AccessLog writes one line per request
	AccessLog bool
	// RateLimit is requests per second per client on the API; zero uses
	// the default and a negative value disables limiting
	RateLimit int
}

// DefaultOptions matches the long-poll timeout with a larger write timeout
func DefaultOptions() Options {
	return Options{
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
		MetricsPath:  "/metrics",
		AccessLog:    true,
	}
}

// HTTPHandler handles HTTP requests and routes them to the processor
type HTTPHandler struct {
	proc *processor.Processor
	svc  *service.Service
	log  hclog.Logger
}

func NewHTTPHandler(proc *processor.Processor, svc *service.Service) *HTTPHandler {
	return &HTTPHandler{proc: proc, svc: svc, log: svc.Logger().Named("http")}
}

func NewFiberApp(proc *processor.Processor, svc *service.Service, opts Options) *fiber.App {
	h := NewHTTPHandler(proc, svc)

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		IdleTimeout:           opts.IdleTimeout,
		DisableStartupMessage: true,
	})

	// Global middleware (order matters)
	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health and metrics (no rate limit)
	app.Get("/health", h.Health)
	if opts.MetricsPath != "" && svc.Metrics() != nil {
		app.Get(opts.MetricsPath, adaptor.HTTPHandler(svc.Metrics().Handler()))
	}

	api := app.Group("/api/v1")

	validateToken := TokenValidator(svc.ValidateToken)
	requireAuth := AuthRequired(validateToken)
	if opts.AnonymousWrites {
		requireAuth = DevAuth(validateToken, &identity.Identity{UID: "dev", Email: "dev@localhost"})
	}

	auth := api.Group("/auth")
	auth.Post("/register", limitPerMinute(5, "registrations"), h.RegisterHandler)
	auth.Post("/login", limitPerMinute(10, "login attempts"), h.LoginHandler)
	auth.Get("/me", AuthRequired(validateToken), h.GetCurrentUserHandler)
	auth.Post("/logout", AuthRequired(validateToken), h.LogoutHandler)

	if opts.RateLimit >= 0 {
		api.Use(apiLimiter(opts))
	}

	api.Use(contentTypeValidator)
	api.Use(validationMiddleware)

	// Public reads for dashboards and overlays
	api.Get("/widget/:matchId", h.Widget)
	api.Get("/matches", h.ListMatches)
	api.Get("/matches/:matchId", h.GetMatch)
	api.Get("/matches/:matchId/goals", h.ListGoals)
	api.Get("/teams", h.ListTeams)
	api.Get("/teams/:teamId", h.GetTeam)
	api.Get("/teams/:teamId/players", h.ListPlayers)
	api.Get("/teams/:teamId/coach", h.GetCoach)
	api.Get("/championships", h.ListChampionships)
	api.Get("/settings/default-team", h.GetDefaultTeam)

	// Operator commands
	api.Post("/matches", requireAuth, h.CreateMatch)
	api.Delete("/matches/:matchId", requireAuth, h.DeleteMatch)
	api.Post("/matches/:matchId/halves/:half/start", requireAuth, h.StartHalf)
	api.Post("/matches/:matchId/halves/:half/stop", requireAuth, h.StopHalf)
	api.Post("/matches/:matchId/end", requireAuth, h.EndMatch)
	api.Post("/matches/:matchId/score", requireAuth, h.ChangeScore)
	api.Put("/matches/:matchId/date", requireAuth, h.UpdateDate)
	api.Post("/matches/:matchId/goals", requireAuth, h.RecordGoal)
	api.Post("/matches/:matchId/goals/removal", requireAuth, h.RequestRemoval)
	api.Delete("/matches/:matchId/goals/:goalId", requireAuth, h.RemoveGoal)

	api.Post("/teams", requireAuth, h.SaveTeam)
	api.Delete("/teams/:teamId", requireAuth, h.DeleteTeam)
	api.Put("/teams/:teamId/badges", requireAuth, h.SetBadges)
	api.Post("/teams/:teamId/players", requireAuth, h.AddPlayer)
	api.Put("/teams/:teamId/coach", requireAuth, h.SaveCoach)
	api.Delete("/teams/:teamId/coach", requireAuth, h.DeleteCoach)
	api.Put("/players/:playerId", requireAuth, h.UpdatePlayer)
	api.Post("/players/:playerId/absent", requireAuth, h.ToggleAbsent)
	api.Delete("/players/:playerId", requireAuth, h.DeletePlayer)
	api.Post("/championships", requireAuth, h.SaveChampionship)
	api.Delete("/championships/:key", requireAuth, h.DeleteChampionship)
	api.Put("/settings/default-team", requireAuth, h.SetDefaultTeam)

	// Raw store access for remote store clients
	api.Get("/store/:collection", h.GetCollection)
	api.Get("/store/:collection/:key", h.GetNode)
	api.Post("/store/:collection", requireAuth, h.PushNode)
	api.Put("/store/:collection/:key", requireAuth, h.SetNode)
	api.Patch("/store/:collection/:key", requireAuth, h.MergeNode)
	api.Delete("/store/:collection", requireAuth, h.DeleteNode)
	api.Delete("/store/:collection/:key", requireAuth, h.DeleteNode)
	api.Post("/commit", requireAuth, h.Commit)

	return app
}

func apiLimiter(opts Options) fiber.Handler {
	maxReq := opts.RateLimit
	if maxReq == 0 {
		maxReq = rateLimitRate
		if opts.Dev {
			maxReq = rateLimitRate * 2
		}
	}
	return limiter.New(limiter.Config{
		Max:        maxReq,
		Expiration: 1 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			if xff := c.Get("X-Forwarded-For"); xff != "" {
				if idx := strings.Index(xff, ","); idx != -1 {
					return strings.TrimSpace(xff[:idx])
				}
				return xff
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: fmt.Sprintf("%d requests per second allowed", maxReq),
			})
		},
	})
}

func limitPerMinute(n int, what string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        n,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: fmt.Sprintf("%d %s per minute allowed", n, what),
			})
		},
	})
}

// contentTypeValidator ensures requests with a body send application/json
func contentTypeValidator(c *fiber.Ctx) error {
	method := c.Method()
	if method == fiber.MethodPost || method == fiber.MethodPut || method == fiber.MethodPatch {
		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(core.ErrorResponse{
				Error:   "unsupported media type",
				Code:    core.ErrInvalidContent,
				Details: "Content-Type must be application/json",
			})
		}
	}
	return c.Next()
}

// customErrorHandler provides consistent error responses
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	response := core.ErrorResponse{
		Error: "internal server error",
		Code:  core.ErrInternalError,
	}

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		response.Error = e.Message

		switch code {
		case fiber.StatusNotFound:
			response.Code = core.ErrNotFound
		case fiber.StatusBadRequest, fiber.StatusMethodNotAllowed:
			response.Code = core.ErrInvalidRequest
		case fiber.StatusTooManyRequests:
			response.Code = core.ErrRateLimitExceeded
		}
	}

	return c.Status(code).JSON(response)
}

// Health check endpoint with storage status
func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "healthy",
		"time":     time.Now().Unix(),
		"storage":  h.svc.GetStorageHealth(),
		"revision": h.svc.Revision(),
	})
}

// respond writes a processor response, 204 when there is no data
func respond(c *fiber.Ctx, resp processor.ProcessorResponse, status int) error {
	if !resp.Success {
		return c.Status(core.Status(resp.Error.Code)).JSON(resp.Error)
	}
	if resp.Data == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(status).JSON(resp.Data)
}

func badRequest(c *fiber.Ctx, message, details string) error {
	return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
		Error:   message,
		Code:    core.ErrInvalidRequest,
		Details: details,
	})
}

// errorJSON classifies a component error into a status and code
func errorJSON(c *fiber.Ctx, err error) error {
	code, status := core.Classify(err)
	return c.Status(status).JSON(core.ErrorResponse{Error: err.Error(), Code: code})
}

// paramID reads a key-shaped path parameter or writes a 400
func paramID(c *fiber.Ctx, name string) (string, bool) {
	id := c.Params(name)
	if !validKey(id) {
		_ = badRequest(c, "invalid "+name+" format", name+" must be a single store key")
		return "", false
	}
	return id, true
}

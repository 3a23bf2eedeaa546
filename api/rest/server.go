// Package rest provides the REST API server for the forecast engine.
package rest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"sfs/forecast-engine/internal/master"
	"sfs/forecast-engine/internal/store"
)

// Server represents the REST API server.
type Server struct {
	app      *fiber.App
	master   master.Master
	registry master.WorkerRegistry
	config   *Config

	// store and cache are optional; without them datasets live in
	// memory and reports are served from the master only.
	store *store.Store
	cache *store.Cache

	nodeID string

	// datasets is the in-memory catalog used when no store is configured.
	datasets   map[string]*store.Dataset
	datasetsMu sync.RWMutex

	// commands holds pending control commands per worker, delivered
	// with the next heartbeat response.
	commands   map[string][]*ControlCommand
	commandsMu sync.Mutex
}

// Config holds the configuration for the REST API server.
type Config struct {
	// Address is the address to listen on (e.g., ":8080").
	Address string `yaml:"address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// BodyLimit caps request body size; dataset uploads go through this.
	BodyLimit int `yaml:"body_limit"`

	// EnableCORS enables Cross-Origin Resource Sharing.
	EnableCORS bool `yaml:"enable_cors"`

	// DataDir is where uploaded datasets are stored.
	DataDir string `yaml:"data_dir"`

	// HeartbeatInterval is the interval workers are told to heartbeat at.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// Auth holds authentication configuration.
	Auth *AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Enabled enables authentication.
	Enabled bool `yaml:"enabled"`

	// Type is the authentication type (e.g., "api_key", "jwt").
	Type string `yaml:"type"`

	// APIKey is the API key for api_key authentication.
	APIKey string `yaml:"api_key,omitempty"`

	// JWTSecret is the secret for JWT authentication.
	JWTSecret string `yaml:"jwt_secret,omitempty"`
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8066",
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		BodyLimit:         256 * 1024 * 1024,
		EnableCORS:        true,
		DataDir:           "data",
		HeartbeatInterval: 5 * time.Second,
		Auth:              nil,
	}
}

// Option customizes a Server.
type Option func(*Server)

// WithStore attaches a persistence layer to the server.
func WithStore(st *store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithCache attaches a report cache to the server.
func WithCache(c *store.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// NewServer creates a new REST API server.
func NewServer(m master.Master, registry master.WorkerRegistry, config *Config, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 5 * time.Second
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		BodyLimit:    config.BodyLimit,
		ErrorHandler: customErrorHandler,
		AppName:      "Forecast Engine API",
	})

	server := &Server{
		app:      app,
		master:   m,
		registry: registry,
		config:   config,
		nodeID:   uuid.New().String(),
		datasets: make(map[string]*store.Dataset),
		commands: make(map[string][]*ControlCommand),
	}

	for _, opt := range opts {
		opt(server)
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	// Recovery middleware - recovers from panics
	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
	}))

	// Logger middleware - logs HTTP requests
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS middleware
	if s.config.EnableCORS {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins:     "*",
			AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
			AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-API-Key",
			AllowCredentials: false,
			MaxAge:           86400,
		}))
	}

	// Authentication middleware (if enabled)
	if s.config.Auth != nil && s.config.Auth.Enabled {
		s.app.Use(s.authMiddleware())
	}
}

// authMiddleware returns the authentication middleware.
func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip authentication for health check endpoints
		path := c.Path()
		if path == "/health" || path == "/ready" || path == "/api/v1/health" || path == "/api/v1/ready" {
			return c.Next()
		}

		if s.config.Auth == nil || !s.config.Auth.Enabled {
			return c.Next()
		}

		switch s.config.Auth.Type {
		case "api_key":
			return s.apiKeyAuth(c)
		case "jwt":
			return s.jwtAuth(c)
		default:
			return c.Next()
		}
	}
}

// apiKeyAuth validates API key authentication.
func (s *Server) apiKeyAuth(c *fiber.Ctx) error {
	apiKey := c.Get("X-API-Key")
	if apiKey == "" {
		apiKey = c.Query("api_key")
	}

	if apiKey == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "API key is required",
		})
	}

	if apiKey != s.config.Auth.APIKey {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "Invalid API key",
		})
	}

	return c.Next()
}

// jwtAuth validates JWT authentication.
func (s *Server) jwtAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "Authorization header is required",
		})
	}

	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "Invalid authorization header format",
		})
	}

	return c.Next()
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	// Health check endpoints
	s.app.Get("/health", s.healthCheck)
	s.app.Get("/ready", s.readyCheck)

	// API v1 routes
	api := s.app.Group("/api/v1")

	// Health check endpoints (also under /api/v1)
	api.Get("/health", s.healthCheck)
	api.Get("/ready", s.readyCheck)

	// Dataset routes
	api.Post("/datasets", s.uploadDataset)
	api.Get("/datasets", s.listDatasets)
	api.Get("/datasets/:id", s.getDataset)
	api.Get("/datasets/:id/health", s.getDatasetHealth)
	api.Delete("/datasets/:id", s.deleteDataset)

	// Job routes
	api.Post("/jobs", s.submitJob)
	api.Get("/jobs", s.listJobs)
	api.Get("/jobs/:id", s.getJob)
	api.Delete("/jobs/:id", s.cancelJob)
	api.Post("/jobs/:id/pause", s.pauseJob)
	api.Post("/jobs/:id/resume", s.resumeJob)

	// Report routes
	api.Get("/jobs/:id/report", s.getReport)
	api.Get("/jobs/:id/forecast.csv", s.getForecastCSV)
	api.Get("/jobs/:id/results.csv", s.getResultsCSV)

	// Worker routes
	api.Get("/workers", s.listWorkers)
	api.Get("/workers/:id", s.getWorker)
	api.Post("/workers/:id/drain", s.drainWorker)

	// Worker communication routes (HTTP REST API)
	api.Post("/workers/register", s.registerWorker)
	api.Post("/workers/:id/heartbeat", s.workerHeartbeat)
	api.Get("/workers/:id/tasks", s.leaseTasks)
	api.Post("/workers/:id/unregister", s.unregisterWorker)

	// Task result routes
	api.Post("/tasks/:id/result", s.receiveTaskResult)
}

// Start starts the REST API server.
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// StartWithContext starts the REST API server with context support.
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.app.Listen(s.config.Address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// ShutdownWithTimeout gracefully shuts down the server with a timeout.
func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// enqueueCommand queues a control command for a worker.
func (s *Server) enqueueCommand(workerID string, cmd *ControlCommand) {
	s.commandsMu.Lock()
	defer s.commandsMu.Unlock()
	s.commands[workerID] = append(s.commands[workerID], cmd)
}

// takeCommands drains the pending commands for a worker.
func (s *Server) takeCommands(workerID string) []*ControlCommand {
	s.commandsMu.Lock()
	defer s.commandsMu.Unlock()
	cmds := s.commands[workerID]
	delete(s.commands, workerID)
	return cmds
}

// customErrorHandler handles errors returned by handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	// Default to 500 Internal Server Error
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}

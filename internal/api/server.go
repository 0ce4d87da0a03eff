package api

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/david/product-scout/internal/auth"
	"github.com/david/product-scout/internal/db"
	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/pipeline"
	"github.com/david/product-scout/internal/settings"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the storage surface used by the handlers. Both db.Store and
// db.MemoryStore satisfy it.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (models.Product, error)
	FindPaged(ctx context.Context, params db.ListParams) (db.ListResult, error)
	Save(ctx context.Context, p models.Product) (models.Product, bool, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	SetRecommendation(ctx context.Context, id uuid.UUID, rec models.Recommendation) error
	Stats(ctx context.Context) (models.Stats, error)
	ListRuns(ctx context.Context, limit int) ([]models.PipelineRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (models.PipelineRun, error)
	Ping(ctx context.Context) error
}

type SettingsStore interface {
	Load(ctx context.Context) settings.Settings
	Save(ctx context.Context, s settings.Settings) error
}

type Runner interface {
	RunStage(ctx context.Context, trigger string, stage models.Stage) (pipeline.RunReport, error)
}

type Deps struct {
	Store    Store
	Settings SettingsStore
	Runner   Runner
	Auth     *auth.Service
	Platform pipeline.PlatformFactory
	Supplier Supplier
}

type Server struct {
	Store    Store
	Settings SettingsStore
	Runner   Runner
	Auth     *auth.Service
	Platform pipeline.PlatformFactory
	Supplier Supplier
	Echo     *echo.Echo
	Now      func() time.Time

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Stage     models.Stage       `json:"stage"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		allowedOrigins = append(allowedOrigins, splitCSV(extra)...)
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Store:    deps.Store,
		Settings: deps.Settings,
		Runner:   deps.Runner,
		Auth:     deps.Auth,
		Platform: deps.Platform,
		Supplier: deps.Supplier,
		Echo:     e,
		Now:      time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/health/ready", s.handleReady)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.Echo.Group("/api/v1")
	api.GET("/products", s.handleListProducts)
	api.GET("/products/:id", s.handleGetProduct)
	api.GET("/stats", s.handleGetStats)
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)
	api.GET("/settings", s.handleGetSettings)
	api.GET("/settings/crawler", s.handleGetCrawlerSettings)
	api.GET("/integrations/status", s.handleIntegrationStatus)
	api.POST("/auth/token", s.handleIssueToken)

	admin := api.Group("")
	admin.Use(s.Auth.Middleware)
	admin.POST("/products", s.handleCreateProduct)
	admin.DELETE("/products/:id", s.handleDeleteProduct)
	admin.PATCH("/products/:id/recommendation", s.handleSetRecommendation)
	admin.POST("/runs", s.handleTriggerRun)
	admin.POST("/runs/:stage", s.handleTriggerStage)
	admin.GET("/runs/jobs/:id", s.handleJobStatus)
	admin.PUT("/settings", s.handlePutSettings)
	admin.PUT("/settings/crawler", s.handlePutCrawlerSettings)
	admin.POST("/integrations/test", s.handleIntegrationTest)
	admin.POST("/integrations/search-aliexpress", s.handleSearchAliExpress)
	admin.GET("/integrations/aliexpress/products/:id", s.handleAliExpressProduct)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		s.runningJob.Cancel()
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleReady(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

type tokenRequest struct {
	Secret  string `json:"secret"`
	Subject string `json:"subject"`
}

func (s *Server) handleIssueToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	token, expires, err := s.Auth.IssueToken(req.Secret, req.Subject)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"token": token, "expires_at": expires})
}

// splitCSV splits a comma-separated value into trimmed non-empty strings.
func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to workflow and service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/gin-gonic/gin"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	BasePath     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		BasePath:     "/api",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Services are the application entry points the routes call into
type Services struct {
	Reports       service.ReportService
	Engine        workflow.Engine
	Notifications service.NotificationService
	// Metrics is mounted at /metrics when set
	Metrics http.Handler
	// Health reports component status to the health check when set
	Health HealthProbe
}

// HealthProbe reports overall health and a per-component breakdown
type HealthProbe func(ctx context.Context) (bool, interface{})

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(corsMiddleware())
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(
		s.services.Reports,
		s.services.Engine,
		s.services.Notifications,
		s.services.Health,
		s.logger,
	)

	s.router.GET("/health", handlers.HealthCheck)
	if s.services.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.services.Metrics))
	}

	base := normalizeBasePath(s.config.BasePath)
	api := s.router.Group(base)
	{
		if base != "/" {
			api.GET("/health", handlers.HealthCheck)
		}

		// Employees
		api.PUT("/employees/:id", handlers.UpsertEmployee)
		api.GET("/employees/:id/reports", handlers.ListEmployeeReports)

		// Reports
		api.POST("/reports", handlers.CreateReport)
		api.GET("/reports/:id", handlers.GetReport)
		api.POST("/reports/:id/submit", handlers.SubmitReport)
		api.POST("/reports/:id/decisions", handlers.Decide)
		api.POST("/reports/:id/resubmit", handlers.ResubmitReport)
		api.POST("/reports/:id/comments", handlers.AddComment)

		// Workflow
		api.POST("/workflow/steps/:id/delegate", handlers.DelegateStep)
		api.GET("/approvals/pending", handlers.ListPendingApprovals)
		api.POST("/reminders/scan", handlers.ScanReminders)

		// Notifications
		api.GET("/notifications/:id", handlers.ListNotifications)
		api.GET("/notifications/:id/count", handlers.CountUnread)
		api.PUT("/notifications/:id/read", handlers.MarkRead)
	}
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr, "base_path", s.config.BasePath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

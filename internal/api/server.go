// Package api exposes the manager over HTTP. Handlers translate between
// JSON and manager calls; orchestration decisions all live in the manager.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nimbuside/nimbus/internal/auth"
	"github.com/nimbuside/nimbus/internal/manager"
	"github.com/nimbuside/nimbus/internal/metrics"
	"github.com/nimbuside/nimbus/internal/provider"
)

// Server holds the API server dependencies.
type Server struct {
	echo    *echo.Echo
	manager *manager.Manager
}

// NewServer creates a new API server with all routes configured.
func NewServer(mgr *manager.Manager, apiKey string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		manager: mgr,
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	// Health and metrics (no auth)
	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API routes (with auth)
	api := e.Group("")
	api.Use(auth.APIKeyMiddleware(apiKey))

	// Sandbox lifecycle
	api.POST("/sandboxes", s.createSandbox)
	api.GET("/sandboxes", s.listSandboxes)
	api.GET("/sandboxes/:id", s.getSandbox)
	api.PATCH("/sandboxes/:id", s.updateSandbox)
	api.DELETE("/sandboxes/:id", s.deleteSandbox)
	api.POST("/sandboxes/:id/start", s.startSandbox)
	api.POST("/sandboxes/:id/stop", s.stopSandbox)
	api.POST("/sandboxes/:id/restart", s.restartSandbox)

	// Commands
	api.POST("/sandboxes/:id/exec", s.execCommand)

	// Filesystem
	api.GET("/sandboxes/:id/files", s.listFiles)
	api.GET("/sandboxes/:id/files/content", s.readFile)
	api.PUT("/sandboxes/:id/files/content", s.writeFile)
	api.DELETE("/sandboxes/:id/files", s.deleteFile)
	api.POST("/sandboxes/:id/files/mkdir", s.makeDirectory)
	api.POST("/sandboxes/:id/files/upload", s.uploadFiles)
	api.POST("/sandboxes/:id/files/download", s.downloadFiles)

	// Snapshots
	api.POST("/sandboxes/:id/snapshots", s.createSnapshot)
	api.POST("/sandboxes/:id/snapshots/:snapshotID/restore", s.restoreSnapshot)

	// Monitoring
	api.GET("/sandboxes/:id/metrics", s.sandboxMetrics)
	api.GET("/sandboxes/:id/logs", s.sandboxLogs)

	// Port forwarding
	api.POST("/sandboxes/:id/ports", s.forwardPort)

	// Sessions and providers
	api.GET("/sessions", s.listSessions)
	api.GET("/sessions/:id", s.getSession)
	api.GET("/providers", s.listProviders)
	api.GET("/providers/health", s.providersHealth)
	api.GET("/providers/:name/capabilities", s.providerCapabilities)

	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	return s.echo.Close()
}

// Handler exposes the underlying echo mux for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps orchestration errors to HTTP statuses: unknown sandboxes are
// 404, capability misses 422, unreachable backends 503, the rest 500.
func fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, provider.ErrSandboxNotFound):
		status = http.StatusNotFound
	case provider.IsUnsupported(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrProviderUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, provider.ErrCreationFailed):
		status = http.StatusBadGateway
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentfleet/substrate/pkg/database"
	"github.com/agentfleet/substrate/pkg/version"
)

// StatusFunc produces the service-specific snapshot served by GET /status.
type StatusFunc func(ctx context.Context) (any, error)

// Server is the diagnostics HTTP surface of a substrate daemon. It is not
// an MCP transport; a daemon starts one only when its HTTP addr is
// configured.
type Server struct {
	db     *database.Client
	status StatusFunc
	http   *http.Server
}

// NewServer creates the ops server. db may be nil for daemons without a
// database, status may be nil for daemons without a snapshot.
func NewServer(db *database.Client, status StatusFunc) *Server {
	s := &Server{db: db, status: status}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), securityHeaders())
	router.GET("/health", s.healthHandler)
	router.GET("/status", s.statusHandler)

	s.http = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves on addr. It blocks like http.Server.ListenAndServe and
// returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Database *database.HealthStatus `json:"database,omitempty"`
}

// healthHandler reports process liveness. Only the daemon's own database is
// checked; provider CLIs and other external dependencies are excluded so an
// orchestrator never restarts the daemon over someone else's outage.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Version: version.GitCommit}

	if s.db != nil {
		dbHealth, err := s.db.Health(ctx)
		resp.Database = dbHealth
		if err != nil {
			resp.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) statusHandler(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	snapshot, err := s.status(ctx)
	if err != nil {
		slog.Error("Status snapshot failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

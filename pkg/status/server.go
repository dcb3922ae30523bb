// Package status serves health, server info and metrics over HTTP next to
// the file exchange listener.
package status

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/denysvitali/filexchange/internal/models"
	"github.com/denysvitali/filexchange/pkg/config"
	"github.com/denysvitali/filexchange/pkg/metrics"
)

// Source is the running file exchange server being reported on
type Source interface {
	StartTime() time.Time
	ActiveConnections() int
	RootDir() string
}

// Server represents the HTTP status server
type Server struct {
	config *config.Config
	logger *logrus.Logger
	source Source
	engine *gin.Engine
	server *http.Server
}

// New creates a new status server
func New(cfg *config.Config, source Source, logger *logrus.Logger) *Server {
	// Set gin mode based on log level
	if logger.Level == logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ginLogger(logger))

	if cfg.Telemetry.Enabled {
		engine.Use(otelgin.Middleware("filexchange"))
	}

	s := &Server{
		config: cfg,
		logger: logger,
		source: source,
		engine: engine,
	}
	s.setupRoutes()

	return s
}

// Start serves until Shutdown; it then returns http.ErrServerClosed
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Status.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting status server on port %d", s.config.Status.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the status server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Engine returns the gin engine for testing purposes
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/alive", s.handleAlive)
	s.engine.GET("/server_info", s.handleServerInfo)
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))
}

func (s *Server) handleAlive(c *gin.Context) {
	if s.source == nil {
		c.JSON(http.StatusOK, gin.H{"status": "not initialized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleServerInfo(c *gin.Context) {
	if s.source == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server not initialized"})
		return
	}

	uptime := time.Since(s.source.StartTime()).Seconds()
	response := models.ServerInfoResponse{
		Uptime:            uptime,
		ActiveConnections: s.source.ActiveConnections(),
		RootDir:           s.source.RootDir(),
		Resources:         systemResources(s.source.RootDir(), s.logger),
	}

	s.logger.Debugf("Server info: uptime=%.2fs, connections=%d", uptime, response.ActiveConnections)
	c.JSON(http.StatusOK, response)
}

// ginLogger returns a gin middleware for logging with logrus
func ginLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"status":  statusCode,
			"method":  c.Request.Method,
			"path":    path,
			"ip":      c.ClientIP(),
			"latency": time.Since(start),
		})

		if raw != "" {
			entry = entry.WithField("query", raw)
		}

		if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Debug("Request completed")
		}
	}
}

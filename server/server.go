// Package server exposes topics, posts, the schedule and on-demand generation
// over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"postpilot/metrics"
	"postpilot/pkg/postpilot"
	"time"

	"github.com/gin-gonic/gin"
)

// TopicRegistry manages candidate topics.
type TopicRegistry interface {
	Add(name string) (postpilot.Topic, error)
	List() []postpilot.Topic
	Toggle(id string) (postpilot.Topic, error)
	Delete(id string) error
}

// PostStore owns post lifecycle transitions.
type PostStore interface {
	Get(id string) (postpilot.Post, error)
	List(status postpilot.Status) []postpilot.Post
	Approve(ctx context.Context, id string) (string, error)
	Reject(id string) error
}

// Scheduler owns the recurring generation schedule.
type Scheduler interface {
	Update(cfg postpilot.ScheduleConfig) (postpilot.ScheduleConfig, error)
	Config() postpilot.ScheduleConfig
	NextRun() (time.Time, bool)
}

// Generator creates one pending post.
type Generator interface {
	Generate(ctx context.Context, topic string) (postpilot.Post, error)
}

// Importer extracts topic candidates from a web page.
type Importer interface {
	Headlines(ctx context.Context, pageURL string) ([]string, error)
}

// Server handles HTTP requests.
type Server struct {
	topics    TopicRegistry
	posts     PostStore
	scheduler Scheduler
	generator Generator
	importer  Importer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Topics    TopicRegistry
	Posts     PostStore
	Scheduler Scheduler
	Generator Generator
	Importer  Importer // Optional; topic import is disabled when nil
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		topics:    cfg.Topics,
		posts:     cfg.Posts,
		scheduler: cfg.Scheduler,
		generator: cfg.Generator,
		importer:  cfg.Importer,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Routes builds the gin engine with every endpoint registered.
func (s *Server) Routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	engine.GET("/topics", s.handleListTopics)
	engine.POST("/topics", s.handleAddTopic)
	engine.POST("/topics/import", s.handleImportTopics)
	engine.POST("/topics/:id/toggle", s.handleToggleTopic)
	engine.DELETE("/topics/:id", s.handleDeleteTopic)

	engine.GET("/schedule", s.handleGetSchedule)
	engine.POST("/schedule", s.handleUpdateSchedule)

	engine.GET("/posts", s.handleListPosts)
	engine.GET("/posts/:id", s.handleGetPost)
	engine.POST("/posts/:id/approve", s.handleApprovePost)
	engine.POST("/posts/:id/reject", s.handleRejectPost)

	engine.POST("/generate-post", s.handleGeneratePost)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "route not found"})
	})
	return engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port string) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Routes(),
		ReadTimeout:       10 * time.Second,  // Time to read request headers and body
		WriteTimeout:      90 * time.Second,  // Generation and publishing call out to remote APIs
		IdleTimeout:       120 * time.Second, // Time to keep connection alive between requests
		ReadHeaderTimeout: 5 * time.Second,   // Time to read request headers only
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "HTTP request completed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status_code", c.Writer.Status(),
			"duration_ms", time.Since(startTime).Milliseconds())
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "healthy"})
}

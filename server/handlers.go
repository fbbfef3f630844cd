package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"postpilot/pkg/postpilot"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type addTopicRequest struct {
	Name string `json:"name"`
}

type importTopicsRequest struct {
	URL string `json:"url"`
}

type scheduleRequest struct {
	IsActive  *bool               `json:"isActive"`
	Frequency postpilot.Frequency `json:"frequency"`
	Time      string              `json:"time"`
	Timezone  string              `json:"timezone"`
}

type generateRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) handleListTopics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "topics": s.topics.List()})
}

func (s *Server) handleAddTopic(c *gin.Context) {
	var req addTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	t, err := s.topics.Add(req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "topic": t})
}

func (s *Server) handleImportTopics(c *gin.Context) {
	if s.importer == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"success": false, "error": "topic import is not configured"})
		return
	}
	var req importTopicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.badRequest(c, "url is required")
		return
	}

	headlines, err := s.importer.Headlines(c.Request.Context(), req.URL)
	if err != nil {
		s.fail(c, err)
		return
	}

	topics := make([]postpilot.Topic, 0, len(headlines))
	for _, h := range headlines {
		t, err := s.topics.Add(h)
		if err != nil {
			s.logger.Warn("Skipping imported headline", "headline", h, "error", err)
			continue
		}
		topics = append(topics, t)
	}

	s.logger.Info("Topics imported", "url", req.URL, "count", len(topics))
	c.JSON(http.StatusCreated, gin.H{"success": true, "imported": len(topics), "topics": topics})
}

func (s *Server) handleToggleTopic(c *gin.Context) {
	t, err := s.topics.Toggle(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "topic": t})
}

func (s *Server) handleDeleteTopic(c *gin.Context) {
	if err := s.topics.Delete(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) scheduleResponse(cfg postpilot.ScheduleConfig) gin.H {
	resp := gin.H{"success": true, "schedule": cfg}
	if next, ok := s.scheduler.NextRun(); ok {
		resp["nextRun"] = next.UTC().Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleGetSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, s.scheduleResponse(s.scheduler.Config()))
}

func (s *Server) handleUpdateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid json")
		return
	}

	cfg := postpilot.ScheduleConfig{
		Frequency: req.Frequency,
		Time:      req.Time,
		Timezone:  req.Timezone,
		IsActive:  req.IsActive == nil || *req.IsActive,
	}
	updated, err := s.scheduler.Update(cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.scheduleResponse(updated))
}

func (s *Server) handleListPosts(c *gin.Context) {
	status := postpilot.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		s.badRequest(c, "status must be pending, approved or rejected")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "posts": s.posts.List(status)})
}

func (s *Server) handleGetPost(c *gin.Context) {
	p, err := s.posts.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "post": p})
}

func (s *Server) handleApprovePost(c *gin.Context) {
	id := c.Param("id")
	// Publishing runs to completion even if the client goes away; PublishTimeout bounds it.
	publishedID, err := s.posts.Approve(context.WithoutCancel(c.Request.Context()), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	p, err := s.posts.Get(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "publishedId": publishedID, "post": p})
}

func (s *Server) handleRejectPost(c *gin.Context) {
	id := c.Param("id")
	if err := s.posts.Reject(id); err != nil {
		s.fail(c, err)
		return
	}
	p, err := s.posts.Get(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "post": p})
}

// handleGeneratePost accepts an optional {"topic": "..."} body.
func (s *Server) handleGeneratePost(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.badRequest(c, "invalid json")
		return
	}

	p, err := s.generator.Generate(context.WithoutCancel(c.Request.Context()), req.Topic)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "post": p})
}

// Copyright 2024 Video Portal Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/video-portal/internal/citation"
	"github.com/your-org/video-portal/internal/relay"
	"github.com/your-org/video-portal/internal/tenant"
	"github.com/your-org/video-portal/internal/upstream"
)

const healthCheckTimeout = 5 * time.Second

// Stable error codes; clients branch on these
const (
	CodeTenantNotFound     = "TENANT_NOT_FOUND"
	CodeTenantLookupFailed = "TENANT_LOOKUP_FAILED"
	CodeInvalidJSON        = "INVALID_JSON"
	CodeMissingPrompt      = "MISSING_PROMPT"
	CodeMissingTopics      = "MISSING_TOPICS"
	CodeMissingMessage     = "MISSING_MESSAGE"
	CodeMissingQuery       = "MISSING_QUERY"
	CodeUpstreamError      = "UPSTREAM_ERROR"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
)

// SearchRequest is the streamed search request body
type SearchRequest struct {
	Prompt string `json:"prompt"`
	Limit  int    `json:"limit"`
}

// RecommendRequest is the streamed recommendation request body
type RecommendRequest struct {
	Topics       []string `json:"topics"`
	Limit        int      `json:"limit"`
	CollectionID string   `json:"collection_id"`
	Tags         []string `json:"tags"`
}

// CoachRequest is one coach conversation turn
type CoachRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// AskRequest is the non-streaming ask fallback request body
type AskRequest struct {
	Query          string `json:"q"`
	Mode           string `json:"mode"`
	Limit          int    `json:"limit"`
	ConversationID string `json:"conversation_id"`
}

// writeError emits the pre-stream JSON error shape. Never called after
// streaming has begun.
func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"type":    "error",
		"code":    code,
		"message": message,
	})
}

// resolveTenant resolves the tenant path parameter, writing the error
// response itself on failure. Runs before anything else on every endpoint.
func (s *Server) resolveTenant(c *gin.Context) *tenant.Tenant {
	slug := c.Param("tenant")

	t, err := s.tenants.Resolve(c.Request.Context(), slug)
	if errors.Is(err, tenant.ErrNotFound) {
		writeError(c, http.StatusNotFound, CodeTenantNotFound, "unknown portal: "+slug)
		return nil
	}
	if err != nil {
		s.logger.Error("Tenant resolution failed", zap.String("slug", slug), zap.Error(err))
		writeError(c, http.StatusInternalServerError, CodeTenantLookupFailed, "failed to resolve portal")
		return nil
	}

	return t
}

// writeUpstreamError maps a failed upstream call to a pre-stream HTTP error,
// mirroring the platform status when it is known.
func (s *Server) writeUpstreamError(c *gin.Context, err error) {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		code := upErr.Code
		if code == "" {
			code = CodeUpstreamError
		}
		writeError(c, upErr.StatusCode, code, upErr.Message)
		return
	}
	writeError(c, http.StatusInternalServerError, CodeUpstreamError, "platform request failed")
}

func (s *Server) handleSearchStream(c *gin.Context) {
	t := s.resolveTenant(c)
	if t == nil {
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, CodeInvalidJSON, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(c, http.StatusBadRequest, CodeMissingPrompt, "prompt is required")
		return
	}

	src, err := s.client.SearchStream(c.Request.Context(), s.credentials(t), upstream.SearchParams{
		Prompt: req.Prompt,
		Limit:  s.clampLimit(req.Limit),
	})
	if err != nil {
		s.logger.Error("Search stream open failed", zap.String("tenant", t.Slug), zap.Error(err))
		s.writeUpstreamError(c, err)
		return
	}

	relay.Stream(c.Request.Context(), c.Writer, src, searchProfile(), s.logger)
}

func (s *Server) handleRecommendStream(c *gin.Context) {
	t := s.resolveTenant(c)
	if t == nil {
		return
	}

	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, CodeInvalidJSON, "invalid request body")
		return
	}
	if len(req.Topics) == 0 {
		writeError(c, http.StatusBadRequest, CodeMissingTopics, "at least one topic is required")
		return
	}

	collectionID := req.CollectionID
	if collectionID == "" {
		collectionID = t.CollectionID
	}

	src, err := s.client.RecommendStream(c.Request.Context(), s.credentials(t), upstream.RecommendParams{
		Topics:       req.Topics,
		Limit:        s.clampLimit(req.Limit),
		CollectionID: collectionID,
		Tags:         req.Tags,
	})
	if err != nil {
		s.logger.Error("Recommend stream open failed", zap.String("tenant", t.Slug), zap.Error(err))
		s.writeUpstreamError(c, err)
		return
	}

	relay.Stream(c.Request.Context(), c.Writer, src, recommendProfile(), s.logger)
}

func (s *Server) handleCoachChat(c *gin.Context) {
	t := s.resolveTenant(c)
	if t == nil {
		return
	}

	var req CoachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, CodeInvalidJSON, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(c, http.StatusBadRequest, CodeMissingMessage, "message is required")
		return
	}

	params := upstream.CoachParams{
		Message:        req.Message,
		ConversationID: req.ConversationID,
	}

	// Tenants with an OpenAI-compatible coach endpoint bypass the platform's
	// native coach API
	var src upstream.EventSource
	var err error
	if t.CoachEndpoint != "" {
		src, err = s.openAICoach(c.Request.Context(), s.credentials(t), upstream.CoachTransport{
			Endpoint: t.CoachEndpoint,
			Model:    t.CoachModel,
		}, params)
	} else {
		src, err = s.client.CoachStream(c.Request.Context(), s.credentials(t), params)
	}
	if err != nil {
		s.logger.Error("Coach stream open failed", zap.String("tenant", t.Slug), zap.Error(err))
		s.writeUpstreamError(c, err)
		return
	}

	relay.Stream(c.Request.Context(), c.Writer, src, coachProfile(), s.logger)
}

func (s *Server) handleAskStream(c *gin.Context) {
	t := s.resolveTenant(c)
	if t == nil {
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		writeError(c, http.StatusBadRequest, CodeMissingQuery, "q is required")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	synthesize := c.Query("synthesize") != "false"

	src, err := s.client.AskStream(c.Request.Context(), s.credentials(t), upstream.AskParams{
		Query:          query,
		Mode:           c.Query("mode"),
		Synthesize:     synthesize,
		Limit:          s.clampLimit(limit),
		ConversationID: c.Query("conversation_id"),
	})
	if err != nil {
		s.logger.Error("Ask stream open failed", zap.String("tenant", t.Slug), zap.Error(err))
		s.writeUpstreamError(c, err)
		return
	}

	relay.Stream(c.Request.Context(), c.Writer, src, askProfile(), s.logger)
}

// handleAsk is the non-streaming fallback transport: one upstream request
// with an explicit timeout below the platform's own ceiling, one JSON
// response.
func (s *Server) handleAsk(c *gin.Context) {
	t := s.resolveTenant(c)
	if t == nil {
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, CodeInvalidJSON, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(c, http.StatusBadRequest, CodeMissingQuery, "q is required")
		return
	}

	timeout := time.Duration(s.cfg.Ask.FallbackTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	result, err := s.client.Ask(ctx, s.credentials(t), upstream.AskParams{
		Query:          req.Query,
		Mode:           req.Mode,
		Synthesize:     true,
		Limit:          s.clampLimit(req.Limit),
		ConversationID: req.ConversationID,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("Ask fallback timed out",
				zap.String("tenant", t.Slug),
				zap.Duration("timeout", timeout),
			)
			writeError(c, http.StatusGatewayTimeout, CodeUpstreamTimeout,
				"the platform did not answer in time; try the streaming endpoint")
			return
		}
		s.logger.Error("Ask fallback failed", zap.String("tenant", t.Slug), zap.Error(err))
		s.writeUpstreamError(c, err)
		return
	}

	if result.NeedsClarification {
		c.JSON(http.StatusOK, gin.H{
			"success":              true,
			"mode":                 "clarification",
			"needs_clarification":  true,
			"clarifying_questions": result.ClarifyingQuestions,
			"conversation_id":      result.ConversationID,
		})
		return
	}

	rendered, _ := citation.Render(result.Answer, result.Sources, nil)
	response := gin.H{
		"success":         true,
		"mode":            "synthesized",
		"conversation_id": result.ConversationID,
		"answer": gin.H{
			"text":       rendered,
			"citations":  citation.AnswerCitations(result.Sources),
			"confidence": result.Confidence,
		},
	}
	if result.Usage != nil {
		response["usage"] = result.Usage
	}

	c.JSON(http.StatusOK, response)
}

// handleHealth reports service status and platform reachability
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	platformStatus := "healthy"
	if err := s.client.Ping(ctx); err != nil {
		platformStatus = "unhealthy"
		s.logger.Warn("Platform health check failed", zap.Error(err))
	}

	status := http.StatusOK
	overall := "healthy"
	if platformStatus != "healthy" {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "portal",
		"version": "1.0.0",
		"uptime":  time.Since(s.started).String(),
		"dependencies": gin.H{
			"platform": gin.H{"status": platformStatus},
		},
	})
}

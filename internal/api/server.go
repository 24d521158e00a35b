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

// Package api wires the portal HTTP routes: one streaming route adapter per
// platform capability plus the non-streaming ask fallback. Handlers validate
// and resolve everything before the upstream call so ordinary failures stay
// plain JSON error responses; once streaming begins all failures travel
// in-band through the relay.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/video-portal/internal/config"
	"github.com/your-org/video-portal/internal/tenant"
	"github.com/your-org/video-portal/internal/upstream"
)

// UpstreamClient is the slice of the platform client the handlers need
type UpstreamClient interface {
	SearchStream(ctx context.Context, creds upstream.Credentials, params upstream.SearchParams) (upstream.EventSource, error)
	RecommendStream(ctx context.Context, creds upstream.Credentials, params upstream.RecommendParams) (upstream.EventSource, error)
	CoachStream(ctx context.Context, creds upstream.Credentials, params upstream.CoachParams) (upstream.EventSource, error)
	AskStream(ctx context.Context, creds upstream.Credentials, params upstream.AskParams) (upstream.EventSource, error)
	Ask(ctx context.Context, creds upstream.Credentials, params upstream.AskParams) (*upstream.AskResult, error)
	Ping(ctx context.Context) error
}

// TenantResolver resolves a portal slug to its tenant record
type TenantResolver interface {
	Resolve(ctx context.Context, slug string) (*tenant.Tenant, error)
}

// openAICoachFunc matches upstream.OpenAICoachStream; injectable for tests
type openAICoachFunc func(ctx context.Context, creds upstream.Credentials, transport upstream.CoachTransport, params upstream.CoachParams) (upstream.EventSource, error)

// Server holds the portal API dependencies
type Server struct {
	cfg         *config.Config
	client      UpstreamClient
	tenants     TenantResolver
	logger      *zap.Logger
	openAICoach openAICoachFunc
	started     time.Time
}

// NewServer creates the portal API server
func NewServer(cfg *config.Config, client UpstreamClient, tenants TenantResolver, logger *zap.Logger) *Server {
	return &Server{
		cfg:         cfg,
		client:      client,
		tenants:     tenants,
		logger:      logger,
		openAICoach: upstream.OpenAICoachStream,
		started:     time.Now(),
	}
}

// Register mounts all portal routes on the router
func (s *Server) Register(router *gin.Engine) {
	router.GET("/health", s.handleHealth)

	api := router.Group("/api/:tenant")
	api.POST("/search/stream", s.handleSearchStream)
	api.POST("/recommend/stream", s.handleRecommendStream)
	api.POST("/coach/chat", s.handleCoachChat)
	api.GET("/ask/stream", s.handleAskStream)
	api.POST("/ask", s.handleAsk)
}

// credentials builds the platform identity for one tenant, falling back to
// the portal-wide vendor key for tenants without their own.
func (s *Server) credentials(t *tenant.Tenant) upstream.Credentials {
	apiKey := t.APIKey
	if apiKey == "" {
		apiKey = s.cfg.Vendor.APIKey
	}
	return upstream.Credentials{
		APIKey:       apiKey,
		CollectionID: t.CollectionID,
	}
}

// clampLimit applies the configured default and ceiling to a client limit
func (s *Server) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.Ask.DefaultLimit
	}
	if limit > s.cfg.Ask.MaxLimit {
		return s.cfg.Ask.MaxLimit
	}
	return limit
}

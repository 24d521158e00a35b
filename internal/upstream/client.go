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

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultEndpoint is the hosted platform API base URL
	DefaultEndpoint = "https://api.videoplatform.example.com"
	// connectTimeout bounds connection setup; streaming reads are bounded by
	// the request context instead
	connectTimeout = 15 * time.Second

	searchStreamPath    = "/v1/search/stream"
	recommendStreamPath = "/v1/recommend/stream"
	coachStreamPath     = "/v1/coach/chat/stream"
	askStreamPath       = "/v1/ask/stream"
	askPath             = "/v1/ask"
	pingPath            = "/v1/ping"
)

// Error is a platform API error with the upstream HTTP status preserved so
// callers can mirror it before streaming begins.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

// Credentials carries the per-tenant platform identity for one call
type Credentials struct {
	APIKey       string
	CollectionID string
}

// SearchParams parameterizes a streamed transcript search
type SearchParams struct {
	Prompt string `json:"prompt"`
	Limit  int    `json:"limit,omitempty"`
}

// RecommendParams parameterizes a streamed recommendation request
type RecommendParams struct {
	Topics       []string `json:"topics"`
	Limit        int      `json:"limit,omitempty"`
	CollectionID string   `json:"collection_id,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// CoachParams parameterizes one turn of a coach conversation
type CoachParams struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// AskParams parameterizes a portal-wide ask request, streamed or not
type AskParams struct {
	Query          string `json:"q"`
	Mode           string `json:"mode,omitempty"`
	Synthesize     bool   `json:"synthesize,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// AskResult is the non-streaming ask response
type AskResult struct {
	Answer              string   `json:"answer"`
	Confidence          string   `json:"confidence,omitempty"`
	Sources             []Source `json:"sources,omitempty"`
	ConversationID      string   `json:"conversation_id,omitempty"`
	Mode                string   `json:"mode,omitempty"`
	NeedsClarification  bool     `json:"needs_clarification,omitempty"`
	ClarifyingQuestions []string `json:"clarifying_questions,omitempty"`
	Usage               *Usage   `json:"usage,omitempty"`
}

// Client talks to the hosted video/AI platform. One client is shared across
// tenants; credentials are supplied per call.
type Client struct {
	httpClient *http.Client
	endpoint   string
	logger     *zap.Logger
}

// NewClient creates a platform client for the given API endpoint
func NewClient(endpoint string, logger *zap.Logger) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid platform endpoint: %w", err)
	}

	return &Client{
		// No overall client timeout: streaming responses stay open for the
		// lifetime of the relay and are cancelled through the request context.
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: connectTimeout,
			},
		},
		endpoint: strings.TrimRight(endpoint, "/"),
		logger:   logger,
	}, nil
}

// SearchStream starts a streamed transcript search
func (c *Client) SearchStream(ctx context.Context, creds Credentials, params SearchParams) (EventSource, error) {
	return c.openStream(ctx, creds, searchStreamPath, params)
}

// RecommendStream starts a streamed recommendation request
func (c *Client) RecommendStream(ctx context.Context, creds Credentials, params RecommendParams) (EventSource, error) {
	return c.openStream(ctx, creds, recommendStreamPath, params)
}

// CoachStream starts one streamed coach conversation turn
func (c *Client) CoachStream(ctx context.Context, creds Credentials, params CoachParams) (EventSource, error) {
	return c.openStream(ctx, creds, coachStreamPath, params)
}

// AskStream starts a streamed portal-wide ask request
func (c *Client) AskStream(ctx context.Context, creds Credentials, params AskParams) (EventSource, error) {
	return c.openStream(ctx, creds, askStreamPath, params)
}

// Ask performs the non-streaming ask fallback. The caller bounds the wait
// through the context deadline.
func (c *Client) Ask(ctx context.Context, creds Credentials, params AskParams) (*AskResult, error) {
	resp, err := c.post(ctx, creds, askPath, params, "application/json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result AskResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ask response: %w", err)
	}

	c.logger.Debug("Ask request completed",
		zap.String("mode", result.Mode),
		zap.Int("sources_count", len(result.Sources)),
		zap.Bool("needs_clarification", result.NeedsClarification),
	)

	return &result, nil
}

// Ping verifies platform reachability
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+pingPath, nil)
	if err != nil {
		return fmt.Errorf("failed to build ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("platform unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// openStream issues a streaming POST and wraps the response body as an
// EventSource. Failures here happen before any bytes reach the portal
// client, so they surface as ordinary errors.
func (c *Client) openStream(ctx context.Context, creds Credentials, path string, payload any) (EventSource, error) {
	resp, err := c.post(ctx, creds, path, payload, "text/event-stream")
	if err != nil {
		return nil, err
	}
	return newSSESource(resp.Body), nil
}

func (c *Client) post(ctx context.Context, creds Credentials, path string, payload any, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if creds.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	}
	if creds.CollectionID != "" {
		req.Header.Set("X-Collection-ID", creds.CollectionID)
	}

	c.logger.Debug("Platform request",
		zap.String("path", path),
		zap.String("accept", accept),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform request failed: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer func() { _ = resp.Body.Close() }()
		return nil, c.decodeError(resp)
	}

	return resp, nil
}

// decodeError converts a non-2xx platform response into an *Error, keeping
// the platform's own code and message when the body carries them.
func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &Error{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("platform returned status %d", resp.StatusCode),
		Retryable:  isRetryableStatus(resp.StatusCode),
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	if err == nil && len(data) > 0 {
		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			ErrMsg  string `json:"error"`
		}
		if json.Unmarshal(data, &body) == nil {
			if body.Code != "" {
				apiErr.Code = body.Code
			}
			if body.Message != "" {
				apiErr.Message = body.Message
			} else if body.ErrMsg != "" {
				apiErr.Message = body.ErrMsg
			}
		}
	}

	c.logger.Warn("Platform request rejected",
		zap.Int("status", apiErr.StatusCode),
		zap.String("code", apiErr.Code),
		zap.String("message", apiErr.Message),
	)

	return apiErr
}

// isRetryableStatus reports whether a platform status is worth retrying
func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

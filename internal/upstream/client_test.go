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
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// mockPlatformServer serves a canned SSE stream and records the request
func mockPlatformServer(t *testing.T, wantPath string, frames []string) (*httptest.Server, *http.Request) {
	t.Helper()
	var captured http.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = *r.Clone(r.Context())
		assert.Equal(t, wantPath, r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			_, _ = w.Write([]byte("data: " + frame + "\n\n"))
		}
	}))
	t.Cleanup(server.Close)

	return server, &captured
}

func TestSearchStreamDecodesEvents(t *testing.T) {
	server, captured := mockPlatformServer(t, "/v1/search/stream", []string{
		`{"type":"message_start","id":"m1"}`,
		`{"type":"text_delta","delta":"hi"}`,
		`{"type":"message_complete","content":"hi"}`,
		"[DONE]",
	})

	client, err := NewClient(server.URL, zaptest.NewLogger(t))
	require.NoError(t, err)

	src, err := client.SearchStream(context.Background(),
		Credentials{APIKey: "key-1", CollectionID: "col-1"},
		SearchParams{Prompt: "intro", Limit: 5},
	)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	var types []EventType
	for {
		ev, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventMessageStart, EventTextDelta, EventMessageComplete}, types)

	assert.Equal(t, "Bearer key-1", captured.Header.Get("Authorization"))
	assert.Equal(t, "col-1", captured.Header.Get("X-Collection-ID"))
	assert.Equal(t, "text/event-stream", captured.Header.Get("Accept"))
}

func TestOpenStreamErrorPreservesStatusAndCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":"RATE_LIMITED","message":"too many requests"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = client.RecommendStream(context.Background(), Credentials{}, RecommendParams{Topics: []string{"go"}})
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "RATE_LIMITED", apiErr.Code)
	assert.Equal(t, "too many requests", apiErr.Message)
	assert.True(t, apiErr.Retryable)
}

func TestOpenStreamErrorWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = client.AskStream(context.Background(), Credentials{}, AskParams{Query: "q"})
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, apiErr.Retryable)
}

func TestAskDecodesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ask", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		var params AskParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "what is covered?", params.Query)
		assert.True(t, params.Synthesize)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"answer": "The course covers Go basics [c_1].",
			"confidence": "high",
			"conversation_id": "conv-9",
			"mode": "synthesized",
			"sources": [{"id":"1","video_id":"v1","title":"Basics"}]
		}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, zaptest.NewLogger(t))
	require.NoError(t, err)

	result, err := client.Ask(context.Background(), Credentials{APIKey: "k"}, AskParams{
		Query:      "what is covered?",
		Synthesize: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "The course covers Go basics [c_1].", result.Answer)
	assert.Equal(t, "high", result.Confidence)
	assert.Equal(t, "conv-9", result.ConversationID)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "v1", result.Sources[0].VideoID)
	assert.False(t, result.NeedsClarification)
}

func TestAskHonorsContextDeadline(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server watches the connection; otherwise
		// r.Context() is never cancelled when the client gives up.
		_, _ = io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewClient(server.URL, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Ask(ctx, Credentials{}, AskParams{Query: "slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("request never reached the server")
	}
}

func TestPing(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"client error still reachable", http.StatusNotFound, false},
		{"server error", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/ping", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client, err := NewClient(server.URL, zaptest.NewLogger(t))
			require.NoError(t, err)

			err = client.Ping(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewClientDefaultsEndpoint(t *testing.T) {
	client, err := NewClient("", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, client.endpoint)
}

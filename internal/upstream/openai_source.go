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
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// CoachTransport configures the OpenAI-compatible coach transport for a
// tenant that runs its coach on a chat-completions endpoint instead of the
// platform's native coach API.
type CoachTransport struct {
	Endpoint string
	Model    string
}

// chatStream narrows *openai.ChatCompletionStream for tests
type chatStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// chatSource adapts an OpenAI-compatible chat completion stream into the
// platform event union: one conversation_created, token deltas as
// text_delta, a final message_complete with no explicit content so the
// consumer falls back to what it accumulated.
type chatSource struct {
	stream         chatStream
	conversationID string
	announced      bool
	completed      bool
}

// OpenAICoachStream starts a coach turn against an OpenAI-compatible
// endpoint and adapts the result into an EventSource.
func OpenAICoachStream(ctx context.Context, creds Credentials, transport CoachTransport, params CoachParams) (EventSource, error) {
	cfg := openai.DefaultConfig(creds.APIKey)
	if transport.Endpoint != "" {
		cfg.BaseURL = transport.Endpoint
	}
	client := openai.NewClientWithConfig(cfg)

	stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: transport.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: params.Message},
		},
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open coach stream: %w", err)
	}

	conversationID := params.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	return &chatSource{stream: stream, conversationID: conversationID}, nil
}

// Next yields the adapted event sequence. The chat protocol has no explicit
// terminal event, so one message_complete is synthesized before io.EOF.
func (s *chatSource) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if !s.announced {
		s.announced = true
		return Event{Type: EventConversationCreated, ID: s.conversationID}, nil
	}
	if s.completed {
		return Event{}, io.EOF
	}

	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.completed = true
			return Event{Type: EventMessageComplete}, nil
		}
		if err != nil {
			return Event{}, fmt.Errorf("coach stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		return Event{Type: EventTextDelta, Delta: delta}, nil
	}
}

// Close releases the underlying chat stream
func (s *chatSource) Close() error {
	return s.stream.Close()
}

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

// Package upstream provides the client for the hosted video/AI platform.
// It exposes each streaming capability as a pull-based EventSource and the
// non-streaming ask fallback as a plain request/response call.
package upstream

import (
	"context"
	"encoding/json"
)

// EventType identifies one variant of the upstream event union
type EventType string

const (
	// EventMessageStart signals the start of a streamed answer and carries the message id
	EventMessageStart EventType = "message_start"
	// EventConversationCreated carries the id of a newly created conversation
	EventConversationCreated EventType = "conversation_created"
	// EventTextDelta carries one increment of answer text
	EventTextDelta EventType = "text_delta"
	// EventToken is a deprecated alias for EventTextDelta kept for older platform versions
	EventToken EventType = "token"
	// EventSources carries the full source list backing the answer so far
	EventSources EventType = "sources"
	// EventCitations is an alias for EventSources used by some platform endpoints
	EventCitations EventType = "citations"
	// EventClarification signals the query is ambiguous and carries follow-up questions
	EventClarification EventType = "clarification"
	// EventMessageComplete terminates a streamed answer, optionally with final content and sources
	EventMessageComplete EventType = "message_complete"
	// EventAnswer is the terminal event emitted by the synthesize endpoints
	EventAnswer EventType = "answer"
	// EventComplete is the bare terminal event emitted by the ask endpoints
	EventComplete EventType = "complete"
	// EventError carries a platform-reported error, possibly retryable
	EventError EventType = "error"
)

// Source references a transcript segment backing part of an answer.
// RelevanceRank is internal ranking detail and must not reach the client.
type Source struct {
	ID             string  `json:"id,omitempty"`
	VideoID        string  `json:"video_id"`
	Title          string  `json:"title"`
	TimestampStart float64 `json:"timestamp_start"`
	TimestampEnd   float64 `json:"timestamp_end"`
	Text           string  `json:"text"`
	PlaybackID     string  `json:"playback_id"`
	Speaker        string  `json:"speaker,omitempty"`
	RelevanceRank  int     `json:"relevance_rank,omitempty"`
}

// Usage reports token accounting for a completed answer
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Event is one value of the upstream event union. Type selects the active
// variant; the Has* flags distinguish an absent field from an empty one on
// terminal events, where event-supplied content takes precedence over
// accumulated state.
type Event struct {
	Type EventType

	// message_start / conversation_created
	ID string

	// text_delta (Delta) and the deprecated token alias (Content)
	Delta string

	// message_complete / answer / complete final content, token content
	Content    string
	HasContent bool

	// sources / citations / terminal events
	Sources    []Source
	HasSources bool

	// clarification
	Questions []string

	// answer / complete
	Confidence string
	Usage      *Usage

	// error
	Code      string
	Message   string
	Retryable *bool

	// Raw preserves the original payload for event types this client does
	// not recognize, so downstream consumers can drop them deliberately.
	Raw json.RawMessage
}

// EventSource is a pull-based sequence of upstream events. Next returns
// io.EOF once the source is exhausted; any other error is terminal.
type EventSource interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// wireEvent is the JSON shape of one upstream event. Pointer fields separate
// absent from empty on the fields where that distinction matters.
type wireEvent struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	Delta      string    `json:"delta"`
	Content    *string   `json:"content"`
	Sources    *[]Source `json:"sources"`
	Citations  *[]Source `json:"citations"`
	Questions  []string  `json:"questions"`
	Confidence string    `json:"confidence"`
	Usage      *Usage    `json:"usage"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Retryable  *bool     `json:"retryable"`
}

// decodeEvent decodes one upstream JSON payload into an Event. Unknown types
// decode successfully with Raw populated; they are never an error.
func decodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, err
	}

	ev := Event{
		Type:       EventType(w.Type),
		ID:         w.ID,
		Delta:      w.Delta,
		Questions:  w.Questions,
		Confidence: w.Confidence,
		Usage:      w.Usage,
		Code:       w.Code,
		Message:    w.Message,
		Retryable:  w.Retryable,
	}

	if w.Content != nil {
		ev.Content = *w.Content
		ev.HasContent = true
	}
	if w.Sources != nil {
		ev.Sources = *w.Sources
		ev.HasSources = true
	} else if w.Citations != nil {
		ev.Sources = *w.Citations
		ev.HasSources = true
	}

	switch ev.Type {
	case EventMessageStart, EventConversationCreated, EventTextDelta, EventToken,
		EventSources, EventCitations, EventClarification,
		EventMessageComplete, EventAnswer, EventComplete, EventError:
		// recognized variant
	default:
		ev.Raw = append(json.RawMessage(nil), data...)
	}

	return ev, nil
}

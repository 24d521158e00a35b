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

// Package relay converts an upstream platform event stream into the
// Server-Sent-Events byte stream the portal client consumes. One relay
// serves exactly one request: events are normalized one at a time against
// request-scoped accumulation state and forwarded strictly in order.
package relay

import (
	"github.com/your-org/video-portal/internal/citation"
	"github.com/your-org/video-portal/internal/upstream"
)

// Frame is one outbound wire event, serialized as JSON inside a single SSE
// data line.
type Frame map[string]any

// State is the per-request accumulation record. It is created empty when the
// relay starts, mutated in place by Normalize as events arrive, and
// discarded when the relay closes. Nothing here survives the request.
type State struct {
	// Answer grows append-only with each text delta
	Answer string
	// Sources is replaced wholesale by each sources event; the last event
	// wins. This matches observed platform behavior and keeps citation
	// numbering stable for clients.
	Sources []upstream.Source
	// ConversationID is set once from the first message_start or
	// conversation_created event and read thereafter
	ConversationID string

	terminal bool
}

// FinalContent resolves the terminal answer text: event-supplied content
// wins when present, otherwise the text accumulated from deltas. This guards
// against a platform that sends only a final blob with no deltas.
func (s *State) FinalContent(ev upstream.Event) string {
	if ev.HasContent {
		return ev.Content
	}
	return s.Answer
}

// FinalSources resolves the terminal source list the same way
func (s *State) FinalSources(ev upstream.Event) []upstream.Source {
	if ev.HasSources {
		return ev.Sources
	}
	return s.Sources
}

// Profile is the per-capability event-mapping table. The four capabilities
// share one state machine and differ only in vocabulary: whether the start
// event is surfaced, the delta frame shape, and the terminal and
// clarification frame shapes.
type Profile struct {
	// Name identifies the capability in logs
	Name string
	// EmitStart controls whether message_start produces an outbound frame.
	// The coach capability suppresses it and reveals the conversation id
	// only in its terminal frame.
	EmitStart bool
	// Delta builds the frame for one increment of answer text
	Delta func(delta string) Frame
	// Terminal builds the capability's final frame from resolved state
	Terminal func(st *State, ev upstream.Event) Frame
	// Clarification builds the clarification frame. The stream stays open; a
	// follow-up request is expected to reuse the conversation id.
	Clarification func(st *State, ev upstream.Event) Frame
	// ErrorRetryable is the retryable default for errors synthesized by the
	// relay itself (upstream transport failures carry no hint)
	ErrorRetryable bool
}

// TextDeltaFrame is the standard delta frame shape
func TextDeltaFrame(delta string) Frame {
	return Frame{"type": "text_delta", "delta": delta}
}

// ChunkFrame is the coach delta frame shape, kept for client compatibility
func ChunkFrame(delta string) Frame {
	return Frame{"type": "chunk", "content": delta}
}

// Normalize maps one upstream event to zero or one outbound frame, updating
// the accumulation state as a side effect. A nil return means the event is
// suppressed. Unrecognized event kinds return nil so the platform can add or
// deprecate kinds without breaking deployed relays.
func Normalize(p *Profile, ev upstream.Event, st *State) Frame {
	switch ev.Type {
	case upstream.EventMessageStart, upstream.EventConversationCreated:
		if st.ConversationID == "" {
			st.ConversationID = ev.ID
		}
		if !p.EmitStart {
			return nil
		}
		return Frame{"type": "message_start", "id": ev.ID}

	case upstream.EventTextDelta:
		st.Answer += ev.Delta
		return p.Delta(ev.Delta)

	case upstream.EventToken:
		// Deprecated alias: the text rides in the content field
		st.Answer += ev.Content
		return p.Delta(ev.Content)

	case upstream.EventSources, upstream.EventCitations:
		st.Sources = ev.Sources
		return Frame{"type": "sources", "sources": citation.Project(ev.Sources)}

	case upstream.EventMessageComplete, upstream.EventAnswer, upstream.EventComplete:
		// At most one terminal frame per stream
		if st.terminal {
			return nil
		}
		st.terminal = true
		return p.Terminal(st, ev)

	case upstream.EventClarification:
		return p.Clarification(st, ev)

	case upstream.EventError:
		frame := Frame{"type": "error", "message": ev.Message}
		if ev.Code != "" {
			frame["code"] = ev.Code
		}
		if ev.Retryable != nil {
			frame["retryable"] = *ev.Retryable
		} else {
			frame["retryable"] = p.ErrorRetryable
		}
		return frame

	default:
		return nil
	}
}

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
	"github.com/your-org/video-portal/internal/citation"
	"github.com/your-org/video-portal/internal/relay"
	"github.com/your-org/video-portal/internal/upstream"
)

// The four capabilities share one relay state machine; these tables supply
// the per-capability vocabulary. Frame field names are client-observable
// contract and must not drift.

// clarificationFrame is shared by every capability that can ask a follow-up
// question. It carries the conversation id so the client can answer the
// clarifying question in the same conversation; the stream stays open.
func clarificationFrame(st *relay.State, ev upstream.Event) relay.Frame {
	return relay.Frame{
		"type":                 "clarification",
		"success":              true,
		"mode":                 "clarification",
		"needs_clarification":  true,
		"clarifying_questions": ev.Questions,
		"conversation_id":      st.ConversationID,
	}
}

// messageCompleteFrame is the terminal shape for the search and recommend
// capabilities: final content, client-safe sources, usage when reported.
func messageCompleteFrame(st *relay.State, ev upstream.Event) relay.Frame {
	frame := relay.Frame{
		"type":    "message_complete",
		"content": st.FinalContent(ev),
		"sources": citation.Project(st.FinalSources(ev)),
	}
	if ev.Usage != nil {
		frame["usage"] = ev.Usage
	}
	return frame
}

func searchProfile() *relay.Profile {
	return &relay.Profile{
		Name:           "search",
		EmitStart:      true,
		Delta:          relay.TextDeltaFrame,
		Terminal:       messageCompleteFrame,
		Clarification:  clarificationFrame,
		ErrorRetryable: true,
	}
}

func recommendProfile() *relay.Profile {
	return &relay.Profile{
		Name:           "recommend",
		EmitStart:      true,
		Delta:          relay.TextDeltaFrame,
		Terminal:       messageCompleteFrame,
		Clarification:  clarificationFrame,
		ErrorRetryable: true,
	}
}

// coachProfile suppresses message_start and uses the legacy chunk delta
// shape; the conversation id is revealed only in the terminal frame.
// Retrying a failed coach turn can duplicate a conversation turn, so relay
// errors default to not retryable.
func coachProfile() *relay.Profile {
	return &relay.Profile{
		Name:      "coach",
		EmitStart: false,
		Delta:     relay.ChunkFrame,
		Terminal: func(st *relay.State, ev upstream.Event) relay.Frame {
			frame := relay.Frame{
				"type":            "message_complete",
				"content":         st.FinalContent(ev),
				"sources":         citation.Project(st.FinalSources(ev)),
				"conversation_id": st.ConversationID,
			}
			if ev.Usage != nil {
				frame["usage"] = ev.Usage
			}
			return frame
		},
		Clarification:  clarificationFrame,
		ErrorRetryable: false,
	}
}

// askProfile is the portal-wide ask capability: the terminal frame embeds a
// synthesized answer object with renumbered citation references.
func askProfile() *relay.Profile {
	return &relay.Profile{
		Name:      "ask",
		EmitStart: true,
		Delta:     relay.TextDeltaFrame,
		Terminal: func(st *relay.State, ev upstream.Event) relay.Frame {
			text := st.FinalContent(ev)
			sources := st.FinalSources(ev)
			rendered, _ := citation.Render(text, sources, nil)

			return relay.Frame{
				"type":            "complete",
				"success":         true,
				"mode":            "synthesized",
				"conversation_id": st.ConversationID,
				"answer": relay.Frame{
					"text":       rendered,
					"citations":  citation.AnswerCitations(sources),
					"confidence": ev.Confidence,
				},
			}
		},
		Clarification:  clarificationFrame,
		ErrorRetryable: true,
	}
}

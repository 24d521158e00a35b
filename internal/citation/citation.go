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

// Package citation handles citation display numbering and the client-safe
// projection of transcript sources.
//
// Answer text references sources with bracket notation: `[n]` refers to the
// nth source positionally (1-based) and `[c_<id>]` refers to a source by
// citation id. Id-based references get a stable display number assigned in
// first-seen order; repeated references to the same id reuse that number. An
// externally supplied numbering map wins over locally assigned numbers so a
// structured answer and its citation list stay consistent.
package citation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/your-org/video-portal/internal/upstream"
)

// refPattern matches both bracket reference forms: [c_<id>] and [n]
var refPattern = regexp.MustCompile(`\[(c_[A-Za-z0-9_-]+|\d+)\]`)

// Assigner hands out stable display numbers for citation ids
type Assigner struct {
	numbers map[string]int
	next    int
}

// NewAssigner creates an Assigner. Entries in preassigned take precedence
// over locally assigned numbers; local assignment continues after the
// largest preassigned number.
func NewAssigner(preassigned map[string]int) *Assigner {
	a := &Assigner{numbers: make(map[string]int), next: 1}
	for id, n := range preassigned {
		a.numbers[id] = n
		if n >= a.next {
			a.next = n + 1
		}
	}
	return a
}

// Number returns the display number for a citation id, assigning the next
// sequential number on first sight.
func (a *Assigner) Number(id string) int {
	if n, ok := a.numbers[id]; ok {
		return n
	}
	n := a.next
	a.numbers[id] = n
	a.next++
	return n
}

// Numbers returns the id-to-display-number map accumulated so far
func (a *Assigner) Numbers() map[string]int {
	out := make(map[string]int, len(a.numbers))
	for id, n := range a.numbers {
		out[id] = n
	}
	return out
}

// Render rewrites bracket references in answer text to display numbers.
// Positional references within range and resolvable id references become
// `[n]`; anything unresolvable is left as literal bracket text. The returned
// map carries the numbering so callers can label the citation list to match.
func Render(text string, sources []upstream.Source, preassigned map[string]int) (string, map[string]int) {
	known := make(map[string]bool, len(sources))
	for _, src := range sources {
		if src.ID != "" {
			known[src.ID] = true
		}
	}

	assigner := NewAssigner(preassigned)

	rendered := refPattern.ReplaceAllStringFunc(text, func(match string) string {
		ref := match[1 : len(match)-1]

		if strings.HasPrefix(ref, "c_") {
			id := strings.TrimPrefix(ref, "c_")
			if !known[id] {
				return match
			}
			return fmt.Sprintf("[%d]", assigner.Number(id))
		}

		// Positional reference: valid only within the source list
		n, err := strconv.Atoi(ref)
		if err != nil || n < 1 || n > len(sources) {
			return match
		}
		return match
	})

	return rendered, assigner.Numbers()
}

// ClientSource is the projection of a source that is safe to send to the
// portal client. Internal ranking and debug fields are stripped.
type ClientSource struct {
	ID           string  `json:"id,omitempty"`
	VideoID      string  `json:"video_id"`
	Title        string  `json:"title"`
	Timestamp    float64 `json:"timestamp"`
	TimestampEnd float64 `json:"timestamp_end"`
	Text         string  `json:"text"`
	PlaybackID   string  `json:"playback_id"`
	Speaker      string  `json:"speaker,omitempty"`
}

// Project converts sources to their client-safe shape
func Project(sources []upstream.Source) []ClientSource {
	out := make([]ClientSource, len(sources))
	for i, src := range sources {
		out[i] = ClientSource{
			ID:           src.ID,
			VideoID:      src.VideoID,
			Title:        src.Title,
			Timestamp:    src.TimestampStart,
			TimestampEnd: src.TimestampEnd,
			Text:         src.Text,
			PlaybackID:   src.PlaybackID,
			Speaker:      src.Speaker,
		}
	}
	return out
}

// AnswerCitation is the citation shape embedded in a synthesized answer
type AnswerCitation struct {
	VideoID    string `json:"video_id"`
	VideoTitle string `json:"video_title"`
	StartMs    int64  `json:"start_ms"`
	Text       string `json:"text"`
	PlaybackID string `json:"playback_id"`
}

// AnswerCitations converts sources to the synthesized-answer citation shape
func AnswerCitations(sources []upstream.Source) []AnswerCitation {
	out := make([]AnswerCitation, len(sources))
	for i, src := range sources {
		out[i] = AnswerCitation{
			VideoID:    src.VideoID,
			VideoTitle: src.Title,
			StartMs:    int64(src.TimestampStart * 1000),
			Text:       src.Text,
			PlaybackID: src.PlaybackID,
		}
	}
	return out
}

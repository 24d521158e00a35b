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

package citation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/video-portal/internal/upstream"
)

func sourcesWithIDs(ids ...string) []upstream.Source {
	out := make([]upstream.Source, len(ids))
	for i, id := range ids {
		out[i] = upstream.Source{ID: id, VideoID: "v-" + id}
	}
	return out
}

func TestRenderAssignsNumbersInFirstSeenOrder(t *testing.T) {
	text := "See [c_77] and again [c_77], but also [c_42]."
	sources := sourcesWithIDs("77", "42")

	rendered, numbers := Render(text, sources, nil)

	assert.Equal(t, "See [1] and again [1], but also [2].", rendered)
	assert.Equal(t, map[string]int{"77": 1, "42": 2}, numbers)
}

func TestRenderExternalNumberingTakesPrecedence(t *testing.T) {
	text := "First [c_77], then [c_42]."
	sources := sourcesWithIDs("77", "42")

	rendered, numbers := Render(text, sources, map[string]int{"77": 5})

	assert.Equal(t, "First [5], then [6].", rendered)
	assert.Equal(t, 5, numbers["77"])
	assert.Equal(t, 6, numbers["42"])
}

func TestRenderUnresolvableReferencesStayLiteral(t *testing.T) {
	text := "Known [c_77], unknown [c_99], out of range [4]."
	sources := sourcesWithIDs("77")

	rendered, _ := Render(text, sources, nil)

	assert.Equal(t, "Known [1], unknown [c_99], out of range [4].", rendered)
}

func TestRenderPositionalReferencesWithinRangeKept(t *testing.T) {
	text := "Positional [1] and [2]."
	sources := sourcesWithIDs("a", "b")

	rendered, _ := Render(text, sources, nil)

	assert.Equal(t, text, rendered)
}

func TestRenderNoReferences(t *testing.T) {
	rendered, numbers := Render("plain text", sourcesWithIDs("77"), nil)

	assert.Equal(t, "plain text", rendered)
	assert.Empty(t, numbers)
}

func TestAssignerReusesNumbers(t *testing.T) {
	a := NewAssigner(nil)

	assert.Equal(t, 1, a.Number("x"))
	assert.Equal(t, 2, a.Number("y"))
	assert.Equal(t, 1, a.Number("x"))
}

func TestProjectStripsInternalFields(t *testing.T) {
	projected := Project([]upstream.Source{{
		ID:             "7",
		VideoID:        "vid-1",
		Title:          "Intro",
		TimestampStart: 12.5,
		TimestampEnd:   48.0,
		Text:           "welcome to the course",
		PlaybackID:     "pb-1",
		Speaker:        "Ada",
		RelevanceRank:  3,
	}})

	require.Len(t, projected, 1)

	data, err := json.Marshal(projected[0])
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.NotContains(t, fields, "relevance_rank")
	assert.Equal(t, 12.5, fields["timestamp"])
	assert.Equal(t, 48.0, fields["timestamp_end"])
	assert.Equal(t, "pb-1", fields["playback_id"])
	assert.Equal(t, "Ada", fields["speaker"])
}

func TestAnswerCitationsConvertToMilliseconds(t *testing.T) {
	citations := AnswerCitations([]upstream.Source{{
		VideoID:        "vid-1",
		Title:          "Intro",
		TimestampStart: 12.5,
		Text:           "welcome",
		PlaybackID:     "pb-1",
	}})

	require.Len(t, citations, 1)
	assert.Equal(t, int64(12500), citations[0].StartMs)
	assert.Equal(t, "Intro", citations[0].VideoTitle)
}

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
	"io"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatStream replays canned chat completion chunks
type fakeChatStream struct {
	deltas []string
	err    error
	pos    int
	closed bool
}

func (f *fakeChatStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if f.pos >= len(f.deltas) {
		if f.err != nil {
			return openai.ChatCompletionStreamResponse{}, f.err
		}
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	delta := f.deltas[f.pos]
	f.pos++
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{
			{Delta: openai.ChatCompletionStreamChoiceDelta{Content: delta}},
		},
	}, nil
}

func (f *fakeChatStream) Close() error {
	f.closed = true
	return nil
}

func TestChatSourceEventSequence(t *testing.T) {
	src := &chatSource{
		stream:         &fakeChatStream{deltas: []string{"Try ", "", "breaking it down."}},
		conversationID: "conv-1",
	}

	var events []Event
	for {
		ev, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}

	require.Len(t, events, 4)
	assert.Equal(t, EventConversationCreated, events[0].Type)
	assert.Equal(t, "conv-1", events[0].ID)
	assert.Equal(t, "Try ", events[1].Delta)
	assert.Equal(t, "breaking it down.", events[2].Delta)
	assert.Equal(t, EventMessageComplete, events[3].Type)
	assert.False(t, events[3].HasContent)
}

func TestChatSourceMidStreamError(t *testing.T) {
	src := &chatSource{
		stream:         &fakeChatStream{deltas: []string{"partial"}, err: errors.New("connection reset")},
		conversationID: "conv-2",
	}

	ev, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventConversationCreated, ev.Type)

	ev, err = src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "partial", ev.Delta)

	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coach stream failed")
}

func TestChatSourceCloseReleasesStream(t *testing.T) {
	stream := &fakeChatStream{}
	src := &chatSource{stream: stream, conversationID: "conv-3"}

	require.NoError(t, src.Close())
	assert.True(t, stream.closed)
}

func TestChatSourceRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &chatSource{stream: &fakeChatStream{}, conversationID: "conv-4"}
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

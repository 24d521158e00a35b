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

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/your-org/video-portal/internal/upstream"
)

// DoneSentinel terminates every outbound stream. It is a literal string, not
// JSON, and always the last frame on the wire.
const DoneSentinel = "[DONE]"

// Stream pulls events from src until exhaustion, relaying each normalized
// frame as one SSE message. Exactly one [DONE] sentinel ends the stream. Any
// error from src after streaming has begun is converted into one in-band
// error frame; nothing is ever thrown past the committed response headers.
// When ctx is cancelled (client disconnect) pulling stops immediately and
// nothing more is written.
func Stream(ctx context.Context, w http.ResponseWriter, src upstream.EventSource, p *Profile, logger *zap.Logger) {
	defer func() { _ = src.Close() }()

	// Fixed header contract: the proxy-buffering hint is required so
	// intermediaries do not batch partial output.
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	st := &State{}
	frames := 0

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Client disconnected, stopping relay",
				zap.String("capability", p.Name),
				zap.Int("frames_sent", frames),
			)
			return
		default:
		}

		ev, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			writeData(w, []byte(DoneSentinel))
			flush()
			logger.Debug("Relay completed",
				zap.String("capability", p.Name),
				zap.Int("frames_sent", frames),
				zap.Int("answer_length", len(st.Answer)),
			)
			return
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			writeFrame(w, errorFrame(err, p))
			writeData(w, []byte(DoneSentinel))
			flush()
			logger.Warn("Relay terminated by upstream failure",
				zap.String("capability", p.Name),
				zap.Int("frames_sent", frames),
				zap.Error(err),
			)
			return
		}

		frame := Normalize(p, ev, st)
		if frame == nil {
			continue
		}
		writeFrame(w, frame)
		flush()
		frames++
	}
}

// errorFrame synthesizes the in-band error frame for an upstream transport
// failure, preserving the platform's code and retryable hint when available.
func errorFrame(err error, p *Profile) Frame {
	frame := Frame{"type": "error", "retryable": p.ErrorRetryable}

	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		if upErr.Code != "" {
			frame["code"] = upErr.Code
		}
		frame["message"] = upErr.Message
		frame["retryable"] = upErr.Retryable
		return frame
	}

	msg := err.Error()
	if msg == "" {
		msg = "stream error"
	}
	frame["message"] = msg
	return frame
}

// writeFrame serializes one frame as a single SSE message. Frames are maps
// of JSON-safe values, so encoding cannot realistically fail; a frame that
// somehow does not marshal is skipped rather than emitted malformed.
func writeFrame(w io.Writer, frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	writeData(w, data)
}

func writeData(w io.Writer, data []byte) {
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}

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
	"bufio"
	"context"
	"io"
	"strings"
)

const (
	// sseDataPrefix marks an SSE data line
	sseDataPrefix = "data: "
	// sseDoneSentinel marks the end of a platform event stream
	sseDoneSentinel = "[DONE]"
	// maxSSELineBytes bounds a single SSE line; transcripts can make source
	// payloads large
	maxSSELineBytes = 1024 * 1024
)

// sseSource decodes a platform SSE response body into Events one at a time.
// Lines that are not data lines, and data lines that fail to decode, are
// skipped rather than surfaced as errors.
type sseSource struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newSSESource(body io.ReadCloser) *sseSource {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineBytes)
	return &sseSource{body: body, scanner: scanner}
}

// Next returns the next decoded event, io.EOF at the end of the stream, or
// the underlying read error. The [DONE] sentinel terminates the stream even
// if the platform keeps the connection open afterwards.
func (s *sseSource) Next(ctx context.Context) (Event, error) {
	if s.done {
		return Event{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}

		data := strings.TrimPrefix(line, sseDataPrefix)
		if data == sseDoneSentinel {
			s.done = true
			return Event{}, io.EOF
		}

		ev, err := decodeEvent([]byte(data))
		if err != nil {
			// Malformed payloads are a platform-side concern; skip them so a
			// single bad frame cannot kill an otherwise healthy stream.
			continue
		}
		return ev, nil
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// Close releases the underlying response body
func (s *sseSource) Close() error {
	return s.body.Close()
}

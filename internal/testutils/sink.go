package testutils

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// Frame is one captured sink call.
type Frame struct {
	Type    string
	Text    string
	Status  string
	Data    any
	Details any
}

// Frame types, matching the socket result frames
const (
	FrameChunk  = "chunk"
	FrameData   = "data"
	FrameStatus = "status"
	FrameError  = "error"
	FrameEnd    = "end"
)

// RecordingSink is a task.Sink that records every call. It is safe for
// concurrent use.
type RecordingSink struct {
	mu     sync.Mutex
	frames []Frame
	ended  chan struct{}
	once   sync.Once
}

var _ task.Sink = (*RecordingSink)(nil)

// NewRecordingSink creates an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{ended: make(chan struct{})}
}

func (s *RecordingSink) add(f Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *RecordingSink) Chunk(_ context.Context, text string) error {
	s.add(Frame{Type: FrameChunk, Text: text})
	return nil
}

func (s *RecordingSink) Data(_ context.Context, data any) error {
	s.add(Frame{Type: FrameData, Data: data})
	return nil
}

func (s *RecordingSink) Status(_ context.Context, status string, message string) error {
	s.add(Frame{Type: FrameStatus, Status: status, Text: message})
	return nil
}

func (s *RecordingSink) Error(_ context.Context, message string, details any) error {
	s.add(Frame{Type: FrameError, Text: message, Details: details})
	return nil
}

func (s *RecordingSink) End(_ context.Context) error {
	s.add(Frame{Type: FrameEnd})
	s.once.Do(func() { close(s.ended) })
	return nil
}

// Frames returns a copy of the recorded frames.
func (s *RecordingSink) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

// Types returns the recorded frame types in order.
func (s *RecordingSink) Types() []string {
	frames := s.Frames()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

// Chunks returns the text of every chunk frame.
func (s *RecordingSink) Chunks() []string {
	var out []string
	for _, f := range s.Frames() {
		if f.Type == FrameChunk {
			out = append(out, f.Text)
		}
	}
	return out
}

// HasChunk reports whether any chunk contains substr.
func (s *RecordingSink) HasChunk(substr string) bool {
	for _, c := range s.Chunks() {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

// WaitEnded fails the test unless End is called within timeout.
func (s *RecordingSink) WaitEnded(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.ended:
	case <-time.After(timeout):
		t.Fatalf("sink did not end within %v; frames: %v", timeout, s.Types())
	}
}

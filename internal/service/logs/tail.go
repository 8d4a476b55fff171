package logs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// stopWait bounds how long a new tail waits for the previous one to end.
const stopWait = 2 * time.Second

// tailLogs streams lines appended to the file until stop_tail_logs, the
// task context ending, or the file becoming unreadable. A tail already
// running for this user is stopped first. Tailing starts at the current end
// of the file.
func (s *Service) tailLogs(ctx context.Context, sink task.Sink, friendly string, interval time.Duration) error {
	if interval < minTailInterval {
		interval = minTailInterval
	}

	path, ok := s.resolve(friendly)
	if !ok {
		return fileMissing(ctx, sink, friendly)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileMissing(ctx, sink, friendly)
		}
		return fmt.Errorf("failed to stat %s: %w", friendly, err)
	}

	if previous := s.stopTail(); previous != "" {
		if err := sink.Chunk(ctx, fmt.Sprintf("Existing tailing task for %s detected, stopping it to start a new one", previous)); err != nil {
			return err
		}
	}

	tailCtx, cancel := context.WithCancel(ctx)
	state := &tailState{file: friendly, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.tail = state
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.tail == state {
			s.tail = nil
		}
		s.mu.Unlock()
		close(state.done)
	}()

	if err := sink.Chunk(ctx, fmt.Sprintf("Started tailing %s", friendly)); err != nil {
		return err
	}

	f := &follower{path: path, offset: info.Size()}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-tailCtx.Done():
			break loop
		case <-ticker.C:
		}

		lines, rotated, err := f.poll()
		if rotated {
			_ = sink.Chunk(ctx, fmt.Sprintf("Log rotation detected for %s, resetting position", friendly))
		}
		for _, line := range lines {
			if err := sink.Chunk(ctx, line); err != nil {
				return err
			}
		}
		if err != nil {
			msg := fmt.Sprintf("Error tailing %s: %v", friendly, err)
			switch {
			case errors.Is(err, os.ErrNotExist):
				msg = fmt.Sprintf("Log file %s no longer exists, stopping tail", friendly)
			case errors.Is(err, os.ErrPermission):
				msg = fmt.Sprintf("Permission denied accessing %s, stopping tail", friendly)
			}
			_ = sink.Error(ctx, msg, nil)
			break loop
		}
	}

	// the task context may be what ended the tail; the final frames are
	// still worth a try
	endCtx := context.WithoutCancel(ctx)
	_ = sink.Chunk(endCtx, fmt.Sprintf("Stopped tailing %s", friendly))
	return sink.End(endCtx)
}

// stopTail cancels the active tail and waits briefly for it to finish. It
// returns the file that was being tailed, or "" when none was.
func (s *Service) stopTail() string {
	s.mu.Lock()
	state := s.tail
	s.tail = nil
	s.mu.Unlock()

	if state == nil {
		return ""
	}
	state.cancel()
	select {
	case <-state.done:
	case <-time.After(stopWait):
	}
	return state.file
}

func (s *Service) stopTailLogs(ctx context.Context, sink task.Sink) error {
	msg := "Log tailing stopped"
	if s.stopTail() == "" {
		msg = "No active tailing task to stop"
	}
	if err := sink.Chunk(ctx, msg); err != nil {
		return err
	}
	return sink.End(ctx)
}

// follower reads whatever was appended to a file since the last poll.
type follower struct {
	path    string
	offset  int64
	partial string
}

// poll returns complete new lines, with their newline. rotated is true when
// the file shrank and reading restarted from the beginning.
func (f *follower) poll() (lines []string, rotated bool, err error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, false, err
	}
	size := info.Size()
	if size < f.offset {
		rotated = true
		f.offset = 0
		f.partial = ""
	}
	if size == f.offset {
		return nil, rotated, nil
	}

	buf := make([]byte, size-f.offset)
	n, err := file.ReadAt(buf, f.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, rotated, err
	}
	f.offset += int64(n)

	text := f.partial + string(buf[:n])
	cut := strings.LastIndexByte(text, '\n')
	if cut < 0 {
		f.partial = text
		return nil, rotated, nil
	}
	f.partial = text[cut+1:]
	for _, line := range strings.SplitAfter(text[:cut+1], "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, rotated, nil
}

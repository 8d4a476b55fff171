package logs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/service"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, files map[string]string) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return New(Config{
		Directory: dir,
		Files: map[string]string{
			"application logs": "app.log",
			"worker logs":      "worker.log",
		},
		TailInterval: 20 * time.Millisecond,
	}), dir
}

func run(t *testing.T, s *Service, payload map[string]any) (*testutils.RecordingSink, error) {
	t.Helper()
	sink := testutils.NewRecordingSink()
	err := s.Process(context.Background(), payload, task.HandlerContext{Sink: sink})
	return sink, err
}

func TestReadLogs(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, map[string]string{
		"app.log": "INFO start\nERROR disk full\nINFO retry\nerror again\nINFO done\n",
	})

	tests := []struct {
		name    string
		payload map[string]any
		want    []string
	}{
		{
			name:    "last lines",
			payload: map[string]any{"task": TaskReadLogs, "lines": 2},
			want:    []string{"error again\n", "INFO done\n"},
		},
		{
			name:    "search is case insensitive",
			payload: map[string]any{"task": TaskReadLogs, "search": "error"},
			want:    []string{"ERROR disk full\n", "error again\n"},
		},
		{
			name:    "search with line limit",
			payload: map[string]any{"task": TaskReadLogs, "search": "info", "lines": 1},
			want:    []string{"INFO done\n"},
		},
		{
			name:    "all logs",
			payload: map[string]any{"task": TaskGetAllLogs, "lines": 1},
			want: []string{
				"INFO start\n", "ERROR disk full\n", "INFO retry\n", "error again\n", "INFO done\n",
			},
		},
		{
			name:    "task defaults to read_logs",
			payload: map[string]any{"lines": "1"},
			want:    []string{"INFO done\n"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sink, err := run(t, s, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sink.Chunks())
			types := sink.Types()
			assert.Equal(t, testutils.FrameEnd, types[len(types)-1])
		})
	}
}

func TestReadLogsErrors(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, map[string]string{"app.log": "x\n"})

	sink, err := run(t, s, map[string]any{"task": TaskReadLogs, "filename": "worker logs"})
	require.NoError(t, err)
	assert.Equal(t, []string{testutils.FrameError, testutils.FrameEnd}, sink.Types())
	assert.Contains(t, sink.Frames()[0].Text, "worker logs not found")

	sink, err = run(t, s, map[string]any{"task": TaskReadLogs, "filename": "/etc/passwd"})
	require.NoError(t, err)
	assert.Equal(t, []string{testutils.FrameError, testutils.FrameEnd}, sink.Types())

	sink, err = run(t, s, map[string]any{"task": TaskReadLogs, "search": "("})
	require.NoError(t, err)
	assert.Equal(t, "Invalid search pattern", sink.Frames()[0].Text)

	_, err = run(t, s, map[string]any{"task": TaskReadLogs, "lines": -5})
	assert.True(t, errors.Is(err, service.ErrInvalidPayload))

	_, err = run(t, s, map[string]any{"task": "format_disk"})
	assert.True(t, errors.Is(err, service.ErrUnknownTask))
}

func TestGetLogFiles(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, map[string]string{"app.log": "12345"})

	sink, err := run(t, s, map[string]any{"task": TaskGetLogFiles})
	require.NoError(t, err)
	assert.Equal(t, []string{testutils.FrameChunk, testutils.FrameData, testutils.FrameEnd}, sink.Types())
	assert.True(t, sink.HasChunk("worker logs not found"))

	files, ok := sink.Frames()[1].Data.([]LogFile)
	require.True(t, ok)
	require.Len(t, files, 1)
	assert.Equal(t, "application logs", files[0].Name)
	assert.Equal(t, int64(5), files[0].Size)
}

func TestGetLogFilesNoneFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, nil)

	sink, err := run(t, s, map[string]any{"task": TaskGetLogFiles})
	require.NoError(t, err)
	assert.True(t, sink.HasChunk("No log files found"))
}

func TestMicCheck(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, nil)
	sink, err := run(t, s, map[string]any{"task": TaskMicCheck, "mic_check_message": "hello"})
	require.NoError(t, err)
	assert.Len(t, sink.Chunks(), 3)
	assert.True(t, sink.HasChunk("Message: hello"))
	assert.Equal(t, testutils.FrameEnd, sink.Types()[3])
}

func TestTailLogsStreamsAppendedLines(t *testing.T) {
	t.Parallel()

	s, dir := newTestService(t, map[string]string{"app.log": "old line\n"})
	path := filepath.Join(dir, "app.log")

	tailSink := testutils.NewRecordingSink()
	done := make(chan error, 1)
	go func() {
		done <- s.Process(context.Background(), map[string]any{"task": TaskTailLogs, "interval": 0.02},
			task.HandlerContext{Sink: tailSink})
	}()

	require.Eventually(t, func() bool { return tailSink.HasChunk("Started tailing") },
		time.Second, 5*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("new line\npartial")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return tailSink.HasChunk("new line") },
		time.Second, 5*time.Millisecond)
	assert.False(t, tailSink.HasChunk("old line"))
	assert.False(t, tailSink.HasChunk("partial"))

	// truncate to simulate rotation
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o600))
	require.Eventually(t, func() bool { return tailSink.HasChunk("Log rotation detected") },
		time.Second, 5*time.Millisecond)

	stopSink, err := run(t, s, map[string]any{"task": TaskStopTailLogs})
	require.NoError(t, err)
	assert.True(t, stopSink.HasChunk("Log tailing stopped"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("tail did not stop")
	}
	tailSink.WaitEnded(t, time.Second)
	assert.True(t, tailSink.HasChunk("Stopped tailing application logs"))
}

func TestTailLogsReplacesExistingTail(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, map[string]string{"app.log": ""})

	first := testutils.NewRecordingSink()
	go func() {
		_ = s.Process(context.Background(), map[string]any{"task": TaskTailLogs}, task.HandlerContext{Sink: first})
	}()
	require.Eventually(t, func() bool { return first.HasChunk("Started tailing") },
		time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	second := testutils.NewRecordingSink()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Process(ctx, map[string]any{"task": TaskTailLogs}, task.HandlerContext{Sink: second})
	}()

	first.WaitEnded(t, 2*time.Second)
	require.Eventually(t, func() bool { return second.HasChunk("Started tailing") },
		time.Second, 5*time.Millisecond)
	assert.True(t, second.HasChunk("Existing tailing task for application logs detected"))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second tail did not stop on context cancel")
	}
	second.WaitEnded(t, time.Second)
}

func TestStopTailWithoutActiveTail(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, nil)
	sink, err := run(t, s, map[string]any{"task": TaskStopTailLogs})
	require.NoError(t, err)
	assert.Equal(t, []string{"No active tailing task to stop"}, sink.Chunks())
}

func TestCloseStopsTail(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, map[string]string{"app.log": ""})
	sink := testutils.NewRecordingSink()
	go func() {
		_ = s.Process(context.Background(), map[string]any{"task": TaskTailLogs}, task.HandlerContext{Sink: sink})
	}()
	require.Eventually(t, func() bool { return sink.HasChunk("Started tailing") },
		time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	sink.WaitEnded(t, time.Second)
}

func TestLastLines(t *testing.T) {
	t.Parallel()

	lines, err := lastLines(strings.NewReader("a\nb\nc"), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, lines)
}

func TestFollowerKeepsPartialLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "f.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntw"), 0o600))

	f := &follower{path: path}
	lines, rotated, err := f.poll()
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.Equal(t, []string{"one\n"}, lines)

	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o600))
	lines, _, err = f.poll()
	require.NoError(t, err)
	assert.Equal(t, []string{"two\n"}, lines)

	require.NoError(t, os.Remove(path))
	_, _, err = f.poll()
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

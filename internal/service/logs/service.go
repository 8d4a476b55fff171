package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/service"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// ServiceName is the event the log service is registered under.
const ServiceName = "log_service"

// Task names
const (
	TaskReadLogs     = "read_logs"
	TaskGetAllLogs   = "get_all_logs"
	TaskTailLogs     = "tail_logs"
	TaskStopTailLogs = "stop_tail_logs"
	TaskGetLogFiles  = "get_log_files"
	TaskMicCheck     = "mic_check"
)

// Defaults applied to requests that leave fields unset.
const (
	DefaultFile         = "application logs"
	DefaultLines        = 100
	DefaultTailInterval = time.Second
	minTailInterval     = 50 * time.Millisecond
	maxLineBytes        = 1 << 20
)

// Config maps friendly names to log files. Relative paths are resolved
// against Directory.
type Config struct {
	Directory    string
	Files        map[string]string
	TailInterval time.Duration
}

// request is the decoded payload of a log_service task.
type request struct {
	Task            string  `mapstructure:"task"`
	Filename        string  `mapstructure:"filename"`
	Lines           *int    `mapstructure:"lines" validate:"omitempty,gte=0"`
	Search          string  `mapstructure:"search" validate:"max=512"`
	Interval        float64 `mapstructure:"interval" validate:"gte=0,lte=60"`
	MicCheckMessage any     `mapstructure:"mic_check_message"`
}

// LogFile describes one configured log file.
type LogFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Service is the per-user log_service instance. It remembers the user's
// active tail so a later stop_tail_logs task can end it.
type Service struct {
	config Config

	mu   sync.Mutex
	tail *tailState
}

type tailState struct {
	file   string
	cancel context.CancelFunc
	done   chan struct{}
}

var (
	_ task.Handler = (*Service)(nil)
	_ task.Closer  = (*Service)(nil)
)

// New creates a log service instance.
func New(cfg Config) *Service {
	if cfg.TailInterval <= 0 {
		cfg.TailInterval = DefaultTailInterval
	}
	return &Service{config: cfg}
}

// Factory returns a task.Factory creating one Service per cache entry.
func Factory(cfg Config) task.Factory {
	return func(task.Sink) task.Handler {
		return New(cfg)
	}
}

// Process implements task.Handler.
func (s *Service) Process(ctx context.Context, payload map[string]any, hc task.HandlerContext) error {
	var req request
	if err := service.DecodePayload(payload, &req); err != nil {
		return err
	}
	if req.Filename == "" {
		req.Filename = DefaultFile
	}

	sink := hc.Sink
	switch name := service.TaskName(payload, TaskReadLogs); name {
	case TaskReadLogs:
		lines := DefaultLines
		if req.Lines != nil {
			lines = *req.Lines
		}
		return s.readLogs(ctx, sink, req.Filename, lines, req.Search)
	case TaskGetAllLogs:
		return s.readLogs(ctx, sink, req.Filename, 0, req.Search)
	case TaskTailLogs:
		interval := s.config.TailInterval
		if req.Interval > 0 {
			interval = time.Duration(req.Interval * float64(time.Second))
		}
		return s.tailLogs(ctx, sink, req.Filename, interval)
	case TaskStopTailLogs:
		return s.stopTailLogs(ctx, sink)
	case TaskGetLogFiles:
		return s.getLogFiles(ctx, sink)
	case TaskMicCheck:
		return micCheck(ctx, sink, req.MicCheckMessage)
	default:
		return fmt.Errorf("%w: %s has no task %q", service.ErrUnknownTask, ServiceName, name)
	}
}

// Close stops an active tail when the instance is evicted.
func (s *Service) Close() error {
	s.stopTail()
	return nil
}

// resolve maps a friendly name to a path. Unknown names are refused.
func (s *Service) resolve(friendly string) (string, bool) {
	path, ok := s.config.Files[friendly]
	if !ok || path == "" {
		return "", false
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.config.Directory, path)
	}
	return path, true
}

func fileMissing(ctx context.Context, sink task.Sink, friendly string) error {
	_ = sink.Error(ctx, fmt.Sprintf("Log file %s not found", friendly), nil)
	return sink.End(ctx)
}

func (s *Service) readLogs(ctx context.Context, sink task.Sink, friendly string, lines int, search string) error {
	var pattern *regexp.Regexp
	if search != "" {
		var err error
		pattern, err = regexp.Compile("(?i)" + search)
		if err != nil {
			_ = sink.Error(ctx, "Invalid search pattern", map[string]string{"search": search})
			return sink.End(ctx)
		}
	}

	path, ok := s.resolve(friendly)
	if !ok {
		return fileMissing(ctx, sink, friendly)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileMissing(ctx, sink, friendly)
		}
		return fmt.Errorf("failed to open %s: %w", friendly, err)
	}
	defer func() { _ = f.Close() }()

	matched, err := lastLines(f, lines, pattern)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", friendly, err)
	}

	for _, line := range matched {
		if err := sink.Chunk(ctx, line+"\n"); err != nil {
			return err
		}
	}
	return sink.End(ctx)
}

// lastLines returns the last n lines of r matching pattern, or all matching
// lines when n is zero. Only n lines are held in memory.
func lastLines(r io.Reader, n int, pattern *regexp.Regexp) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var out []string
	for scanner.Scan() {
		line := scanner.Text()
		if pattern != nil && !pattern.MatchString(line) {
			continue
		}
		out = append(out, line)
		if n > 0 && len(out) > n {
			out = out[1:]
		}
	}
	return out, scanner.Err()
}

func (s *Service) getLogFiles(ctx context.Context, sink task.Sink) error {
	names := make([]string, 0, len(s.config.Files))
	for name := range s.config.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	files := make([]LogFile, 0, len(names))
	for _, name := range names {
		path, _ := s.resolve(name)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			if err := sink.Chunk(ctx, fmt.Sprintf("Warning: Log file %s not found", name)); err != nil {
				return err
			}
			continue
		}
		files = append(files, LogFile{Name: name, Size: info.Size(), Modified: info.ModTime()})
	}

	if len(files) == 0 {
		if err := sink.Chunk(ctx, "No log files found"); err != nil {
			return err
		}
	} else if err := sink.Data(ctx, files); err != nil {
		return err
	}
	return sink.End(ctx)
}

func micCheck(ctx context.Context, sink task.Sink, message any) error {
	for _, chunk := range []string{
		"Mic Check",
		fmt.Sprintf("Message: %v", message),
		fmt.Sprintf("Log Service Mic Check Response to: %v | One more response coming from Log Service.\n\n", message),
	} {
		if err := sink.Chunk(ctx, chunk); err != nil {
			return err
		}
	}
	return sink.End(ctx)
}

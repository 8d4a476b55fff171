package scrape

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/service"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/store"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// ServiceName is the event the scrape service is registered under.
const ServiceName = "scrape_service"

// Task names
const (
	TaskQuickScrape = "quick_scrape"
	TaskMicCheck    = "mic_check"
)

type request struct {
	Task            string `mapstructure:"task" validate:"required"`
	Keyword         string `mapstructure:"keyword" validate:"max=256"`
	MicCheckMessage any    `mapstructure:"mic_check_message"`
}

// Service is the per-user scrape_service instance.
type Service struct {
	domains store.ScrapeDomainStore
	logger  *slog.Logger
}

var _ task.Handler = (*Service)(nil)

// New creates a scrape service reading the catalog from domains.
func New(domains store.ScrapeDomainStore, logger *slog.Logger) *Service {
	return &Service{
		domains: domains,
		logger:  logger.With("component", "scrape_service"),
	}
}

// Factory returns a task.Factory for the scrape service.
func Factory(domains store.ScrapeDomainStore, logger *slog.Logger) task.Factory {
	return func(task.Sink) task.Handler {
		return New(domains, logger)
	}
}

// Process implements task.Handler.
func (s *Service) Process(ctx context.Context, payload map[string]any, hc task.HandlerContext) error {
	var req request
	if err := service.DecodePayload(payload, &req); err != nil {
		return err
	}

	switch req.Task {
	case TaskQuickScrape:
		return s.quickScrape(ctx, hc.Sink)
	case TaskMicCheck:
		keyword := req.Keyword
		if keyword == "" {
			keyword = defaultKeyword
		}
		return micCheck(ctx, hc.Sink, keyword)
	default:
		return fmt.Errorf("%w: %s has no task %q", service.ErrUnknownTask, ServiceName, req.Task)
	}
}

// quickScrape sends the whole domain catalog as one data frame.
func (s *Service) quickScrape(ctx context.Context, sink task.Sink) error {
	domains, err := s.domains.ListDomains(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scrape domains: %w", err)
	}
	s.logger.Debug("serving scrape domains", "count", len(domains))

	if domains == nil {
		domains = []store.ScrapeDomain{}
	}
	if err := sink.Data(ctx, domains); err != nil {
		return err
	}
	return sink.End(ctx)
}

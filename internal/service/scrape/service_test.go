package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/service"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/store"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDomains struct{ store.ScrapeDomainStore }

func (failingDomains) ListDomains(context.Context) ([]store.ScrapeDomain, error) {
	return nil, errors.New("database unavailable")
}

func process(t *testing.T, s *Service, payload map[string]any) (*testutils.RecordingSink, error) {
	t.Helper()
	sink := testutils.NewRecordingSink()
	return sink, s.Process(context.Background(), payload, task.HandlerContext{Sink: sink})
}

func TestQuickScrape(t *testing.T) {
	t.Parallel()

	domains := store.NewMemoryScrapeDomainStore(
		store.ScrapeDomain{URL: "https://www.bbc.com", CommonName: "BBC", Scrapable: true},
	)
	s := New(domains, testutils.DiscardLogger())

	sink, err := process(t, s, map[string]any{"task": TaskQuickScrape})
	require.NoError(t, err)
	assert.Equal(t, []string{testutils.FrameData, testutils.FrameEnd}, sink.Types())

	got, ok := sink.Frames()[0].Data.([]store.ScrapeDomain)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "BBC", got[0].CommonName)
}

func TestQuickScrapeEmptyCatalog(t *testing.T) {
	t.Parallel()

	s := New(store.NewMemoryScrapeDomainStore(), testutils.DiscardLogger())
	sink, err := process(t, s, map[string]any{"task": TaskQuickScrape})
	require.NoError(t, err)
	assert.Equal(t, []store.ScrapeDomain{}, sink.Frames()[0].Data)
}

func TestQuickScrapeStoreError(t *testing.T) {
	t.Parallel()

	s := New(failingDomains{}, testutils.DiscardLogger())
	sink, err := process(t, s, map[string]any{"task": TaskQuickScrape})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
	assert.Empty(t, sink.Frames())
}

func TestMicCheckSequence(t *testing.T) {
	t.Parallel()

	s := New(store.NewMemoryScrapeDomainStore(), testutils.DiscardLogger())
	sink, err := process(t, s, map[string]any{"task": TaskMicCheck, "keyword": "go concurrency"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		testutils.FrameChunk,
		testutils.FrameStatus,
		testutils.FrameData,
		testutils.FrameStatus,
		testutils.FrameData,
		testutils.FrameChunk,
		testutils.FrameError,
		testutils.FrameChunk,
		testutils.FrameError,
		testutils.FrameEnd,
	}, sink.Types())

	frames := sink.Frames()
	search, ok := frames[2].Data.(SearchResponse)
	require.True(t, ok)
	assert.Equal(t, "go concurrency", search.Metadata["keyword"])

	details, ok := frames[6].Details.(FailureDetails)
	require.True(t, ok)
	assert.Equal(t, "search_error", details.ErrorType)
}

func TestMicCheckStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := New(store.NewMemoryScrapeDomainStore(), testutils.DiscardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := testutils.NewRecordingSink()
	err := s.Process(ctx, map[string]any{"task": TaskMicCheck}, task.HandlerContext{Sink: sink})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.Frames())
}

func TestUnknownAndMissingTask(t *testing.T) {
	t.Parallel()

	s := New(store.NewMemoryScrapeDomainStore(), testutils.DiscardLogger())

	_, err := process(t, s, map[string]any{"task": "deep_scrape"})
	assert.True(t, errors.Is(err, service.ErrUnknownTask))

	_, err = process(t, s, map[string]any{})
	assert.True(t, errors.Is(err, service.ErrInvalidPayload))
}

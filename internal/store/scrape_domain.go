package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScrapeDomain is one entry of the scrape domain catalog: a site the
// scraper knows how to read, with its per-domain settings.
type ScrapeDomain struct {
	ID         uuid.UUID      `json:"id"`
	URL        string         `json:"url"`
	CommonName string         `json:"common_name"`
	Scrapable  bool           `json:"scrapable"`
	Settings   map[string]any `json:"settings,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ScrapeDomainStore reads and maintains the scrape domain catalog.
type ScrapeDomainStore interface {
	// ListDomains returns every domain ordered by URL.
	ListDomains(ctx context.Context) ([]ScrapeDomain, error)

	// UpsertDomain inserts d or updates the domain with the same URL.
	UpsertDomain(ctx context.Context, d ScrapeDomain) (*ScrapeDomain, error)
}

// MemoryScrapeDomainStore keeps the catalog in memory. It backs the scrape
// service when no database is configured.
type MemoryScrapeDomainStore struct {
	mu      sync.RWMutex
	domains map[string]ScrapeDomain
	now     func() time.Time
}

var _ ScrapeDomainStore = (*MemoryScrapeDomainStore)(nil)

// NewMemoryScrapeDomainStore creates a store seeded with domains.
func NewMemoryScrapeDomainStore(domains ...ScrapeDomain) *MemoryScrapeDomainStore {
	s := &MemoryScrapeDomainStore{
		domains: make(map[string]ScrapeDomain, len(domains)),
		now:     time.Now,
	}
	for _, d := range domains {
		_, _ = s.UpsertDomain(context.Background(), d)
	}
	return s
}

// ListDomains implements ScrapeDomainStore.
func (s *MemoryScrapeDomainStore) ListDomains(ctx context.Context) ([]ScrapeDomain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]ScrapeDomain, 0, len(s.domains))
	for _, d := range s.domains {
		out = append(out, d)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

// UpsertDomain implements ScrapeDomainStore.
func (s *MemoryScrapeDomainStore) UpsertDomain(ctx context.Context, d ScrapeDomain) (*ScrapeDomain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.URL = strings.TrimSpace(d.URL)
	if d.URL == "" {
		return nil, NewStoreError(EntityScrapeDomain, "upsert", "url is required", ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if existing, ok := s.domains[d.URL]; ok {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	} else {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	s.domains[d.URL] = d
	return &d, nil
}

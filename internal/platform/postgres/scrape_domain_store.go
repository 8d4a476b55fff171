package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/store"
)

// ScrapeDomainStore implements store.ScrapeDomainStore on PostgreSQL.
type ScrapeDomainStore struct {
	db store.DBTX
}

var _ store.ScrapeDomainStore = (*ScrapeDomainStore)(nil)

// NewScrapeDomainStore creates a ScrapeDomainStore.
func NewScrapeDomainStore(db store.DBTX) *ScrapeDomainStore {
	return &ScrapeDomainStore{db: db}
}

// ListDomains implements store.ScrapeDomainStore.
func (s *ScrapeDomainStore) ListDomains(ctx context.Context) ([]store.ScrapeDomain, error) {
	query := `
		SELECT id, url, common_name, scrapable, settings, created_at, updated_at
		FROM scrape_domains
		ORDER BY url
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scrape domains: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []store.ScrapeDomain
	for rows.Next() {
		var (
			d        store.ScrapeDomain
			settings []byte
		)
		if err := rows.Scan(&d.ID, &d.URL, &d.CommonName, &d.Scrapable, &settings, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scrape domain: %w", err)
		}
		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &d.Settings); err != nil {
				return nil, fmt.Errorf("failed to decode settings of %s: %w", d.URL, err)
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scrape domains: %w", err)
	}
	return out, nil
}

// UpsertDomain implements store.ScrapeDomainStore. The URL is the natural
// key; an existing row keeps its id and created_at.
func (s *ScrapeDomainStore) UpsertDomain(ctx context.Context, d store.ScrapeDomain) (*store.ScrapeDomain, error) {
	d.URL = strings.TrimSpace(d.URL)
	if d.URL == "" {
		return nil, store.NewStoreError(store.EntityScrapeDomain, "upsert", "url is required", store.ErrInvalidEntity)
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	settings := d.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, store.NewStoreError(store.EntityScrapeDomain, "upsert", "settings are not valid JSON", err)
	}

	query := `
		INSERT INTO scrape_domains (id, url, common_name, scrapable, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (url) DO UPDATE
		SET common_name = EXCLUDED.common_name,
			scrapable = EXCLUDED.scrapable,
			settings = EXCLUDED.settings,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	row := s.db.QueryRowContext(ctx, query, d.ID, d.URL, d.CommonName, d.Scrapable, settingsJSON)
	if err := row.Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to upsert scrape domain: %w", MapError(err))
	}
	d.Settings = settings
	return &d, nil
}

// SeedScrapeDomains upserts domains in a single transaction. Either every
// domain is written or none is.
func SeedScrapeDomains(ctx context.Context, db *sql.DB, domains []store.ScrapeDomain) error {
	if len(domains) == 0 {
		return nil
	}
	return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		s := NewScrapeDomainStore(tx)
		for _, d := range domains {
			if _, err := s.UpsertDomain(ctx, d); err != nil {
				return fmt.Errorf("failed to seed %s: %w", d.URL, err)
			}
		}
		return nil
	})
}

// Package postgres implements the store interfaces on PostgreSQL through the
// pgx database/sql driver. It owns the embedded goose migrations, the task
// execution history (which also observes the task runner) and the scrape
// domain catalog.
package postgres

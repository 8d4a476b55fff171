// Package store defines the persistence contracts of the dispatch service:
// the execution history written when tasks finish and the scrape domain
// catalog read by the scrape service. Implementations live in
// internal/platform/postgres; this package also carries an in-memory
// domain catalog used when no database is configured.
package store

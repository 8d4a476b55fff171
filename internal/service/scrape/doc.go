// Package scrape implements scrape_service, a long-running service. It
// serves the scrape domain catalog and a mic check that replays a complete
// search-and-scrape exchange, including failures, so clients can exercise
// their result handling without reaching external sites.
package scrape

package scrape

import (
	"context"
	"fmt"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

const defaultKeyword = "artificial intelligence"

// SearchResult is one hit of a keyword search.
type SearchResult struct {
	Keyword     string `json:"keyword"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Age         string `json:"age"`
}

// SearchResponse is the data frame sent after a search.
type SearchResponse struct {
	ResponseType string            `json:"response_type"`
	Metadata     map[string]string `json:"metadata"`
	Results      []SearchResult    `json:"results"`
}

// PageResult is the outcome of scraping one URL.
type PageResult struct {
	Status    string   `json:"status"`
	URL       string   `json:"url"`
	Error     *string  `json:"error"`
	PageTitle string   `json:"page_title,omitempty"`
	TextData  string   `json:"text_data,omitempty"`
	Hashes    []string `json:"hashes,omitempty"`
}

// ScrapeResponse is the data frame sent after pages were read.
type ScrapeResponse struct {
	ResponseType string         `json:"response_type"`
	Metadata     map[string]int `json:"metadata"`
	Results      []PageResult   `json:"results"`
}

// FailureDetails is the details payload of a simulated failure.
type FailureDetails struct {
	ErrorType          string            `json:"error_type"`
	UserVisibleMessage string            `json:"user_visible_message"`
	Details            map[string]string `json:"details,omitempty"`
}

func sampleSearch(keyword string) SearchResponse {
	return SearchResponse{
		ResponseType: "search_results",
		Metadata:     map[string]string{"keyword": keyword},
		Results: []SearchResult{
			{
				Keyword:     keyword,
				Type:        "news",
				Title:       "What the latest research says about " + keyword,
				URL:         "https://news.example.com/research",
				Description: "A roundup of recent findings.",
				Source:      "Example News",
				Age:         "3 days ago",
			},
			{
				Keyword:     keyword,
				Type:        "web",
				Title:       keyword + " explained",
				URL:         "https://blocked.example.org/explainer",
				Description: "An introduction for newcomers.",
				Source:      "Example Org",
				Age:         "4 days ago",
			},
		},
	}
}

func sampleScrape(search SearchResponse) ScrapeResponse {
	blocked := "HTTP 403 Forbidden"
	return ScrapeResponse{
		ResponseType: "scraped_pages",
		Metadata:     map[string]int{"execution_time_ms": 2500},
		Results: []PageResult{
			{
				Status:    "success",
				URL:       search.Results[0].URL,
				PageTitle: search.Results[0].Title,
				TextData:  search.Results[0].Title + "\n\n" + search.Results[0].Description,
				Hashes:    []string{"sha256:def456ghi789"},
			},
			{
				Status: "error",
				URL:    search.Results[1].URL,
				Error:  &blocked,
			},
		},
	}
}

// micCheck replays a search-and-scrape exchange: a search, a scrape with
// one failed page, then a failed search and a failed scrape.
func micCheck(ctx context.Context, sink task.Sink, keyword string) error {
	search := sampleSearch(keyword)

	steps := []func() error{
		func() error { return sink.Chunk(ctx, "Simulating task: search_and_scrape") },
		func() error { return sink.Status(ctx, "processing", fmt.Sprintf("Searching for %q", keyword)) },
		func() error { return sink.Data(ctx, search) },
		func() error {
			return sink.Status(ctx, "processing", fmt.Sprintf("Scraping %d results", len(search.Results)))
		},
		func() error { return sink.Data(ctx, sampleScrape(search)) },
		func() error { return sink.Chunk(ctx, "Testing failure for feature: search") },
		func() error {
			return sink.Error(ctx,
				fmt.Sprintf("Error processing keyword '%s'. HTTP 429: Too Many Requests from search API", keyword),
				FailureDetails{
					ErrorType:          "search_error",
					UserVisibleMessage: fmt.Sprintf("Error searching keyword : '%s'", keyword),
					Details:            map[string]string{"keyword": keyword},
				})
		},
		func() error { return sink.Chunk(ctx, "Testing failure for feature: scrape") },
		func() error {
			return sink.Error(ctx,
				"Failed to scrape URLs due to HTTP 429: Too Many Requests from target site",
				FailureDetails{
					ErrorType:          "scrape_error",
					UserVisibleMessage: "An error occurred while reading pages.",
				})
		},
		func() error { return sink.End(ctx) },
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

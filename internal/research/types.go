// Package research searches academic sources (PubMed, CrossRef), resolves
// DOIs, parses citations, and aggregates marketing intelligence on top of
// those searches.
package research

import (
	"context"
	"time"
)

// Paper is one academic search result, normalized across sources.
type Paper struct {
	Source        string   `json:"source"`
	ID            string   `json:"id,omitempty"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Venue         string   `json:"venue,omitempty"`
	Year          string   `json:"year,omitempty"`
	Abstract      string   `json:"abstract,omitempty"`
	DOI           string   `json:"doi,omitempty"`
	URL           string   `json:"url,omitempty"`
	CitationCount int      `json:"citation_count"`
}

// SearchResult aggregates per-source results for one query. A source that
// fails lands in Errors without affecting the others.
type SearchResult struct {
	Query     string             `json:"query"`
	Timestamp time.Time          `json:"timestamp"`
	Sources   map[string][]Paper `json:"sources"`
	Errors    map[string]string  `json:"errors,omitempty"`
}

// Source is a searchable academic backend.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Paper, error)
}

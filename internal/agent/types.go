// Package agent defines the core types shared across the research agent subsystems.
package agent

import (
	"net/http"
	"time"
)

// RenderMode selects how a page is fetched.
type RenderMode string

// Render modes accepted on analyze requests.
const (
	// RenderAuto probes with a plain HTTP fetch and promotes to headless
	// rendering when the promotion heuristic fires.
	RenderAuto RenderMode = "auto"
	// RenderHTTP never uses the headless browser.
	RenderHTTP RenderMode = "http"
	// RenderHeadless always renders with the headless browser.
	RenderHeadless RenderMode = "headless"
)

// OutputFormat selects the shape of the extracted content field.
type OutputFormat string

// Output formats accepted on analyze requests.
const (
	FormatText     OutputFormat = "text"
	FormatMarkdown OutputFormat = "markdown"
	FormatHTML     OutputFormat = "html"
)

// AnalyzeRequest captures everything needed to analyze a single URL.
type AnalyzeRequest struct {
	URL          string            `json:"url"`
	Render       RenderMode        `json:"render,omitempty"`
	Format       OutputFormat      `json:"format,omitempty"`
	Profile      string            `json:"profile,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	CacheMaxAge  int               `json:"cache_max_age_seconds,omitempty"`
	SkipHistory  bool              `json:"skip_history,omitempty"`
	SkipEvents   bool              `json:"skip_events,omitempty"`
	BudgetSecond int               `json:"budget_seconds,omitempty"`
}

// Link is a hyperlink discovered during extraction. Links keep document
// order so repeated analyses of the same page stay structurally identical.
type Link struct {
	Href     string `json:"href"`
	Text     string `json:"text,omitempty"`
	Internal bool   `json:"internal"`
}

// Image is an image reference discovered during extraction.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// PageMeta holds document metadata pulled from head tags.
type PageMeta struct {
	Description string `json:"description,omitempty"`
	Canonical   string `json:"canonical,omitempty"`
	Author      string `json:"author,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	Published   string `json:"published,omitempty"`
}

// OGMeta holds Open Graph metadata.
type OGMeta struct {
	Title       string `json:"title,omitempty"`
	Type        string `json:"type,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
}

// Extraction is the structured result of parsing one page.
type Extraction struct {
	Title    string            `json:"title"`
	Text     string            `json:"text"`
	Links    []Link            `json:"links"`
	Images   []Image           `json:"images,omitempty"`
	Meta     PageMeta          `json:"meta"`
	OG       OGMeta            `json:"og"`
	Language string            `json:"language,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	// FieldCoverage is the share of profile selectors that matched
	// non-empty content. Zero when no profile was applied.
	FieldCoverage float64 `json:"field_coverage,omitempty"`
	// Readable reports whether main-content extraction succeeded or the
	// text fell back to the whole document.
	Readable bool `json:"readable"`
}

// PageInfo describes the fetch that produced an extraction.
type PageInfo struct {
	URL          string    `json:"url"`
	FinalURL     string    `json:"final_url"`
	StatusCode   int       `json:"status_code"`
	UsedHeadless bool      `json:"used_headless"`
	FetchedAt    time.Time `json:"fetched_at"`
	DurationMs   int64     `json:"duration_ms"`
	ContentHash  string    `json:"content_hash"`
	Bytes        int       `json:"bytes"`
	Retries      int       `json:"retries"`
}

// AnalysisResult is the full payload returned by the analyze operation.
type AnalysisResult struct {
	ID          string     `json:"id"`
	Extraction  Extraction `json:"extraction"`
	Page        PageInfo   `json:"page"`
	CacheStatus string     `json:"cache_status,omitempty"`
}

// StatusInfo is reported by the status endpoint. It is computed per request
// and never persisted.
type StatusInfo struct {
	Status        string   `json:"status"`
	Agent         string   `json:"agent_name"`
	Version       string   `json:"version"`
	Port          int      `json:"port"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Capabilities  []string `json:"capabilities"`
	Endpoints     []string `json:"endpoints"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL         string
	Headers     http.Header
	UseHeadless bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ExportFormat selects the artifact encoding for exports.
type ExportFormat string

// Export formats accepted on export requests.
const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// HistoryRecord is the row persisted per analysis when a history store is
// configured. The default configuration discards it.
type HistoryRecord struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	FinalURL    string    `json:"final_url"`
	StatusCode  int       `json:"status_code"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash"`
	Language    string    `json:"language,omitempty"`
	Headless    bool      `json:"used_headless"`
	DurationMs  int64     `json:"duration_ms"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// Event is published after each completed analysis when events are enabled.
type Event struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	StatusCode  int       `json:"status_code"`
	ContentHash string    `json:"content_hash"`
	Headless    bool      `json:"used_headless"`
	Timestamp   time.Time `json:"timestamp"`
}

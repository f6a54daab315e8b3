package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CrossRef searches the CrossRef works API and resolves DOIs.
type CrossRef struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewCrossRef builds a CrossRef client. An empty baseURL uses the public API.
func NewCrossRef(baseURL, userAgent string, client *http.Client) *CrossRef {
	if baseURL == "" {
		baseURL = "https://api.crossref.org"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &CrossRef{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    client,
	}
}

// Name identifies the source in aggregated results.
func (c *CrossRef) Name() string { return "crossref" }

type crossrefWork struct {
	DOI    string   `json:"DOI"`
	Title  []string `json:"title"`
	Author []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`
	ContainerTitle []string `json:"container-title"`
	PublishedPrint struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published-print"`
	PublishedOnline struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published-online"`
	Volume            string `json:"volume"`
	Issue             string `json:"issue"`
	Page              string `json:"page"`
	URL               string `json:"URL"`
	Abstract          string `json:"abstract"`
	ReferencedByCount int    `json:"is-referenced-by-count"`
}

type crossrefSearchResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

type crossrefWorkResponse struct {
	Message crossrefWork `json:"message"`
}

// Search queries the works endpoint sorted by relevance.
func (c *CrossRef) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	endpoint := fmt.Sprintf("%s/works?query=%s&rows=%d",
		c.baseURL, url.QueryEscape(query), maxResults)

	var decoded crossrefSearchResponse
	if err := c.getJSON(ctx, endpoint, &decoded); err != nil {
		return nil, err
	}

	papers := make([]Paper, 0, len(decoded.Message.Items))
	for _, work := range decoded.Message.Items {
		papers = append(papers, c.toPaper(work))
	}
	return papers, nil
}

// ResolveDOI fetches one work by DOI. Leading resolver prefixes are stripped.
func (c *CrossRef) ResolveDOI(ctx context.Context, doi string) (Paper, error) {
	doi = CleanDOI(doi)
	if doi == "" {
		return Paper{}, fmt.Errorf("doi is required")
	}
	endpoint := fmt.Sprintf("%s/works/%s", c.baseURL, url.PathEscape(doi))

	var decoded crossrefWorkResponse
	if err := c.getJSON(ctx, endpoint, &decoded); err != nil {
		return Paper{}, err
	}
	return c.toPaper(decoded.Message), nil
}

// CleanDOI strips resolver URL prefixes from a DOI string.
func CleanDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://dx.doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.TrimSpace(doi)
}

func (c *CrossRef) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build crossref request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("crossref request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("crossref returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode crossref response: %w", err)
	}
	return nil
}

func (c *CrossRef) toPaper(work crossrefWork) Paper {
	title := ""
	if len(work.Title) > 0 {
		title = work.Title[0]
	}

	authors := make([]string, 0, len(work.Author))
	for _, a := range work.Author {
		if a.Given != "" && a.Family != "" {
			authors = append(authors, a.Given+" "+a.Family)
		} else if a.Family != "" {
			authors = append(authors, a.Family)
		}
	}

	venue := ""
	if len(work.ContainerTitle) > 0 {
		venue = work.ContainerTitle[0]
	}

	year := ""
	dateParts := work.PublishedPrint.DateParts
	if len(dateParts) == 0 {
		dateParts = work.PublishedOnline.DateParts
	}
	if len(dateParts) > 0 && len(dateParts[0]) > 0 {
		year = strconv.Itoa(dateParts[0][0])
	}

	paperURL := work.URL
	if paperURL == "" && work.DOI != "" {
		paperURL = "https://doi.org/" + work.DOI
	}

	return Paper{
		Source:        "crossref",
		ID:            work.DOI,
		Title:         title,
		Authors:       authors,
		Venue:         venue,
		Year:          year,
		Abstract:      work.Abstract,
		DOI:           work.DOI,
		URL:           paperURL,
		CitationCount: work.ReferencedByCount,
	}
}

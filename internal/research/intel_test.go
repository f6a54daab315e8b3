package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

// recordingSource remembers every query it was asked to run.
type recordingSource struct {
	mu      sync.Mutex
	name    string
	papers  []Paper
	err     error
	queries []string
}

func (r *recordingSource) Name() string { return r.name }

func (r *recordingSource) Search(_ context.Context, query string, _ int) ([]Paper, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
	return r.papers, r.err
}

func TestCompanyIntelligenceDefaults(t *testing.T) {
	t.Parallel()

	src := &recordingSource{name: "crossref", papers: []Paper{{Title: "P1"}}}
	searcher := NewSearcher([]Source{src}, nil, fixedClock{t: time.Unix(1000, 0)}, nil)
	analyzer := NewAnalyzer(searcher, fixedClock{t: time.Unix(1000, 0)}, nil)

	intel, err := analyzer.CompanyIntelligence(context.Background(), "Acme", nil)
	require.NoError(t, err)
	require.Equal(t, "Acme", intel.Company)
	require.Equal(t, time.Unix(1000, 0).UTC(), intel.Timestamp)
	require.Len(t, intel.ResearchPapers, 3)
	require.Contains(t, intel.ResearchPapers, "innovation")
	require.Contains(t, intel.ResearchPapers, "market strategy")
	require.Contains(t, intel.ResearchPapers, "customer experience")
	require.Nil(t, intel.Errors)

	for _, q := range src.queries {
		require.Contains(t, q, `"Acme"`)
	}
}

func TestCompanyIntelligenceCustomFocusAreas(t *testing.T) {
	t.Parallel()

	src := &recordingSource{name: "crossref", papers: []Paper{{Title: "P1"}}}
	analyzer := NewAnalyzer(
		NewSearcher([]Source{src}, nil, fixedClock{t: time.Unix(0, 0)}, nil),
		fixedClock{t: time.Unix(0, 0)}, nil,
	)

	intel, err := analyzer.CompanyIntelligence(context.Background(), "Acme", []string{"pricing"})
	require.NoError(t, err)
	require.Len(t, intel.ResearchPapers, 1)
	require.Len(t, intel.ResearchPapers["pricing"], 1)
}

func TestCompanyIntelligenceRequiresCompany(t *testing.T) {
	t.Parallel()

	analyzer := NewAnalyzer(nil, fixedClock{t: time.Unix(0, 0)}, nil)
	_, err := analyzer.CompanyIntelligence(context.Background(), "  ", nil)
	require.Error(t, err)
}

func TestCompanyIntelligenceSourceFailuresStayPerArea(t *testing.T) {
	t.Parallel()

	// Source errors are recorded inside each area's SearchResult, not raised.
	src := &recordingSource{name: "crossref", err: errors.New("api down")}
	analyzer := NewAnalyzer(
		NewSearcher([]Source{src}, nil, fixedClock{t: time.Unix(0, 0)}, nil),
		fixedClock{t: time.Unix(0, 0)}, nil,
	)

	intel, err := analyzer.CompanyIntelligence(context.Background(), "Acme", []string{"innovation"})
	require.NoError(t, err)
	require.Nil(t, intel.Errors)
	require.Empty(t, intel.ResearchPapers["innovation"])
}

func TestIndustryTrends(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 400)
	src := &recordingSource{name: "crossref", papers: []Paper{
		{Title: "Low", Abstract: "short abstract", CitationCount: 2, Year: "2022"},
		{Title: "High", Abstract: long, CitationCount: 50, Year: "2023"},
		{Title: "NoAbstract", CitationCount: 999},
	}}
	analyzer := NewAnalyzer(
		NewSearcher([]Source{src}, nil, fixedClock{t: time.Unix(0, 0)}, nil),
		fixedClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}, nil,
	)

	analysis, err := analyzer.IndustryTrends(context.Background(), "retail", "")
	require.NoError(t, err)
	require.Equal(t, "retail", analysis.Industry)
	require.Equal(t, "2024-2025", analysis.Timeframe)

	require.Len(t, analysis.Trends, 4)
	require.Contains(t, analysis.Trends, "market_trends")
	require.Contains(t, analysis.Trends, "consumer_behavior")
	require.Contains(t, analysis.Trends, "innovation")
	require.Contains(t, analysis.Trends, "digital_transformation")

	// Two insights per category: papers without abstracts are skipped and the
	// most cited paper sorts first.
	require.Len(t, analysis.KeyInsights, 8)
	first := analysis.KeyInsights[0]
	require.Equal(t, "High", first.Title)
	require.Equal(t, 50, first.Citations)
	require.Equal(t, "2023", first.Year)
	require.Len(t, first.Insight, insightExcerpt+len("..."))
	require.True(t, strings.HasSuffix(first.Insight, "..."))
	require.Equal(t, "Low", analysis.KeyInsights[1].Title)
	require.Equal(t, "short abstract", analysis.KeyInsights[1].Insight)

	for _, q := range src.queries {
		require.Contains(t, q, "retail")
		require.Contains(t, q, "2024-2025")
	}
}

func TestNewAnalyzerDefaultsClock(t *testing.T) {
	t.Parallel()

	src := &recordingSource{name: "crossref", papers: []Paper{{Title: "P1"}}}
	analyzer := NewAnalyzer(NewSearcher([]Source{src}, nil, nil, nil), nil, nil)

	intel, err := analyzer.CompanyIntelligence(context.Background(), "Acme", []string{"innovation"})
	require.NoError(t, err)
	require.False(t, intel.Timestamp.IsZero())
}

func TestTopInsightsTrimsOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// A multibyte abstract must never be cut mid-rune.
	long := strings.Repeat("é", insightExcerpt+50)
	insights := topInsights([]Paper{{Title: "T", Abstract: long, CitationCount: 1}}, 3)
	require.Len(t, insights, 1)
	require.True(t, utf8.ValidString(insights[0].Insight))
	require.Equal(t, insightExcerpt+len("..."), utf8.RuneCountInString(insights[0].Insight))
	require.True(t, strings.HasSuffix(insights[0].Insight, "..."))
}

func TestIndustryTrendsRequiresIndustry(t *testing.T) {
	t.Parallel()

	analyzer := NewAnalyzer(nil, fixedClock{t: time.Unix(0, 0)}, nil)
	_, err := analyzer.IndustryTrends(context.Background(), "", "1y")
	require.Error(t, err)
}

package research

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/molaison/research-agent/internal/agent"
	"github.com/molaison/research-agent/internal/clock/system"
)

// insightExcerpt caps how much of an abstract lands in a key insight.
const insightExcerpt = 300

// CompanyIntel aggregates per-focus-area research about one company.
type CompanyIntel struct {
	Company        string             `json:"company"`
	Timestamp      time.Time          `json:"timestamp"`
	ResearchPapers map[string][]Paper `json:"research_papers"`
	Errors         map[string]string  `json:"errors,omitempty"`
}

// TrendAnalysis aggregates industry trend research per category.
type TrendAnalysis struct {
	Industry    string             `json:"industry"`
	Timeframe   string             `json:"timeframe"`
	Trends      map[string][]Paper `json:"trend_analysis"`
	KeyInsights []Insight          `json:"key_insights"`
	Errors      map[string]string  `json:"errors,omitempty"`
}

// Insight is a short takeaway extracted from a highly cited paper.
type Insight struct {
	Title     string `json:"title"`
	Insight   string `json:"insight"`
	Citations int    `json:"citations"`
	Year      string `json:"year"`
}

// trendCategories are the query templates applied per industry.
var trendCategories = []string{
	"market trends",
	"consumer behavior",
	"innovation",
	"digital transformation",
}

// Analyzer builds marketing intelligence on top of the academic searcher.
type Analyzer struct {
	searcher *Searcher
	clock    agent.Clock
	logger   *zap.Logger
}

// NewAnalyzer builds an Analyzer.
func NewAnalyzer(searcher *Searcher, clock agent.Clock, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Analyzer{searcher: searcher, clock: clock, logger: logger}
}

// CompanyIntelligence searches academic sources for each focus area around
// one company. Per-area failures are isolated like per-source failures.
func (a *Analyzer) CompanyIntelligence(ctx context.Context, company string, focusAreas []string) (*CompanyIntel, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, agent.NewError(agent.CodeInvalidInput, "company is required", nil)
	}
	if len(focusAreas) == 0 {
		focusAreas = []string{"innovation", "market strategy", "customer experience"}
	}

	intel := &CompanyIntel{
		Company:        company,
		Timestamp:      a.clock.Now().UTC(),
		ResearchPapers: make(map[string][]Paper, len(focusAreas)),
		Errors:         make(map[string]string),
	}

	for _, area := range focusAreas {
		query := fmt.Sprintf("%q %s", company, area)
		result, err := a.searcher.Search(ctx, query, nil, 10)
		if err != nil {
			intel.Errors[area] = err.Error()
			continue
		}
		intel.ResearchPapers[area] = flatten(result)
	}

	if len(intel.Errors) == 0 {
		intel.Errors = nil
	}
	return intel, nil
}

// IndustryTrends searches trend categories for one industry and distills key
// insights from the most cited papers.
func (a *Analyzer) IndustryTrends(ctx context.Context, industry, timeframe string) (*TrendAnalysis, error) {
	industry = strings.TrimSpace(industry)
	if industry == "" {
		return nil, agent.NewError(agent.CodeInvalidInput, "industry is required", nil)
	}
	if timeframe == "" {
		timeframe = fmt.Sprintf("%d-%d", a.clock.Now().Year()-1, a.clock.Now().Year())
	}

	analysis := &TrendAnalysis{
		Industry:  industry,
		Timeframe: timeframe,
		Trends:    make(map[string][]Paper, len(trendCategories)),
		Errors:    make(map[string]string),
	}

	for _, category := range trendCategories {
		query := fmt.Sprintf("%s %s %s", industry, category, timeframe)
		key := strings.ReplaceAll(category, " ", "_")

		result, err := a.searcher.Search(ctx, query, nil, 15)
		if err != nil {
			analysis.Errors[key] = err.Error()
			continue
		}
		papers := flatten(result)
		analysis.Trends[key] = papers
		analysis.KeyInsights = append(analysis.KeyInsights, topInsights(papers, 3)...)
	}

	if len(analysis.Errors) == 0 {
		analysis.Errors = nil
	}
	return analysis, nil
}

// flatten merges per-source papers into one slice.
func flatten(result *SearchResult) []Paper {
	var papers []Paper
	for _, name := range sortedKeys(result.Sources) {
		papers = append(papers, result.Sources[name]...)
	}
	if papers == nil {
		papers = []Paper{}
	}
	return papers
}

// topInsights takes the most cited papers with abstracts and trims their
// abstracts into short takeaways.
func topInsights(papers []Paper, limit int) []Insight {
	withAbstract := make([]Paper, 0, len(papers))
	for _, p := range papers {
		if strings.TrimSpace(p.Abstract) != "" {
			withAbstract = append(withAbstract, p)
		}
	}
	sort.SliceStable(withAbstract, func(i, j int) bool {
		return withAbstract[i].CitationCount > withAbstract[j].CitationCount
	})
	if len(withAbstract) > limit {
		withAbstract = withAbstract[:limit]
	}

	insights := make([]Insight, 0, len(withAbstract))
	for _, p := range withAbstract {
		excerpt := p.Abstract
		if runes := []rune(excerpt); len(runes) > insightExcerpt {
			excerpt = string(runes[:insightExcerpt]) + "..."
		}
		insights = append(insights, Insight{
			Title:     p.Title,
			Insight:   excerpt,
			Citations: p.CitationCount,
			Year:      p.Year,
		})
	}
	return insights
}

func sortedKeys(m map[string][]Paper) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

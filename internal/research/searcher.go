package research

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/molaison/research-agent/internal/agent"
	"github.com/molaison/research-agent/internal/clock/system"
)

// DOIResolver resolves a single DOI to a paper.
type DOIResolver interface {
	ResolveDOI(ctx context.Context, doi string) (Paper, error)
}

// Searcher fans a query out across academic sources. Individual source
// failures are isolated into the result's Errors map so one flaky backend
// never sinks the whole search.
type Searcher struct {
	sources  []Source
	resolver DOIResolver
	clock    agent.Clock
	logger   *zap.Logger

	// DefaultMax caps results per source when the caller passes no limit.
	// Zero falls back to 10.
	DefaultMax int
}

// NewSearcher builds a Searcher over the given sources.
func NewSearcher(sources []Source, resolver DOIResolver, clock agent.Clock, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Searcher{
		sources:  sources,
		resolver: resolver,
		clock:    clock,
		logger:   logger,
	}
}

// Search queries the requested sources. An empty source list queries all of
// them. When the query itself looks like a DOI it is additionally resolved
// under the "doi" key.
func (s *Searcher) Search(ctx context.Context, query string, sourceNames []string, maxResults int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, agent.NewError(agent.CodeInvalidInput, "query is required", nil)
	}
	if maxResults <= 0 {
		maxResults = s.DefaultMax
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	wanted := make(map[string]bool, len(sourceNames))
	for _, name := range sourceNames {
		wanted[strings.ToLower(strings.TrimSpace(name))] = true
	}

	result := &SearchResult{
		Query:     query,
		Timestamp: s.clock.Now().UTC(),
		Sources:   make(map[string][]Paper),
		Errors:    make(map[string]string),
	}

	for _, source := range s.sources {
		if len(wanted) > 0 && !wanted[source.Name()] {
			continue
		}
		papers, err := source.Search(ctx, query, maxResults)
		if err != nil {
			s.logger.Warn("academic source failed",
				zap.String("source", source.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
			result.Errors[source.Name()] = err.Error()
			continue
		}
		result.Sources[source.Name()] = papers
	}

	if s.resolver != nil && looksLikeDOI(query) && (len(wanted) == 0 || wanted["doi"]) {
		paper, err := s.resolver.ResolveDOI(ctx, query)
		if err != nil {
			result.Errors["doi"] = err.Error()
		} else {
			result.Sources["doi"] = []Paper{paper}
		}
	}

	if len(result.Errors) == 0 {
		result.Errors = nil
	}
	return result, nil
}

func looksLikeDOI(query string) bool {
	return strings.Contains(query, "10.") || strings.Contains(strings.ToLower(query), "doi")
}

// ResolveDOI resolves a DOI directly.
func (s *Searcher) ResolveDOI(ctx context.Context, doi string) (Paper, error) {
	if s.resolver == nil {
		return Paper{}, agent.NewError(agent.CodeResearchFailed, "doi resolver not configured", nil)
	}
	paper, err := s.resolver.ResolveDOI(ctx, doi)
	if err != nil {
		return Paper{}, agent.NewError(agent.CodeResearchFailed, "resolve doi", err)
	}
	return paper, nil
}

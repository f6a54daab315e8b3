package research

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name   string
	papers []Paper
	err    error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(_ context.Context, _ string, _ int) ([]Paper, error) {
	return f.papers, f.err
}

type fakeResolver struct {
	paper Paper
	err   error
}

func (f *fakeResolver) ResolveDOI(_ context.Context, _ string) (Paper, error) {
	return f.paper, f.err
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

func TestSearcherAggregatesSources(t *testing.T) {
	t.Parallel()

	s := NewSearcher([]Source{
		&fakeSource{name: "pubmed", papers: []Paper{{Source: "pubmed", Title: "P1"}}},
		&fakeSource{name: "crossref", papers: []Paper{{Source: "crossref", Title: "C1"}}},
	}, nil, fixedClock{t: time.Unix(0, 0)}, nil)

	result, err := s.Search(context.Background(), "memory", nil, 10)
	require.NoError(t, err)
	require.Len(t, result.Sources, 2)
	require.Equal(t, "P1", result.Sources["pubmed"][0].Title)
	require.Equal(t, "C1", result.Sources["crossref"][0].Title)
	require.Nil(t, result.Errors)
}

func TestSearcherIsolatesSourceFailures(t *testing.T) {
	t.Parallel()

	s := NewSearcher([]Source{
		&fakeSource{name: "pubmed", err: errors.New("eutils down")},
		&fakeSource{name: "crossref", papers: []Paper{{Title: "C1"}}},
	}, nil, fixedClock{t: time.Unix(0, 0)}, nil)

	result, err := s.Search(context.Background(), "memory", nil, 10)
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	require.Contains(t, result.Errors["pubmed"], "eutils down")
}

func TestSearcherFiltersRequestedSources(t *testing.T) {
	t.Parallel()

	s := NewSearcher([]Source{
		&fakeSource{name: "pubmed", papers: []Paper{{Title: "P1"}}},
		&fakeSource{name: "crossref", papers: []Paper{{Title: "C1"}}},
	}, nil, fixedClock{t: time.Unix(0, 0)}, nil)

	result, err := s.Search(context.Background(), "memory", []string{"crossref"}, 10)
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	require.Contains(t, result.Sources, "crossref")
}

func TestSearcherResolvesDOIQueries(t *testing.T) {
	t.Parallel()

	s := NewSearcher(
		[]Source{&fakeSource{name: "crossref", papers: []Paper{}}},
		&fakeResolver{paper: Paper{Title: "Resolved", DOI: "10.1/x"}},
		fixedClock{t: time.Unix(0, 0)}, nil,
	)

	result, err := s.Search(context.Background(), "10.1/x", nil, 10)
	require.NoError(t, err)
	require.Len(t, result.Sources["doi"], 1)
	require.Equal(t, "Resolved", result.Sources["doi"][0].Title)

	// Plain text queries must not trigger resolution.
	result, err = s.Search(context.Background(), "memory consolidation", nil, 10)
	require.NoError(t, err)
	require.NotContains(t, result.Sources, "doi")
}

func TestSearcherRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	s := NewSearcher(nil, nil, fixedClock{t: time.Unix(0, 0)}, nil)
	_, err := s.Search(context.Background(), "   ", nil, 10)
	require.Error(t, err)
}

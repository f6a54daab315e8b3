package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/molaison/research-agent/internal/agent"
	"github.com/molaison/research-agent/internal/research"
)

// Service interfaces consumed by the handlers. The app container satisfies
// all of them; tests swap in fakes.
type agentService interface {
	Analyze(ctx context.Context, request agent.AnalyzeRequest) (*agent.AnalysisResult, error)
	RecentHistory(ctx context.Context, limit int) ([]agent.HistoryRecord, error)
	Status() agent.StatusInfo
}

type exporter interface {
	Export(ctx context.Context, result *agent.AnalysisResult, format agent.ExportFormat) (string, error)
}

type searcher interface {
	Search(ctx context.Context, query string, sourceNames []string, maxResults int) (*research.SearchResult, error)
}

type analyzer interface {
	CompanyIntelligence(ctx context.Context, company string, focusAreas []string) (*research.CompanyIntel, error)
	IndustryTrends(ctx context.Context, industry, timeframe string) (*research.TrendAnalysis, error)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Status())
}

// legacyTest is the original quick-check surface: GET|POST /test?url=...
// returning {title, text, links} or {error}. Links are bare hrefs here;
// the structured shape lives under /v1/analyze.
func (s *Server) legacyTest(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" && r.Method == http.MethodPost {
		if strings.Contains(r.Header.Get("Content-Type"), "json") {
			var body struct {
				URL string `json:"url"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				rawURL = strings.TrimSpace(body.URL)
			}
		} else {
			rawURL = strings.TrimSpace(r.PostFormValue("url"))
		}
	}
	if rawURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url parameter is required"})
		return
	}

	result, err := s.agent.Analyze(r.Context(), agent.AnalyzeRequest{URL: rawURL})
	if err != nil {
		// The legacy surface reports failures in-band: bad input is a 400,
		// everything downstream (unresolvable hosts, timeouts, bad status)
		// is a 200 with an error payload.
		status := http.StatusOK
		if agent.CodeFor(err) == agent.CodeInvalidInput {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	links := make([]string, 0, len(result.Extraction.Links))
	for _, link := range result.Extraction.Links {
		links = append(links, link.Href)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"title": result.Extraction.Title,
		"text":  result.Extraction.Text,
		"links": links,
	})
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var request agent.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := s.agent.Analyze(r.Context(), request)
	if err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type exportRequest struct {
	agent.AnalyzeRequest
	ExportFormat string `json:"export_format"`
}

// export analyzes a URL and writes the result to the configured blob store.
func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	var request exportRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	format := agent.ExportFormat(request.ExportFormat)
	if format == "" {
		format = agent.ExportJSON
	}

	result, err := s.agent.Analyze(r.Context(), request.AnalyzeRequest)
	if err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	uri, err := s.exporter.Export(r.Context(), result, format)
	if err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":       result.ID,
		"artifact": uri,
		"format":   string(format),
	})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := s.agent.RecentHistory(r.Context(), limit)
	if err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	if records == nil {
		records = []agent.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// research serves both GET (?q=&sources=&max=) and POST (JSON body) forms.
func (s *Server) research(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	var sources []string
	if raw := r.URL.Query().Get("sources"); raw != "" {
		sources = strings.Split(raw, ",")
	}
	maxResults := 0
	if raw := r.URL.Query().Get("max"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "max must be a positive integer")
			return
		}
		maxResults = parsed
	}
	if query == "" && r.Method == http.MethodPost {
		var body struct {
			Query   string   `json:"query"`
			Sources []string `json:"sources"`
			Max     int      `json:"max_results"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		query = strings.TrimSpace(body.Query)
		sources = body.Sources
		maxResults = body.Max
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	result, err := s.searcher.Search(r.Context(), query, sources, maxResults)
	if err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) parseCitation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Citation  string   `json:"citation"`
		Citations []string `json:"citations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Citation != "" {
		writeJSON(w, http.StatusOK, research.ParseCitation(body.Citation))
		return
	}
	if len(body.Citations) == 0 {
		writeError(w, http.StatusBadRequest, "citation or citations is required")
		return
	}
	parsed := make([]research.Citation, 0, len(body.Citations))
	for _, c := range body.Citations {
		parsed = append(parsed, research.ParseCitation(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"citations": parsed})
}

func (s *Server) companyIntel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Company    string   `json:"company"`
		FocusAreas []string `json:"focus_areas"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	intel, err := s.analyzer.CompanyIntelligence(r.Context(), body.Company, body.FocusAreas)
	if err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intel)
}

// industryTrends serves GET (?industry=&timeframe=) and POST (JSON) forms.
func (s *Server) industryTrends(w http.ResponseWriter, r *http.Request) {
	industry := strings.TrimSpace(r.URL.Query().Get("industry"))
	timeframe := r.URL.Query().Get("timeframe")
	if industry == "" && r.Method == http.MethodPost {
		var body struct {
			Industry  string `json:"industry"`
			Timeframe string `json:"timeframe"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		industry = strings.TrimSpace(body.Industry)
		timeframe = body.Timeframe
	}
	if industry == "" {
		writeError(w, http.StatusBadRequest, "industry parameter is required")
		return
	}
	analysis, err := s.analyzer.IndustryTrends(r.Context(), industry, timeframe)
	if err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// writeAgentError maps an operation error to an HTTP status plus a stable
// error payload {"error": ..., "code": ...}.
func (s *Server) writeAgentError(w http.ResponseWriter, r *http.Request, err error) {
	code := agent.CodeFor(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func statusForCode(code string) int {
	switch code {
	case agent.CodeInvalidInput:
		return http.StatusBadRequest
	case agent.CodeFetchTimeout:
		return http.StatusGatewayTimeout
	case agent.CodeFetchNetwork, agent.CodeFetchStatus, agent.CodeFetchBlocked, agent.CodeResearchFailed:
		return http.StatusBadGateway
	case agent.CodeParseFailed:
		return http.StatusUnprocessableEntity
	case agent.CodeRateLimited:
		return http.StatusTooManyRequests
	case agent.CodeCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

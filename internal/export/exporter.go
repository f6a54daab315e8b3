// Package export encodes analysis results as JSON or CSV artifacts and
// writes them through a blob store with timestamped file names.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/molaison/research-agent/internal/agent"
)

// Exporter writes analysis artifacts.
type Exporter struct {
	store agent.BlobStore
	clock agent.Clock
}

// New builds an Exporter.
func New(store agent.BlobStore, clock agent.Clock) *Exporter {
	return &Exporter{store: store, clock: clock}
}

// Export encodes the result in the requested format and stores it. The
// returned URI identifies the written artifact.
func (e *Exporter) Export(ctx context.Context, result *agent.AnalysisResult, format agent.ExportFormat) (string, error) {
	if result == nil {
		return "", agent.NewError(agent.CodeInvalidInput, "result is required", nil)
	}

	var (
		data        []byte
		contentType string
		err         error
	)
	switch format {
	case agent.ExportJSON, "":
		data, err = json.MarshalIndent(result, "", "  ")
		contentType = "application/json"
		format = agent.ExportJSON
	case agent.ExportCSV:
		data, err = encodeCSV(result)
		contentType = "text/csv"
	default:
		return "", agent.NewError(agent.CodeInvalidInput,
			fmt.Sprintf("unsupported export format %q", format), nil)
	}
	if err != nil {
		return "", agent.NewError(agent.CodeExportFailed, "encode artifact", err)
	}

	path := e.artifactPath(result, format)
	uri, err := e.store.PutObject(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		return "", agent.NewError(agent.CodeExportFailed, "store artifact", err)
	}
	return uri, nil
}

// artifactPath builds a stable, collision-resistant object name:
// exports/<host>_<timestamp>_<id>.<ext>.
func (e *Exporter) artifactPath(result *agent.AnalysisResult, format agent.ExportFormat) string {
	host := "unknown"
	if u, err := url.Parse(result.Page.URL); err == nil && u.Hostname() != "" {
		host = strings.ReplaceAll(u.Hostname(), ".", "_")
	}
	stamp := e.clock.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("exports/%s_%s_%s.%s", host, stamp, result.ID, format)
}

// encodeCSV flattens the result into one row per link with the page context
// repeated, preceded by a header row. Pages without links still produce a
// single row describing the page.
func encodeCSV(result *agent.AnalysisResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"id", "url", "final_url", "status_code", "title", "language",
		"link_href", "link_text", "link_internal",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	base := []string{
		result.ID,
		result.Page.URL,
		result.Page.FinalURL,
		strconv.Itoa(result.Page.StatusCode),
		result.Extraction.Title,
		result.Extraction.Language,
	}

	if len(result.Extraction.Links) == 0 {
		if err := w.Write(append(append([]string{}, base...), "", "", "")); err != nil {
			return nil, err
		}
	}
	for _, link := range result.Extraction.Links {
		row := append(append([]string{}, base...),
			link.Href, link.Text, strconv.FormatBool(link.Internal))
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

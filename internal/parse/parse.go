// Package parse turns fetched HTML into structured extractions: title, main
// text, links, images, metadata, Open Graph tags, and optional profile
// fields. Parsing is best effort: malformed markup degrades the extraction
// instead of failing it.
package parse

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/molaison/research-agent/internal/agent"
)

// Config controls parser behavior.
type Config struct {
	// MinContentLength is the minimum readable-text length for the
	// readability output to be trusted. Shorter output falls back to the
	// whole-document text.
	MinContentLength int
	// MaxLinks caps the number of links kept per document. Zero means no
	// cap.
	MaxLinks       int
	DetectLanguage bool
}

// Parser extracts structured content from HTML documents. A Parser is safe
// for concurrent use.
type Parser struct {
	cfg      Config
	conv     *converter.Converter
	detector *languageDetector
}

// New builds a Parser.
func New(cfg Config) *Parser {
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = 50
	}
	p := &Parser{
		cfg:  cfg,
		conv: newMarkdownConverter(),
	}
	if cfg.DetectLanguage {
		p.detector = newLanguageDetector()
	}
	return p
}

// Parse extracts everything from rawHTML. The format selects what lands in
// the Text field: plain text, Markdown, or the cleaned HTML itself. A
// ParseError is returned only when the document cannot be interpreted as
// HTML at all.
func (p *Parser) Parse(rawHTML []byte, sourceURL string, format agent.OutputFormat) (agent.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return agent.Extraction{}, &agent.ParseError{URL: sourceURL, Err: err}
	}

	og := extractOpenGraph(rawHTML, doc)

	extraction := agent.Extraction{
		Title:  extractTitle(doc, og),
		Links:  extractLinks(doc, sourceURL, p.cfg.MaxLinks),
		Images: extractImages(doc, sourceURL),
		Meta:   extractMeta(doc),
		OG:     og,
	}

	article, readable := p.extractReadable(string(rawHTML), sourceURL)
	extraction.Readable = readable

	text := normalizeWhitespace(article.TextContent)
	if text == "" {
		text = normalizeWhitespace(doc.Text())
	}

	switch format {
	case agent.FormatMarkdown:
		md, mdErr := p.toMarkdown(article.Content, sourceURL)
		if mdErr != nil {
			extraction.Text = text
		} else {
			extraction.Text = md
		}
	case agent.FormatHTML:
		extraction.Text = article.Content
	default:
		extraction.Text = text
	}

	if p.detector != nil {
		extraction.Language = p.detector.detect(text)
	}

	return extraction, nil
}

// ApplyProfile evaluates a named selector set against the document and
// returns the matched fields. Missing selectors produce empty strings so the
// caller can compute completion.
func (p *Parser) ApplyProfile(rawHTML []byte, selectors map[string]string) map[string]string {
	if len(selectors) == 0 {
		return nil
	}
	fields := make(map[string]string, len(selectors))
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		for name := range selectors {
			fields[name] = ""
		}
		return fields
	}
	for name, selector := range selectors {
		fields[name] = strings.TrimSpace(doc.Find(selector).First().Text())
	}
	return fields
}

// extractTitle prefers the document title, then og:title, then the first h1.
func extractTitle(doc *goquery.Document, og agent.OGMeta) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if og.Title != "" {
		return og.Title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// normalizeWhitespace collapses runs of whitespace into single spaces,
// keeping blank-line paragraph breaks.
func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	newlines := 0
	for _, r := range s {
		switch {
		case r == '\n':
			newlines++
			lastSpace = false
		case r == ' ' || r == '\t' || r == '\r':
			lastSpace = true
		default:
			if newlines >= 2 && b.Len() > 0 {
				b.WriteString("\n\n")
			} else if (newlines == 1 || lastSpace) && b.Len() > 0 {
				b.WriteByte(' ')
			}
			newlines = 0
			lastSpace = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

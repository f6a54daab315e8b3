package parse

import (
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// extractReadable runs the Mozilla Readability algorithm on rawHTML. When
// the algorithm fails, or its output is shorter than MinContentLength, the
// raw document is returned instead and the second result is false.
// Extraction never fails outright because readability choked.
func (p *Parser) extractReadable(rawHTML string, sourceURL string) (readability.Article, bool) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		return fallbackArticle(rawHTML), false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		return fallbackArticle(rawHTML), false
	}

	if len(strings.TrimSpace(article.TextContent)) < p.cfg.MinContentLength {
		return fallbackArticle(rawHTML), false
	}

	return article, true
}

// fallbackArticle wraps raw HTML into an Article so downstream formatting
// proceeds uniformly regardless of whether readability succeeded.
func fallbackArticle(rawHTML string) readability.Article {
	return readability.Article{
		Content:     rawHTML,
		TextContent: "",
	}
}

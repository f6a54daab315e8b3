package parse

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"

	"github.com/molaison/research-agent/internal/agent"
)

// extractMeta pulls document metadata from head tags.
func extractMeta(doc *goquery.Document) agent.PageMeta {
	return agent.PageMeta{
		Description: metaContent(doc, "meta[name='description']"),
		Canonical:   attrOf(doc, "link[rel='canonical']", "href"),
		Author:      metaContent(doc, "meta[name='author']"),
		SiteName:    metaContent(doc, "meta[property='og:site_name']"),
		Published:   metaContent(doc, "meta[property='article:published_time']"),
	}
}

// extractOpenGraph parses Open Graph tags with go-opengraph, filling gaps
// from direct meta queries when the library finds nothing.
func extractOpenGraph(rawHTML []byte, doc *goquery.Document) agent.OGMeta {
	var meta agent.OGMeta

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(rawHTML)); err == nil {
		meta = agent.OGMeta{
			Title:       og.Title,
			Type:        og.Type,
			URL:         og.URL,
			Description: og.Description,
			SiteName:    og.SiteName,
		}
		if len(og.Images) > 0 && og.Images[0] != nil {
			meta.Image = og.Images[0].URL
		}
	}

	// Fallback for documents go-opengraph could not process.
	if meta.Title == "" {
		meta.Title = metaContent(doc, "meta[property='og:title']")
	}
	if meta.Description == "" {
		meta.Description = metaContent(doc, "meta[property='og:description']")
	}
	if meta.Image == "" {
		meta.Image = metaContent(doc, "meta[property='og:image']")
	}
	return meta
}

func metaContent(doc *goquery.Document, selector string) string {
	return attrOf(doc, selector, "content")
}

func attrOf(doc *goquery.Document, selector, attr string) string {
	value, _ := doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(value)
}

package parse

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/molaison/research-agent/internal/agent"
)

// extractLinks walks every anchor in document order, resolves hrefs against
// the source URL, and deduplicates by absolute URL. Non-HTTP schemes
// (javascript:, mailto:, tel:) are skipped. maxLinks caps the result when
// positive.
func extractLinks(doc *goquery.Document, sourceURL string, maxLinks int) []agent.Link {
	links := []agent.Link{}

	base, err := url.Parse(sourceURL)
	if err != nil {
		base = nil
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if maxLinks > 0 && len(links) >= maxLinks {
			return
		}
		href, exists := s.Attr("href")
		if !exists || strings.TrimSpace(href) == "" {
			return
		}

		resolved := resolveRef(base, href)
		if resolved == nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}

		absURL := resolved.String()
		if _, ok := seen[absURL]; ok {
			return
		}
		seen[absURL] = struct{}{}

		links = append(links, agent.Link{
			Href:     absURL,
			Text:     strings.TrimSpace(s.Text()),
			Internal: base != nil && strings.EqualFold(resolved.Host, base.Host),
		})
	})

	return links
}

// extractImages returns image references with absolute URLs, skipping data
// URIs.
func extractImages(doc *goquery.Document, sourceURL string) []agent.Image {
	images := []agent.Image{}

	base, err := url.Parse(sourceURL)
	if err != nil {
		base = nil
	}

	seen := make(map[string]struct{})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, exists := s.Attr("src")
		if !exists || strings.TrimSpace(src) == "" {
			return
		}

		resolved := resolveRef(base, src)
		if resolved == nil {
			return
		}
		if resolved.Scheme == "data" {
			return
		}

		absURL := resolved.String()
		if _, ok := seen[absURL]; ok {
			return
		}
		seen[absURL] = struct{}{}

		alt, _ := s.Attr("alt")
		images = append(images, agent.Image{Src: absURL, Alt: strings.TrimSpace(alt)})
	})

	return images
}

func resolveRef(base *url.URL, ref string) *url.URL {
	if base == nil {
		u, err := url.Parse(ref)
		if err != nil {
			return nil
		}
		return u
	}
	resolved, err := base.Parse(ref)
	if err != nil {
		return nil
	}
	return resolved
}

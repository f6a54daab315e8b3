package research

import (
	"regexp"
	"strings"
)

// Citation is the result of parsing one citation string.
type Citation struct {
	Original string         `json:"original"`
	Format   string         `json:"format"`
	Parsed   map[string]any `json:"parsed"`
}

var (
	bibtexEntryRE = regexp.MustCompile(`@(\w+)\s*\{\s*([^,]*),`)
	bibtexFieldRE = regexp.MustCompile(`(?s)(\w+)\s*=\s*(\{([^{}]*)\}|"([^"]*)")`)

	quotedTitleRE = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	yearRE        = regexp.MustCompile(`\((\d{4})\)|\b(\d{4})\b`)
	doiRE         = regexp.MustCompile(`(?i)doi:?\s*(10\.\d+/\S+)`)
	urlRE         = regexp.MustCompile(`https?://\S+`)
	authorRE      = regexp.MustCompile(`([A-Z][a-z]+,\s[A-Z]\.(?:\s?[A-Z]\.)?)`)
)

// ParseCitation parses a citation string. BibTeX entries are recognized by
// shape; everything else falls back to pattern extraction that handles the
// common APA/MLA layouts. Parsing never fails; unmatched fields are simply
// absent.
func ParseCitation(text string) Citation {
	result := Citation{
		Original: text,
		Parsed:   map[string]any{},
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		result.Format = "empty"
		return result
	}

	if strings.Contains(trimmed, "@") && strings.Contains(trimmed, "{") {
		if parsed, ok := parseBibTeX(trimmed); ok {
			result.Format = "bibtex"
			result.Parsed = parsed
			return result
		}
	}

	result.Format = "freeform"
	result.Parsed = parseFreeform(trimmed)
	return result
}

// parseBibTeX extracts fields from a single BibTeX entry.
func parseBibTeX(text string) (map[string]any, bool) {
	entry := bibtexEntryRE.FindStringSubmatch(text)
	if entry == nil {
		return nil, false
	}

	fields := map[string]string{}
	for _, m := range bibtexFieldRE.FindAllStringSubmatch(text, -1) {
		value := m[3]
		if value == "" {
			value = m[4]
		}
		fields[strings.ToLower(m[1])] = strings.TrimSpace(value)
	}
	if len(fields) == 0 {
		return nil, false
	}

	journal := fields["journal"]
	if journal == "" {
		journal = fields["booktitle"]
	}

	parsed := map[string]any{
		"entry_type": strings.ToLower(entry[1]),
		"key":        strings.TrimSpace(entry[2]),
		"title":      fields["title"],
		"journal":    journal,
		"year":       fields["year"],
		"volume":     fields["volume"],
		"pages":      fields["pages"],
		"doi":        fields["doi"],
		"url":        fields["url"],
	}
	if author := fields["author"]; author != "" {
		parsed["authors"] = splitBibTeXAuthors(author)
	}
	return parsed, true
}

func splitBibTeXAuthors(author string) []string {
	parts := strings.Split(author, " and ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseFreeform extracts what it can from an APA/MLA-style citation.
func parseFreeform(text string) map[string]any {
	parsed := map[string]any{}

	if m := quotedTitleRE.FindStringSubmatch(text); m != nil {
		title := m[1]
		if title == "" {
			title = m[2]
		}
		parsed["title"] = strings.TrimSpace(title)
	}
	if m := yearRE.FindStringSubmatch(text); m != nil {
		year := m[1]
		if year == "" {
			year = m[2]
		}
		parsed["year"] = year
	}
	if m := doiRE.FindStringSubmatch(text); m != nil {
		parsed["doi"] = strings.TrimRight(m[1], ".")
	}
	if m := urlRE.FindString(text); m != "" {
		parsed["url"] = strings.TrimRight(m, ".")
	}
	if authors := authorRE.FindAllString(text, -1); len(authors) > 0 {
		parsed["authors"] = authors
	}
	return parsed
}

package parse

import (
	nurl "net/url"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// newMarkdownConverter creates a reusable, goroutine-safe converter. The
// base plugin strips script, style, head, and comment noise; commonmark
// renders the standard Markdown constructs; the table plugin keeps tabular
// structure with minimal cell padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// toMarkdown converts clean HTML to Markdown, resolving relative URLs
// against the source document's host.
func (p *Parser) toMarkdown(htmlContent string, sourceURL string) (string, error) {
	domain := ""
	if u, err := nurl.Parse(sourceURL); err == nil {
		domain = u.Host
	}
	return p.conv.ConvertString(htmlContent, converter.WithDomain(domain))
}

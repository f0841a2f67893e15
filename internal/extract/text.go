package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var skippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"iframe": true, "svg": true, "#comment": true, "head": true,
}

// blockTags end a run of text, so "<td>95</td><td>120</td>" reads "95 120".
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "header": true,
	"footer": true, "aside": true, "nav": true, "main": true, "ul": true, "ol": true,
	"li": true, "dl": true, "dt": true, "dd": true, "table": true, "tr": true,
	"td": true, "th": true, "br": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "button": true, "label": true,
	"option": true, "form": true, "figure": true, "figcaption": true,
}

// SelectionText returns the visible text under s with whitespace collapsed.
func SelectionText(s *goquery.Selection) string {
	var b strings.Builder
	s.Each(func(_ int, el *goquery.Selection) {
		appendText(&b, el)
		b.WriteByte(' ')
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func appendText(b *strings.Builder, s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			b.WriteString(c.Text())
		case skippedTags[name]:
		default:
			block := blockTags[name]
			if block {
				b.WriteByte(' ')
			}
			appendText(b, c)
			if block {
				b.WriteByte(' ')
			}
		}
	})
}

// PageText returns the visible text of an HTML document.
func PageText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return SelectionText(doc.Find("body"))
}

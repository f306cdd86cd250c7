package transcode

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// StylesheetHref is where rendered chapters expect the book stylesheet,
// relative to the Text/ folder.
const StylesheetHref = "../stylesheet.css"

// Header is the document head shared by every rendered chapter.
const Header = `<head><meta charset="UTF-8" /><link rel="stylesheet" type="text/css" href="` + StylesheetHref + `" /></head>`

const xmlDecl = `<?xml version="1.0" encoding="UTF-8"?>`

var renderer = goldmark.New(
	goldmark.WithRendererOptions(html.WithXHTML()),
)

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// MarkdownToXHTML renders a translated page as a standalone XHTML chapter.
// Think traces and part tags are removed, corner brackets become straight
// quotes and markup in the text is escaped before rendering.
func MarkdownToXHTML(markdown string) (string, error) {
	text := StripThink(markdown)
	text = StripParts(text)
	text = ReplaceQuotes(text)
	text = xmlEscaper.Replace(text)

	var body bytes.Buffer
	if err := renderer.Convert([]byte(text), &body); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	var sb strings.Builder
	sb.Grow(body.Len() + 256)
	sb.WriteString(xmlDecl)
	sb.WriteString("\n")
	sb.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml">`)
	sb.WriteString("\n")
	sb.WriteString(Header)
	sb.WriteString("\n<body>\n")
	sb.WriteString(strings.TrimRight(body.String(), "\n"))
	sb.WriteString("\n</body>\n</html>\n")
	return sb.String(), nil
}

package transcode

import (
	"strings"
	"unicode"
)

// Markers the backend or the export format leave in translated text.
const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
	partOpen   = "<part>"
	partClose  = "</part>"
)

// StripThink removes reasoning traces and the whitespace following them.
func StripThink(s string) string {
	return stripRegions(s, thinkOpen, thinkClose)
}

// StripParts removes part tags and the whitespace following them.
func StripParts(s string) string {
	return stripRegions(s, partOpen, partClose)
}

// ReplaceQuotes turns Japanese corner brackets into straight double quotes.
func ReplaceQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

var quoteReplacer = strings.NewReplacer(
	"「", `"`,
	"」", `"`,
	"『", `"`,
	"』", `"`,
)

// stripRegions drops every open...close span. An open marker without a
// matching close is left untouched, as is everything after it.
func stripRegions(s, open, close string) string {
	if !strings.Contains(s, open) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for {
		start := strings.Index(s, open)
		if start < 0 {
			break
		}
		end := strings.Index(s[start+len(open):], close)
		if end < 0 {
			break
		}
		b.WriteString(s[:start])
		s = strings.TrimLeftFunc(s[start+len(open)+end+len(close):], unicode.IsSpace)
	}
	b.WriteString(s)
	return b.String()
}

// Package partition splits chapter markdown into bounded, sentence-aligned
// sections and groups them into translation units.
package partition

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// Terminator is the sentence boundary sections are aligned to.
	Terminator = "。"

	// MaxSectionLen is the exclusive upper bound, in characters, of a
	// section built from more than one sentence.
	MaxSectionLen = 2000

	// GroupSize is the number of sections sent in one backend request.
	GroupSize = 3
)

// Partition splits text after every Terminator and packs the sentences into
// sections shorter than MaxSectionLen characters. A sentence that is longer
// than the bound on its own is kept whole in a section of its own.
//
// Concatenating the returned sections reproduces text exactly.
func Partition(text string) []string {
	if text == "" {
		return nil
	}

	var (
		sections []string
		buf      strings.Builder
		bufLen   int
	)
	for _, sentence := range splitInclusive(text, Terminator) {
		n := utf8.RuneCountInString(sentence)
		if bufLen > 0 && bufLen+n >= MaxSectionLen {
			sections = append(sections, buf.String())
			buf.Reset()
			bufLen = 0
		}
		buf.WriteString(sentence)
		bufLen += n
	}
	if bufLen > 0 {
		sections = append(sections, buf.String())
	}
	return sections
}

// Group concatenates consecutive runs of size sections into translation
// units. The last unit may hold fewer sections. A size below one falls back
// to GroupSize.
func Group(sections []string, size int) []string {
	if size < 1 {
		size = GroupSize
	}
	units := make([]string, 0, (len(sections)+size-1)/size)
	for start := 0; start < len(sections); start += size {
		end := min(start+size, len(sections))
		units = append(units, strings.Join(sections[start:end], ""))
	}
	return units
}

// PartTag returns the marker placed before the nth (1-based) unit.
func PartTag(n int) string {
	return "<part>" + strconv.Itoa(n) + "</part>"
}

// Join renders units with their part tags for previewing a page.
func Join(units []string) string {
	tagged := make([]string, len(units))
	for i, unit := range units {
		tagged[i] = PartTag(i+1) + "\n\n" + unit
	}
	return strings.Join(tagged, "\n\n")
}

// splitInclusive is strings.SplitAfter without the trailing empty element.
func splitInclusive(s, sep string) []string {
	parts := strings.SplitAfter(s, sep)
	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}

// Package document holds the translation model: pages of source units and
// their streamed translations.
package document

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/jackzampolin/honyaku/internal/partition"
	"github.com/jackzampolin/honyaku/internal/transcode"
)

// DefaultThreshold is the minimum percentage of ASCII alphanumerics for a
// unit to count as translated.
const DefaultThreshold = 75

// Activity is the translation state of a page.
type Activity int

const (
	ActivityIncomplete Activity = iota
	ActivityActive
	ActivityComplete
	ActivityError
)

func (a Activity) String() string {
	switch a {
	case ActivityIncomplete:
		return "incomplete"
	case ActivityActive:
		return "active"
	case ActivityComplete:
		return "complete"
	case ActivityError:
		return "error"
	default:
		return fmt.Sprintf("activity(%d)", int(a))
	}
}

// Page is one spine document split into translation units. Text has one
// entry per section and is never resized.
type Page struct {
	Path     string
	Sections []string
	Text     []string
	Activity Activity
}

// NewPage creates an incomplete page with empty translations.
func NewPage(path string, sections []string) *Page {
	return &Page{
		Path:     path,
		Sections: sections,
		Text:     make([]string, len(sections)),
		Activity: ActivityIncomplete,
	}
}

// Stem returns the page's file name without extension.
func (p *Page) Stem() string {
	base := path.Base(p.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Clone returns a deep copy.
func (p *Page) Clone() *Page {
	c := *p
	c.Sections = append([]string(nil), p.Sections...)
	c.Text = append([]string(nil), p.Text...)
	return &c
}

// ClearText empties every translated unit.
func (p *Page) ClearText() {
	for i := range p.Text {
		p.Text[i] = ""
	}
}

// Classify derives the page state from its text using DefaultThreshold.
func (p *Page) Classify() Activity {
	return p.ClassifyThreshold(DefaultThreshold)
}

// ClassifyThreshold derives the page state from its text: any empty unit
// leaves the page incomplete; otherwise the page is complete only when every
// unit reads as English.
func (p *Page) ClassifyThreshold(min int) Activity {
	for _, t := range p.Text {
		if t == "" {
			return ActivityIncomplete
		}
	}
	for _, t := range p.Text {
		if !IsEnglish(t, min) {
			return ActivityError
		}
	}
	return ActivityComplete
}

// IsEnglish reports whether more than min percent of the non-whitespace
// characters in text are ASCII letters or digits.
func IsEnglish(text string, min int) bool {
	var total, ascii int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			ascii++
		}
	}
	if total == 0 {
		return false
	}
	return float64(ascii)*100/float64(total) > float64(min)
}

// Export renders the page in the part-tagged markdown format, with thinking
// traces removed.
func (p *Page) Export() string {
	var sb strings.Builder
	for i, t := range p.Text {
		sb.WriteString(partition.PartTag(i + 1))
		sb.WriteString(t)
		sb.WriteString("\n")
	}
	return transcode.StripThink(sb.String())
}

var partTagPattern = regexp.MustCompile(`<part>\d+</part>`)

// ParseExport splits an exported page back into its units.
func ParseExport(content string) []string {
	locs := partTagPattern.FindAllStringIndex(content, -1)
	units := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		units = append(units, strings.TrimSuffix(content[loc[1]:end], "\n"))
	}
	return units
}

package epub

import (
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ParseAnchors extracts markdown links of the form [title](file.xhtml#frag)
// and returns a map from file name to link title. The first link for a file
// wins. Links without a destination or a title are ignored.
func ParseAnchors(markdown string) map[string]string {
	src := []byte(markdown)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	anchors := make(map[string]string)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}
		dest := string(link.Destination)
		if i := strings.IndexAny(dest, "#?"); i >= 0 {
			dest = dest[:i]
		}
		title := strings.TrimSpace(linkText(link, src))
		if dest == "" || title == "" {
			return ast.WalkSkipChildren, nil
		}
		name := path.Base(dest)
		if _, seen := anchors[name]; !seen {
			anchors[name] = title
		}
		return ast.WalkSkipChildren, nil
	})
	return anchors
}

func linkText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// DefaultImageBase is the image folder as seen from a chapter in Text/.
const DefaultImageBase = "../Images"

// imageAttrs maps image-bearing tags to the attribute holding the path.
var imageAttrs = map[string]string{
	"img":   "src",
	"image": "xlink:href",
}

// RewriteImagePaths points every img src and svg image xlink:href at
// base/<file name>. Everything else in the document is copied byte for byte.
func RewriteImagePaths(doc, base string) (string, error) {
	if base == "" {
		base = DefaultImageBase
	}
	base = strings.TrimRight(base, "/")

	var out bytes.Buffer
	out.Grow(len(doc))

	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("failed to tokenize document: %w", err)
			}
			return out.String(), nil
		}

		// XHTML allows <title/> and <script/>; without this the tokenizer
		// would read the rest of the document as their raw text.
		if tt == html.SelfClosingTagToken {
			z.NextIsNotRawText()
		}

		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(z.Raw())
			continue
		}

		// TagName and TagAttr lower-case the token buffer in place.
		tag := string(z.Raw())
		name, hasAttr := z.TagName()
		attr, ok := imageAttrs[string(name)]
		if !ok || !hasAttr {
			out.WriteString(tag)
			continue
		}

		value, found := tagAttr(z, attr)
		if !found {
			out.WriteString(tag)
			continue
		}
		out.WriteString(replaceAttr(tag, attr, base+"/"+path.Base(value)))
	}
}

func tagAttr(z *html.Tokenizer, name string) (string, bool) {
	for {
		key, val, more := z.TagAttr()
		if string(key) == name {
			return string(val), true
		}
		if !more {
			return "", false
		}
	}
}

// replaceAttr swaps the value of attribute name inside a raw start tag,
// keeping the quoting style and the position of the attribute.
func replaceAttr(tag, name, value string) string {
	lower := strings.ToLower(tag)
	for from := 0; ; {
		i := strings.Index(lower[from:], name)
		if i < 0 {
			return tag
		}
		i += from
		from = i + len(name)
		if i == 0 || !isSpace(tag[i-1]) {
			continue
		}

		j := skipSpaces(tag, i+len(name))
		if j >= len(tag) || tag[j] != '=' {
			continue
		}
		j = skipSpaces(tag, j+1)
		if j >= len(tag) {
			return tag
		}

		escaped := html.EscapeString(value)
		switch q := tag[j]; q {
		case '"', '\'':
			end := strings.IndexByte(tag[j+1:], q)
			if end < 0 {
				return tag
			}
			return tag[:j+1] + escaped + tag[j+1+end:]
		default:
			end := j
			for end < len(tag) && !isSpace(tag[end]) && tag[end] != '>' && !strings.HasPrefix(tag[end:], "/>") {
				end++
			}
			return tag[:j] + `"` + escaped + `"` + tag[end:]
		}
	}
}

func skipSpaces(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// Package transcode converts chapter content between XHTML and markdown.
//
// Both directions are pure functions: HTMLToMarkdown feeds the partitioner
// when a book is opened, MarkdownToXHTML renders translated pages when a
// book is rebuilt.
package transcode

import (
	"fmt"
	"strings"
	"sync"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// skippedTags never carry chapter text worth translating.
var skippedTags = []string{"head", "title", "style", "script", "img", "image"}

var newConverter = sync.OnceValue(func() *md.Converter {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle: "atx",
	})
	conv.Remove(skippedTags...)
	return conv
})

// HTMLToMarkdown converts a chapter document to markdown, dropping the
// document head and every image.
func HTMLToMarkdown(html string) (string, error) {
	out, err := newConverter().ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert html to markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Package extract transcribes the Japanese text of scanned page images with
// a vision model.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/h2non/filetype"
	"github.com/maruel/natural"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Page is one page image and its transcription.
type Page struct {
	Name     string // file name, used in the output
	Image    []byte
	Skip     bool
	Text     string
	Complete bool
}

// LoadImages reads every image in dir, in natural file name order. Files
// are recognised by content, not extension.
func LoadImages(dir string) ([]*Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(natural.StringSlice(names))

	var pages []*Page
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if !filetype.IsImage(data) {
			continue
		}
		pages = append(pages, &Page{Name: name, Image: data})
	}
	return pages, nil
}

// LoadPDF extracts the embedded page images of a scanned PDF into workDir
// and loads them.
func LoadPDF(pdfPath, workDir string) ([]*Page, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", pdfPath, err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to get page count for %s: %w", pdfPath, err)
	}

	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ExtractImagesFile(pdfPath, workDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract images from %s: %w", pdfPath, err)
	}

	pages, err := LoadImages(workDir)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no images found in %s (%d pages)", pdfPath, pageCount)
	}
	return pages, nil
}

// Load reads page images from a directory or a PDF file.
func Load(path, workDir string) ([]*Page, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadImages(path)
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return LoadPDF(path, workDir)
	}
	return nil, fmt.Errorf("%s is neither a directory nor a PDF", path)
}

// Skip marks the named pages to be left out of extraction and output.
func Skip(pages []*Page, names ...string) int {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	n := 0
	for _, p := range pages {
		if want[p.Name] {
			p.Skip = true
			n++
		}
	}
	return n
}

// Render formats every non-skipped page with text as
// "\n<page>NAME</page>\n\nTEXT\n".
func Render(pages []*Page) string {
	var sb strings.Builder
	for _, p := range pages {
		if p.Skip || p.Text == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n<page>%s</page>\n\n%s\n", p.Name, p.Text)
	}
	return sb.String()
}

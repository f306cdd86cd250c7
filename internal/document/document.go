package document

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/natural"
	"go.uber.org/multierr"

	"github.com/jackzampolin/honyaku/internal/epub"
	"github.com/jackzampolin/honyaku/internal/partition"
	"github.com/jackzampolin/honyaku/internal/transcode"
)

// ExportExt is the file extension of exported pages.
const ExportExt = ".md"

// Document is a book prepared for translation. Pages follow spine order.
type Document struct {
	Name  string
	Pages []*Page
}

// Load converts every spine document of book to markdown and partitions it.
// Documents without text produce no page.
func Load(book *epub.Book, name string, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	doc := &Document{Name: name}
	for _, p := range book.Spine() {
		raw, err := book.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		md, err := transcode.HTMLToMarkdown(string(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", p, err)
		}
		units := partition.Group(partition.Partition(md), partition.GroupSize)
		if len(units) == 0 {
			logger.Debug("skipping empty document", "path", p)
			continue
		}
		doc.Pages = append(doc.Pages, NewPage(p, units))
	}
	logger.Info("document loaded", "name", name, "pages", len(doc.Pages))
	return doc, nil
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := &Document{Name: d.Name, Pages: make([]*Page, len(d.Pages))}
	for i, p := range d.Pages {
		c.Pages[i] = p.Clone()
	}
	return c
}

// Counts tallies pages by activity.
func (d *Document) Counts() map[Activity]int {
	counts := make(map[Activity]int)
	for _, p := range d.Pages {
		counts[p.Activity]++
	}
	return counts
}

// SavePages writes every page to dir as <stem>.md. Each file is replaced
// atomically; failures are collected and the remaining pages still written.
func (d *Document) SavePages(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	var errs error
	for _, p := range d.Pages {
		errs = multierr.Append(errs, SavePage(dir, p))
	}
	return errs
}

// SavePage writes a single page to dir as <stem>.md.
func SavePage(dir string, p *Page) error {
	target := filepath.Join(dir, p.Stem()+ExportExt)
	if err := writeFileAtomic(target, []byte(p.Export())); err != nil {
		return fmt.Errorf("failed to save %s: %w", p.Stem(), err)
	}
	return nil
}

// ApplyExports restores translations from a previous export in dir. A page is
// restored only when its file exists and holds one unit per section. Pages
// are reclassified with threshold. It returns the number of restored pages.
func (d *Document) ApplyExports(dir string, threshold int) (int, error) {
	restored := 0
	for _, p := range d.Pages {
		data, err := os.ReadFile(filepath.Join(dir, p.Stem()+ExportExt))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return restored, fmt.Errorf("failed to read export for %s: %w", p.Stem(), err)
		}
		units := ParseExport(string(data))
		if len(units) != len(p.Text) {
			continue
		}
		copy(p.Text, units)
		p.Activity = p.ClassifyThreshold(threshold)
		restored++
	}
	return restored, nil
}

// LoadMarkdownDir reads every markdown file in dir in natural order.
func LoadMarkdownDir(dir string) ([]epub.BuilderPage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ExportExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(natural.StringSlice(names))

	pages := make([]epub.BuilderPage, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		pages = append(pages, epub.BuilderPage{Path: name, Content: string(data)})
	}
	return pages, nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()
	if _, err = f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

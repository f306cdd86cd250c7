package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/jackzampolin/honyaku/internal/transcode"
)

const (
	// DefaultImageDir is the archive folder (under OEBPS) receiving images.
	DefaultImageDir = "Images"

	textDir        = "Text"
	stylesheetName = "stylesheet.css"
	mimetype       = "application/epub+zip"
)

// BuilderPage is a translated markdown page. Path is the markdown file name;
// its stem selects the spine document it replaces.
type BuilderPage struct {
	Path    string
	Content string
}

// Stem returns the file name of Path without its extension.
func (p BuilderPage) Stem() string {
	return fileStem(p.Path)
}

// Option configures a Builder.
type Option func(*Builder)

// WithTOC supplies a markdown table of contents whose links name chapter
// titles, e.g. [Prologue](prologue.xhtml).
func WithTOC(markdown string) Option {
	return func(b *Builder) {
		b.anchors = ParseAnchors(markdown)
		b.hasTOC = true
	}
}

// WithTitle overrides the title written to the package document.
func WithTitle(title string) Option {
	return func(b *Builder) { b.title = title }
}

// WithImageDir sets the archive folder receiving images.
func WithImageDir(dir string) Option {
	return func(b *Builder) {
		if dir = strings.Trim(dir, "/"); dir != "" {
			b.imageDir = dir
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// Builder creates an EPUB 3.0 archive from a source book and its translated
// pages. A Builder can be reused; each build is independent.
type Builder struct {
	src      *Book
	title    string
	imageDir string
	anchors  map[string]string
	hasTOC   bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewBuilder creates a builder for the given source book.
func NewBuilder(src *Book, opts ...Option) *Builder {
	b := &Builder{
		src:      src,
		title:    src.Title(),
		imageDir: DefaultImageDir,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "epub_builder")
	return b
}

// Build generates the epub and writes it to outputPath. The archive is
// written to a temporary file in the same directory and renamed into place,
// so a failed build leaves nothing behind.
func (b *Builder) Build(ctx context.Context, outputPath string, pages []BuilderPage) (err error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".honyaku-*.epub.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err := b.WriteTo(ctx, f, pages); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}

	b.logger.Info("epub written", "path", outputPath, "pages", len(pages))
	return nil
}

// BuildToBuffer generates the epub and returns it as a byte buffer.
func (b *Builder) BuildToBuffer(ctx context.Context, pages []BuilderPage) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := b.WriteTo(ctx, buf, pages); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteTo writes the epub to w.
func (b *Builder) WriteTo(ctx context.Context, w io.Writer, pages []BuilderPage) error {
	pkg, err := b.assemble(ctx, pages)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)

	// 1. mimetype (must be first, uncompressed)
	if err := writeMimetype(zw); err != nil {
		return err
	}

	// 2. Fixed documents
	fixed := []struct {
		name string
		gen  func() ([]byte, error)
	}{
		{"META-INF/container.xml", generateContainer},
		{"OEBPS/content.opf", pkg.generatePackage},
		{"OEBPS/nav.xhtml", pkg.generateNavigation},
		{"OEBPS/toc.ncx", pkg.generateNCX},
	}
	for _, doc := range fixed {
		data, err := doc.gen()
		if err != nil {
			return fmt.Errorf("failed to generate %s: %w", doc.name, err)
		}
		if err := writeEntry(zw, doc.name, data); err != nil {
			return err
		}
	}
	if err := writeEntry(zw, "OEBPS/"+stylesheetName, []byte(defaultStylesheet)); err != nil {
		return err
	}

	// 3. Images and chapters
	for _, it := range pkg.items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeEntry(zw, "OEBPS/"+it.href, it.data); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// item is a manifest entry of the generated package.
type item struct {
	id         string
	href       string // relative to OEBPS
	mediaType  string
	properties string
	data       []byte
	spine      bool
}

// navPoint is a table-of-contents entry; level-2 entries nest under the
// preceding level-1 entry.
type navPoint struct {
	title    string
	href     string
	children []*navPoint
}

// pkg is the fully resolved content of one build.
type pkg struct {
	identifier string
	title      string
	modified   time.Time
	coverID    string
	items      []item
	nav        []*navPoint
}

func (b *Builder) assemble(ctx context.Context, pages []BuilderPage) (*pkg, error) {
	p := &pkg{
		identifier: "urn:uuid:" + uuid.New().String(),
		title:      b.title,
		modified:   b.now().UTC(),
	}

	names := make(map[string]string)
	claim := func(href, source string) error {
		if prev, ok := names[href]; ok {
			return fmt.Errorf("%s and %s both map to %s", prev, source, href)
		}
		names[href] = source
		return nil
	}

	if err := b.addImages(ctx, p, claim); err != nil {
		return nil, err
	}
	if err := b.addChapters(ctx, p, pages, claim); err != nil {
		return nil, err
	}
	return p, nil
}

func (b *Builder) addImages(ctx context.Context, p *pkg, claim func(href, source string) error) error {
	coverID := b.src.CoverID()
	ids := make(map[string]bool)
	for _, r := range b.src.Manifest() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.MediaType == mediaTypeXHTML || r.MediaType == mediaTypeNCX {
			continue
		}
		data, err := b.src.ReadFile(r.Path)
		if err != nil {
			b.logger.Warn("skipping unreadable resource", "path", r.Path, "error", err)
			continue
		}

		mediaType := r.MediaType
		if !r.IsImage() {
			if !filetype.IsImage(data) {
				continue
			}
			kind, _ := filetype.Match(data)
			mediaType = kind.MIME.Value
		}

		href := b.imageDir + "/" + path.Base(r.Path)
		if err := claim(href, r.Path); err != nil {
			b.logger.Warn("skipping duplicate image name", "path", r.Path, "error", err)
			continue
		}

		base := "img-" + sanitizeID(path.Base(r.Path))
		id := base
		for n := 2; ids[id]; n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		ids[id] = true

		it := item{
			id:        id,
			href:      href,
			mediaType: mediaType,
			data:      data,
		}
		if r.ID == coverID {
			it.properties = "cover-image"
			p.coverID = it.id
		}
		p.items = append(p.items, it)
	}
	return nil
}

func (b *Builder) addChapters(ctx context.Context, p *pkg, pages []BuilderPage, claim func(href, source string) error) error {
	byStem := make(map[string]BuilderPage, len(pages))
	for _, pg := range pages {
		if _, ok := byStem[pg.Stem()]; !ok {
			byStem[pg.Stem()] = pg
		}
	}

	sourceTitles := make(map[string]string)
	for _, e := range b.src.TOC() {
		name := path.Base(e.Path)
		if _, ok := sourceTitles[name]; !ok {
			sourceTitles[name] = e.Title
		}
	}

	imageBase := "../" + b.imageDir
	count := 0
	for i, spinePath := range b.src.Spine() {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := path.Base(spinePath)
		href := textDir + "/" + name
		if err := claim(href, spinePath); err != nil {
			return fmt.Errorf("duplicate chapter file: %w", err)
		}

		var content string
		if pg, ok := byStem[fileStem(name)]; ok {
			xhtml, err := transcode.MarkdownToXHTML(pg.Content)
			if err != nil {
				return fmt.Errorf("failed to render %s: %w", pg.Path, err)
			}
			content = xhtml
		} else {
			raw, err := b.src.ReadFile(spinePath)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", spinePath, err)
			}
			rewritten, err := transcode.RewriteImagePaths(string(raw), imageBase)
			if err != nil {
				return fmt.Errorf("failed to rewrite images in %s: %w", spinePath, err)
			}
			content = rewritten
		}

		p.items = append(p.items, item{
			id:        fmt.Sprintf("chapter-%03d", i+1),
			href:      href,
			mediaType: mediaTypeXHTML,
			data:      []byte(content),
			spine:     true,
		})

		if b.hasTOC {
			if title, ok := b.anchors[name]; ok {
				p.nav = append(p.nav, &navPoint{title: title, href: href})
				continue
			}
			title := sourceTitles[name]
			if title == "" {
				title = fileStem(name)
			}
			child := &navPoint{title: title, href: href}
			if n := len(p.nav); n > 0 {
				p.nav[n-1].children = append(p.nav[n-1].children, child)
			} else {
				p.nav = append(p.nav, child)
			}
			continue
		}

		if _, ok := sourceTitles[name]; ok {
			count++
			p.nav = append(p.nav, &navPoint{title: fmt.Sprintf("Chapter: %d", count), href: href})
		}
	}

	// Readers reject an empty navigation document.
	if len(p.nav) == 0 {
		for _, it := range p.items {
			if it.spine {
				title := p.title
				if title == "" {
					title = fileStem(it.href)
				}
				p.nav = append(p.nav, &navPoint{title: title, href: it.href})
				break
			}
		}
	}
	return nil
}

func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	_, err = w.Write([]byte(mimetype))
	return err
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func fileStem(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

// sanitizeID turns a file name into a valid XML id.
func sanitizeID(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

const defaultStylesheet = `body {
  font-family: Georgia, "Times New Roman", serif;
  line-height: 1.6;
  margin: 1em;
}

h1, h2, h3, h4, h5, h6 {
  font-weight: bold;
  margin-top: 1.5em;
  margin-bottom: 0.5em;
  text-align: center;
}

p {
  margin: 0.5em 0;
  text-indent: 1em;
}

img {
  display: block;
  max-width: 100%;
  margin: 1em auto;
}

hr {
  border: none;
  text-align: center;
  margin: 1.5em 0;
}
`

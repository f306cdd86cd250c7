// Package epub reads EPUB archives and rebuilds them from translated pages.
package epub

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	containerPath = "META-INF/container.xml"

	mediaTypeXHTML = "application/xhtml+xml"
	mediaTypeNCX   = "application/x-dtbncx+xml"
)

// Resource is a manifest entry.
type Resource struct {
	ID         string
	Path       string // archive path, e.g. OEBPS/Text/ch01.xhtml
	MediaType  string
	Properties string
}

// IsImage reports whether the manifest declares an image.
func (r Resource) IsImage() bool {
	return strings.HasPrefix(r.MediaType, "image/")
}

// TOCEntry maps a content document to its table-of-contents title.
type TOCEntry struct {
	Path  string
	Title string
}

// Book is a parsed EPUB archive. It holds the archive bytes in memory.
type Book struct {
	files map[string]*zip.File
	lower map[string]*zip.File

	title    string
	language string
	manifest []Resource
	byID     map[string]int
	spine    []string
	coverID  string
	toc      []TOCEntry
}

// Open reads and parses the EPUB at path.
func Open(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Read(data)
}

// Read parses EPUB bytes. Malformed archives yield a *DocumentError.
func Read(data []byte) (*Book, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, docErr("open", "", err)
	}

	b := &Book{
		files: make(map[string]*zip.File, len(zr.File)),
		lower: make(map[string]*zip.File, len(zr.File)),
		byID:  make(map[string]int),
	}
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, "/")
		b.files[name] = f
		b.lower[strings.ToLower(name)] = f
	}

	opfPath, err := b.parseContainer()
	if err != nil {
		return nil, err
	}
	if err := b.parsePackage(opfPath); err != nil {
		return nil, err
	}
	return b, nil
}

// Title returns dc:title, or an empty string.
func (b *Book) Title() string { return b.title }

// Language returns dc:language, or an empty string.
func (b *Book) Language() string { return b.language }

// Spine returns content document paths in reading order.
func (b *Book) Spine() []string {
	out := make([]string, len(b.spine))
	copy(out, b.spine)
	return out
}

// Manifest returns every manifest entry in declaration order.
func (b *Book) Manifest() []Resource {
	out := make([]Resource, len(b.manifest))
	copy(out, b.manifest)
	return out
}

// Resources returns the manifest keyed by id.
func (b *Book) Resources() map[string]Resource {
	out := make(map[string]Resource, len(b.manifest))
	for _, r := range b.manifest {
		out[r.ID] = r
	}
	return out
}

// Resource returns the manifest entry with the given id.
func (b *Book) Resource(id string) (Resource, bool) {
	i, ok := b.byID[id]
	if !ok {
		return Resource{}, false
	}
	return b.manifest[i], true
}

// CoverID returns the manifest id of the cover image, or "" when the book
// has none.
func (b *Book) CoverID() string { return b.coverID }

// TOC returns the table of contents in document order.
func (b *Book) TOC() []TOCEntry {
	out := make([]TOCEntry, len(b.toc))
	copy(out, b.toc)
	return out
}

// TOCTitles maps content paths to their first table-of-contents title.
func (b *Book) TOCTitles() map[string]string {
	titles := make(map[string]string, len(b.toc))
	for _, e := range b.toc {
		if _, ok := titles[e.Path]; !ok {
			titles[e.Path] = e.Title
		}
	}
	return titles
}

// ReadFile returns the contents of an archive entry. Lookups fall back to a
// case-insensitive match since many books disagree with their manifest.
func (b *Book) ReadFile(name string) ([]byte, error) {
	name = strings.TrimPrefix(name, "/")
	f, ok := b.files[name]
	if !ok {
		f, ok = b.lower[strings.ToLower(name)]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func (b *Book) readXML(op, name string) (*etree.Document, error) {
	data, err := b.ReadFile(name)
	if err != nil {
		return nil, docErr(op, name, err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, docErr(op, name, err)
	}
	return doc, nil
}

func (b *Book) parseContainer() (string, error) {
	doc, err := b.readXML("container", containerPath)
	if err != nil {
		return "", err
	}
	for _, rf := range doc.FindElements("//rootfile") {
		mt := rf.SelectAttrValue("media-type", "")
		if mt != "" && mt != "application/oebps-package+xml" {
			continue
		}
		if p := rf.SelectAttrValue("full-path", ""); p != "" {
			return strings.TrimPrefix(p, "/"), nil
		}
	}
	return "", docErr("container", containerPath, errors.New("no package document declared"))
}

func (b *Book) parsePackage(opfPath string) error {
	doc, err := b.readXML("package", opfPath)
	if err != nil {
		return err
	}
	root := doc.Root()
	if root == nil || root.Tag != "package" {
		return docErr("package", opfPath, errors.New("missing package element"))
	}
	base := path.Dir(opfPath)

	if el := root.FindElement("./metadata/title"); el != nil {
		b.title = strings.TrimSpace(el.Text())
	}
	if el := root.FindElement("./metadata/language"); el != nil {
		b.language = strings.TrimSpace(el.Text())
	}

	for _, item := range root.FindElements("./manifest/item") {
		id := item.SelectAttrValue("id", "")
		href := item.SelectAttrValue("href", "")
		if id == "" || href == "" {
			continue
		}
		b.byID[id] = len(b.manifest)
		b.manifest = append(b.manifest, Resource{
			ID:         id,
			Path:       resolveHref(base, href),
			MediaType:  strings.ToLower(item.SelectAttrValue("media-type", "")),
			Properties: item.SelectAttrValue("properties", ""),
		})
	}
	if len(b.manifest) == 0 {
		return docErr("package", opfPath, errors.New("empty manifest"))
	}

	spine := root.FindElement("./spine")
	if spine == nil {
		return docErr("package", opfPath, errors.New("missing spine"))
	}
	for _, ref := range spine.SelectElements("itemref") {
		if r, ok := b.Resource(ref.SelectAttrValue("idref", "")); ok {
			b.spine = append(b.spine, r.Path)
		}
	}

	b.coverID = b.findCover(root)
	b.toc = b.parseTOC(spine.SelectAttrValue("toc", ""))
	return nil
}

// findCover tries the EPUB 3 property, then the EPUB 2 meta, then an image
// whose id or file name mentions "cover".
func (b *Book) findCover(root *etree.Element) string {
	for _, r := range b.manifest {
		if hasProperty(r.Properties, "cover-image") {
			return r.ID
		}
	}
	for _, meta := range root.FindElements("./metadata/meta") {
		if meta.SelectAttrValue("name", "") != "cover" {
			continue
		}
		content := meta.SelectAttrValue("content", "")
		if r, ok := b.Resource(content); ok && r.IsImage() {
			return r.ID
		}
		// Some books put the href in content instead of the id.
		for _, r := range b.manifest {
			if r.IsImage() && path.Base(r.Path) == path.Base(content) {
				return r.ID
			}
		}
	}
	for _, r := range b.manifest {
		if r.IsImage() && (strings.Contains(strings.ToLower(r.ID), "cover") ||
			strings.Contains(strings.ToLower(path.Base(r.Path)), "cover")) {
			return r.ID
		}
	}
	return ""
}

func (b *Book) parseTOC(ncxID string) []TOCEntry {
	for _, r := range b.manifest {
		if hasProperty(r.Properties, "nav") {
			if entries := b.parseNav(r.Path); len(entries) > 0 {
				return entries
			}
		}
	}

	ncx, ok := b.Resource(ncxID)
	if !ok {
		for _, r := range b.manifest {
			if r.MediaType == mediaTypeNCX {
				ncx, ok = r, true
				break
			}
		}
	}
	if ok {
		return b.parseNCX(ncx.Path)
	}
	return nil
}

func (b *Book) parseNCX(ncxPath string) []TOCEntry {
	doc, err := b.readXML("ncx", ncxPath)
	if err != nil {
		return nil
	}
	base := path.Dir(ncxPath)
	var entries []TOCEntry
	for _, np := range doc.FindElements("//navPoint") {
		content := np.SelectElement("content")
		label := np.FindElement("./navLabel/text")
		if content == nil || label == nil {
			continue
		}
		src := content.SelectAttrValue("src", "")
		if src == "" {
			continue
		}
		entries = append(entries, TOCEntry{
			Path:  resolveHref(base, src),
			Title: strings.TrimSpace(label.Text()),
		})
	}
	return entries
}

func (b *Book) parseNav(navPath string) []TOCEntry {
	data, err := b.ReadFile(navPath)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	nav := findNode(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Nav && attr(n, "epub:type") == "toc"
	})
	if nav == nil {
		nav = findNode(doc, func(n *html.Node) bool { return n.DataAtom == atom.Nav })
	}
	if nav == nil {
		return nil
	}

	base := path.Dir(navPath)
	var entries []TOCEntry
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if href := attr(n, "href"); href != "" {
				entries = append(entries, TOCEntry{
					Path:  resolveHref(base, href),
					Title: strings.Join(strings.Fields(textContent(n)), " "),
				})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(nav)
	return entries
}

// resolveHref joins a manifest or TOC href to its document directory,
// dropping any fragment or query.
func resolveHref(base, href string) string {
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		href = href[:i]
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if strings.HasPrefix(href, "/") {
		return strings.TrimPrefix(path.Clean(href), "/")
	}
	p := path.Join(base, href)
	return strings.TrimPrefix(p, "./")
}

func hasProperty(props, want string) bool {
	for _, p := range strings.Fields(props) {
		if p == want {
			return true
		}
	}
	return false
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		if name == key || a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

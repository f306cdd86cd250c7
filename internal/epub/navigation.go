package epub

import (
	"fmt"

	"github.com/beevik/etree"
)

// generateNavigation creates the nav.xhtml navigation document.
func (p *pkg) generateNavigation() ([]byte, error) {
	doc := newXMLDocument()
	doc.CreateDirective("DOCTYPE html")

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", nsXHTML)
	html.CreateAttr("xmlns:epub", nsOPS)

	head := html.CreateElement("head")
	head.CreateElement("title").SetText("Table of Contents")
	link := head.CreateElement("link")
	link.CreateAttr("rel", "stylesheet")
	link.CreateAttr("type", "text/css")
	link.CreateAttr("href", stylesheetName)

	nav := html.CreateElement("body").CreateElement("nav")
	nav.CreateAttr("epub:type", "toc")
	nav.CreateAttr("id", "toc")
	nav.CreateElement("h1").SetText("Table of Contents")
	writeNavList(nav, p.nav)

	return serialize(doc)
}

func writeNavList(parent *etree.Element, points []*navPoint) {
	ol := parent.CreateElement("ol")
	for _, np := range points {
		li := ol.CreateElement("li")
		a := li.CreateElement("a")
		a.CreateAttr("href", np.href)
		a.SetText(np.title)
		if len(np.children) > 0 {
			writeNavList(li, np.children)
		}
	}
}

// generateNCX creates toc.ncx for EPUB 2 readers.
func (p *pkg) generateNCX() ([]byte, error) {
	doc := newXMLDocument()
	ncx := doc.CreateElement("ncx")
	ncx.CreateAttr("xmlns", nsNCX)
	ncx.CreateAttr("version", "2005-1")

	head := ncx.CreateElement("head")
	addMeta := func(name, content string) {
		m := head.CreateElement("meta")
		m.CreateAttr("name", name)
		m.CreateAttr("content", content)
	}
	addMeta("dtb:uid", p.identifier)
	addMeta("dtb:depth", fmt.Sprint(navDepth(p.nav)))
	addMeta("dtb:totalPageCount", "0")
	addMeta("dtb:maxPageNumber", "0")

	ncx.CreateElement("docTitle").CreateElement("text").SetText(p.title)

	navMap := ncx.CreateElement("navMap")
	order := 0
	var write func(parent *etree.Element, points []*navPoint)
	write = func(parent *etree.Element, points []*navPoint) {
		for _, np := range points {
			order++
			el := parent.CreateElement("navPoint")
			el.CreateAttr("id", fmt.Sprintf("navpoint-%d", order))
			el.CreateAttr("playOrder", fmt.Sprint(order))
			el.CreateElement("navLabel").CreateElement("text").SetText(np.title)
			el.CreateElement("content").CreateAttr("src", np.href)
			write(el, np.children)
		}
	}
	write(navMap, p.nav)

	return serialize(doc)
}

func navDepth(points []*navPoint) int {
	depth := 0
	for _, np := range points {
		if d := 1 + navDepth(np.children); d > depth {
			depth = d
		}
	}
	return depth
}

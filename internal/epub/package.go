package epub

import (
	"github.com/beevik/etree"
)

const (
	nsOPF       = "http://www.idpf.org/2007/opf"
	nsDC        = "http://purl.org/dc/elements/1.1/"
	nsContainer = "urn:oasis:names:tc:opendocument:xmlns:container"
	nsXHTML     = "http://www.w3.org/1999/xhtml"
	nsOPS       = "http://www.idpf.org/2007/ops"
	nsNCX       = "http://www.daisy.org/z3986/2005/ncx/"
)

func newXMLDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	return doc
}

func serialize(doc *etree.Document) ([]byte, error) {
	doc.Indent(2)
	return doc.WriteToBytes()
}

func generateContainer() ([]byte, error) {
	doc := newXMLDocument()
	container := doc.CreateElement("container")
	container.CreateAttr("version", "1.0")
	container.CreateAttr("xmlns", nsContainer)
	rf := container.CreateElement("rootfiles").CreateElement("rootfile")
	rf.CreateAttr("full-path", "OEBPS/content.opf")
	rf.CreateAttr("media-type", "application/oebps-package+xml")
	return serialize(doc)
}

// generatePackage creates the content.opf package document.
func (p *pkg) generatePackage() ([]byte, error) {
	doc := newXMLDocument()
	root := doc.CreateElement("package")
	root.CreateAttr("xmlns", nsOPF)
	root.CreateAttr("version", "3.0")
	root.CreateAttr("unique-identifier", "pub-id")

	meta := root.CreateElement("metadata")
	meta.CreateAttr("xmlns:dc", nsDC)
	id := meta.CreateElement("dc:identifier")
	id.CreateAttr("id", "pub-id")
	id.SetText(p.identifier)
	title := p.title
	if title == "" {
		title = "Untitled"
	}
	meta.CreateElement("dc:title").SetText(title)
	meta.CreateElement("dc:language").SetText("en")
	modified := meta.CreateElement("meta")
	modified.CreateAttr("property", "dcterms:modified")
	modified.SetText(p.modified.Format("2006-01-02T15:04:05Z"))
	if p.coverID != "" {
		cover := meta.CreateElement("meta")
		cover.CreateAttr("name", "cover")
		cover.CreateAttr("content", p.coverID)
	}

	manifest := root.CreateElement("manifest")
	addItem := func(id, href, mediaType, properties string) {
		el := manifest.CreateElement("item")
		el.CreateAttr("id", id)
		el.CreateAttr("href", href)
		el.CreateAttr("media-type", mediaType)
		if properties != "" {
			el.CreateAttr("properties", properties)
		}
	}
	addItem("nav", "nav.xhtml", mediaTypeXHTML, "nav")
	addItem("ncx", "toc.ncx", mediaTypeNCX, "")
	addItem("style", stylesheetName, "text/css", "")
	for _, it := range p.items {
		addItem(it.id, it.href, it.mediaType, it.properties)
	}

	spine := root.CreateElement("spine")
	spine.CreateAttr("toc", "ncx")
	for _, it := range p.items {
		if it.spine {
			spine.CreateElement("itemref").CreateAttr("idref", it.id)
		}
	}

	return serialize(doc)
}

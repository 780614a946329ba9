package locator

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// HTMLDocument is a Document over a parsed static HTML page.
type HTMLDocument struct {
	doc *goquery.Document
}

// ParseHTML parses r into an HTMLDocument.
func ParseHTML(r io.Reader) (*HTMLDocument, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("locator: parse html: %w", err)
	}
	return &HTMLDocument{doc: doc}, nil
}

// NewHTMLDocument wraps an already parsed goquery document.
func NewHTMLDocument(doc *goquery.Document) *HTMLDocument {
	return &HTMLDocument{doc: doc}
}

// Title returns the trimmed <title> text.
func (d *HTMLDocument) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// Elements returns the elements matching a CSS selector in document order.
// An empty selector selects every element.
func (d *HTMLDocument) Elements(selector string) ([]Element, error) {
	if selector == "" {
		selector = "*"
	}
	if _, err := cascadia.Parse(selector); err != nil {
		return nil, fmt.Errorf("locator: invalid selector %q: %w", selector, err)
	}
	sel := d.doc.Find(selector)
	out := make([]Element, 0, sel.Length())
	for _, n := range sel.Nodes {
		out = append(out, &HTMLElement{node: n})
	}
	return out, nil
}

// Text returns the element's collapsed text content.
func (d *HTMLDocument) Text(el Element) string {
	he, ok := el.(*HTMLElement)
	if !ok {
		return ""
	}
	return strings.Join(strings.Fields(goquery.NewDocumentFromNode(he.node).Text()), " ")
}

// Parent implements Document.
func (d *HTMLDocument) Parent(el Element) (Element, error) {
	he, ok := el.(*HTMLElement)
	if !ok {
		return nil, fmt.Errorf("locator: foreign element %T", el)
	}
	p := he.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil, ErrNoParent
	}
	return &HTMLElement{node: p}, nil
}

// ChildrenByTag implements Document.
func (d *HTMLDocument) ChildrenByTag(parent Element, tag string) ([]Element, error) {
	he, ok := parent.(*HTMLElement)
	if !ok {
		return nil, fmt.Errorf("locator: foreign element %T", parent)
	}
	var out []Element
	for c := he.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, &HTMLElement{node: c})
		}
	}
	return out, nil
}

// Same implements Document.
func (d *HTMLDocument) Same(a, b Element) bool {
	ha, ok1 := a.(*HTMLElement)
	hb, ok2 := b.(*HTMLElement)
	return ok1 && ok2 && ha.node == hb.node
}

// CountByAttr implements Document.
func (d *HTMLDocument) CountByAttr(tag, attr, value string) (int, error) {
	sel, err := cascadia.Compile(fmt.Sprintf(`%s[%s="%s"]`, tag, attr, cssString(value)))
	if err != nil {
		return 0, fmt.Errorf("locator: compile attribute selector: %w", err)
	}
	if len(d.doc.Nodes) == 0 {
		return 0, nil
	}
	return len(cascadia.QueryAll(d.doc.Nodes[0], sel)), nil
}

// HTMLElement is an Element backed by an x/net/html node.
type HTMLElement struct {
	node *html.Node
}

// Node returns the underlying html node.
func (e *HTMLElement) Node() *html.Node { return e.node }

func (e *HTMLElement) Tag() string { return e.node.Data }

func (e *HTMLElement) Attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if attrName(a) == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *HTMLElement) Attrs() []Attribute {
	out := make([]Attribute, 0, len(e.node.Attr))
	for _, a := range e.node.Attr {
		out = append(out, Attribute{Name: attrName(a), Value: a.Val})
	}
	return out
}

func (e *HTMLElement) IsRoot() bool {
	return e.node.Parent != nil && e.node.Parent.Type == html.DocumentNode
}

func attrName(a html.Attribute) string {
	if a.Namespace != "" {
		return a.Namespace + ":" + a.Key
	}
	return a.Key
}

// cssString escapes value for use inside a double-quoted CSS string.
func cssString(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\a `)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

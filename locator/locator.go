// Package locator derives stable XPath-style locators for DOM elements.
//
// A locator is built from the most specific identifying attribute available,
// in a fixed order of preference:
//
//	/html                          the document root
//	//tag[@id='v']                 non-empty id
//	//tag[@name='v']               non-empty name
//	//tag[@class='v']              class, only when unique in the document
//	//tag[@a='1' and @b='2']       every other attribute except id/class/style/hidden
//	<parent locator>/tag[n]        position among same-tag siblings
//	//tag                          no siblings of the same tag, or lookup failed
//
// Only the class branch is checked for uniqueness. The attribute-conjunction
// and positional branches may match more than one element.
package locator

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// RootLocator identifies the document root element.
const RootLocator = "/html"

// DefaultMaxDepth bounds the ancestor walk of the positional fallback.
const DefaultMaxDepth = 512

// ErrNoParent is returned by Document.Parent for detached or root elements.
var ErrNoParent = errors.New("locator: element has no parent element")

// Attribute is a single element attribute in document order.
type Attribute struct {
	Name  string
	Value string
}

// Element is the read-only view of a DOM element the deriver needs.
type Element interface {
	// Tag returns the lower-case tag name.
	Tag() string
	// Attr returns an attribute value and whether it is present.
	Attr(name string) (string, bool)
	// Attrs returns all attributes in document order.
	Attrs() []Attribute
	// IsRoot reports whether the element is the document element.
	IsRoot() bool
}

// Document gives the deriver access to the element's surroundings.
type Document interface {
	// Parent returns the parent element, or ErrNoParent.
	Parent(el Element) (Element, error)
	// ChildrenByTag returns the element children of parent with the given
	// tag, in document order.
	ChildrenByTag(parent Element, tag string) ([]Element, error)
	// Same reports whether a and b refer to the same DOM node.
	Same(a, b Element) bool
	// CountByAttr counts elements in the whole document with the given tag
	// whose attribute equals value exactly.
	CountByAttr(tag, attr, value string) (int, error)
}

// excludedAttrs never take part in an attribute conjunction.
var excludedAttrs = map[string]struct{}{
	"id":     {},
	"class":  {},
	"style":  {},
	"hidden": {},
}

// attrNameRe matches attribute names usable in an XPath predicate.
var attrNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.:-]*$`)

// Deriver derives locators. The zero value is ready to use.
type Deriver struct {
	// MaxDepth bounds the number of ancestors visited. Default: DefaultMaxDepth.
	MaxDepth int

	// Logger receives locator quality warnings. Default: slog.Default().
	Logger *slog.Logger
}

var defaultDeriver = &Deriver{}

// Derive returns the locator for el using the default Deriver.
func Derive(el Element, doc Document) string {
	return defaultDeriver.Derive(el, doc)
}

// Derive returns the locator for el. It never fails: when the document
// cannot be traversed the result degrades to the bare tag form.
func (d *Deriver) Derive(el Element, doc Document) string {
	var suffix []string // positional steps, innermost first
	cur := el

	for depth := 0; ; depth++ {
		tag := tagOf(cur)

		if depth > d.maxDepth() {
			d.degrade(el, "ancestor walk exceeded max depth", nil)
			return assemble("//"+tag, suffix)
		}

		if loc, ok := d.attributeLocator(cur, doc); ok {
			return assemble(loc, suffix)
		}

		parent, err := doc.Parent(cur)
		if err != nil || parent == nil {
			d.degrade(el, "parent lookup failed", err)
			return assemble("//"+tag, suffix)
		}

		siblings, err := doc.ChildrenByTag(parent, tag)
		if err != nil {
			d.degrade(el, "sibling lookup failed", err)
			return assemble("//"+tag, suffix)
		}
		if len(siblings) <= 1 {
			return assemble("//"+tag, suffix)
		}

		pos := -1
		for i, s := range siblings {
			if doc.Same(s, cur) {
				pos = i
				break
			}
		}
		if pos < 0 {
			d.degrade(el, "element not found among its siblings", nil)
			return assemble("//"+tag, suffix)
		}

		suffix = append(suffix, fmt.Sprintf("/%s[%d]", tag, pos+1))
		cur = parent
	}
}

// attributeLocator tries the root, id, name, class and attribute
// conjunction branches in order.
func (d *Deriver) attributeLocator(el Element, doc Document) (string, bool) {
	if el.IsRoot() {
		return RootLocator, true
	}
	tag := tagOf(el)

	if v, ok := el.Attr("id"); ok && v != "" {
		return fmt.Sprintf("//%s[@id=%s]", tag, Quote(v)), true
	}
	if v, ok := el.Attr("name"); ok && v != "" {
		return fmt.Sprintf("//%s[@name=%s]", tag, Quote(v)), true
	}
	if v, ok := el.Attr("class"); ok && v != "" {
		n, err := doc.CountByAttr(tag, "class", v)
		switch {
		case err != nil:
			d.logger().Debug("class uniqueness check failed", "tag", tag, "class", v, "error", err)
		case n == 1:
			return fmt.Sprintf("//%s[@class=%s]", tag, Quote(v)), true
		}
	}

	var preds []string
	for _, a := range el.Attrs() {
		if _, skip := excludedAttrs[a.Name]; skip || !attrNameRe.MatchString(a.Name) {
			continue
		}
		preds = append(preds, "@"+a.Name+"="+Quote(a.Value))
	}
	if len(preds) > 0 {
		return fmt.Sprintf("//%s[%s]", tag, strings.Join(preds, " and ")), true
	}
	return "", false
}

// Quote renders s as an XPath string literal.
func Quote(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func assemble(base string, suffix []string) string {
	var b strings.Builder
	b.WriteString(base)
	for i := len(suffix) - 1; i >= 0; i-- {
		b.WriteString(suffix[i])
	}
	return b.String()
}

func tagOf(el Element) string {
	if t := el.Tag(); t != "" {
		return t
	}
	return "*"
}

func (d *Deriver) maxDepth() int {
	if d.MaxDepth > 0 {
		return d.MaxDepth
	}
	return DefaultMaxDepth
}

func (d *Deriver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Deriver) degrade(el Element, reason string, err error) {
	attrs := []any{"tag", tagOf(el), "reason", reason}
	if err != nil && !errors.Is(err, ErrNoParent) {
		attrs = append(attrs, "error", err)
	}
	d.logger().Warn("locator degraded to bare tag", attrs...)
}

package capture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/scrollsnap/locator"
)

// countXPathJS counts the nodes an XPath expression selects.
const countXPathJS = `(xp) => {
	try {
		return document.evaluate(xp, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotLength;
	} catch (e) {
		return -1;
	}
}`

// liveElement is a locator.Element backed by a node of a running page.
type liveElement struct {
	el   *rod.Element
	node *proto.DOMNode
}

func describe(el *rod.Element) (*liveElement, error) {
	node, err := el.Describe(0, false)
	if err != nil {
		return nil, fmt.Errorf("capture: describe element: %w", err)
	}
	return &liveElement{el: el, node: node}, nil
}

func (e *liveElement) Tag() string {
	if e.node.LocalName != "" {
		return strings.ToLower(e.node.LocalName)
	}
	return strings.ToLower(e.node.NodeName)
}

func (e *liveElement) Attr(name string) (string, bool) {
	a := e.node.Attributes
	for i := 0; i+1 < len(a); i += 2 {
		if a[i] == name {
			return a[i+1], true
		}
	}
	return "", false
}

func (e *liveElement) Attrs() []locator.Attribute {
	a := e.node.Attributes
	out := make([]locator.Attribute, 0, len(a)/2)
	for i := 0; i+1 < len(a); i += 2 {
		out = append(out, locator.Attribute{Name: a[i], Value: a[i+1]})
	}
	return out
}

func (e *liveElement) IsRoot() bool { return e.Tag() == "html" }

func (e *liveElement) backendID() proto.DOMBackendNodeID { return e.node.BackendNodeID }

// liveDocument is a locator.Document over a running page. Every call is a
// round trip to the browser, so a page that mutates between calls yields a
// locator for whatever the DOM looked like at each step.
type liveDocument struct {
	page *rod.Page
}

func (d *liveDocument) Parent(el locator.Element) (locator.Element, error) {
	le, ok := el.(*liveElement)
	if !ok {
		return nil, fmt.Errorf("capture: foreign element %T", el)
	}
	parent, err := le.el.Parent()
	if err != nil {
		var nf *rod.ElementNotFoundError
		if errors.As(err, &nf) {
			return nil, locator.ErrNoParent
		}
		return nil, err
	}
	return describe(parent)
}

func (d *liveDocument) ChildrenByTag(parent locator.Element, tag string) ([]locator.Element, error) {
	lp, ok := parent.(*liveElement)
	if !ok {
		return nil, fmt.Errorf("capture: foreign element %T", parent)
	}
	children, err := lp.el.ElementsX("./" + tag)
	if err != nil {
		return nil, fmt.Errorf("capture: list %s children: %w", tag, err)
	}
	out := make([]locator.Element, 0, len(children))
	for _, c := range children {
		le, err := describe(c)
		if err != nil {
			return nil, err
		}
		out = append(out, le)
	}
	return out, nil
}

func (d *liveDocument) Same(a, b locator.Element) bool {
	la, ok1 := a.(*liveElement)
	lb, ok2 := b.(*liveElement)
	return ok1 && ok2 && la.backendID() == lb.backendID()
}

func (d *liveDocument) CountByAttr(tag, attr, value string) (int, error) {
	return d.count(fmt.Sprintf("//%s[@%s=%s]", tag, attr, locator.Quote(value)))
}

// count returns how many nodes xp selects in the current DOM.
func (d *liveDocument) count(xp string) (int, error) {
	res, err := d.page.Eval(countXPathJS, xp)
	if err != nil {
		return 0, fmt.Errorf("capture: evaluate xpath: %w", err)
	}
	n := res.Value.Int()
	if n < 0 {
		return 0, fmt.Errorf("capture: invalid xpath %q", xp)
	}
	return n, nil
}

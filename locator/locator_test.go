package locator

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func parse(t *testing.T, src string) *HTMLDocument {
	t.Helper()
	doc, err := ParseHTML(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}
	return doc
}

func element(t *testing.T, doc *HTMLDocument, selector string, i int) Element {
	t.Helper()
	els, err := doc.Elements(selector)
	if err != nil {
		t.Fatalf("Elements(%q): %v", selector, err)
	}
	if i >= len(els) {
		t.Fatalf("Elements(%q): want index %d, got %d elements", selector, i, len(els))
	}
	return els[i]
}

func quietDeriver() *Deriver {
	return &Deriver{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		selector string
		index    int
		want     string
	}{
		{
			name:     "id wins over everything",
			html:     `<div id="main" name="n" class="c" data-k="v"><p>x</p></div>`,
			selector: "div",
			want:     "//div[@id='main']",
		},
		{
			name:     "name when no id",
			html:     `<form><input name="q" type="text"></form>`,
			selector: "input",
			want:     "//input[@name='q']",
		},
		{
			name:     "empty id falls through to name",
			html:     `<input id="" name="email">`,
			selector: "input",
			want:     "//input[@name='email']",
		},
		{
			name:     "unique class",
			html:     `<section class="hero"></section><section class="body"></section>`,
			selector: "section",
			want:     "//section[@class='hero']",
		},
		{
			name:     "shared class falls through to attribute conjunction",
			html:     `<div class="card" data-k="v"></div><div class="card"></div>`,
			selector: "div",
			want:     "//div[@data-k='v']",
		},
		{
			name:     "conjunction keeps document order and skips style and hidden",
			html:     `<button style="color:red" type="submit" hidden aria-label="Go"></button>`,
			selector: "button",
			want:     "//button[@type='submit' and @aria-label='Go']",
		},
		{
			name:     "document root",
			html:     `<html lang="en"><body></body></html>`,
			selector: "html",
			want:     RootLocator,
		},
		{
			name:     "only child of its tag",
			html:     `<ul><li>a</li></ul>`,
			selector: "li",
			want:     "//li",
		},
		{
			name:     "positional chain",
			html:     `<html><body><div></div><div><span></span><span></span></div></body></html>`,
			selector: "span",
			index:    1,
			want:     "//body/div[2]/span[2]",
		},
		{
			name:     "positional under identified ancestor",
			html:     `<ul id="menu"><li>a</li><li>b</li><li>c</li></ul>`,
			selector: "li",
			index:    2,
			want:     "//ul[@id='menu']/li[3]",
		},
		{
			name:     "shared class without other attributes is positional",
			html:     `<div id="root"><p class="x"></p><p class="x"></p></div>`,
			selector: "p",
			index:    0,
			want:     "//div[@id='root']/p[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, tt.html)
			el := element(t, doc, tt.selector, tt.index)
			got := quietDeriver().Derive(el, doc)
			if got != tt.want {
				t.Errorf("Derive() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "'plain'"},
		{"O'Brien", `"O'Brien"`},
		{`say "hi"`, `'say "hi"'`},
		{`it's "x"`, `concat('it', "'", 's "x"')`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCountByAttr(t *testing.T) {
	doc := parse(t, `<p class="a b"></p><p class="a b"></p><p class='say "x"'></p><span class="a b"></span>`)

	n, err := doc.CountByAttr("p", "class", "a b")
	if err != nil {
		t.Fatalf("CountByAttr: %v", err)
	}
	if n != 2 {
		t.Errorf("CountByAttr(p, a b) = %d, want 2", n)
	}

	n, err = doc.CountByAttr("p", "class", `say "x"`)
	if err != nil {
		t.Fatalf("CountByAttr quoted: %v", err)
	}
	if n != 1 {
		t.Errorf("CountByAttr(p, quoted) = %d, want 1", n)
	}
}

// fakeElement and fakeDoc drive the deriver through failure paths a parsed
// document cannot produce.
type fakeElement struct {
	tag    string
	attrs  []Attribute
	parent *fakeElement
}

func (e *fakeElement) Tag() string { return e.tag }
func (e *fakeElement) Attr(name string) (string, bool) {
	for _, a := range e.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}
func (e *fakeElement) Attrs() []Attribute { return e.attrs }
func (e *fakeElement) IsRoot() bool        { return false }

type fakeDoc struct {
	parentErr error
	countErr  error
}

func (d *fakeDoc) Parent(el Element) (Element, error) {
	if d.parentErr != nil {
		return nil, d.parentErr
	}
	p := el.(*fakeElement).parent
	if p == nil {
		return nil, ErrNoParent
	}
	return p, nil
}

// ChildrenByTag reports the element twice so every level is positional.
func (d *fakeDoc) ChildrenByTag(parent Element, tag string) ([]Element, error) {
	return []Element{&fakeElement{tag: tag}, childOf(parent)}, nil
}

func (d *fakeDoc) Same(a, b Element) bool { return a == b }

func (d *fakeDoc) CountByAttr(tag, attr, value string) (int, error) {
	return 1, d.countErr
}

var children = map[Element]Element{}

func childOf(parent Element) Element { return children[parent] }

func chain(depth int) *fakeElement {
	var cur *fakeElement
	for i := 0; i < depth; i++ {
		next := &fakeElement{tag: "div", parent: cur}
		if cur != nil {
			children[cur] = next
		}
		cur = next
	}
	return cur
}

func TestDerive_ParentFailureDegrades(t *testing.T) {
	el := &fakeElement{tag: "span"}
	got := quietDeriver().Derive(el, &fakeDoc{parentErr: errors.New("cdp gone")})
	if got != "//span" {
		t.Errorf("Derive() = %q, want //span", got)
	}
}

func TestDerive_ClassCheckFailureFallsThrough(t *testing.T) {
	el := &fakeElement{tag: "a", attrs: []Attribute{{"class", "btn"}, {"href", "/x"}}}
	got := quietDeriver().Derive(el, &fakeDoc{countErr: errors.New("boom")})
	if got != "//a[@href='/x']" {
		t.Errorf("Derive() = %q, want //a[@href='/x']", got)
	}
}

func TestDerive_DepthBound(t *testing.T) {
	leaf := chain(10)
	d := quietDeriver()
	d.MaxDepth = 3

	got := d.Derive(leaf, &fakeDoc{})
	want := "//div/div[2]/div[2]/div[2]/div[2]"
	if got != want {
		t.Errorf("Derive() = %q, want %q", got, want)
	}
}

func TestDerive_InvalidAttributeNamesSkipped(t *testing.T) {
	doc := parse(t, `<ul><li @click="go" :key="1" data-id="7">a</li><li>b</li></ul>`)
	got := quietDeriver().Derive(element(t, doc, "li", 0), doc)
	if got != "//li[@data-id='7']" {
		t.Errorf("Derive() = %q, want //li[@data-id='7']", got)
	}
}

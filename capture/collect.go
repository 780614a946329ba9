package capture

import (
	"log/slog"
	"strconv"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/scrollsnap/locator"
	"github.com/use-agent/scrollsnap/models"
)

// visibleElementsJS returns the innermost candidate elements visible in the
// viewport. An element counts when some client rect has it (or a descendant)
// at its center point and the covered area reaches minArea. Paragraphs are
// kept even when they contain other candidates.
const visibleElementsJS = `(minArea) => {
	const tags = new Set(['BUTTON', 'A', 'IMG', 'PICTURE', 'INPUT', 'TEXTAREA', 'SELECT', 'VIDEO',
		'SVG', 'CANVAS', 'H1', 'H2', 'H3', 'H4', 'H5', 'H6', 'P', 'SPAN', 'DIV', 'MAP', 'AREA']);
	const items = [];
	for (const el of document.querySelectorAll('body *')) {
		const rects = [...el.getClientRects()].filter(bb => {
			const at = document.elementFromPoint(bb.left + bb.width / 2, bb.top + bb.height / 2);
			return at === el || (at !== null && el.contains(at));
		});
		const area = rects.reduce((acc, r) => acc + r.width * r.height, 0);
		if (area < minArea) continue;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') continue;
		const include = tags.has(el.tagName.toUpperCase()) ||
			el.onclick !== null ||
			el.hasAttribute('tabindex') ||
			style.cursor === 'pointer' ||
			el.textContent.trim().length > 0;
		if (include) items.push(el);
	}
	return items.filter(x => x.tagName === 'P' || !items.some(y => y !== x && x.contains(y)));
}`

// elementInfoJS reads geometry, style and display text of one element.
// Text follows the extractor rules: placeholder for form fields, innerText
// for links and buttons, aria-label, then the element's own text nodes.
const elementInfoJS = `function () {
	const el = this;
	const r = el.getBoundingClientRect();
	const s = window.getComputedStyle(el);
	const tag = el.tagName.toUpperCase();
	let text = '';
	if (tag === 'INPUT' || tag === 'TEXTAREA') {
		text = (el.placeholder || '').trim();
	} else if (tag === 'BUTTON' || tag === 'A') {
		text = (el.innerText || '').trim();
	} else if (el.getAttribute('aria-label')) {
		text = el.getAttribute('aria-label').trim();
	} else if (!['SCRIPT', 'STYLE', 'NOSCRIPT'].includes(tag)) {
		const parts = [];
		for (const child of el.childNodes) {
			if (child.nodeType === Node.TEXT_NODE) {
				const t = child.textContent.trim();
				if (t) parts.push(t);
			}
		}
		text = parts.join(' ');
	}
	return {
		x: r.left, y: r.top, width: r.width, height: r.height,
		backgroundColor: s.backgroundColor,
		fontSize: s.fontSize,
		fontStyle: s.fontStyle,
		fontColor: s.color,
		text: text,
	};
}`

// elementInfo is what elementInfoJS reports.
type elementInfo struct {
	X, Y, Width, Height float64
	BackgroundColor     string
	FontSize            string
	FontStyle           string
	FontColor           string
	Text                string
}

func parseElementInfo(v gson.JSON) elementInfo {
	return elementInfo{
		X:               v.Get("x").Num(),
		Y:               v.Get("y").Num(),
		Width:           v.Get("width").Num(),
		Height:          v.Get("height").Num(),
		BackgroundColor: v.Get("backgroundColor").Str(),
		FontSize:        v.Get("fontSize").Str(),
		FontStyle:       v.Get("fontStyle").Str(),
		FontColor:       v.Get("fontColor").Str(),
		Text:            v.Get("text").Str(),
	}
}

// buildRecord lays out one element record in the column order producers use.
func buildRecord(id int, xpath string, info elementInfo, scrollIndex int) models.Record {
	return models.NewRecord(
		models.ColElementID, strconv.Itoa(id),
		models.ColXPath, xpath,
		models.ColText, info.Text,
		"x", formatPx(info.X),
		"y", formatPx(info.Y),
		"width", formatPx(info.Width),
		"height", formatPx(info.Height),
		"backgroundColor", info.BackgroundColor,
		"fontSize", info.FontSize,
		"fontStyle", info.FontStyle,
		"fontColor", info.FontColor,
		models.ColScrollIndex, strconv.Itoa(scrollIndex),
	)
}

// formatPx renders a CSS pixel value without trailing zeros.
func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// idAssigner hands out element ids that stay fixed for a DOM node across the
// viewports of one capture.
type idAssigner struct {
	next int
	ids  map[proto.DOMBackendNodeID]int
}

func newIDAssigner() *idAssigner {
	return &idAssigner{next: 1, ids: make(map[proto.DOMBackendNodeID]int)}
}

func (a *idAssigner) id(node proto.DOMBackendNodeID) int {
	if id, ok := a.ids[node]; ok {
		return id
	}
	id := a.next
	a.next++
	a.ids[node] = id
	return id
}

// collector turns the visible elements of a page into records.
type collector struct {
	doc     *liveDocument
	deriver *locator.Deriver
	ids     *idAssigner
	logger  *slog.Logger
}

func (c *collector) collect(page *rod.Page, scrollIndex, minArea int) ([]models.Record, error) {
	els, err := page.ElementsByJS(rod.Eval(visibleElementsJS, minArea))
	if err != nil {
		return nil, categorizeError(err, "failed to list visible elements")
	}

	records := make([]models.Record, 0, len(els))
	for _, el := range els {
		le, err := describe(el)
		if err != nil {
			c.logger.Debug("element vanished before it was described", "error", err)
			continue
		}
		res, err := el.Eval(elementInfoJS)
		if err != nil {
			c.logger.Debug("element info unavailable", "tag", le.Tag(), "error", err)
			continue
		}

		xpath := c.deriver.Derive(le, c.doc)
		c.checkUnique(xpath)

		records = append(records, buildRecord(c.ids.id(le.backendID()), xpath, parseElementInfo(res.Value), scrollIndex))
	}
	return records, nil
}

// checkUnique logs locators that do not select exactly one element.
func (c *collector) checkUnique(xpath string) {
	n, err := c.doc.count(xpath)
	if err != nil {
		c.logger.Debug("locator check failed", "xpath", xpath, "error", err)
		return
	}
	if n != 1 {
		c.logger.Warn("locator is not unique", "xpath", xpath, "matches", n)
	}
}

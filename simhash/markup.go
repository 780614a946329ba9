package simhash

import (
	"strings"

	"golang.org/x/net/html"
)

// Markup fingerprints the tag structure of an HTML document. Text and
// attributes are ignored, so a page whose content is still streaming in
// keeps changing its fingerprint while a page that only updates a clock
// does not.
func Markup(doc string) uint64 {
	tags := extractTags(doc)
	if len(tags) == 0 {
		return 0
	}
	if sh := shingles(tags, 3); len(sh) > 0 {
		return Tokens(sh)
	}
	return Tokens(tags)
}

// extractTags collects start tag names in document order.
func extractTags(doc string) []string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := z.TagName()
			tags = append(tags, string(tn))
		}
	}
}

// shingles returns the n-grams of tokens joined with "_".
func shingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		out = append(out, strings.Join(tokens[i:i+n], "_"))
	}
	return out
}

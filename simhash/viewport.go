package simhash

import "github.com/use-agent/scrollsnap/models"

// Viewport fingerprints the elements captured at one scroll position by
// their element id, locator and text. Two viewports showing the same
// elements produce the same fingerprint regardless of geometry.
func Viewport(records []models.Record) uint64 {
	tokens := make([]string, 0, len(records))
	for _, r := range records {
		tokens = append(tokens, r.Value(models.ColElementID)+"\x1f"+r.Value(models.ColXPath)+"\x1f"+r.Value(models.ColText))
	}
	return Tokens(tokens)
}

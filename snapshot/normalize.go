package snapshot

import "regexp"

var (
	bracketIndexRe = regexp.MustCompile(`\[\d+\]`)
	slashIndexRe   = regexp.MustCompile(`/\d+`)
)

// Normalize strips positional indices from a locator so that an element
// keeps the same key when siblings are inserted before it:
//
//	/html/body/div[2]/span[1]  ->  /html/body/div/span
//
// Bracketed indices are removed first, then "/digits" steps. Both passes
// repeat until nothing changes, so Normalize(Normalize(x)) == Normalize(x)
// for every input.
func Normalize(locator string) string {
	for {
		next := slashIndexRe.ReplaceAllString(bracketIndexRe.ReplaceAllString(locator, ""), "")
		if next == locator {
			return next
		}
		locator = next
	}
}

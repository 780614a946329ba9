package snapshot

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeSiteRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeSite turns a site name into a directory-safe token: a leading
// "www." is dropped, then every character outside [A-Za-z0-9_-] becomes "_".
func SanitizeSite(site string) string {
	return unsafeSiteRe.ReplaceAllString(strings.TrimPrefix(site, "www."), "_")
}

// TimestampFormat names delta artifacts.
const TimestampFormat = "20060102_150405"

// Layout maps (site, scroll index) to artifact paths under Root:
//
//	<Root>/<site>/scroll_<n>/uncleaned_<site>_<n>.csv
//	<Root>/<site>/scroll_<n>/cleaned_<site>_<n>.csv
//	<Root>/<site>/scroll_<n>/xpath_<site>_<n>.csv
//	<Root>/<site>/scroll_<n>/<site>_<n>.png
//	<Root>/<site>/scroll_<n>/modified_<site>_<n>_<ts>.csv
//	<Root>/<site>/scroll_<n>/<site>_modified_<n>_<ts>.png
type Layout struct {
	Root string
}

// Paths are the artifact locations of one (site, scroll index) key.
type Paths struct {
	Dir        string
	Uncleaned  string
	Cleaned    string
	XPath      string
	Screenshot string

	site  string
	index int
}

// For returns the paths for an already sanitized site.
func (l Layout) For(site string, index int) Paths {
	dir := filepath.Join(l.Root, site, fmt.Sprintf("scroll_%d", index))
	return Paths{
		Dir:        dir,
		Uncleaned:  filepath.Join(dir, fmt.Sprintf("uncleaned_%s_%d.csv", site, index)),
		Cleaned:    filepath.Join(dir, fmt.Sprintf("cleaned_%s_%d.csv", site, index)),
		XPath:      filepath.Join(dir, fmt.Sprintf("xpath_%s_%d.csv", site, index)),
		Screenshot: filepath.Join(dir, fmt.Sprintf("%s_%d.png", site, index)),
		site:       site,
		index:      index,
	}
}

// Modified returns the delta CSV path for timestamp ts. A non-zero seq
// disambiguates deltas written within the same second.
func (p Paths) Modified(ts string, seq int) string {
	return filepath.Join(p.Dir, fmt.Sprintf("modified_%s_%d_%s%s.csv", p.site, p.index, ts, seqSuffix(seq)))
}

// ModifiedScreenshot returns the delta screenshot path matching Modified.
func (p Paths) ModifiedScreenshot(ts string, seq int) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s_modified_%d_%s%s.png", p.site, p.index, ts, seqSuffix(seq)))
}

func seqSuffix(seq int) string {
	if seq == 0 {
		return ""
	}
	return fmt.Sprintf("_%d", seq)
}

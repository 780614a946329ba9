package snapshot

import (
	"errors"
	"strconv"
	"strings"

	"github.com/use-agent/scrollsnap/models"
	"github.com/use-agent/scrollsnap/storage"
)

// errNoSharedColumns means a baseline and a batch cannot be compared.
var errNoSharedColumns = errors.New("snapshot: baseline shares no columns with batch")

// Diff returns the records of current that have no exact match in baseline.
//
// Rows are compared on the columns the baseline and the batch have in
// common, minus ignore. Values are compared as strings with CRLF treated as
// LF; a record without one of the columns compares as "". Duplicate baseline rows collapse. Current
// records are returned in order, duplicates included.
func Diff(baseline *storage.Table, current []models.Record, ignore ...string) ([]models.Record, error) {
	present := make(map[string]struct{})
	for _, rec := range current {
		for _, k := range rec.Keys() {
			present[k] = struct{}{}
		}
	}
	skip := make(map[string]struct{}, len(ignore))
	for _, col := range ignore {
		skip[col] = struct{}{}
	}

	var keyCols []int
	for i, col := range baseline.Columns {
		if _, ignored := skip[col]; ignored {
			continue
		}
		if _, ok := present[col]; ok {
			keyCols = append(keyCols, i)
		}
	}
	if len(keyCols) == 0 {
		return nil, errNoSharedColumns
	}

	seen := make(map[string]struct{}, len(baseline.Rows))
	for _, row := range baseline.Rows {
		seen[rowKey(len(keyCols), func(i int) string {
			if c := keyCols[i]; c < len(row) {
				return row[c]
			}
			return ""
		})] = struct{}{}
	}

	var delta []models.Record
	for _, rec := range current {
		key := rowKey(len(keyCols), func(i int) string {
			return rec.Value(baseline.Columns[keyCols[i]])
		})
		if _, ok := seen[key]; !ok {
			delta = append(delta, rec.Clone())
		}
	}
	return delta, nil
}

// rowKey encodes n values unambiguously by length-prefixing each one.
// Line endings are canonicalized first: a CSV round trip turns CRLF inside a
// quoted field into LF.
func rowKey(n int, value func(i int) string) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		v := strings.ReplaceAll(value(i), "\r\n", "\n")
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
	return b.String()
}

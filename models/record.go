package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Column names with a fixed meaning in an element record.
const (
	ColElementID          = "webElementId"
	ColXPath              = "xpath"
	ColText               = "text"
	ColOriginalXPath      = "original_xpath"
	ColScrollIndex        = "scrollIndex"
	ColScrollIndexSnake   = "scroll_index"
	ColFlaggedScrollIndex = "flagged_scroll_index"
)

// RequiredColumns must be present on every ingested element record.
var RequiredColumns = []string{ColElementID, ColXPath, ColText}

// Record is one captured element: an ordered set of columns with string
// values. Column order is the order in which keys were first set, which for
// decoded records is the order they appeared in the JSON object.
//
// Besides the required columns, producers usually send geometry and style
// columns (x, y, width, height, backgroundColor, fontSize, fontStyle,
// fontColor) and the scrollIndex they were captured at. Unknown columns are
// carried through untouched.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord builds a record from alternating key, value pairs.
func NewRecord(kv ...string) Record {
	var r Record
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Set assigns a column value, appending the column if it is new.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value of a column and whether it is present.
func (r Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value of a column, or "" when absent.
func (r Record) Value(key string) string {
	return r.values[key]
}

// Delete removes a column if present.
func (r *Record) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the columns in order. The slice must not be modified.
func (r Record) Keys() []string { return r.keys }

// Len returns the number of columns.
func (r Record) Len() int { return len(r.keys) }

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]string, len(r.values)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Missing lists the required columns absent from the record.
func (r Record) Missing() []string {
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := r.values[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// UnmarshalJSON decodes a JSON object, keeping key order and turning every
// value into its string form: strings as-is, numbers by their literal text,
// booleans as true/false, null as "", nested objects and arrays as compact JSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("element record must be a JSON object")
	}

	*r = Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("element record: unexpected key token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("element record: field %q: %w", key, err)
		}
		val, err := stringify(raw)
		if err != nil {
			return fmt.Errorf("element record: field %q: %w", key, err)
		}
		r.Set(key, val)
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON encodes the record as a JSON object with string values, in
// column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func stringify(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case 'n':
		return "", nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		// numbers and booleans keep their literal text
		return strings.TrimSpace(string(trimmed)), nil
	}
}

// Package attr parses the attribute column of GTF and GFF3 records.
package attr

import (
	"fmt"
	"slices"
	"strings"
)

// MissingError reports a required attribute that is absent from a record,
// or present with an empty value.
type MissingError struct {
	Key     string
	Feature string // feature type of the record that lacked the key
	Empty   bool
}

func (e *MissingError) Error() string {
	what := "missing"
	if e.Empty {
		what = "empty"
	}
	if e.Feature == "" {
		return fmt.Sprintf("attribute %q %s", e.Key, what)
	}
	if e.Empty {
		return fmt.Sprintf("attribute %q empty in %s record", e.Key, e.Feature)
	}
	return fmt.Sprintf("attribute %q missing from %s record", e.Key, e.Feature)
}

// Table is an ordered mapping from attribute key to one or more values.
// Keys are case-sensitive and keep their first-appearance order.
//
// Records carry a handful of attributes, so lookups scan linearly.
type Table struct {
	keys   []string
	values [][]string
}

// NewTable returns an empty table sized for n keys.
func NewTable(n int) *Table {
	return &Table{
		keys:   make([]string, 0, n),
		values: make([][]string, 0, n),
	}
}

// Add appends values under key. Repeated keys accumulate.
func (t *Table) Add(key string, values ...string) {
	if i := t.index(key); i >= 0 {
		t.values[i] = append(t.values[i], values...)
		return
	}
	t.keys = append(t.keys, key)
	t.values = append(t.values, slices.Clip(values))
}

// Len returns the number of distinct keys.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Keys returns the keys in first-appearance order.
func (t *Table) Keys() []string {
	if t == nil {
		return nil
	}
	return t.keys
}

// Values returns every value recorded for key.
func (t *Table) Values(key string) []string {
	if i := t.index(key); i >= 0 {
		return t.values[i]
	}
	return nil
}

// Get returns the first value for key.
func (t *Table) Get(key string) (string, bool) {
	vs := t.Values(key)
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// Require returns the first value for key or a *MissingError naming the
// key and the feature type of the originating record. An empty value
// cannot link records and counts as missing.
func (t *Table) Require(key, feature string) (string, error) {
	v, ok := t.Get(key)
	if !ok {
		return "", &MissingError{Key: key, Feature: feature}
	}
	if v == "" {
		return "", &MissingError{Key: key, Feature: feature, Empty: true}
	}
	return v, nil
}

// RequireAll is Require for multi-valued keys such as GFF3 Parent. Every
// value must be non-empty.
func (t *Table) RequireAll(key, feature string) ([]string, error) {
	vs := t.Values(key)
	if len(vs) == 0 {
		return nil, &MissingError{Key: key, Feature: feature}
	}
	for _, v := range vs {
		if v == "" {
			return nil, &MissingError{Key: key, Feature: feature, Empty: true}
		}
	}
	return vs, nil
}

// Joined returns all values for key joined by commas.
func (t *Table) Joined(key string) (string, bool) {
	vs := t.Values(key)
	switch len(vs) {
	case 0:
		return "", false
	case 1:
		return vs[0], true
	default:
		return strings.Join(vs, ","), true
	}
}

// Subset returns a new table holding only the listed keys that are
// present, in the order given.
func (t *Table) Subset(keys []string) *Table {
	sub := NewTable(len(keys))
	for _, k := range keys {
		if vs := t.Values(k); vs != nil {
			sub.Add(k, vs...)
		}
	}
	return sub
}

func (t *Table) index(key string) int {
	if t == nil {
		return -1
	}
	for i, k := range t.keys {
		if k == key {
			return i
		}
	}
	return -1
}

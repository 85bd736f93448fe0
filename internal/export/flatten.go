package export

import (
	"strconv"
	"strings"

	"github.com/sha1n/es2csv/internal/domain"
)

// PathSeparator joins ancestor keys into a column name.
const PathSeparator = "."

// Row is a flattened document: column name to cell value, with keys kept in
// the order they were first written.
type Row struct {
	keys   []string
	values map[string]string
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{values: make(map[string]string)}
}

// Set writes value under key, replacing any previous value.
func (r *Row) Set(key, value string) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Merge writes value under key; an existing value is kept and the new one is
// appended after delimiter.
func (r *Row) Merge(key, value, delimiter string) {
	if prev, ok := r.values[key]; ok {
		r.values[key] = prev + delimiter + value
		return
	}
	r.keys = append(r.keys, key)
	r.values[key] = value
}

// MetaRow returns a row seeded with the hit's metadata fields.
func MetaRow(hit domain.Hit) *Row {
	r := NewRow()
	for _, f := range domain.MetaFields {
		r.Set(f, hit.Meta(f))
	}
	return r
}

// Flatten converts a content tree into a row of dotted paths.
func Flatten(content domain.Content, delimiter string) *Row {
	r := NewRow()
	FlattenInto(r, content, delimiter)
	return r
}

// FlattenInto merges the leaves of content into r. Mapping keys extend the
// path, sequence positions extend it with their zero-based index, and leaves
// written twice under one path are joined with delimiter in visit order.
func FlattenInto(r *Row, content domain.Content, delimiter string) {
	flatten(r, content, nil, delimiter)
}

func flatten(r *Row, c domain.Content, path []string, delimiter string) {
	switch c.Kind() {
	case domain.KindNode:
		for _, f := range c.Fields() {
			flatten(r, f.Value, append(path[:len(path):len(path)], f.Key), delimiter)
		}
	case domain.KindList:
		for i, item := range c.Items() {
			flatten(r, item, append(path[:len(path):len(path)], strconv.Itoa(i)), delimiter)
		}
	default:
		r.Merge(strings.Join(path, PathSeparator), c.Scalar().String(), delimiter)
	}
}

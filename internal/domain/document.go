package domain

import (
	"errors"
	"path"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Metadata field names attached by the search cluster to every hit.
const (
	FieldID    = "_id"
	FieldIndex = "_index"
	FieldScore = "_score"
	FieldType  = "_type"
)

// MetaFields lists the metadata columns in the order they are exported.
var MetaFields = []string{FieldID, FieldIndex, FieldScore, FieldType}

// ErrInvalidJSON is returned when a document body is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON document")

// Hit is a single document returned by a search or scroll page.
type Hit struct {
	ID    string
	Index string
	Type  string
	// Score is nil when the cluster did not compute one (e.g. sorted queries).
	Score  *float64
	Source Content
}

// HasSource reports whether the hit carries a non-empty source object.
func (h Hit) HasSource() bool {
	return h.Source.Kind() == KindNode && h.Source.Len() > 0
}

// Meta returns the string value of a metadata field, or "" for unknown names.
func (h Hit) Meta(name string) string {
	switch name {
	case FieldID:
		return h.ID
	case FieldIndex:
		return h.Index
	case FieldType:
		return h.Type
	case FieldScore:
		if h.Score == nil {
			return ""
		}
		return formatScore(*h.Score)
	}
	return ""
}

// formatScore renders whole-number scores with a trailing ".0".
func formatScore(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if strings.ContainsAny(s, ".IN") {
		return s
	}
	return s + ".0"
}

// Kind tags the variant held by a Content value.
type Kind uint8

const (
	// KindLeaf holds a Scalar
	KindLeaf Kind = iota
	// KindNode holds ordered fields
	KindNode
	// KindList holds ordered items
	KindList
)

// ScalarKind is the JSON type of a leaf value.
type ScalarKind uint8

const (
	ScalarNull ScalarKind = iota
	ScalarString
	ScalarNumber
	ScalarBool
)

// Scalar is a leaf value. Numbers keep their literal text so that "1.0"
// is exported as written rather than re-formatted.
type Scalar struct {
	Kind ScalarKind
	Text string
}

// String renders the scalar as it appears in a CSV cell.
func (s Scalar) String() string {
	if s.Kind == ScalarNull {
		return ""
	}
	return s.Text
}

// Field is one key of a Node, in wire order.
type Field struct {
	Key   string
	Value Content
}

// Content is a document content tree: Leaf(Scalar) | Node(fields) | List(items).
// The zero value is a null leaf.
type Content struct {
	kind   Kind
	scalar Scalar
	fields []Field
	items  []Content
}

// Leaf wraps a scalar.
func Leaf(s Scalar) Content { return Content{kind: KindLeaf, scalar: s} }

// Node builds a mapping that keeps the given key order.
func Node(fields ...Field) Content { return Content{kind: KindNode, fields: fields} }

// List builds an ordered sequence.
func List(items ...Content) Content { return Content{kind: KindList, items: items} }

// String returns a string leaf.
func String(s string) Content { return Leaf(Scalar{Kind: ScalarString, Text: s}) }

// Number returns a number leaf keeping the raw literal.
func Number(raw string) Content { return Leaf(Scalar{Kind: ScalarNumber, Text: raw}) }

// Null returns a null leaf.
func Null() Content { return Leaf(Scalar{Kind: ScalarNull}) }

// Bool returns a boolean leaf.
func Bool(b bool) Content {
	return Leaf(Scalar{Kind: ScalarBool, Text: strconv.FormatBool(b)})
}

// Kind returns the variant tag.
func (c Content) Kind() Kind { return c.kind }

// Scalar returns the leaf value; meaningful only for KindLeaf.
func (c Content) Scalar() Scalar { return c.scalar }

// Fields returns the fields of a Node in wire order.
func (c Content) Fields() []Field { return c.fields }

// Items returns the items of a List.
func (c Content) Items() []Content { return c.items }

// Len returns the number of fields of a Node or items of a List; 0 for leaves.
func (c Content) Len() int {
	switch c.kind {
	case KindNode:
		return len(c.fields)
	case KindList:
		return len(c.items)
	}
	return 0
}

// ParseContent decodes a JSON document keeping object keys in wire order.
func ParseContent(data []byte) (Content, error) {
	if !gjson.ValidBytes(data) {
		return Content{}, ErrInvalidJSON
	}
	return FromResult(gjson.ParseBytes(data)), nil
}

// FromResult converts a gjson value into a Content tree.
func FromResult(r gjson.Result) Content {
	switch {
	case r.IsObject():
		var fields []Field
		r.ForEach(func(k, v gjson.Result) bool {
			fields = append(fields, Field{Key: k.String(), Value: FromResult(v)})
			return true
		})
		return Node(fields...)
	case r.IsArray():
		var items []Content
		r.ForEach(func(_, v gjson.Result) bool {
			items = append(items, FromResult(v))
			return true
		})
		return List(items...)
	}

	switch r.Type {
	case gjson.String:
		return String(r.Str)
	case gjson.Number:
		return Number(r.Raw)
	case gjson.True:
		return Bool(true)
	case gjson.False:
		return Bool(false)
	default:
		return Null()
	}
}

// Include keeps only the parts of the tree selected by source-include patterns.
// A pattern selects a dotted key path (sequence positions are not part of the
// path) and everything below it; `*` is a wildcard. An empty pattern list
// keeps everything.
func (c Content) Include(patterns []string) Content {
	if len(patterns) == 0 {
		return c
	}
	out, _ := c.include(nil, patterns)
	return out
}

func (c Content) include(keys []string, patterns []string) (Content, bool) {
	if len(keys) > 0 && matchAny(patterns, strings.Join(keys, ".")) {
		return c, true
	}

	switch c.kind {
	case KindNode:
		var kept []Field
		for _, f := range c.fields {
			child := append(keys[:len(keys):len(keys)], f.Key)
			if v, ok := f.Value.include(child, patterns); ok {
				kept = append(kept, Field{Key: f.Key, Value: v})
			}
		}
		return Node(kept...), len(kept) > 0
	case KindList:
		var kept []Content
		for _, item := range c.items {
			if v, ok := item.include(keys, patterns); ok {
				kept = append(kept, v)
			}
		}
		return List(kept...), len(kept) > 0
	}
	return c, false
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

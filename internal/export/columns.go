package export

import (
	"slices"
	"strings"

	"github.com/sha1n/es2csv/internal/domain"
	"github.com/sha1n/es2csv/internal/search"
)

// Columns is an insertion-ordered set of CSV column names.
// It only grows while rows are discovered and is sealed before materialization.
type Columns struct {
	names  []string
	index  map[string]int
	sealed bool
}

// NewColumns creates a registry seeded with the given names.
func NewColumns(seed ...string) *Columns {
	c := &Columns{index: make(map[string]int)}
	c.Add(seed...)
	return c
}

// InitialColumns seeds the registry with the metadata columns (when enabled)
// followed by the explicitly requested fields. Wildcard fields are skipped, and
// a request containing _all contributes nothing.
func InitialColumns(metaFields bool, fields []string) *Columns {
	c := NewColumns()
	if metaFields {
		c.Add(domain.MetaFields...)
	}
	if slices.Contains(fields, search.AllIndices) {
		return c
	}
	for _, f := range fields {
		if !strings.Contains(f, "*") {
			c.Add(f)
		}
	}
	return c
}

// Add registers names that were not seen before, in order.
func (c *Columns) Add(names ...string) {
	for _, name := range names {
		if _, ok := c.index[name]; ok {
			continue
		}
		if c.sealed {
			panic("export: column registered after seal: " + name)
		}
		c.index[name] = len(c.names)
		c.names = append(c.names, name)
	}
}

// AddRow registers every key of the row in discovery order.
func (c *Columns) AddRow(r *Row) {
	c.Add(r.keys...)
}

// Names returns a copy of the registered names.
func (c *Columns) Names() []string {
	return slices.Clone(c.names)
}

// Seal freezes the registry and returns the final header.
func (c *Columns) Seal() []string {
	c.sealed = true
	return c.Names()
}

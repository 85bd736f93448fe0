package export

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sha1n/es2csv/internal/search"
)

// Query describes what to export. It is not modified once built.
type Query struct {
	Indices []string
	// Raw selects the structured JSON body over the free-text query.
	Raw  bool
	Body []byte
	Text string
	// Tags are AND-ed onto a free-text query.
	Tags          []string
	Sort          []string
	Fields        []string
	Size          int
	MaxResults    int
	ScrollTimeout time.Duration
}

// QueryText returns the free-text query with the tags clause appended.
func (q Query) QueryText() string {
	if len(q.Tags) == 0 {
		return q.Text
	}
	return fmt.Sprintf("%s AND tags: (%s)", q.Text, strings.Join(q.Tags, " AND "))
}

// Projection returns the source fields to fetch, or nil for all fields.
func (q Query) Projection() []string {
	if len(q.Fields) == 0 || slices.Contains(q.Fields, search.AllIndices) {
		return nil
	}
	return slices.Clone(q.Fields)
}

// Request builds the initial search request.
func (q Query) Request() search.Request {
	req := search.Request{
		Indices:        slices.Clone(q.Indices),
		Sort:           slices.Clone(q.Sort),
		SourceIncludes: q.Projection(),
		Size:           q.Size,
		ScrollTimeout:  q.ScrollTimeout,
		TerminateAfter: q.MaxResults,
	}
	if q.Raw {
		req.Body = slices.Clone(q.Body)
	} else {
		req.QueryString = q.QueryText()
	}
	return req
}

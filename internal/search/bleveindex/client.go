package bleveindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/sha1n/es2csv/internal/domain"
	"github.com/sha1n/es2csv/internal/search"
)

// DocType is reported as the _type of every hit.
const DocType = "_doc"

// DefaultPageSize is used when a request does not set one.
const DefaultPageSize = 10

// Client is a search.Client over the indexes of a Store.
type Client struct {
	store *Store
	now   func() time.Time

	mu      sync.Mutex
	open    map[string]bleve.Index
	cursors map[string]*cursor
	closed  bool
}

var _ search.Client = (*Client)(nil)

// cursor is the server-side state behind a scroll token.
type cursor struct {
	alias    bleve.IndexAlias
	query    query.Query
	sort     []string
	includes []string
	size     int
	offset   int
	limit    int
	expires  time.Time
}

// NewClient creates a client reading indexes under dataDir.
func NewClient(dataDir string) *Client {
	return &Client{
		store:   NewStore(dataDir),
		now:     time.Now,
		open:    make(map[string]bleve.Index),
		cursors: make(map[string]*cursor),
	}
}

// Health verifies that the data directory holds an index directory.
func (c *Client) Health(context.Context) error {
	info, err := os.Stat(c.store.indexDir())
	if err != nil {
		return fmt.Errorf("index directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", c.store.indexDir())
	}
	return nil
}

// IndexExists reports whether any index matches name.
func (c *Client) IndexExists(_ context.Context, name string) (bool, error) {
	names, err := c.store.Names(name)
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// Search runs the query across the requested indexes and opens a cursor.
func (c *Client) Search(ctx context.Context, req search.Request) (*search.Page, error) {
	q, err := buildQuery(req)
	if err != nil {
		return nil, err
	}
	names, err := c.store.Resolve(req.Indices)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("client is closed")
	}

	indexes := make([]bleve.Index, 0, len(names))
	for _, name := range names {
		index, err := c.openLocked(name)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, index)
	}

	cur := &cursor{
		alias:    bleve.NewIndexAlias(indexes...),
		query:    q,
		sort:     sortOrder(req.Sort),
		includes: req.SourceIncludes,
		size:     req.Size,
		limit:    req.TerminateAfter,
	}
	if cur.size <= 0 {
		cur.size = DefaultPageSize
	}

	res, err := cur.next(ctx)
	if err != nil {
		return nil, err
	}
	total := int64(res.Total)
	if cur.limit > 0 && total > int64(cur.limit) {
		total = int64(cur.limit)
	}
	if cur.limit <= 0 || int64(cur.limit) > total {
		cur.limit = int(total)
	}

	page, err := cur.page(res)
	if err != nil {
		return nil, err
	}
	page.Total = total
	page.ScrollID = c.issueLocked(cur, req.ScrollTimeout)
	return page, nil
}

// Scroll retires scrollID and returns the next page under a fresh token.
func (c *Client) Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*search.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.cursors[scrollID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown scroll id %s", search.ErrCursorExpired, scrollID)
	}
	delete(c.cursors, scrollID)
	if !cur.expires.IsZero() && c.now().After(cur.expires) {
		return nil, fmt.Errorf("%w: scroll id %s timed out", search.ErrCursorExpired, scrollID)
	}

	page := &search.Page{}
	if cur.offset < cur.limit {
		res, err := cur.next(ctx)
		if err != nil {
			return nil, err
		}
		if page, err = cur.page(res); err != nil {
			return nil, err
		}
	}
	page.ScrollID = c.issueLocked(cur, keepAlive)
	return page, nil
}

// ClearScroll forgets the given tokens. Unknown tokens are ignored.
func (c *Client) ClearScroll(_ context.Context, scrollIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range scrollIDs {
		delete(c.cursors, id)
	}
	return nil
}

// Close releases every open index.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cursors = make(map[string]*cursor)

	var errs []error
	for name, index := range c.open {
		if err := index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close index %s: %w", name, err))
		}
	}
	c.open = make(map[string]bleve.Index)
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (c *Client) openLocked(name string) (bleve.Index, error) {
	if index, ok := c.open[name]; ok {
		return index, nil
	}
	index, err := c.store.OpenForRead(name)
	if err != nil {
		return nil, err
	}
	c.open[name] = index
	return index, nil
}

func (c *Client) issueLocked(cur *cursor, keepAlive time.Duration) string {
	cur.expires = time.Time{}
	if keepAlive > 0 {
		cur.expires = c.now().Add(keepAlive)
	}
	id := uuid.NewString()
	c.cursors[id] = cur
	return id
}

// next fetches the page at the cursor's offset and advances it.
func (cur *cursor) next(ctx context.Context) (*bleve.SearchResult, error) {
	size := cur.size
	if cur.limit > 0 {
		size = min(size, cur.limit-cur.offset)
	}
	sr := bleve.NewSearchRequestOptions(cur.query, size, cur.offset, false)
	sr.Fields = []string{FieldSource, FieldIndexName}
	if len(cur.sort) > 0 {
		sr.SortBy(cur.sort)
	}
	res, err := cur.alias.SearchInContext(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	cur.offset += len(res.Hits)
	return res, nil
}

func (cur *cursor) page(res *bleve.SearchResult) (*search.Page, error) {
	page := &search.Page{Hits: make([]domain.Hit, 0, len(res.Hits))}
	for _, dm := range res.Hits {
		hit := domain.Hit{ID: dm.ID, Index: dm.Index, Type: DocType}
		score := dm.Score
		hit.Score = &score
		if name, ok := dm.Fields[FieldIndexName].(string); ok {
			hit.Index = name
		}
		if raw, ok := dm.Fields[FieldSource].(string); ok && raw != "" {
			content, err := domain.ParseContent([]byte(raw))
			if err != nil {
				return nil, fmt.Errorf("document %s: %w", dm.ID, err)
			}
			if len(cur.includes) > 0 {
				content = content.Include(cur.includes)
			}
			hit.Source = content
		}
		page.Hits = append(page.Hits, hit)
	}
	return page, nil
}

// buildQuery turns a structured body or a query string into a bleve query.
// A body wrapping its query in a "query" object is unwrapped.
func buildQuery(req search.Request) (query.Query, error) {
	if len(req.Body) > 0 {
		raw := req.Body
		if inner := gjson.GetBytes(raw, "query"); inner.IsObject() {
			raw = []byte(inner.Raw)
		}
		q, err := query.ParseQuery(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid query body: %w", err)
		}
		return q, nil
	}

	text := strings.TrimSpace(req.QueryString)
	if text == "" || text == "*" {
		return bleve.NewMatchAllQuery(), nil
	}
	return bleve.NewQueryStringQuery(text), nil
}

// sortOrder converts "field:desc" entries to bleve's "-field" form.
func sortOrder(entries []string) []string {
	if len(entries) == 0 {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		field, dir, _ := strings.Cut(e, ":")
		if strings.EqualFold(dir, "desc") {
			field = "-" + field
		}
		out = append(out, field)
	}
	return out
}

// Document is the indexed form of a source document.
func Document(index string, source []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(source, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidJSON, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is not an object", domain.ErrInvalidJSON)
	}
	doc[FieldSource] = string(source)
	doc[FieldIndexName] = index
	return doc, nil
}

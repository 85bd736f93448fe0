// Package searchtest provides an in-memory search.Client for tests.
package searchtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sha1n/es2csv/internal/domain"
	"github.com/sha1n/es2csv/internal/search"
)

// Client serves a fixed result set through the scroll protocol and records calls.
// Error slices are consumed one entry per call; a nil entry means success.
type Client struct {
	Hits []domain.Hit
	// Indices lists the names IndexExists reports as present.
	Indices map[string]bool
	// ReportedTotal overrides the total returned on the first page when >= 0.
	ReportedTotal int64
	// EmptyAfter makes pages empty once that many hits were served (0 disables).
	EmptyAfter int
	// ExpireAfter makes Scroll fail with ErrCursorExpired once that many hits were served (0 disables).
	ExpireAfter int
	// ReuseScrollID returns the same cursor token for every page.
	ReuseScrollID bool

	HealthErrors []error
	ExistsErrors []error
	SearchErrors []error
	ScrollErrors []error
	ClearError   error

	mu       sync.Mutex
	calls    []string
	requests []search.Request
	cleared  [][]string
	offsets  map[string]int
	size     int
	seq      int
	closed   bool
}

// NewClient creates a fake client serving hits.
func NewClient(hits ...domain.Hit) *Client {
	return &Client{
		Hits:          hits,
		Indices:       map[string]bool{},
		ReportedTotal: -1,
		offsets:       map[string]int{},
	}
}

// Health implements search.Client.
func (c *Client) Health(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "health")
	return pop(&c.HealthErrors)
}

// IndexExists implements search.Client.
func (c *Client) IndexExists(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "exists:"+name)
	if err := pop(&c.ExistsErrors); err != nil {
		return false, err
	}
	return c.Indices[name], nil
}

// Search implements search.Client.
func (c *Client) Search(_ context.Context, req search.Request) (*search.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "search")
	c.requests = append(c.requests, req)
	if err := pop(&c.SearchErrors); err != nil {
		return nil, err
	}

	c.size = req.Size
	if c.size <= 0 {
		c.size = 10
	}
	total := int64(len(c.Hits))
	if c.ReportedTotal >= 0 {
		total = c.ReportedTotal
	}
	page := c.page(0)
	page.Total = total
	return page, nil
}

// Scroll implements search.Client.
func (c *Client) Scroll(_ context.Context, scrollID string, _ time.Duration) (*search.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "scroll:"+scrollID)
	if err := pop(&c.ScrollErrors); err != nil {
		return nil, err
	}

	offset, ok := c.offsets[scrollID]
	if !ok {
		return nil, fmt.Errorf("unknown scroll id %q: %w", scrollID, search.ErrCursorExpired)
	}
	if c.ExpireAfter > 0 && offset >= c.ExpireAfter {
		return nil, search.ErrCursorExpired
	}
	return c.page(offset), nil
}

// ClearScroll implements search.Client.
func (c *Client) ClearScroll(_ context.Context, scrollIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "clear")
	c.cleared = append(c.cleared, append([]string(nil), scrollIDs...))
	return c.ClearError
}

// Close implements search.Client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Client) page(offset int) *search.Page {
	end := min(offset+c.size, len(c.Hits))
	if c.EmptyAfter > 0 {
		end = min(end, c.EmptyAfter)
	}
	start := min(offset, end)

	id := "scroll-0"
	if !c.ReuseScrollID {
		c.seq++
		id = fmt.Sprintf("scroll-%d", c.seq)
	}
	c.offsets[id] = end

	hits := make([]domain.Hit, end-start)
	copy(hits, c.Hits[start:end])
	return &search.Page{ScrollID: id, Hits: hits}
}

// Calls returns the recorded operations in order.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Requests returns the recorded initial search requests.
func (c *Client) Requests() []search.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]search.Request(nil), c.requests...)
}

// Cleared returns the token lists passed to ClearScroll.
func (c *Client) Cleared() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]string(nil), c.cleared...)
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Unavailable returns an error classified as transient by search.IsTransient.
func Unavailable(msg string) error {
	return fmt.Errorf("%s: %w", msg, search.ErrUnavailable)
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

// Doc builds a hit from a JSON source. It panics on invalid JSON.
func Doc(id, source string) domain.Hit {
	content, err := domain.ParseContent([]byte(source))
	if err != nil {
		panic(errors.Join(fmt.Errorf("invalid test source for %s", id), err))
	}
	return domain.Hit{ID: id, Index: "test", Type: "_doc", Source: content}
}

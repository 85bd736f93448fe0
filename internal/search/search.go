// Package search defines the contract between the exporter and a search cluster.
package search

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/sha1n/es2csv/internal/domain"
)

// AllIndices is the wildcard-all sentinel for index and field selection.
const AllIndices = "_all"

var (
	// ErrUnavailable marks transient connectivity failures worth retrying
	ErrUnavailable = errors.New("search cluster unavailable")

	// ErrCursorExpired indicates the scroll context outlived its server-side lifetime
	ErrCursorExpired = errors.New("scroll cursor expired")
)

// Request is an immutable initial search.
type Request struct {
	Indices []string
	// Body is a structured JSON query. When empty, QueryString is used.
	Body        []byte
	QueryString string
	// Sort entries are "field" or "field:asc|desc".
	Sort           []string
	SourceIncludes []string
	Size           int
	ScrollTimeout  time.Duration
	// TerminateAfter caps the number of documents collected; 0 disables it.
	TerminateAfter int
}

// Page is one batch of results plus the cursor to fetch the next batch.
type Page struct {
	// Total is the matching document count; only meaningful on the first page.
	Total    int64
	ScrollID string
	Hits     []domain.Hit
}

// Client is a session to a search cluster.
type Client interface {
	Health(ctx context.Context) error
	IndexExists(ctx context.Context, name string) (bool, error)
	Search(ctx context.Context, req Request) (*Page, error)
	Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*Page, error)
	ClearScroll(ctx context.Context, scrollIDs []string) error
	Close() error
}

// IsTransient reports whether err is a connectivity failure that may succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

package export

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/sha1n/es2csv/internal/retry"
	"github.com/sha1n/es2csv/internal/search"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy() retry.Policy {
	return retry.Policy{
		Attempts:  2,
		Delay:     time.Millisecond,
		Retryable: search.IsTransient,
		OnRetry:   func(string, int, error) {},
		Sleep:     func(context.Context, time.Duration) error { return nil },
	}
}

// Get returns the value stored under key.
func (r *Row) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the column names in discovery order.
func (r *Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of columns in the row.
func (r *Row) Len() int { return len(r.keys) }

// Contains reports whether name is registered.
func (c *Columns) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Len returns the number of registered columns.
func (c *Columns) Len() int { return len(c.names) }

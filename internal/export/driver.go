package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sha1n/es2csv/internal/domain"
	"github.com/sha1n/es2csv/internal/metrics"
	"github.com/sha1n/es2csv/internal/retry"
	"github.com/sha1n/es2csv/internal/search"
)

// DefaultFlushBuffer is the number of documents handed to the sink at once.
const DefaultFlushBuffer = 1000

// StopReason tells why the cursor loop ended.
type StopReason string

const (
	// StopDone means every reported document was fetched
	StopDone StopReason = "done"
	// StopEmpty means the query matched nothing
	StopEmpty StopReason = "empty"
	// StopCapped means the max results limit was reached
	StopCapped StopReason = "capped"
	// StopExhausted means the cursor returned an empty page before the reported total
	StopExhausted StopReason = "exhausted"
	// StopExpired means the cursor expired on the server
	StopExpired StopReason = "expired"
)

// Early reports whether the loop stopped before reaching the expected count.
func (s StopReason) Early() bool {
	return s == StopExhausted || s == StopExpired
}

// SinkFunc receives one batch of documents. It must not retain the slice.
type SinkFunc func(hits []domain.Hit) error

// DriveResult summarizes a cursor loop. It is valid even when Run fails.
type DriveResult struct {
	// Reported is the total captured from the first page.
	Reported int64
	Fetched  int
	Stop     StopReason
	// ScrollIDs holds every distinct cursor token seen, in order.
	ScrollIDs []string
}

func (r *DriveResult) recordScrollID(id string) {
	if id == "" {
		return
	}
	for _, seen := range r.ScrollIDs {
		if seen == id {
			return
		}
	}
	r.ScrollIDs = append(r.ScrollIDs, id)
}

// Driver runs the initial search and advances the cursor until the result set
// is drained, capped or the cursor gives out.
type Driver struct {
	Client      search.Client
	Policy      retry.Policy
	FlushBuffer int
	Logger      *slog.Logger
	Metrics     *metrics.Export
}

func (d *Driver) flushBuffer() int {
	if d.FlushBuffer <= 0 {
		return DefaultFlushBuffer
	}
	return d.FlushBuffer
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Run drives the query and routes documents to sink in batches.
func (d *Driver) Run(ctx context.Context, q Query, sink SinkFunc) (DriveResult, error) {
	var res DriveResult
	log := d.logger()
	req := q.Request()

	if log.Enabled(ctx, slog.LevelDebug) {
		log.Debug("Using indices", "indices", strings.Join(req.Indices, ", "))
		if q.Raw {
			log.Debug("Query", "type", "Query DSL", "body", string(req.Body))
		} else {
			log.Debug("Query", "type", "Lucene", "q", req.QueryString)
		}
		log.Debug("Output fields", "fields", strings.Join(q.Fields, ", "))
		log.Debug("Sorting by", "sort", strings.Join(q.Sort, ", "))
	}

	page, err := retry.Do(ctx, d.Policy, "search", func(ctx context.Context) (*search.Page, error) {
		return d.Client.Search(ctx, req)
	})
	if err != nil {
		return res, fmt.Errorf("initial search failed: %w", err)
	}
	d.observePage(page)

	res.Reported = page.Total
	log.Info("Found results", "total", res.Reported)

	if res.Reported <= 0 {
		res.recordScrollID(page.ScrollID)
		res.Stop = StopEmpty
		return res, nil
	}

	pending := make([]domain.Hit, 0, d.flushBuffer())
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := sink(pending); err != nil {
			return err
		}
		pending = make([]domain.Hit, 0, d.flushBuffer())
		return nil
	}

	for int64(res.Fetched) < res.Reported {
		res.recordScrollID(page.ScrollID)

		if len(page.Hits) == 0 {
			log.Warn("Scroll returned no documents, saving loaded data", "scroll_id", page.ScrollID,
				"fetched", res.Fetched, "expected", res.Reported)
			res.Stop = StopExhausted
			break
		}

		for _, hit := range page.Hits {
			res.Fetched++
			pending = append(pending, hit)
			if len(pending) == d.flushBuffer() {
				if err := flush(); err != nil {
					return res, err
				}
			}
			if q.MaxResults > 0 && res.Fetched == q.MaxResults {
				if err := flush(); err != nil {
					return res, err
				}
				log.Info("Hit max result limit", "records", q.MaxResults)
				res.Stop = StopCapped
				return res, nil
			}
		}

		if int64(res.Fetched) >= res.Reported {
			break
		}

		scrollID := page.ScrollID
		next, err := retry.Do(ctx, d.Policy, "scroll", func(ctx context.Context) (*search.Page, error) {
			return d.Client.Scroll(ctx, scrollID, q.ScrollTimeout)
		})
		if errors.Is(err, search.ErrCursorExpired) {
			log.Warn("Scroll expired, saving loaded data", "scroll_id", scrollID,
				"fetched", res.Fetched, "expected", res.Reported)
			res.Stop = StopExpired
			break
		}
		if err != nil {
			return res, fmt.Errorf("scroll failed: %w", err)
		}
		d.observePage(next)
		page = next
	}

	if res.Stop == "" {
		res.Stop = StopDone
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

func (d *Driver) observePage(p *search.Page) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.PagesFetched.Inc()
	d.Metrics.DocumentsFetched.Add(float64(len(p.Hits)))
}

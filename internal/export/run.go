// Package export streams a scroll query into a flat CSV file.
package export

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sha1n/es2csv/internal/domain"
	"github.com/sha1n/es2csv/internal/metrics"
	"github.com/sha1n/es2csv/internal/retry"
	"github.com/sha1n/es2csv/internal/search"
)

// Options configures an export run.
type Options struct {
	OutputFile string
	// Delimiter joins multiple values that flatten to the same column.
	Delimiter   string
	MetaFields  bool
	FlushBuffer int
	Query       Query
}

// Result summarizes a finished (or failed) export run.
type Result struct {
	Reported int64
	Fetched  int
	Spilled  int
	Written  int
	Stop     StopReason
	Columns  []string
	// ScrollIDs are the cursor tokens released at the end of the run.
	ScrollIDs []string
}

// Run owns the output file, its spill store and the cursor tokens of one export.
type Run struct {
	client  search.Client
	policy  retry.Policy
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Export
}

// NewRun creates an export run. A nil logger uses slog.Default and nil
// metrics are replaced by an unexported registry.
func NewRun(client search.Client, policy retry.Policy, opts Options, logger *slog.Logger, m *metrics.Export) *Run {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Run{client: client, policy: policy, opts: opts, logger: logger, metrics: m}
}

// Execute drives the query into the spill store, then writes the CSV.
// Cursor tokens are released and the spill store deleted on every path.
func (r *Run) Execute(ctx context.Context) (res Result, err error) {
	started := time.Now()
	out := r.opts.OutputFile

	lock := NewFileLock(out + LockSuffix)
	acquired, err := lock.TryLock()
	if err != nil {
		return res, fmt.Errorf("failed to lock output: %w", err)
	}
	if !acquired {
		return res, fmt.Errorf("%w: %s", ErrOutputLocked, out)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			r.logger.Error("Failed to release output lock", "path", lock.Path(), "error", uerr)
		}
	}()

	if err := os.WriteFile(out, nil, 0644); err != nil {
		return res, fmt.Errorf("failed to create output file: %w", err)
	}

	spill, err := CreateSpill(out + SpillSuffix)
	if err != nil {
		return res, err
	}
	defer func() {
		if rerr := spill.Remove(); rerr != nil {
			r.logger.Error("Failed to remove spill file", "path", spill.Path(), "error", rerr)
		}
	}()

	columns := InitialColumns(r.opts.MetaFields, r.opts.Query.Fields)
	driver := &Driver{
		Client:      r.client,
		Policy:      r.policy,
		FlushBuffer: r.opts.FlushBuffer,
		Logger:      r.logger,
		Metrics:     r.metrics,
	}

	dres, err := driver.Run(ctx, r.opts.Query, func(hits []domain.Hit) error {
		rows := make([]*Row, 0, len(hits))
		for _, hit := range hits {
			if !hit.HasSource() {
				continue
			}
			row := r.rowFor(hit)
			columns.AddRow(row)
			rows = append(rows, row)
		}
		if err := spill.Append(rows); err != nil {
			return err
		}
		r.metrics.RowsSpilled.Add(float64(len(rows)))
		return nil
	})
	res.Reported = dres.Reported
	res.Fetched = dres.Fetched
	res.Stop = dres.Stop
	res.ScrollIDs = dres.ScrollIDs
	defer r.releaseCursors(ctx, dres.ScrollIDs)

	if err != nil {
		return res, err
	}
	r.metrics.ReportedTotal.Set(float64(dres.Reported))

	if dres.Reported <= 0 {
		r.logger.Info("No documents matched the query", "output", out)
		r.finish(started)
		return res, nil
	}

	res.Spilled, err = spill.Count()
	if err != nil {
		return res, err
	}
	if res.Spilled == 0 {
		r.logger.Warn("There are no docs with selected field(s)", "fields", strings.Join(r.opts.Query.Fields, ","))
		r.finish(started)
		return res, nil
	}

	res.Columns = columns.Seal()
	r.metrics.Columns.Set(float64(len(res.Columns)))

	res.Written, err = r.materialize(out, res.Columns, spill)
	if err != nil {
		return res, err
	}
	r.metrics.RowsWritten.Add(float64(res.Written))
	level := slog.LevelInfo
	if res.Stop.Early() {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "Export finished", "output", out, "rows", res.Written, "columns", len(res.Columns), "stop", string(res.Stop))
	r.finish(started)
	return res, nil
}

func (r *Run) rowFor(hit domain.Hit) *Row {
	row := NewRow()
	if r.opts.MetaFields {
		row = MetaRow(hit)
	}
	FlattenInto(row, hit.Source, r.opts.Delimiter)
	return row
}

func (r *Run) materialize(path string, columns []string, spill *Spill) (written int, err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(f)
	written, err = Materialize(w, columns, spill.Replay)
	if err != nil {
		return written, err
	}
	if err := w.Flush(); err != nil {
		return written, fmt.Errorf("failed to write output file: %w", err)
	}
	return written, nil
}

// releaseCursors clears every cursor token; failures never affect the run.
func (r *Run) releaseCursors(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := r.client.ClearScroll(context.WithoutCancel(ctx), ids); err != nil {
		r.logger.Debug("Failed to clear scroll ids", "count", len(ids), "error", err)
	}
}

func (r *Run) finish(started time.Time) {
	r.metrics.DurationSeconds.Set(time.Since(started).Seconds())
	r.metrics.LastSuccess.SetToCurrentTime()
}

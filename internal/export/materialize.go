package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ErrUnknownColumn is returned when a replayed row has a key outside the header.
var ErrUnknownColumn = errors.New("row references a column outside the header")

// ReplayFunc streams stored rows to a callback.
type ReplayFunc func(fn func(map[string]string) error) error

// Materialize writes the header and one CSV record per replayed row.
// Missing columns are written as empty fields. It returns the number of data
// rows written.
func Materialize(w io.Writer, columns []string, replay ReplayFunc) (int, error) {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(columns); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}

	written := 0
	record := make([]string, len(columns))
	err := replay(func(row map[string]string) error {
		for k := range row {
			if _, ok := known[k]; !ok {
				return fmt.Errorf("%w: %q", ErrUnknownColumn, k)
			}
		}
		for i, c := range columns {
			record[i] = row[c]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		written++
		return nil
	})
	if err != nil {
		return written, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("failed to flush csv: %w", err)
	}
	return written, nil
}

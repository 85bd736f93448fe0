package bleveindex

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Loader ingests newline-delimited JSON documents into a local index.
// Each line is either a bare document or a hit envelope carrying _id and _source.
type Loader struct {
	store  *Store
	logger *slog.Logger
}

// NewLoader creates a loader writing indexes under dataDir.
func NewLoader(dataDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: NewStore(dataDir), logger: logger}
}

// Load indexes every document read from r into the named index and returns the
// number of documents indexed. Blank lines are skipped; an invalid line aborts
// the load after the preceding batches were committed.
func (l *Loader) Load(ctx context.Context, index string, r io.Reader) (count int, err error) {
	idx, err := l.store.OpenForWrite(index)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := idx.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	batch := idx.NewBatch()
	batchSize := 0
	flush := func() error {
		if batchSize == 0 {
			return nil
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("batch index failed: %w", err)
		}
		count += batchSize
		l.logger.Debug("Indexed batch", "index", index, "documents", batchSize, "total", count)
		batch = idx.NewBatch()
		batchSize = 0
		return nil
	}

	reader := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		line, rerr := reader.ReadBytes('\n')
		if rerr != nil && rerr != io.EOF {
			return count, fmt.Errorf("failed to read input: %w", rerr)
		}

		if line = bytes.TrimSpace(line); len(line) > 0 {
			id, source := splitEnvelope(line)
			doc, err := Document(index, source)
			if err != nil {
				return count, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if err := batch.Index(id, doc); err != nil {
				return count, fmt.Errorf("line %d: %w", lineNo, err)
			}
			batchSize++

			if batchSize >= MaxBatchSize {
				if err := flush(); err != nil {
					return count, err
				}
			}
		}

		if rerr == io.EOF {
			break
		}
	}

	if err := flush(); err != nil {
		return count, err
	}
	l.logger.Info("Loaded documents", "index", index, "count", count)
	return count, nil
}

// splitEnvelope returns the document id and source of a line. Lines without an
// object-valued _source are bare documents and get a random id.
func splitEnvelope(line []byte) (string, []byte) {
	src := gjson.GetBytes(line, "_source")
	if !src.IsObject() {
		return uuid.NewString(), line
	}
	id := gjson.GetBytes(line, "_id").String()
	if id == "" {
		id = uuid.NewString()
	}
	return id, []byte(src.Raw)
}

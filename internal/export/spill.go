package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// SpillSuffix is appended to the output path to name the spill store.
const SpillSuffix = ".tmp"

// Spill is an append-only JSON-lines store holding flattened rows until the
// final column set is known. Each line is one self-describing row object.
type Spill struct {
	path string
	file *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

// CreateSpill creates (or truncates) the spill store at path.
func CreateSpill(path string) (*Spill, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create spill file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &Spill{path: path, file: f, w: w, enc: json.NewEncoder(w)}, nil
}

// Path returns the location of the spill store.
func (s *Spill) Path() string {
	return s.path
}

// Append writes one batch of rows and flushes it to disk.
func (s *Spill) Append(rows []*Row) error {
	if s.file == nil {
		return errors.New("spill store is closed")
	}
	for _, r := range rows {
		if err := s.enc.Encode(r.values); err != nil {
			return fmt.Errorf("failed to encode spilled row: %w", err)
		}
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush spill file: %w", err)
	}
	return nil
}

// Close flushes and closes the writer side of the store.
func (s *Spill) Close() error {
	if s.file == nil {
		return nil
	}
	ferr := s.w.Flush()
	cerr := s.file.Close()
	s.file = nil
	if ferr != nil {
		return fmt.Errorf("failed to flush spill file: %w", ferr)
	}
	return cerr
}

// Count re-counts the rows stored on disk.
func (s *Spill) Count() (int, error) {
	if s.file != nil {
		if err := s.w.Flush(); err != nil {
			return 0, fmt.Errorf("failed to flush spill file: %w", err)
		}
	}

	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open spill file: %w", err)
	}
	defer func() { _ = f.Close() }()

	count := 0
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		count += bytes.Count(buf[:n], []byte{'\n'})
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read spill file: %w", err)
		}
	}
}

// Replay streams the stored rows, in append order, to fn.
func (s *Spill) Replay(fn func(map[string]string) error) error {
	if err := s.Close(); err != nil {
		return err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open spill file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	for line := 1; ; line++ {
		data, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(data)) > 0 {
			var row map[string]string
			if uerr := json.Unmarshal(data, &row); uerr != nil {
				return fmt.Errorf("corrupt spill row %d: %w", line, uerr)
			}
			if ferr := fn(row); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read spill file: %w", err)
		}
	}
}

// Remove closes and deletes the store.
func (s *Spill) Remove() error {
	_ = s.Close()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove spill file: %w", err)
	}
	return nil
}

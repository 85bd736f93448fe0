// Package bleveindex serves exports from local bleve indexes, emulating the
// cluster's scroll protocol with from/size paging.
package bleveindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/sha1n/es2csv/internal/search"
)

const (
	// IndexSuffix is the suffix for index directories
	IndexSuffix = ".bleve"

	// MaxBatchSize is the maximum number of documents per batch
	MaxBatchSize = 100

	// FieldSource holds the original JSON document; stored, not indexed.
	FieldSource = "_source"

	// FieldIndexName holds the name of the index a document was loaded into.
	FieldIndexName = "_index"
)

// ErrNoIndex is returned when a search names no existing index.
var ErrNoIndex = errors.New("no such index")

// Store locates the indexes under a data directory.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) indexDir() string {
	return filepath.Join(s.baseDir, "indexes")
}

// indexPath returns the path to the index with the given name.
func (s *Store) indexPath(name string) string {
	return filepath.Join(s.indexDir(), name+IndexSuffix)
}

// CreateIndexMapping creates the mapping for exported documents. Document
// fields are mapped dynamically; the original JSON is kept for retrieval.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	sourceField := bleve.NewTextFieldMapping()
	sourceField.Index = false
	sourceField.Store = true
	sourceField.IncludeInAll = false
	sourceField.DocValues = false
	docMapping.AddFieldMappingsAt(FieldSource, sourceField)

	indexField := bleve.NewTextFieldMapping()
	indexField.Analyzer = keyword.Name
	indexField.Store = true
	indexField.IncludeInAll = false
	docMapping.AddFieldMappingsAt(FieldIndexName, indexField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	indexMapping.StoreDynamic = false

	return indexMapping
}

// OpenForWrite opens or creates an index for writing.
func (s *Store) OpenForWrite(name string) (bleve.Index, error) {
	indexPath := s.indexPath(name)

	index, err := bleve.Open(indexPath)
	if err == nil {
		return index, nil
	}

	if err := os.MkdirAll(s.indexDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err = bleve.New(indexPath, CreateIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return index, nil
}

// OpenForRead opens an existing index read-only, so several readers may share it.
func (s *Store) OpenForRead(name string) (bleve.Index, error) {
	index, err := bleve.OpenUsing(s.indexPath(name), map[string]interface{}{"read_only": true})
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	index.SetName(name)
	return index, nil
}

// Names expands an index name, a glob pattern or _all into existing index names.
func (s *Store) Names(pattern string) ([]string, error) {
	if pattern == search.AllIndices {
		pattern = "*"
	}
	matches, err := filepath.Glob(s.indexPath(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid index pattern %q: %w", pattern, err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			names = append(names, strings.TrimSuffix(filepath.Base(m), IndexSuffix))
		}
	}
	slices.Sort(names)
	return names, nil
}

// Resolve expands every requested name and returns the distinct matches.
func (s *Store) Resolve(requested []string) ([]string, error) {
	if len(requested) == 0 {
		requested = []string{search.AllIndices}
	}
	var names []string
	for _, r := range requested {
		matches, err := s.Names(r)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !slices.Contains(names, m) {
				names = append(names, m)
			}
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoIndex, strings.Join(requested, ","))
	}
	return names, nil
}

// OpenAll opens the named indexes for reading.
// On failure every index opened so far is closed.
func (s *Store) OpenAll(names []string) ([]bleve.Index, error) {
	indexes := make([]bleve.Index, 0, len(names))
	for _, name := range names {
		index, err := s.OpenForRead(name)
		if err != nil {
			closeAll(indexes)
			return nil, fmt.Errorf("failed to open index for %s: %w", name, err)
		}
		indexes = append(indexes, index)
	}
	return indexes, nil
}

// DocumentCount returns the number of documents in an index.
func (s *Store) DocumentCount(name string) (count uint64, err error) {
	index, err := s.OpenForRead(name)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := index.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return index.DocCount()
}

func closeAll(indexes []bleve.Index) {
	for _, idx := range indexes {
		_ = idx.Close()
	}
}

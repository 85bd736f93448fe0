package export

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sha1n/es2csv/internal/retry"
	"github.com/sha1n/es2csv/internal/search"
)

// NoIndexError is returned when none of the requested indices exist.
type NoIndexError struct {
	Requested []string
}

func (e *NoIndexError) Error() string {
	return fmt.Sprintf("none of the index(es) %s exist", strings.Join(e.Requested, ", "))
}

// ResolveIndices keeps the requested indices that exist on the cluster, in
// request order. A request containing _all resolves to _all without checks.
func ResolveIndices(ctx context.Context, client search.Client, requested []string, policy retry.Policy) ([]string, error) {
	if slices.Contains(requested, search.AllIndices) {
		return []string{search.AllIndices}, nil
	}

	var found []string
	for _, name := range requested {
		exists, err := retry.Do(ctx, policy, "index exists", func(ctx context.Context) (bool, error) {
			return client.IndexExists(ctx, name)
		})
		if err != nil {
			return nil, err
		}
		if exists && !slices.Contains(found, name) {
			found = append(found, name)
		}
	}

	if len(found) == 0 {
		return nil, &NoIndexError{Requested: slices.Clone(requested)}
	}
	return found, nil
}

package export

import (
	"context"

	"github.com/sha1n/es2csv/internal/retry"
	"github.com/sha1n/es2csv/internal/search"
)

// DialFunc opens a new session to the search cluster.
type DialFunc func(ctx context.Context) (search.Client, error)

// Connect dials the cluster and confirms it is healthy, retrying transient
// failures under policy. Exhausted retries surface as *retry.FatalError.
func Connect(ctx context.Context, dial DialFunc, policy retry.Policy) (search.Client, error) {
	return retry.Do(ctx, policy, "connect", func(ctx context.Context) (search.Client, error) {
		client, err := dial(ctx)
		if err != nil {
			return nil, err
		}
		if err := client.Health(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		return client, nil
	})
}

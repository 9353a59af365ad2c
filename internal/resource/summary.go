package resource

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"
)

// DefaultSummaryConcurrency bounds the parallel count requests of Summary.
const DefaultSummaryConcurrency = 4

// Count is the size of one collection.
type Count struct {
	Endpoint Endpoint `json:"resource"`
	Total    int      `json:"total"`
}

// Summary counts the objects of each endpoint concurrently, as the dashboard
// does. Results follow the order of endpoints. The first failure cancels the
// remaining requests.
func Summary(ctx context.Context, api Getter, endpoints []Endpoint) ([]Count, error) {
	counts := make([]Count, len(endpoints))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultSummaryConcurrency)

	for i, ep := range endpoints {
		g.Go(func() error {
			page, err := List[json.RawMessage](ctx, api, ep, ListParams{})
			if err != nil {
				return err
			}
			counts[i] = Count{Endpoint: ep, Total: page.Count}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

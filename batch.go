package counterfactual

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

// DefaultBatchConcurrency is the number of instances explained at once when concurrency is not positive
const DefaultBatchConcurrency = 4

// ExplainBatch explains independent instances concurrently. Each search runs
// sequentially on its own instance, so the scorer must be safe for concurrent
// use. Results are returned in input order. The first failure cancels the
// remaining searches and is returned.
func (e *Explainer) ExplainBatch(ctx context.Context, instances []sparse.Vector, featureNames []string, concurrency int) ([]*Result, error) {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	results := make([]*Result, len(instances))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, instance := range instances {
		g.Go(func() error {
			result, err := e.Explain(gctx, instance, featureNames)
			if err != nil {
				return fmt.Errorf("instance %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

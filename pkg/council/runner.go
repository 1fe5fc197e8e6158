package council

import (
	"context"
	"sync"
	"time"
)

// Querier issues provider queries. CLIClient is the production
// implementation; tests substitute fakes.
type Querier interface {
	AvailableProviders() []string
	Query(ctx context.Context, provider, prompt string, timeout time.Duration) (string, error)
}

// Outcome is one provider's result from a fan-out round.
type Outcome struct {
	Content string
	Err     error
}

// queryAll sends prompt to every provider and collects outcomes keyed by
// provider name. Parallel mode fans out one goroutine per provider and joins
// on all of them; sequential mode queries providers in order.
func queryAll(ctx context.Context, q Querier, providers []string, prompt string, parallel bool) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(providers))

	if !parallel {
		for _, provider := range providers {
			content, err := q.Query(ctx, provider, prompt, 0)
			outcomes[provider] = Outcome{Content: content, Err: err}
		}
		return outcomes
	}

	type providerResult struct {
		provider string
		outcome  Outcome
	}

	results := make(chan providerResult, len(providers))
	var wg sync.WaitGroup

	for _, provider := range providers {
		wg.Add(1)
		go func(provider string) {
			defer wg.Done()
			content, err := q.Query(ctx, provider, prompt, 0)
			results <- providerResult{provider: provider, outcome: Outcome{Content: content, Err: err}}
		}(provider)
	}

	wg.Wait()
	close(results)

	for r := range results {
		outcomes[r.provider] = r.outcome
	}
	return outcomes
}

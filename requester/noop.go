package requester

import (
	"context"

	bench "github.com/gatewaylab/gatewaybench"
)

// NOOPRequesterFactory creates Requesters which send nothing. A run against
// it measures the overhead of the engine and its pacing.
type NOOPRequesterFactory struct{}

// GetRequester returns a new no-op Requester for each simulated user.
func (n *NOOPRequesterFactory) GetRequester(uint64) bench.Requester {
	return &noopRequester{}
}

type noopRequester struct{}

func (n *noopRequester) Setup() error { return nil }

// Request returns immediately unless ctx is already done.
func (n *noopRequester) Request(ctx context.Context) error { return ctx.Err() }

func (n *noopRequester) Teardown() error { return nil }

func (n *noopRequester) Method() string { return "NOOP" }

func (n *noopRequester) Name() string { return "noop" }

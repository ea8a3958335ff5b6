/*
Package requester provides bench.RequesterFactory implementations for the
systems a gateway load test drives: the gateway's HTTP process endpoint, a
Redis list feeding it, a NATS subject and a no-op for measuring overhead.
*/
package requester

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultSetupRetries = 5
)

// StatusError is returned by HTTP requesters when the system under test
// answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// connect calls dial until it succeeds, backing off exponentially between
// attempts.
func connect(what string, dial func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second
	err := backoff.Retry(dial, backoff.WithMaxRetries(policy, defaultSetupRetries))
	return errors.Wrapf(err, "connect to %s", what)
}

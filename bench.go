/*
Package bench provides a framework for generating sustained load against a
system under test and capturing the latency distribution of every request.

A Benchmark spawns a number of simulated users. Each user owns its own
Requester and repeatedly issues a request, records the outcome and then waits
out a random delay drawn from a Pacing policy.
*/
package bench

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gatewaylab/gatewaybench/internal/util"
)

const (
	maxRecordableLatencyNS = 300000000000
	sigFigs                = 3

	defaultHistoryInterval = time.Second
)

// Requester synchronously issues requests for a particular system under test.
type Requester interface {
	// Setup prepares the Requester for benchmarking.
	Setup() error

	// Request performs a synchronous request to the system under test.
	Request(ctx context.Context) error

	// Teardown is called upon benchmark completion.
	Teardown() error
}

// Named is implemented by Requesters which want their requests grouped under
// a method and name in the statistics, e.g. "POST" and "/process".
type Named interface {
	Method() string
	Name() string
}

// RequesterFactory creates new Requesters.
type RequesterFactory interface {
	// GetRequester returns a new Requester, called for each simulated user.
	GetRequester(number uint64) Requester
}

// Observer is notified of every recorded request and of changes in the
// number of running users.
type Observer interface {
	ObserveRequest(method, name string, latency time.Duration, err error)
	ObserveUsers(count int)
}

type noopObserver struct{}

func (noopObserver) ObserveRequest(string, string, time.Duration, error) {}
func (noopObserver) ObserveUsers(int)                                    {}

// Options configures a Benchmark.
type Options struct {
	// Users is the number of simulated users. Must be at least one.
	Users uint64

	// SpawnRate is the number of users started per second. Zero starts all
	// users at once.
	SpawnRate float64

	// Duration bounds the run. Zero means no time limit.
	Duration time.Duration

	// Iterations is the number of requests each user issues. Zero means no
	// limit.
	Iterations uint64

	// Pacing is the wait applied between two requests of the same user. The
	// zero value disables waiting entirely.
	Pacing Pacing

	// HistoryInterval is how often a statistics history row is sampled.
	HistoryInterval time.Duration

	Observer Observer
	Logger   *logrus.Entry
}

// Benchmark performs a system benchmark by running simulated users against a
// system under test and capturing the latency distribution.
type Benchmark struct {
	factory RequesterFactory
	opts    Options
	stats   *stats
	log     *logrus.Entry
}

// NewBenchmark creates a Benchmark which runs simulated users built by the
// given RequesterFactory.
func NewBenchmark(factory RequesterFactory, opts Options) (*Benchmark, error) {
	if factory == nil {
		return nil, errors.New("bench: nil requester factory")
	}
	if opts.Users == 0 {
		return nil, errors.New("bench: at least one user is required")
	}
	if opts.SpawnRate < 0 || math.IsNaN(opts.SpawnRate) ||
		(opts.SpawnRate > 0 && float64(time.Second)/opts.SpawnRate >= math.MaxInt64) {
		return nil, errors.Errorf("bench: invalid spawn rate %v", opts.SpawnRate)
	}
	if err := opts.Pacing.Validate(); err != nil {
		return nil, err
	}
	if opts.HistoryInterval <= 0 {
		opts.HistoryInterval = defaultHistoryInterval
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Benchmark{
		factory: factory,
		opts:    opts,
		log:     opts.Logger.WithField("subsystem", "bench"),
	}, nil
}

// Run the benchmark and return a Summary of the results. A Setup failure of
// any user aborts the run and is returned. Request failures are recorded and
// do not stop the run. Run can be called multiple times, each call starts
// with fresh statistics.
func (b *Benchmark) Run(ctx context.Context) (*Summary, error) {
	if b.opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Duration)
		defer cancel()
	}

	b.stats = newStats(b.opts.Observer)
	b.log.WithFields(logrus.Fields{
		"users":      b.opts.Users,
		"spawn_rate": b.opts.SpawnRate,
		"duration":   b.opts.Duration,
		"iterations": b.opts.Iterations,
	}).Info("starting benchmark")

	start := time.Now()
	historyDone := make(chan struct{})
	historyCtx, stopHistory := context.WithCancel(ctx)
	go func() {
		defer close(historyDone)
		b.sampleHistory(historyCtx)
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	b.spawn(groupCtx, group)
	err := group.Wait()

	stopHistory()
	<-historyDone
	elapsed := time.Since(start)
	b.stats.sample(time.Now())

	if err != nil {
		b.log.WithError(err).Error("benchmark aborted")
		return nil, err
	}

	summary := b.stats.summary(b.opts.Users, b.opts.SpawnRate, elapsed)
	b.log.WithFields(logrus.Fields{
		"success": summary.SuccessTotal,
		"errors":  summary.ErrorTotal,
		"elapsed": summary.TimeElapsed,
	}).Info("benchmark complete")
	return summary, nil
}

// spawn starts the users at the configured rate. It returns once all users
// are started or the context is done.
func (b *Benchmark) spawn(ctx context.Context, group *errgroup.Group) {
	var interval time.Duration
	if b.opts.SpawnRate > 0 {
		interval = time.Duration(float64(time.Second) / b.opts.SpawnRate)
	}
	for i := uint64(0); i < b.opts.Users; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
		if ctx.Err() != nil {
			return
		}
		number := i
		group.Go(func() error {
			return b.runUser(ctx, number)
		})
	}
}

func (b *Benchmark) runUser(ctx context.Context, number uint64) (err error) {
	defer func() {
		if recoverRes := recover(); recoverRes != nil {
			stack := util.CallStack(recoverRes, "", "(*Benchmark).runUser(", 5)
			err = fmt.Errorf("bench: user %d panicked: %s", number, strings.Join(stack, "\n"))
		}
	}()

	requester := b.factory.GetRequester(number)
	if err := requester.Setup(); err != nil {
		return errors.Wrapf(err, "bench: user %d setup failed", number)
	}
	defer func() {
		if e := requester.Teardown(); e != nil && err == nil {
			err = errors.Wrapf(e, "bench: user %d teardown failed", number)
		}
	}()

	method, name := "", "request"
	if named, ok := requester.(Named); ok {
		method, name = named.Method(), named.Name()
	}

	b.stats.userStarted()
	defer b.stats.userStopped()

	for i := uint64(0); b.opts.Iterations == 0 || i < b.opts.Iterations; i++ {
		if ctx.Err() != nil {
			return nil
		}
		before := time.Now()
		reqErr := requester.Request(ctx)
		latency := time.Since(before)
		if reqErr != nil && ctx.Err() != nil {
			// Interrupted by the end of the run.
			return nil
		}
		b.stats.record(method, name, latency, reqErr)

		if b.opts.Iterations != 0 && i+1 == b.opts.Iterations {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.opts.Pacing.Next()):
		}
	}
	return nil
}

func (b *Benchmark) sampleHistory(ctx context.Context) {
	ticker := time.NewTicker(b.opts.HistoryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			row := b.stats.sample(now)
			b.log.WithFields(logrus.Fields{
				"users":        row.Users,
				"rps":          fmt.Sprintf("%.2f", row.RequestsPerSecond),
				"failures_ps":  fmt.Sprintf("%.2f", row.FailuresPerSecond),
				"total":        row.TotalRequests,
				"total_failed": row.TotalFailures,
			}).Debug("stats")
		}
	}
}

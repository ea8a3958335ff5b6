package bench

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type fakeRequester struct {
	setupErr  error
	request   func(ctx context.Context) error
	requests  atomic.Int64
	setups    atomic.Int64
	teardowns atomic.Int64
}

func (f *fakeRequester) Setup() error {
	f.setups.Add(1)
	return f.setupErr
}

func (f *fakeRequester) Request(ctx context.Context) error {
	f.requests.Add(1)
	if f.request != nil {
		return f.request(ctx)
	}
	return nil
}

func (f *fakeRequester) Teardown() error {
	f.teardowns.Add(1)
	return nil
}

func (f *fakeRequester) Method() string { return "POST" }
func (f *fakeRequester) Name() string   { return "/process" }

type fakeFactory struct {
	mu         sync.Mutex
	requesters []*fakeRequester
	build      func(number uint64) *fakeRequester
}

func (f *fakeFactory) GetRequester(number uint64) Requester {
	r := &fakeRequester{}
	if f.build != nil {
		r = f.build(number)
	}
	f.mu.Lock()
	f.requesters = append(f.requesters, r)
	f.mu.Unlock()
	return r
}

type countingObserver struct {
	mu       sync.Mutex
	requests int
	failures int
	maxUsers int
	lastUser int
}

func (o *countingObserver) ObserveRequest(_, _ string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests++
	if err != nil {
		o.failures++
	}
}

func (o *countingObserver) ObserveUsers(count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastUser = count
	if count > o.maxUsers {
		o.maxUsers = count
	}
}

func TestNewBenchmarkValidation(t *testing.T) {
	_, err := NewBenchmark(nil, Options{Users: 1})
	require.Error(t, err)
	_, err = NewBenchmark(&fakeFactory{}, Options{})
	require.Error(t, err)
	_, err = NewBenchmark(&fakeFactory{}, Options{Users: 1, SpawnRate: -1})
	require.Error(t, err)
	_, err = NewBenchmark(&fakeFactory{}, Options{Users: 1, SpawnRate: 1e-300})
	require.Error(t, err)
	_, err = NewBenchmark(&fakeFactory{}, Options{Users: 1, Pacing: Pacing{Min: 2, Max: 1}})
	require.True(t, errors.Is(err, ErrInvalidPacing))
}

func TestRunIterations(t *testing.T) {
	factory := &fakeFactory{}
	observer := &countingObserver{}
	b, err := NewBenchmark(factory, Options{
		Users:      3,
		Iterations: 4,
		Pacing:     Constant(time.Millisecond),
		Observer:   observer,
		Logger:     discardLogger(),
	})
	require.NoError(t, err)

	summary, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(12), summary.SuccessTotal)
	assert.Equal(t, uint64(0), summary.ErrorTotal)
	assert.Equal(t, uint64(3), summary.Users)
	assert.Equal(t, int64(12), summary.SuccessHistogram.TotalCount())
	assert.Equal(t, int64(0), summary.ErrorHistogram.TotalCount())
	require.Len(t, factory.requesters, 3)
	for _, r := range factory.requesters {
		assert.Equal(t, int64(4), r.requests.Load())
		assert.Equal(t, int64(1), r.setups.Load())
		assert.Equal(t, int64(1), r.teardowns.Load())
	}

	require.Len(t, summary.Entries, 1)
	assert.Equal(t, "POST", summary.Entries[0].Method)
	assert.Equal(t, "/process", summary.Entries[0].Name)
	assert.Equal(t, uint64(12), summary.Entries[0].RequestCount)
	assert.Equal(t, "Aggregated", summary.Aggregated.Name)
	assert.NotEmpty(t, summary.History)
	assert.Greater(t, summary.Throughput, 0.0)

	assert.Equal(t, 12, observer.requests)
	assert.Equal(t, 3, observer.maxUsers)
	assert.Equal(t, 0, observer.lastUser)
}

func TestRunPacingBetweenRequests(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	factory := &fakeFactory{build: func(uint64) *fakeRequester {
		return &fakeRequester{request: func(context.Context) error {
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
			return nil
		}}
	}}
	b, err := NewBenchmark(factory, Options{
		Users:      1,
		Iterations: 4,
		Pacing:     Constant(20 * time.Millisecond),
		Logger:     discardLogger(),
	})
	require.NoError(t, err)
	_, err = b.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, stamps, 4)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 20*time.Millisecond)
	}
}

func TestRunRecordsFailures(t *testing.T) {
	factory := &fakeFactory{build: func(uint64) *fakeRequester {
		var n atomic.Int64
		return &fakeRequester{request: func(context.Context) error {
			if n.Add(1)%2 == 0 {
				return errors.New("status 500")
			}
			return nil
		}}
	}}
	b, err := NewBenchmark(factory, Options{Users: 2, Iterations: 4, Logger: discardLogger()})
	require.NoError(t, err)

	summary, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), summary.SuccessTotal)
	assert.Equal(t, uint64(4), summary.ErrorTotal)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, Failure{Method: "POST", Name: "/process", Error: "status 500", Occurrences: 4}, summary.Failures[0])
	assert.Equal(t, uint64(4), summary.Aggregated.FailureCount)
}

func TestRunSetupErrorAborts(t *testing.T) {
	factory := &fakeFactory{build: func(number uint64) *fakeRequester {
		if number == 1 {
			return &fakeRequester{setupErr: errors.New("refused")}
		}
		return &fakeRequester{}
	}}
	b, err := NewBenchmark(factory, Options{Users: 2, Pacing: Constant(time.Millisecond), Logger: discardLogger()})
	require.NoError(t, err)

	summary, err := b.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "refused")
	for _, r := range factory.requesters {
		if r.setupErr == nil {
			assert.Equal(t, int64(1), r.teardowns.Load())
		} else {
			assert.Equal(t, int64(0), r.teardowns.Load())
		}
	}
}

func TestRunUsersEndAtZero(t *testing.T) {
	for i := 0; i < 20; i++ {
		observer := &countingObserver{}
		b, err := NewBenchmark(&fakeFactory{}, Options{
			Users:      50,
			Iterations: 1,
			Observer:   observer,
			Logger:     discardLogger(),
		})
		require.NoError(t, err)
		_, err = b.Run(context.Background())
		require.NoError(t, err)

		observer.mu.Lock()
		assert.Equal(t, 0, observer.lastUser)
		assert.LessOrEqual(t, observer.maxUsers, 50)
		observer.mu.Unlock()
	}
}

func explodingRequest() error {
	panic("kaboom")
}

func TestRunPanicBecomesError(t *testing.T) {
	factory := &fakeFactory{build: func(uint64) *fakeRequester {
		return &fakeRequester{request: func(context.Context) error {
			return explodingRequest()
		}}
	}}
	b, err := NewBenchmark(factory, Options{Users: 1, Iterations: 1, Logger: discardLogger()})
	require.NoError(t, err)

	_, err = b.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "kaboom"))
	assert.Contains(t, err.Error(), "explodingRequest")
	assert.Contains(t, err.Error(), "(*Benchmark).runUser(")
	assert.Equal(t, int64(1), factory.requesters[0].teardowns.Load())
}

func TestRunDuration(t *testing.T) {
	factory := &fakeFactory{}
	b, err := NewBenchmark(factory, Options{
		Users:    2,
		Duration: 100 * time.Millisecond,
		Pacing:   Constant(5 * time.Millisecond),
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	start := time.Now()
	summary, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Greater(t, summary.SuccessTotal, uint64(0))
	for _, r := range factory.requesters {
		assert.Equal(t, int64(1), r.teardowns.Load())
	}
}

func TestRunCancelDoesNotRecordInterruptedRequest(t *testing.T) {
	started := make(chan struct{})
	factory := &fakeFactory{build: func(uint64) *fakeRequester {
		return &fakeRequester{request: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}}
	}}
	b, err := NewBenchmark(factory, Options{Users: 1, Logger: discardLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	summary, err := b.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), summary.SuccessTotal+summary.ErrorTotal)
}

func TestRunSpawnRate(t *testing.T) {
	factory := &fakeFactory{}
	b, err := NewBenchmark(factory, Options{
		Users:      3,
		SpawnRate:  20,
		Iterations: 1,
		Logger:     discardLogger(),
	})
	require.NoError(t, err)

	start := time.Now()
	summary, err := b.Run(context.Background())
	require.NoError(t, err)
	// The third user starts two spawn intervals after the first.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, uint64(3), summary.SuccessTotal)
}

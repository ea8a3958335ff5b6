package workload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bench "github.com/gatewaylab/gatewaybench"
)

type jobMetrics struct {
	mu       sync.Mutex
	requests int
	statuses []string
}

func (m *jobMetrics) ObserveRequest(string, string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
}

func (m *jobMetrics) ObserveUsers(int) {}

func (m *jobMetrics) ObserveJob(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

func newTestManager(t *testing.T, metrics Metrics) *Manager {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m, err := NewManager(Config{
		OutputDir:       t.TempDir(),
		Pacing:          bench.Constant(5 * time.Millisecond),
		RequestTimeout:  time.Second,
		HistoryInterval: 20 * time.Millisecond,
		Logger:          logrus.NewEntry(logger),
		Metrics:         metrics,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newTarget(t *testing.T) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func waitFinished(t *testing.T, m *Manager, id string) Job {
	var job Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Get(context.Background(), id)
		return err == nil && !job.Running()
	}, 10*time.Second, 10*time.Millisecond)
	return job
}

func TestManagerRunsJobAndWritesReports(t *testing.T) {
	ts := newTarget(t)
	metrics := &jobMetrics{}
	m := newTestManager(t, metrics)

	job, err := m.Start(context.Background(), Params{Host: ts.URL, Users: 2, SpawnRate: 100, RunTimeMinutes: 0.002})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, job.Status)
	assert.NotEmpty(t, job.ID)

	finished := waitFinished(t, m, job.ID)
	assert.Equal(t, StatusSucceeded, finished.Status)
	require.NotNil(t, finished.FinishedAt)
	require.NotNil(t, finished.Summary)
	assert.Greater(t, finished.Summary.Requests, uint64(0))
	assert.Equal(t, uint64(0), finished.Summary.Failures)
	assert.NotEmpty(t, finished.Log)

	for _, kind := range []string{ReportHTML, ReportStats, ReportStatsHistory, ReportFailures, ReportDistribution} {
		path, err := m.ReportPath(context.Background(), job.ID, kind)
		require.NoError(t, err, kind)
		_, err = os.Stat(path)
		require.NoError(t, err, kind)
	}
	_, err = m.ReportPath(context.Background(), job.ID, "pdf")
	assert.True(t, errors.Is(err, ErrUnknownReport))

	metrics.mu.Lock()
	assert.Equal(t, []string{"succeeded"}, metrics.statuses)
	assert.Greater(t, metrics.requests, 0)
	metrics.mu.Unlock()

	jobs, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}

func TestManagerSingleActiveJob(t *testing.T) {
	ts := newTarget(t)
	m := newTestManager(t, nil)

	first, err := m.Start(context.Background(), Params{Host: ts.URL, Users: 1, SpawnRate: 1, RunTimeMinutes: 10})
	require.NoError(t, err)

	_, err = m.Start(context.Background(), Params{Host: ts.URL, Users: 1, SpawnRate: 1, RunTimeMinutes: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	var running *AlreadyRunningError
	require.ErrorAs(t, err, &running)
	assert.Equal(t, first.ID, running.JobID)

	require.NoError(t, m.Cancel(context.Background(), first.ID))
	cancelled := waitFinished(t, m, first.ID)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	err = m.Cancel(context.Background(), first.ID)
	assert.True(t, errors.Is(err, ErrNotRunning))

	second, err := m.Start(context.Background(), Params{Host: ts.URL, Users: 1, SpawnRate: 1, RunTimeMinutes: 0.001})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, waitFinished(t, m, second.ID).Status)
}

func TestManagerUnknownJob(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(m.Cancel(context.Background(), "missing"), ErrNotFound))
	_, err = m.ReportPath(context.Background(), "missing", ReportHTML)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestManagerFailedJob(t *testing.T) {
	m := newTestManager(t, nil)
	m.cfg.NewFactory = func(string, time.Duration) bench.RequesterFactory {
		return failingSetupFactory{}
	}

	job, err := m.Start(context.Background(), Params{Host: "http://unused", Users: 1, SpawnRate: 1, RunTimeMinutes: 1})
	require.NoError(t, err)
	finished := waitFinished(t, m, job.ID)
	assert.Equal(t, StatusFailed, finished.Status)
	assert.Contains(t, finished.ErrorMessage, "connection refused")

	_, err = m.ReportPath(context.Background(), job.ID, ReportHTML)
	assert.True(t, errors.Is(err, ErrReportNotFound))
}

func TestManagerRequestFailuresFailJob(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)
	metrics := &jobMetrics{}
	m := newTestManager(t, metrics)

	job, err := m.Start(context.Background(), Params{Host: ts.URL, Users: 1, SpawnRate: 1, RunTimeMinutes: 0.001})
	require.NoError(t, err)
	finished := waitFinished(t, m, job.ID)
	assert.Equal(t, StatusFailed, finished.Status)
	require.NotNil(t, finished.Summary)
	assert.Greater(t, finished.Summary.Failures, uint64(0))
	assert.Contains(t, finished.ErrorMessage, "requests failed")

	_, err = m.ReportPath(context.Background(), job.ID, ReportFailures)
	assert.NoError(t, err)

	metrics.mu.Lock()
	assert.Equal(t, []string{"failed"}, metrics.statuses)
	metrics.mu.Unlock()
}

func TestManagerRejectsInvalidParams(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.Start(context.Background(), Params{Host: "", Users: 1, SpawnRate: 1, RunTimeMinutes: 1})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestManagerCloseCancelsActiveJob(t *testing.T) {
	ts := newTarget(t)
	m := newTestManager(t, nil)
	job, err := m.Start(context.Background(), Params{Host: ts.URL, Users: 1, SpawnRate: 1, RunTimeMinutes: 10})
	require.NoError(t, err)

	require.NoError(t, m.Close())
	stored, err := m.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)

	_, err = m.Start(context.Background(), Params{Host: ts.URL, Users: 1, SpawnRate: 1, RunTimeMinutes: 1})
	assert.True(t, errors.Is(err, ErrClosed))
}

type failingSetupFactory struct{}

func (failingSetupFactory) GetRequester(uint64) bench.Requester { return failingSetupRequester{} }

type failingSetupRequester struct{}

func (failingSetupRequester) Setup() error                  { return errors.New("connection refused") }
func (failingSetupRequester) Request(context.Context) error { return nil }
func (failingSetupRequester) Teardown() error               { return nil }

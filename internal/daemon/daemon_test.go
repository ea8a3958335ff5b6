package daemon

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewaylab/gatewaybench/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Endpoint:          "127.0.0.1:0",
		WorkloadOutputDir: t.TempDir(),
		WorkloadLogLines:  50,
		WaitMin:           100 * time.Millisecond,
		WaitMax:           300 * time.Millisecond,
		RequestTimeout:    time.Second,
		HistoryInterval:   time.Second,
	}
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestDaemonServesMetricsWithoutAdminEndpoint(t *testing.T) {
	d, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	defer d.Close()

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gatewaybench_build_info")
}

func TestDaemonAdminEndpointOwnsMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminEndpoint = "127.0.0.1:0"
	d, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer d.Close()

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDaemonWithSQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.SQLiteDBPath = filepath.Join(t.TempDir(), "jobs.sqlite")
	d, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, d.db)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/workload", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	require.NoError(t, d.Close())
}

func TestDaemonRejectsInvalidPacing(t *testing.T) {
	cfg := testConfig(t)
	cfg.WaitMin = time.Second
	_, err := New(cfg, testLogger())
	require.Error(t, err)
}

func TestDaemonServeStopsOnCancel(t *testing.T) {
	d, err := New(testConfig(t), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not return")
	}
}

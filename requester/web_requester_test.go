package requester

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bench "github.com/gatewaylab/gatewaybench"
)

type capturedRequest struct {
	method      string
	path        string
	contentType string
	body        string
}

type recordingServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, capturedRequest{
		method:      r.Method,
		path:        r.URL.Path,
		contentType: r.Header.Get("Content-Type"),
		body:        string(body),
	})
	status := s.status
	s.mu.Unlock()
	w.WriteHeader(status)
}

func (s *recordingServer) captured() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedRequest(nil), s.requests...)
}

func TestDefaultPayloadEncoding(t *testing.T) {
	assert.Equal(t, `{"value":123,"msg":"hello"}`, string(DefaultPayload.Encode()))
}

func TestProcessRequesterSendsPayload(t *testing.T) {
	srv := &recordingServer{status: http.StatusOK}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	r := NewProcessRequesterFactory(ts.URL + "/").GetRequester(0)
	require.NoError(t, r.Setup())
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Request(context.Background()))
	}
	require.NoError(t, r.Teardown())

	requests := srv.captured()
	require.Len(t, requests, 3)
	for _, req := range requests {
		assert.Equal(t, http.MethodPost, req.method)
		assert.Equal(t, "/process", req.path)
		assert.Equal(t, "application/json", req.contentType)
		assert.JSONEq(t, `{"value": 123, "msg": "hello"}`, req.body)
	}

	named, ok := r.(bench.Named)
	require.True(t, ok)
	assert.Equal(t, "POST", named.Method())
	assert.Equal(t, "/process", named.Name())
}

func TestProcessRequesterNon2xx(t *testing.T) {
	srv := &recordingServer{status: http.StatusServiceUnavailable}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	r := NewProcessRequesterFactory(ts.URL).GetRequester(0)
	err := r.Request(context.Background())
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, http.MethodPost, statusErr.Method)
}

func TestProcessRequesterConnectionError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	r := NewProcessRequesterFactory(url).GetRequester(0)
	require.Error(t, r.Request(context.Background()))
}

func TestWebRequesterDefaultsToGet(t *testing.T) {
	srv := &recordingServer{status: http.StatusNoContent}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	r := (&WebRequesterFactory{URL: ts.URL, Path: "/health"}).GetRequester(0)
	require.NoError(t, r.Request(context.Background()))
	requests := srv.captured()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodGet, requests[0].method)
	assert.Equal(t, "", requests[0].body)
}

func TestProcessBenchmarkEndToEnd(t *testing.T) {
	srv := &recordingServer{status: http.StatusOK}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	b, err := bench.NewBenchmark(NewProcessRequesterFactory(ts.URL), bench.Options{
		Users:      2,
		Iterations: 5,
		Pacing:     bench.Constant(time.Millisecond),
		Logger:     logrus.NewEntry(logger),
	})
	require.NoError(t, err)

	summary, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), summary.SuccessTotal)
	assert.Equal(t, uint64(0), summary.ErrorTotal)
	require.Len(t, summary.Entries, 1)
	assert.Equal(t, "POST", summary.Entries[0].Method)
	assert.Equal(t, "/process", summary.Entries[0].Name)

	requests := srv.captured()
	require.Len(t, requests, 10)
	for _, req := range requests {
		assert.Equal(t, `{"value":123,"msg":"hello"}`, req.body)
	}
}

func TestNOOPRequesterFactory(t *testing.T) {
	f := &NOOPRequesterFactory{}
	r := f.GetRequester(0)
	require.NoError(t, r.Setup())
	require.NoError(t, r.Request(context.Background()))
	require.NoError(t, r.Teardown())

	named, ok := r.(bench.Named)
	require.True(t, ok)
	assert.Equal(t, "NOOP", named.Method())
	assert.Equal(t, "noop", named.Name())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Request(ctx), context.Canceled)
}

package requester

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	bench "github.com/gatewaylab/gatewaybench"
)

// WebRequesterFactory implements RequesterFactory by creating a Requester
// which sends Method requests with Body to URL+Path.
type WebRequesterFactory struct {
	URL     string
	Method  string
	Path    string
	Body    []byte
	Header  http.Header
	Timeout time.Duration

	// Client overrides the HTTP client shared by all requesters.
	Client *http.Client
}

// NewProcessRequesterFactory returns a factory POSTing DefaultPayload as JSON
// to host's process endpoint.
func NewProcessRequesterFactory(host string) *WebRequesterFactory {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &WebRequesterFactory{
		URL:    host,
		Method: http.MethodPost,
		Path:   ProcessPath,
		Body:   DefaultPayload.Encode(),
		Header: header,
	}
}

// GetRequester returns a new Requester, called for each simulated user.
func (w *WebRequesterFactory) GetRequester(uint64) bench.Requester {
	method := w.Method
	if method == "" {
		method = http.MethodGet
	}
	client := w.Client
	if client == nil {
		timeout := w.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &webRequester{
		url:    strings.TrimSuffix(w.URL, "/") + w.Path,
		method: method,
		path:   w.Path,
		body:   w.Body,
		header: w.Header,
		client: client,
	}
}

// webRequester implements Requester by sending one HTTP request per
// invocation.
type webRequester struct {
	url    string
	method string
	path   string
	body   []byte
	header http.Header
	client *http.Client
}

// Setup prepares the Requester for benchmarking.
func (w *webRequester) Setup() error { return nil }

// Request performs a synchronous request to the system under test.
func (w *webRequester) Request(ctx context.Context) error {
	var body io.Reader
	if w.body != nil {
		body = bytes.NewReader(w.body)
	}
	req, err := http.NewRequestWithContext(ctx, w.method, w.url, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	for key, values := range w.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: w.method, URL: w.url, StatusCode: resp.StatusCode}
	}
	return nil
}

// Teardown is called upon benchmark completion.
func (w *webRequester) Teardown() error {
	w.client.CloseIdleConnections()
	return nil
}

// Method is the HTTP method statistics are grouped under.
func (w *webRequester) Method() string { return w.method }

// Name is the request path statistics are grouped under.
func (w *webRequester) Name() string {
	if w.path == "" {
		return "/"
	}
	return w.path
}

package requester

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	bench "github.com/gatewaylab/gatewaybench"
)

// NATSRequesterFactory implements RequesterFactory by creating a Requester
// which sends the JSON payload as a NATS request and waits for the reply.
type NATSRequesterFactory struct {
	URL     string
	Subject string
	Payload ProcessPayload
	Timeout time.Duration
}

// GetRequester returns a new Requester, called for each simulated user.
func (n *NATSRequesterFactory) GetRequester(uint64) bench.Requester {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &natsRequester{
		url:     n.URL,
		subject: n.Subject,
		msg:     n.Payload.Encode(),
		timeout: timeout,
	}
}

// natsRequester implements Requester by sending a request to a NATS subject
// and waiting to receive the reply.
type natsRequester struct {
	url     string
	subject string
	msg     []byte
	timeout time.Duration
	conn    *nats.Conn
}

// Setup prepares the Requester for benchmarking.
func (n *natsRequester) Setup() error {
	return connect("nats "+n.url, func() error {
		conn, err := nats.Connect(n.url)
		if err != nil {
			return err
		}
		n.conn = conn
		return nil
	})
}

// Request performs a synchronous request to the system under test.
func (n *natsRequester) Request(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	_, err := n.conn.RequestWithContext(ctx, n.subject, n.msg)
	return err
}

// Teardown is called upon benchmark completion.
func (n *natsRequester) Teardown() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
	n.conn = nil
	return nil
}

// Method is the operation statistics are grouped under.
func (n *natsRequester) Method() string { return "REQUEST" }

// Name is the subject statistics are grouped under.
func (n *natsRequester) Name() string { return n.subject }

package requester

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bench "github.com/gatewaylab/gatewaybench"
)

func TestConnectRetries(t *testing.T) {
	attempts := 0
	err := connect("flaky", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestConnectGivesUp(t *testing.T) {
	attempts := 0
	err := connect("down", func() error {
		attempts++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to down")
	assert.Equal(t, defaultSetupRetries+1, attempts)
}

func TestQueueRequestersAreNamed(t *testing.T) {
	redisFactory := &RedisRequesterFactory{Addr: "localhost:6379", Key: "gateway:process", Payload: DefaultPayload}
	named, ok := redisFactory.GetRequester(0).(bench.Named)
	require.True(t, ok)
	assert.Equal(t, "LPUSH", named.Method())
	assert.Equal(t, "gateway:process", named.Name())

	natsFactory := &NATSRequesterFactory{URL: "nats://localhost:4222", Subject: "gateway.process", Payload: DefaultPayload}
	r := natsFactory.GetRequester(0)
	named, ok = r.(bench.Named)
	require.True(t, ok)
	assert.Equal(t, "REQUEST", named.Method())
	assert.Equal(t, "gateway.process", named.Name())
	assert.Equal(t, defaultTimeout, r.(*natsRequester).timeout)
	assert.Equal(t, DefaultPayload.Encode(), r.(*natsRequester).msg)
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Method: "POST", URL: "http://gateway/process", StatusCode: 503}
	assert.Equal(t, "POST http://gateway/process: unexpected status 503", err.Error())
}

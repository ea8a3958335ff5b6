package requester

import (
	"context"

	"github.com/redis/go-redis/v9"

	bench "github.com/gatewaylab/gatewaybench"
)

// RedisRequesterFactory implements RequesterFactory by creating a Requester
// which pushes the JSON payload onto a Redis list, for gateways consuming
// work from a Redis queue.
type RedisRequesterFactory struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Payload  ProcessPayload
}

// GetRequester returns a new Requester, called for each simulated user.
func (r *RedisRequesterFactory) GetRequester(uint64) bench.Requester {
	return &redisRequester{
		opts: &redis.Options{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
		},
		key: r.Key,
		msg: r.Payload.Encode(),
	}
}

// redisRequester implements Requester by LPUSHing the payload onto the list.
// A request completes once Redis acknowledges the push.
type redisRequester struct {
	opts   *redis.Options
	key    string
	msg    []byte
	client *redis.Client
}

// Setup prepares the Requester for benchmarking.
func (r *redisRequester) Setup() error {
	client := redis.NewClient(r.opts)
	err := connect("redis "+r.opts.Addr, func() error {
		return client.Ping(context.Background()).Err()
	})
	if err != nil {
		client.Close()
		return err
	}
	r.client = client
	return nil
}

// Request performs a synchronous request to the system under test.
func (r *redisRequester) Request(ctx context.Context) error {
	return r.client.LPush(ctx, r.key, r.msg).Err()
}

// Teardown is called upon benchmark completion.
func (r *redisRequester) Teardown() error {
	if err := r.client.Close(); err != nil {
		return err
	}
	r.client = nil
	return nil
}

// Method is the command statistics are grouped under.
func (r *redisRequester) Method() string { return "LPUSH" }

// Name is the list key statistics are grouped under.
func (r *redisRequester) Name() string { return r.key }

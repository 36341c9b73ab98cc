// Package redisbus publishes process-completion events to a redis Pub/Sub
// channel, for callers that want fan-out notification beyond the
// in-process callback the engine already offers. It's strictly opt-in and
// additive: nothing in goproc or registry depends on it.
package redisbus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/runprocx/goproc"
)

// Bus publishes completion events for named processes. A nil *redis.Client
// makes every method a no-op, so callers can wire a Bus unconditionally
// and only pay for redis when GOPROC_REDIS_ADDR (see internal/config) is
// actually set.
type Bus struct {
	client  *redis.Client
	channel string
}

// New constructs a Bus. client may be nil.
func New(client *redis.Client, channel string) *Bus {
	if channel == "" {
		channel = "goproc:completions"
	}
	return &Bus{client: client, channel: channel}
}

// CompletionEvent is the payload published when a tracked process
// terminates.
type CompletionEvent struct {
	Name     string `json:"name"`
	PID      int    `json:"pid"`
	ExitCode int    `json:"exit_code"`
}

// PublishCompletion serializes and publishes a CompletionEvent for p under
// name. It is a no-op (returning nil) when the Bus has no client.
func (b *Bus) PublishCompletion(ctx context.Context, name string, p *goproc.Process) error {
	if b.client == nil {
		return nil
	}
	code := -1
	if ec := p.GetExitCode(); ec != nil {
		code = *ec
	}
	payload, err := json.Marshal(CompletionEvent{Name: name, PID: p.Pid(), ExitCode: code})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe returns a redis.PubSub for the completion channel, or nil if
// the Bus has no client. Callers drain it with Subscribe(...).Channel().
func (b *Bus) Subscribe(ctx context.Context) *redis.PubSub {
	if b.client == nil {
		return nil
	}
	return b.client.Subscribe(ctx, b.channel)
}

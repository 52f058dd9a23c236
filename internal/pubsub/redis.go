// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// redisChannelSize buffers messages between the Redis connection and the
// subscriber.
const redisChannelSize = 1000

// Redis is a Broker backed by Redis PUBLISH and SUBSCRIBE. Payloads are
// published on the primary and subscriptions are opened on the reader.
type Redis struct {
	primary redis.UniversalClient
	reader  redis.UniversalClient
}

// NewRedis creates a Redis broker. A nil reader subscribes on primary.
func NewRedis(primary, reader redis.UniversalClient) *Redis {
	if reader == nil {
		reader = primary
	}
	return &Redis{primary: primary, reader: reader}
}

// Publish sends payload to every subscriber of channel.
func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.primary.Publish(ctx, channel, payload).Err(); err != nil {
		return oops.Code("PUBSUB_PUBLISH_FAILED").
			With("channel", channel).
			Wrap(err)
	}
	return nil
}

// Subscribe opens a subscription to channel.
func (r *Redis) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	ps := r.reader.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, oops.Code("PUBSUB_SUBSCRIBE_FAILED").
			With("channel", channel).
			Wrap(err)
	}

	in := ps.Channel(redis.WithChannelSize(redisChannelSize))
	out := make(chan []byte)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-done:
					return
				}
			}
		}
	}()

	return newSubscription(out, func() error {
		close(done)
		if err := ps.Close(); err != nil {
			return oops.Code("PUBSUB_CLOSE_FAILED").
				With("channel", channel).
				Wrap(err)
		}
		return nil
	}), nil
}

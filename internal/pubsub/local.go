// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package pubsub

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// localBuffer is the per-subscriber queue depth of a Local broker.
const localBuffer = 100

// Local is an in-process Broker. Delivery is best effort: a subscriber
// whose buffer is full misses the payload.
type Local struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewLocal creates a Local broker.
func NewLocal() *Local {
	return &Local{
		subs: make(map[string][]chan []byte),
	}
}

// Subscribe creates a subscription to channel.
func (l *Local) Subscribe(_ context.Context, channel string) (*Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan []byte, localBuffer)
	l.subs[channel] = append(l.subs[channel], ch)
	return newSubscription(ch, func() error {
		l.unsubscribe(channel, ch)
		return nil
	}), nil
}

func (l *Local) unsubscribe(channel string, ch chan []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	subs := l.subs[channel]
	for i, sub := range subs {
		if sub == ch {
			l.subs[channel] = slices.Delete(subs, i, i+1)
			if len(l.subs[channel]) == 0 {
				delete(l.subs, channel)
			}
			close(ch)
			return
		}
	}
}

// Publish delivers a copy of payload to each subscriber of channel.
func (l *Local) Publish(ctx context.Context, channel string, payload []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, ch := range l.subs[channel] {
		select {
		case ch <- slices.Clone(payload):
		default:
			slog.WarnContext(ctx, "payload dropped: subscriber buffer full",
				"channel", channel,
				"size", len(payload),
			)
		}
	}
	return nil
}

// Subscribers returns the number of active subscriptions to channel.
func (l *Local) Subscribers(channel string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[channel])
}

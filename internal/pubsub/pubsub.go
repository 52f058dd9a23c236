// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package pubsub relays opaque payloads between processes over named
// channels.
package pubsub

import (
	"context"
	"sync"
)

// Broker publishes payloads and opens subscriptions.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns once the subscription is active, so payloads
	// published after it returns are delivered.
	Subscribe(ctx context.Context, channel string) (*Subscription, error)
}

// Subscription is a live subscription to one channel.
type Subscription struct {
	messages <-chan []byte
	closeFn  func() error
	once     sync.Once
	err      error
}

func newSubscription(messages <-chan []byte, closeFn func() error) *Subscription {
	return &Subscription{messages: messages, closeFn: closeFn}
}

// Messages yields payloads until the subscription is closed.
func (s *Subscription) Messages() <-chan []byte {
	return s.messages
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.err = s.closeFn()
	})
	return s.err
}

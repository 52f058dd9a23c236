// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package channel bridges client connections to pub/sub channels. A bridge
// forwards client frames to the channel and channel payloads to the client.
package channel

import (
	"context"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tollgate/tollgate/internal/id"
	"github.com/tollgate/tollgate/internal/logging"
	"github.com/tollgate/tollgate/internal/pubsub"
)

// Defaults.
const (
	DefaultHeartbeat    = 10 * time.Second
	DefaultKeepAlive    = time.Second
	DefaultBuffer       = 1000
	DefaultWriteTimeout = 10 * time.Second
	// KeepAliveText is the SSE comment sent while a stream is idle.
	KeepAliveText = "keep-alive-text"
)

// Metric labels.
const (
	TransportWebSocket = "websocket"
	TransportSSE       = "sse"
	DirectionInbound   = "inbound"
	DirectionOutbound  = "outbound"
)

var defaultTracer = otel.Tracer("tollgate/channel")

// Name returns the pub/sub channel name for a channel id.
func Name(channelID string) string {
	return "channel:" + channelID
}

// Metrics observes bridge activity.
type Metrics interface {
	BridgeOpened(transport string)
	BridgeClosed(transport string)
	FrameRelayed(direction string)
}

type noopMetrics struct{}

func (noopMetrics) BridgeOpened(string) {}
func (noopMetrics) BridgeClosed(string) {}
func (noopMetrics) FrameRelayed(string) {}

// Bridge connects clients to channels through a pubsub.Broker.
type Bridge struct {
	broker       pubsub.Broker
	ids          id.Source
	metrics      Metrics
	tracer       trace.Tracer
	heartbeat    time.Duration
	keepAlive    time.Duration
	buffer       int
	writeTimeout time.Duration
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithHeartbeat sets the WebSocket ping interval.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Bridge) { b.heartbeat = d }
}

// WithKeepAlive sets the SSE keep-alive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Bridge) { b.keepAlive = d }
}

// WithBuffer sets the capacity of the inbound and outbound queues.
func WithBuffer(n int) Option {
	return func(b *Bridge) { b.buffer = n }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithTracer sets the tracer for bridge lifetime spans.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bridge) { b.tracer = t }
}

// WithIDs sets the source of heartbeat nonces.
func WithIDs(ids id.Source) Option {
	return func(b *Bridge) { b.ids = ids }
}

// New creates a Bridge.
func New(broker pubsub.Broker, opts ...Option) *Bridge {
	b := &Bridge{
		broker:       broker,
		ids:          id.Random{},
		metrics:      noopMetrics{},
		tracer:       defaultTracer,
		heartbeat:    DefaultHeartbeat,
		keepAlive:    DefaultKeepAlive,
		buffer:       DefaultBuffer,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish sends one payload to the channel.
func (b *Bridge) Publish(ctx context.Context, channelID string, payload []byte) error {
	if err := b.broker.Publish(ctx, Name(channelID), payload); err != nil {
		return oops.Code("CHANNEL_PUBLISH_FAILED").
			With("channel_id", channelID).
			Wrap(err)
	}
	return nil
}

// Listen calls fn with every payload published to the channel until ctx
// ends or the subscription closes.
func (b *Bridge) Listen(ctx context.Context, channelID string, fn func(payload []byte)) error {
	sub, err := b.subscribe(ctx, channelID)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Close(); err != nil {
			logging.FromContext(ctx).DebugContext(ctx, "close subscription failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			fn(payload)
		}
	}
}

func (b *Bridge) subscribe(ctx context.Context, channelID string) (*pubsub.Subscription, error) {
	sub, err := b.broker.Subscribe(ctx, Name(channelID))
	if err != nil {
		return nil, oops.Code("CHANNEL_SUBSCRIBE_FAILED").
			With("channel_id", channelID).
			Wrap(err)
	}
	return sub, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tollgate/tollgate/internal/logging"
	"github.com/tollgate/tollgate/internal/pubsub"
)

// Subprotocol is the WebSocket subprotocol clients negotiate.
const Subprotocol = "x-protocol"

var (
	errPongMismatch     = errors.New("pong payload does not match heartbeat nonce")
	errOutboundFull     = errors.New("outbound buffer full")
	errSubscriptionGone = errors.New("subscription closed")
)

// closeGrace bounds how long teardown waits to send a close frame.
const closeGrace = time.Second

// socket wraps a connection for the bridge tasks. Data frames are written
// only by the outbound task. Control frames go through WriteControl, which
// gorilla allows concurrently with the data writer.
type socket struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (s *socket) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *socket) control(messageType int, data []byte) error {
	return s.conn.WriteControl(messageType, data, time.Now().Add(s.timeout))
}

// shutdown sends a close frame and closes the connection. A stalled peer
// has the data writer blocked on the connection; it is closed without a
// close frame.
func (s *socket) shutdown(stalled bool) {
	if !stalled {
		grace := min(closeGrace, s.timeout)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(grace))
	}
	_ = s.conn.Close()
}

// ServeSocket bridges an upgraded WebSocket connection to a channel until
// either side goes away. Text and binary frames are published to the
// channel; channel payloads are sent as binary frames. The server pings
// with a per-bridge nonce and a pong carrying anything else ends the
// bridge. ServeSocket owns conn and closes it before returning.
func (b *Bridge) ServeSocket(ctx context.Context, conn *websocket.Conn, channelID string) (err error) {
	defer conn.Close()

	ctx, span := b.tracer.Start(ctx, "channel.socket",
		trace.WithAttributes(
			attribute.String("channel.id", channelID),
			attribute.String("channel.transport", TransportWebSocket),
		),
	)
	defer func() { endSpan(span, err) }()

	logger := logging.FromContext(ctx).With("channel_id", channelID, "transport", TransportWebSocket)
	ctx = logging.WithLogger(ctx, logger)

	sub, err := b.subscribe(ctx, channelID)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Close(); err != nil {
			logger.DebugContext(ctx, "close subscription failed", "error", err)
		}
	}()

	b.metrics.BridgeOpened(TransportWebSocket)
	defer b.metrics.BridgeClosed(TransportWebSocket)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sock := &socket{conn: conn, timeout: b.writeTimeout}
	nonce := b.ids.New()
	inbound := make(chan []byte, b.buffer)
	outbound := make(chan []byte, b.buffer)

	conn.SetPingHandler(func(data string) error {
		if err := sock.control(websocket.PongMessage, []byte(data)); err != nil {
			logger.DebugContext(ctx, "send pong failed", "error", err)
		}
		return nil
	})
	conn.SetPongHandler(func(data string) error {
		if data != nonce {
			logger.ErrorContext(ctx, "invalid pong payload", "sent", nonce, "received", data)
			return errPongMismatch
		}
		return nil
	})

	tasks := []struct {
		name string
		run  func(context.Context) error
	}{
		{"inbound", func(ctx context.Context) error { return b.readFrames(ctx, conn, inbound) }},
		{"publish", func(ctx context.Context) error { return b.publishFrames(ctx, channelID, inbound) }},
		{"subscribe", func(ctx context.Context) error { return b.queuePayloads(ctx, sub, outbound) }},
		{"outbound", func(ctx context.Context) error { return b.writeFrames(ctx, sock, outbound) }},
		{"heartbeat", func(ctx context.Context) error { return b.sendHeartbeats(ctx, sock, nonce) }},
	}

	// Results arrive in the order the tasks end.
	results := make(chan error, len(tasks))
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			err := task.run(ctx)
			if err != nil {
				logger.DebugContext(ctx, "bridge task ended", "task", task.name, "error", err)
			}
			results <- err
		}()
	}

	<-ctx.Done()
	var cause error
	first := false
	select {
	case cause = <-results:
		first = true
	default:
	}
	if errors.Is(cause, errOutboundFull) {
		logger.WarnContext(ctx, "client is not reading, closing bridge")
	}
	sock.shutdown(errors.Is(cause, errOutboundFull))
	wg.Wait()
	if !first {
		cause = <-results
	}

	if errors.Is(cause, errPongMismatch) {
		return oops.Code("CHANNEL_PONG_MISMATCH").
			With("channel_id", channelID).
			Wrap(cause)
	}
	return nil
}

func (b *Bridge) readFrames(ctx context.Context, conn *websocket.Conn, inbound chan<- []byte) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, errPongMismatch) {
				return errPongMismatch
			}
			if ctx.Err() != nil || websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		b.metrics.FrameRelayed(DirectionInbound)
		select {
		case inbound <- data:
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *Bridge) publishFrames(ctx context.Context, channelID string, inbound <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-inbound:
			if len(data) == 0 {
				continue
			}
			if err := b.Publish(ctx, channelID, data); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) queuePayloads(ctx context.Context, sub *pubsub.Subscription, outbound chan<- []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.Messages():
			if !ok {
				return errSubscriptionGone
			}
			select {
			case outbound <- payload:
			default:
				return errOutboundFull
			}
		}
	}
}

func (b *Bridge) writeFrames(ctx context.Context, sock *socket, outbound <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-outbound:
			if err := sock.write(websocket.BinaryMessage, payload); err != nil {
				return err
			}
			b.metrics.FrameRelayed(DirectionOutbound)
		}
	}
}

func (b *Bridge) sendHeartbeats(ctx context.Context, sock *socket, nonce string) error {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sock.control(websocket.PingMessage, []byte(nonce)); err != nil {
				return err
			}
		}
	}
}

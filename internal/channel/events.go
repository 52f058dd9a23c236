// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tollgate/tollgate/internal/logging"
)

// ErrStreamStarted marks ServeEvents failures that happen after the
// response header was sent. The response can no longer carry an error.
var ErrStreamStarted = errors.New("event stream already started")

// ServeEvents streams channel payloads to w as server-sent events until
// ctx ends. Idle streams receive a keep-alive comment.
func (b *Bridge) ServeEvents(ctx context.Context, w http.ResponseWriter, channelID string) (err error) {
	ctx, span := b.tracer.Start(ctx, "channel.events",
		trace.WithAttributes(
			attribute.String("channel.id", channelID),
			attribute.String("channel.transport", TransportSSE),
		),
	)
	defer func() { endSpan(span, err) }()

	logger := logging.FromContext(ctx).With("channel_id", channelID, "transport", TransportSSE)

	sub, err := b.subscribe(ctx, channelID)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Close(); err != nil {
			logger.DebugContext(ctx, "close subscription failed", "error", err)
		}
	}()

	b.metrics.BridgeOpened(TransportSSE)
	defer b.metrics.BridgeClosed(TransportSSE)

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return oops.Code("CHANNEL_STREAM_FAILED").
			With("channel_id", channelID).
			Wrap(fmt.Errorf("%w: %w", ErrStreamStarted, err))
	}

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	for {
		var frame []byte
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			frame = eventFrame(payload)
		case <-ticker.C:
			frame = []byte(": " + KeepAliveText + "\n\n")
		}

		if _, err := w.Write(frame); err != nil {
			logger.DebugContext(ctx, "send event failed", "error", err)
			return nil
		}
		if err := rc.Flush(); err != nil {
			logger.DebugContext(ctx, "flush event failed", "error", err)
			return nil
		}
		if frame[0] != ':' {
			b.metrics.FrameRelayed(DirectionOutbound)
		}
	}
}

// eventFrame renders payload as one SSE event, one data field per line.
func eventFrame(payload []byte) []byte {
	text := strings.ToValidUTF8(string(payload), "\uFFFD")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var buf bytes.Buffer
	for _, line := range strings.Split(text, "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

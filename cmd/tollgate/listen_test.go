// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/channel"
	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/pubsub"
)

// syncBuffer is a bytes.Buffer safe for a concurrent writer and reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestListen_LogsMessages(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	local := pubsub.NewLocal()
	closed := false
	deps := &ListenDeps{
		SSMEnvLoader: noSSM,
		BrokerFactory: func(context.Context, *config.Config) (pubsub.Broker, func() error, error) {
			return local, func() error { closed = true; return nil }, nil
		},
	}

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runListenWithDeps(ctx, NewListenCmd(), &listenConfig{channel: "room"}, deps, out)
	}()

	require.Eventually(t, func() bool {
		return local.Subscribers(channel.Name("room")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, local.Publish(context.Background(), channel.Name("room"), []byte("hello")))
	require.NoError(t, local.Publish(context.Background(), channel.Name("room"), []byte{0xFF}))

	require.Eventually(t, func() bool {
		return bytes.Count([]byte(out.String()), []byte("receive message")) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.True(t, closed)
	assert.Contains(t, out.String(), `"message":"hello"`)
	assert.Contains(t, out.String(), `"channel_id":"room"`)
	assert.Contains(t, out.String(), "\"message\":\"\uFFFD\"")
}

func TestListen_RequiresChannel(t *testing.T) {
	err := runListenWithDeps(context.Background(), NewListenCmd(), &listenConfig{}, &ListenDeps{SSMEnvLoader: noSSM}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel is required")
}

func TestListen_BrokerFailure(t *testing.T) {
	err := runListenWithDeps(context.Background(), NewListenCmd(), &listenConfig{channel: "room"}, &ListenDeps{
		SSMEnvLoader: noSSM,
		BrokerFactory: func(context.Context, *config.Config) (pubsub.Broker, func() error, error) {
			return nil, nil, errors.New("dial refused")
		},
	}, &syncBuffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to broker")
}

func TestNewRedisBroker_RequiresURL(t *testing.T) {
	_, _, err := newRedisBroker(context.Background(), config.Default())
	require.Error(t, err)
}

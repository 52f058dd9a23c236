// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/mail"
	"github.com/tollgate/tollgate/internal/store"
	"github.com/tollgate/tollgate/pkg/errutil"
)

func setServeEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/tollgate")
	t.Setenv("REDIS_PRIMARY_URL", "redis://localhost:6379/0")
	t.Setenv("AUTH_PEPPER", "pepper")
	t.Setenv("AUTH_STRETCH_COUNT", "2")
	t.Setenv("MAIL_DOMAIN", "example.com")
	t.Setenv("MAIL_TRANSPORT", "log")
	t.Setenv("METRICS_ADDR", "")
	t.Setenv("CSRF_ALLOW_SITE_HOSTS", "site.test")
	t.Setenv("CSRF_ALLOW_X_FROM", "https://site.test")
}

func noSSM(context.Context) error { return nil }

type fakeHTTPServer struct {
	errCh   chan error
	stopped atomic.Bool
}

func (s *fakeHTTPServer) Start() (<-chan error, error) { return s.errCh, nil }

func (s *fakeHTTPServer) Stop(context.Context) error {
	s.stopped.Store(true)
	return nil
}

func (s *fakeHTTPServer) Addr() string { return "fake:0" }

func TestServeCmd_Flags(t *testing.T) {
	cmd := NewServeCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())

	for _, flag := range []string{"--listen-port", "--metrics-addr", "--mail-transport", "--log-format", "--log-level", "--log-color"} {
		assert.Contains(t, buf.String(), flag)
	}
}

func TestServe_SSMFailure(t *testing.T) {
	err := runServeWithDeps(context.Background(), NewServeCmd(), &ServeDeps{
		SSMEnvLoader: func(context.Context) error { return errors.New("no credentials") },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSM")
}

func TestServe_InvalidConfig(t *testing.T) {
	setServeEnv(t)
	t.Setenv("AUTH_PEPPER", "")

	opened := false
	err := runServeWithDeps(context.Background(), NewServeCmd(), &ServeDeps{
		SSMEnvLoader: noSSM,
		StoreOpener: func(context.Context, store.Options) (*store.Handle, error) {
			opened = true
			return nil, errors.New("unreachable")
		},
	})
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "key", "auth_pepper")
	assert.False(t, opened)
}

func TestServe_StoreFailure(t *testing.T) {
	setServeEnv(t)

	var got store.Options
	err := runServeWithDeps(context.Background(), NewServeCmd(), &ServeDeps{
		SSMEnvLoader: noSSM,
		StoreOpener: func(_ context.Context, opts store.Options) (*store.Handle, error) {
			got = opts
			return nil, errors.New("connection refused")
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to stores")
	assert.Equal(t, "postgres://localhost/tollgate", got.Database.URL)
	assert.Equal(t, "redis://localhost:6379/0", got.Reader.URL)
}

func TestServe_Lifecycle(t *testing.T) {
	setServeEnv(t)

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	handle := store.NewHandle(pool, redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)

	srv := &fakeHTTPServer{errCh: make(chan error)}
	started := make(chan http.Handler, 1)
	var listenAddr string
	var transport string

	deps := &ServeDeps{
		SSMEnvLoader: noSSM,
		StoreOpener: func(context.Context, store.Options) (*store.Handle, error) {
			return handle, nil
		},
		SenderFactory: func(ctx context.Context, cfg *config.Config) (mail.Sender, error) {
			transport = cfg.MailTransport
			return newSender(ctx, cfg)
		},
		HTTPServerFactory: func(addr string, handler http.Handler) HTTPServer {
			listenAddr = addr
			started <- handler
			return srv
		},
	}

	cmd := NewServeCmd()
	cmd.SetOut(io.Discard)
	require.NoError(t, cmd.Flags().Set("listen-port", "9090"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServeWithDeps(ctx, cmd, deps) }()

	var handler http.Handler
	select {
	case handler = <-started:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server was not started")
	}
	assert.Equal(t, "0.0.0.0:9090", listenAddr)
	assert.Equal(t, config.MailTransportLog, transport)

	req := httptest.NewRequest(http.MethodGet, "http://site.test/api/v1/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var status GatewayStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, GatewayStatus{Status: "OK", Version: version, BuildTimestamp: date}, status)

	req = httptest.NewRequest(http.MethodPost, "http://site.test/api/v1/channel/room", strings.NewReader("hi"))
	req.Header.Set("X-From", "web")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "channel routes require a session")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
	assert.True(t, srv.stopped.Load())
}

func TestServe_HTTPServerErrorShutsDown(t *testing.T) {
	setServeEnv(t)

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	mr := miniredis.RunT(t)

	srv := &fakeHTTPServer{errCh: make(chan error, 1)}
	srv.errCh <- errors.New("accept failed")

	cmd := NewServeCmd()
	cmd.SetOut(io.Discard)
	err = runServeWithDeps(context.Background(), cmd, &ServeDeps{
		SSMEnvLoader: noSSM,
		StoreOpener: func(context.Context, store.Options) (*store.Handle, error) {
			return store.NewHandle(pool, redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil), nil
		},
		HTTPServerFactory: func(string, http.Handler) HTTPServer { return srv },
	})
	require.NoError(t, err)
	assert.True(t, srv.stopped.Load())
}

func TestMonitorServerErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	errCh <- errors.New("boom")
	monitorServerErrors(ctx, cancel, errCh, "test")

	select {
	case <-ctx.Done():
	default:
		t.Fatal("context should be cancelled after a server error")
	}
}

func TestMonitorServerErrors_ClosedChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error)
	close(errCh)
	monitorServerErrors(ctx, cancel, errCh, "test")

	assert.NoError(t, ctx.Err())
}

func TestLoadSSMEnvs_Unset(t *testing.T) {
	t.Setenv(config.SSMEnvsPathVar, "")
	assert.NoError(t, loadSSMEnvs(context.Background()))
}

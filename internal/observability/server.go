// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package observability serves Prometheus metrics and health checks on a
// listener separate from the API.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports whether the backing stores are reachable.
type ReadinessChecker func() bool

// Metrics holds the gateway's Prometheus collectors. It satisfies the
// recorder interfaces of the auth, mail, channel, and web packages.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	AuthEventsTotal *prometheus.CounterVec
	BridgesActive   *prometheus.GaugeVec
	FramesTotal     *prometheus.CounterVec
	MailSentTotal   *prometheus.CounterVec
}

// NewMetrics creates the gateway metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_http_requests_total",
				Help: "Total number of API requests by route pattern and status",
			},
			[]string{"route", "status"},
		),
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_auth_events_total",
				Help: "Total number of authentication operations by event and result code",
			},
			[]string{"event", "result"},
		),
		BridgesActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tollgate_channel_bridges_active",
				Help: "Number of open channel bridges by transport",
			},
			[]string{"transport"},
		),
		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_channel_frames_total",
				Help: "Total number of channel frames relayed by direction",
			},
			[]string{"direction"},
		),
		MailSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_mail_sent_total",
				Help: "Total number of outgoing mails by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.AuthEventsTotal,
		m.BridgesActive,
		m.FramesTotal,
		m.MailSentTotal,
	)
	return m
}

// RecordRequest counts one API response.
func (m *Metrics) RecordRequest(route string, status int) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordAuthEvent counts one authentication operation.
func (m *Metrics) RecordAuthEvent(event, result string) {
	m.AuthEventsTotal.WithLabelValues(event, result).Inc()
}

// RecordMailSent counts one delivery attempt.
func (m *Metrics) RecordMailSent(result string) {
	m.MailSentTotal.WithLabelValues(result).Inc()
}

// BridgeOpened tracks a new channel bridge.
func (m *Metrics) BridgeOpened(transport string) {
	m.BridgesActive.WithLabelValues(transport).Inc()
}

// BridgeClosed tracks a finished channel bridge.
func (m *Metrics) BridgeClosed(transport string) {
	m.BridgesActive.WithLabelValues(transport).Dec()
}

// FrameRelayed counts one relayed frame.
func (m *Metrics) FrameRelayed(direction string) {
	m.FramesTotal.WithLabelValues(direction).Inc()
}

// Server provides HTTP endpoints for observability (metrics and health checks).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates an observability server listening on addr
// ("host:port"). A nil readiness checker always reports ready.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the collectors served by s.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// SetReadinessChecker replaces the readiness checker. It must be called
// before Start.
func (s *Server) SetReadinessChecker(checker ReadinessChecker) {
	s.isReady = checker
}

// Start begins serving. The returned channel receives a serve failure and
// is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_ALREADY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server. Stopping a server that is not
// running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.Code("OBSERVABILITY_SHUTDOWN_FAILED").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may have gone away
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // client may have gone away
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // client may have gone away
	w.Write([]byte("not ready\n"))
}

// PingReadiness adapts a context-aware ping into a ReadinessChecker that
// gives each check at most timeout.
func PingReadiness(ping func(ctx context.Context) error, timeout time.Duration) ReadinessChecker {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := ping(ctx); err != nil {
			slog.Warn("readiness check failed", "error", err)
			return false
		}
		return true
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package spantest records spans started through a trace.Tracer so tests can
// assert on names, attributes, and recorded errors.
package spantest

import (
	"context"
	"encoding/binary"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
)

// Data is a snapshot of one recorded span.
type Data struct {
	Name        string
	Attributes  map[attribute.Key]attribute.Value
	Errors      []error
	Status      codes.Code
	Ended       bool
	SpanContext trace.SpanContext
	Parent      trace.SpanContext
}

// Tracer is a trace.Tracer that records every span it starts. Span contexts
// are valid and sampled, with ids derived from a counter; child spans keep
// their parent's trace id.
type Tracer struct {
	embedded.Tracer

	mu    sync.Mutex
	spans []*span
}

// NewTracer creates an empty Tracer.
func NewTracer() *Tracer {
	return &Tracer{}
}

// Start implements trace.Tracer.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	parent := trace.SpanContextFromContext(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	n := uint64(len(t.spans) + 1)
	traceID := parent.TraceID()
	if !traceID.IsValid() {
		binary.BigEndian.PutUint64(traceID[8:], n)
	}
	var spanID trace.SpanID
	binary.BigEndian.PutUint64(spanID[:], n)

	s := &span{
		tracer: t,
		data: Data{
			Name:       name,
			Attributes: make(map[attribute.Key]attribute.Value),
			Parent:     parent,
			SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
				TraceID:    traceID,
				SpanID:     spanID,
				TraceFlags: trace.FlagsSampled,
			}),
		},
	}
	for _, kv := range cfg.Attributes() {
		s.data.Attributes[kv.Key] = kv.Value
	}
	t.spans = append(t.spans, s)
	return trace.ContextWithSpan(ctx, s), s
}

// Spans returns snapshots of the recorded spans in start order.
func (t *Tracer) Spans() []Data {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Data, 0, len(t.spans))
	for _, s := range t.spans {
		d := s.data
		d.Attributes = make(map[attribute.Key]attribute.Value, len(s.data.Attributes))
		for k, v := range s.data.Attributes {
			d.Attributes[k] = v
		}
		d.Errors = append([]error(nil), s.data.Errors...)
		out = append(out, d)
	}
	return out
}

// Named returns the snapshots of spans called name.
func (t *Tracer) Named(name string) []Data {
	var out []Data
	for _, d := range t.Spans() {
		if d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

// span overrides the recording methods of a no-op span.
type span struct {
	noop.Span

	tracer *Tracer
	data   Data
}

func (s *span) SpanContext() trace.SpanContext {
	return s.data.SpanContext
}

func (s *span) IsRecording() bool {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	return !s.data.Ended
}

func (s *span) SetAttributes(kv ...attribute.KeyValue) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	for _, a := range kv {
		s.data.Attributes[a.Key] = a.Value
	}
}

func (s *span) RecordError(err error, _ ...trace.EventOption) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.data.Errors = append(s.data.Errors, err)
}

func (s *span) SetStatus(code codes.Code, _ string) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.data.Status = code
}

func (s *span) End(...trace.SpanEndOption) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.data.Ended = true
}

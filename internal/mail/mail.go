// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package mail sends plain-text messages to a single recipient.
package mail

import (
	"context"
	"log/slog"
)

// Message is a plain-text mail to one recipient.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to a logger instead of delivering them.
// Useful for local development where no mail transport is reachable.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs msg at info.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail",
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

// Recorder counts delivery outcomes.
type Recorder interface {
	RecordMailSent(result string)
}

// Instrumented wraps a Sender and records each outcome.
type Instrumented struct {
	next     Sender
	recorder Recorder
}

// NewInstrumented wraps next.
func NewInstrumented(next Sender, recorder Recorder) *Instrumented {
	return &Instrumented{next: next, recorder: recorder}
}

// Send delegates to the wrapped Sender.
func (s *Instrumented) Send(ctx context.Context, msg Message) error {
	err := s.next.Send(ctx, msg)
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.recorder.RecordMailSent(result)
	return err
}

// Package chatbot implements the conversation controller shared by the
// terminal UI and the plain REPL.
//
// A ChatBot owns the message list and the loading/error flags. It is driven
// from a single event loop: Submit opens a stream, and the caller feeds each
// fragment back through OnChunk before finishing with OnStreamComplete or
// OnStreamError. At most one exchange is in flight, enforced by the loading
// flag rather than a lock.
package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"ZyroChat/internal/backend"
	"ZyroChat/internal/session"
	"ZyroChat/internal/telemetry"
)

const unknownError = "An unknown error occurred."

// Recorder stores a summary of every finished exchange. It is called on the
// event loop, once per exchange.
type Recorder interface {
	RecordExchange(ctx context.Context, ex telemetry.Exchange) error
}

// Options configures a ChatBot. Zero values are usable.
type Options struct {
	Backend           string
	Model             string
	SystemInstruction string
	Greeting          string

	Logger   *slog.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter
	Recorder Recorder
}

// ChatBot is the conversation controller
type ChatBot struct {
	opts    Options
	session backend.Session
	conv    *session.Conversation
	loading bool
	err     string

	logger   *slog.Logger
	tracer   trace.Tracer
	recorder Recorder

	fragmentCounter metric.Int64Counter
	errorCounter    metric.Int64Counter
	durationHist    metric.Float64Histogram

	exchange *exchange
}

// exchange tracks the in-flight send for telemetry
type exchange struct {
	ctx       context.Context
	span      trace.Span
	record    telemetry.Exchange
	startedAt time.Time
}

// New creates the session through factory. A factory failure does not fail New:
// the ChatBot starts in the error state with no session, and nothing can be sent.
func New(ctx context.Context, factory backend.Factory, opts Options) *ChatBot {
	cb := &ChatBot{
		opts:     opts,
		conv:     session.NewConversation(),
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		recorder: opts.Recorder,
	}
	if cb.logger == nil {
		cb.logger = slog.New(slog.DiscardHandler)
	}
	if cb.tracer == nil {
		cb.tracer = tracenoop.NewTracerProvider().Tracer("chatbot")
	}
	meter := opts.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("chatbot")
	}
	cb.initInstruments(meter)

	sess, err := factory.Create(ctx, opts.Model, backend.Options{
		SystemInstruction: opts.SystemInstruction,
	})
	if err != nil {
		cb.err = fmt.Sprintf("Failed to initialize AI session: %v. Please check if your API key is set correctly.", err)
		cb.logger.Error("failed to initialize session", "backend", opts.Backend, "model", opts.Model, "error", err)
		return cb
	}

	cb.session = sess
	if opts.Greeting != "" {
		// the conversation is fresh, so no assistant message can be open
		_ = cb.conv.AppendAssistant(opts.Greeting)
	}
	cb.logger.Info("created session", "backend", opts.Backend, "model", opts.Model)
	return cb
}

func (cb *ChatBot) initInstruments(meter metric.Meter) {
	var err error
	cb.fragmentCounter, err = meter.Int64Counter(
		"chat.stream.fragments",
		metric.WithDescription("Fragments received from the model"),
	)
	if err != nil {
		cb.logger.Warn("failed to create counter", "name", "chat.stream.fragments", "error", err)
	}
	cb.errorCounter, err = meter.Int64Counter(
		"chat.stream.errors",
		metric.WithDescription("Exchanges that ended in an error"),
	)
	if err != nil {
		cb.logger.Warn("failed to create counter", "name", "chat.stream.errors", "error", err)
	}
	cb.durationHist, err = meter.Float64Histogram(
		"chat.stream.duration",
		metric.WithDescription("Exchange duration in milliseconds"),
	)
	if err != nil {
		cb.logger.Warn("failed to create histogram", "name", "chat.stream.duration", "error", err)
	}
}

// HasSession reports whether initialization succeeded
func (cb *ChatBot) HasSession() bool {
	return cb.session != nil
}

// Loading reports whether a send is in flight
func (cb *ChatBot) Loading() bool {
	return cb.loading
}

// Err returns the banner text of the last failure, or ""
func (cb *ChatBot) Err() string {
	return cb.err
}

// Messages returns a copy of the conversation
func (cb *ChatBot) Messages() []session.Message {
	return cb.conv.Messages()
}

// CanSend reports whether Submit(text) would start an exchange
func (cb *ChatBot) CanSend(text string) bool {
	return strings.TrimSpace(text) != "" && !cb.loading && cb.session != nil
}

// Submit starts an exchange for text and returns its fragment stream.
// It returns false, leaving all state untouched, when text is blank,
// a send is already in flight, or there is no session.
func (cb *ChatBot) Submit(ctx context.Context, text string) (backend.Stream, bool) {
	if !cb.CanSend(text) {
		return nil, false
	}

	cb.conv.AppendUser(text)
	cb.loading = true
	cb.err = ""

	cb.beginExchange(ctx, text)
	stream := cb.session.SendStream(cb.exchange.ctx, text)

	if err := cb.conv.OpenAssistant(); err != nil {
		// loading guards against a second open message; reaching this is a bug
		cb.logger.Error("failed to open assistant message", "error", err)
	}
	return stream, true
}

// OnChunk appends fragment to the streaming assistant message
func (cb *ChatBot) OnChunk(fragment string) {
	if err := cb.conv.AppendToOpen(fragment); err != nil {
		cb.logger.Warn("dropped fragment", "error", err)
		return
	}
	if cb.exchange != nil {
		cb.exchange.record.Fragments++
		cb.exchange.record.Bytes += len(fragment)
		cb.fragmentCounter.Add(cb.exchange.ctx, 1)
	}
}

// OnStreamError shows the failure and discards the streaming assistant message,
// including any text that already arrived.
func (cb *ChatBot) OnStreamError(err error) {
	desc := unknownError
	if err != nil && err.Error() != "" {
		desc = err.Error()
	}
	cb.err = "Sorry, something went wrong: " + desc
	cb.conv.DiscardOpen()
	cb.loading = false

	cb.logger.Error("stream failed", "backend", cb.opts.Backend, "error", err)
	cb.endExchange(err)
}

// OnStreamComplete ends the exchange; the assistant message keeps its text
func (cb *ChatBot) OnStreamComplete() {
	cb.conv.CloseOpen()
	cb.loading = false
	cb.endExchange(nil)
}

// Consume drives stream to the end on the caller's goroutine.
// render, if set, runs after every change to the message list.
func (cb *ChatBot) Consume(stream backend.Stream, render func()) {
	if render == nil {
		render = func() {}
	}
	for fragment, err := range stream {
		if err != nil {
			cb.OnStreamError(err)
			render()
			return
		}
		cb.OnChunk(fragment)
		render()
	}
	cb.OnStreamComplete()
	render()
}

func (cb *ChatBot) beginExchange(ctx context.Context, text string) {
	ctx, span := cb.tracer.Start(ctx, "chat.exchange",
		trace.WithAttributes(
			attribute.String("chat.backend", cb.opts.Backend),
			attribute.String("chat.model", cb.opts.Model),
			attribute.Int("chat.prompt.length", len(text)),
		),
	)
	now := time.Now()
	cb.exchange = &exchange{
		ctx:       ctx,
		span:      span,
		startedAt: now,
		record: telemetry.Exchange{
			ID:           uuid.NewString(),
			Backend:      cb.opts.Backend,
			Model:        cb.opts.Model,
			PromptDigest: telemetry.Digest(text),
			StartedAt:    now,
		},
	}
}

func (cb *ChatBot) endExchange(err error) {
	ex := cb.exchange
	if ex == nil {
		return
	}
	cb.exchange = nil

	ex.record.Duration = time.Since(ex.startedAt)
	cb.durationHist.Record(ex.ctx, float64(ex.record.Duration.Milliseconds()))

	ex.span.SetAttributes(
		attribute.Int("chat.fragments", ex.record.Fragments),
		attribute.Int("chat.bytes", ex.record.Bytes),
	)
	if err != nil {
		ex.record.Error = err.Error()
		cb.errorCounter.Add(ex.ctx, 1)
		ex.span.RecordError(err)
		ex.span.SetStatus(codes.Error, err.Error())
	}
	ex.span.End()

	cb.logger.Info("exchange finished",
		"id", ex.record.ID,
		"fragments", ex.record.Fragments,
		"duration_ms", ex.record.Duration.Milliseconds(),
	)

	if cb.recorder == nil {
		return
	}
	// written before the exchange is reported finished, so closing the store afterwards loses nothing
	if err := cb.recorder.RecordExchange(context.WithoutCancel(ex.ctx), ex.record); err != nil {
		cb.logger.Error("failed to record exchange", "id", ex.record.ID, "error", err)
	}
}

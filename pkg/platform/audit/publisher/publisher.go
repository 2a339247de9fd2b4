// Package publisher is the write and query entry point of the audit trail.
// It stamps records with an id and timestamp, serializes writers, and hands
// the finalized event to the configured durable store.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "repairhub/pkg/domain-errors"
	audit "repairhub/pkg/platform/audit"
)

const tracerName = "repairhub/audit"

// ErrNotInitialized is returned by Append and Query before Initialize succeeds.
var ErrNotInitialized = errors.New("audit trail not initialized")

// Forwarder receives every durable event. Delivery is best effort and must
// not block the caller for long; failures are the forwarder's to report.
type Forwarder interface {
	Forward(ctx context.Context, event audit.Event)
}

type Publisher struct {
	store     audit.Store
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	forwarder Forwarder
	clock     func() time.Time
	newID     func() (string, error)

	initMu sync.Mutex
	ready  atomic.Bool

	// mu spans timestamp assignment and persistence so the stored order and
	// the timestamp order agree.
	mu   sync.Mutex
	last time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Publisher) {
		p.tracer = t
	}
}

// WithForwarder ships each appended event to an external sink such as a SIEM.
func WithForwarder(f Forwarder) Option {
	return func(p *Publisher) {
		p.forwarder = f
	}
}

// WithClock overrides the wall clock (tests).
func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) {
		p.clock = clock
	}
}

// WithIDGenerator overrides id generation (tests).
func WithIDGenerator(gen func() (string, error)) Option {
	return func(p *Publisher) {
		p.newID = gen
	}
}

// NewPublisher creates a trail on top of store. Initialize must be called
// before the first Append.
func NewPublisher(store audit.Store, opts ...Option) (*Publisher, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		clock:  time.Now,
		newID:  newEventID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func newEventID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Initialize prepares the backing store. It is safe to call repeatedly and
// from concurrent goroutines; the store is initialized once successfully.
func (p *Publisher) Initialize(ctx context.Context) error {
	if p.ready.Load() {
		return nil
	}
	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.ready.Load() {
		return nil
	}

	if err := p.store.Init(ctx); err != nil {
		p.logger.ErrorContext(ctx, "audit store initialization failed", "error", err)
		return fmt.Errorf("initialize audit store: %w", err)
	}

	// Resume the timestamp floor from what is already retained.
	snapshot, err := p.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load audit snapshot: %w", err)
	}
	p.mu.Lock()
	for _, e := range snapshot {
		if e.Timestamp.After(p.last) {
			p.last = e.Timestamp
		}
	}
	p.mu.Unlock()

	p.ready.Store(true)
	p.logger.InfoContext(ctx, "audit trail initialized", "retained", len(snapshot))
	return nil
}

// Ready reports whether Initialize has succeeded.
func (p *Publisher) Ready() bool {
	return p.ready.Load()
}

// Append records one event. The record is checked structurally only; the
// meaning of action and resource is the producer's concern. A store failure
// is returned as *audit.PersistenceError and the event is not visible.
func (p *Publisher) Append(ctx context.Context, rec audit.Record) (audit.Event, error) {
	ctx, span := p.tracer.Start(ctx, "audit.Append", trace.WithAttributes(
		attribute.String("audit.action", rec.Action),
		attribute.String("audit.resource", rec.Resource),
		attribute.String("audit.status", string(rec.Status)),
	))
	defer span.End()

	if !p.ready.Load() {
		span.SetStatus(codes.Error, ErrNotInitialized.Error())
		return audit.Event{}, ErrNotInitialized
	}
	if problems := rec.Validate(); problems != nil {
		err := dErrors.WithFields("invalid audit record", problems)
		span.SetStatus(codes.Error, err.Error())
		return audit.Event{}, err
	}

	start := time.Now()
	event, err := p.persist(ctx, rec)
	if err != nil {
		p.metrics.incFailure(rec.Resource)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.ErrorContext(ctx, "audit event persistence failed",
			"action", rec.Action,
			"resource", rec.Resource,
			"error", err,
		)
		return audit.Event{}, err
	}
	p.metrics.observeAppend(event.Resource, string(event.Status), time.Since(start).Seconds())
	span.SetAttributes(attribute.String("audit.id", event.ID))

	p.logger.InfoContext(ctx, "audit event recorded",
		"action", event.Action,
		"user_id", event.UserID,
		"resource", event.Resource,
		"status", event.Status,
	)

	if p.forwarder != nil {
		p.forwarder.Forward(ctx, event)
	}
	return event, nil
}

func (p *Publisher) persist(ctx context.Context, rec audit.Record) (audit.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.newID()
	if err != nil {
		return audit.Event{}, &audit.PersistenceError{Action: rec.Action, Err: fmt.Errorf("generate id: %w", err)}
	}

	// Millisecond precision survives every backend unchanged.
	ts := p.clock().UTC().Truncate(time.Millisecond)
	if ts.Before(p.last) {
		ts = p.last
	}

	event := rec.Finalize(id, ts)
	if err := p.store.Append(ctx, event); err != nil {
		return audit.Event{}, &audit.PersistenceError{Action: rec.Action, Err: err}
	}
	p.last = ts
	return event, nil
}

// Query returns retained events matching f, newest first. Stores that can
// evaluate the filter natively do so; otherwise it runs over a snapshot.
func (p *Publisher) Query(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	if !p.ready.Load() {
		return nil, ErrNotInitialized
	}
	if q, ok := p.store.(audit.Querier); ok {
		events, err := q.Query(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("query audit store: %w", err)
		}
		return events, nil
	}
	snapshot, err := p.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot audit store: %w", err)
	}
	return audit.Query(snapshot, f), nil
}

// Close releases the store.
func (p *Publisher) Close() error {
	return p.store.Close()
}

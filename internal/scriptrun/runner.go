// Package scriptrun keeps the legacy callback-style RPC surface
// (withSuccessHandler / withFailureHandler / method call) alive on top of the
// HTTP transport. Every call settles into exactly one handler invocation.
package scriptrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/scriptrun-bridge/internal/models"
	"github.com/example/scriptrun-bridge/internal/transport"
)

// Observer is notified once per settled call.
type Observer interface {
	Observe(ctx context.Context, event models.CallEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event models.CallEvent)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, event models.CallEvent) {
	f(ctx, event)
}

// Option modifies runner behaviour.
type Option func(*Runner)

// WithEndpoints adds or replaces table entries by name.
func WithEndpoints(endpoints ...Endpoint) Option {
	return func(r *Runner) {
		r.extra = append(r.extra, endpoints...)
	}
}

// WithObserver registers an observer for call events.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithMaxInFlight bounds concurrent backend calls. Zero means unbounded.
func WithMaxInFlight(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithDefaultHandlers overrides the handlers used when a call supplies none.
func WithDefaultHandlers(h Handlers) Option {
	return func(r *Runner) {
		r.defaults = h.orDefaults(r.defaults)
	}
}

// WithIDGenerator overrides how call ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithClock overrides the clock used for call durations and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// Runner resolves legacy method names through the endpoint table and routes
// each outcome to a handler pair.
type Runner struct {
	backend   Backend
	endpoints map[string]Endpoint
	extra     []Endpoint
	defaults  Handlers
	logger    zerolog.Logger
	observers []Observer
	sem       *semaphore.Weighted
	newID     func() string
	now       func() time.Time

	pending sync.WaitGroup
}

// NewRunner constructs a runner over backend with the default method table.
func NewRunner(backend Backend, logger zerolog.Logger, opts ...Option) (*Runner, error) {
	if backend == nil {
		return nil, errors.New("scriptrun: backend dependency is required")
	}
	if v := reflect.ValueOf(backend); v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, errors.New("scriptrun: backend dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	r := &Runner{
		backend:   backend,
		endpoints: make(map[string]Endpoint),
		defaults:  DefaultHandlers(logger),
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if err := r.register(DefaultEndpoints(), false); err != nil {
		return nil, err
	}
	if err := r.register(r.extra, true); err != nil {
		return nil, err
	}
	r.extra = nil
	return r, nil
}

func (r *Runner) register(endpoints []Endpoint, replace bool) error {
	for _, ep := range endpoints {
		if ep.Name == "" {
			return errors.New("scriptrun: endpoint name is required")
		}
		if _, dup := r.endpoints[ep.Name]; dup && !replace {
			return fmt.Errorf("scriptrun: duplicate endpoint %q", ep.Name)
		}
		switch ep.Kind {
		case models.CallKindReal:
			if ep.Invoke == nil {
				return fmt.Errorf("scriptrun: endpoint %q has no invoke func", ep.Name)
			}
		case models.CallKindStub:
			if !json.Valid(ep.Placeholder) {
				return fmt.Errorf("scriptrun: endpoint %q placeholder is not valid JSON", ep.Name)
			}
		default:
			return fmt.Errorf("scriptrun: endpoint %q has unknown kind %q", ep.Name, ep.Kind)
		}
		r.endpoints[ep.Name] = ep
	}
	return nil
}

// Methods lists every method name in the table, sorted.
func (r *Runner) Methods() []string {
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the endpoint registered under name.
func (r *Runner) Lookup(name string) (Endpoint, bool) {
	ep, ok := r.endpoints[name]
	return ep, ok
}

// Call invokes method and blocks until it settles.
func (r *Runner) Call(ctx context.Context, method string, args ...any) models.Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	out, event := r.invoke(ctx, method, Args(args))
	r.notify(ctx, event)
	return out
}

// Async invokes method in its own goroutine. The returned channel receives
// exactly one outcome and is then closed.
func (r *Runner) Async(ctx context.Context, method string, args ...any) <-chan models.Outcome {
	ch := make(chan models.Outcome, 1)
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		defer close(ch)
		ch <- r.Call(ctx, method, args...)
	}()
	return ch
}

// Run invokes method and routes the outcome to exactly one of handlers'
// callbacks, exactly once. It blocks until the handler returns.
func (r *Runner) Run(ctx context.Context, method string, args []any, handlers Handlers) {
	if ctx == nil {
		ctx = context.Background()
	}
	out, event := r.invoke(ctx, method, Args(args))
	event.Handler = handlers.orDefaults(r.defaults).dispatch(out)
	r.notify(ctx, event)
}

// Wait blocks until every Async call and Script run has settled.
func (r *Runner) Wait() {
	r.pending.Wait()
}

func (r *Runner) invoke(ctx context.Context, method string, args Args) (models.Outcome, models.CallEvent) {
	start := r.now()
	callID := r.newID()
	ctx = transport.WithRequestID(ctx, callID)

	event := models.CallEvent{CallID: callID, Method: method}

	ep, ok := r.endpoints[method]
	var out models.Outcome
	switch {
	case !ok:
		out = invalid(method, errors.New("unknown method"))
	case ep.Kind == models.CallKindStub:
		event.Kind = ep.Kind
		r.logger.Warn().
			Str("method", method).
			Str("call_id", callID).
			Msg("method not implemented in backend yet, answering with placeholder")
		out = models.NewSettled(ep.Placeholder)
	default:
		event.Kind = ep.Kind
		if ep.Note != "" {
			r.logger.Warn().Str("method", method).Str("call_id", callID).Msg(ep.Note)
		}
		out = r.callBackend(ctx, ep, args)
	}

	end := r.now()
	event.Handler = models.HandlerSuccess
	if out.IsFailure() {
		event.Handler = models.HandlerFailure
	}
	event.Success = out.Success
	event.Failure = out.Failure
	event.Message = out.Message
	event.DurationMs = end.Sub(start).Milliseconds()
	event.Timestamp = end.UTC()
	return out, event
}

func (r *Runner) callBackend(ctx context.Context, ep Endpoint, args Args) models.Outcome {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return models.ConnectionFailure(models.FailureConnection, fmt.Errorf("wait for call slot: %w", err))
		}
		defer r.sem.Release(1)
	}
	return ep.Invoke(ctx, r.backend, args)
}

func (r *Runner) notify(ctx context.Context, event models.CallEvent) {
	r.logger.Debug().
		Str("method", event.Method).
		Str("call_id", event.CallID).
		Str("kind", string(event.Kind)).
		Str("handler", event.Handler).
		Int64("duration_ms", event.DurationMs).
		Msg("call settled")

	for _, o := range r.observers {
		o.Observe(ctx, event)
	}
}

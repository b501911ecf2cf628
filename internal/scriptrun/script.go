package scriptrun

import (
	"context"
	"errors"
)

// Script mirrors the legacy google.script.run object. It is a value: every
// With* call returns a new Script and leaves the receiver untouched.
type Script struct {
	runner   *Runner
	ctx      context.Context
	handlers Handlers
}

// Script returns a compat shim bound to r with the runner's default handlers.
func (r *Runner) Script() Script {
	return Script{runner: r, ctx: context.Background()}
}

// WithSuccessHandler returns a copy whose success handler is fn.
func (s Script) WithSuccessHandler(fn Handler) Script {
	s.handlers = s.handlers.WithSuccess(fn)
	return s
}

// WithFailureHandler returns a copy whose failure handler is fn.
func (s Script) WithFailureHandler(fn Handler) Script {
	s.handlers = s.handlers.WithFailure(fn)
	return s
}

// WithContext returns a copy whose runs use ctx.
func (s Script) WithContext(ctx context.Context) Script {
	if ctx != nil {
		s.ctx = ctx
	}
	return s
}

// Handlers returns the callback pair captured by s.
func (s Script) Handlers() Handlers {
	return s.handlers
}

// Run fires method in the background, like the legacy host, and returns
// immediately. The handlers captured at the time of the call are used even if
// s is later reconfigured.
func (s Script) Run(method string, args ...any) {
	if s.runner == nil {
		s.handlers.dispatch(invalid(method, errors.New("script is not bound to a runner")))
		return
	}
	ctx, handlers := s.ctx, s.handlers
	s.runner.pending.Add(1)
	go func() {
		defer s.runner.pending.Done()
		s.runner.Run(ctx, method, args, handlers)
	}()
}

package scriptrun

import (
	"github.com/rs/zerolog"

	"github.com/example/scriptrun-bridge/internal/models"
)

// Handler receives the outcome of one call.
type Handler func(models.Outcome)

// Handlers is the callback pair for one call. It is a plain value: changing
// one copy never affects another. Nil fields fall back to the runner's
// defaults.
type Handlers struct {
	OnSuccess Handler
	OnFailure Handler
}

// WithSuccess returns a copy with the success handler replaced.
func (h Handlers) WithSuccess(fn Handler) Handlers {
	h.OnSuccess = fn
	return h
}

// WithFailure returns a copy with the failure handler replaced.
func (h Handlers) WithFailure(fn Handler) Handlers {
	h.OnFailure = fn
	return h
}

// DefaultHandlers log the outcome to the diagnostic channel.
func DefaultHandlers(logger zerolog.Logger) Handlers {
	return Handlers{
		OnSuccess: func(out models.Outcome) {
			logger.Info().RawJSON("outcome", outcomeJSON(out)).Msg("Success")
		},
		OnFailure: func(out models.Outcome) {
			logger.Error().
				Str("failure", string(out.Failure)).
				Str("reason", out.Message).
				Msg("Failure")
		},
	}
}

func (h Handlers) orDefaults(defaults Handlers) Handlers {
	if h.OnSuccess == nil {
		h.OnSuccess = defaults.OnSuccess
	}
	if h.OnFailure == nil {
		h.OnFailure = defaults.OnFailure
	}
	return h
}

// dispatch fires exactly one handler and reports which one.
func (h Handlers) dispatch(out models.Outcome) string {
	if out.IsFailure() {
		if h.OnFailure != nil {
			h.OnFailure(out)
		}
		return models.HandlerFailure
	}
	if h.OnSuccess != nil {
		h.OnSuccess(out)
	}
	return models.HandlerSuccess
}

func outcomeJSON(out models.Outcome) []byte {
	data, err := out.MarshalJSON()
	if err != nil {
		return []byte("null")
	}
	return data
}

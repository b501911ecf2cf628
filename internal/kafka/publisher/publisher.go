package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/scriptrun-bridge/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer captures the subset of producer behaviour required by the publisher.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

// CallEventPublisher emits call events to a Kafka topic, keyed by method so
// all events of one legacy method land on the same partition.
type CallEventPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewCallEventPublisher constructs a CallEventPublisher instance.
func NewCallEventPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *CallEventPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &CallEventPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// PublishCallEvent writes the supplied event to Kafka synchronously.
func (p *CallEventPublisher) PublishCallEvent(_ context.Context, event models.CallEvent) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal call event: %w", err)
	}

	headers := map[string][]byte{
		"content-type": []byte("application/json"),
		"call-kind":    []byte(event.Kind),
	}
	if event.CallID != "" {
		headers["call-id"] = []byte(event.CallID)
	}

	if err := p.producer.PublishSync(p.topic, []byte(event.Method), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish call event: %w", err)
	}
	p.logger.Debug().
		Str("topic", p.topic).
		Str("method", event.Method).
		Str("call_id", event.CallID).
		Msg("call event published")
	return nil
}

package producer

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

const defaultSendTimeout = 5 * time.Second

// Option customises the producer during construction.
type Option func(*options)

type options struct {
	config      *sarama.Config
	sendTimeout time.Duration
	clientID    string
}

// WithConfig allows callers to supply a preconfigured Sarama config. The
// configuration is cloned internally so the caller retains ownership.
func WithConfig(cfg *sarama.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.config = cfg
		}
	}
}

// WithSendTimeout bounds how long a single publish may wait for the broker.
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sendTimeout = d
		}
	}
}

// WithClientID sets the Kafka client id reported to brokers.
func WithClientID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.clientID = id
		}
	}
}

// Producer wraps a Sarama sync producer used for call telemetry. Publishing
// is best effort: the bridge never blocks a call on Kafka for longer than the
// send timeout.
type Producer struct {
	logger zerolog.Logger

	client       sarama.Client
	syncProducer sarama.SyncProducer

	ready atomic.Bool
}

// New constructs a Producer using the supplied broker list and logger.
func New(brokers []string, logger zerolog.Logger, opts ...Option) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka producer: at least one broker is required")
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	settings := &options{
		sendTimeout: defaultSendTimeout,
		clientID:    "scriptrun-bridge",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(settings)
		}
	}

	cfg := buildConfig(settings)

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: create client: %w", err)
	}

	syncProd, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka producer: create sync producer: %w", err)
	}

	p := &Producer{
		logger:       logger,
		client:       client,
		syncProducer: syncProd,
	}
	p.ready.Store(true)

	logger.Info().
		Strs("brokers", brokers).
		Str("client_id", cfg.ClientID).
		Msg("kafka producer initialised")
	return p, nil
}

// PublishSync publishes a message and waits for the leader to acknowledge it.
func (p *Producer) PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	if topic == "" {
		return errors.New("kafka producer: topic is required")
	}

	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Value:   sarama.ByteEncoder(cloneBytes(payload)),
		Headers: toRecordHeaders(headers),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(cloneBytes(key))
	}

	partition, offset, err := p.syncProducer.SendMessage(msg)
	if err != nil {
		p.ready.Store(false)
		return fmt.Errorf("kafka producer: send sync: %w", err)
	}

	p.ready.Store(true)
	p.logger.Debug().
		Str("topic", topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("kafka message acknowledged")
	return nil
}

// IsReady reports whether the last publish succeeded.
func (p *Producer) IsReady() bool {
	return p.ready.Load()
}

// Close releases the underlying Sarama producer and client.
func (p *Producer) Close() error {
	var errs []error
	if err := p.syncProducer.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func toRecordHeaders(headers map[string][]byte) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(headers))
	for k, v := range headers {
		out = append(out, sarama.RecordHeader{
			Key:   []byte(k),
			Value: cloneBytes(v),
		})
	}
	return out
}

func cloneBytes(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}

// buildConfig clones the caller's config, or starts from the telemetry
// defaults, and forces the settings a sync producer needs.
func buildConfig(o *options) *sarama.Config {
	var cfg *sarama.Config
	if o.config != nil {
		cloned := *o.config
		cfg = &cloned
	} else {
		cfg = sarama.NewConfig()
		cfg.Version = sarama.V2_5_0_0
		cfg.Producer.RequiredAcks = sarama.WaitForLocal
		cfg.Producer.Retry.Max = 1
		cfg.Producer.Retry.Backoff = 100 * time.Millisecond
		cfg.Producer.Compression = sarama.CompressionSnappy
		cfg.ClientID = o.clientID
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Timeout = o.sendTimeout
	cfg.Net.DialTimeout = o.sendTimeout
	return cfg
}

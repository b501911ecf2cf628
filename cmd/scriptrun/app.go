package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/scriptrun-bridge/internal/config"
	"github.com/example/scriptrun-bridge/internal/kafka/producer"
	kafkapublisher "github.com/example/scriptrun-bridge/internal/kafka/publisher"
	"github.com/example/scriptrun-bridge/internal/logger"
	"github.com/example/scriptrun-bridge/internal/scriptrun"
	"github.com/example/scriptrun-bridge/internal/tracing"
	"github.com/example/scriptrun-bridge/internal/transport"
)

// app holds the wired bridge for one CLI invocation.
type app struct {
	log    zerolog.Logger
	client *transport.Client
	runner *scriptrun.Runner

	tracer *tracing.Provider
	prod   *producer.Producer
}

// setupFunc builds the app. Tests swap it for one pointed at a fake backend.
type setupFunc func(ctx context.Context, baseURL string) (*app, error)

func loadApp(ctx context.Context, baseURL string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	return newApp(ctx, cfg, *baseLogger)
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{log: log}

	tp, err := tracing.New(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	a.tracer = tp

	opts := []transport.Option{
		transport.WithTimeout(time.Duration(cfg.Backend.TimeoutSeconds) * time.Second),
		transport.WithBodyLimit(int64(cfg.Backend.MaxBodyBytes)),
		transport.WithTracer(tp.Tracer("github.com/example/scriptrun-bridge/internal/transport")),
		transport.WithPropagator(tp.Propagator()),
	}
	if cfg.Backend.RateLimitRPS > 0 {
		opts = append(opts, transport.WithRateLimit(cfg.Backend.RateLimitRPS, cfg.Backend.RateLimitBurst))
	}
	client, err := transport.New(cfg.Backend.BaseURL, logger.Component(log, "transport"), opts...)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.client = client

	runnerOpts := []scriptrun.Option{scriptrun.WithMaxInFlight(cfg.Runner.MaxInFlight)}
	if cfg.Kafka.Enabled() {
		kafkaLogger := logger.Component(log, "kafka")
		prod, err := producer.New(cfg.Kafka.Brokers, kafkaLogger)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.prod = prod
		pub := kafkapublisher.NewCallEventPublisher(prod, cfg.Kafka.CallEventsTopic, logger.Component(log, "call-event-publisher"))
		runnerOpts = append(runnerOpts, scriptrun.WithObserver(scriptrun.PublishingObserver(pub, kafkaLogger)))
	}

	runner, err := scriptrun.NewRunner(client, logger.Component(log, "scriptrun"), runnerOpts...)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.runner = runner

	log.Debug().
		Str("base_url", client.BaseURL()).
		Bool("tracing", tp.Enabled()).
		Bool("kafka", a.prod != nil).
		Msg("bridge initialised")
	return a, nil
}

// close waits for in-flight runs and releases exporters and producers.
func (a *app) close(ctx context.Context) error {
	if a.runner != nil {
		a.runner.Wait()
	}
	var errs []error
	if a.prod != nil {
		if err := a.prod.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
		}
	}
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/example/scriptrun-bridge/internal/util"
)

// DefaultBaseURL is the backend address used when API_BASE_URL is unset.
const DefaultBaseURL = "http://localhost:8000"

// Config captures all runtime configuration for the scriptrun bridge.
type Config struct {
	App     AppConfig
	Backend BackendConfig
	Runner  RunnerConfig
	Kafka   KafkaConfig
	Tracing TracingConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
}

// BackendConfig describes how the transport reaches the HTTP backend.
type BackendConfig struct {
	BaseURL        string
	TimeoutSeconds int
	MaxBodyBytes   int
	RateLimitRPS   float64
	RateLimitBurst int
}

// RunnerConfig tunes the adapter runner.
type RunnerConfig struct {
	MaxInFlight int
}

// KafkaConfig enables call-event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers         []string
	CallEventsTopic string
}

// Enabled reports whether call events should be published.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// TracingConfig selects the OpenTelemetry exporter.
type TracingConfig struct {
	Exporter    string
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// Load reads environment variables, applies defaults, validates values and
// returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Backend.BaseURL = strings.TrimRight(ldr.getString("API_BASE_URL", DefaultBaseURL, false), "/")
	cfg.Backend.TimeoutSeconds = ldr.getInt("HTTP_TIMEOUT_SECONDS", 30, false)
	cfg.Backend.MaxBodyBytes = ldr.getInt("HTTP_MAX_BODY_BYTES", 1<<20, false)
	cfg.Backend.RateLimitRPS = ldr.getFloat("HTTP_RATE_LIMIT_RPS", 0, false)
	cfg.Backend.RateLimitBurst = ldr.getInt("HTTP_RATE_LIMIT_BURST", 1, false)

	cfg.Runner.MaxInFlight = ldr.getInt("MAX_IN_FLIGHT", 0, false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Kafka.CallEventsTopic = ldr.getString("KAFKA_CALL_EVENTS_TOPIC", "scriptrun.call-events", false)

	cfg.Tracing.Exporter = strings.ToLower(ldr.getString("TRACING_EXPORTER", "none", false))
	cfg.Tracing.Endpoint = ldr.getString("TRACING_ENDPOINT", "", false)
	cfg.Tracing.ServiceName = ldr.getString("TRACING_SERVICE_NAME", "scriptrun", false)
	cfg.Tracing.Insecure = ldr.getBool("TRACING_INSECURE", false, false)

	ldr.check(cfg)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *envLoader) check(cfg *Config) {
	if _, err := util.NormalizeBaseURL(cfg.Backend.BaseURL); err != nil {
		l.addError("API_BASE_URL must be an http or https URL")
	}
	if cfg.Backend.TimeoutSeconds < 0 {
		l.addError("HTTP_TIMEOUT_SECONDS must not be negative")
	}
	if cfg.Backend.MaxBodyBytes <= 0 {
		l.addError("HTTP_MAX_BODY_BYTES must be positive")
	}
	if cfg.Backend.RateLimitRPS < 0 {
		l.addError("HTTP_RATE_LIMIT_RPS must not be negative")
	}
	if cfg.Runner.MaxInFlight < 0 {
		l.addError("MAX_IN_FLIGHT must not be negative")
	}
	if cfg.Kafka.Enabled() && cfg.Kafka.CallEventsTopic == "" {
		l.addError("KAFKA_CALL_EVENTS_TOPIC is required when KAFKA_BROKERS is set")
	}
	switch cfg.Tracing.Exporter {
	case "none", "stdout", "otlp-http":
	default:
		l.addError(fmt.Sprintf("TRACING_EXPORTER %q is not supported", cfg.Tracing.Exporter))
	}
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getFloat(key string, def float64, required bool) float64 {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid number", key))
			return def
		}
		return f
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OverlayEnv names the optional YAML file whose keys fill in values the environment
// leaves unset.
const OverlayEnv = "INVOICE_DESK_CONFIG"

type Config struct {
	APIPort  string
	LogLevel string

	OCRAPIURL          string
	HTTPTimeoutSeconds int
	OperatorID         string

	PollIntervalMS  int
	PollMaxAttempts int
	RecentLimit     int
	MaxUploadMB     int

	PostgresDSN string

	NATSURL          string
	NATSStateSubject string

	BreakerEnabled   bool
	RetryMaxAttempts int

	APIRateLimitRPS   float64
	APIRateLimitBurst int

	MockBackendPort      string
	MockReadyAfterProbes int
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func Load() (Config, error) {
	overlay, err := readOverlay(os.Getenv(OverlayEnv))
	if err != nil {
		return Config{}, err
	}
	return loadFrom(source{overlay: overlay}), nil
}

func loadFrom(src source) Config {
	return Config{
		APIPort:  src.mustEnv("API_PORT", "8080"),
		LogLevel: src.mustEnv("LOG_LEVEL", "info"),

		OCRAPIURL:          strings.TrimRight(src.mustEnv("OCR_API_URL", "http://localhost:8000"), "/"),
		HTTPTimeoutSeconds: src.mustEnvInt("HTTP_TIMEOUT_SECONDS", 30),
		OperatorID:         src.mustEnv("OPERATOR_ID", "admin"),

		PollIntervalMS:  src.mustEnvInt("POLL_INTERVAL_MS", 1000),
		PollMaxAttempts: src.mustEnvInt("POLL_MAX_ATTEMPTS", 30),
		RecentLimit:     src.mustEnvInt("RECENT_LIMIT", 10),
		MaxUploadMB:     src.mustEnvInt("MAX_UPLOAD_MB", 20),

		PostgresDSN: src.mustEnv("POSTGRES_DSN", ""),

		NATSURL:          src.mustEnv("NATS_URL", ""),
		NATSStateSubject: src.mustEnv("NATS_STATE_SUBJECT", "invoicedesk.session.state"),

		BreakerEnabled:   src.mustEnvBool("BREAKER_ENABLED", true),
		RetryMaxAttempts: src.mustEnvInt("RETRY_MAX_ATTEMPTS", 1),

		APIRateLimitRPS:   src.mustEnvFloat("API_RATE_LIMIT_RPS", 5),
		APIRateLimitBurst: src.mustEnvInt("API_RATE_LIMIT_BURST", 10),

		MockBackendPort:      src.mustEnv("MOCK_BACKEND_PORT", "8000"),
		MockReadyAfterProbes: src.mustEnvInt("MOCK_READY_AFTER_PROBES", 5),
	}
}

// readOverlay loads a flat YAML mapping. Keys are matched case-insensitively against
// the environment variable names.
func readOverlay(path string) (map[string]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config overlay: %w", err)
	}
	return parseOverlay(raw)
}

func parseOverlay(raw []byte) (map[string]string, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config overlay: %w", err)
	}
	out := make(map[string]string, len(doc))
	for key, value := range doc {
		switch v := value.(type) {
		case nil:
			continue
		case map[string]any, []any:
			return nil, fmt.Errorf("parse config overlay: key %q must be a scalar", key)
		default:
			out[strings.ToUpper(strings.TrimSpace(key))] = fmt.Sprint(v)
		}
	}
	return out, nil
}

type source struct {
	overlay map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.overlay[key]
}

func (s source) mustEnv(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) mustEnvInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvFloat(key string, fallback float64) float64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvBool(key string, fallback bool) bool {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

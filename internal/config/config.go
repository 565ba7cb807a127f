package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	DBMaxConnLifetime   time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME"`
	DBMaxConnIdleTime   time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`
	DBHealthCheckPeriod time.Duration `mapstructure:"DB_HEALTH_CHECK_PERIOD"`
	DBStatementTimeout  time.Duration `mapstructure:"DB_STATEMENT_TIMEOUT"`

	GeminiAPIKey     string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel      string        `mapstructure:"GEMINI_MODEL"`
	ReasoningTimeout time.Duration `mapstructure:"REASONING_TIMEOUT"`
	ReasoningRPS     float64       `mapstructure:"REASONING_RPS"`

	MatchCacheTTL         time.Duration `mapstructure:"MATCH_CACHE_TTL"`
	SemanticCacheTTL      time.Duration `mapstructure:"SEMANTIC_CACHE_TTL"`
	NextAvailableCacheTTL time.Duration `mapstructure:"NEXT_AVAILABLE_CACHE_TTL"`
	MatchTimeout          time.Duration `mapstructure:"MATCH_TIMEOUT"`
	MatchMinResults       int           `mapstructure:"MATCH_MIN_RESULTS"`
	MatchMaxResults       int           `mapstructure:"MATCH_MAX_RESULTS"`

	CancellationWindow     time.Duration `mapstructure:"CANCELLATION_WINDOW"`
	MaxAppointmentDuration time.Duration `mapstructure:"MAX_APPOINTMENT_DURATION"`
	MeetingBaseURL         string        `mapstructure:"MEETING_BASE_URL"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	OTLPEndpoint    string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRate float64 `mapstructure:"OTEL_TRACES_SAMPLE_RATE"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	TLSEnabled     bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string        `mapstructure:"TLS_KEY_FILE"`
}

var defaults = map[string]any{
	"PORT":                     "8000",
	"ENV":                      "development",
	"LOG_LEVEL":                "info",
	"DB_MAX_CONNS":             20,
	"DB_MIN_CONNS":             5,
	"DB_MAX_CONN_LIFETIME":     "1h",
	"DB_MAX_CONN_IDLE_TIME":    "30m",
	"DB_HEALTH_CHECK_PERIOD":   "30s",
	"DB_STATEMENT_TIMEOUT":     "15s",
	"GEMINI_MODEL":             "gemini-1.5-flash",
	"REASONING_TIMEOUT":        "2s",
	"REASONING_RPS":            5,
	"MATCH_CACHE_TTL":          "10m",
	"SEMANTIC_CACHE_TTL":       "1h",
	"NEXT_AVAILABLE_CACHE_TTL": "15m",
	"MATCH_TIMEOUT":            "5s",
	"MATCH_MIN_RESULTS":        3,
	"MATCH_MAX_RESULTS":        10,
	"CANCELLATION_WINDOW":      "24h",
	"MAX_APPOINTMENT_DURATION": "8h",
	"MEETING_BASE_URL":         "https://meet.carematch.local",
	"OTEL_TRACES_SAMPLE_RATE":  1.0,
	"CORS_ORIGINS":             "http://localhost:3000",
	"RATE_LIMIT_RPS":           100,
	"RATE_LIMIT_BURST":         200,
	"REQUEST_TIMEOUT":          "30s",
}

// keys lists every variable bound from the environment so Unmarshal sees
// values that have no default.
var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"DB_MAX_CONN_LIFETIME", "DB_MAX_CONN_IDLE_TIME", "DB_HEALTH_CHECK_PERIOD", "DB_STATEMENT_TIMEOUT",
	"GEMINI_API_KEY", "GEMINI_MODEL", "REASONING_TIMEOUT", "REASONING_RPS",
	"MATCH_CACHE_TTL", "SEMANTIC_CACHE_TTL", "NEXT_AVAILABLE_CACHE_TTL", "MATCH_TIMEOUT",
	"MATCH_MIN_RESULTS", "MATCH_MAX_RESULTS", "CANCELLATION_WINDOW", "MAX_APPOINTMENT_DURATION", "MEETING_BASE_URL",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_TRACES_SAMPLE_RATE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads .env (if present) and the environment. DATABASE_URL is the only
// required value.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ReasoningEnabled reports whether specialization scoring may call Gemini.
func (c *Config) ReasoningEnabled() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}

// Validate rejects configurations the server must not start with. Outside
// development every request is authenticated, so a signing key is required.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when ENV=%q; development auth grants admin to every request", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.MatchMinResults < 1 {
		return fmt.Errorf("MATCH_MIN_RESULTS must be at least 1, got %d", c.MatchMinResults)
	}
	if c.MatchMaxResults < c.MatchMinResults {
		return fmt.Errorf("MATCH_MAX_RESULTS (%d) must not be below MATCH_MIN_RESULTS (%d)", c.MatchMaxResults, c.MatchMinResults)
	}
	if c.CancellationWindow < 0 {
		return fmt.Errorf("CANCELLATION_WINDOW must not be negative")
	}
	if c.MaxAppointmentDuration < time.Minute {
		return fmt.Errorf("MAX_APPOINTMENT_DURATION must be at least 1m, got %s", c.MaxAppointmentDuration)
	}
	if c.DBHealthCheckPeriod <= 0 {
		return fmt.Errorf("DB_HEALTH_CHECK_PERIOD must be positive, got %s", c.DBHealthCheckPeriod)
	}
	if c.DBMaxConnLifetime < 0 || c.DBMaxConnIdleTime < 0 || c.DBStatementTimeout < 0 {
		return fmt.Errorf("DB_MAX_CONN_LIFETIME, DB_MAX_CONN_IDLE_TIME and DB_STATEMENT_TIMEOUT must not be negative")
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLE_RATE must be within [0,1], got %v", c.TraceSampleRate)
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}

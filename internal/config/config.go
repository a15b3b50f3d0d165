// Package config provides application configuration loaded from environment
// variables with defaults and validation, plus the barrier and whitelist
// definitions read from a YAML file. It centralizes server timeouts, logging,
// ledger storage, dispatch policy, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/barrier-gateway/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// AuthConfig enables HTTP Basic authentication on the API group when both
// fields are set.
type AuthConfig struct {
	Username string // API_USERNAME
	Password string // API_PASSWORD
}

// Enabled reports whether Basic authentication should be enforced.
func (a AuthConfig) Enabled() bool { return a.Username != "" && a.Password != "" }

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "barrier-gateway")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DispatchConfig controls how detections become barrier pulses.
type DispatchConfig struct {
	ReactiveEnabled    bool          // REACTIVE_DISPATCH: pulse immediately on ingest
	DuplicateWindow    time.Duration // DUPLICATE_WINDOW_SECONDS
	SuppressionHorizon time.Duration // SUPPRESSION_HORIZON
	SweepRetries       int           // SWEEP_RETRIES: extra attempts for scheduled pulses
	ReactiveRetries    int           // REACTIVE_RETRIES: extra attempts for reactive/manual pulses
	HTTPTimeout        time.Duration // OUTBOUND_TIMEOUT: per-request bound for pulses, probes, fetches
	SendInitialPulse   bool          // SEND_INITIAL_PULSE: pulse every barrier once at startup
	ProbeOnStart       bool          // PROBE_ON_START: run a liveness probe for every barrier at startup
	RefreshOnStart     bool          // REFRESH_ON_START: fetch the whitelist before the scheduler starts
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	ShutdownTimeout   time.Duration // drain budget for HTTP + scheduler
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Ledger
	DBPath     string // SQLite path
	DBInitMode string // keep|recreate
	SeedSample bool   // insert sample ledger rows after init (dev only)

	// Barriers / whitelist
	BarriersFile string // YAML file with barriers and whitelist sources
	Barriers     []BarrierConfig
	Whitelist    WhitelistConfig

	Dispatch DispatchConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig
	Auth     AuthConfig

	// Observability
	OTEL OTELConfig
}

// Load reads configuration from environment variables and the barriers file,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 30*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// Ledger
		DBPath:     getenv("DB_PATH", "barriers.db"),
		DBInitMode: strings.ToLower(getenv("DB_INIT_MODE", "keep")),
		SeedSample: getbool("SEED_SAMPLE_DATA", false),

		BarriersFile: getenv("BARRIERS_FILE", ""),
		Whitelist: WhitelistConfig{
			RefreshCron: getenv("WHITELIST_REFRESH_CRON", "@every 5m"),
		},

		Dispatch: DispatchConfig{
			ReactiveEnabled:    getbool("REACTIVE_DISPATCH", true),
			DuplicateWindow:    time.Duration(getint("DUPLICATE_WINDOW_SECONDS", 30)) * time.Second,
			SuppressionHorizon: getdur("SUPPRESSION_HORIZON", 24*time.Hour),
			SweepRetries:       getint("SWEEP_RETRIES", 3),
			ReactiveRetries:    getint("REACTIVE_RETRIES", 0),
			HTTPTimeout:        getdur("OUTBOUND_TIMEOUT", 5*time.Second),
			SendInitialPulse:   getbool("SEND_INITIAL_PULSE", false),
			ProbeOnStart:       getbool("PROBE_ON_START", true),
			RefreshOnStart:     getbool("REFRESH_ON_START", true),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		Auth: AuthConfig{
			Username: getenv("API_USERNAME", ""),
			Password: getenv("API_PASSWORD", ""),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "barrier-gateway"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.BarriersFile != "" {
		if err := loadBarriersFile(cfg.BarriersFile, &cfg); err != nil {
			return cfg, err
		}
	}
	// A single whitelist source may also come from the environment.
	if u := getenv("WHITELIST_URL", ""); u != "" {
		cfg.Whitelist.Sources = append(cfg.Whitelist.Sources, WhitelistSource{
			Name:     "env",
			URL:      u,
			Username: getenv("WHITELIST_USERNAME", ""),
			Password: getenv("WHITELIST_PASSWORD", ""),
		})
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	normalizeBarriers(cfg.Barriers)

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	switch cfg.DBInitMode {
	case "keep", "recreate":
	default:
		return cfg, errors.New("DB_INIT_MODE must be one of: keep, recreate")
	}
	if cfg.Dispatch.DuplicateWindow < 0 {
		return cfg, errors.New("DUPLICATE_WINDOW_SECONDS must be >= 0")
	}
	if cfg.Dispatch.SuppressionHorizon <= 0 {
		return cfg, errors.New("SUPPRESSION_HORIZON must be > 0")
	}
	if cfg.Dispatch.SweepRetries < 0 || cfg.Dispatch.ReactiveRetries < 0 {
		return cfg, errors.New("SWEEP_RETRIES and REACTIVE_RETRIES must be >= 0")
	}
	if cfg.Dispatch.HTTPTimeout <= 0 {
		return cfg, errors.New("OUTBOUND_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Whitelist.RefreshCron) == "" {
		return cfg, errors.New("WHITELIST_REFRESH_CRON must not be empty")
	}
	if err := validateBarriers(cfg.Barriers); err != nil {
		return cfg, err
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := sysutil.ParseBool(os.Getenv(k)); ok {
		return v
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

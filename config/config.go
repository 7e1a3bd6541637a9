package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Upstox credentials
	UpstoxAPIKey      string
	UpstoxAPISecret   string
	UpstoxRedirectURI string
	UpstoxTOTPSecret  string
	TokenFile         string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	DashboardAddr string

	// Upstox API endpoints and pacing
	UpstoxBaseURL  string
	InstrumentsURL string
	MaxRetries     int
	RetryDelay     time.Duration
	RateLimitDelay time.Duration
	MaxConcurrent  int

	// Indicator configuration sets, keyed by timeframe name. Overridable via
	// SUPERTREND_CONFIGS_<TF> as "name:period:multiplier:sma|hl2[:close]" CSV.
	IndicatorSets map[string][]model.IndicatorConfig

	// Flat base detection
	FlatBaseTolerance float64
	FlatBaseMinCount  int
}

// Timeframe describes one candle resolution the pipeline fetches and computes.
type Timeframe struct {
	Name        string // "125min", "daily"
	Unit        string // Upstox path segment: "minutes" or "days"
	Interval    int
	DaysHistory int
	Retention   int // latest rows kept per symbol in the signal store
}

// Timeframes returns the resolutions the pipeline runs, in fetch order.
func Timeframes() []Timeframe {
	return []Timeframe{
		{Name: "125min", Unit: "minutes", Interval: 125, DaysHistory: 90, Retention: 3},
		{Name: "daily", Unit: "days", Interval: 1, DaysHistory: 365, Retention: 3},
	}
}

// Load reads configuration from environment variables with sensible defaults.
// Credentials are required; everything else falls back.
func Load() *Config {
	c := &Config{
		UpstoxAPIKey:      mustEnv("UPSTOX_API_KEY"),
		UpstoxAPISecret:   mustEnv("UPSTOX_API_SECRET"),
		UpstoxRedirectURI: getEnv("UPSTOX_REDIRECT_URI", "http://127.0.0.1:8000/callback"),
		UpstoxTOTPSecret:  mustEnv("UPSTOX_TOTP_SECRET"),
		TokenFile:         getEnv("UPSTOX_TOKEN_FILE", "upstox_token.json"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		DashboardAddr: getEnv("DASHBOARD_ADDR", ":8081"),

		UpstoxBaseURL:  getEnv("UPSTOX_BASE_URL", "https://api.upstox.com"),
		InstrumentsURL: getEnv("UPSTOX_INSTRUMENTS_URL", "https://assets.upstox.com/market-quote/instruments/exchange/NSE.json.gz"),
		MaxRetries:     getEnvInt("UPSTOX_MAX_RETRIES", 3),
		RetryDelay:     getEnvDuration("UPSTOX_RETRY_DELAY", 2*time.Second),
		RateLimitDelay: getEnvDuration("UPSTOX_RATE_LIMIT_DELAY", 100*time.Millisecond),
		MaxConcurrent:  getEnvInt("UPSTOX_MAX_CONCURRENT", 40),

		FlatBaseTolerance: getEnvFloat("FLAT_BASE_TOLERANCE", 0.001),
		FlatBaseMinCount:  getEnvInt("FLAT_BASE_MIN_COUNT", 3),
	}

	c.IndicatorSets = map[string][]model.IndicatorConfig{
		"125min": loadIndicatorSet("SUPERTREND_CONFIGS_125MIN", default125m),
		"daily":  loadIndicatorSet("SUPERTREND_CONFIGS_DAILY", defaultDaily),
	}
	return c
}

var default125m = []model.IndicatorConfig{
	{Name: "ST_125m_sma15", ATRPeriod: 15, ATRMultiplier: 2.0, UseSMA: true},
	{Name: "ST_125m_hl2", ATRPeriod: 15, ATRMultiplier: 2.0},
}

var defaultDaily = []model.IndicatorConfig{
	{Name: "ST_daily_sma5", ATRPeriod: 5, ATRMultiplier: 2.0, UseSMA: true},
	{Name: "ST_daily_sma20", ATRPeriod: 20, ATRMultiplier: 2.0, UseSMA: true},
	{Name: "ST_daily_hl2_20", ATRPeriod: 20, ATRMultiplier: 2.0},
	{Name: "ST_daily_hl2_5", ATRPeriod: 5, ATRMultiplier: 2.0},
}

func loadIndicatorSet(key string, fallback []model.IndicatorConfig) []model.IndicatorConfig {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	configs := ParseIndicatorSpecs(raw)
	if len(configs) == 0 {
		log.Printf("[config] %s contained no valid specs, using defaults", key)
		return fallback
	}
	return configs
}

// ParseIndicatorSpecs parses a comma-separated list of indicator specs in the
// form "name:period:multiplier:sma|hl2" with an optional ":close" suffix for
// close-confirmed band breaks. Invalid entries are logged and skipped.
func ParseIndicatorSpecs(raw string) []model.IndicatorConfig {
	var configs []model.IndicatorConfig
	for _, spec := range strings.Split(raw, ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		parts := strings.Split(spec, ":")
		if len(parts) < 4 || len(parts) > 5 {
			log.Printf("[config] skipping malformed indicator spec: %q", spec)
			continue
		}
		period, err := strconv.Atoi(parts[1])
		if err != nil || period <= 0 {
			log.Printf("[config] skipping indicator spec with bad period: %q", spec)
			continue
		}
		mult, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || mult <= 0 {
			log.Printf("[config] skipping indicator spec with bad multiplier: %q", spec)
			continue
		}
		var useSMA bool
		switch parts[3] {
		case "sma":
			useSMA = true
		case "hl2":
		default:
			log.Printf("[config] skipping indicator spec with unknown source %q: %q", parts[3], spec)
			continue
		}
		cfg := model.IndicatorConfig{
			Name:          parts[0],
			ATRPeriod:     period,
			ATRMultiplier: mult,
			UseSMA:        useSMA,
		}
		if len(parts) == 5 {
			if parts[4] != "close" {
				log.Printf("[config] skipping indicator spec with unknown flag %q: %q", parts[4], spec)
				continue
			}
			cfg.CloseConfirm = true
		}
		configs = append(configs, cfg)
	}
	return configs
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}

// Package config loads the copilot's configuration from the environment
// and optional .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration, built once at start-up.
type Config struct {
	Keys       KeysConfig
	Breaker    BreakerConfig
	Cache      CacheConfig
	Timeouts   TimeoutConfig
	Prediction PredictionConfig
	Staking    StakingConfig
	League     LeagueConfig
	AI         AIConfig
	Server     ServerConfig
	LogLevel   string
}

// KeysConfig holds upstream credentials. Empty keys disable a provider.
type KeysConfig struct {
	OddsAPI      string
	APIFootball  string
	FootballData string
	TheSportsDB  string // defaults to the public key "3"
	Gemini       string
	Blackbox     string
	Anthropic    string
	OpenRouter   string
	DeepSeek     string
}

// BreakerConfig holds per-provider circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// CacheConfig holds the stats cache settings. An empty RedisURL uses an
// in-process cache.
type CacheConfig struct {
	RedisURL string
	StatsTTL time.Duration
}

// TimeoutConfig holds per-call provider timeouts.
type TimeoutConfig struct {
	Default time.Duration
	AI      time.Duration
	Stats   time.Duration
	Odds    time.Duration
}

// PredictionConfig tunes the Poisson model.
type PredictionConfig struct {
	MaxGoals          int
	HomeAdvantage     float64
	MatchesToConsider int
}

// StakingConfig tunes Kelly sizing and odds synthesis.
type StakingConfig struct {
	KellyFraction   float64
	MaxStakePct     float64
	MinEV           float64
	BookmakerMargin float64
	Bankroll        float64
}

// LeagueConfig is the default competition for requests that name none.
type LeagueConfig struct {
	Name   string
	ID     int
	Season int
}

// AIConfig names the model presets used as analysts.
type AIConfig struct {
	Primary   string
	Secondary string
	// Collaborative runs both analysts and merges them; otherwise they are
	// tried in order.
	Collaborative bool
}

// ServerConfig holds daemon settings.
type ServerConfig struct {
	Addr          string
	Watch         []string
	WatchInterval time.Duration
	MaxConcurrent int
}

// Load reads the given .env files (default ".env"), then the environment,
// and validates the result. Missing .env files are not an error.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	cfg := &Config{
		Keys: KeysConfig{
			OddsAPI:      os.Getenv("ODDS_API_KEY"),
			APIFootball:  os.Getenv("API_FOOTBALL_KEY"),
			FootballData: os.Getenv("FOOTBALL_DATA_KEY"),
			TheSportsDB:  lookupEnvOrDefault("THESPORTSDB_API_KEY", "3"),
			Gemini:       os.Getenv("GEMINI_API_KEY"),
			Blackbox:     os.Getenv("BLACKBOX_API_KEY"),
			Anthropic:    os.Getenv("ANTHROPIC_API_KEY"),
			OpenRouter:   os.Getenv("OPENROUTER_API_KEY"),
			DeepSeek:     os.Getenv("DEEPSEEK_API_KEY"),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvIntOrDefault("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 3),
			SuccessThreshold: getEnvIntOrDefault("CIRCUIT_BREAKER_SUCCESS_THRESHOLD", 1),
			Timeout:          getEnvDurationOrDefault("CIRCUIT_BREAKER_TIMEOUT", 60*time.Second),
		},
		Cache: CacheConfig{
			RedisURL: getEnvOrDefault("REDIS_URL", ""),
			StatsTTL: getEnvDurationOrDefault("CACHE_TTL_HISTORICAL", 24*time.Hour),
		},
		Timeouts: TimeoutConfig{
			Default: getEnvDurationOrDefault("PROVIDER_TIMEOUT", 30*time.Second),
			AI:      getEnvDurationOrDefault("AI_TIMEOUT", 30*time.Second),
			Stats:   getEnvDurationOrDefault("STATS_TIMEOUT", 15*time.Second),
			Odds:    getEnvDurationOrDefault("ODDS_TIMEOUT", 10*time.Second),
		},
		Prediction: PredictionConfig{
			MaxGoals:          getEnvIntOrDefault("POISSON_MAX_GOALS", 8),
			HomeAdvantage:     getEnvFloatOrDefault("HOME_ADVANTAGE", 1.1),
			MatchesToConsider: getEnvIntOrDefault("MATCHES_TO_CONSIDER", 5),
		},
		Staking: StakingConfig{
			KellyFraction:   getEnvFloatOrDefault("KELLY_FRACTION", 0.25),
			MaxStakePct:     getEnvFloatOrDefault("MAX_STAKE_PERCENTAGE", 5.0),
			MinEV:           getEnvFloatOrDefault("MIN_EV_THRESHOLD", 0.05),
			BookmakerMargin: getEnvFloatOrDefault("BOOKMAKER_MARGIN", 0.08),
			Bankroll:        getEnvFloatOrDefault("BANKROLL", 0),
		},
		League: LeagueConfig{
			Name:   getEnvOrDefault("LEAGUE", "Premier League"),
			ID:     getEnvIntOrDefault("LEAGUE_ID", 39),
			Season: getEnvIntOrDefault("SEASON", 2024),
		},
		AI: AIConfig{
			Primary:       getEnvOrDefault("AI_PRIMARY", "primary"),
			Secondary:     getEnvOrDefault("AI_SECONDARY", "secondary"),
			Collaborative: getEnvBoolOrDefault("AI_COLLABORATIVE", true),
		},
		Server: ServerConfig{
			Addr:          getEnvOrDefault("HTTP_ADDR", ":8080"),
			Watch:         splitList(os.Getenv("WATCH_FIXTURES")),
			WatchInterval: getEnvDurationOrDefault("WATCH_INTERVAL", 15*time.Minute),
			MaxConcurrent: getEnvIntOrDefault("MAX_CONCURRENT_REQUESTS", 3),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out-of-range settings.
func (c *Config) Validate() error {
	switch {
	case c.Breaker.FailureThreshold <= 0 || c.Breaker.SuccessThreshold <= 0:
		return fmt.Errorf("%w: breaker thresholds must be positive", ErrInvalidConfig)
	case c.Breaker.Timeout <= 0:
		return fmt.Errorf("%w: breaker timeout must be positive", ErrInvalidConfig)
	case !finite(c.Staking.KellyFraction, c.Staking.MaxStakePct, c.Staking.MinEV,
		c.Staking.BookmakerMargin, c.Staking.Bankroll, c.Prediction.HomeAdvantage):
		return fmt.Errorf("%w: staking and prediction settings must be finite numbers", ErrInvalidConfig)
	case c.Staking.KellyFraction <= 0 || c.Staking.KellyFraction > 1:
		return fmt.Errorf("%w: kelly fraction %.2f outside (0, 1]", ErrInvalidConfig, c.Staking.KellyFraction)
	case c.Staking.MaxStakePct <= 0 || c.Staking.MaxStakePct > 100:
		return fmt.Errorf("%w: max stake %.2f%% outside (0, 100]", ErrInvalidConfig, c.Staking.MaxStakePct)
	case c.Staking.BookmakerMargin < 0 || c.Staking.BookmakerMargin >= 1:
		return fmt.Errorf("%w: bookmaker margin %.2f outside [0, 1)", ErrInvalidConfig, c.Staking.BookmakerMargin)
	case c.Staking.Bankroll < 0:
		return fmt.Errorf("%w: bankroll must not be negative", ErrInvalidConfig)
	case c.Prediction.MaxGoals < 1 || c.Prediction.HomeAdvantage <= 0:
		return fmt.Errorf("%w: prediction settings must be positive", ErrInvalidConfig)
	case c.Server.Addr == "":
		return fmt.Errorf("%w: HTTP_ADDR is required", ErrInvalidConfig)
	case c.Server.MaxConcurrent <= 0:
		return fmt.Errorf("%w: MAX_CONCURRENT_REQUESTS must be positive", ErrInvalidConfig)
	}
	return nil
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// LLMKeys maps LLM provider names to their API keys.
func (c *Config) LLMKeys() map[string]string {
	return map[string]string{
		"gemini":     c.Keys.Gemini,
		"blackbox":   c.Keys.Blackbox,
		"anthropic":  c.Keys.Anthropic,
		"openrouter": c.Keys.OpenRouter,
		"deepseek":   c.Keys.DeepSeek,
	}
}

// Fixture is a "Home v Away" watch list entry.
type Fixture struct {
	Home string `json:"home"`
	Away string `json:"away"`
}

// ParseFixture splits "Home v Away" (also "vs" or "-").
func ParseFixture(s string) (Fixture, bool) {
	for _, sep := range []string{" vs ", " v ", " - "} {
		if i := strings.Index(strings.ToLower(s), sep); i > 0 {
			home := strings.TrimSpace(s[:i])
			away := strings.TrimSpace(s[i+len(sep):])
			if home != "" && away != "" {
				return Fixture{Home: home, Away: away}, true
			}
		}
	}
	return Fixture{}, false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnvOrDefault is getEnvOrDefault except that a variable set to
// the empty string is kept.
func lookupEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

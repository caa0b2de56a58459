package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/patrickwarner/openslot/internal/planner"
	"github.com/patrickwarner/openslot/internal/solver"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string

	// Origins allowed to call the HTTP API from a browser
	CORSAllowOrigins []string

	RedisAddr     string
	ClickHouseDSN string
	PostgresDSN   string

	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64

	// Planning configuration
	Timezone            string
	Tiers               string
	ChunkSize           int
	PenaltyRate         float64
	RateScale           int
	AllowIdleChunks     bool
	SolverTimeLimit     time.Duration
	SolverSolutionLimit int

	ForecastCacheTTL time.Duration
	PlanRateLimit    float64
	PlanRateBurst    int
	LedgerLockTTL    time.Duration
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	// planning calls may run up to the solver time limit
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 60*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "openslot")
	cfg.CORSAllowOrigins = envList("CORS_ALLOW_ORIGINS", []string{"*"})

	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	cfg.Timezone = getenv("PLAN_TIMEZONE", planner.DefaultTimezone)
	cfg.Tiers = getenv("PLAN_TIERS", "")
	cfg.ChunkSize = envInt("PLAN_CHUNK_SIZE", planner.DefaultChunkSize)
	cfg.PenaltyRate = envFloat("PLAN_PENALTY_RATE", planner.DefaultPenaltyRate)
	cfg.RateScale = envInt("PLAN_RATE_SCALE", planner.DefaultRateScale)
	cfg.AllowIdleChunks = envBool("PLAN_ALLOW_IDLE_CHUNKS", false)
	cfg.SolverTimeLimit = envDuration("SOLVER_TIME_LIMIT", 10*time.Second)
	cfg.SolverSolutionLimit = envInt("SOLVER_SOLUTION_LIMIT", 0)

	cfg.ForecastCacheTTL = envDuration("FORECAST_CACHE_TTL", 15*time.Minute)
	cfg.PlanRateLimit = envFloat("PLAN_RATE_LIMIT", 2)
	cfg.PlanRateBurst = envInt("PLAN_RATE_BURST", 4)
	cfg.LedgerLockTTL = envDuration("LEDGER_LOCK_TTL", 30*time.Second)

	return cfg
}

// PlannerOptions converts the planning settings into planner.Options.
func (c Config) PlannerOptions() (planner.Options, error) {
	opts := planner.DefaultOptions()

	if c.Tiers != "" {
		values, err := parseTiers(c.Tiers)
		if err != nil {
			return opts, err
		}
		tiers, err := planner.NewTiers(values)
		if err != nil {
			return opts, fmt.Errorf("PLAN_TIERS: %w", err)
		}
		opts.Tiers = tiers
	}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return opts, fmt.Errorf("PLAN_TIMEZONE: %w", err)
		}
		opts.Location = loc
	}

	opts.ChunkSize = c.ChunkSize
	opts.PenaltyRate = c.PenaltyRate
	opts.RateScale = c.RateScale
	opts.AllowIdleChunks = c.AllowIdleChunks
	opts.Budget = solver.Params{TimeLimit: c.SolverTimeLimit, SolutionLimit: c.SolverSolutionLimit}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// parseTiers parses a comma separated list of tier values.
func parseTiers(raw string) ([]int, error) {
	var values []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("PLAN_TIERS: invalid tier %q: %w", part, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// envList parses a comma separated environment variable, dropping empty
// entries. When unset or empty, def is returned.
func envList(key string, def []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

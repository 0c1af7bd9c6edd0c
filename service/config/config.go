package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/brojonat/lendscan/service/reserves"
)

// Defaults for the Solend main market.
const (
	DefaultRPCURL        = "https://api.mainnet-beta.solana.com"
	DefaultProgramID     = "So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo"
	DefaultLendingMarket = "4UpD2fh7xH3VP9QQaXtsS1YY3bxzWhtfpks7FatyKvdY"
	DefaultTaskQueue     = "lendscan-market-scans"
	DefaultRPCTimeout    = 120 * time.Second
)

// Config holds all application configuration loaded from environment variables.
// All fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	MetricsAddr string
	LogLevel    string

	// Solana configuration
	SolanaRPCURLs []string
	RPCTimeout    time.Duration
	ProgramID     solana.PublicKey
	LendingMarket solana.PublicKey

	// Scan configuration
	ReserveTablePath string
	DecodeWorkers    int
	ScanInterval     time.Duration
	LedgerCacheTTL   time.Duration

	// NATS configuration; empty disables publishing.
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// Load reads configuration from environment variables and validates all fields.
// Every problem is reported, not just the first.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.SolanaRPCURLs = parseList(getEnvOrDefault("SOLANA_RPC_URLS", DefaultRPCURL))
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS must list at least one endpoint"))
	}

	timeout, err := parseDuration("RPC_TIMEOUT", DefaultRPCTimeout.String())
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCTimeout = timeout
	}

	programID, err := parsePublicKey("LENDING_PROGRAM_ID", DefaultProgramID)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ProgramID = programID
	}

	market, err := parsePublicKey("LENDING_MARKET", DefaultLendingMarket)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.LendingMarket = market
	}

	cfg.ReserveTablePath = os.Getenv("RESERVE_TABLE_PATH")

	workers, err := parseInt("DECODE_WORKERS", 4)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DecodeWorkers = workers
	}

	interval, err := parseDuration("SCAN_INTERVAL", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ScanInterval = interval
	}

	cacheTTL, err := parseDuration("LEDGER_CACHE_TTL", "5m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.LedgerCacheTTL = cacheTTL
	}

	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", DefaultTaskQueue)

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("configuration validation failed: %v", errs)
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs is required"))
	}
	for _, u := range c.SolanaRPCURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			errs = append(errs, fmt.Errorf("RPC URL %q must be http(s)", u))
		}
	}
	if c.ProgramID.IsZero() {
		errs = append(errs, fmt.Errorf("ProgramID is required"))
	}
	if c.LendingMarket.IsZero() {
		errs = append(errs, fmt.Errorf("LendingMarket is required"))
	}
	if c.RPCTimeout < time.Second {
		errs = append(errs, fmt.Errorf("RPCTimeout must be at least 1 second"))
	}
	if c.DecodeWorkers < 1 || c.DecodeWorkers > 256 {
		errs = append(errs, fmt.Errorf("DecodeWorkers must be between 1 and 256, got %d", c.DecodeWorkers))
	}
	if c.ScanInterval < time.Minute {
		errs = append(errs, fmt.Errorf("ScanInterval must be at least 1 minute"))
	}
	if c.LedgerCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("LedgerCacheTTL cannot be negative"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}
	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}
	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// ReserveTable loads the table at ReserveTablePath, or the built-in Solend
// table when no path is configured.
func (c *Config) ReserveTable() (*reserves.Table, error) {
	if c.ReserveTablePath == "" {
		return reserves.DefaultTable(), nil
	}
	return reserves.LoadFile(c.ReserveTablePath)
}

// ParseLogLevel maps a LOG_LEVEL value to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: unknown level %q", s)
	}
}

// NewLogger creates the JSON logger on stderr used by every binary.
func NewLogger(levelStr string) *slog.Logger {
	level, _ := ParseLogLevel(levelStr)
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parsePublicKey(key, defaultValue string) (solana.PublicKey, error) {
	value := getEnvOrDefault(key, defaultValue)
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: invalid public key %q: %w", key, value, err)
	}
	return pk, nil
}

// parseList splits a comma separated list, dropping blanks.
func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr       = ":8080"
	defaultHistoryDB        = "multidb.db"
	defaultTargetsFile      = "targets.yaml"
	defaultMaxRecords       = 1000
	defaultMaxAge           = time.Hour
	defaultSweepInterval    = time.Minute
	defaultLeakCeiling      = 30 * time.Minute
	defaultTimeout          = 5 * time.Minute
	defaultMaxTimeout       = 30 * time.Minute
	defaultStatementTimeout = 5 * time.Minute
	defaultAcquireTimeout   = 10 * time.Second
	defaultMaxRows          = 1000

	envListenAddr       = "MULTIDB_LISTEN_ADDR"
	envHistoryDB        = "MULTIDB_HISTORY_DB"
	envLogLevel         = "MULTIDB_LOG_LEVEL"
	envTargetsFile      = "MULTIDB_TARGETS_FILE"
	envMaxRecords       = "MULTIDB_MAX_RECORDS"
	envMaxAge           = "MULTIDB_MAX_AGE"
	envSweepInterval    = "MULTIDB_SWEEP_INTERVAL"
	envLeakCeiling      = "MULTIDB_LEAK_CEILING"
	envDefaultTimeout   = "MULTIDB_DEFAULT_TIMEOUT"
	envMaxTimeout       = "MULTIDB_MAX_TIMEOUT"
	envStatementTimeout = "MULTIDB_STATEMENT_TIMEOUT"
	envAcquireTimeout   = "MULTIDB_ACQUIRE_TIMEOUT"
	envMaxRows          = "MULTIDB_MAX_ROWS"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr  string
	HistoryDB   string
	LogLevel    slog.Level
	TargetsFile string

	// Execution record retention.
	MaxRecords    int
	MaxAge        time.Duration
	SweepInterval time.Duration
	LeakCeiling   time.Duration

	// Timeouts.
	DefaultTimeout   time.Duration
	MaxTimeout       time.Duration
	StatementTimeout time.Duration
	AcquireTimeout   time.Duration

	MaxRows int
}

// Load reads configuration from environment variables with sensible defaults.
// Values that fail to parse keep their default.
func Load() Config {
	cfg := Config{
		ListenAddr:       defaultListenAddr,
		HistoryDB:        defaultHistoryDB,
		LogLevel:         slog.LevelInfo,
		TargetsFile:      defaultTargetsFile,
		MaxRecords:       defaultMaxRecords,
		MaxAge:           defaultMaxAge,
		SweepInterval:    defaultSweepInterval,
		LeakCeiling:      defaultLeakCeiling,
		DefaultTimeout:   defaultTimeout,
		MaxTimeout:       defaultMaxTimeout,
		StatementTimeout: defaultStatementTimeout,
		AcquireTimeout:   defaultAcquireTimeout,
		MaxRows:          defaultMaxRows,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envHistoryDB); v != "" {
		cfg.HistoryDB = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envTargetsFile); v != "" {
		cfg.TargetsFile = v
	}

	cfg.MaxRecords = envInt(envMaxRecords, cfg.MaxRecords)
	cfg.MaxRows = envInt(envMaxRows, cfg.MaxRows)

	cfg.MaxAge = envDuration(envMaxAge, cfg.MaxAge)
	cfg.SweepInterval = envDuration(envSweepInterval, cfg.SweepInterval)
	cfg.LeakCeiling = envDuration(envLeakCeiling, cfg.LeakCeiling)
	cfg.DefaultTimeout = envDuration(envDefaultTimeout, cfg.DefaultTimeout)
	cfg.MaxTimeout = envDuration(envMaxTimeout, cfg.MaxTimeout)
	cfg.StatementTimeout = envDuration(envStatementTimeout, cfg.StatementTimeout)
	cfg.AcquireTimeout = envDuration(envAcquireTimeout, cfg.AcquireTimeout)

	if cfg.DefaultTimeout > cfg.MaxTimeout {
		cfg.DefaultTimeout = cfg.MaxTimeout
	}

	return cfg
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

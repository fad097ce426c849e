package common

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// SetupLogger installs a JSON logger on stdout as the default. The level
// is Info unless DEVELOPMENT_MODE is true.
func SetupLogger() {
	var programLevel = new(slog.LevelVar) // Info by default
	isDev, err := strconv.ParseBool(os.Getenv("DEVELOPMENT_MODE"))
	if err == nil && isDev {
		programLevel.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: programLevel}))
	slog.SetDefault(logger)
}

// EnvInt64 reads an integer variable, falling back to def when unset or
// unparsable.
func EnvInt64(key string, def int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return def
	}
	return v
}

// EnvDuration reads a duration such as "30s", falling back to def.
func EnvDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

// EnvString reads a variable, falling back to def when empty.
func EnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

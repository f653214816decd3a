// Package config provides configuration for the scriptkv CLI.
package config

import (
	"os"
)

// Config holds the runtime configuration for the scriptkv binary.
type Config struct {
	// Backend selects which Executable backend runs compiled scripts:
	// "memory" (internal/memexec, no server needed), "redis" (real Redis
	// via internal/luascript, EVAL/EVALSHA), or "mock" (luascript.Backend
	// bound to mockconn, for exercising the Lua text path with no server).
	Backend string

	// Redis server address, used only when Backend is "redis".
	RedisAddr string

	// Redis authentication password (optional).
	RedisPassword string

	// KeyPrefix is applied to every key a script touches, letting several
	// scriptkv instances share one Redis database without colliding.
	KeyPrefix string

	// Metrics server address.
	MetricsAddr string

	// Debug mode
	Debug bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Backend:       getEnv("SCRIPTKV_BACKEND", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", ":6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		KeyPrefix:     getEnv("SCRIPTKV_KEY_PREFIX", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		Debug:         getEnv("DEBUG", "") == "1",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}


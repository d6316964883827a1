// Package config provides configuration for the spike chat server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	Port            int
	CORSOrigins     []string
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
	SendBuffer     int

	// Relay settings
	MaxInFlightWrites int64
	PersistTimeout    time.Duration
	JoinPolicyFile    string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:              getEnvInt("PORT", 3000),
		CORSOrigins:       getEnvList("CORS_ORIGINS", []string{"*"}),
		ShutdownTimeout:   time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_MS", 10000)) * time.Millisecond,
		DatabaseURL:       getEnv("DATABASE_URL", "file:spike.db?cache=shared&mode=rwc&_busy_timeout=5000&_journal_mode=WAL"),
		PingInterval:      time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:      time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:       time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize:    int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		SendBuffer:        getEnvInt("WS_SEND_BUFFER", 256),
		MaxInFlightWrites: int64(getEnvInt("MAX_INFLIGHT_WRITES", 64)),
		PersistTimeout:    time.Duration(getEnvInt("PERSIST_TIMEOUT_MS", 5000)) * time.Millisecond,
		JoinPolicyFile:    getEnv("JOIN_POLICY_FILE", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "console"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, entry := range strings.Split(val, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

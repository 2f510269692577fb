package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	LogLevel       zerolog.Level
	Redis          RedisConfig
	Peer           PeerConfig
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Enabled reports whether a Redis room directory was configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// PeerConfig holds the settings of a broadcaster or viewer process.
type PeerConfig struct {
	SignalURL          string
	ICEServers         []string
	NegotiationTimeout time.Duration
}

var defaultICEServers = "stun:stun.l.google.com:19302,stun:stun.services.mozilla.com"

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := splitList(originsStr)

	return &Config{
		Port:           getEnv("PORT", "3000"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		LogLevel:       getLevel("LOG_LEVEL", zerolog.InfoLevel),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Peer: PeerConfig{
			SignalURL:          getEnv("SIGNAL_URL", "ws://localhost:3000/ws"),
			ICEServers:         splitList(getEnv("ICE_SERVERS", defaultICEServers)),
			NegotiationTimeout: getDuration("NEGOTIATION_TIMEOUT", 30*time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getLevel(key string, defaultValue zerolog.Level) zerolog.Level {
	lvl, err := zerolog.ParseLevel(os.Getenv(key))
	if err != nil || os.Getenv(key) == "" {
		return defaultValue
	}
	return lvl
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Session store
	SessionBackend string // "memory" or "redis"
	SessionTTL     time.Duration
	ReaperInterval time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool

	// Turn dispatcher
	WorkerCount  int
	QueueBuffer  int
	TurnTimeout  time.Duration

	// Scoring collaborators
	FraudScorerURL       string
	UnderwritingScorerURL string
	ScoringTimeout       time.Duration

	// Document collaborator
	DocumentServiceURL string
	DocumentTimeout    time.Duration

	// Policy thresholds
	FraudFlagThreshold    float64
	RiskRejectThreshold   float64
	NegotiationStep       float64
	MaxNegotiationRounds  int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SessionBackend: strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		ReaperInterval: getEnvAsDuration("SESSION_REAPER_INTERVAL", 5*time.Minute),
		RedisAddr:      getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),

		WorkerCount: getEnvAsInt("WORKER_COUNT", 2),
		QueueBuffer: getEnvAsInt("QUEUE_BUFFER", 128),
		TurnTimeout: getEnvAsDuration("TURN_TIMEOUT", 30*time.Second),

		FraudScorerURL:        getEnv("FRAUD_SCORER_URL", "http://localhost:9101"),
		UnderwritingScorerURL: getEnv("UNDERWRITING_SCORER_URL", "http://localhost:9102"),
		ScoringTimeout:        getEnvAsDuration("SCORING_TIMEOUT", 10*time.Second),

		DocumentServiceURL: getEnv("DOCUMENT_SERVICE_URL", "http://localhost:9103"),
		DocumentTimeout:    getEnvAsDuration("DOCUMENT_TIMEOUT", 15*time.Second),

		FraudFlagThreshold:   getEnvAsFloat("FRAUD_FLAG_THRESHOLD", 0.7),
		RiskRejectThreshold:  getEnvAsFloat("RISK_REJECT_THRESHOLD", 0.8),
		NegotiationStep:      getEnvAsFloat("NEGOTIATION_STEP", 0.5),
		MaxNegotiationRounds: getEnvAsInt("MAX_NEGOTIATION_ROUNDS", 2),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

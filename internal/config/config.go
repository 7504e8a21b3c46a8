package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Anthropic
	// AnthropicAPIKeyが空の場合、エージェントは初期化されず
	// 問い合わせ系エンドポイントは503を返す（デグレード運転）。
	AnthropicAPIKey    string
	AnthropicBaseURL   string
	AnthropicModel     string
	AnthropicMaxTokens int

	// Agent
	AgentMaxIterations int
	AgentTimeout       time.Duration

	// Provider rules
	ProvidersDir string

	// Session
	SessionTTL time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitQuery   int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.AnthropicBaseURL = getEnvString("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1")
	cfg.AnthropicModel = getEnvString("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022")
	cfg.AnthropicMaxTokens = getEnvInt("ANTHROPIC_MAX_TOKENS", 1024)
	cfg.AgentMaxIterations = getEnvInt("AGENT_MAX_ITERATIONS", 15)
	cfg.AgentTimeout = getEnvDuration("AGENT_TIMEOUT", 60*time.Second)
	cfg.ProvidersDir = getEnvString("PROVIDERS_DIR", "data/providers")
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitQuery = getEnvInt("RATE_LIMIT_QUERY", 20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

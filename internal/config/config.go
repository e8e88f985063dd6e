package config

import (
	"strconv"
	"strings"

	"github.com/akashmahlaz/rockreach-sub000/pkg/config"
)

// Config stores environment configuration for the RockReach API service.
type Config struct {
	Port               string
	MongoURL           string
	MongoDatabase      string
	RedisURL           string
	PublicURL          string
	ProviderName       string
	LLMProvider        string
	LLMModel           string
	LLMAPIKey          string
	LLMAPIURL          string
	LLMMaxTokens       int
	ChatRateLimitHour  int
	RateLimitOverrides map[string]int
	SMTPHost           string
	SMTPPort           string
	SMTPUser           string
	SMTPPassword       string
	SMTPFrom           string
	SMTPFromName       string
}

// LoadConfig loads the service configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:               config.GetEnv("PORT", "18080"),
		MongoURL:           config.RequireEnv("MONGO_URL"),
		MongoDatabase:      config.GetEnv("MONGO_DATABASE", "rockreach"),
		RedisURL:           config.GetEnv("REDIS_URL", ""),
		PublicURL:          config.GetEnv("PUBLIC_URL", "http://localhost:18080"),
		ProviderName:       config.GetEnv("DATA_PROVIDER", "rocketreach"),
		LLMProvider:        config.GetEnv("LLM_PROVIDER", "openai"),
		LLMModel:           config.GetEnv("LLM_MODEL", ""),
		LLMAPIKey:          config.GetEnv("LLM_API_KEY", ""),
		LLMAPIURL:          config.GetEnv("LLM_API_URL", ""),
		LLMMaxTokens:       config.GetEnvInt("LLM_MAX_TOKENS", 4096),
		ChatRateLimitHour:  config.GetEnvInt("CHAT_RATE_LIMIT_HOUR", 60),
		RateLimitOverrides: parseRateLimitOverrides(config.GetEnv("CHAT_RATE_LIMIT_OVERRIDES", "")),
		SMTPHost:           config.GetEnv("SMTP_HOST", ""),
		SMTPPort:           config.GetEnv("SMTP_PORT", "587"),
		SMTPUser:           config.GetEnv("SMTP_USER", ""),
		SMTPPassword:       config.GetEnv("SMTP_PASSWORD", ""),
		SMTPFrom:           config.GetEnv("SMTP_FROM", ""),
		SMTPFromName:       config.GetEnv("SMTP_FROM_NAME", "RockReach"),
	}
}

// parseRateLimitOverrides parses "tenant-a:100,tenant-b:10" style overrides.
func parseRateLimitOverrides(raw string) map[string]int {
	overrides := map[string]int{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return overrides
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 2 {
			continue
		}
		tenantID := strings.TrimSpace(parts[0])
		if tenantID == "" {
			continue
		}
		limit, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || limit < 0 {
			continue
		}
		overrides[tenantID] = limit
	}
	return overrides
}

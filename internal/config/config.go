package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"redtape.au/redtape/internal/core"
)

type Config struct {
	GeminiAPIKey     string
	ABNLookupGUID    string
	ABNLookupURL     string
	HTTPPort         string
	LogLevel         string
	SessionJWTSecret string
}

// Load reads .env (if present) and the environment. Missing upstream secrets
// are warnings, not fatal: the affected routes degrade to the documented
// misconfiguration error so the rest of the service stays up.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		ABNLookupGUID:    getEnv("ABN_LOOKUP_GUID", ""),
		ABNLookupURL:     getEnv("ABN_LOOKUP_URL", core.DefaultABNLookupURL),
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		SessionJWTSecret: getEnv("SESSION_JWT_SECRET", ""),
	}

	if cfg.GeminiAPIKey == "" {
		log.Println("Warning: GEMINI_API_KEY is not set; the chat route will report misconfiguration")
	}
	if cfg.ABNLookupGUID == "" {
		log.Println("Warning: ABN_LOOKUP_GUID is not set; the ABN route will report misconfiguration")
	}
	if cfg.SessionJWTSecret == "" {
		log.Println("Warning: SESSION_JWT_SECRET is not set; session routes will report misconfiguration")
	}

	return cfg
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

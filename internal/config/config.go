package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Discord
	DiscordToken string

	// Gemini settings
	GenAIAPIKey string
	GenAIModel  string

	// wit.ai speech recognition
	WitAPIKey   string
	WitEndpoint string

	// Capture settings
	RecordPath string

	// History ingestion
	HistoryLimit int

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file found, using environment variables only")
	}

	cfg := &Config{
		// Discord
		DiscordToken: os.Getenv("DISCORD_TOKEN"),

		// Gemini
		GenAIAPIKey: os.Getenv("GENAI_API_KEY"),
		GenAIModel:  getEnvOrDefault("GENAI_MODEL", "gemini-pro"),

		// wit.ai
		WitAPIKey:   os.Getenv("WIT_API_KEY"),
		WitEndpoint: getEnvOrDefault("WIT_ENDPOINT", "https://api.wit.ai/dictation"),

		// Capture
		RecordPath: getEnvOrDefault("RECORD_PATH", "recording.wav"),

		// History
		HistoryLimit: getIntEnvOrDefault("HISTORY_LIMIT", 1000),

		// Logging
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}

	if c.GenAIAPIKey == "" {
		return fmt.Errorf("GENAI_API_KEY is required")
	}

	if c.WitAPIKey == "" {
		return fmt.Errorf("WIT_API_KEY is required")
	}

	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

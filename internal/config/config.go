package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// The default endpoint accepts top_k, min_p, enable_thinking and
// thinking_budget, and reports usage in the final stream frame.
const (
	DefaultBaseURL   = "https://api.siliconflow.cn/v1"
	DefaultModelName = "Qwen/Qwen3-8B"
	DefaultMaxTokens = 1024
	DefaultLogFile   = "mission-console.log"
)

// Settings are the model request parameters. MinP and Stop are only sent
// when set; thinking fields only when EnableThinking is true.
type Settings struct {
	APIKey           string
	BaseURL          string
	Model            string
	MaxTokens        int
	EnableThinking   bool
	ThinkingBudget   int
	Temperature      float64
	TopP             float64
	TopK             int
	MinP             *float64
	FrequencyPenalty float64
	Stop             []string
}

type Config struct {
	Environment string
	LogLevel    slog.Level
	LogFile     string
	Port        string // spectator API listen port
	RedisURL    string // optional for the console; enables run persistence and event broadcast
	DataDir     string
	Mission     string // mission file name under DataDir/missions; empty for the default
	Settings    Settings
}

// Load reads configuration from the environment. A missing API key is not
// an error here; the chat session reports it when a message is sent.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		LogFile:     getEnv("LOG_FILE", DefaultLogFile),
		Port:        getEnv("PORT", "8080"),
		RedisURL:    os.Getenv("REDIS_URL"),
		DataDir:     getEnv("DATA_DIR", "./data"),
		Mission:     os.Getenv("MISSION"),
		Settings: Settings{
			APIKey:  os.Getenv("LLM_API_KEY"),
			BaseURL: strings.TrimRight(getEnv("LLM_BASE_URL", DefaultBaseURL), "/"),
			Model:   getEnv("MODEL_NAME", DefaultModelName),
		},
	}

	var err error
	s := &cfg.Settings
	if s.MaxTokens, err = getEnvInt("MAX_TOKENS", DefaultMaxTokens); err != nil {
		return nil, err
	}
	if s.EnableThinking, err = getEnvBool("ENABLE_THINKING", false); err != nil {
		return nil, err
	}
	if s.ThinkingBudget, err = getEnvInt("THINKING_BUDGET", 2048); err != nil {
		return nil, err
	}
	if s.Temperature, err = getEnvFloat("TEMPERATURE", 0.7); err != nil {
		return nil, err
	}
	if s.TopP, err = getEnvFloat("TOP_P", 0.9); err != nil {
		return nil, err
	}
	if s.TopK, err = getEnvInt("TOP_K", 50); err != nil {
		return nil, err
	}
	if s.FrequencyPenalty, err = getEnvFloat("FREQUENCY_PENALTY", 0); err != nil {
		return nil, err
	}
	if v := os.Getenv("MIN_P"); v != "" {
		minP, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MIN_P %q: %w", v, err)
		}
		s.MinP = &minP
	}
	s.Stop = parseList(os.Getenv("STOP"))

	return cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

// parseList splits a comma separated value, dropping empty entries.
func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

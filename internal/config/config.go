package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration, sourced from environment
// variables with sensible defaults.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: API endpoint URL (default: https://api.openai.com/v1)
// - LLM_MODEL: Model name to use (default: gpt-4o-mini)
// - LLM_TIMEOUT: Request timeout in seconds (default: 120)
// - LLM_MAX_CONCURRENT: Global cap on concurrent LLM calls (default: 6)
//
// Pipeline Configuration:
// - PIPELINE_RUNNERS: Parallel task runners (default: 2)
// - PIPELINE_WORKERS: Segment workers per task (default: 3)
// - SEGMENT_MAX_CHARS: Character budget per segment (default: 1500)
// - SEGMENT_MAX_ENTRIES: Entry budget per segment (default: 40)
// - MAX_RETRIES: Translation attempts per segment (default: 3)
// - RETRY_BACKOFF_SECONDS: Base backoff between attempts (default: 1)
// - TARGET_LANGUAGE: BCP 47 tag of the output language (default: zh-TW)
//
// Supervision:
// - HEARTBEAT_INTERVAL_SECONDS: Liveness stamp interval (default: 10)
// - STALL_THRESHOLD_SECONDS: Silence before a task is failed (default: 120)
// - STALL_SCAN_INTERVAL_SECONDS: Supervisor scan interval (default: 15)
//
// System Configuration:
// - DB_PATH: SQLite database location (default: ./data/subweave.db)
// - HTTP_ADDR: Listen address (default: :8080)
// - LOG_LEVEL: debug, info, warn or error (default: info)

type Config struct {
	LLM        LLMConfig        `json:"llm"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Supervisor SupervisorConfig `json:"supervisor"`
	System     SystemConfig     `json:"system"`
}

// LLMConfig holds the configuration for the translation transport.
type LLMConfig struct {
	APIKey        string `json:"api_key"`
	APIURL        string `json:"api_url"`
	Model         string `json:"model"`
	Timeout       int    `json:"timeout"`
	MaxConcurrent int64  `json:"max_concurrent"`
}

// PipelineConfig tunes segmentation and the translation workers.
type PipelineConfig struct {
	Runners             int    `json:"runners"`
	Workers             int    `json:"workers"`
	SegmentMaxChars     int    `json:"segment_max_chars"`
	SegmentMaxEntries   int    `json:"segment_max_entries"`
	MaxRetries          int    `json:"max_retries"`
	RetryBackoffSeconds int    `json:"retry_backoff_seconds"`
	TargetLanguage      string `json:"target_language"`
}

// SupervisorConfig tunes heartbeat stamping and stall detection.
type SupervisorConfig struct {
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	StallThreshold    time.Duration `json:"stall_threshold"`
	ScanInterval      time.Duration `json:"scan_interval"`
}

// SystemConfig holds process-level settings.
type SystemConfig struct {
	DBPath   string `json:"db_path"`
	HTTPAddr string `json:"http_addr"`
	LogLevel string `json:"log_level"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment
// variables and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			APIKey:        getEnvString("LLM_API_KEY", ""),
			APIURL:        getEnvString("LLM_API_URL", "https://api.openai.com/v1"),
			Model:         getEnvString("LLM_MODEL", "gpt-4o-mini"),
			Timeout:       getEnvInt("LLM_TIMEOUT", 120),
			MaxConcurrent: int64(getEnvInt("LLM_MAX_CONCURRENT", 6)),
		},
		Pipeline: PipelineConfig{
			Runners:             getEnvInt("PIPELINE_RUNNERS", 2),
			Workers:             getEnvInt("PIPELINE_WORKERS", 3),
			SegmentMaxChars:     getEnvInt("SEGMENT_MAX_CHARS", 1500),
			SegmentMaxEntries:   getEnvInt("SEGMENT_MAX_ENTRIES", 40),
			MaxRetries:          getEnvInt("MAX_RETRIES", 3),
			RetryBackoffSeconds: getEnvInt("RETRY_BACKOFF_SECONDS", 1),
			TargetLanguage:      getEnvString("TARGET_LANGUAGE", "zh-TW"),
		},
		Supervisor: SupervisorConfig{
			HeartbeatInterval: time.Duration(getEnvInt("HEARTBEAT_INTERVAL_SECONDS", 10)) * time.Second,
			StallThreshold:    time.Duration(getEnvInt("STALL_THRESHOLD_SECONDS", 120)) * time.Second,
			ScanInterval:      time.Duration(getEnvInt("STALL_SCAN_INTERVAL_SECONDS", 15)) * time.Second,
		},
		System: SystemConfig{
			DBPath:   getEnvString("DB_PATH", "./data/subweave.db"),
			HTTPAddr: getEnvString("HTTP_ADDR", ":8080"),
			LogLevel: getEnvString("LOG_LEVEL", "info"),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Supervisor.StallThreshold <= c.Supervisor.HeartbeatInterval {
		return fmt.Errorf("STALL_THRESHOLD_SECONDS (%s) must exceed HEARTBEAT_INTERVAL_SECONDS (%s)",
			c.Supervisor.StallThreshold, c.Supervisor.HeartbeatInterval)
	}
	if c.Pipeline.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

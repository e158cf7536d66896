package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// Config contains all configuration for the application
type Config struct {
	// Recording Configuration
	RecordingsPath string // Root of the dashcam recording tree

	// Playback Configuration
	PlaybackRetryCap int // Consecutive segment-skip attempts before giving up

	// Export Configuration
	ExportPath              string // Where finished export files land
	ExportTempPath          string // Working directory for encoder temp files
	ExportWorkerConcurrency int    // Max concurrent export encodes
	ExportRetentionDays     int    // Days to keep failed export records

	// Server Configuration
	ServerPort string
	BaseURL    string // Base URL for accessing exported videos

	// Database Configuration
	DatabasePath string

	// Monitoring Configuration
	MonitoringInterval int // Seconds between resource usage samples

	// R2 Storage Configuration
	R2AccessKey string
	R2SecretKey string
	R2AccountID string
	R2Bucket    string
	R2Region    string
	R2Endpoint  string
	R2BaseURL   string // Public URL for accessing uploaded files
	R2Enabled   bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() Config {
	cfg := Config{
		RecordingsPath: getEnv("RECORDINGS_PATH", "./recordings"),

		PlaybackRetryCap: getEnvInt("PLAYBACK_RETRY_CAP", 3),

		ExportPath:              getEnv("EXPORT_PATH", "./exports"),
		ExportTempPath:          getEnv("EXPORT_TEMP_PATH", "./exports/tmp"),
		ExportWorkerConcurrency: getEnvInt("EXPORT_WORKER_CONCURRENCY", 1),
		ExportRetentionDays:     getEnvInt("EXPORT_RETENTION_DAYS", 7),

		ServerPort: getEnv("SERVER_PORT", "3000"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:3000"),

		DatabasePath: getEnv("DATABASE_PATH", "./data/exports.db"),

		MonitoringInterval: getEnvInt("MONITORING_INTERVAL", 60),

		R2AccessKey: getEnv("R2_ACCESS_KEY", ""),
		R2SecretKey: getEnv("R2_SECRET_KEY", ""),
		R2AccountID: getEnv("R2_ACCOUNT_ID", ""),
		R2Bucket:    getEnv("R2_BUCKET", ""),
		R2Region:    getEnv("R2_REGION", "auto"),
		R2Endpoint:  getEnv("R2_ENDPOINT", ""),
		R2BaseURL:   getEnv("R2_BASE_URL", ""),
	}

	cfg.R2Enabled = getEnv("R2_ENABLED", "false") == "true" &&
		cfg.R2AccessKey != "" && cfg.R2SecretKey != "" && cfg.R2Bucket != ""

	log.Printf("Recordings path: %s", cfg.RecordingsPath)
	log.Printf("Export path: %s (temp: %s, concurrency: %d)",
		cfg.ExportPath, cfg.ExportTempPath, cfg.ExportWorkerConcurrency)
	log.Printf("Server running on port %s with base URL %s", cfg.ServerPort, cfg.BaseURL)
	log.Printf("R2 Storage Enabled: %v", cfg.R2Enabled)

	return cfg
}

// getEnv returns environment variable or fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback value
func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s: %q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

// EnsurePaths creates necessary paths
func EnsurePaths(cfg Config) {
	dbDir := filepath.Dir(cfg.DatabasePath)
	for _, dir := range []string{dbDir, cfg.ExportPath, cfg.ExportTempPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("Failed to create directory %s: %v", dir, err)
		}
	}
}

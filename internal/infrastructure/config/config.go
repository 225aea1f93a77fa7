// Package config loads kernel runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the kernel's runtime configuration, read once at startup.
type Config struct {
	LogLevel           string
	DatabaseDSN        string
	DefaultLeaseTTL     time.Duration
	UploadTopic        string
	NodeStatusTopic    string
}

// Load reads Config from the environment, applying the documented
// defaults for anything unset.
func Load() Config {
	return Config{
		LogLevel:        getEnv("KERNEL_LOG_LEVEL", "info"),
		DatabaseDSN:     getEnv("KERNEL_DATABASE_DSN", ""),
		DefaultLeaseTTL: getEnvDuration("KERNEL_LEASE_TTL", 24*time.Hour),
		UploadTopic:     getEnv("KERNEL_UPLOAD_TOPIC", "file_upload"),
		NodeStatusTopic: getEnv("KERNEL_NODE_STATUS_TOPIC", "node_status"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

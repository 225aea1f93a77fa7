package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sciflow/kernel/internal/infrastructure/config"
)

func TestLoad_AppliesDocumentedDefaults(t *testing.T) {
	t.Setenv("KERNEL_LOG_LEVEL", "")
	t.Setenv("KERNEL_DATABASE_DSN", "")
	t.Setenv("KERNEL_LEASE_TTL", "")
	t.Setenv("KERNEL_UPLOAD_TOPIC", "")
	t.Setenv("KERNEL_NODE_STATUS_TOPIC", "")

	cfg := config.Load()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.DatabaseDSN)
	assert.Equal(t, 24*time.Hour, cfg.DefaultLeaseTTL)
	assert.Equal(t, "file_upload", cfg.UploadTopic)
	assert.Equal(t, "node_status", cfg.NodeStatusTopic)
}

func TestLoad_ReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("KERNEL_LOG_LEVEL", "debug")
	t.Setenv("KERNEL_LEASE_TTL", "30")
	t.Setenv("KERNEL_UPLOAD_TOPIC", "uploads")

	cfg := config.Load()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.DefaultLeaseTTL)
	assert.Equal(t, "uploads", cfg.UploadTopic)
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	t.Setenv("KERNEL_LEASE_TTL", "not-a-number")
	cfg := config.Load()
	assert.Equal(t, 24*time.Hour, cfg.DefaultLeaseTTL)
}

package logger_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/sciflow/kernel/internal/infrastructure/logger"
)

func TestSetup_ParsesRecognizedLevel(t *testing.T) {
	log := logger.Setup("warn")
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
}

func TestSetup_FallsBackToInfoOnUnrecognizedLevel(t *testing.T) {
	log := logger.Setup("not-a-level")
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

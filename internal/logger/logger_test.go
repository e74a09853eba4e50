package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitInstallsGlobal(t *testing.T) {
	flush, err := Init("production", "warn")
	require.NoError(t, err)
	defer flush()

	assert.False(t, zap.L().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, zap.L().Core().Enabled(zapcore.WarnLevel))
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	_, err := Init("development", "loud")
	assert.Error(t, err)
}

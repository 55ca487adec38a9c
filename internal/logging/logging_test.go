package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	l, err := New("debug", "console")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New("warn", "json")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)
	assert.Panics(t, func() { Must("loud", "json") })
}

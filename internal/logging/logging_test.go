package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nemonic-bridge/internal/config"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	log, closer, err := New(config.LogConfig{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	log.WithField("component", "test").Debug("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "test", entry["component"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "chatty", Format: "text"})
	assert.Error(t, err)
}

func TestNewDefaultsToStderr(t *testing.T) {
	log, closer, err := New(config.LogConfig{Level: "warn", Format: "text"})
	require.NoError(t, err)
	assert.Same(t, os.Stderr, log.Out)
	assert.NoError(t, closer.Close())
}

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ParsesLevel(t *testing.T) {
	logger, err := New(Config{Level: "debug", NoColors: true})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_WritesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "facemesh.log")

	logger, err := New(Config{Level: "info", File: file, NoColors: true})
	require.NoError(t, err)
	logger.WithFields(Fields{"mode": "detect"}).Info("frame processed")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "frame processed")
	assert.Contains(t, string(data), "detect")
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.NotPanics(t, func() { logger.Info("dropped") })
}

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAutoFormatUsesJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Out: &buf})
	require.NoError(t, err)

	logger.WithField("step", 3).Debug("new best")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "new best", entry["msg"])
	assert.Equal(t, float64(3), entry["step"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "text", Out: &buf})
	require.NoError(t, err)

	logger.Info("search run halted")
	logger.Debug("hidden")

	assert.Contains(t, buf.String(), "msg=\"search run halted\"")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	require.Error(t, err)

	_, err = New(Options{Level: "loud"})
	require.Error(t, err)
}

func TestDiscardDropsOutput(t *testing.T) {
	logger := Discard()
	logger.Error("nobody hears this")
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel())
}

package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"", logrus.InfoLevel},
		{"trace", logrus.TraceLevel},
		{"DEBUG", logrus.DebugLevel},
		{" warn ", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"bogus", logrus.InfoLevel},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, parseLevel(tc.input), "input %q", tc.input)
	}
}

func TestNew_JSONFormatCarriesServiceField(t *testing.T) {
	l := New(LoggingConfig{Level: "debug", Format: "json"})
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithService("tokens").Info("started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tokens", line["service"])
	assert.Equal(t, "orchestrator", line["logger"])
	assert.Equal(t, "started", line["msg"])
}

func TestNamed_SharesOutput(t *testing.T) {
	l := New(LoggingConfig{Format: "json"})
	var buf bytes.Buffer
	l.SetOutput(&buf)

	child := l.Named("bus")
	assert.Equal(t, "bus", child.Name())
	child.Entry().Info("hello")

	assert.Contains(t, buf.String(), `"logger":"bus"`)
}

func TestOpenOutput(t *testing.T) {
	_, err := openOutput(LoggingConfig{Output: "carrier-pigeon"})
	assert.Error(t, err)

	w, err := openOutput(LoggingConfig{Output: "file", FilePrefix: filepath.Join(t.TempDir(), "orch")})
	require.NoError(t, err)
	assert.NotNil(t, w)
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("tick")
	assert.Equal(t, "tick", l.Name())
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARNING", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestInitialize_CategoriesAndLevel(t *testing.T) {
	defer Use(zap.NewNop())

	var buf bytes.Buffer
	err := Initialize(Options{
		Level:      "info",
		Format:     "json",
		Categories: map[string]bool{"cache": false},
		Sink:       zapcore.AddSync(&buf),
	})
	require.NoError(t, err)

	Get(CategoryResolver).Info("resolved", zap.String("capability", "MessageCollection"))
	Get(CategoryCache).Info("hidden")
	Get(CategoryResolver).Debug("too quiet")

	out := buf.String()
	assert.Contains(t, out, `"logger":"resolver"`)
	assert.Contains(t, out, "MessageCollection")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "too quiet")

	require.NoError(t, SetLevel("debug"))
	Get(CategoryResolver).Debug("now visible")
	assert.True(t, strings.Contains(buf.String(), "now visible"))
	assert.Equal(t, zapcore.DebugLevel, Level())
}

func TestInitialize_RejectsUnknownFormat(t *testing.T) {
	assert.Error(t, Initialize(Options{Format: "xml"}))
}

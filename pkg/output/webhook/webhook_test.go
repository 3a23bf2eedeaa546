package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig("https://hooks.example.com/forecast?interval=2s&timeout=3s&token=secret")
	require.NoError(t, err)

	assert.Equal(t, "https://hooks.example.com/forecast", cfg.URL)
	assert.Equal(t, 2*time.Second, cfg.PushInterval)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "Bearer secret", cfg.Headers["Authorization"])
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig("http://localhost:9000/hook")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/hook", cfg.URL)
	assert.Equal(t, defaultPushInterval, cfg.PushInterval)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.Empty(t, cfg.Headers)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		arg  string
	}{
		{"empty", ""},
		{"bad scheme", "ftp://example.com/hook"},
		{"bad interval", "http://example.com/hook?interval=soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(tt.arg)
			assert.Error(t, err)
		})
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RESMON_PID", "812")
	t.Setenv("RESMON_TARGET", "Phocus")
	t.Setenv("RESMON_WAIT", "true")
	t.Setenv("RESMON_DURATION", "90s")
	t.Setenv("RESMON_TELEMETRY_ARGS", "-i, 500")
	t.Setenv("RESMON_TELEMETRY_MAX_RESTARTS", "0")
	t.Setenv("RESMON_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, LoadFromEnv(cfg))

	assert.Equal(t, int32(812), cfg.Target.PID)
	assert.Equal(t, "Phocus", cfg.Target.Name)
	assert.True(t, cfg.Target.Wait)
	assert.Equal(t, 90*time.Second, cfg.Sampling.Duration)
	assert.Equal(t, []string{"-i", "500"}, cfg.Telemetry.Args)
	assert.Equal(t, 0, cfg.Telemetry.MaxRestarts)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnv_WhitespaceList(t *testing.T) {
	t.Setenv("RESMON_TELEMETRY_ARGS", "-i 500 --show-process-gpu")

	cfg := DefaultConfig()
	require.NoError(t, LoadFromEnv(cfg))

	assert.Equal(t, []string{"-i", "500", "--show-process-gpu"}, cfg.Telemetry.Args)
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
		want  string
	}{
		{"duration", "RESMON_INTERVAL", "soon", "invalid duration"},
		{"integer", "RESMON_PID", "abc", "invalid integer"},
		{"int32 overflow", "RESMON_PID", "99999999999", "invalid integer"},
		{"boolean", "RESMON_WAIT", "maybe", "invalid boolean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)

			err := LoadFromEnv(DefaultConfig())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2", 2 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{"1500ms", 1500 * time.Millisecond},
		{"3m", 3 * time.Minute},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseDuration("two seconds")
	assert.Error(t, err)
}

package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/resmon/internal/cli/helpers"
	"github.com/coral-mesh/resmon/internal/config"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
)

func execute(t *testing.T, path string, args ...string) (string, error) {
	t.Helper()
	g := &helpers.GlobalFlags{ConfigPath: path}
	cmd := NewConfigCmd(g)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInit_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := execute(t, path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Sampling, cfg.Sampling)
}

func TestInit_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sampling:\n  interval: 2s\n"), 0o600))

	_, err := execute(t, path, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, path, "init", "--force")
	require.NoError(t, err)
	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Sampling.Interval, cfg.Sampling.Interval)
}

func TestView_MergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target:\n  name: Phocus\nsampling:\n  interval: 2s\n"), 0o600))

	out, err := execute(t, path, "view")
	require.NoError(t, err)
	assert.Contains(t, out, "# Source: "+path)
	assert.Contains(t, out, "name: Phocus")
	assert.Contains(t, out, "interval: 2s")
}

func TestValidate_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target:\n  name: Phocus\n"), 0o600))

	out, err := execute(t, path, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sampling:\n  interval: -1s\nlogging:\n  level: loud\n"), 0o600))

	out, err := execute(t, path, "validate")
	require.Error(t, err)
	assert.True(t, rerrors.HasCode(err, rerrors.CodeConfigInvalid))
	assert.Contains(t, out, "2 error(s)")
	assert.Contains(t, out, "sampling.interval")
	assert.Contains(t, out, "logging.level")
}

func TestValidate_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600))

	out, err := execute(t, path, "validate", "-f", "json")
	require.Error(t, err)

	var result validationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "logging.level", result.Errors[0].Field)
}

func TestValidate_MissingExplicitFile(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "absent.yaml"), "validate")
	assert.Error(t, err)
}

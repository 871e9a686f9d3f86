package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/resmon/internal/sysinfo"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("logging:\n  level: error\n"), 0o600))

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"record", "report", "db", "config", "status", "sysinfo", "version"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "resmon version")
}

func TestSysinfoCmd_JSON(t *testing.T) {
	out, err := execute(t, "sysinfo", "-f", "json")
	require.NoError(t, err)

	var desc sysinfo.Descriptor
	require.NoError(t, json.Unmarshal([]byte(out), &desc))
	assert.NotEmpty(t, desc.Arch)
	assert.Positive(t, desc.CPUCores)
}

func TestStatusCmd_JSON(t *testing.T) {
	out, err := execute(t, "status", "-f", "json", "--log-level", "error")
	// Readiness depends on the host; the report is printed either way.
	_ = err
	var r map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Contains(t, r, "checks")
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, "nope")
	assert.Error(t, err)
}

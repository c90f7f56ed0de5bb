package setup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPreservesOtherServers(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "client", "config.json")
	require.NoError(t, SaveClientConfig(configPath, &ClientConfig{MCPServers: map[string]MCPServerConfig{
		"other": {Command: "/usr/bin/other"},
	}}))

	path, err := Register(Options{
		BinaryPath:   "/opt/ddx/mcp-server-lite",
		DataDir:      "/var/lib/ddx",
		SnapshotPath: "/var/lib/ddx/kb.yaml",
		ConfigPath:   configPath,
	})
	require.NoError(t, err)
	assert.Equal(t, configPath, path)

	cfg, err := LoadClientConfig(configPath)
	require.NoError(t, err)
	require.Contains(t, cfg.MCPServers, "other")
	entry := cfg.MCPServers[ServerName]
	assert.Equal(t, "/opt/ddx/mcp-server-lite", entry.Command)
	assert.Equal(t, "/var/lib/ddx", entry.Env["DDX_DATA_DIR"])
	assert.Equal(t, "/var/lib/ddx/kb.yaml", entry.Env["DDX_SNAPSHOT_PATH"])
}

func TestLoadClientConfigMissingFile(t *testing.T) {
	cfg, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.NotNil(t, cfg.MCPServers)
}

func TestGetStatus(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	status, err := GetStatus(configPath)
	require.NoError(t, err)
	assert.False(t, status.Registered)
	assert.False(t, status.OK())

	binary := filepath.Join(dir, "mcp-server-lite")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755))
	snapshot, err := os.ReadFile(filepath.Join("..", "knowledge", "testdata", "chest_pain.yaml"))
	require.NoError(t, err)
	snapshotPath := filepath.Join(dir, "kb.yaml")
	require.NoError(t, os.WriteFile(snapshotPath, snapshot, 0o600))

	_, err = Register(Options{BinaryPath: binary, DataDir: dir, SnapshotPath: snapshotPath, ConfigPath: configPath})
	require.NoError(t, err)

	status, err = GetStatus(configPath)
	require.NoError(t, err)
	assert.True(t, status.OK(), "issues: %v", status.Issues)
	assert.Equal(t, "2026.09-chest", status.KnowledgeVersion)
	assert.Equal(t, dir, status.DataDir)
}

func TestStatusCommandFailsWhenUnregistered(t *testing.T) {
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"status", "--config", filepath.Join(t.TempDir(), "config.json")})

	err := cmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, out.String(), `"registered": false`)
}

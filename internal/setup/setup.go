// Package setup registers the lite MCP server with a desktop MCP client and reports whether the
// local installation is usable.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/ddx-reasoning-core/internal/config"
	"github.com/ddx-reasoning-core/internal/knowledge"
)

// ServerName is the key the lite server is registered under.
const ServerName = "ddx-reasoning-core"

// ClientConfig represents the desktop client's configuration file structure.
type ClientConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for the registration.
type Options struct {
	BinaryPath   string
	DataDir      string
	SnapshotPath string
	ConfigPath   string // overrides the per-OS default
}

// ClientConfigPath returns the path to the desktop client's config file.
func ClientConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
	case "linux":
		dir := os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			dir = filepath.Join(home, ".config")
		}
		return filepath.Join(dir, "Claude", "claude_desktop_config.json"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// LoadClientConfig loads the client configuration. A missing file yields an empty config.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ClientConfig{MCPServers: map[string]MCPServerConfig{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ClientConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]MCPServerConfig{}
	}
	return &cfg, nil
}

// SaveClientConfig writes the client configuration, creating its directory.
func SaveClientConfig(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Register adds or replaces the lite server entry. Other servers in the file are preserved.
func Register(opts Options) (string, error) {
	path, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return "", err
	}
	cfg, err := LoadClientConfig(path)
	if err != nil {
		return "", err
	}

	binary := opts.BinaryPath
	if binary == "" {
		if binary, err = findBinary(); err != nil {
			return "", err
		}
	}

	entry := MCPServerConfig{Command: binary, Env: map[string]string{}}
	if opts.DataDir != "" {
		entry.Env["DDX_DATA_DIR"] = opts.DataDir
	}
	if opts.SnapshotPath != "" {
		entry.Env["DDX_SNAPSHOT_PATH"] = opts.SnapshotPath
	}
	cfg.MCPServers[ServerName] = entry

	return path, SaveClientConfig(path, cfg)
}

// Status represents the current setup status.
type Status struct {
	ConfigPath       string   `json:"config_path"`
	Registered       bool     `json:"registered"`
	ServerPath       string   `json:"server_path,omitempty"`
	DataDir          string   `json:"data_dir"`
	SnapshotPath     string   `json:"snapshot_path"`
	KnowledgeVersion string   `json:"knowledge_version,omitempty"`
	Issues           []string `json:"issues"`
}

// OK reports whether the installation has no blocking issues.
func (s *Status) OK() bool {
	return s.Registered && len(s.Issues) == 0
}

// GetStatus checks the registration, the binary, the data directory and the snapshot.
func GetStatus(configPath string) (*Status, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	status := &Status{ConfigPath: path, Issues: []string{}}

	lite := config.DefaultLiteConfig()
	cfg, err := LoadClientConfig(path)
	if err != nil {
		status.Issues = append(status.Issues, err.Error())
	} else if entry, ok := cfg.MCPServers[ServerName]; ok {
		status.Registered = true
		status.ServerPath = entry.Command
		if _, err := os.Stat(entry.Command); err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("server binary not found at %s", entry.Command))
		}
		if v := entry.Env["DDX_DATA_DIR"]; v != "" {
			lite.DataDir = v
		}
		lite.SnapshotPath = entry.Env["DDX_SNAPSHOT_PATH"]
	}

	status.DataDir = lite.DataDir
	status.SnapshotPath = lite.KnowledgePath()
	if snapshot, err := knowledge.LoadFile(status.SnapshotPath); err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("knowledge snapshot unusable: %v", err))
	} else {
		status.KnowledgeVersion = snapshot.Version()
	}
	return status, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return ClientConfigPath()
}

// findBinary looks for the lite server next to the running executable, then on PATH.
func findBinary() (string, error) {
	const name = "mcp-server-lite"
	if exe, err := os.Executable(); err == nil {
		if filepath.Base(exe) == name {
			return exe, nil
		}
		sibling := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("binary %q not found; pass --binary", name)
}

// Package config reads and writes crater's per-user directory
// configuration.
//
// The configuration is a small JSON document holding three paths: where
// fetched sources live, where installed artifacts are copied, and the
// root for scratch build directories. It is created with defaults the
// first time it is needed and persisted again whenever the registry is
// saved.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the global directory layout shared by every command.
type Config struct {
	SrcDir  string `json:"srcdir"`
	LibDir  string `json:"libdir"`
	TempDir string `json:"tempdir"`
}

// Root returns the per-user crater directory (~/.crater).
func Root() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".crater"), nil
}

// DefaultPath returns the default config file location (~/.crater/config).
func DefaultPath() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "config"), nil
}

// Load reads the config file at path, creating it with defaults if it
// does not exist yet. All paths in the returned Config are expanded to
// absolute, symlink-resolved form. Whether the directories are writable
// is not checked here; that surfaces later as plain file-system errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		c, err := defaults()
		if err != nil {
			return nil, err
		}
		if err := c.Save(path); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := c.expand(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save persists the config to path, creating parent directories as
// needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func defaults() (*Config, error) {
	root, err := Root()
	if err != nil {
		return nil, err
	}
	c := &Config{
		SrcDir:  filepath.Join(root, "src"),
		LibDir:  filepath.Join(root, "lib"),
		TempDir: os.TempDir(),
	}
	if err := c.expand(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) expand() error {
	for _, p := range []*string{&c.SrcDir, &c.LibDir, &c.TempDir} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// ExpandPath normalizes a configured path: tilde and environment
// variable expansion, absolute form, and symlink resolution when the
// path already exists.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand %q: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	path = os.ExpandEnv(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost  = "0.0.0.0"
	DefaultPort  = 9090
	DefaultModel = "small"
)

// Config holds the launcher's file-backed settings. Flags override any value
// loaded from a config file.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Model    string `yaml:"model"`
	ModelDir string `yaml:"model_dir"`
	Python   string `yaml:"python"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voxlive")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with the launcher's built-in defaults.
func Default() *Config {
	return &Config{
		Host:  DefaultHost,
		Port:  DefaultPort,
		Model: DefaultModel,
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults. A leading ~ in path-valued fields is expanded to the user's home
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.ModelDir = expandTilde(cfg.ModelDir)
	cfg.Python = expandTilde(cfg.Python)

	return cfg, nil
}

// Resolve loads the config file at path when given. With an empty path it
// loads the default file when one exists and falls back to built-in defaults
// otherwise.
func Resolve(path string) (*Config, error) {
	if strings.TrimSpace(path) != "" {
		return Load(path)
	}

	defaultPath := DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		return Load(defaultPath)
	}

	return Default(), nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host must not be empty")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if strings.TrimSpace(c.Model) == "" {
		return errors.New("model must not be empty")
	}

	return nil
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

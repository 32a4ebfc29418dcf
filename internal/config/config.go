// Package config builds the process-wide configuration once at startup:
// defaults, overlaid by an optional YAML config file, overlaid by WARBLE_*
// environment variables. No hidden global state; callers thread the struct.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Platform  PlatformConfig  `yaml:"platform"`
	Budget    BudgetConfig    `yaml:"budget"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PlatformConfig struct {
	BaseURL string `yaml:"base_url"`
	// BearerToken is secret and deliberately has no config-file key; it
	// comes from the WARBLE_BEARER_TOKEN environment variable only.
	BearerToken string `yaml:"-"`
}

// BudgetConfig holds the daily cap for each write action kind.
// -1 means unlimited, 0 disables the action kind entirely.
type BudgetConfig struct {
	MaxReplies   int `yaml:"max_replies"`
	MaxOriginals int `yaml:"max_originals"`
	MaxLikes     int `yaml:"max_likes"`
	MaxRetweets  int `yaml:"max_retweets"`
	MaxFollows   int `yaml:"max_follows"`
	MaxUnfollows int `yaml:"max_unfollows"`
	MaxDeletes   int `yaml:"max_deletes"`
}

type WorkflowsConfig struct {
	MaxActive int `yaml:"max_active"`
	// ProtectedAccounts is a comma-separated handle list; @ optional,
	// case-insensitive.
	ProtectedAccounts string `yaml:"protected_accounts"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4700,
		},
		Platform: PlatformConfig{
			BaseURL: "https://api.x.com",
		},
		Budget: BudgetConfig{
			MaxReplies:   8,
			MaxOriginals: 5,
			MaxLikes:     20,
			MaxRetweets:  5,
			MaxFollows:   10,
			MaxUnfollows: 10,
			MaxDeletes:   10,
		},
		Workflows: WorkflowsConfig{
			MaxActive: 200,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "warble-data"
		}
	}
	return filepath.Join(dir, "warble")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "warble", "config.yaml")
}

// Load reads configuration from the YAML config file
// ($XDG_CONFIG_HOME/warble/config.yaml) and WARBLE_* environment variables.
// A missing file is fine; an unreadable or unparseable one logs a warning
// and falls back to defaults. Env vars win over the file on all keys.
func Load() (Config, error) {
	return loadFrom(configFilePath())
}

func loadFrom(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
		cfg = defaults()
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// StatePath returns the path of the persisted state document.
func (c Config) StatePath() string {
	return filepath.Join(c.Storage.DataDir, "state.json")
}

// PIDPath returns the path of the server PID file.
func (c Config) PIDPath() string {
	return filepath.Join(c.Storage.DataDir, "warble.pid")
}

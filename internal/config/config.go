// Package config provides configuration loading and structs for the GraphRAG server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Search  SearchConfig  `yaml:"search"`
	Stream  StreamConfig  `yaml:"stream"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

// Storage backends accepted by StorageConfig.Backend.
const (
	BackendNeo4j    = "neo4j"
	BackendSQLite   = "sqlite"
	BackendDisabled = "disabled"
)

// StorageConfig selects and configures the history store.
type StorageConfig struct {
	Backend    string      `yaml:"backend"`
	SQLitePath string      `yaml:"sqlite_path"`
	Neo4j      Neo4jConfig `yaml:"neo4j"`
}

// Neo4jConfig holds graph database connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ProviderConfig holds credentials and endpoint for one search provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SearchConfig holds search provider settings.
type SearchConfig struct {
	Tavily            ProviderConfig `yaml:"tavily"`
	Serper            ProviderConfig `yaml:"serper"`
	MaxResults        int            `yaml:"max_results"`
	Timeout           time.Duration  `yaml:"timeout"`
	RequestsPerMinute int            `yaml:"requests_per_minute"`
}

// StreamConfig holds streaming session settings.
type StreamConfig struct {
	// PacingBase and PacingStep give the wait before result i+1: base + step*i.
	PacingBase    time.Duration `yaml:"pacing_base"`
	PacingStep    time.Duration `yaml:"pacing_step"`
	DisablePacing bool          `yaml:"disable_pacing"`
	// MaxResults caps how many results one session accumulates and streams.
	MaxResults int `yaml:"max_results"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and finally the process environment.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Storage.SQLitePath = expandPath(cfg.Storage.SQLitePath, configDir)
	cfg.Server.StaticDir = expandPath(cfg.Server.StaticDir, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendNeo4j, BackendSQLite, BackendDisabled:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overlays environment variables on cfg.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"HOST", &cfg.Server.Host},
		{"STATIC_DIR", &cfg.Server.StaticDir},
		{"STORAGE_BACKEND", &cfg.Storage.Backend},
		{"SQLITE_PATH", &cfg.Storage.SQLitePath},
		{"NEO4J_URI", &cfg.Storage.Neo4j.URI},
		{"NEO4J_USERNAME", &cfg.Storage.Neo4j.Username},
		{"NEO4J_PASSWORD", &cfg.Storage.Neo4j.Password},
		{"NEO4J_DATABASE", &cfg.Storage.Neo4j.Database},
		{"TAVILY_API_KEY", &cfg.Search.Tavily.APIKey},
		{"SERPER_API_KEY", &cfg.Search.Serper.APIKey},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG %q: %w", v, err)
		}
		cfg.Debug = debug
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	return nil
}

// expandPath resolves paths starting with "./" against configDir; other
// paths are returned unchanged.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	return path
}

package config

import "time"

// Public provider endpoints.
const (
	DefaultTavilyBaseURL = "https://api.tavily.com"
	DefaultSerperBaseURL = "https://google.serper.dev"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = "static"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendNeo4j
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "./data/history.db"
	}
	if cfg.Storage.Neo4j.URI == "" {
		cfg.Storage.Neo4j.URI = "neo4j://localhost:7687"
	}
	if cfg.Storage.Neo4j.Username == "" {
		cfg.Storage.Neo4j.Username = "neo4j"
	}
	if cfg.Storage.Neo4j.Database == "" {
		cfg.Storage.Neo4j.Database = "neo4j"
	}
	if cfg.Search.Tavily.BaseURL == "" {
		cfg.Search.Tavily.BaseURL = DefaultTavilyBaseURL
	}
	if cfg.Search.Serper.BaseURL == "" {
		cfg.Search.Serper.BaseURL = DefaultSerperBaseURL
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 10
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = 30 * time.Second
	}
	if cfg.Stream.DisablePacing {
		cfg.Stream.PacingBase, cfg.Stream.PacingStep = 0, 0
	} else {
		if cfg.Stream.PacingBase == 0 {
			cfg.Stream.PacingBase = 100 * time.Millisecond
		}
		if cfg.Stream.PacingStep == 0 {
			cfg.Stream.PacingStep = 50 * time.Millisecond
		}
	}
	if cfg.Stream.MaxResults == 0 {
		cfg.Stream.MaxResults = 50
	}
}

// Package config loads solrmcp configuration: defaults, then a JSON file
// backend at $XDG_CONFIG_HOME/solrmcp/config.json, then SOLRMCP_* env
// overrides. Validation failures are fatal at startup and never retried.
package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server  ServerConfig
	Solr    SolrConfig
	Ollama  OllamaConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type SolrConfig struct {
	// BaseURL is the Solr root, e.g. http://localhost:8983/solr.
	BaseURL string
	// ZKHosts enables coordination-service collection listing when non-empty.
	ZKHosts []string
	// ConnectionTimeout bounds every backend and provider call.
	ConnectionTimeout time.Duration
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Solr: SolrConfig{
			BaseURL:           "http://localhost:8983/solr",
			ConnectionTimeout: 10 * time.Second,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend and environment.
// Environment variables (SOLRMCP_*) override file values.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate enforces the invariants the core depends on. A failure here is a
// configuration error: fail fast, never retried.
func validate(cfg Config) error {
	if cfg.Solr.BaseURL == "" {
		return fmt.Errorf("invalid config: solr.base_url must be set")
	}
	if cfg.Solr.ConnectionTimeout <= 0 {
		return fmt.Errorf("invalid config: solr.connection_timeout must be positive, got %s", cfg.Solr.ConnectionTimeout)
	}
	if cfg.Ollama.EmbedModel == "" {
		return fmt.Errorf("invalid config: ollama.embed_model must be set")
	}
	return nil
}

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veritract/veritract/embedding"
	"github.com/veritract/veritract/llm"
	"github.com/veritract/veritract/match"
	"github.com/veritract/veritract/playbook"
	"github.com/veritract/veritract/structure"
)

// config is the node configuration file. The pipeline sections map onto the
// corresponding package Configs, so the file mirrors the wiring.
type config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	LogLevel   string `yaml:"log_level"`

	// LibraryPath points at the authored YAML clause library. Empty means the
	// library is read from the artifacts database.
	LibraryPath string `yaml:"library_path"`

	// PlaybookPath points at the playbook YAML. Empty disables redlining.
	PlaybookPath string `yaml:"playbook_path"`

	// PatternsPath overrides the built-in risk exception catalog.
	PatternsPath string `yaml:"patterns_path"`

	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`

	RetentionDays struct {
		StageEvents int `yaml:"stage_events"`
		HTTPLogs    int `yaml:"http_logs"`
	} `yaml:"retention_days"`

	Structure structure.Config `yaml:"structure"`
	Embedding embedding.Config `yaml:"embedding"`
	LLM       llm.Config       `yaml:"llm"`
	Matcher   match.Config     `yaml:"matcher"`
	Engine    playbook.Config  `yaml:"playbook_engine"`
}

func (c *config) defaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":" + env("PORT", "8086")
	}
	if c.DataDir == "" {
		c.DataDir = env("DATA_DIR", "data")
	}
	if c.LogLevel == "" {
		c.LogLevel = env("LOG_LEVEL", "info")
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// loadConfig reads the YAML config at path. A missing file is fine: the node
// runs on defaults and environment variables.
func loadConfig(path string) (*config, error) {
	var c config
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.defaults()
	return &c, nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

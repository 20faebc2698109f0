package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses a YAML configuration file, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields across all sections.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Pipeline == nil {
		c.Pipeline = DefaultPipeline()
	} else {
		c.Pipeline.ApplyDefaults()
	}
	if c.Validator == nil {
		c.Validator = &ValidatorConfig{}
	}
	if c.Validator.MaxInputLength == 0 {
		c.Validator.MaxInputLength = 5000
	}
	if c.Validator.RepeatedCharLimit == 0 {
		c.Validator.RepeatedCharLimit = 7
	}
	if c.Validator.Judge.FailMode == "" {
		c.Validator.Judge.FailMode = "open"
	}
	if c.Validator.Judge.MaxRetries == 0 {
		c.Validator.Judge.MaxRetries = 2
	}
	if c.Memory == nil {
		c.Memory = &MemoryConfig{EnableSummary: true}
	}
	if c.Memory.SummaryLastN == 0 {
		c.Memory.SummaryLastN = 5
	}
	if c.Memory.MaxRounds == 0 {
		c.Memory.MaxRounds = 20
	}
	if c.Memory.QueueSize == 0 {
		c.Memory.QueueSize = 64
	}
	if c.Session == nil {
		c.Session = &SessionConfig{Store: "inmemory"}
	}
	if c.Session.Store == "" {
		c.Session.Store = "inmemory"
	}
	if c.LLM.Default == "" && len(c.LLM.Backends) > 0 {
		c.LLM.Default = c.LLM.Backends[0].Name
	}
}

package config

import "fmt"

// Config is the root configuration for the orchestration core.
type Config struct {
	Log       LogConfig        `json:"log" yaml:"log"`
	LLM       LLMConfig        `json:"llm" yaml:"llm"`
	Embedding EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	VectorDB  VectorDBConfig   `json:"vectordb" yaml:"vectordb"`
	Pipeline  *PipelineConfig  `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`
	Validator *ValidatorConfig `json:"validator,omitempty" yaml:"validator,omitempty"`
	Memory    *MemoryConfig    `json:"memory,omitempty" yaml:"memory,omitempty"`
	Session   *SessionConfig   `json:"session,omitempty" yaml:"session,omitempty"`
	// HTTP holds global defaults for outbound HTTP calls (reranker, remote evaluators).
	HTTP *HTTPClientConfig `json:"http,omitempty" yaml:"http,omitempty"`
}

// LogConfig controls the logger backend.
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"` // debug, info, warn, error
}

// LLMConfig declares the generation backends and the routing table that
// maps pipeline task types onto them. Backends are resolved once at
// startup; tasks not listed in Routes use the default backend with its
// default temperature.
type LLMConfig struct {
	Backends []LLMBackendConfig `json:"backends" yaml:"backends"`
	Default  string             `json:"default,omitempty" yaml:"default,omitempty"`
	Routes   []RouteConfig      `json:"routes,omitempty" yaml:"routes,omitempty"`
}

// LLMBackendConfig describes one OpenAI-compatible generation backend.
type LLMBackendConfig struct {
	Name      string `json:"name" yaml:"name"`
	Provider  string `json:"provider,omitempty" yaml:"provider,omitempty"` // openai, dashscope, qwen
	APIKey    string `json:"api_key,omitempty" yaml:"api_key"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model     string `json:"model" yaml:"model"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// RouteConfig binds a task type to a backend and temperature.
type RouteConfig struct {
	Task        string   `json:"task" yaml:"task"`
	Backend     string   `json:"backend,omitempty" yaml:"backend,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// EmbeddingConfig defines the embedding model used by the dense channel.
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // openai, dashscope
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimension,omitempty"`
	TimeoutMs  int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// VectorDBConfig defines the dense vector store.
type VectorDBConfig struct {
	Provider   string        `json:"provider" yaml:"provider"` // milvus
	Host       string        `json:"host,omitempty" yaml:"host,omitempty"`
	Port       int           `json:"port,omitempty" yaml:"port,omitempty"`
	Database   string        `json:"database,omitempty" yaml:"database,omitempty"`
	Collection string        `json:"collection,omitempty" yaml:"collection,omitempty"`
	Username   string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password   string        `json:"password,omitempty" yaml:"password,omitempty"`
	TimeoutMs  int           `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Mapping    MappingConfig `json:"mapping,omitempty" yaml:"mapping,omitempty"`
}

// MappingConfig maps standard field names onto collection fields.
type MappingConfig struct {
	Fields []FieldMapping `json:"fields,omitempty" yaml:"fields,omitempty"`
	Search SearchConfig   `json:"search,omitempty" yaml:"search,omitempty"`
}

// FieldMapping maps one standard field (id, content, vector, metadata)
// onto the raw collection field name.
type FieldMapping struct {
	StandardName string                 `json:"standard_name" yaml:"standard_name"`
	RawName      string                 `json:"raw_name" yaml:"raw_name"`
	Properties   map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`
}

func (f FieldMapping) IsPrimaryKey() bool  { return f.StandardName == "id" }
func (f FieldMapping) IsVectorField() bool { return f.StandardName == "vector" }

// SearchConfig defines vector search parameters.
type SearchConfig struct {
	MetricType string                 `json:"metric_type,omitempty" yaml:"metric_type,omitempty"`
	Params     map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

func (s SearchConfig) ParamsInt64(key string) (int64, error) {
	switch v := s.Params[key].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	}
	return 0, fmt.Errorf("params %s not found", key)
}

// ValidatorConfig controls input screening and the output judge.
type ValidatorConfig struct {
	MaxInputLength    int      `json:"max_input_length,omitempty" yaml:"max_input_length,omitempty"`
	RepeatedCharLimit int      `json:"repeated_char_limit,omitempty" yaml:"repeated_char_limit,omitempty"`
	BannedKeywords    []string `json:"banned_keywords,omitempty" yaml:"banned_keywords,omitempty"`
	Judge             struct {
		Enable bool `json:"enable,omitempty" yaml:"enable,omitempty"`
		// FailMode controls judge parse-failure behavior: "open" (default)
		// accepts the answer, "closed" rejects it.
		FailMode string `json:"fail_mode,omitempty" yaml:"fail_mode,omitempty"`
		// MaxRetries counts additional generation attempts after the
		// self-correction pass.
		MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	} `json:"judge" yaml:"judge"`
}

// MemoryConfig controls conversation memory and the background summary task.
type MemoryConfig struct {
	EnableSummary bool `json:"enable_summary,omitempty" yaml:"enable_summary,omitempty"`
	// SummaryLastN turns included in each summary refresh.
	SummaryLastN int `json:"summary_last_n,omitempty" yaml:"summary_last_n,omitempty"`
	MaxRounds    int `json:"max_rounds,omitempty" yaml:"max_rounds,omitempty"`
	QueueSize    int `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
}

// SessionConfig controls session persistence.
// Store: "inmemory" (default) or "redis".
type SessionConfig struct {
	Store      string      `json:"store,omitempty" yaml:"store,omitempty"`
	TTLSeconds int         `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
	Redis      RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// RedisConfig holds connection settings for the Redis session store.
type RedisConfig struct {
	Address  string `json:"address,omitempty" yaml:"address,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
}

// HTTPClientConfig defines common options for outbound HTTP calls.
type HTTPClientConfig struct {
	TimeoutMs              int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Retry                  int      `json:"retry,omitempty" yaml:"retry,omitempty"`
	BackoffMinMs           int      `json:"backoff_min_ms,omitempty" yaml:"backoff_min_ms,omitempty"`
	BackoffMaxMs           int      `json:"backoff_max_ms,omitempty" yaml:"backoff_max_ms,omitempty"`
	HostAllowlist          []string `json:"host_allowlist,omitempty" yaml:"host_allowlist,omitempty"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty"`
	CircuitOpenSeconds     int      `json:"circuit_open_seconds,omitempty" yaml:"circuit_open_seconds,omitempty"`
}

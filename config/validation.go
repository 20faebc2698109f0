package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. [%s] %s\n", i+1, err.Field, err.Message))
	}
	return b.String()
}

// Validate validates the complete configuration.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateLLM()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateVectorDB()...)
	if c.Pipeline != nil {
		errs = append(errs, c.validatePipeline()...)
	}
	if c.Validator != nil {
		errs = append(errs, c.validateValidator()...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateLLM() ValidationErrors {
	var errs ValidationErrors

	if len(c.LLM.Backends) == 0 {
		errs = append(errs, ValidationError{
			Field:   "llm.backends",
			Message: "at least one generation backend is required",
		})
		return errs
	}

	names := make(map[string]bool, len(c.LLM.Backends))
	for i, b := range c.LLM.Backends {
		if b.Name == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("llm.backends[%d].name", i),
				Message: "backend name is required",
			})
		}
		if b.Model == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("llm.backends[%d].model", i),
				Message: "backend model is required",
			})
		}
		if names[b.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("llm.backends[%d].name", i),
				Message: fmt.Sprintf("duplicate backend name %q", b.Name),
			})
		}
		names[b.Name] = true
	}

	if c.LLM.Default != "" && !names[c.LLM.Default] {
		errs = append(errs, ValidationError{
			Field:   "llm.default",
			Message: fmt.Sprintf("default backend %q is not declared", c.LLM.Default),
		})
	}

	for i, r := range c.LLM.Routes {
		if r.Task == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("llm.routes[%d].task", i),
				Message: "route task is required",
			})
		}
		if r.Backend != "" && !names[r.Backend] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("llm.routes[%d].backend", i),
				Message: fmt.Sprintf("route backend %q is not declared", r.Backend),
			})
		}
		if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("llm.routes[%d].temperature", i),
				Message: fmt.Sprintf("temperature must be in [0, 2], got %.2f", *r.Temperature),
			})
		}
	}

	return errs
}

func (c *Config) validateEmbedding() ValidationErrors {
	var errs ValidationErrors

	if c.Embedding.Provider == "" {
		errs = append(errs, ValidationError{
			Field:   "embedding.provider",
			Message: "embedding provider is required",
		})
	}
	if c.Embedding.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "embedding.model",
			Message: "embedding model is required",
		})
	}
	if c.Embedding.Dimensions < 0 || (c.Embedding.Dimensions > 0 && (c.Embedding.Dimensions < 128 || c.Embedding.Dimensions > 4096)) {
		errs = append(errs, ValidationError{
			Field:   "embedding.dimensions",
			Message: fmt.Sprintf("embedding dimensions %d is outside typical range [128, 4096]", c.Embedding.Dimensions),
		})
	}

	return errs
}

func (c *Config) validateVectorDB() ValidationErrors {
	var errs ValidationErrors

	if c.VectorDB.Provider == "" {
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: "vectordb provider is required",
		})
		return errs
	}

	switch strings.ToLower(c.VectorDB.Provider) {
	case "milvus":
		if c.VectorDB.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.host",
				Message: "vectordb host is required for milvus provider",
			})
		}
		if c.VectorDB.Collection == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.collection",
				Message: "collection name is required for milvus provider",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: fmt.Sprintf("unsupported vectordb provider %q", c.VectorDB.Provider),
		})
	}

	return errs
}

func (c *Config) validatePipeline() ValidationErrors {
	var errs ValidationErrors
	p := c.Pipeline

	if p.RRFK < 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.rrf_k",
			Message: fmt.Sprintf("rrf_k must be non-negative, got %d", p.RRFK),
		})
	}
	if p.FinalTopK > p.RerankTopN && p.RerankTopN > 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.final_top_k",
			Message: fmt.Sprintf("final_top_k (%d) must not exceed rerank_top_n (%d)", p.FinalTopK, p.RerankTopN),
		})
	}
	if p.RerankTopN > p.HybridTopK && p.HybridTopK > 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.rerank_top_n",
			Message: fmt.Sprintf("rerank_top_n (%d) must not exceed hybrid_top_k (%d)", p.RerankTopN, p.HybridTopK),
		})
	}

	for i, prof := range p.RetrievalProfiles {
		if prof.Name == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.retrieval_profiles[%d].name", i),
				Message: "profile name is required",
			})
		}
		if prof.TopK < 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.retrieval_profiles[%d].top_k", i),
				Message: fmt.Sprintf("top_k must be non-negative, got %d", prof.TopK),
			})
		}
		if prof.Threshold < 0 || prof.Threshold > 1 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.retrieval_profiles[%d].threshold", i),
				Message: fmt.Sprintf("threshold must be in [0, 1], got %.2f", prof.Threshold),
			})
		}
	}

	if p.Rerank != nil && p.Rerank.Enable {
		if p.Rerank.Endpoint == "" && p.Rerank.Provider != "keyword" {
			errs = append(errs, ValidationError{
				Field:   "pipeline.rerank.endpoint",
				Message: "rerank endpoint is required when rerank is enabled",
			})
		}
		if p.Rerank.TopN < 0 {
			errs = append(errs, ValidationError{
				Field:   "pipeline.rerank.top_n",
				Message: fmt.Sprintf("rerank.top_n must be non-negative, got %d", p.Rerank.TopN),
			})
		}
	}

	if p.CRAG != nil && p.CRAG.Enable {
		if p.CRAG.Provider == "http" && p.CRAG.Endpoint == "" {
			errs = append(errs, ValidationError{
				Field:   "pipeline.crag.endpoint",
				Message: "CRAG evaluator endpoint is required when provider is http",
			})
		}
		if p.CRAG.MaxDepth < 0 {
			errs = append(errs, ValidationError{
				Field:   "pipeline.crag.max_depth",
				Message: fmt.Sprintf("max_depth must be non-negative, got %d", p.CRAG.MaxDepth),
			})
		}
		if fm := p.CRAG.FailMode; fm != "" && fm != "open" && fm != "closed" {
			errs = append(errs, ValidationError{
				Field:   "pipeline.crag.fail_mode",
				Message: fmt.Sprintf("fail_mode must be open or closed, got %q", fm),
			})
		}
	}

	if p.Filter != nil && p.Filter.Enable {
		if m := strings.ToLower(p.Filter.Mode); m != "" && m != "include" && m != "exclude" {
			errs = append(errs, ValidationError{
				Field:   "pipeline.filter.mode",
				Message: fmt.Sprintf("filter mode must be include or exclude, got %q", p.Filter.Mode),
			})
		}
	}

	if p.Gate != nil && p.Gate.Enable {
		if p.Gate.HighScore > 0 && p.Gate.LowScore > 0 && p.Gate.LowScore >= p.Gate.HighScore {
			errs = append(errs, ValidationError{
				Field:   "pipeline.gate",
				Message: fmt.Sprintf("low_score (%.2f) must be less than high_score (%.2f)", p.Gate.LowScore, p.Gate.HighScore),
			})
		}
	}

	return errs
}

func (c *Config) validateValidator() ValidationErrors {
	var errs ValidationErrors
	v := c.Validator

	if v.MaxInputLength < 0 {
		errs = append(errs, ValidationError{
			Field:   "validator.max_input_length",
			Message: fmt.Sprintf("max_input_length must be non-negative, got %d", v.MaxInputLength),
		})
	}
	if fm := v.Judge.FailMode; fm != "" && fm != "open" && fm != "closed" {
		errs = append(errs, ValidationError{
			Field:   "validator.judge.fail_mode",
			Message: fmt.Sprintf("fail_mode must be open or closed, got %q", fm),
		})
	}

	return errs
}

package config

// PipelineConfig defines the retrieval and execution pipeline settings.
type PipelineConfig struct {
	// RRFK is the reciprocal-rank-fusion constant; typical default 60.
	RRFK int `json:"rrf_k,omitempty" yaml:"rrf_k,omitempty"`
	// HybridTopK is the candidate width requested from each channel.
	HybridTopK int `json:"hybrid_top_k,omitempty" yaml:"hybrid_top_k,omitempty"`
	// RerankTopN is the slice width handed to the reranker.
	RerankTopN int `json:"rerank_top_n,omitempty" yaml:"rerank_top_n,omitempty"`
	// FinalTopK is the number of hits delivered to generation.
	FinalTopK int `json:"final_top_k,omitempty" yaml:"final_top_k,omitempty"`

	// MultiQueryCount paraphrase variants per retrieval fan-out.
	MultiQueryCount int `json:"multi_query_count,omitempty" yaml:"multi_query_count,omitempty"`
	// MaxSubQueries caps advisory sub-query decomposition.
	MaxSubQueries int `json:"max_sub_queries,omitempty" yaml:"max_sub_queries,omitempty"`
	// WorkerPoolSize bounds concurrent sub-query pipelines.
	WorkerPoolSize int `json:"worker_pool_size,omitempty" yaml:"worker_pool_size,omitempty"`
	// ContextTokenBudget caps the formatted retrieval context size.
	ContextTokenBudget int `json:"context_token_budget,omitempty" yaml:"context_token_budget,omitempty"`

	Fusion  *FusionConfig  `json:"fusion,omitempty" yaml:"fusion,omitempty"`
	Rerank  *RerankConfig  `json:"rerank,omitempty" yaml:"rerank,omitempty"`
	CRAG    *CRAGConfig    `json:"crag,omitempty" yaml:"crag,omitempty"`
	Filter  *FilterConfig  `json:"filter,omitempty" yaml:"filter,omitempty"`
	Gate    *GateConfig    `json:"gate,omitempty" yaml:"gate,omitempty"`
	Lexical *LexicalConfig `json:"lexical,omitempty" yaml:"lexical,omitempty"`
	Cache   *CacheConfig   `json:"cache,omitempty" yaml:"cache,omitempty"`

	// RetrievalProfiles override widths per intent.
	RetrievalProfiles []RetrievalProfile `json:"retrieval_profiles,omitempty" yaml:"retrieval_profiles,omitempty"`

	// DirectResponses override the canned texts keyed by intent
	// (malicious_content, unsupported, out_of_domain, busy, no_information).
	DirectResponses map[string]string `json:"direct_responses,omitempty" yaml:"direct_responses,omitempty"`
}

// RetrievalProfile describes retrieval parameters for one intent.
type RetrievalProfile struct {
	Name             string   `json:"name" yaml:"name"`
	Intent           string   `json:"intent,omitempty" yaml:"intent,omitempty"`
	Retrievers       []string `json:"retrievers,omitempty" yaml:"retrievers,omitempty"`
	TopK             int      `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	PerRetrieverTopK int      `json:"per_retriever_top_k,omitempty" yaml:"per_retriever_top_k,omitempty"`
	Threshold        float64  `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Corpus           string   `json:"corpus,omitempty" yaml:"corpus,omitempty"`
	EnableMultiQuery bool     `json:"enable_multi_query,omitempty" yaml:"enable_multi_query,omitempty"`
	// MaxFanout caps concurrent retrieval fan-out for this profile (0 => no cap).
	MaxFanout int `json:"max_fanout,omitempty" yaml:"max_fanout,omitempty"`
}

// FusionConfig selects the rank-fusion strategy for the hybrid retriever.
type FusionConfig struct {
	// Strategy: "rrf" (default), "weighted", "linear", "distribution".
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	// Params: strategy-specific parameters (e.g. weights, k value).
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// RerankConfig controls the external relevance-scoring call.
type RerankConfig struct {
	Enable bool `json:"enable,omitempty" yaml:"enable,omitempty"`
	// Provider: "model" (API-contract reranker, default), "http", "keyword".
	Provider  string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	TopN      int    `json:"top_n,omitempty" yaml:"top_n,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// CRAGConfig controls the corrective retrieval quality gate.
type CRAGConfig struct {
	Enable bool `json:"enable,omitempty" yaml:"enable,omitempty"`
	// MaxDepth bounds corrective recursion; default 2.
	MaxDepth int `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	// EvalTopK documents shown to the evaluator; default 5.
	EvalTopK int `json:"eval_top_k,omitempty" yaml:"eval_top_k,omitempty"`
	// Provider: "llm" (default) or "http".
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// FailMode on evaluator failure: "open" (default, keep hits) or "closed".
	FailMode string `json:"fail_mode,omitempty" yaml:"fail_mode,omitempty"`
}

// FilterConfig defines metadata filtering over fused hits.
// Mode "include" keeps hits whose field values match the rules;
// "exclude" drops them.
type FilterConfig struct {
	Enable bool                `json:"enable,omitempty" yaml:"enable,omitempty"`
	Mode   string              `json:"mode,omitempty" yaml:"mode,omitempty"`
	Rules  map[string][]string `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// GateConfig controls the dense preflight stage gate.
type GateConfig struct {
	Enable bool `json:"enable,omitempty" yaml:"enable,omitempty"`
	// HighScore: preflight top1 >= this skips rerank+CRAG.
	HighScore float64 `json:"high_score,omitempty" yaml:"high_score,omitempty"`
	// LowScore: preflight top1 < this forces CRAG even when disabled.
	LowScore float64 `json:"low_score,omitempty" yaml:"low_score,omitempty"`
}

// LexicalConfig controls the in-process BM25 index.
type LexicalConfig struct {
	// RebuildIntervalSeconds between full index rebuilds; default 300.
	RebuildIntervalSeconds int     `json:"rebuild_interval_seconds,omitempty" yaml:"rebuild_interval_seconds,omitempty"`
	K1                     float64 `json:"k1,omitempty" yaml:"k1,omitempty"`
	B                      float64 `json:"b,omitempty" yaml:"b,omitempty"`
}

// CacheConfig controls the query-processing result cache.
type CacheConfig struct {
	Enable     bool `json:"enable,omitempty" yaml:"enable,omitempty"`
	MaxEntries int  `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
	TTLSeconds int  `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
}

// DefaultPipeline returns the pipeline defaults matching the documented
// widths: 50 per channel, 30 to rerank, 5 to generation.
func DefaultPipeline() *PipelineConfig {
	return &PipelineConfig{
		RRFK:               60,
		HybridTopK:         50,
		RerankTopN:         30,
		FinalTopK:          5,
		MultiQueryCount:    3,
		MaxSubQueries:      3,
		WorkerPoolSize:     8,
		ContextTokenBudget: 3000,
		Fusion:             &FusionConfig{Strategy: "rrf", Params: map[string]interface{}{"k": 60}},
		Rerank:             &RerankConfig{},
		CRAG:               &CRAGConfig{Enable: true, MaxDepth: 2, EvalTopK: 5, Provider: "llm", FailMode: "open"},
		Lexical:            &LexicalConfig{RebuildIntervalSeconds: 300, K1: 1.2, B: 0.75},
	}
}

// ApplyDefaults fills unset pipeline fields in place.
func (p *PipelineConfig) ApplyDefaults() {
	d := DefaultPipeline()
	if p.RRFK == 0 {
		p.RRFK = d.RRFK
	}
	if p.HybridTopK == 0 {
		p.HybridTopK = d.HybridTopK
	}
	if p.RerankTopN == 0 {
		p.RerankTopN = d.RerankTopN
	}
	if p.FinalTopK == 0 {
		p.FinalTopK = d.FinalTopK
	}
	if p.MultiQueryCount == 0 {
		p.MultiQueryCount = d.MultiQueryCount
	}
	if p.MaxSubQueries == 0 {
		p.MaxSubQueries = d.MaxSubQueries
	}
	if p.WorkerPoolSize == 0 {
		p.WorkerPoolSize = d.WorkerPoolSize
	}
	if p.ContextTokenBudget == 0 {
		p.ContextTokenBudget = d.ContextTokenBudget
	}
	if p.Fusion == nil {
		p.Fusion = d.Fusion
	}
	if p.Rerank == nil {
		p.Rerank = d.Rerank
	}
	if p.CRAG == nil {
		p.CRAG = d.CRAG
	} else {
		if p.CRAG.MaxDepth == 0 {
			p.CRAG.MaxDepth = 2
		}
		if p.CRAG.EvalTopK == 0 {
			p.CRAG.EvalTopK = 5
		}
		if p.CRAG.Provider == "" {
			p.CRAG.Provider = "llm"
		}
		if p.CRAG.FailMode == "" {
			p.CRAG.FailMode = "open"
		}
	}
	if p.Lexical == nil {
		p.Lexical = d.Lexical
	} else {
		if p.Lexical.RebuildIntervalSeconds == 0 {
			p.Lexical.RebuildIntervalSeconds = 300
		}
		if p.Lexical.K1 == 0 {
			p.Lexical.K1 = 1.2
		}
		if p.Lexical.B == 0 {
			p.Lexical.B = 0.75
		}
	}
}

// ProfileForIntent returns the profile bound to the given intent, or false
// when none is configured.
func (p *PipelineConfig) ProfileForIntent(intent string) (RetrievalProfile, bool) {
	for _, prof := range p.RetrievalProfiles {
		if prof.Intent == intent {
			return prof, true
		}
	}
	return RetrievalProfile{}, false
}

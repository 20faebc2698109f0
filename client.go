package ragcore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/finchat/ragcore/calc"
	"github.com/finchat/ragcore/common/httpx"
	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/crag"
	"github.com/finchat/ragcore/embedding"
	"github.com/finchat/ragcore/executor"
	"github.com/finchat/ragcore/fusion"
	"github.com/finchat/ragcore/gating"
	"github.com/finchat/ragcore/llm"
	"github.com/finchat/ragcore/memory"
	"github.com/finchat/ragcore/orchestrator"
	"github.com/finchat/ragcore/planner"
	"github.com/finchat/ragcore/post"
	pre_retrieve "github.com/finchat/ragcore/pre-retrieve"
	"github.com/finchat/ragcore/retrieval"
	"github.com/finchat/ragcore/retriever"
	"github.com/finchat/ragcore/schema"
	"github.com/finchat/ragcore/validator"
	"github.com/finchat/ragcore/vectordb"
)

// Client assembles the orchestration pipeline from config and exposes the
// operations the server surfaces: chat, document ingestion, search, and
// session management.
type Client struct {
	cfg *config.Config

	gateway   *llm.Gateway
	embedder  embedding.Provider
	store     vectordb.Store
	bm25      *retriever.BM25Retriever
	retrieval retrieval.Provider
	exec      *executor.Executor
	orch      *orchestrator.Orchestrator

	sessions   SessionStore
	convStore  memory.ConversationStore
	summarizer *memory.Summarizer

	cancel context.CancelFunc
}

// NewClient builds all pipeline components. Background loops (index
// rebuild, summarizer) run until Close.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ragcore: nil config")
	}
	logger.SetLevel(cfg.Log.Level)

	c := &Client{cfg: cfg}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	gateway, err := llm.NewGateway(&cfg.LLM)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ragcore: llm gateway: %w", err)
	}
	c.gateway = gateway

	embedder, err := embedding.NewOpenAIProvider(&cfg.Embedding)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ragcore: embedding provider: %w", err)
	}
	c.embedder = embedder

	store, err := vectordb.NewMilvusStore(ctx, &cfg.VectorDB)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ragcore: vector store: %w", err)
	}
	c.store = store

	pc := cfg.Pipeline
	c.bm25 = retriever.NewBM25Retriever(pc.Lexical, nil)
	rebuildEvery := 5 * time.Minute
	if pc.Lexical != nil && pc.Lexical.RebuildIntervalSeconds > 0 {
		rebuildEvery = time.Duration(pc.Lexical.RebuildIntervalSeconds) * time.Second
	}
	c.bm25.StartRebuildLoop(runCtx, rebuildEvery)

	retrievers := []retriever.Retriever{
		&retriever.VectorRetriever{Embedder: embedder, Store: store},
		c.bm25,
	}

	strategy := buildFusionStrategy(pc)
	httpClient := httpx.NewFromConfig(cfg.HTTP)
	reranker := post.NewReranker(pc.Rerank, httpClient)
	evaluator := buildEvaluator(pc, gateway, httpClient)
	reformulator := &crag.Reformulator{Gen: gateway}

	c.retrieval = retrieval.NewProvider(
		retrievers,
		strategy,
		retrieval.NewMetadataFilter(pc.Filter),
		gating.NewGate(pc.Gate),
		reranker,
		evaluator,
		reformulator,
		pc,
	)

	processor := pre_retrieve.NewProcessor(gateway, pc)
	exec, err := executor.New(gateway, processor, c.retrieval, post.NewContextBuilder(pc.ContextTokenBudget), calc.NewEngine(), pc)
	if err != nil {
		cancel()
		return nil, err
	}
	c.exec = exec

	if err := c.buildStores(runCtx); err != nil {
		cancel()
		return nil, err
	}

	c.orch = orchestrator.New(orchestrator.Options{
		Config:     cfg,
		Input:      validator.NewInputValidator(cfg.Validator),
		Judge:      validator.NewOutputJudge(gateway, cfg.Validator),
		Processor:  processor,
		Planner:    planner.New(pc),
		Executor:   exec,
		Fuser:      fusion.NewAnswerFuser(gateway),
		Store:      c.convStore,
		Summarizer: c.summarizer,
	})
	return c, nil
}

// buildStores wires session and conversation persistence, sharing one Redis
// connection when both use it.
func (c *Client) buildStores(runCtx context.Context) error {
	sessCfg := c.cfg.Session
	memCfg := c.cfg.Memory

	maxRounds := 20
	if memCfg != nil && memCfg.MaxRounds > 0 {
		maxRounds = memCfg.MaxRounds
	}

	if sessCfg != nil && sessCfg.Store == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     sessCfg.Redis.Address,
			Username: sessCfg.Redis.Username,
			Password: sessCfg.Redis.Password,
			DB:       sessCfg.Redis.DB,
		})
		c.sessions = NewRedisSessionStore(rdb, sessCfg)
		c.convStore = memory.NewRedisConversationStore(&memory.RedisConversationStoreConfig{
			Client:    rdb,
			MaxRounds: maxRounds,
		})
	} else {
		c.sessions = NewMemSessionStore()
		c.convStore = memory.NewInMemoryConversationStore(maxRounds)
	}

	if memCfg != nil && memCfg.EnableSummary {
		c.summarizer = memory.NewSummarizer(c.convStore, c.gateway, memCfg)
		c.summarizer.Start(runCtx)
	}
	return nil
}

func buildFusionStrategy(pc *config.PipelineConfig) fusion.Strategy {
	name := ""
	var params map[string]interface{}
	if pc.Fusion != nil {
		name = pc.Fusion.Strategy
		params = pc.Fusion.Params
	}
	strategy, _, err := fusion.NewStrategy(name, params)
	if err != nil {
		logger.Warnf("ragcore: falling back to RRF fusion: %v", err)
		return fusion.NewRRFStrategy(pc.RRFK)
	}
	return strategy
}

func buildEvaluator(pc *config.PipelineConfig, gateway *llm.Gateway, client *httpx.Client) crag.Evaluator {
	cragCfg := pc.CRAG
	if cragCfg == nil || !cragCfg.Enable {
		return nil
	}
	if cragCfg.Provider == "http" && cragCfg.Endpoint != "" {
		return &crag.HTTPEvaluator{
			Endpoint: cragCfg.Endpoint,
			Client:   client,
			EvalTopK: cragCfg.EvalTopK,
		}
	}
	return &crag.LLMEvaluator{Gen: gateway, EvalTopK: cragCfg.EvalTopK}
}

// Chat answers one user turn in the given session.
func (c *Client) Chat(ctx context.Context, sessionID, query string) (string, error) {
	answer, err := c.orch.HandleQuery(ctx, sessionID, query)
	if err != nil {
		return "", err
	}
	if sessionID != "" {
		now := time.Now()
		_ = c.sessions.AddMessage(ctx, sessionID, ChatMessage{Role: "user", Content: query, Timestamp: now})
		_ = c.sessions.AddMessage(ctx, sessionID, ChatMessage{Role: "assistant", Content: answer, Timestamp: now})
	}
	return answer, nil
}

// AddDocument embeds and indexes one document in both channels.
func (c *Client) AddDocument(ctx context.Context, content, title string, metadata map[string]interface{}) (schema.Document, error) {
	doc := schema.Document{
		ID:       uuid.NewString(),
		Content:  content,
		Metadata: metadata,
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]interface{})
	}
	if title != "" {
		doc.Metadata["title"] = title
	}

	vector, err := c.embedder.GetEmbedding(ctx, content)
	if err != nil {
		return schema.Document{}, fmt.Errorf("ragcore: embed document: %w", err)
	}
	if err := c.store.Insert(ctx, []schema.Document{doc}, [][]float32{vector}); err != nil {
		return schema.Document{}, fmt.Errorf("ragcore: index document: %w", err)
	}
	c.bm25.AddDocument(doc)
	return doc, nil
}

// Search runs the dense channel directly, outside the chat pipeline.
func (c *Client) Search(ctx context.Context, query string, topK int, threshold float64) ([]schema.SearchResult, error) {
	vector, err := c.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ragcore: embed query: %w", err)
	}
	return c.store.Search(ctx, vector, schema.SearchOptions{TopK: topK, Threshold: threshold})
}

// Sessions exposes the session store.
func (c *Client) Sessions() SessionStore { return c.sessions }

// Close stops background loops and releases resources.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.exec != nil {
		c.exec.Close()
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

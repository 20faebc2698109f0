package pre_retrieve

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/finchat/ragcore/cache"
	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/schema"
)

// Generator is the completion surface the query processors need.
type Generator interface {
	Generate(ctx context.Context, task schema.TaskType, prompt string) (string, error)
}

// Processor runs the pre-retrieval query transformations: intent
// classification, step-back abstraction, hypothetical documents, and
// multi-query expansion. Classification results are cached per
// query+history so follow-up turns in a session do not pay twice.
type Processor struct {
	gen   Generator
	cache cache.Cache
	cfg   *config.PipelineConfig

	cacheTTL time.Duration
	// sf collapses concurrent classifications of the same query+history.
	sf singleflight.Group
}

func NewProcessor(gen Generator, cfg *config.PipelineConfig) *Processor {
	if cfg == nil {
		cfg = config.DefaultPipeline()
	}
	p := &Processor{gen: gen, cfg: cfg}
	if cfg.Cache != nil && cfg.Cache.Enable {
		ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
		p.cache = cache.NewLRU(cfg.Cache.MaxEntries, ttl)
		p.cacheTTL = ttl
	}
	return p
}

// Process classifies the query and prepares the rewrites the plans will
// need: a step-back question and hypothetical document for single-intent
// retrieval, or per-task sub-queries for composite queries.
func (p *Processor) Process(ctx context.Context, query string, history string) (*schema.ProcessingResult, error) {
	tasks, err := p.ClassifyIntent(ctx, query, history)
	if err != nil {
		return nil, err
	}
	result := &schema.ProcessingResult{Tasks: tasks}

	// rewrites only help retrieval-bound intents
	if len(tasks) == 1 && tasks[0].Intent == schema.IntentKnowledgeQuery {
		if sb, err := p.StepBack(ctx, query); err == nil {
			result.StepBackQuestion = sb
		}
		if doc, err := p.HypotheticalDocument(ctx, query); err == nil {
			result.HypotheticalDoc = doc
		}
	}
	return result, nil
}

func (p *Processor) cacheGet(kind, query, history string) (any, bool) {
	if p.cache == nil {
		return nil, false
	}
	return p.cache.Get(cacheKey(kind, query, history))
}

func (p *Processor) cacheSet(kind, query, history string, value any) {
	if p.cache == nil {
		return
	}
	p.cache.Set(cacheKey(kind, query, history), value, p.cacheTTL)
	logger.Debugf("pre-retrieve: cached %s result", kind)
}

func cacheKey(kind, query, history string) string {
	h := sha1.Sum([]byte(query + "\x00" + history))
	return kind + ":" + hex.EncodeToString(h[:])
}

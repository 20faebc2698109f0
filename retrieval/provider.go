package retrieval

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/crag"
	"github.com/finchat/ragcore/fusion"
	"github.com/finchat/ragcore/gating"
	"github.com/finchat/ragcore/metrics"
	"github.com/finchat/ragcore/post"
	"github.com/finchat/ragcore/retriever"
	"github.com/finchat/ragcore/schema"
)

// Provider runs the full retrieval pipeline for a set of query variants:
// hybrid fan-out, rank fusion, metadata filtering, reranking, corrective
// evaluation, and the final cut.
type Provider interface {
	Retrieve(ctx context.Context, queries []string, profile config.RetrievalProfile, m *metrics.RetrievalMetrics) []schema.SearchResult
	SetFusionStrategy(strategy fusion.Strategy)
}

type defaultProvider struct {
	retrievers   []retriever.Retriever
	retrieverMap map[string]retriever.Retriever

	strategy     fusion.Strategy
	filter       *MetadataFilter
	gate         *gating.Gate
	reranker     post.Reranker
	evaluator    crag.Evaluator
	reformulator *crag.Reformulator

	cfg *config.PipelineConfig
}

// NewProvider wires the pipeline stages. Nil stages degrade to pass-through.
func NewProvider(
	retrievers []retriever.Retriever,
	strategy fusion.Strategy,
	filter *MetadataFilter,
	gate *gating.Gate,
	reranker post.Reranker,
	evaluator crag.Evaluator,
	reformulator *crag.Reformulator,
	cfg *config.PipelineConfig,
) Provider {
	if cfg == nil {
		cfg = config.DefaultPipeline()
	}
	if strategy == nil {
		strategy = fusion.NewRRFStrategy(cfg.RRFK)
	}
	retrieverMap := make(map[string]retriever.Retriever, len(retrievers))
	for _, r := range retrievers {
		retrieverMap[strings.ToLower(r.Type())] = r
	}
	return &defaultProvider{
		retrievers:   retrievers,
		retrieverMap: retrieverMap,
		strategy:     strategy,
		filter:       filter,
		gate:         gate,
		reranker:     reranker,
		evaluator:    evaluator,
		reformulator: reformulator,
		cfg:          cfg,
	}
}

func (p *defaultProvider) SetFusionStrategy(strategy fusion.Strategy) {
	if strategy != nil {
		p.strategy = strategy
	}
}

// Retrieve runs the pipeline and returns the final top-K passages.
func (p *defaultProvider) Retrieve(ctx context.Context, queries []string, profile config.RetrievalProfile, m *metrics.RetrievalMetrics) []schema.SearchResult {
	if len(p.retrievers) == 0 {
		logger.Warnf("retrieval: no retrievers available")
		return []schema.SearchResult{}
	}
	results := p.retrieveOnce(ctx, queries, profile, m, 0)

	finalK := profile.TopK
	if finalK <= 0 {
		finalK = p.cfg.FinalTopK
	}
	if len(results) > finalK {
		results = results[:finalK]
	}
	return results
}

// retrieveOnce is one pipeline round. An ambiguous corrective verdict
// recurses with a reformulated query until MaxDepth is reached.
func (p *defaultProvider) retrieveOnce(ctx context.Context, queries []string, profile config.RetrievalProfile, m *metrics.RetrievalMetrics, depth int) []schema.SearchResult {
	if len(queries) == 0 {
		return []schema.SearchResult{}
	}
	active := p.selectRetrievers(profile)
	if len(active) == 0 {
		logger.Warnf("retrieval: no active retrievers for profile %s", profile.Name)
		return []schema.SearchResult{}
	}
	if m != nil && depth == 0 {
		types := make([]string, len(active))
		for i, r := range active {
			types[i] = r.Type()
		}
		m.RetrieversUsed = types
	}

	lists := p.parallelRetrieve(ctx, queries, active, profile, m)
	fused := p.fuse(lists, m)

	if p.filter != nil {
		var dropped int
		fused, dropped = p.filter.Apply(fused)
		if m != nil {
			m.FilteredOut += dropped
		}
	}

	var decision gating.Decision
	if p.gate != nil {
		decision = p.gate.Evaluate(fused, m)
	}

	if !decision.SkipRerank && p.reranker != nil {
		start := time.Now()
		reranked, err := p.reranker.Rerank(ctx, queries[0], fused, p.cfg.RerankTopN)
		if err != nil {
			logger.Warnf("retrieval: rerank failed, keeping fused order: %v", err)
		} else {
			fused = reranked
		}
		if m != nil {
			m.RerankEnabled = true
			m.RerankLatencyMs = time.Since(start).Milliseconds()
			m.RerankResultCount = len(fused)
		}
	} else if len(fused) > p.cfg.RerankTopN && p.cfg.RerankTopN > 0 {
		fused = fused[:p.cfg.RerankTopN]
	}

	return p.evaluate(ctx, queries, fused, profile, m, decision, depth)
}

// evaluate runs the corrective gate over the reranked set.
func (p *defaultProvider) evaluate(ctx context.Context, queries []string, results []schema.SearchResult, profile config.RetrievalProfile, m *metrics.RetrievalMetrics, decision gating.Decision, depth int) []schema.SearchResult {
	cragCfg := p.cfg.CRAG
	enabled := cragCfg != nil && cragCfg.Enable && p.evaluator != nil
	if decision.SkipEvaluate && !decision.ForceEvaluate {
		return results
	}
	if !enabled && !decision.ForceEvaluate {
		return results
	}
	if p.evaluator == nil || len(results) == 0 {
		return results
	}

	maxDepth := 2
	if cragCfg != nil && cragCfg.MaxDepth > 0 {
		maxDepth = cragCfg.MaxDepth
	}

	ev, err := p.evaluator.Evaluate(ctx, queries[0], results)
	if err != nil {
		logger.Warnf("retrieval: corrective evaluation failed, passing through: %v", err)
		return results
	}
	metrics.IncCRAGVerdict(ev.Verdict.String())
	if m != nil {
		m.CRAGEnabled = true
		m.CRAGVerdict = ev.Verdict.String()
		m.CRAGScore = ev.Score
		m.CRAGDepth = depth
	}

	switch ev.Verdict {
	case crag.VerdictBad:
		logger.Infof("retrieval: bad verdict at depth %d, discarding %d results (%s)", depth, len(results), ev.Reasoning)
		return crag.Discard()
	case crag.VerdictAmbiguous:
		if depth >= maxDepth {
			return results
		}
		retry := ev.ReformulatedQuery
		if retry == "" && p.reformulator != nil {
			retry, _ = p.reformulator.Reformulate(ctx, queries[0])
		}
		if retry == "" || retry == queries[0] {
			return results
		}
		logger.Infof("retrieval: ambiguous verdict (%s), corrective round with %q", ev.Reasoning, retry)
		corrective := p.retrieveOnce(ctx, []string{retry}, profile, m, depth+1)
		limit := p.cfg.RerankTopN
		if limit <= 0 {
			limit = len(results) + len(corrective)
		}
		return crag.MergeResults(results, corrective, limit)
	default:
		return results
	}
}

func (p *defaultProvider) selectRetrievers(profile config.RetrievalProfile) []retriever.Retriever {
	if len(profile.Retrievers) == 0 {
		return p.retrievers
	}
	selected := make([]retriever.Retriever, 0, len(profile.Retrievers))
	for _, key := range profile.Retrievers {
		if r, ok := p.retrieverMap[strings.ToLower(strings.TrimSpace(key))]; ok {
			selected = append(selected, r)
		}
	}
	return selected
}

// parallelRetrieve fans each query variant out to each active retriever.
// A failed call drops its list; the others proceed.
func (p *defaultProvider) parallelRetrieve(
	ctx context.Context,
	queries []string,
	retrievers []retriever.Retriever,
	profile config.RetrievalProfile,
	m *metrics.RetrievalMetrics,
) [][]schema.SearchResult {
	if profile.MaxFanout > 0 && len(queries)*len(retrievers) > profile.MaxFanout {
		maxQueries := profile.MaxFanout / len(retrievers)
		if maxQueries < 1 {
			maxQueries = 1
		}
		if len(queries) > maxQueries {
			queries = queries[:maxQueries]
			logger.Infof("retrieval: limited queries to %d (max_fanout=%d)", maxQueries, profile.MaxFanout)
		}
	}

	perRetrieverK := profile.PerRetrieverTopK
	if perRetrieverK <= 0 {
		perRetrieverK = p.cfg.HybridTopK
	}
	opts := schema.SearchOptions{
		TopK:      perRetrieverK,
		Corpus:    profile.Corpus,
		Threshold: profile.Threshold,
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		lists [][]schema.SearchResult
	)
	for _, q := range queries {
		for _, ret := range retrievers {
			wg.Add(1)
			go func(query string, r retriever.Retriever) {
				defer wg.Done()

				start := time.Now()
				docs, err := r.Search(ctx, query, opts)
				latency := time.Since(start).Milliseconds()
				metrics.ObserveRetriever(r.Type(), start, len(docs))

				if err != nil {
					logger.Warnf("retrieval: %s search failed for query %q: %v", r.Type(), query, err)
					return
				}

				if m != nil {
					var avgScore, topScore float64
					if len(docs) > 0 {
						topScore = docs[0].Score
						sum := 0.0
						for _, d := range docs {
							sum += d.Score
						}
						avgScore = sum / float64(len(docs))
					}
					mu.Lock()
					m.AddRetrieverStats(metrics.RetrieverStats{
						Type:        r.Type(),
						LatencyMs:   latency,
						ResultCount: len(docs),
						AvgScore:    avgScore,
						TopScore:    topScore,
					})
					mu.Unlock()
				}

				mu.Lock()
				lists = append(lists, docs)
				mu.Unlock()

				logger.Debugf("retrieval: %s returned %d docs in %dms for query %q",
					r.Type(), len(docs), latency, query)
			}(q, ret)
		}
	}
	wg.Wait()

	if m != nil {
		total := 0
		for _, l := range lists {
			total += len(l)
		}
		m.TotalRetrieved += total
	}
	return lists
}

func (p *defaultProvider) fuse(lists [][]schema.SearchResult, m *metrics.RetrievalMetrics) []schema.SearchResult {
	if len(lists) == 0 {
		return []schema.SearchResult{}
	}
	start := time.Now()
	metrics.ObserveFusion(len(lists))
	// score thresholds are applied per-retriever; fused RRF scores live on
	// a different scale
	fused := p.strategy.Fuse(lists)
	if m != nil {
		m.RecordFusion(p.strategy.Name(), len(fused), time.Since(start).Milliseconds())
	}
	return fused
}

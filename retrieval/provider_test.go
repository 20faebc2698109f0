package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/crag"
	"github.com/finchat/ragcore/gating"
	"github.com/finchat/ragcore/retriever"
	"github.com/finchat/ragcore/schema"
)

type stubRetriever struct {
	typ string
	// byQuery overrides results for specific queries; fallthrough to docs
	byQuery map[string][]schema.SearchResult
	docs    []schema.SearchResult
	err     error

	mu      sync.Mutex
	queries []string
}

func (s *stubRetriever) Type() string { return s.typ }

func (s *stubRetriever) Search(_ context.Context, query string, _ schema.SearchOptions) ([]schema.SearchResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if docs, ok := s.byQuery[query]; ok {
		return docs, nil
	}
	return s.docs, nil
}

type stubEvaluator struct {
	evals []crag.Evaluation
	calls int
}

func (s *stubEvaluator) Evaluate(context.Context, string, []schema.SearchResult) (crag.Evaluation, error) {
	i := s.calls
	s.calls++
	if i >= len(s.evals) {
		i = len(s.evals) - 1
	}
	return s.evals[i], nil
}

type recordingReranker struct {
	calls int
}

func (r *recordingReranker) Rerank(_ context.Context, _ string, in []schema.SearchResult, topN int) ([]schema.SearchResult, error) {
	r.calls++
	if topN > 0 && len(in) > topN {
		in = in[:topN]
	}
	return in, nil
}

func denseDocs(n int) []schema.SearchResult {
	out := make([]schema.SearchResult, n)
	for i := 0; i < n; i++ {
		out[i] = schema.SearchResult{
			Document:   schema.Document{ID: fmt.Sprintf("doc-%d", i), Content: "body"},
			DenseScore: 1.0 - float64(i)*0.05,
			DenseRank:  i,
			Score:      1.0 - float64(i)*0.05,
		}
	}
	return out
}

func pipelineCfg() *config.PipelineConfig {
	cfg := config.DefaultPipeline()
	cfg.CRAG = &config.CRAGConfig{Enable: false}
	cfg.Gate = nil
	cfg.Filter = nil
	return cfg
}

func TestRetrieveFinalTopK(t *testing.T) {
	cfg := pipelineCfg()
	cfg.FinalTopK = 3
	ret := &stubRetriever{typ: "vector", docs: denseDocs(10)}
	p := NewProvider([]retriever.Retriever{ret}, nil, nil, nil, nil, nil, nil, cfg)

	got := p.Retrieve(context.Background(), []string{"q"}, config.RetrievalProfile{}, nil)
	if len(got) != 3 {
		t.Fatalf("expected final cut to 3, got %d", len(got))
	}
}

func TestRetrieveDropsFailedChannel(t *testing.T) {
	cfg := pipelineCfg()
	good := &stubRetriever{typ: "vector", docs: denseDocs(4)}
	bad := &stubRetriever{typ: "bm25", err: errors.New("index rebuilding")}
	p := NewProvider([]retriever.Retriever{good, bad}, nil, nil, nil, nil, nil, nil, cfg)

	got := p.Retrieve(context.Background(), []string{"q"}, config.RetrievalProfile{}, nil)
	if len(got) == 0 {
		t.Fatal("surviving channel should still produce results")
	}
}

func TestRetrieveProfileSelectsRetrievers(t *testing.T) {
	cfg := pipelineCfg()
	vec := &stubRetriever{typ: "vector", docs: denseDocs(2)}
	lex := &stubRetriever{typ: "bm25", docs: denseDocs(2)}
	p := NewProvider([]retriever.Retriever{vec, lex}, nil, nil, nil, nil, nil, nil, cfg)

	profile := config.RetrievalProfile{Retrievers: []string{"BM25"}}
	p.Retrieve(context.Background(), []string{"q"}, profile, nil)
	if len(vec.queries) != 0 {
		t.Errorf("vector channel should be excluded, saw queries %v", vec.queries)
	}
	if len(lex.queries) != 1 {
		t.Errorf("bm25 channel should run once, saw %v", lex.queries)
	}
}

func TestRetrieveBadVerdictDiscards(t *testing.T) {
	cfg := pipelineCfg()
	cfg.CRAG = &config.CRAGConfig{Enable: true, MaxDepth: 2}
	ret := &stubRetriever{typ: "vector", docs: denseDocs(4)}
	eval := &stubEvaluator{evals: []crag.Evaluation{{Verdict: crag.VerdictBad, Score: 0.1}}}
	p := NewProvider([]retriever.Retriever{ret}, nil, nil, nil, nil, eval, nil, cfg)

	got := p.Retrieve(context.Background(), []string{"q"}, config.RetrievalProfile{}, nil)
	if len(got) != 0 {
		t.Errorf("bad verdict should discard all results, got %d", len(got))
	}
}

func TestRetrieveAmbiguousMergesCorrectiveRound(t *testing.T) {
	cfg := pipelineCfg()
	cfg.CRAG = &config.CRAGConfig{Enable: true, MaxDepth: 2}
	cfg.FinalTopK = 10
	ret := &stubRetriever{
		typ:  "vector",
		docs: denseDocs(2),
		byQuery: map[string][]schema.SearchResult{
			"refined": {{
				Document:   schema.Document{ID: "corrective-doc", Content: "body"},
				DenseScore: 0.99,
			}},
		},
	}
	eval := &stubEvaluator{evals: []crag.Evaluation{
		{Verdict: crag.VerdictAmbiguous, Score: 0.5, ReformulatedQuery: "refined"},
		{Verdict: crag.VerdictGood, Score: 0.9},
	}}
	p := NewProvider([]retriever.Retriever{ret}, nil, nil, nil, nil, eval, nil, cfg)

	got := p.Retrieve(context.Background(), []string{"q"}, config.RetrievalProfile{}, nil)
	found := false
	for _, r := range got {
		if r.Document.ID == "corrective-doc" {
			found = true
		}
	}
	if !found {
		t.Errorf("corrective round results missing from merge: %+v", got)
	}
	if got[0].Document.ID != "doc-0" {
		t.Errorf("merge should favor the original round, got %s first", got[0].Document.ID)
	}
}

func TestRetrieveAmbiguousDepthBounded(t *testing.T) {
	cfg := pipelineCfg()
	cfg.CRAG = &config.CRAGConfig{Enable: true, MaxDepth: 2}
	ret := &stubRetriever{typ: "vector", docs: denseDocs(3)}
	// always ambiguous with a fresh reformulation; depth must stop it
	eval := &stubEvaluator{evals: []crag.Evaluation{
		{Verdict: crag.VerdictAmbiguous, Score: 0.5, ReformulatedQuery: "retry-1"},
		{Verdict: crag.VerdictAmbiguous, Score: 0.5, ReformulatedQuery: "retry-2"},
		{Verdict: crag.VerdictAmbiguous, Score: 0.5, ReformulatedQuery: "retry-3"},
	}}
	p := NewProvider([]retriever.Retriever{ret}, nil, nil, nil, nil, eval, nil, cfg)

	got := p.Retrieve(context.Background(), []string{"q"}, config.RetrievalProfile{}, nil)
	if len(got) == 0 {
		t.Fatal("depth-bounded retrieval should still return results")
	}
	// two corrective rounds at depths 1 and 2, each evaluated once
	if eval.calls != 3 {
		t.Errorf("max depth 2 allows exactly 2 corrective rounds (3 evaluations), got %d", eval.calls)
	}
}

func TestRetrieveGateSkipsRerankAndEvaluation(t *testing.T) {
	cfg := pipelineCfg()
	cfg.CRAG = &config.CRAGConfig{Enable: true, MaxDepth: 2}
	cfg.Gate = &config.GateConfig{Enable: true, HighScore: 0.8, LowScore: 0.3}

	ret := &stubRetriever{typ: "vector", docs: denseDocs(4)}
	rr := &recordingReranker{}
	eval := &stubEvaluator{evals: []crag.Evaluation{{Verdict: crag.VerdictBad}}}
	p := NewProvider([]retriever.Retriever{ret}, nil, nil, gating.NewGate(cfg.Gate), rr, eval, nil, cfg)

	got := p.Retrieve(context.Background(), []string{"q"}, config.RetrievalProfile{}, nil)
	if rr.calls != 0 {
		t.Errorf("high-confidence run should skip the reranker, got %d calls", rr.calls)
	}
	if eval.calls != 0 {
		t.Errorf("high-confidence run should skip evaluation, got %d calls", eval.calls)
	}
	if len(got) == 0 {
		t.Error("skipping stages must not drop results")
	}
}

func TestRetrieveRerankTruncates(t *testing.T) {
	cfg := pipelineCfg()
	cfg.RerankTopN = 2
	cfg.FinalTopK = 5
	ret := &stubRetriever{typ: "vector", docs: denseDocs(6)}
	rr := &recordingReranker{}
	p := NewProvider([]retriever.Retriever{ret}, nil, nil, nil, rr, nil, nil, cfg)

	got := p.Retrieve(context.Background(), []string{"q"}, config.RetrievalProfile{}, nil)
	if rr.calls != 1 {
		t.Fatalf("expected one rerank call, got %d", rr.calls)
	}
	if len(got) != 2 {
		t.Errorf("rerank should cut to top_n=2, got %d", len(got))
	}
}

func TestRetrieveNoRetrievers(t *testing.T) {
	p := NewProvider(nil, nil, nil, nil, nil, nil, nil, pipelineCfg())
	got := p.Retrieve(context.Background(), []string{"q"}, config.RetrievalProfile{}, nil)
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

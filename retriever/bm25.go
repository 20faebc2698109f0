package retriever

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/schema"
)

// BM25Retriever is an in-process lexical index over the document corpus.
// Searches read an immutable snapshot; rebuilds assemble a fresh snapshot
// off to the side and swap it in atomically, so a reader never sees a
// half-built index.
type BM25Retriever struct {
	k1     float64
	b      float64
	source DocumentSource

	mu   sync.Mutex // guards docs and rebuilds
	docs map[string]schema.Document

	snap atomic.Pointer[bm25Snapshot]
}

// DocumentSource supplies the authoritative corpus for full rebuilds.
// When nil, rebuilds use the documents added through AddDocument.
type DocumentSource interface {
	LoadDocuments(ctx context.Context) ([]schema.Document, error)
}

type bm25Snapshot struct {
	docs     []schema.Document
	lengths  []int
	avgLen   float64
	postings map[string][]posting
	builtAt  time.Time
}

type posting struct {
	doc int
	tf  int
}

func NewBM25Retriever(cfg *config.LexicalConfig, source DocumentSource) *BM25Retriever {
	k1, b := 1.2, 0.75
	if cfg != nil {
		if cfg.K1 > 0 {
			k1 = cfg.K1
		}
		if cfg.B > 0 {
			b = cfg.B
		}
	}
	r := &BM25Retriever{
		k1:     k1,
		b:      b,
		source: source,
		docs:   make(map[string]schema.Document),
	}
	r.snap.Store(&bm25Snapshot{postings: map[string][]posting{}})
	return r
}

func (r *BM25Retriever) Type() string { return "bm25" }

// AddDocument indexes one document. The document also participates in
// subsequent full rebuilds.
func (r *BM25Retriever) AddDocument(doc schema.Document) {
	if doc.Content == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[docKey(doc)] = doc
	r.swapSnapshot(r.collectLocked())
}

// Rebuild reloads the corpus from the document source and rebuilds the
// index from scratch. The current snapshot stays searchable throughout.
func (r *BM25Retriever) Rebuild(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := r.collectLocked()
	if r.source != nil {
		loaded, err := r.source.LoadDocuments(ctx)
		if err != nil {
			logger.Warnf("bm25: rebuild load failed, keeping current index: %v", err)
			return err
		}
		r.docs = make(map[string]schema.Document, len(loaded))
		for _, d := range loaded {
			if d.Content != "" {
				r.docs[docKey(d)] = d
			}
		}
		docs = r.collectLocked()
	}
	r.swapSnapshot(docs)
	logger.Infof("bm25: index rebuilt with %d documents", len(docs))
	return nil
}

// StartRebuildLoop rebuilds the index at the configured interval until the
// context is cancelled.
func (r *BM25Retriever) StartRebuildLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = r.Rebuild(ctx)
			}
		}
	}()
}

// Size returns the number of indexed documents.
func (r *BM25Retriever) Size() int {
	return len(r.snap.Load().docs)
}

func (r *BM25Retriever) collectLocked() []schema.Document {
	docs := make([]schema.Document, 0, len(r.docs))
	for _, d := range r.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docKey(docs[i]) < docKey(docs[j]) })
	return docs
}

func (r *BM25Retriever) swapSnapshot(docs []schema.Document) {
	snap := &bm25Snapshot{
		docs:     docs,
		lengths:  make([]int, len(docs)),
		postings: make(map[string][]posting),
		builtAt:  time.Now(),
	}
	total := 0
	for i, d := range docs {
		counts := termCounts(d.Content)
		length := 0
		for term, tf := range counts {
			snap.postings[term] = append(snap.postings[term], posting{doc: i, tf: tf})
			length += tf
		}
		snap.lengths[i] = length
		total += length
	}
	if len(docs) > 0 {
		snap.avgLen = float64(total) / float64(len(docs))
	}
	r.snap.Store(snap)
}

// Search scores the query terms against the current snapshot.
func (r *BM25Retriever) Search(ctx context.Context, query string, opts schema.SearchOptions) ([]schema.SearchResult, error) {
	snap := r.snap.Load()
	if len(snap.docs) == 0 {
		return []schema.SearchResult{}, nil
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	scores := make(map[int]float64)
	n := float64(len(snap.docs))
	for term := range termCounts(query) {
		plist, ok := snap.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (n-float64(len(plist))+0.5)/(float64(len(plist))+0.5))
		for _, p := range plist {
			tf := float64(p.tf)
			norm := 1 - r.b + r.b*float64(snap.lengths[p.doc])/snap.avgLen
			scores[p.doc] += idf * tf * (r.k1 + 1) / (tf + r.k1*norm)
		}
	}

	ranked := make([]schema.SearchResult, 0, len(scores))
	for idx, score := range scores {
		if opts.Threshold > 0 && score < opts.Threshold {
			continue
		}
		ranked = append(ranked, schema.SearchResult{
			Document:    snap.docs[idx],
			Score:       score,
			SparseScore: score,
			DenseRank:   -1,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

func docKey(d schema.Document) string {
	if d.ID != "" {
		return d.ID
	}
	r := schema.SearchResult{Document: d}
	return r.HitID()
}

// termCounts tokenizes on non-letter/digit boundaries, lowercased.
func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) < 2 && !unicode.IsDigit(rune(tok[0])) {
			continue
		}
		counts[tok]++
	}
	return counts
}

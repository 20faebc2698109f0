package fusion

import (
	"math"
	"testing"

	"github.com/finchat/ragcore/schema"
)

func doc(id string) schema.Document {
	return schema.Document{ID: id, Content: "content for " + id}
}

func TestRRFScoreFormula(t *testing.T) {
	dense := []schema.SearchResult{
		{Document: doc("a"), DenseScore: 0.9, DenseRank: 0},
		{Document: doc("b"), DenseScore: 0.8, DenseRank: 1},
	}
	sparse := []schema.SearchResult{
		{Document: doc("b"), SparseScore: 4.2, DenseRank: -1},
		{Document: doc("c"), SparseScore: 3.1, DenseRank: -1},
	}

	fused := RRFScore([][]schema.SearchResult{dense, sparse}, 60)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused hits, got %d", len(fused))
	}

	// b appears at rank 0 in one list and rank 1 in the other
	wantB := 1.0/61.0 + 1.0/62.0
	if fused[0].Document.ID != "b" {
		t.Fatalf("expected b first, got %s", fused[0].Document.ID)
	}
	if math.Abs(fused[0].FusedScore-wantB) > 1e-12 {
		t.Errorf("b fused score = %v, want %v", fused[0].FusedScore, wantB)
	}
	if fused[0].DenseScore != 0.8 || fused[0].SparseScore != 4.2 {
		t.Errorf("channel scores not merged: %+v", fused[0])
	}
}

func TestRRFScoreTieBreakByDenseRank(t *testing.T) {
	// a and c each appear once at rank 0, so scores tie; a holds a dense
	// rank and must sort first
	dense := []schema.SearchResult{{Document: doc("a"), DenseScore: 0.9, DenseRank: 0}}
	sparse := []schema.SearchResult{{Document: doc("c"), SparseScore: 2.0, DenseRank: -1}}

	fused := RRFScore([][]schema.SearchResult{dense, sparse}, 60)
	if len(fused) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(fused))
	}
	if fused[0].Document.ID != "a" {
		t.Errorf("dense-ranked hit should win the tie, got %s first", fused[0].Document.ID)
	}
}

func TestRRFScoreDefaultK(t *testing.T) {
	lists := [][]schema.SearchResult{{{Document: doc("a")}}}
	fused := RRFScore(lists, 0)
	want := 1.0 / 61.0
	if math.Abs(fused[0].FusedScore-want) > 1e-12 {
		t.Errorf("k<=0 should default to 60: got %v, want %v", fused[0].FusedScore, want)
	}
}

func TestRRFScoreEmpty(t *testing.T) {
	if got := RRFScore(nil, 60); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestDistributionStrategyNormalizes(t *testing.T) {
	base := &RRFStrategy{K: 60}
	s := &DistributionBasedStrategy{BaseStrategy: base}
	lists := [][]schema.SearchResult{
		{
			{Document: doc("a"), Score: 100},
			{Document: doc("b"), Score: 50},
		},
	}
	fused := s.Fuse(lists)
	if len(fused) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(fused))
	}
	if s.Name() != "distribution_based_rrf" {
		t.Errorf("unexpected name %s", s.Name())
	}
}

func TestNewStrategyFactory(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"", false},
		{"rrf", false},
		{"weighted", false},
		{"linear", false},
		{"distribution", false},
		{"bogus", true},
	}
	for _, tc := range cases {
		_, _, err := NewStrategy(tc.name, nil)
		if (err != nil) != tc.wantErr {
			t.Errorf("NewStrategy(%q) err = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestNewStrategyRRFParams(t *testing.T) {
	s, params, err := NewStrategy("rrf", map[string]interface{}{"k": 10})
	if err != nil {
		t.Fatal(err)
	}
	rrf, ok := s.(*RRFStrategy)
	if !ok {
		t.Fatalf("expected *RRFStrategy, got %T", s)
	}
	if rrf.K != 10 {
		t.Errorf("K = %d, want 10", rrf.K)
	}
	if params["k"] != 10 {
		t.Errorf("sanitized params = %v", params)
	}
}

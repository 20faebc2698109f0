// Mock reranker implementing the model-API contract for local testing.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sort"
)

type rerankReq struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankItem struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResp struct {
	Results []rerankItem `json:"results"`
}

func handleRerank(w http.ResponseWriter, r *http.Request) {
	var req rerankReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// longer documents score higher; good enough to exercise reordering
	out := rerankResp{}
	for i, doc := range req.Documents {
		out.Results = append(out.Results, rerankItem{Index: i, RelevanceScore: float64(len(doc))})
	}
	sort.Slice(out.Results, func(i, j int) bool {
		return out.Results[i].RelevanceScore > out.Results[j].RelevanceScore
	})
	if req.TopN > 0 && len(out.Results) > req.TopN {
		out.Results = out.Results[:req.TopN]
	}
	_ = json.NewEncoder(w).Encode(out)
}

func main() {
	addr := ":8082"
	if v := os.Getenv("RERANK_ADDR"); v != "" {
		addr = v
	}
	http.HandleFunc("/rerank", handleRerank)
	log.Printf("reranker mock listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

// Mock corrective evaluator for local pipeline testing.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
)

type evalReq struct {
	Query   string `json:"query"`
	Context string `json:"context"`
}

type evalResp struct {
	Score             float64 `json:"score"`
	Verdict           string  `json:"verdict"`
	ReformulatedQuery string  `json:"reformulated_query,omitempty"`
}

func handleEval(w http.ResponseWriter, r *http.Request) {
	var req evalReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := evalResp{Score: 0.9, Verdict: "good"}
	switch {
	case req.Context == "":
		resp = evalResp{Score: 0.1, Verdict: "bad"}
	case strings.Contains(strings.ToLower(req.Query), "ambiguous"):
		resp = evalResp{Score: 0.5, Verdict: "ambiguous", ReformulatedQuery: req.Query + " definition"}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func main() {
	addr := ":8081"
	if v := os.Getenv("EVAL_ADDR"); v != "" {
		addr = v
	}
	http.HandleFunc("/eval", handleEval)
	log.Printf("evaluator mock listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

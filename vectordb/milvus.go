package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/schema"
)

// Store is the dense vector store contract.
type Store interface {
	Search(ctx context.Context, vector []float32, opts schema.SearchOptions) ([]schema.SearchResult, error)
	Insert(ctx context.Context, docs []schema.Document, vectors [][]float32) error
	Close() error
}

// MilvusStore backs Store with a Milvus collection. Field names follow the
// configured mapping; unmapped standard names fall back to the defaults
// below.
type MilvusStore struct {
	cli        client.Client
	collection string
	fields     map[string]string // standard name -> raw name
	metricType entity.MetricType
	timeout    time.Duration
}

const (
	defaultIDField       = "id"
	defaultContentField  = "content"
	defaultVectorField   = "vector"
	defaultMetadataField = "metadata"
)

func NewMilvusStore(ctx context.Context, cfg *config.VectorDBConfig) (*MilvusStore, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("vectordb: host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 19530
	}
	cli, err := client.NewClient(ctx, client.Config{
		Address:  fmt.Sprintf("%s:%d", cfg.Host, port),
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("vectordb: connect milvus: %w", err)
	}

	fields := map[string]string{
		"id":       defaultIDField,
		"content":  defaultContentField,
		"vector":   defaultVectorField,
		"metadata": defaultMetadataField,
	}
	for _, fm := range cfg.Mapping.Fields {
		if fm.StandardName != "" && fm.RawName != "" {
			fields[fm.StandardName] = fm.RawName
		}
	}
	metric := entity.COSINE
	if cfg.Mapping.Search.MetricType != "" {
		metric = entity.MetricType(cfg.Mapping.Search.MetricType)
	}
	timeout := 5 * time.Second
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return &MilvusStore{
		cli:        cli,
		collection: cfg.Collection,
		fields:     fields,
		metricType: metric,
		timeout:    timeout,
	}, nil
}

func (s *MilvusStore) Close() error { return s.cli.Close() }

// Search runs an ANN search and maps rows back to documents.
func (s *MilvusStore) Search(ctx context.Context, vector []float32, opts schema.SearchOptions) ([]schema.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	collection := s.collection
	if opts.Corpus != "" {
		collection = opts.Corpus
	}

	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, fmt.Errorf("vectordb: search param: %w", err)
	}
	outputFields := []string{s.fields["id"], s.fields["content"], s.fields["metadata"]}
	res, err := s.cli.Search(ctx, collection, nil, "", outputFields,
		[]entity.Vector{entity.FloatVector(vector)}, s.fields["vector"], s.metricType, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("vectordb: search: %w", err)
	}

	var out []schema.SearchResult
	for _, rs := range res {
		for i := 0; i < rs.ResultCount; i++ {
			score := float64(rs.Scores[i])
			if opts.Threshold > 0 && score < opts.Threshold {
				continue
			}
			doc := schema.Document{
				ID:      s.stringAt(rs.IDs, i),
				Content: s.stringAt(rs.Fields.GetColumn(s.fields["content"]), i),
			}
			if meta := s.metadataAt(rs.Fields.GetColumn(s.fields["metadata"]), i); meta != nil {
				doc.Metadata = meta
			}
			out = append(out, schema.SearchResult{Document: doc, Score: score, DenseScore: score})
		}
	}
	return out, nil
}

// Insert writes documents and their vectors into the collection.
func (s *MilvusStore) Insert(ctx context.Context, docs []schema.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("vectordb: %d docs but %d vectors", len(docs), len(vectors))
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ids := make([]string, len(docs))
	contents := make([]string, len(docs))
	metas := make([][]byte, len(docs))
	dim := 0
	for i, d := range docs {
		ids[i] = d.ID
		contents[i] = d.Content
		raw, err := json.Marshal(d.Metadata)
		if err != nil {
			raw = []byte("{}")
		}
		metas[i] = raw
		if len(vectors[i]) > dim {
			dim = len(vectors[i])
		}
	}

	cols := []entity.Column{
		entity.NewColumnVarChar(s.fields["id"], ids),
		entity.NewColumnVarChar(s.fields["content"], contents),
		entity.NewColumnJSONBytes(s.fields["metadata"], metas),
		entity.NewColumnFloatVector(s.fields["vector"], dim, vectors),
	}
	if _, err := s.cli.Insert(ctx, s.collection, "", cols...); err != nil {
		return fmt.Errorf("vectordb: insert: %w", err)
	}
	return nil
}

func (s *MilvusStore) stringAt(col entity.Column, idx int) string {
	if col == nil {
		return ""
	}
	v, err := col.Get(idx)
	if err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (s *MilvusStore) metadataAt(col entity.Column, idx int) map[string]interface{} {
	if col == nil {
		return nil
	}
	v, err := col.Get(idx)
	if err != nil {
		return nil
	}
	var raw []byte
	switch t := v.(type) {
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		logger.Debugf("vectordb: metadata decode failed: %v", err)
		return nil
	}
	return meta
}

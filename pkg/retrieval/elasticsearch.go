package retrieval

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/jonboulle/clockwork"
)

const (
	defaultMaxElapsedTime = 10 * time.Second
	defaultVectorDims     = 384
	minNumCandidates      = 50
)

type ElasticsearchConfig struct {
	Logger *slog.Logger
	Client *elasticsearch.Client

	// IndexPrefix names the query index; ner and agent indices get a suffix.
	IndexPrefix string

	// Optional configuration.
	EmbeddingModelID string
	IngestPipeline   string
	VectorDims       int
	MaxElapsedTime   time.Duration
	Clock            clockwork.Clock
}

func (c *ElasticsearchConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Client == nil {
		return errors.New("elasticsearch client is required")
	}
	if c.IndexPrefix == "" {
		return errors.New("index prefix is required")
	}
	if c.EmbeddingModelID != "" && c.IngestPipeline == "" {
		c.IngestPipeline = c.IndexPrefix + "-embeddings"
	}
	if c.VectorDims <= 0 {
		c.VectorDims = defaultVectorDims
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = defaultMaxElapsedTime
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// ElasticsearchStore keeps one index per kind and searches it with kNN over an
// embedding produced by a model deployed in the cluster, or BM25 when no model is
// configured.
type ElasticsearchStore struct {
	log *slog.Logger
	cfg ElasticsearchConfig
	es  *elasticsearch.Client
}

func NewElasticsearchStore(cfg ElasticsearchConfig) (*ElasticsearchStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ElasticsearchStore{
		log: cfg.Logger,
		cfg: cfg,
		es:  cfg.Client,
	}, nil
}

func NewElasticsearchClient(addresses []string, username, password string) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: addresses,
	}
	if username != "" {
		esCfg.Username = username
		esCfg.Password = password
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return es, nil
}

func (s *ElasticsearchStore) Index(kind Kind) string {
	switch kind {
	case KindNER:
		return s.cfg.IndexPrefix + "_ner"
	case KindAgent:
		return s.cfg.IndexPrefix + "_agent"
	default:
		return s.cfg.IndexPrefix
	}
}

type document struct {
	Profile string `json:"profile"`
	Text    string `json:"text"`
	SQL     string `json:"sql"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64  `json:"_score"`
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *ElasticsearchStore) searchBody(q Query) map[string]any {
	filter := map[string]any{"term": map[string]any{"profile": q.Profile}}
	body := map[string]any{
		"size":      q.TopK,
		"min_score": q.Threshold,
		"_source":   []string{"profile", "text", "sql"},
	}
	if s.cfg.EmbeddingModelID != "" {
		body["knn"] = map[string]any{
			"field":          "vector",
			"k":              q.TopK,
			"num_candidates": max(10*q.TopK, minNumCandidates),
			"filter":         filter,
			"query_vector_builder": map[string]any{
				"text_embedding": map[string]any{
					"model_id":   s.cfg.EmbeddingModelID,
					"model_text": q.Text,
				},
			},
		}
		return body
	}
	body["query"] = map[string]any{
		"bool": map[string]any{
			"must":   map[string]any{"match": map[string]any{"text": q.Text}},
			"filter": filter,
		},
	}
	body["sort"] = []any{map[string]any{"_score": "desc"}}
	return body
}

func (s *ElasticsearchStore) Search(ctx context.Context, q Query) ([]Example, error) {
	if q.TopK <= 0 {
		return []Example{}, nil
	}
	start := s.cfg.Clock.Now()
	defer func() {
		SearchDuration.WithLabelValues(string(q.Kind)).Observe(s.cfg.Clock.Since(start).Seconds())
	}()

	payload, err := json.Marshal(s.searchBody(q))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}
	index := s.Index(q.Kind)

	attempt := 0
	parsed, err := backoff.Retry(ctx, func() (*searchResponse, error) {
		if attempt > 0 {
			s.log.Warn("retrieval: search failed, retrying", "index", index, "attempt", attempt)
		}
		attempt++
		res, err := s.es.Search(
			s.es.Search.WithContext(ctx),
			s.es.Search.WithIndex(index),
			s.es.Search.WithBody(bytes.NewReader(payload)),
		)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		if err := responseError(res); err != nil {
			return nil, err
		}
		var sr searchResponse
		if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to decode search response: %w", err))
		}
		return &sr, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(s.cfg.MaxElapsedTime))
	if err != nil {
		SearchRequestsTotal.WithLabelValues(string(q.Kind), "error").Inc()
		return nil, fmt.Errorf("failed to search %s: %w", index, err)
	}

	examples := make([]Example, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		examples = append(examples, Example{
			Score:    hit.Score,
			Question: hit.Source.Text,
			Answer:   hit.Source.SQL,
		})
	}
	SearchRequestsTotal.WithLabelValues(string(q.Kind), "ok").Inc()
	return rank(examples, q.TopK, q.Threshold), nil
}

func (s *ElasticsearchStore) AddSample(ctx context.Context, profile, question, sql string) error {
	return s.add(ctx, KindQuery, document{Profile: profile, Text: question, SQL: sql})
}

func (s *ElasticsearchStore) AddAgentCOTSample(ctx context.Context, profile, question, plan string) error {
	return s.add(ctx, KindAgent, document{Profile: profile, Text: question, SQL: plan})
}

// AddEntity records an entity and its description for slot lookups.
func (s *ElasticsearchStore) AddEntity(ctx context.Context, profile, entity, description string) error {
	return s.add(ctx, KindNER, document{Profile: profile, Text: entity, SQL: description})
}

// Seed writes samples of one kind for a profile, stopping at the first failure.
func (s *ElasticsearchStore) Seed(ctx context.Context, profile string, kind Kind, samples []Sample) (int, error) {
	for i, sample := range samples {
		if err := s.add(ctx, kind, document{Profile: profile, Text: sample.Question, SQL: sample.SQL}); err != nil {
			return i, err
		}
	}
	return len(samples), nil
}

func (s *ElasticsearchStore) add(ctx context.Context, kind Kind, doc document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	index := s.Index(kind)

	// A fixed ID makes retried writes overwrite rather than duplicate.
	opts := []func(*esapi.IndexRequest){
		s.es.Index.WithContext(ctx),
		s.es.Index.WithDocumentID(documentID(doc)),
		s.es.Index.WithRefresh("true"),
	}
	if s.cfg.IngestPipeline != "" {
		opts = append(opts, s.es.Index.WithPipeline(s.cfg.IngestPipeline))
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		res, err := s.es.Index(index, bytes.NewReader(payload), opts...)
		if err != nil {
			return struct{}{}, err
		}
		defer res.Body.Close()
		return struct{}{}, responseError(res)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(s.cfg.MaxElapsedTime))
	if err != nil {
		SamplesWrittenTotal.WithLabelValues(string(kind), "error").Inc()
		return fmt.Errorf("failed to index into %s: %w", index, err)
	}
	SamplesWrittenTotal.WithLabelValues(string(kind), "ok").Inc()
	s.log.Debug("retrieval: indexed sample", "index", index, "profile", doc.Profile)
	return nil
}

// documentID derives the ID of a sample from its profile and text, so one
// question has at most one stored answer per profile.
func documentID(doc document) string {
	sum := sha256.Sum256([]byte(doc.Profile + "\x00" + doc.Text))
	return hex.EncodeToString(sum[:])
}

// EnsureIndices creates the per-kind indices and, when an embedding model is
// configured, the ingest pipeline that fills the vector field.
func (s *ElasticsearchStore) EnsureIndices(ctx context.Context) error {
	if s.cfg.IngestPipeline != "" && s.cfg.EmbeddingModelID != "" {
		pipeline := map[string]any{
			"description": "genbi text embeddings",
			"processors": []any{
				map[string]any{"inference": map[string]any{
					"model_id": s.cfg.EmbeddingModelID,
					"input_output": []any{
						map[string]any{"input_field": "text", "output_field": "vector"},
					},
				}},
			},
		}
		body, err := json.Marshal(pipeline)
		if err != nil {
			return fmt.Errorf("failed to marshal ingest pipeline: %w", err)
		}
		res, err := s.es.Ingest.PutPipeline(s.cfg.IngestPipeline, bytes.NewReader(body), s.es.Ingest.PutPipeline.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("failed to put ingest pipeline: %w", err)
		}
		defer res.Body.Close()
		if err := responseError(res); err != nil {
			return fmt.Errorf("failed to put ingest pipeline: %w", err)
		}
	}

	for _, kind := range []Kind{KindQuery, KindNER, KindAgent} {
		index := s.Index(kind)
		res, err := s.es.Indices.Exists([]string{index}, s.es.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", index, err)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			continue
		}

		body, err := json.Marshal(s.mapping())
		if err != nil {
			return fmt.Errorf("failed to marshal mapping: %w", err)
		}
		res, err = s.es.Indices.Create(index,
			s.es.Indices.Create.WithContext(ctx),
			s.es.Indices.Create.WithBody(bytes.NewReader(body)),
		)
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", index, err)
		}
		err = responseError(res)
		res.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", index, err)
		}
		s.log.Info("retrieval: created index", "index", index)
	}
	return nil
}

func (s *ElasticsearchStore) mapping() map[string]any {
	props := map[string]any{
		"profile": map[string]any{"type": "keyword"},
		"text":    map[string]any{"type": "text"},
		"sql":     map[string]any{"type": "text", "index": false},
	}
	if s.cfg.EmbeddingModelID != "" {
		props["vector"] = map[string]any{
			"type":       "dense_vector",
			"dims":       s.cfg.VectorDims,
			"index":      true,
			"similarity": "cosine",
		}
	}
	return map[string]any{"mappings": map[string]any{"properties": props}}
}

// responseError converts an error response into an error, marking client errors
// other than 429 as permanent.
func responseError(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	err := fmt.Errorf("elasticsearch error: %s: %s", res.Status(), bytes.TrimSpace(body))
	if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QdrantConfig configures the Qdrant VectorStore implementation.
//
// Notes:
// - Qdrant point IDs are UUIDs; a stable UUID is derived from Document.ID.
// - Document content/metadata are stored in payload (best-effort JSON).
type QdrantConfig struct {
	Host       string        `json:"host" yaml:"host"`
	Port       int           `json:"port" yaml:"port"`
	BaseURL    string        `json:"base_url,omitempty" yaml:"base_url"`
	APIKey     string        `json:"api_key,omitempty" yaml:"api_key"`
	Collection string        `json:"collection" yaml:"collection"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout"`

	AutoCreateCollection bool   `json:"auto_create_collection,omitempty" yaml:"auto_create_collection"`
	Distance             string `json:"distance,omitempty" yaml:"distance"`       // Cosine (default), Dot, Euclid
	VectorSize           int    `json:"vector_size,omitempty" yaml:"vector_size"` // Optional override; defaults to len(embedding)
	Wait                 *bool  `json:"wait,omitempty" yaml:"wait"`               // Wait for operation completion (default true)
}

const (
	qdrantPayloadID       = "doc_id"
	qdrantPayloadContent  = "content"
	qdrantPayloadMetadata = "metadata"
)

// QdrantStore implements VectorStore using Qdrant's REST API.
//
// Search uses the classic points/search endpoint and falls back to the
// universal points/query endpoint when the former is rejected.
type QdrantStore struct {
	cfg QdrantConfig

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureOnce sync.Once
	ensureErr  error

	mu        sync.RWMutex
	queryOnly bool
}

// qdrantStatusError 保留 HTTP 状态以决定是否回退
type qdrantStatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant request failed: method=%s path=%s status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

// NewQdrantStore creates a Qdrant-backed VectorStore.
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	if cfg.Wait == nil {
		wait := true
		cfg.Wait = &wait
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &QdrantStore{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "qdrant_store"), zap.String("collection", cfg.Collection)),
	}
}

var qdrantNamespace = uuid.MustParse("d9bde6d4-4f3a-4e6b-8f7a-5d8d2f3b4c1a")

func qdrantPointID(docID string) string {
	// Stable UUID derived from document ID (supports any string input).
	return uuid.NewSHA1(qdrantNamespace, []byte(docID)).String()
}

func (s *QdrantStore) collectionPath(suffix string) string {
	return fmt.Sprintf("/collections/%s%s", url.PathEscape(s.cfg.Collection), suffix)
}

func (s *QdrantStore) waitSuffix() string {
	if s.cfg.Wait == nil || *s.cfg.Wait {
		return "?wait=true"
	}
	return ""
}

func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize int) error {
	if !s.cfg.AutoCreateCollection {
		return nil
	}
	if vectorSize <= 0 {
		return fmt.Errorf("qdrant vector size must be > 0")
	}

	s.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     vectorSize,
				"distance": s.cfg.Distance,
			},
		}
		err := s.doJSON(ctx, http.MethodPut, s.collectionPath(""), body, nil)
		var statusErr *qdrantStatusError
		// Qdrant returns 409 if collection exists.
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusConflict {
			err = nil
		}
		s.ensureErr = err
	})

	return s.ensureErr
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		// Qdrant convention.
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &qdrantStatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *QdrantStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}

	vectorSize := s.cfg.VectorSize
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document[%d] has empty id", i)
		}
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document[%d] has no embedding", i)
		}
		if vectorSize == 0 {
			vectorSize = len(doc.Embedding)
		}
		if len(doc.Embedding) != vectorSize {
			return fmt.Errorf("document[%d] embedding dimension mismatch: got=%d want=%d", i, len(doc.Embedding), vectorSize)
		}
	}

	if err := s.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload,omitempty"`
	}

	points := make([]point, 0, len(docs))
	for _, doc := range docs {
		points = append(points, point{
			ID:     qdrantPointID(doc.ID),
			Vector: doc.Embedding,
			Payload: map[string]any{
				qdrantPayloadID:       doc.ID,
				qdrantPayloadContent:  doc.Content,
				qdrantPayloadMetadata: doc.Metadata,
			},
		})
	}

	req := struct {
		Points []point `json:"points"`
	}{Points: points}

	if err := s.doJSON(ctx, http.MethodPut, s.collectionPath("/points")+s.waitSuffix(), req, nil); err != nil {
		return err
	}

	s.logger.Debug("qdrant upsert completed", zap.Int("count", len(docs)))
	return nil
}

type qdrantPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]VectorSearchResult, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if topK <= 0 {
		return []VectorSearchResult{}, nil
	}
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}

	s.mu.RLock()
	queryOnly := s.queryOnly
	s.mu.RUnlock()

	if !queryOnly {
		points, err := s.searchClassic(ctx, queryEmbedding, topK)
		if err == nil {
			return s.toResults(points), nil
		}
		if !fallbackToQuery(err) {
			return nil, err
		}
		s.logger.Info("points/search rejected, switching to points/query", zap.Error(err))
		s.mu.Lock()
		s.queryOnly = true
		s.mu.Unlock()
	}

	points, err := s.searchQuery(ctx, queryEmbedding, topK)
	if err != nil {
		return nil, err
	}
	return s.toResults(points), nil
}

// fallbackToQuery 仅在服务端拒绝旧接口（404/405/400）时回退
func fallbackToQuery(err error) bool {
	var statusErr *qdrantStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.Status {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusBadRequest:
		return true
	}
	return false
}

func (s *QdrantStore) searchClassic(ctx context.Context, vector []float64, topK int) ([]qdrantPoint, error) {
	req := struct {
		Vector      []float64 `json:"vector"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
		WithVector  bool      `json:"with_vector"`
	}{Vector: vector, Limit: topK, WithPayload: true}

	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (s *QdrantStore) searchQuery(ctx context.Context, vector []float64, topK int) ([]qdrantPoint, error) {
	req := struct {
		Query       []float64 `json:"query"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
	}{Query: vector, Limit: topK, WithPayload: true}

	var resp struct {
		Result struct {
			Points []qdrantPoint `json:"points"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/query"), req, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Points, nil
}

func (s *QdrantStore) toResults(points []qdrantPoint) []VectorSearchResult {
	out := make([]VectorSearchResult, 0, len(points))
	for _, r := range points {
		doc := Document{}
		if v, ok := r.Payload[qdrantPayloadID].(string); ok {
			doc.ID = v
		}
		if v, ok := r.Payload[qdrantPayloadContent].(string); ok {
			doc.Content = v
		}
		if m, ok := r.Payload[qdrantPayloadMetadata].(map[string]any); ok {
			doc.Metadata = m
		}
		if doc.ID == "" {
			// Fallback to point ID if payload does not include doc_id.
			doc.ID = fmt.Sprint(r.ID)
		}
		out = append(out, VectorSearchResult{
			Document: doc,
			Score:    r.Score,
			Distance: 1.0 - r.Score,
		})
	}
	return out
}

func (s *QdrantStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}

	points := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		points = append(points, qdrantPointID(id))
	}

	req := struct {
		Points []string `json:"points"`
	}{Points: points}

	return s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/delete")+s.waitSuffix(), req, nil)
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return 0, fmt.Errorf("qdrant collection is required")
	}

	req := struct {
		Exact bool `json:"exact"`
	}{Exact: true}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}

	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/count"), req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

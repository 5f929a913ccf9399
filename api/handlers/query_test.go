package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/groundrag/agent/orchestrator"
	"github.com/BaSui01/groundrag/rag"
	"github.com/BaSui01/groundrag/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeQueryService struct {
	got  orchestrator.Request
	resp *orchestrator.Response
	err  error
}

func (f *fakeQueryService) ProcessQuery(_ context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	f.got = req
	return f.resp, f.err
}

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestQueryHandler_Success(t *testing.T) {
	svc := &fakeQueryService{resp: &orchestrator.Response{
		ConversationID: "conv-1",
		Answer:         "The default ATT_MTU is 23 bytes [#1].",
		Citations:      []rag.Citation{{Ref: "#1", ID: "core#0", Title: "Core Spec", Source: "core.pdf"}},
		Confidence:     0.8,
		Iterations:     1,
		Validated:      true,
	}}
	h := NewQueryHandler(svc, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleQuery(w, postJSON("/api/v1/query",
		`{"conversation_id":"conv-1","query":"  What is ATT_MTU?  ","max_iter":3,
		  "web":[{"url":"https://example.com","title":"t","content":"c"}]}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "What is ATT_MTU?", svc.got.Query)
	assert.Equal(t, "conv-1", svc.got.ConversationID)
	assert.Equal(t, 3, svc.got.MaxIter)
	require.Len(t, svc.got.Web, 1)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Answer    string `json:"answer"`
			Validated bool   `json:"validated"`
			Citations []struct {
				Ref string `json:"ref"`
			} `json:"citations"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.Validated)
	require.Len(t, resp.Data.Citations, 1)
	assert.Equal(t, "#1", resp.Data.Citations[0].Ref)
}

func TestQueryHandler_EmptyCitationsSerializeAsArray(t *testing.T) {
	svc := &fakeQueryService{resp: &orchestrator.Response{Answer: "x"}}
	w := httptest.NewRecorder()
	NewQueryHandler(svc, nil).HandleQuery(w, postJSON("/api/v1/query", `{"query":"q"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"citations":[]`)
}

func TestQueryHandler_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
	}{
		{"blank query", postJSON("/api/v1/query", `{"query":"   "}`), http.StatusBadRequest},
		{"max iter too large", postJSON("/api/v1/query", `{"query":"q","max_iter":11}`), http.StatusBadRequest},
		{"negative max iter", postJSON("/api/v1/query", `{"query":"q","max_iter":-1}`), http.StatusBadRequest},
		{"unknown field", postJSON("/api/v1/query", `{"query":"q","model":"x"}`), http.StatusBadRequest},
		{
			"wrong content type",
			func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"query":"q"}`))
				r.Header.Set("Content-Type", "text/plain")
				return r
			}(),
			http.StatusUnsupportedMediaType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeQueryService{}
			w := httptest.NewRecorder()
			NewQueryHandler(svc, nil).HandleQuery(w, tt.req)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Empty(t, svc.got.Query, "service must not be called")
		})
	}
}

func TestQueryHandler_ServiceError(t *testing.T) {
	svc := &fakeQueryService{err: types.NewError(types.ErrRetrievalFailed, "retrieval failed").
		WithHTTPStatus(http.StatusBadGateway).WithRetryable(true)}
	w := httptest.NewRecorder()
	NewQueryHandler(svc, nil).HandleQuery(w, postJSON("/api/v1/query", `{"query":"q"}`))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrRetrievalFailed), resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

package knowledge

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sadhurshan/esai-sub000/internal/ai"
	"github.com/sadhurshan/esai-sub000/internal/answer"
	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chunker, err := rag.NewChunker(200, 20)
	require.NoError(t, err)
	ragService := rag.NewRAGService(rag.NewMemoryVectorStore(), rag.NewHashEmbeddingProvider(64), chunker)

	registry, err := schema.NewRegistry()
	require.NoError(t, err)
	providers := ai.NewProviderFactoryWith(ai.ProviderDeterministic, ai.NewDeterministicProvider(ai.DefaultSummaryItems), func() (ai.Provider, error) {
		return nil, errors.New("no credentials")
	})
	answerService := answer.NewService(ragService, providers, registry, nil, rag.DefaultPackOptions())

	docs := NewDocumentHandler(ragService)
	search := NewSearchHandler(ragService, answerService)

	router := gin.New()
	router.POST("/index/document", docs.IndexDocument)
	router.DELETE("/index/document", docs.DeleteDocument)
	router.POST("/search", search.Search)
	router.POST("/answer", search.Answer)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func indexSample(t *testing.T, router *gin.Engine) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/index/document", map[string]any{
		"tenant":      1,
		"doc_id":      "policy-7",
		"doc_version": "v1",
		"title":       "Fastener sourcing policy",
		"source_type": "policy",
		"mime_type":   "text/plain",
		"text":        "Stainless fasteners must be sourced from approved suppliers. Lead time should stay under ten days.",
		"metadata":    map[string]any{"tags": []string{"sourcing"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp IndexDocumentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.IndexedChunks)
}

func TestAnswer_EmptyIndex(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/answer", map[string]any{"tenant": 1, "query": "x"})
	require.Equal(t, http.StatusOK, w.Code)

	var env schema.AnswerEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "Not enough information in indexed sources.", env.AnswerMarkdown)
	assert.Empty(t, env.Citations)
	assert.True(t, env.NeedsHumanReview)
	assert.Equal(t, []string{"No relevant sources found"}, env.Warnings)
}

func TestIndexSearchDelete(t *testing.T) {
	router := setupRouter(t)
	indexSample(t, router)

	w := doJSON(t, router, http.MethodPost, "/search", map[string]any{
		"tenant": "1",
		"query":  "approved stainless fasteners suppliers",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "policy-7", resp.Hits[0].DocID)
	assert.Equal(t, "v1", resp.Hits[0].DocVersion)

	w = doJSON(t, router, http.MethodPost, "/search", map[string]any{
		"tenant":  "1",
		"query":   "fasteners",
		"filters": map[string]any{"tags": []string{"other"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","hits":[]}`, w.Body.String())

	w = doJSON(t, router, http.MethodDelete, "/index/document", map[string]any{"tenant": 1, "doc_id": "policy-7"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","deleted_chunks":1}`, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/search", map[string]any{"tenant": "1", "query": "fasteners"})
	assert.JSONEq(t, `{"status":"ok","hits":[]}`, w.Body.String())
}

func TestAnswer_CitesIndexedSource(t *testing.T) {
	router := setupRouter(t)
	indexSample(t, router)

	w := doJSON(t, router, http.MethodPost, "/answer", map[string]any{"tenant": 1, "query": "fastener suppliers", "top_k": 3})
	require.Equal(t, http.StatusOK, w.Code)

	var env schema.AnswerEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotEmpty(t, env.Citations)
	for _, c := range env.Citations {
		assert.Equal(t, "policy-7", c.DocID)
		assert.LessOrEqual(t, len([]rune(c.Snippet)), 250)
	}
}

func TestHandlers_ValidationErrors(t *testing.T) {
	router := setupRouter(t)

	cases := []struct {
		name string
		path string
		body map[string]any
	}{
		{"index without text", "/index/document", map[string]any{"tenant": 1, "doc_id": "a", "doc_version": "v1", "title": "t", "source_type": "s", "mime_type": "text/plain"}},
		{"search top_k too large", "/search", map[string]any{"tenant": 1, "query": "q", "top_k": 26}},
		{"answer without tenant", "/answer", map[string]any{"query": "q"}},
		{"answer unknown provider", "/answer", map[string]any{"tenant": 1, "query": "q", "llm_provider": "mystery"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

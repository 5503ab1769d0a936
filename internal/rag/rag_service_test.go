package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbeddingProvider struct {
	inner *HashEmbeddingProvider
	calls int
	texts int
}

func (p *countingEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	p.texts++
	return p.inner.Embed(ctx, text)
}

func (p *countingEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls++
	p.texts += len(texts)
	return p.inner.EmbedBatch(ctx, texts)
}

func (p *countingEmbeddingProvider) GetModel() string        { return "test-model" }
func (p *countingEmbeddingProvider) GetProviderName() string { return "test-provider" }

type shortEmbeddingProvider struct{}

func (shortEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

func (shortEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{1}}, nil
}

func (shortEmbeddingProvider) GetModel() string        { return "short" }
func (shortEmbeddingProvider) GetProviderName() string { return "short" }

func newTestService(t *testing.T, provider EmbeddingProvider) (*RAGService, *MemoryVectorStore) {
	t.Helper()
	chunker, err := NewChunker(200, 20)
	require.NoError(t, err)
	store := NewMemoryVectorStore()
	return NewRAGService(store, provider, chunker), store
}

func TestHashEmbeddingDeterministic(t *testing.T) {
	p := NewHashEmbeddingProvider(0)
	assert.Equal(t, 64, p.Dimensions())

	vecs, err := p.EmbedBatch(context.Background(), []string{"Net 30 payment terms", "Net 30 payment terms"})
	require.NoError(t, err)
	assert.Equal(t, vecs[0], vecs[1])

	again, err := NewHashEmbeddingProvider(64).Embed(context.Background(), "Net 30 payment terms")
	require.NoError(t, err)
	assert.Equal(t, vecs[0], again)

	empty, err := p.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, v := range empty {
		assert.Zero(t, v)
	}
}

func TestRAGServiceIndexSearchDelete(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, NewHashEmbeddingProvider(64))

	text := strings.Repeat("Supplier Acme must deliver hex bolts within 14 days. ", 10) +
		"\n\n" + strings.Repeat("Payment terms are net 30 from invoice date. ", 10)
	n, err := svc.IndexDocument(ctx, &IndexDocumentRequest{
		Tenant:     "42",
		DocID:      "contract-1",
		DocVersion: "v1",
		Title:      "Acme contract",
		SourceType: "contract",
		MimeType:   "text/plain",
		Text:       text,
		Metadata:   map[string]any{"tags": []any{"acme", "bolts"}},
		ACL:        []string{"buyer"},
	})
	require.NoError(t, err)
	require.Greater(t, n, 1)
	assert.Equal(t, n, store.Count("42"))

	hits, err := svc.Search(ctx, &SearchRequest{Tenant: "42", Query: "payment terms net 30", TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "contract-1", hits[0].DocID)
	assert.Equal(t, "Acme contract", hits[0].Title)
	assert.Equal(t, "contract", hits[0].Metadata["source_type"])

	blocks, err := svc.Retrieve(ctx, &SearchRequest{
		Tenant:  "42",
		Query:   "hex bolts delivery",
		TopK:    8,
		Filters: Filters{"tags": []any{"bolts"}, "source_type": "contract"},
	}, PackOptions{MaxChars: 9000, MaxChunks: 12, PerDocLimit: 2})
	require.NoError(t, err)
	require.NotEmpty(t, blocks)
	assert.LessOrEqual(t, len(blocks), 2)

	rev := svc.Revision("42")
	removed, err := svc.DeleteDocument(ctx, "42", "contract-1", "")
	require.NoError(t, err)
	assert.Equal(t, n, removed)
	assert.Greater(t, svc.Revision("42"), rev)
}

func TestRAGServiceValidation(t *testing.T) {
	svc, _ := newTestService(t, NewHashEmbeddingProvider(8))
	_, err := svc.IndexDocument(context.Background(), &IndexDocumentRequest{Tenant: "1", DocID: "", DocVersion: "v1", Text: "x"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestRAGServiceEmbeddingCountMismatch(t *testing.T) {
	svc, _ := newTestService(t, shortEmbeddingProvider{})
	_, err := svc.IndexDocument(context.Background(), &IndexDocumentRequest{
		Tenant: "1", DocID: "d", DocVersion: "v1", Text: strings.Repeat("abc def. ", 80),
	})
	var countErr *EmbeddingCountError
	require.True(t, errors.As(err, &countErr))
}

func TestCachedEmbeddingProviderOnlyEmbedsMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbeddingProvider{inner: NewHashEmbeddingProvider(16)}
	cached := NewCachedEmbeddingProvider(inner, NewEmbeddingCache(nil, "", time.Hour))

	first, err := cached.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	second, err := cached.EmbedBatch(ctx, []string{"b", "c", "a"})
	require.NoError(t, err)

	assert.Equal(t, 3, inner.texts, "只对未命中的文本调用底层提供者")
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])

	_, err = cached.Embed(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.texts)
	assert.Equal(t, "test-model", cached.GetModel())
}

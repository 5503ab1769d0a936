package ai

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sadhurshan/esai-sub000/internal/rag"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbeddingsClient struct {
	mu       sync.Mutex
	calls    int
	dropLast bool
}

func (f *fakeEmbeddingsClient) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	req := conv.Convert()
	inputs, _ := req.Input.([]string)
	n := len(inputs)
	if f.dropLast && n > 0 {
		n--
	}
	data := make([]openai.Embedding, 0, n)
	// 倒序返回，验证按 Index 重排
	for i := n - 1; i >= 0; i-- {
		data = append(data, openai.Embedding{Index: i, Embedding: []float32{float32(len(inputs[i])), 1}})
	}
	return openai.EmbeddingResponse{Data: data}, nil
}

func TestOpenAIEmbeddingProvider_BatchesInOrder(t *testing.T) {
	client := &fakeEmbeddingsClient{}
	p := NewOpenAIEmbeddingProviderWithClient(client, EmbeddingConfig{Provider: EmbeddingProviderExternal, BatchSize: 2})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := p.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0])
	}
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, defaultEmbeddingModel, p.GetModel())
	assert.Equal(t, EmbeddingProviderExternal, p.GetProviderName())
}

func TestOpenAIEmbeddingProvider_CountMismatch(t *testing.T) {
	p := NewOpenAIEmbeddingProviderWithClient(&fakeEmbeddingsClient{dropLast: true}, EmbeddingConfig{})
	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"})

	var respErr *ProviderResponseError
	require.True(t, errors.As(err, &respErr))
	var countErr *rag.EmbeddingCountError
	require.True(t, errors.As(err, &countErr))
	assert.Equal(t, 2, countErr.Expected)
	assert.Equal(t, 1, countErr.Actual)
}

func TestNewEmbeddingProvider(t *testing.T) {
	p, err := NewEmbeddingProvider(EmbeddingConfig{Provider: ProviderDeterministic, Dimensions: 16})
	require.NoError(t, err)
	assert.Equal(t, "deterministic", p.GetProviderName())

	_, err = NewEmbeddingProvider(EmbeddingConfig{Provider: EmbeddingProviderExternal})
	var cfgErr *ProviderConfigError
	assert.True(t, errors.As(err, &cfgErr))

	_, err = NewEmbeddingProvider(EmbeddingConfig{Provider: EmbeddingProviderLocal})
	assert.True(t, errors.As(err, &cfgErr))

	local, err := NewEmbeddingProvider(EmbeddingConfig{Provider: EmbeddingProviderLocal, BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
	assert.Equal(t, defaultLocalEmbedding, local.GetModel())

	_, err = NewEmbeddingProvider(EmbeddingConfig{Provider: "quantum"})
	assert.Error(t, err)
}

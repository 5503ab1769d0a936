package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/sadhurshan/esai-sub000/internal/rag"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatClient struct {
	mu        sync.Mutex
	responses []openai.ChatCompletionResponse
	errs      []error
	requests  []openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func contentResponse(content string, finish openai.FinishReason) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: RoleAssistant, Content: content},
			FinishReason: finish,
		}},
	}
}

func newTestProvider(client ChatCompletionClient, retries int) *OpenAIProvider {
	p := NewOpenAIProviderWithClient(client, OpenAIConfig{
		Model:            "test-model",
		Temperature:      0.9,
		MaxRetries:       retries,
		SafetyIdentifier: "default-user",
	}, nil)
	p.backoff = 0
	return p
}

func testContexts() []rag.ContextBlock {
	return []rag.ContextBlock{
		{DocID: "d-1", DocVersion: "v1", ChunkID: 0, Score: 0.8, Title: "Terms", Snippet: "Payment terms are net 30."},
	}
}

func TestOpenAIProvider_RequestShape(t *testing.T) {
	client := &fakeChatClient{responses: []openai.ChatCompletionResponse{
		contentResponse(`{"answer_markdown":"ok","citations":[],"confidence":0.5,"needs_human_review":false,"warnings":[]}`, openai.FinishReasonStop),
	}}
	p := newTestProvider(client, 0)

	schemaDoc := json.RawMessage(`{"type":"object"}`)
	out, err := p.GenerateAnswer(context.Background(), &GenerateRequest{
		Query:            "What are the payment terms?",
		Contexts:         testContexts(),
		SchemaName:       "answer_envelope",
		ResponseSchema:   schemaDoc,
		SafetyIdentifier: "user-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out["answer_markdown"])

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "test-model", req.Model)
	assert.LessOrEqual(t, req.Temperature, float32(maxTemperature))
	assert.Equal(t, defaultMaxTokens, req.MaxTokens)
	assert.Equal(t, "user-7", req.User)
	assert.Equal(t, "user-7", req.Metadata["safety_identifier"])

	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, req.ResponseFormat.Type)
	require.NotNil(t, req.ResponseFormat.JSONSchema)
	assert.True(t, req.ResponseFormat.JSONSchema.Strict)
	assert.Equal(t, "answer_envelope", req.ResponseFormat.JSONSchema.Name)

	require.Len(t, req.Messages, 3)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, RoleDeveloper, req.Messages[1].Role)
	assert.Contains(t, req.Messages[2].Content, "doc_id=d-1")
}

func TestOpenAIProvider_DefaultSafetyIdentifier(t *testing.T) {
	client := &fakeChatClient{responses: []openai.ChatCompletionResponse{contentResponse(`{}`, openai.FinishReasonStop)}}
	p := newTestProvider(client, 0)
	_, err := p.GenerateAnswer(context.Background(), &GenerateRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "default-user", client.requests[0].User)
	assert.Nil(t, client.requests[0].ResponseFormat)
}

func TestOpenAIProvider_RepairsFencedJSON(t *testing.T) {
	client := &fakeChatClient{responses: []openai.ChatCompletionResponse{
		contentResponse("```json\n{\"answer_markdown\":\"fenced\"}\n```", openai.FinishReasonStop),
	}}
	out, err := newTestProvider(client, 0).GenerateAnswer(context.Background(), &GenerateRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "fenced", out["answer_markdown"])
}

func TestOpenAIProvider_Refusal(t *testing.T) {
	cases := []struct {
		name string
		resp openai.ChatCompletionResponse
	}{
		{"content filter", contentResponse("", openai.FinishReasonContentFilter)},
		{"length", contentResponse(`{"answer_markdown":"trunc`, openai.FinishReasonLength)},
		{"refusal field", openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: RoleAssistant, Refusal: "I can't help with that."},
			FinishReason: openai.FinishReasonStop,
		}}}},
		{"refusal part", openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: RoleAssistant, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartType("refusal"), Text: "no"},
			}},
			FinishReason: openai.FinishReasonStop,
		}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeChatClient{responses: []openai.ChatCompletionResponse{tc.resp}}
			out, err := newTestProvider(client, 0).GenerateAnswer(context.Background(), &GenerateRequest{Query: "q"})
			require.NoError(t, err)
			assert.True(t, IsRefused(out))
			assert.Equal(t, true, out["needs_human_review"])
			assert.Equal(t, 0.0, out["confidence"])
			assert.Empty(t, out["citations"])
			warnings := out["warnings"].([]any)
			require.Len(t, warnings, 1)
			assert.True(t, strings.HasPrefix(warnings[0].(string), "refused"))
		})
	}
}

func TestOpenAIProvider_RefusalShapeIsConstant(t *testing.T) {
	a := RefusedEnvelope("refusal")
	b := RefusedEnvelope("refusal")
	assert.Equal(t, a, b)
}

func TestOpenAIProvider_MalformedJSON(t *testing.T) {
	client := &fakeChatClient{responses: []openai.ChatCompletionResponse{contentResponse("not json at all", openai.FinishReasonStop)}}
	_, err := newTestProvider(client, 0).GenerateAnswer(context.Background(), &GenerateRequest{Query: "q"})
	var respErr *ProviderResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, ErrorTypeMalformed, respErr.Type)
	assert.True(t, IsProviderError(err))
}

func TestOpenAIProvider_RetriesRateLimit(t *testing.T) {
	client := &fakeChatClient{
		errs: []error{&openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, nil},
		responses: []openai.ChatCompletionResponse{
			{}, contentResponse(`{"answer_markdown":"second"}`, openai.FinishReasonStop),
		},
	}
	out, err := newTestProvider(client, 2).GenerateAnswer(context.Background(), &GenerateRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "second", out["answer_markdown"])
	assert.Len(t, client.requests, 2)
}

func TestOpenAIProvider_NonRetryableStatus(t *testing.T) {
	client := &fakeChatClient{
		errs: []error{&openai.RequestError{HTTPStatusCode: 400, Body: []byte(strings.Repeat("x", 900)), Err: errors.New("bad request")}},
		responses: []openai.ChatCompletionResponse{{}},
	}
	_, err := newTestProvider(client, 3).GenerateAnswer(context.Background(), &GenerateRequest{Query: "q"})
	var respErr *ProviderResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, 400, respErr.StatusCode)
	assert.Equal(t, ErrorTypeInvalid, respErr.Type)
	assert.LessOrEqual(t, len(respErr.Body), maxErrorBody+3)
	assert.Len(t, client.requests, 1)
}

func TestWrapError_APIErrorCarriesTruncatedBody(t *testing.T) {
	tests := []struct {
		name    string
		message string
		long    bool
	}{
		{name: "short", message: "model not found"},
		{name: "long", message: strings.Repeat("很长的错误", 200), long: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := &openai.APIError{HTTPStatusCode: 404, Message: tt.message, Type: "invalid_request_error"}
			out := wrapError("openai", fmt.Errorf("chat: %w", apiErr))

			assert.Equal(t, 404, out.StatusCode)
			assert.Equal(t, ErrorTypeInvalid, out.Type)
			assert.Equal(t, tt.message, out.Message)
			require.NotEmpty(t, out.Body)
			assert.LessOrEqual(t, utf8.RuneCountInString(out.Body), maxErrorBody+3)
			assert.True(t, strings.HasPrefix(out.Body, `{"error":{`))
			if tt.long {
				assert.True(t, strings.HasSuffix(out.Body, "..."))
			} else {
				assert.Contains(t, out.Body, `"message":"model not found"`)
				assert.Contains(t, out.Body, `"type":"invalid_request_error"`)
				assert.Contains(t, out.Error(), "body=")
			}
		})
	}
}

func TestOpenAIProvider_Timeout(t *testing.T) {
	client := &fakeChatClient{errs: []error{context.DeadlineExceeded}, responses: []openai.ChatCompletionResponse{{}}}
	_, err := newTestProvider(client, 0).GenerateAnswer(context.Background(), &GenerateRequest{Query: "q"})
	var respErr *ProviderResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, ErrorTypeTimeout, respErr.Type)
}

func TestNewOpenAIProvider_MissingKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "m"}, nil)
	var cfgErr *ProviderConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.True(t, IsProviderError(err))
}

func TestProviderFactory(t *testing.T) {
	calls := 0
	f := NewProviderFactoryWith("", NewDeterministicProvider(0), func() (Provider, error) {
		calls++
		return nil, &ProviderConfigError{Provider: ProviderExternal, Message: "missing key"}
	})

	p, err := f.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ProviderDeterministic, p.Name())

	_, err = f.Resolve(context.Background(), ProviderExternal)
	assert.Error(t, err)
	_, err = f.Resolve(context.Background(), ProviderExternal)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	_, err = f.Resolve(context.Background(), "magic")
	assert.Error(t, err)
}

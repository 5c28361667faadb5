package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionResponse(content string) string {
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":` + mustJSON(content) + `},"finish_reason":"stop"}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestNewOpenAICompatChatModel_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAICompatChatModel("", "gpt-4o-mini", "")
	require.Error(t, err)

	m, err := NewOpenAICompatChatModel("sk-test", "", "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", m.ModelName())
}

func TestGenerate_Success(t *testing.T) {
	var captured openAIChatCompletionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionResponse(`{"name": "Jane"}`)))
	}))
	defer server.Close()

	m, err := NewOpenAICompatChatModel("sk-test", "gpt-4o-mini", server.URL)
	require.NoError(t, err)

	resp, err := m.Generate(context.Background(), []*schema.Message{
		{Role: schema.System, Content: "You are a parser."},
		{Role: schema.User, Content: "Jane Doe, engineer."},
	})
	require.NoError(t, err)
	assert.Equal(t, schema.Assistant, resp.Role)
	assert.Equal(t, `{"name": "Jane"}`, resp.Content)

	// 纯文本消息应编码为字符串content
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "You are a parser.", captured.Messages[0].Content)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
}

func TestGenerate_MultimodalWireFormat(t *testing.T) {
	var rawBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rawBody))
		_, _ = w.Write([]byte(completionResponse("{}")))
	}))
	defer server.Close()

	m, err := NewOpenAICompatChatModel("sk-test", "gpt-4o", server.URL)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: "Extract fields from these pages."},
				{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL:    "data:image/jpeg;base64,/9j/4A==",
						Detail: schema.ImageURLDetailHigh,
					},
				},
			},
		},
	})
	require.NoError(t, err)

	// 多模态消息的content应是分片数组
	messages := rawBody["messages"].([]interface{})
	require.Len(t, messages, 1)
	content := messages[0].(map[string]interface{})["content"].([]interface{})
	require.Len(t, content, 2)

	textPart := content[0].(map[string]interface{})
	assert.Equal(t, "text", textPart["type"])
	assert.Equal(t, "Extract fields from these pages.", textPart["text"])

	imagePart := content[1].(map[string]interface{})
	assert.Equal(t, "image_url", imagePart["type"])
	imageURL := imagePart["image_url"].(map[string]interface{})
	assert.Contains(t, imageURL["url"], "data:image/jpeg;base64,")
	assert.Equal(t, "high", imageURL["detail"])
}

func TestGenerate_RateLimitBecomesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
	}))
	defer server.Close()

	m, err := NewOpenAICompatChatModel("sk-test", "gpt-4o-mini", server.URL)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{{Role: schema.User, Content: "hi"}})
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.True(t, httpErr.IsRateLimitOrServerError())
}

func TestGenerate_ClientErrorNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
	}))
	defer server.Close()

	m, err := NewOpenAICompatChatModel("sk-test", "gpt-4o-mini", server.URL)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{{Role: schema.User, Content: "hi"}})
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.False(t, httpErr.IsRateLimitOrServerError())
}

func TestGenerate_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","choices":[]}`))
	}))
	defer server.Close()

	m, err := NewOpenAICompatChatModel("sk-test", "gpt-4o-mini", server.URL)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{{Role: schema.User, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "空选项")
}

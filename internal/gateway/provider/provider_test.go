package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImagePayloadMediaType(t *testing.T) {
	mt, data, err := ImagePayload{DataURI: "data:image/jpeg;base64,QUJD"}.MediaType()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mt)
	assert.Equal(t, "QUJD", data)

	_, _, err = ImagePayload{DataURI: "https://x/y.png", Description: "H1"}.MediaType()
	assert.Error(t, err)
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "https://openrouter.ai/api/v1/", normalizeBaseURL("https://openrouter.ai/api/v1/chat/completions"))
	assert.Equal(t, "https://api.openai.com/v1/", normalizeBaseURL("https://api.openai.com/v1/"))
	assert.Equal(t, "", normalizeBaseURL("  "))
}

func TestBuildRequiresKey(t *testing.T) {
	_, err := Build(ModelCfg{Provider: "openai", Model: "gpt-4o"}, time.Second)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	_, err = Build(ModelCfg{Provider: "anthropic", Model: "claude"}, time.Second)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	_, err = Build(ModelCfg{Provider: "cohere", APIKey: "k"}, time.Second)
	assert.Error(t, err)
}

func chatServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIProviderCall(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, `{"action":"WAIT"}`, &seen)
	defer srv.Close()

	p, err := Build(ModelCfg{Provider: "openai", APIURL: srv.URL + "/v1", APIKey: "sk-test", Model: "gpt-4o", SupportsVision: true, MaxTokens: 4000, Temperature: Float(0.3)}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-4o", p.ID())

	out, err := p.Call(context.Background(), ChatPayload{
		System: "sys",
		User:   "bundle",
		Images: []ImagePayload{{DataURI: "data:image/png;base64,QUJD", Description: "Chart for H1 timeframe:"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"action":"WAIT"}`, out)

	assert.Equal(t, "gpt-4o", seen["model"])
	assert.EqualValues(t, 4000, seen["max_tokens"])
	msgs, ok := seen["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)
	parts, ok := user["content"].([]any)
	require.True(t, ok)
	assert.Len(t, parts, 3)
}

func TestOpenAIProviderEmptyContent(t *testing.T) {
	srv := chatServer(t, "   ", nil)
	defer srv.Close()
	p, err := NewOpenAIModelProvider(OpenAIOptions{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "gpt-4o"})
	require.NoError(t, err)
	_, err = p.Call(context.Background(), ChatPayload{User: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIProviderRejectsImagesWithoutVision(t *testing.T) {
	p, err := NewOpenAIModelProvider(OpenAIOptions{APIKey: "sk-test", Model: "sonar"})
	require.NoError(t, err)
	_, err = p.Call(context.Background(), ChatPayload{Images: []ImagePayload{{DataURI: "data:image/png;base64,AA"}}})
	assert.Error(t, err)
}

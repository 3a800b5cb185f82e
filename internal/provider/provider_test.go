package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_DefaultModel(t *testing.T) {
	p := NewOpenAIProvider("test-key", "", "")
	assert.Equal(t, DefaultModelName, p.DefaultModel())

	p = NewOpenAIProvider("test-key", "", "llama-3.3-70b-versatile")
	assert.Equal(t, "llama-3.3-70b-versatile", p.DefaultModel())
}

func TestOpenAIProvider_ParseSimpleResponse(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Meow, logged!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.URL, "test-model")
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Messages:    []Message{{Role: RoleUser, Content: "Hello"}},
		MaxTokens:   100,
		Temperature: 0.5,
	})
	require.NoError(t, err)

	assert.Equal(t, "Meow, logged!", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotBody["model"])
	assert.NotContains(t, gotBody, "tools")
}

func TestOpenAIProvider_ParseToolCallResponse(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [
						{"id": "call_1", "type": "function", "function": {"name": "get_expense_categories", "arguments": "{}"}},
						{"id": "call_2", "type": "function", "function": {"name": "add_expense", "arguments": "{\"amount\": 250}"}},
						{"id": "call_3", "type": "function", "function": {"name": "get_expense", "arguments": "not-json"}}
					]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.URL, "test-model")
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Movie ticket 250 Mary"}},
		Tools: []ToolDefinition{{
			Type: "function",
			Function: FunctionDef{
				Name:       "add_expense",
				Parameters: map[string]any{"type": "object"},
			},
		}},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 3)
	assert.Equal(t, "get_expense_categories", resp.ToolCalls[0].Name)
	assert.Equal(t, "call_2", resp.ToolCalls[1].ID)
	assert.Equal(t, float64(250), resp.ToolCalls[1].Arguments["amount"])
	assert.Equal(t, "not-json", resp.ToolCalls[2].Arguments["raw"])
	assert.Equal(t, "not-json", resp.ToolCalls[2].RawArguments)
	assert.Equal(t, "auto", gotBody["tool_choice"])
	assert.Len(t, gotBody["tools"], 1)
}

func TestOpenAIProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.URL, "test-model")
	_, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestConvertMessagesCarriesToolCalls(t *testing.T) {
	msgs := convertMessages([]Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "get_expense", Arguments: map[string]any{"ledger_id": "L1"}}}},
		{Role: RoleTool, Content: `{"success":true,"message":"ok"}`, ToolCallID: "c1"},
	})
	require.Len(t, msgs, 2)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, "get_expense", msgs[0].ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"ledger_id":"L1"}`, msgs[0].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "c1", msgs[1].ToolCallID)
}

func TestToolCallArgumentsDefaultToEmptyObject(t *testing.T) {
	resp, err := parseResponse(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{
					{ID: "c1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "get_expense_categories"}},
					{ID: "c2", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "get_expense_categories", Arguments: "null"}},
				},
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	for _, tc := range resp.ToolCalls {
		assert.NotNil(t, tc.Arguments, tc.ID)
		assert.Empty(t, tc.Arguments, tc.ID)
	}

	msgs := convertMessages([]Message{{Role: RoleAssistant, ToolCalls: resp.ToolCalls[:1]}})
	assert.Equal(t, "{}", msgs[0].ToolCalls[0].Function.Arguments)
}

func TestConvertMessagesEchoesRawArguments(t *testing.T) {
	raw := `{"amount": 250, "note":"lunch"}`
	msgs := convertMessages([]Message{{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{ID: "c1", Name: "add_expense", Arguments: map[string]any{"amount": 250.0, "note": "lunch"}, RawArguments: raw},
			{ID: "c2", Name: "get_expense", Arguments: map[string]any{"raw": "not-json"}, RawArguments: "not-json"},
		},
	}})
	require.Len(t, msgs[0].ToolCalls, 2)
	assert.Equal(t, raw, msgs[0].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "not-json", msgs[0].ToolCalls[1].Function.Arguments)
}

func TestLastText(t *testing.T) {
	assert.Equal(t, "", LastText(nil))
	assert.Equal(t, "b", LastText([]Message{{Content: "a"}, {Content: "b"}}))
}

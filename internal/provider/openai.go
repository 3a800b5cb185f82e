package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultAPIBase points at Groq's OpenAI-compatible endpoint.
	DefaultAPIBase = "https://api.groq.com/openai/v1"
	// DefaultModelName is used when no model is configured.
	DefaultModelName = "openai/gpt-oss-20b"
)

// OpenAIProvider implements LLMProvider using the OpenAI-compatible API.
// It works against Groq, OpenAI, OpenRouter and other compatible endpoints.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if defaultModel == "" {
		defaultModel = DefaultModelName
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(apiBase, "/")
	cfg.HTTPClient = &http.Client{
		Timeout: 120 * time.Second,
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
	}
}

// DefaultModel returns the configured default model.
func (p *OpenAIProvider) DefaultModel() string {
	return p.defaultModel
}

// Chat sends a completion request to the OpenAI-compatible API.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return parseResponse(resp)
}

// convertMessages converts our Message type to the go-openai format.
func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		m := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: echoArguments(tc),
				},
			})
		}
		result[i] = m
	}
	return result
}

// echoArguments returns the arguments to send back with an assistant tool call.
func echoArguments(tc ToolCall) string {
	if tc.RawArguments != "" {
		return tc.RawArguments
	}
	if len(tc.Arguments) == 0 {
		return "{}"
	}
	args, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "{}"
	}
	return string(args)
}

func convertTools(defs []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Function.Name,
				Description: d.Function.Description,
				Parameters:  d.Function.Parameters,
			},
		})
	}
	return out
}

// parseResponse converts the API response to our ChatResponse type.
func parseResponse(resp openai.ChatCompletionResponse) (*ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	result := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				slog.Debug("tool call arguments are not JSON", "tool", tc.Function.Name, "error", err)
				args = map[string]any{"raw": tc.Function.Arguments}
			}
			if args == nil {
				args = map[string]any{}
			}
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			Arguments:    args,
			RawArguments: tc.Function.Arguments,
		})
	}

	return result, nil
}

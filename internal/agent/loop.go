// Package agent implements the expense agent: a stateful conversation driven
// by an LLM that calls remote ledger tools.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KafClaw/expensecat/internal/provider"
	"github.com/KafClaw/expensecat/internal/tools"
)

// ErrMaxIterations is returned when the model keeps calling tools past the iteration limit.
var ErrMaxIterations = errors.New("agent: max tool iterations reached")

// Options configures an Agent.
type Options struct {
	Provider      provider.LLMProvider
	Registry      *tools.Registry
	SystemPrompt  string
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxIterations int
}

// Agent holds one conversation buffer. It is not safe for concurrent use:
// callers run one instruction at a time and call ResetMessages between them.
type Agent struct {
	provider      provider.LLMProvider
	registry      *tools.Registry
	systemPrompt  string
	model         string
	maxTokens     int
	temperature   float64
	maxIterations int

	messages []provider.Message
}

// New creates an agent.
func New(opts Options) *Agent {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	reg := opts.Registry
	if reg == nil {
		reg = tools.NewRegistry()
	}
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = SystemPrompt
	}
	return &Agent{
		provider:      opts.Provider,
		registry:      reg,
		systemPrompt:  systemPrompt,
		model:         opts.Model,
		maxTokens:     maxTokens,
		temperature:   opts.Temperature,
		maxIterations: maxIter,
	}
}

// Run sends prompt to the model, executes any requested tools and returns the
// full message sequence once the model answers without tool calls.
func (a *Agent) Run(ctx context.Context, prompt string) ([]provider.Message, error) {
	if len(a.messages) == 0 && a.systemPrompt != "" {
		a.messages = append(a.messages, provider.Message{Role: provider.RoleSystem, Content: a.systemPrompt})
	}
	a.messages = append(a.messages, provider.Message{Role: provider.RoleUser, Content: prompt})

	toolDefs := a.registry.Definitions()

	for i := 0; i < a.maxIterations; i++ {
		llmStart := time.Now()
		resp, err := a.provider.Chat(ctx, &provider.ChatRequest{
			Messages:    a.messages,
			Tools:       toolDefs,
			Model:       a.model,
			MaxTokens:   a.maxTokens,
			Temperature: a.temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("LLM call failed: %w", err)
		}

		names := make([]string, len(resp.ToolCalls))
		for ti, tc := range resp.ToolCalls {
			names[ti] = tc.Name
		}
		slog.Debug("LLM call",
			"iteration", i,
			"duration_ms", time.Since(llmStart).Milliseconds(),
			"tokens", resp.Usage.TotalTokens,
			"tools", strings.Join(names, ","))

		if len(resp.ToolCalls) == 0 {
			a.messages = append(a.messages, provider.Message{
				Role:    provider.RoleAssistant,
				Content: resp.Content,
			})
			return a.snapshot(), nil
		}

		calls := make([]provider.ToolCall, len(resp.ToolCalls))
		copy(calls, resp.ToolCalls)
		for ti := range calls {
			if calls[ti].ID == "" {
				calls[ti].ID = "call_" + uuid.NewString()
			}
		}
		a.messages = append(a.messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})

		for _, tc := range calls {
			toolStart := time.Now()
			result, err := a.registry.Execute(ctx, tc.Name, tc.Arguments)
			if err != nil {
				result = fmt.Sprintf("Error: %v", err)
			}
			a.messages = append(a.messages, provider.Message{
				Role:       provider.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
			slog.Debug("Tool executed",
				"name", tc.Name,
				"duration_ms", time.Since(toolStart).Milliseconds(),
				"result_length", len(result),
				"error", err)
		}
	}

	return nil, ErrMaxIterations
}

// ResetMessages drops the conversation buffer. Safe to call at any time, any number of times.
func (a *Agent) ResetMessages() {
	a.messages = nil
}

// Tool returns a registered tool by name.
func (a *Agent) Tool(name string) (tools.Tool, bool) {
	return a.registry.Get(name)
}

// Tools returns all registered tools.
func (a *Agent) Tools() []tools.Tool {
	return a.registry.List()
}

func (a *Agent) snapshot() []provider.Message {
	out := make([]provider.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

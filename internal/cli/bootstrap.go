package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KafClaw/expensecat/internal/agent"
	"github.com/KafClaw/expensecat/internal/config"
	"github.com/KafClaw/expensecat/internal/provider"
	"github.com/KafClaw/expensecat/internal/tools"
)

// loadConfig loads and validates the configuration, then installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.Log, logOutput))
	return cfg, nil
}

// connectTools initializes the MCP session and registers the remote ledger tools.
func connectTools(ctx context.Context, cfg *config.Config) (*tools.Registry, error) {
	client := tools.NewMCPClient(cfg.MCP.ServerURL, cfg.MCP.SecretKey, cfg.MCP.Timeout)
	if err := client.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.MCP.ServerURL, err)
	}
	reg := tools.NewRegistry()
	n, err := client.RegisterTools(ctx, reg)
	if err != nil {
		return nil, err
	}
	slog.Info("MCP tools registered", "count", n, "server", cfg.MCP.ServerURL)
	return reg, nil
}

// buildAgent wires the model provider and the remote tools into an agent.
func buildAgent(ctx context.Context, cfg *config.Config) (*agent.Agent, error) {
	reg, err := connectTools(ctx, cfg)
	if err != nil {
		return nil, err
	}
	prov := provider.NewOpenAIProvider(cfg.Model.APIKey, cfg.Model.APIBase, cfg.Model.Name)
	return agent.New(agent.Options{
		Provider:      prov,
		Registry:      reg,
		Model:         cfg.Model.Name,
		MaxTokens:     cfg.Model.MaxTokens,
		Temperature:   cfg.Model.Temperature,
		MaxIterations: cfg.Model.MaxToolIterations,
	}), nil
}

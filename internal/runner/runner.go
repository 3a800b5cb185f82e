// Package runner re-issues an instruction to the agent until the guard chain
// accepts a response that carries text, within a bounded number of attempts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KafClaw/expensecat/internal/agent"
	"github.com/KafClaw/expensecat/internal/guard"
	"github.com/KafClaw/expensecat/internal/metrics"
	"github.com/KafClaw/expensecat/internal/provider"
)

// DefaultMaxAttempts is used when Run is called with a non-positive attempt budget.
const DefaultMaxAttempts = 3

// ErrGuardRejected is the cause recorded when the guard chain rejects an interaction.
var ErrGuardRejected = errors.New("This request did not pass the assertion from the guard chain.")

// Agent is the stateful capability the runner drives.
type Agent interface {
	Run(ctx context.Context, prompt string) ([]provider.Message, error)
	ResetMessages()
}

// Instruction is one chat instruction with its request context.
type Instruction struct {
	Text         string
	Sender       string
	GroupMembers string
	LedgerID     string
	MessageID    string
}

// Prompt renders the instruction for the agent.
func (in Instruction) Prompt() string {
	return agent.UserPrompt(in.Text, in.Sender, in.GroupMembers, in.LedgerID, in.MessageID)
}

// ExhaustedError is returned when no attempt produced a usable response.
// Cause is the last recorded failure; it is nil when the final attempt passed
// the guard chain but carried no text.
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("no response text after %d attempts", e.Attempts)
	}
	return e.Cause.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.Cause }

// Runner owns the retry policy.
type Runner struct {
	chain *guard.Chain
}

// New creates a runner validating responses with chain.
func New(chain *guard.Chain) *Runner {
	if chain == nil {
		chain = guard.DefaultChain()
	}
	return &Runner{chain: chain}
}

// attempt outcomes, also used as metric labels
const (
	outcomeSuccess       = "success"
	outcomeAgentError    = "agent_error"
	outcomeGuardRejected = "guard_rejected"
	outcomeEmptyText     = "empty_text"
)

// Run sends in to ag up to maxAttempts times and returns the first non-empty
// text of an interaction accepted by the guard chain. The agent's messages are
// reset after every attempt, whatever its outcome.
func (r *Runner) Run(ctx context.Context, ag Agent, in Instruction, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	prompt := in.Prompt()

	var lastCause error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("run instruction: %w", err)
		}

		res := r.attempt(ctx, ag, prompt)
		metrics.Attempts.WithLabelValues(res.outcome).Inc()
		if res.outcome == outcomeSuccess {
			slog.Debug("Instruction succeeded", "attempt", attempt, "message_id", in.MessageID)
			return res.text, nil
		}
		lastCause = res.cause
		slog.Warn("Instruction attempt failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"outcome", res.outcome,
			"message_id", in.MessageID,
			"error", res.cause)
	}

	slog.Error("Instruction failed after all attempts", "attempts", maxAttempts, "message_id", in.MessageID, "error", lastCause)
	return "", &ExhaustedError{Attempts: maxAttempts, Cause: lastCause}
}

type attemptResult struct {
	text    string
	outcome string
	cause   error
}

// attempt performs one invoke-validate cycle. The reset runs on every return path.
func (r *Runner) attempt(ctx context.Context, ag Agent, prompt string) attemptResult {
	defer ag.ResetMessages()

	messages, err := ag.Run(ctx, prompt)
	if err != nil {
		return attemptResult{outcome: outcomeAgentError, cause: err}
	}

	g, ok := r.chain.Match(messages)
	if !ok {
		metrics.GuardDecisions.WithLabelValues("rejected").Inc()
		return attemptResult{outcome: outcomeGuardRejected, cause: ErrGuardRejected}
	}
	metrics.GuardDecisions.WithLabelValues(g.Name()).Inc()

	if text := provider.LastText(messages); text != "" {
		return attemptResult{text: text, outcome: outcomeSuccess}
	}
	return attemptResult{outcome: outcomeEmptyText}
}

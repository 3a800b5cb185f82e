package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KafClaw/expensecat/internal/runner"
	"github.com/KafClaw/expensecat/internal/stream"
)

// GeneralCaseHandler runs the instruction through the agent with retries and
// publishes the answer, or the failure text.
type GeneralCaseHandler struct {
	agent       Agent
	sink        stream.Sink
	runner      *runner.Runner
	maxAttempts int
}

// NewGeneralCaseHandler creates a general-case handler. A nil runner uses the default guard chain.
func NewGeneralCaseHandler(ag Agent, sink stream.Sink, r *runner.Runner, maxAttempts int) *GeneralCaseHandler {
	if r == nil {
		r = runner.New(nil)
	}
	return &GeneralCaseHandler{agent: ag, sink: sink, runner: r, maxAttempts: maxAttempts}
}

// Execute always publishes a result. The agent's messages are reset afterwards.
func (h *GeneralCaseHandler) Execute(ctx context.Context, req *stream.Request) (Outcome, error) {
	defer h.agent.ResetMessages()

	in := runner.Instruction{
		Text:         req.Instruction,
		Sender:       req.Sender,
		GroupMembers: req.GroupMembers,
		LedgerID:     req.LedgerID,
		MessageID:    req.MessageID,
	}

	var out Outcome
	text, err := h.runner.Run(ctx, h.agent, in, h.maxAttempts)
	if err != nil {
		slog.Error("Error processing request",
			"request_id", req.RequestID,
			"instruction", req.Instruction,
			"error", err)
		text = FailureText(err)
		out.Failure = text
	}
	out.Text = text

	res := &stream.Result{
		Result:    text,
		ChannelID: req.ChannelID,
		MessageID: req.MessageID,
		RequestID: req.RequestID,
	}
	if err := h.sink.Publish(ctx, res); err != nil {
		return out, fmt.Errorf("publish result: %w", err)
	}
	out.Published = true
	return out, nil
}

// FailureText is the user-facing text for a failed instruction.
func FailureText(err error) string {
	var ex *runner.ExhaustedError
	if errors.As(err, &ex) && ex.Cause == nil {
		return UnknownErrorText
	}
	if err == nil || err.Error() == "" {
		return UnknownErrorText
	}
	return err.Error()
}

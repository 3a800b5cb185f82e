package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KafClaw/expensecat/internal/stream"
	"github.com/KafClaw/expensecat/internal/tools"
)

var errDeletionToolsMissing = errors.New("deletion tools unavailable")

// DeletionHandler removes the ledger entry tied to a deleted chat message.
// It calls the ledger tools directly, without the LLM.
type DeletionHandler struct {
	agent Agent
	sink  stream.Sink
}

// NewDeletionHandler creates a deletion handler.
func NewDeletionHandler(ag Agent, sink stream.Sink) *DeletionHandler {
	return &DeletionHandler{agent: ag, sink: sink}
}

// Execute looks the expense up and deletes it when found. A result is
// published in every case except when the tools are missing or fail; its
// text is the deletion message only when both steps succeeded.
func (h *DeletionHandler) Execute(ctx context.Context, req *stream.Request) (Outcome, error) {
	getTool, okGet := h.agent.Tool(tools.GetExpense)
	deleteTool, okDelete := h.agent.Tool(tools.DeleteExpense)
	if !okGet || !okDelete {
		slog.Warn("Deletion skipped: ledger tools not registered",
			"request_id", req.RequestID,
			"get_expense", okGet,
			"delete_expense", okDelete)
		return Outcome{Failure: errDeletionToolsMissing.Error()}, nil
	}

	text, err := h.delete(ctx, getTool, deleteTool, req)
	if err != nil {
		slog.Error("Deletion failed", "request_id", req.RequestID, "message_id", req.MessageID, "error", err)
		return Outcome{Failure: err.Error()}, nil
	}

	res := &stream.Result{
		Result:    text,
		ChannelID: req.ChannelID,
		MessageID: req.MessageID,
		RequestID: req.RequestID,
	}
	if err := h.sink.Publish(ctx, res); err != nil {
		return Outcome{Text: text}, fmt.Errorf("publish deletion result: %w", err)
	}
	return Outcome{Published: true, Text: text}, nil
}

func (h *DeletionHandler) delete(ctx context.Context, getTool, deleteTool tools.Tool, req *stream.Request) (string, error) {
	args := map[string]any{
		"ledger_id":  req.LedgerID,
		"message_id": req.MessageID,
	}

	found, err := invoke(ctx, getTool, args)
	if err != nil {
		return "", err
	}
	if !found.Success {
		slog.Info("Expense not found for deleted message", "request_id", req.RequestID, "message", found.Message)
		return "", nil
	}

	deleted, err := invoke(ctx, deleteTool, args)
	if err != nil {
		return "", err
	}
	if !deleted.Success {
		slog.Warn("Expense deletion rejected", "request_id", req.RequestID, "message", deleted.Message)
		return "", nil
	}
	return deleted.Message, nil
}

func invoke(ctx context.Context, t tools.Tool, args map[string]any) (tools.Result, error) {
	raw, err := t.Execute(ctx, args)
	if err != nil {
		return tools.Result{}, fmt.Errorf("%s: %w", t.Name(), err)
	}
	res, err := tools.ParseResult(raw)
	if err != nil {
		return tools.Result{}, fmt.Errorf("%s: %w", t.Name(), err)
	}
	return res, nil
}

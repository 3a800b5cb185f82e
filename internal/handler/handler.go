// Package handler routes stream requests to the deletion or general-case workflow.
package handler

import (
	"context"

	"github.com/KafClaw/expensecat/internal/runner"
	"github.com/KafClaw/expensecat/internal/stream"
	"github.com/KafClaw/expensecat/internal/tools"
)

// UnknownErrorText is published when a request failed without a describable cause.
const UnknownErrorText = "An unknown error occurred."

// Agent is what the handlers need from the LLM agent.
type Agent interface {
	runner.Agent
	Tool(name string) (tools.Tool, bool)
}

// Outcome summarizes what a handler did with one request.
type Outcome struct {
	// Published is true when a result was written to the sink.
	Published bool
	// Text is the published result text.
	Text string
	// Failure describes why the workflow failed; empty on success.
	Failure string
}

// Failed reports whether the workflow failed.
func (o Outcome) Failed() bool { return o.Failure != "" }

// Handler executes one request. The returned error is reserved for sink failures;
// workflow failures are reported through Outcome.
type Handler interface {
	Execute(ctx context.Context, req *stream.Request) (Outcome, error)
}

// Dispatcher picks the handler for each request event.
type Dispatcher struct {
	deletion *DeletionHandler
	general  *GeneralCaseHandler
}

// NewDispatcher wires both workflows to the same agent and sink.
func NewDispatcher(ag Agent, sink stream.Sink, r *runner.Runner, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		deletion: NewDeletionHandler(ag, sink),
		general:  NewGeneralCaseHandler(ag, sink, r, maxAttempts),
	}
}

// For returns the handler for event. Anything but a deletion takes the general case.
func (d *Dispatcher) For(event string) Handler {
	switch event {
	case stream.EventMessageDelete:
		return d.deletion
	default:
		return d.general
	}
}

// Handle executes req with the handler for its event.
func (d *Dispatcher) Handle(ctx context.Context, req *stream.Request) (Outcome, error) {
	return d.For(req.Event).Execute(ctx, req)
}

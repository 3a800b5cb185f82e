// Package stream carries requests from the chat bridge to the worker and results back.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known event names.
const (
	EventMessageCreate = "messageCreate"
	EventMessageDelete = "messageDelete"
)

// Default stream names used by the chat bridge.
const (
	DefaultRequestsStream = "discord:requests"
	DefaultResultsStream  = "discord:results"
)

// ErrClosed is returned by Next once the source has been closed.
var ErrClosed = errors.New("stream closed")

// Request is one chat event forwarded by the bridge.
type Request struct {
	// ID is the transport position (stream entry id or partition/offset); empty for in-process requests.
	ID           string `json:"-"`
	RequestID    string `json:"requestId"`
	Event        string `json:"event"`
	Instruction  string `json:"instruction"`
	Sender       string `json:"sender"`
	GroupMembers string `json:"groupMembers"`
	LedgerID     string `json:"ledgerId"`
	ChannelID    string `json:"channelId"`
	MessageID    string `json:"messageId"`

	// commit is set by transports that need per-message state to acknowledge.
	commit any
}

// Result is published for every handled request that produces a reply.
// An empty Result is left out on the wire; the bridge then posts nothing.
type Result struct {
	Result    string `json:"result,omitempty"`
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	RequestID string `json:"requestId"`
}

// Source yields requests one at a time.
type Source interface {
	// Next blocks until a request is available or ctx is done.
	Next(ctx context.Context) (*Request, error)
	// Commit marks req as processed so it is not redelivered.
	Commit(ctx context.Context, req *Request) error
	Close() error
}

// Sink publishes results.
type Sink interface {
	Publish(ctx context.Context, res *Result) error
	Close() error
}

// CursorStore persists the last committed position of a stream.
type CursorStore interface {
	Cursor(ctx context.Context, stream string) (string, error)
	SaveCursor(ctx context.Context, stream, id string) error
}

// Values flattens the request into stream entry fields.
func (r *Request) Values() map[string]any {
	return map[string]any{
		"requestId":    r.RequestID,
		"event":        r.Event,
		"instruction":  r.Instruction,
		"sender":       r.Sender,
		"groupMembers": r.GroupMembers,
		"ledgerId":     r.LedgerID,
		"channelId":    r.ChannelID,
		"messageId":    r.MessageID,
	}
}

// RequestFromValues decodes stream entry fields. Missing fields decode as empty strings.
func RequestFromValues(id string, values map[string]any) *Request {
	return &Request{
		ID:           id,
		RequestID:    field(values, "requestId"),
		Event:        field(values, "event"),
		Instruction:  field(values, "instruction"),
		Sender:       field(values, "sender"),
		GroupMembers: field(values, "groupMembers"),
		LedgerID:     field(values, "ledgerId"),
		ChannelID:    field(values, "channelId"),
		MessageID:    field(values, "messageId"),
	}
}

// Values flattens the result into stream entry fields. An empty result has no field.
func (r *Result) Values() map[string]any {
	values := map[string]any{
		"channelId": r.ChannelID,
		"messageId": r.MessageID,
		"requestId": r.RequestID,
	}
	if r.Result != "" {
		values["result"] = r.Result
	}
	return values
}

// ResultFromValues decodes stream entry fields.
func ResultFromValues(values map[string]any) *Result {
	return &Result{
		Result:    field(values, "result"),
		ChannelID: field(values, "channelId"),
		MessageID: field(values, "messageId"),
		RequestID: field(values, "requestId"),
	}
}

// DecodeRequest parses a JSON-encoded request.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}

func field(values map[string]any, key string) string {
	switch v := values[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

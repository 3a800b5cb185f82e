// Package worker pulls requests from a stream source and handles them one at a time.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/KafClaw/expensecat/internal/handler"
	"github.com/KafClaw/expensecat/internal/journal"
	"github.com/KafClaw/expensecat/internal/metrics"
	"github.com/KafClaw/expensecat/internal/stream"
)

// DefaultReadBackoff is the pause after a failed read.
const DefaultReadBackoff = time.Second

// Dispatcher handles one request.
type Dispatcher interface {
	Handle(ctx context.Context, req *stream.Request) (handler.Outcome, error)
}

// Journal records request progress. Optional.
type Journal interface {
	Done(ctx context.Context, requestID string) (bool, error)
	Begin(ctx context.Context, rec *journal.Record) error
	Finish(ctx context.Context, requestID, status, resultText, errorText string) error
}

// Options configures a Worker.
type Options struct {
	Source      stream.Source
	Dispatcher  Dispatcher
	Journal     Journal
	ReadBackoff time.Duration
}

// Worker owns the agent through its dispatcher; requests never overlap.
type Worker struct {
	source      stream.Source
	dispatcher  Dispatcher
	journal     Journal
	readBackoff time.Duration
}

// New creates a worker.
func New(opts Options) *Worker {
	if opts.ReadBackoff <= 0 {
		opts.ReadBackoff = DefaultReadBackoff
	}
	return &Worker{
		source:      opts.Source,
		dispatcher:  opts.Dispatcher,
		journal:     opts.Journal,
		readBackoff: opts.ReadBackoff,
	}
}

// Run processes requests until ctx is done or the source is closed.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("Worker started")
	defer slog.Info("Worker stopped")

	for {
		req, err := w.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, stream.ErrClosed) {
				return nil
			}
			metrics.StreamErrors.WithLabelValues("read").Inc()
			slog.Warn("Stream read failed", "error", err, "retry_in", w.readBackoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.readBackoff):
			}
			continue
		}
		w.Process(ctx, req)
	}
}

// Process handles a single request end to end: dispatch, journal, commit.
func (w *Worker) Process(ctx context.Context, req *stream.Request) {
	start := time.Now()
	event := eventLabel(req.Event)
	logger := slog.With("request_id", req.RequestID, "event", req.Event, "stream_id", req.ID)

	if w.alreadyDone(ctx, req) {
		logger.Info("Skipping already handled request")
		w.commit(ctx, req, logger)
		metrics.Requests.WithLabelValues(event, "skipped").Inc()
		return
	}

	if w.journal != nil && req.RequestID != "" {
		err := w.journal.Begin(ctx, &journal.Record{
			RequestID: req.RequestID,
			StreamID:  req.ID,
			Event:     req.Event,
			ChannelID: req.ChannelID,
			MessageID: req.MessageID,
		})
		if err != nil {
			logger.Warn("Journal begin failed", "error", err)
		}
	}

	logger.Info("Handling request")
	out, err := w.dispatcher.Handle(ctx, req)
	status := journal.StatusCompleted
	errText := out.Failure
	if err != nil {
		metrics.StreamErrors.WithLabelValues("publish").Inc()
		logger.Error("Result publish failed", "error", err)
		errText = err.Error()
	}
	if err != nil || out.Failed() {
		status = journal.StatusFailed
	}

	if w.journal != nil && req.RequestID != "" {
		if jerr := w.journal.Finish(ctx, req.RequestID, status, out.Text, errText); jerr != nil {
			logger.Warn("Journal finish failed", "error", jerr)
		}
	}

	w.commit(ctx, req, logger)
	metrics.Requests.WithLabelValues(event, status).Inc()
	metrics.RequestDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
	logger.Info("Request handled", "status", status, "published", out.Published, "duration", time.Since(start))
}

func (w *Worker) alreadyDone(ctx context.Context, req *stream.Request) bool {
	if w.journal == nil || req.RequestID == "" {
		return false
	}
	done, err := w.journal.Done(ctx, req.RequestID)
	if err != nil {
		slog.Warn("Journal lookup failed", "request_id", req.RequestID, "error", err)
		return false
	}
	return done
}

func (w *Worker) commit(ctx context.Context, req *stream.Request, logger *slog.Logger) {
	if err := w.source.Commit(ctx, req); err != nil {
		metrics.StreamErrors.WithLabelValues("commit").Inc()
		logger.Error("Commit failed", "error", err)
	}
}

// eventLabel bounds the metric label set.
func eventLabel(event string) string {
	switch event {
	case stream.EventMessageCreate, stream.EventMessageDelete:
		return event
	default:
		return "other"
	}
}

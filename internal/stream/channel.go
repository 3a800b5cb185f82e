package stream

import (
	"context"
	"sync"
)

// ChannelStream is an in-process Source and Sink backed by Go channels.
type ChannelStream struct {
	requests chan *Request
	results  chan *Result

	mu        sync.Mutex
	committed []*Request
	closed    bool
	done      chan struct{}
}

// NewChannelStream creates an in-process stream with the given buffer size.
func NewChannelStream(buffer int) *ChannelStream {
	if buffer <= 0 {
		buffer = 100
	}
	return &ChannelStream{
		requests: make(chan *Request, buffer),
		results:  make(chan *Result, buffer),
		done:     make(chan struct{}),
	}
}

// Send queues a request for Next.
func (s *ChannelStream) Send(req *Request) {
	s.requests <- req
}

// Next returns the next queued request.
func (s *ChannelStream) Next(ctx context.Context) (*Request, error) {
	select {
	case req := <-s.requests:
		return req, nil
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Commit records req as processed.
func (s *ChannelStream) Commit(_ context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, req)
	return nil
}

// Committed returns the committed requests in order.
func (s *ChannelStream) Committed() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Request(nil), s.committed...)
}

// Publish queues a result for Results.
func (s *ChannelStream) Publish(ctx context.Context, res *Result) error {
	select {
	case s.results <- res:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the published results channel.
func (s *ChannelStream) Results() <-chan *Result {
	return s.results
}

// Close unblocks pending Next calls. It is safe to call more than once.
func (s *ChannelStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

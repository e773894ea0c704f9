package chat

import (
	"context"
	"io"
	"sync"
)

// StubCompleter replays fixed fragments. With Hang set it blocks after the
// last fragment until the request context ends.
type StubCompleter struct {
	Fragments []string
	Err       error
	Hang      bool

	mu    sync.Mutex
	calls [][]Message
}

func (s *StubCompleter) Complete(ctx context.Context, messages []Message) (Chunks, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]Message(nil), messages...))
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return &stubChunks{ctx: ctx, fragments: s.Fragments, hang: s.Hang}, nil
}

// Calls returns the message lists sent so far.
func (s *StubCompleter) Calls() [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Message(nil), s.calls...)
}

type stubChunks struct {
	ctx       context.Context
	fragments []string
	hang      bool
}

func (c *stubChunks) Recv() (string, error) {
	if err := c.ctx.Err(); err != nil {
		return "", err
	}
	if len(c.fragments) > 0 {
		next := c.fragments[0]
		c.fragments = c.fragments[1:]
		return next, nil
	}
	if c.hang {
		<-c.ctx.Done()
		return "", c.ctx.Err()
	}
	return "", io.EOF
}

func (c *stubChunks) Close() error {
	return nil
}

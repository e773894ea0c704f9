package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/metrics"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingUserInput
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateAwaitingUserInput:
		return "awaiting_user_input"
	case StateStreaming:
		return "streaming_response"
	default:
		return "idle"
	}
}

var (
	ErrBusy          = errors.New("a response is already streaming")
	ErrEmptyQuestion = errors.New("empty question")
)

// Assistant holds one session's transcript and answers questions grounded
// on the latest analysis snapshot.
type Assistant struct {
	completer Completer
	snapshot  func() *analysis.Context

	mu         sync.Mutex
	state      State
	transcript []Message
	epoch      int
}

// NewAssistant answers with completer. snapshot is read on every question;
// it may be nil when there is no analysis at all.
func NewAssistant(completer Completer, snapshot func() *analysis.Context) *Assistant {
	return &Assistant{completer: completer, snapshot: snapshot}
}

func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Assistant) Transcript() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.transcript...)
}

// Reset drops the transcript. A stream still open keeps running but its
// reply is not recorded.
func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcript = nil
	a.epoch++
}

func (a *Assistant) systemPrompt() string {
	if a.snapshot == nil {
		return BuildSystemPrompt(nil)
	}
	return BuildSystemPrompt(a.snapshot())
}

// Ask records the question and opens a streamed answer. Only one stream may
// be open at a time.
func (a *Assistant) Ask(ctx context.Context, question string) (*Stream, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	a.state = StateAwaitingUserInput
	a.transcript = append(a.transcript, Message{Role: RoleUser, Content: question})
	messages := make([]Message, 0, len(a.transcript)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: a.systemPrompt()})
	messages = append(messages, a.transcript...)
	epoch := a.epoch
	a.mu.Unlock()

	streamCtx, cancel := context.WithCancel(ctx)
	chunks, err := a.completer.Complete(streamCtx, messages)
	if err != nil {
		cancel()
		a.mu.Lock()
		a.state = StateIdle
		a.mu.Unlock()
		metrics.ChatStreamsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	a.mu.Lock()
	a.state = StateStreaming
	a.mu.Unlock()
	return &Stream{assistant: a, chunks: chunks, ctx: streamCtx, cancel: cancel, epoch: epoch}, nil
}

func (a *Assistant) finish(epoch int, reply string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateIdle
	if reply != "" && epoch == a.epoch {
		a.transcript = append(a.transcript, Message{Role: RoleAssistant, Content: reply})
	}
}

// Stream is a lazy, finite sequence of reply fragments. It cannot be
// restarted; once Next reports false the reply is in the transcript.
type Stream struct {
	assistant *Assistant
	chunks    Chunks
	ctx       context.Context
	cancel    context.CancelFunc
	epoch     int

	mu       sync.Mutex
	reply    strings.Builder
	err      error
	finished bool
	once     sync.Once
}

// Next returns the next fragment. Cancelling ctx stops the stream.
func (s *Stream) Next(ctx context.Context) (string, bool) {
	s.mu.Lock()
	finished := s.finished
	s.mu.Unlock()
	if finished {
		return "", false
	}
	if err := ctx.Err(); err != nil {
		s.finish(err)
		return "", false
	}

	stop := context.AfterFunc(ctx, s.cancel)
	chunk, err := s.chunks.Recv()
	stop()

	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			err = nil
		case ctx.Err() != nil:
			err = ctx.Err()
		case s.ctx.Err() != nil:
			err = s.ctx.Err()
		}
		s.finish(err)
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return "", false
	}
	s.reply.WriteString(chunk)
	return chunk, true
}

// Close stops the stream early. The partial reply is kept.
func (s *Stream) Close() error {
	s.finish(nil)
	return nil
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Reply is the text received so far.
func (s *Stream) Reply() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply.String()
}

func (s *Stream) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.finished = true
		s.err = err
		reply := s.reply.String()
		s.mu.Unlock()

		s.cancel()
		if cerr := s.chunks.Close(); cerr != nil {
			log.WithError(cerr).Debug("closing completion stream")
		}

		result := "completed"
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			result = "cancelled"
		case err != nil:
			result = "error"
		}
		metrics.ChatStreamsTotal.WithLabelValues(result).Inc()
		s.assistant.finish(s.epoch, reply)
	})
}

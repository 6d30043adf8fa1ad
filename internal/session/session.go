// Package session runs one question/answer cycle at a time against the
// record store and the inference collaborator.
package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/stupiduntilnot/chatkeep/internal/db"
	"github.com/stupiduntilnot/chatkeep/internal/inference"
	"github.com/stupiduntilnot/chatkeep/internal/render"
	"github.com/stupiduntilnot/chatkeep/internal/turn"
)

// DefaultErrorPrefix precedes the failure reason in error turns.
const DefaultErrorPrefix = "An error occurred: "

// State of the current cycle.
type State int

const (
	Idle State = iota
	AwaitingAnswer
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingAnswer:
		return "awaiting_answer"
	case Settled:
		return "settled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Store is the write side of the record store used by a session.
type Store interface {
	Insert(ctx context.Context, isUser bool, content any) (turn.Turn, error)
	ClearAll(ctx context.Context) error
	LogEvent(parentID *int64, eventType string, payload map[string]any) int64
}

// Projector supplies replay and transcript views of the store.
type Projector interface {
	Replay(ctx context.Context) ([]turn.Turn, error)
	Transcript(ctx context.Context) []*genai.Content
	TranscriptBefore(ctx context.Context, id int64) []*genai.Content
}

// Outcome describes a settled cycle.
type Outcome struct {
	CycleID  string
	Question turn.Turn
	Answer   turn.Turn
	Failed   bool
	Err      error
}

// Session orchestrates question/answer cycles.
type Session struct {
	store     Store
	projector Projector
	answerer  inference.Answerer

	logger      *zap.Logger
	renderer    render.Renderer
	out         io.Writer
	errorPrefix string
	now         func() time.Time

	mu    sync.Mutex
	state State

	inputEnabled atomic.Bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOutput renders every turn of a cycle to w as it is produced.
func WithOutput(r render.Renderer, w io.Writer) Option {
	return func(s *Session) {
		s.renderer = r
		s.out = w
	}
}

// WithErrorPrefix changes the text placed before failure reasons.
func WithErrorPrefix(prefix string) Option {
	return func(s *Session) { s.errorPrefix = prefix }
}

// New creates an idle session.
func New(store Store, projector Projector, answerer inference.Answerer, opts ...Option) *Session {
	s := &Session{
		store:       store,
		projector:   projector,
		answerer:    answerer,
		logger:      zap.NewNop(),
		errorPrefix: DefaultErrorPrefix,
		now:         time.Now,
		state:       Idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("session")
	s.inputEnabled.Store(true)
	return s
}

// State returns the state of the most recent cycle.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// InputEnabled reports whether the input surface should accept a new
// submission. It is false while an answer is awaited.
func (s *Session) InputEnabled() bool {
	return s.inputEnabled.Load()
}

// Submit runs one cycle for input. Blank input is rejected with
// turn.ErrEmptySubmission before anything is recorded. Answer failures do not
// produce an error: they settle the cycle with an error turn and
// Outcome.Failed set.
func (s *Session) Submit(ctx context.Context, input string) (Outcome, error) {
	question := strings.TrimSpace(input)
	if question == "" {
		s.logger.Warn("empty question, not sending")
		return Outcome{}, turn.ErrEmptySubmission
	}

	out := Outcome{CycleID: uuid.NewString()}
	log := s.logger.With(zap.String("cycle_id", out.CycleID))

	s.inputEnabled.Store(false)
	defer s.inputEnabled.Store(true)
	s.setState(AwaitingAnswer)

	cycleEventID := s.store.LogEvent(nil, db.EventCycleStarted, map[string]any{
		"cycle_id":     out.CycleID,
		"question_len": len(question),
	})
	var parent *int64
	if cycleEventID > 0 {
		parent = &cycleEventID
	}

	// The question is durably stored before the transcript is built; the
	// transcript itself only carries what came before it.
	var history []*genai.Content
	q, err := s.store.Insert(ctx, true, question)
	if err != nil {
		log.Warn("question not saved", zap.Error(err))
		q = turn.Turn{IsUser: true, Content: question, Timestamp: s.now().UTC()}
		history = s.projector.Transcript(ctx)
	} else {
		history = s.projector.TranscriptBefore(ctx, q.ID)
	}
	out.Question = q
	s.emit(q)

	log.Info("asking question", zap.Int("history", len(history)))
	resp, err := s.answerer.Answer(ctx, inference.Request{Question: question, ChatHistory: history})
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = &inference.AnswerError{Class: inference.ClassMalformed, Message: "No text in response"}
	}

	answer := resp.Text
	if err != nil {
		out.Failed = true
		out.Err = err
		answer = s.errorPrefix + err.Error()
		log.Error("answer failed", zap.Error(err), zap.String("error_class", inference.ClassOf(err)))
		s.store.LogEvent(parent, db.EventAnswerFailed, map[string]any{
			"cycle_id":    out.CycleID,
			"error":       err.Error(),
			"error_class": inference.ClassOf(err),
		})
	}

	a, err := s.store.Insert(ctx, false, answer)
	if err != nil {
		log.Warn("answer not saved", zap.Error(err))
		a = turn.Turn{IsUser: false, Content: answer, Timestamp: s.now().UTC()}
	}
	out.Answer = a
	s.emit(a)

	s.setState(Settled)
	s.store.LogEvent(parent, db.EventCycleSettled, map[string]any{
		"cycle_id": out.CycleID,
		"failed":   out.Failed,
	})
	log.Info("cycle settled", zap.Bool("failed", out.Failed))
	return out, nil
}

func (s *Session) emit(t turn.Turn) {
	if s.renderer == nil || s.out == nil {
		return
	}
	if err := writeTurn(s.out, s.renderer, t); err != nil {
		s.logger.Warn("failed to render turn", zap.Int64("turn_id", t.ID), zap.Error(err))
	}
}

func writeTurn(w io.Writer, r render.Renderer, t turn.Turn) error {
	text, err := r.RenderTurn(t)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}

// Replay renders every stored turn to w, oldest first.
func (s *Session) Replay(ctx context.Context, r render.Renderer, w io.Writer) (int, error) {
	turns, err := s.projector.Replay(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range turns {
		if err := writeTurn(w, r, t); err != nil {
			return 0, err
		}
	}
	s.logger.Debug("replayed history", zap.Int("count", len(turns)))
	return len(turns), nil
}

// Clear removes the whole history once confirm approves. It reports whether
// anything was cleared.
func (s *Session) Clear(ctx context.Context, confirm func() bool) (bool, error) {
	if confirm != nil && !confirm() {
		return false, nil
	}
	if err := s.store.ClearAll(ctx); err != nil {
		return false, err
	}
	s.setState(Idle)
	return true, nil
}

// Package history projects stored turns into the shapes consumers need: the
// raw replay list for rendering and the role-tagged transcript for the wire.
package history

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/stupiduntilnot/chatkeep/internal/turn"
)

// Reader is the read side of the record store.
type Reader interface {
	Ready() bool
	ReadAllOrderedAscending(ctx context.Context) ([]turn.Turn, error)
}

// Projector is a read-only view over a Reader.
type Projector struct {
	reader     Reader
	logger     *zap.Logger
	compressor Compressor
}

// Option configures a Projector.
type Option func(*Projector)

// WithWindow limits the transcript to the most recent n utterances. Zero
// keeps everything.
func WithWindow(n int) Option {
	return func(p *Projector) { p.compressor = &WindowCompressor{MaxMessages: n} }
}

// NewProjector returns a projector over reader. A nil logger discards output.
func NewProjector(reader Reader, logger *zap.Logger, opts ...Option) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Projector{
		reader:     reader,
		logger:     logger.Named("history"),
		compressor: &WindowCompressor{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Replay returns the stored turns unchanged, oldest first.
func (p *Projector) Replay(ctx context.Context) ([]turn.Turn, error) {
	if !p.reader.Ready() {
		return nil, turn.ErrNotReady
	}
	return p.reader.ReadAllOrderedAscending(ctx)
}

// Transcript maps every stored turn to a single-part utterance. When the
// store cannot be read it returns an empty transcript so the conversation can
// go on without memory.
func (p *Projector) Transcript(ctx context.Context) []*genai.Content {
	return p.transcript(ctx, func(turn.Turn) bool { return true })
}

// TranscriptBefore is Transcript restricted to turns stored before the turn
// with the given id.
func (p *Projector) TranscriptBefore(ctx context.Context, id int64) []*genai.Content {
	return p.transcript(ctx, func(t turn.Turn) bool { return t.ID < id })
}

func (p *Projector) transcript(ctx context.Context, keep func(turn.Turn) bool) []*genai.Content {
	if !p.reader.Ready() {
		p.logger.Warn("store not initialized, sending empty history", zap.Error(turn.ErrTranscriptUnavailable))
		return []*genai.Content{}
	}
	turns, err := p.reader.ReadAllOrderedAscending(ctx)
	if err != nil {
		p.logger.Error("failed to build history", zap.Error(turn.ErrTranscriptUnavailable), zap.NamedError("cause", err))
		return []*genai.Content{}
	}

	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		if !keep(t) {
			continue
		}
		out = append(out, Utterance(t))
	}
	out = p.compressor.Compress(out)
	p.logger.Debug("built history", zap.Int("count", len(out)))
	return out
}

// Utterance converts one turn to its wire form.
func Utterance(t turn.Turn) *genai.Content {
	var role genai.Role = genai.RoleModel
	if t.IsUser {
		role = genai.RoleUser
	}
	return genai.NewContentFromText(t.Content, role)
}

// Package inference talks to the remote model that answers questions.
package inference

import (
	"context"

	"google.golang.org/genai"

	"github.com/stupiduntilnot/chatkeep/internal/turn"
)

// Request is the body sent for one question.
type Request struct {
	Question    string           `json:"question"`
	ChatHistory []*genai.Content `json:"chatHistory"`
}

// Response is a successful answer.
type Response struct {
	Text string `json:"text"`
}

// Answerer answers one question given the prior transcript.
type Answerer interface {
	Answer(ctx context.Context, req Request) (Response, error)
}

// Error classes used by the breaker.
const (
	ClassNetwork   = "network"
	ClassStatus    = "status"
	ClassMalformed = "malformed"
	ClassOpen      = "circuit_open"
)

// AnswerError describes why no answer was obtained. Its message is what the
// user sees; errors.Is(err, turn.ErrAnswerFailed) holds for every AnswerError.
type AnswerError struct {
	Class   string
	Status  int
	Message string
	Cause   error
}

func (e *AnswerError) Error() string {
	return e.Message
}

func (e *AnswerError) Unwrap() error {
	return e.Cause
}

func (e *AnswerError) Is(target error) bool {
	return target == turn.ErrAnswerFailed
}

// ClassOf returns the breaker class of err.
func ClassOf(err error) string {
	if ae, ok := err.(*AnswerError); ok && ae.Class != "" {
		return ae.Class
	}
	return "unknown"
}

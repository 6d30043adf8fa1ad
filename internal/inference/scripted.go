package inference

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		if token == "ok" || token == "echo" || token == "empty" {
			actions = append(actions, action{kind: token})
			continue
		}
		kind, arg, found := strings.Cut(token, ":")
		if !found {
			return nil, fmt.Errorf("invalid scripted action: %s", token)
		}
		switch kind {
		case "err", "status", "sleep", "msg", "msgb64":
			actions = append(actions, action{kind: kind, arg: arg})
		default:
			return nil, fmt.Errorf("invalid scripted action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

// Scripted is a deterministic Answerer driven by a comma separated script:
//
//	ok            answer "ok"
//	echo          answer with the question
//	msg:<text>    answer <text>
//	msgb64:<b64>  answer the decoded text
//	empty         reply without text
//	err:<reason>  fail with a network error
//	status:<code> fail with an HTTP status
//	sleep:<ms>    wait, then answer "ok"
//
// Actions are consumed in order; the last one repeats.
type Scripted struct {
	mu       sync.Mutex
	actions  []action
	index    int
	requests []Request
}

// NewScripted parses script into a Scripted answerer.
func NewScripted(script string) (*Scripted, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &Scripted{actions: actions}, nil
}

func (s *Scripted) next() action {
	if s.index >= len(s.actions) {
		return s.actions[len(s.actions)-1]
	}
	a := s.actions[s.index]
	s.index++
	return a
}

// Answer plays the next scripted action.
func (s *Scripted) Answer(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	a := s.next()
	s.mu.Unlock()

	switch a.kind {
	case "echo":
		return Response{Text: req.Question}, nil
	case "msg":
		return Response{Text: a.arg}, nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return Response{}, fmt.Errorf("scripted msgb64 decode failed: %w", err)
		}
		return Response{Text: string(raw)}, nil
	case "empty":
		return Response{}, &AnswerError{Class: ClassMalformed, Message: "No text in response"}
	case "err":
		return Response{}, &AnswerError{Class: ClassNetwork, Message: emptyAs(a.arg, "network error")}
	case "status":
		code, _ := strconv.Atoi(a.arg)
		return Response{}, &AnswerError{Class: ClassStatus, Status: code, Message: fmt.Sprintf("HTTP %d: Unknown error", code)}
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return Response{}, &AnswerError{Class: ClassNetwork, Message: ctx.Err().Error(), Cause: ctx.Err()}
		}
		return Response{Text: "ok"}, nil
	default:
		return Response{Text: "ok"}, nil
	}
}

// Requests returns a copy of every request received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

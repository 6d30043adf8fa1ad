package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stupiduntilnot/chatkeep/internal/turn"
)

func TestBreaker_StateTransitions(t *testing.T) {
	script, err := NewScripted("err:down,err:down,msg:back")
	if err != nil {
		t.Fatal(err)
	}
	b := NewBreaker(script, 2, 100*time.Millisecond, nil)
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	if b.State() != CircuitClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}

	b.Answer(ctx, Request{Question: "q"})
	if b.State() != CircuitClosed {
		t.Fatalf("expected closed after first failure, got %s", b.State())
	}

	b.Answer(ctx, Request{Question: "q"})
	if b.State() != CircuitOpen {
		t.Fatalf("expected open after threshold failures, got %s", b.State())
	}
	if b.OpenedClass() != ClassNetwork {
		t.Fatalf("expected opened class %q, got %q", ClassNetwork, b.OpenedClass())
	}

	now = now.Add(10 * time.Millisecond)
	_, err = b.Answer(ctx, Request{Question: "q"})
	if !errors.Is(err, turn.ErrAnswerFailed) || ClassOf(err) != ClassOpen {
		t.Fatalf("expected fast failure while open, got %v", err)
	}
	if got := len(script.Requests()); got != 2 {
		t.Fatalf("expected open circuit to skip the endpoint, got %d requests", got)
	}

	now = now.Add(120 * time.Millisecond)
	resp, err := b.Answer(ctx, Request{Question: "q"})
	if err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}
	if resp.Text != "back" {
		t.Fatalf("expected 'back', got %q", resp.Text)
	}
	if b.State() != CircuitClosed {
		t.Fatalf("expected closed after probe success, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	script, err := NewScripted("status:503")
	if err != nil {
		t.Fatal(err)
	}
	b := NewBreaker(script, 1, time.Second, nil)
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	b.Answer(ctx, Request{})
	if b.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(2 * time.Second)
	b.Answer(ctx, Request{})
	if b.State() != CircuitOpen {
		t.Fatalf("expected reopen after failed probe, got %s", b.State())
	}
	if b.OpenedClass() != ClassStatus {
		t.Fatalf("expected class %q, got %q", ClassStatus, b.OpenedClass())
	}
}

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker(nil, 0, 0, nil)
	if b.Threshold != 5 || b.Cooldown != 30*time.Second {
		t.Fatalf("unexpected defaults: %d %s", b.Threshold, b.Cooldown)
	}
}

package history

import (
	"testing"

	"google.golang.org/genai"
)

func msgs(texts ...string) []*genai.Content {
	out := make([]*genai.Content, 0, len(texts))
	for _, s := range texts {
		out = append(out, genai.NewContentFromText(s, genai.RoleUser))
	}
	return out
}

func TestWindowCompressor_Truncate(t *testing.T) {
	c := &WindowCompressor{MaxMessages: 2}
	result := c.Compress(msgs("a", "b", "c"))
	if len(result) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result))
	}
	if result[0].Parts[0].Text != "b" {
		t.Errorf("expected 'b', got %q", result[0].Parts[0].Text)
	}
	if result[1].Parts[0].Text != "c" {
		t.Errorf("expected 'c', got %q", result[1].Parts[0].Text)
	}
}

func TestWindowCompressor_NoTruncation(t *testing.T) {
	c := &WindowCompressor{MaxMessages: 5}
	result := c.Compress(msgs("a", "b"))
	if len(result) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result))
	}
}

func TestWindowCompressor_EmptyInput(t *testing.T) {
	c := &WindowCompressor{MaxMessages: 3}
	result := c.Compress(nil)
	if len(result) != 0 {
		t.Fatalf("expected 0 messages, got %d", len(result))
	}
}

func TestWindowCompressor_ZeroMax(t *testing.T) {
	c := &WindowCompressor{MaxMessages: 0}
	result := c.Compress(msgs("a"))
	if len(result) != 1 {
		t.Fatalf("expected 1 message (no truncation with 0 max), got %d", len(result))
	}
}

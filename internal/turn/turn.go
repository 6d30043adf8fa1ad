package turn

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// TimestampLayout is the on-disk timestamp format. It is fixed width and UTC,
// so lexical order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Role values used on the wire.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one stored message in the conversation.
type Turn struct {
	ID        int64     `json:"id"`
	IsUser    bool      `json:"isUser"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Role returns the wire role of the turn.
func (t Turn) Role() string {
	return Role(t.IsUser)
}

// Role maps the author flag to a wire role.
func Role(isUser bool) string {
	if isUser {
		return RoleUser
	}
	return RoleModel
}

// Text is the structured payload some producers hand to the store instead of
// a plain string.
type Text struct {
	Text string `json:"text"`
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value written by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// Normalize reduces content to the plain text that gets stored. Structured
// values carrying a text field are unwrapped. The text is kept byte for byte
// and must contain something other than whitespace.
func Normalize(content any) (string, error) {
	text, err := extract(content)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

func extract(content any) (string, error) {
	switch v := content.(type) {
	case nil:
		return "", ErrEmptyContent
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case Text:
		return v.Text, nil
	case *Text:
		if v == nil {
			return "", ErrEmptyContent
		}
		return v.Text, nil
	case json.RawMessage:
		return extractJSON(v)
	case genai.Part:
		return v.Text, nil
	case *genai.Part:
		if v == nil {
			return "", ErrEmptyContent
		}
		return v.Text, nil
	case *genai.Content:
		if v == nil {
			return "", ErrEmptyContent
		}
		var b strings.Builder
		for _, p := range v.Parts {
			if p != nil {
				b.WriteString(p.Text)
			}
		}
		return b.String(), nil
	case map[string]string:
		return v["text"], nil
	case map[string]any:
		s, ok := v["text"].(string)
		if !ok {
			return "", ErrEmptyContent
		}
		return s, nil
	case interface{ GetText() string }:
		return v.GetText(), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedContent, content)
}

func extractJSON(raw json.RawMessage) (string, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedContent, err)
	}
	switch v := decoded.(type) {
	case string:
		return v, nil
	case map[string]any:
		s, ok := v["text"].(string)
		if !ok {
			return "", ErrEmptyContent
		}
		return s, nil
	}
	return "", fmt.Errorf("%w: json %T", ErrUnsupportedContent, decoded)
}

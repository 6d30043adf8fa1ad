package turn

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type textGetter struct{ s string }

func (g textGetter) GetText() string { return g.s }

func TestNormalize_Shapes(t *testing.T) {
	cases := []struct {
		name    string
		content any
		want    string
	}{
		{"string", "hello", "hello"},
		{"whitespace kept", "  hi there \n", "  hi there \n"},
		{"indented code", "    code()\n\nafter\n", "    code()\n\nafter\n"},
		{"bytes", []byte("raw"), "raw"},
		{"text struct", Text{Text: "X"}, "X"},
		{"text pointer", &Text{Text: "Y"}, "Y"},
		{"map any", map[string]any{"text": "from map"}, "from map"},
		{"map string", map[string]string{"text": "m"}, "m"},
		{"json object", json.RawMessage(`{"text":"X"}`), "X"},
		{"json string", json.RawMessage(`"plain"`), "plain"},
		{"genai part", &genai.Part{Text: "part"}, "part"},
		{"genai content", genai.NewContentFromText("content", genai.RoleModel), "content"},
		{"getter", textGetter{s: "got"}, "got"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.content)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	_, err := Normalize("   ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = Normalize(nil)
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = Normalize(map[string]any{"text": 42})
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = Normalize(json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrUnsupportedContent)

	_, err = Normalize(12345)
	assert.True(t, errors.Is(err, ErrUnsupportedContent), "got %v", err)
}

func TestRole(t *testing.T) {
	assert.Equal(t, "user", Role(true))
	assert.Equal(t, "model", Role(false))
	assert.Equal(t, "model", Turn{IsUser: false}.Role())
}

func TestTimestampRoundTrip(t *testing.T) {
	in := time.Date(2024, 3, 9, 7, 5, 1, 123456789, time.FixedZone("x", 3600))
	s := FormatTimestamp(in)
	assert.Equal(t, "2024-03-09T06:05:01.123Z", s)

	out, err := ParseTimestamp(s)
	require.NoError(t, err)
	assert.True(t, out.Equal(in.Truncate(time.Millisecond)))

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestTimestampLexicalOrder(t *testing.T) {
	a := FormatTimestamp(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	b := FormatTimestamp(time.Date(2024, 1, 1, 10, 0, 0, 5e6, time.UTC))
	assert.Less(t, a, b)
}

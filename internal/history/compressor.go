package history

import "google.golang.org/genai"

// Compressor reduces a transcript to fit within constraints.
type Compressor interface {
	Compress(messages []*genai.Content) []*genai.Content
}

// WindowCompressor keeps only the last MaxMessages utterances.
type WindowCompressor struct {
	MaxMessages int
}

// Compress truncates messages to the most recent MaxMessages entries.
func (c *WindowCompressor) Compress(messages []*genai.Content) []*genai.Content {
	if c.MaxMessages <= 0 || len(messages) <= c.MaxMessages {
		return messages
	}
	return messages[len(messages)-c.MaxMessages:]
}

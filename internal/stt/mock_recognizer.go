package stt

import (
	"context"
	"fmt"
	"strings"
)

type mockRecognizer struct {
	text string
}

// NewMockRecognizer returns a recognizer that "hears" text. Interim passes
// return the first half of its words. With empty text it reports the
// buffer size instead.
func NewMockRecognizer(text string) Recognizer {
	return &mockRecognizer{text: strings.TrimSpace(text)}
}

func (m *mockRecognizer) Transcribe(ctx context.Context, pcm []byte, _ int, _ int, final bool) (TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return TranscriptResult{}, err
	}
	if m.text == "" {
		mode := "partial"
		if final {
			mode = "final"
		}
		return TranscriptResult{Text: fmt.Sprintf("[%s transcript length=%d]", mode, len(pcm))}, nil
	}
	if final {
		return TranscriptResult{Text: m.text, Confidence: 1}, nil
	}
	words := strings.Fields(m.text)
	return TranscriptResult{Text: strings.Join(words[:(len(words)+1)/2], " "), Confidence: 0.5}, nil
}

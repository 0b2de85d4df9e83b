package keywords

import (
	"strings"

	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	Header          = "Key terms detected:"
	Bullet          = "• "
	FallbackLabel   = "Summary: "
	TooShortMessage = "Recording too short to analyze. Please try again."
)

// Format renders ranked keywords as a bulleted list under Header. With no
// keywords it echoes the transcript after FallbackLabel.
func Format(ranked []string, transcript string) string {
	if len(ranked) == 0 {
		return FallbackLabel + transcript
	}
	var b strings.Builder
	b.WriteString(Header)
	for _, kw := range ranked {
		b.WriteString("\n")
		b.WriteString(Bullet)
		b.WriteString(Capitalize(kw))
	}
	return b.String()
}

// Capitalize uppercases the first character of s and leaves the rest as is.
func Capitalize(s string) string {
	first, rest, _, _ := uniseg.FirstGraphemeClusterInString(s, -1)
	if first == "" {
		return s
	}
	return cases.Upper(language.Und).String(first) + rest
}

// Package tagger exposes word-level grammatical classification behind a
// small capability interface so the keyword core never depends on a
// concrete linguistic engine.
package tagger

import (
	"fmt"
	"iter"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tag is a coarse grammatical category. The zero value means the tagger
// could not classify the token.
type Tag uint8

const (
	TagNone Tag = iota
	TagNoun
	TagAdjective
	TagPersonalName
	TagPlaceName
	TagOrganizationName
	TagOther
)

var tagNames = map[Tag]string{
	TagNone:             "none",
	TagNoun:             "noun",
	TagAdjective:        "adjective",
	TagPersonalName:     "personal_name",
	TagPlaceName:        "place_name",
	TagOrganizationName: "organization_name",
	TagOther:            "other",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// Present reports whether the tagger assigned any category.
func (t Tag) Present() bool {
	return t != TagNone
}

// ParseTag resolves a tag name as written in lexicon files.
func ParseTag(name string) (Tag, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	for tag, n := range tagNames {
		if n == key {
			return tag, nil
		}
	}
	return TagNone, fmt.Errorf("unknown tag %q", name)
}

// Token is one word unit with its optional category.
type Token struct {
	Text string
	Tag  Tag
}

// Tagger classifies the words of a text. Implementations yield tokens in
// left-to-right order and must be free of side effects.
type Tagger interface {
	Tag(text string) iter.Seq[Token]
}

// Stream adapts a Tagger for keyword filtering: tokens without a letter or
// digit are dropped and the remaining text is case-folded.
func Stream(t Tagger, text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		if text == "" {
			return
		}
		for tok := range t.Tag(text) {
			if !isWord(tok.Text) {
				continue
			}
			tok.Text = Normalize(tok.Text)
			if !yield(tok) {
				return
			}
		}
	}
}

// Normalize lowercases a word using Unicode case rules.
func Normalize(word string) string {
	return cases.Lower(language.Und).String(word)
}

// Words splits text on Unicode word boundaries, skipping whitespace and
// punctuation.
func Words(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		state := -1
		rest := text
		var word string
		for len(rest) > 0 {
			word, rest, state = uniseg.FirstWordInString(rest, state)
			if !isWord(word) {
				continue
			}
			if !yield(word) {
				return
			}
		}
	}
}

func isWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

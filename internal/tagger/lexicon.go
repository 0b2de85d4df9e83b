package tagger

import (
	"fmt"
	"iter"
	"os"

	"gopkg.in/yaml.v3"
)

// LexiconTagger classifies words by dictionary lookup. Words missing from
// the lexicon are left untagged.
type LexiconTagger struct {
	entries map[string]Tag
}

// NewLexiconTagger builds a tagger from tag name to word list.
func NewLexiconTagger(lexicon map[string][]string) (*LexiconTagger, error) {
	entries := make(map[string]Tag)
	for name, words := range lexicon {
		tag, err := ParseTag(name)
		if err != nil {
			return nil, err
		}
		for _, w := range words {
			entries[Normalize(w)] = tag
		}
	}
	return &LexiconTagger{entries: entries}, nil
}

// LoadLexicon reads a YAML lexicon file, e.g.
//
//	noun: [gato, jardín]
//	adjective: [negro]
func LoadLexicon(path string) (*LexiconTagger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	t, err := NewLexiconTagger(raw)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return t, nil
}

func (l *LexiconTagger) Len() int {
	return len(l.entries)
}

func (l *LexiconTagger) Tag(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		for w := range Words(text) {
			if !yield(Token{Text: w, Tag: l.entries[Normalize(w)]}) {
				return
			}
		}
	}
}

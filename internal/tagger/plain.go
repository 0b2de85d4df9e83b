package tagger

import "iter"

type plainTagger struct{}

// NewPlainTagger returns a tagger that segments words but classifies
// nothing, leaving every token to the length fallback.
func NewPlainTagger() Tagger {
	return plainTagger{}
}

func (plainTagger) Tag(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		for w := range Words(text) {
			if !yield(Token{Text: w}) {
				return
			}
		}
	}
}

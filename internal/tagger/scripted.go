package tagger

import (
	"iter"
	"sync/atomic"
)

// Scripted replays a fixed token list regardless of input. It records how
// many times it was asked to tag.
type Scripted struct {
	tokens []Token
	calls  atomic.Int64
}

func NewScripted(tokens ...Token) *Scripted {
	return &Scripted{tokens: append([]Token(nil), tokens...)}
}

func (s *Scripted) Tag(string) iter.Seq[Token] {
	s.calls.Add(1)
	return func(yield func(Token) bool) {
		for _, tok := range s.tokens {
			if !yield(tok) {
				return
			}
		}
	}
}

// Calls returns the number of Tag invocations.
func (s *Scripted) Calls() int {
	return int(s.calls.Load())
}

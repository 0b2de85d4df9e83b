// Package keywords turns a tagged transcript into a short ranked list of
// key terms and renders it as a human-readable summary.
package keywords

import (
	"iter"

	"github.com/rivo/uniseg"

	"github.com/loqalabs/loqa-keywords/internal/tagger"
)

const (
	// TaggedMinLength is the length a keep-set token must exceed.
	TaggedMinLength = 3
	// UntaggedMinLength is the length any other token must exceed.
	UntaggedMinLength = 5
)

// Kept reports whether tag belongs to the keep-set eligible for the
// shorter length threshold.
func Kept(tag tagger.Tag) bool {
	switch tag {
	case tagger.TagNoun, tagger.TagAdjective, tagger.TagPersonalName,
		tagger.TagPlaceName, tagger.TagOrganizationName:
		return true
	}
	return false
}

// Accept applies exactly one of the two length rules to tok.
func Accept(tok tagger.Token) bool {
	n := Length(tok.Text)
	if Kept(tok.Tag) {
		return n > TaggedMinLength
	}
	return n > UntaggedMinLength
}

// Filter yields the text of every accepted token in input order.
// Duplicates are preserved.
func Filter(tokens iter.Seq[tagger.Token]) iter.Seq[string] {
	return func(yield func(string) bool) {
		for tok := range tokens {
			if !Accept(tok) {
				continue
			}
			if !yield(tok.Text) {
				return
			}
		}
	}
}

// Length counts user-perceived characters (extended grapheme clusters).
func Length(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

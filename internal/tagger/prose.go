package tagger

import (
	"iter"
	"strings"

	"github.com/jdkato/prose/v2"
)

// ProseTagger classifies English text with prose's averaged perceptron
// part-of-speech model and its named-entity recognizer.
type ProseTagger struct{}

func NewProseTagger() *ProseTagger {
	return &ProseTagger{}
}

func (p *ProseTagger) Tag(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
		if err != nil {
			return
		}
		for _, tok := range doc.Tokens() {
			if !yield(Token{Text: tok.Text, Tag: proseTag(tok.Tag, tok.Label)}) {
				return
			}
		}
	}
}

// proseTag maps a Penn Treebank tag and an IOB entity label onto the tag
// vocabulary. Entity labels take precedence.
func proseTag(pos, label string) Tag {
	if _, entity, ok := strings.Cut(label, "-"); ok {
		switch entity {
		case "PERSON":
			return TagPersonalName
		case "GPE", "LOC":
			return TagPlaceName
		case "ORG":
			return TagOrganizationName
		}
	}
	switch {
	case pos == "":
		return TagNone
	case strings.HasPrefix(pos, "NN"):
		return TagNoun
	case strings.HasPrefix(pos, "JJ"):
		return TagAdjective
	default:
		return TagOther
	}
}

package tagger

import (
	"fmt"

	"github.com/loqalabs/loqa-keywords/internal/config"
)

// FromConfig builds the tagger selected by cfg.Mode.
func FromConfig(cfg config.TaggerConfig) (Tagger, error) {
	switch cfg.Mode {
	case "prose", "":
		return NewProseTagger(), nil
	case "lexicon":
		return LoadLexicon(cfg.LexiconPath)
	case "plain":
		return NewPlainTagger(), nil
	default:
		return nil, fmt.Errorf("unsupported tagger mode %q", cfg.Mode)
	}
}

package tagger

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/loqalabs/loqa-keywords/internal/config"
)

func TestWordsSkipsPunctuationAndSpace(t *testing.T) {
	got := slices.Collect(Words("El gato, negro... ¡corrió!  rápidamente"))
	want := []string{"El", "gato", "negro", "corrió", "rápidamente"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("words mismatch (-want +got):\n%s", diff)
	}
}

func TestWordsEmpty(t *testing.T) {
	if got := slices.Collect(Words("  ...  ")); len(got) != 0 {
		t.Fatalf("expected no words, got %v", got)
	}
}

func TestStreamNormalizesAndDropsPunctuation(t *testing.T) {
	s := NewScripted(
		Token{Text: "Jardín", Tag: TagNoun},
		Token{Text: ",", Tag: TagOther},
		Token{Text: "MADRID", Tag: TagPlaceName},
		Token{Text: "42"},
	)
	got := slices.Collect(Stream(s, "ignored"))
	want := []Token{
		{Text: "jardín", Tag: TagNoun},
		{Text: "madrid", Tag: TagPlaceName},
		{Text: "42"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stream mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamEmptyTextSkipsTagger(t *testing.T) {
	s := NewScripted(Token{Text: "word", Tag: TagNoun})
	for range Stream(s, "") {
		t.Fatal("expected no tokens")
	}
	if s.Calls() != 0 {
		t.Fatalf("expected tagger not to be invoked, got %d calls", s.Calls())
	}
}

func TestStreamStopsEarly(t *testing.T) {
	s := NewScripted(Token{Text: "uno"}, Token{Text: "dos"}, Token{Text: "tres"})
	var got []string
	for tok := range Stream(s, "x") {
		got = append(got, tok.Text)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected iteration to stop after 2 tokens, got %v", got)
	}
}

func TestParseTag(t *testing.T) {
	tests := map[string]Tag{
		"noun":              TagNoun,
		"Adjective":         TagAdjective,
		"personal-name":     TagPersonalName,
		"place name":        TagPlaceName,
		"organization_name": TagOrganizationName,
		"other":             TagOther,
		"none":              TagNone,
	}
	for input, want := range tests {
		got, err := ParseTag(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %v, got %v", input, want, got)
		}
	}
	if _, err := ParseTag("verb-ish"); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestProseTagMapping(t *testing.T) {
	tests := []struct {
		pos, label string
		want       Tag
	}{
		{"NN", "O", TagNoun},
		{"NNPS", "", TagNoun},
		{"JJR", "O", TagAdjective},
		{"VBD", "O", TagOther},
		{"NNP", "B-PERSON", TagPersonalName},
		{"NNP", "I-GPE", TagPlaceName},
		{"NNP", "B-ORG", TagOrganizationName},
		{"", "", TagNone},
	}
	for _, tt := range tests {
		if got := proseTag(tt.pos, tt.label); got != tt.want {
			t.Fatalf("proseTag(%q, %q) = %v, want %v", tt.pos, tt.label, got, tt.want)
		}
	}
}

func TestPlainTaggerLeavesTagsAbsent(t *testing.T) {
	for tok := range NewPlainTagger().Tag("quick brown fox") {
		if tok.Tag.Present() {
			t.Fatalf("expected no tag for %q, got %v", tok.Text, tok.Tag)
		}
	}
}

func TestLexiconTagger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	data := "noun: [Gato, jardín]\nadjective: [negro]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}
	lex, err := LoadLexicon(path)
	if err != nil {
		t.Fatalf("load lexicon: %v", err)
	}
	if lex.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", lex.Len())
	}

	got := slices.Collect(lex.Tag("El gato negro corrió"))
	want := []Token{
		{Text: "El"},
		{Text: "gato", Tag: TagNoun},
		{Text: "negro", Tag: TagAdjective},
		{Text: "corrió"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lexicon tags mismatch (-want +got):\n%s", diff)
	}
}

func TestLexiconUnknownTag(t *testing.T) {
	if _, err := NewLexiconTagger(map[string][]string{"verb": {"run"}}); err == nil {
		t.Fatal("expected error for unknown tag name")
	}
}

func TestFromConfig(t *testing.T) {
	tg, err := FromConfig(config.TaggerConfig{Mode: "plain"})
	if err != nil {
		t.Fatalf("plain tagger: %v", err)
	}
	if _, ok := tg.(plainTagger); !ok {
		t.Fatalf("expected plain tagger, got %T", tg)
	}
	if _, err := FromConfig(config.TaggerConfig{Mode: "lexicon", LexiconPath: filepath.Join(t.TempDir(), "nope.yaml")}); err == nil {
		t.Fatal("expected error for missing lexicon")
	}
	if _, err := FromConfig(config.TaggerConfig{Mode: "bogus"}); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}

package keywords

import (
	"github.com/loqalabs/loqa-keywords/internal/tagger"
)

// MinTranscriptLength is the longest transcript that is rejected as too
// short to analyze.
const MinTranscriptLength = 5

// Outcome names which branch produced a summary.
type Outcome string

const (
	OutcomeTooShort   Outcome = "too_short"
	OutcomeNoKeywords Outcome = "no_keywords"
	OutcomeKeywords   Outcome = "keywords"
)

// Result is the output of one analysis.
type Result struct {
	Keywords []string
	Summary  string
	Outcome  Outcome
}

// Extractor runs tagging, filtering, ranking and formatting in sequence.
// It is safe for concurrent use when its Tagger is.
type Extractor struct {
	tagger tagger.Tagger
	limit  int
}

type Option func(*Extractor)

// WithLimit caps the number of keywords, up to MaxKeywords.
func WithLimit(n int) Option {
	return func(e *Extractor) { e.limit = n }
}

func NewExtractor(t tagger.Tagger, opts ...Option) *Extractor {
	e := &Extractor{tagger: t, limit: MaxKeywords}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze maps every transcript to a summary. Transcripts of
// MinTranscriptLength characters or fewer never reach the tagger.
func (e *Extractor) Analyze(transcript string) Result {
	if Length(transcript) <= MinTranscriptLength {
		return Result{Summary: TooShortMessage, Outcome: OutcomeTooShort}
	}
	ranked := Rank(Filter(tagger.Stream(e.tagger, transcript)), e.limit)
	res := Result{
		Keywords: ranked,
		Summary:  Format(ranked, transcript),
		Outcome:  OutcomeKeywords,
	}
	if len(ranked) == 0 {
		res.Outcome = OutcomeNoKeywords
	}
	return res
}

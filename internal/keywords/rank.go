package keywords

import (
	"iter"
	"slices"
)

// MaxKeywords bounds the ranked keyword set.
const MaxKeywords = 6

// Rank deduplicates candidates and orders them by descending length,
// keeping at most limit entries. Equal lengths keep first-appearance order.
// A non-positive limit means MaxKeywords.
func Rank(candidates iter.Seq[string], limit int) []string {
	if limit <= 0 || limit > MaxKeywords {
		limit = MaxKeywords
	}

	seen := make(map[string]struct{})
	var unique []string
	for c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		unique = append(unique, c)
	}

	slices.SortStableFunc(unique, func(a, b string) int {
		return Length(b) - Length(a)
	})
	if len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

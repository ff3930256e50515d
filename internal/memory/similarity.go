package memory

import (
	"strings"
	"unicode/utf8"
)

// Similarity weights. Tag overlap dominates because tags are curated;
// content tokens and structured context split the remainder.
const (
	tagWeight     = 0.4
	tokenWeight   = 0.3
	contextWeight = 0.3

	// minTokenLen filters connective noise out of content text.
	minTokenLen = 4
)

// Similarity scores how alike two memory records are, in [0,1]. It is
// symmetric, deterministic and side-effect free; absent fields count as
// empty collections.
func Similarity(a, b *Record) float64 {
	if a == nil || b == nil {
		return 0
	}
	score := tagWeight*tagOverlap(a.Tags, b.Tags) +
		tokenWeight*tokenOverlap(contentTokens(a.Content), contentTokens(b.Content)) +
		contextWeight*contextEquality(a.Metadata, b.Metadata)
	if score > 1 {
		score = 1
	}
	return score
}

// tagOverlap is intersection size over the larger tag set.
func tagOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[strings.ToLower(t)] = true
	}
	var shared int
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		lt := strings.ToLower(t)
		if set[lt] && !seen[lt] {
			shared++
			seen[lt] = true
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	if denom < 1 {
		denom = 1
	}
	return float64(shared) / float64(denom)
}

// tokenOverlap is shared token count over the larger token set.
func tokenOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var shared int
	for t := range a {
		if b[t] {
			shared++
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	if denom < 1 {
		denom = 1
	}
	return float64(shared) / float64(denom)
}

// contextEquality is the fraction of keys in the union of both maps whose
// values are equal. An empty union counts as fully equal.
func contextEquality(a, b Map) float64 {
	union := make(map[string]bool, len(a)+len(b))
	for k := range a {
		union[k] = true
	}
	for k := range b {
		union[k] = true
	}
	if len(union) == 0 {
		return 1
	}
	var equal int
	for k := range union {
		av, aok := a[k]
		bv, bok := b[k]
		if aok && bok && av.Equal(bv) {
			equal++
		}
	}
	return float64(equal) / float64(len(union))
}

// contentTokens extracts the token set from a content bag.
func contentTokens(m Map) map[string]bool {
	if len(m) == 0 {
		return nil
	}
	tokens := tokenize(m.FlattenText())
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// tokenize splits text into lowercase word tokens longer than three
// characters.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127) // keep unicode chars
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if utf8.RuneCountInString(w) >= minTokenLen {
			result = append(result, w)
		}
	}
	return result
}

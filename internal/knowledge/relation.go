package knowledge

import (
	"fmt"
	"strings"
)

// Relationship scoring weights and keyword bumps.
const (
	relationTagWeight   = 0.4
	relationDomainBump  = 0.3
	relationKeywordBump = 0.2
)

// Relation is a scored, classified pairwise relationship between two
// knowledge items.
type Relation struct {
	Kind       RelationKind
	Strength   float64 // 0..1
	Confidence float64
	Evidence   []string
}

// Relate scores the relationship between two knowledge items: tag overlap
// plus a domain-match bump, with keyword heuristics that reclassify the
// relationship as conflicting or enabling. Symmetric in its inputs.
func Relate(a, b *Item) Relation {
	rel := Relation{Kind: RelationSimilar}

	if shared := sharedTags(a.Tags, b.Tags); len(shared) > 0 {
		denom := len(a.Tags)
		if len(b.Tags) > denom {
			denom = len(b.Tags)
		}
		rel.Strength += relationTagWeight * float64(len(shared)) / float64(denom)
		rel.Evidence = append(rel.Evidence, "shared tags: "+strings.Join(shared, ", "))
	}

	if a.Domain != "" && strings.EqualFold(a.Domain, b.Domain) {
		rel.Strength += relationDomainBump
		rel.Evidence = append(rel.Evidence, "same domain: "+a.Domain)
	}

	text := strings.ToLower(a.Content.FlattenText() + " " + b.Content.FlattenText())
	switch {
	case strings.Contains(text, "success") && strings.Contains(text, "failure"):
		rel.Kind = RelationConflicts
		rel.Strength += relationKeywordBump
		rel.Evidence = append(rel.Evidence, "conflicting outcome language")
	case strings.Contains(text, "enables"):
		rel.Kind = RelationEnables
		rel.Strength += relationKeywordBump
		rel.Evidence = append(rel.Evidence, "enabling language")
	}

	if rel.Strength > 1 {
		rel.Strength = 1
	}
	// Heuristic edges carry a confidence discount below the raw score.
	rel.Confidence = rel.Strength * 0.9
	if len(rel.Evidence) == 0 {
		rel.Evidence = []string{fmt.Sprintf("weak association between %q and %q", a.Title, b.Title)}
	}
	return rel
}

func sharedTags(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[strings.ToLower(t)] = true
	}
	var shared []string
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		lt := strings.ToLower(t)
		if set[lt] && !seen[lt] {
			seen[lt] = true
			shared = append(shared, lt)
		}
	}
	return shared
}

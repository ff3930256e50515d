package memory

import (
	"math"
	"testing"
)

func record(tags []string, content, meta Map) *Record {
	return &Record{
		ID:         "m-" + tags[0],
		MemoryType: TypeEpisodic,
		Title:      "test memory",
		Content:    content,
		Importance: 5,
		Tags:       tags,
		Metadata:   meta,
	}
}

func TestSimilaritySelfIsOne(t *testing.T) {
	m := record([]string{"rfp", "pricing"},
		Map{"strategy": String("tiered pricing template"), "success": Boolean(true)},
		Map{"client": String("acme")})
	if got := Similarity(m, m); got != 1.0 {
		t.Errorf("self similarity = %v, want 1.0", got)
	}
}

func TestSimilarityIsSymmetric(t *testing.T) {
	a := record([]string{"rfp", "pricing"},
		Map{"strategy": String("tiered pricing template")},
		Map{"client": String("acme")})
	b := record([]string{"pricing", "negotiation"},
		Map{"strategy": String("discount pricing approach")},
		Map{"client": String("globex")})

	ab, ba := Similarity(a, b), Similarity(b, a)
	if ab != ba {
		t.Errorf("asymmetric: Similarity(a,b)=%v Similarity(b,a)=%v", ab, ba)
	}
	if ab <= 0 || ab >= 1 {
		t.Errorf("partial overlap should score strictly between 0 and 1, got %v", ab)
	}
}

func TestSimilarityNearDuplicates(t *testing.T) {
	a := record([]string{"rfp", "pricing"},
		Map{"success": Boolean(true), "strategy": String("tiered pricing template")},
		Map{"client": String("acme")})
	b := record([]string{"rfp", "pricing"},
		Map{"success": Boolean(true), "strategy": String("tiered pricing approach")},
		Map{"client": String("acme")})

	if got := Similarity(a, b); got < 0.7 {
		t.Errorf("near duplicates scored %v, want >= 0.7", got)
	}
}

func TestSimilarityUnrelated(t *testing.T) {
	a := record([]string{"rfp"},
		Map{"strategy": String("tiered pricing")},
		Map{"client": String("acme")})
	b := record([]string{"healthcare"},
		Map{"finding": String("compliance checklist incomplete")},
		Map{"region": String("emea")})

	if got := Similarity(a, b); got > 0.2 {
		t.Errorf("unrelated records scored %v, want <= 0.2", got)
	}
}

func TestSimilarityNilRecords(t *testing.T) {
	m := record([]string{"rfp"}, Map{}, Map{})
	if Similarity(nil, m) != 0 || Similarity(m, nil) != 0 {
		t.Error("nil records must score 0")
	}
}

func TestSimilarityEmptyMetadataCountsAsEqualContext(t *testing.T) {
	a := record([]string{"rfp"}, Map{"note": String("draft sent")}, nil)
	b := record([]string{"rfp"}, Map{"note": String("draft sent")}, nil)

	// tags 0.4 + tokens 0.3 + vacuous context 0.3
	if got := Similarity(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical records with empty metadata scored %v, want 1.0", got)
	}
}

func TestSimilarityPartialContext(t *testing.T) {
	a := record([]string{"rfp"}, nil, Map{"client": String("acme"), "phase": String("draft")})
	b := record([]string{"rfp"}, nil, Map{"client": String("acme"), "phase": String("final")})

	// tags 0.4 + one of two context keys equal 0.15
	want := 0.4 + 0.3*0.5
	if got := Similarity(a, b); math.Abs(got-want) > 1e-9 {
		t.Errorf("partial context scored %v, want %v", got, want)
	}
}

func TestTokenizeFiltersShortWords(t *testing.T) {
	tokens := tokenize("a to the Tiered-Pricing win99 ok")
	want := map[string]bool{"tiered-pricing": true, "win99": true}
	if len(tokens) != len(want) {
		t.Fatalf("unexpected tokens: %v", tokens)
	}
	for _, tok := range tokens {
		if !want[tok] {
			t.Errorf("unexpected token %q", tok)
		}
	}
}

func TestTokenizeLengthIsRuneBased(t *testing.T) {
	// "见积" is two runes (six bytes) and must be filtered like any other
	// two-character word; "提案依頼書" is five runes and survives.
	tokens := tokenize("见积 提案依頼書")
	if len(tokens) != 1 || tokens[0] != "提案依頼書" {
		t.Errorf("unexpected tokens: %v", tokens)
	}
}

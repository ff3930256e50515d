package knowledge

import (
	"testing"

	"github.com/VerticalLabs-ai/recall/internal/memory"
)

func TestIsPatternKnowledge(t *testing.T) {
	cases := []struct {
		name string
		item *Item
		want bool
	}{
		{"extracted pattern", &Item{KnowledgeType: TypeExtractedPattern}, true},
		{"session learning", &Item{KnowledgeType: TypeSessionLearning, Tags: []string{"session", "learning"}}, true},
		{"pattern content field", &Item{KnowledgeType: "insight", Content: memory.Map{"pattern": memory.String("x")}}, true},
		{"pattern tag", &Item{KnowledgeType: "insight", Tags: []string{"Anti-Pattern"}}, true},
		{"plain item", &Item{KnowledgeType: "insight", Content: memory.Map{"note": memory.String("x")}}, false},
	}
	for _, tc := range cases {
		if got := IsPatternKnowledge(tc.item); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func successRate(v float64) *float64 { return &v }

func TestAggregationStats(t *testing.T) {
	state := NewAggregationState()

	a1 := item("a1", "rfp", []string{"pattern"}, memory.Map{
		"pattern": memory.String("Template Reuse"),
		"context": memory.Object(memory.Map{"task": memory.String("proposal")}),
	})
	a1.OwnerAgentID = "agent-1"
	a1.UsageCount = 4
	a1.SuccessRate = successRate(0.9)

	a2 := item("a2", "rfp", []string{"pattern"}, memory.Map{
		"pattern": memory.String("template reuse"),
		"context": memory.Object(memory.Map{"task": memory.String("proposal")}),
	})
	a2.OwnerAgentID = "agent-2"
	a2.UsageCount = 2
	a2.SuccessRate = successRate(0.7)

	b := item("b", "research", []string{"pattern"}, memory.Map{"pattern": memory.String("source triangulation")})
	b.OwnerAgentID = "agent-1"
	b.SuccessRate = successRate(0.5)

	for _, it := range []*Item{a1, a2, b} {
		state.Observe(it)
	}
	stats := state.Stats()

	if stats.TotalPatterns != 3 {
		t.Errorf("expected 3 observed, got %d", stats.TotalPatterns)
	}
	if stats.AgentCount != 2 {
		t.Errorf("expected 2 agents, got %d", stats.AgentCount)
	}

	if len(stats.TopDomains) != 2 || stats.TopDomains[0].Key != "rfp" || stats.TopDomains[0].Count != 2 {
		t.Errorf("unexpected domain ranking: %+v", stats.TopDomains)
	}
	if len(stats.TopContexts) != 1 || stats.TopContexts[0].Key != "task=proposal" || stats.TopContexts[0].Count != 2 {
		t.Errorf("unexpected context ranking: %+v", stats.TopContexts)
	}

	// Label normalization folds the two template-reuse items together.
	if len(stats.SharedPatterns) != 1 {
		t.Fatalf("expected 1 shared pattern, got %+v", stats.SharedPatterns)
	}
	shared := stats.SharedPatterns[0]
	if shared.Label != "template reuse" || shared.AgentCount != 2 || shared.Occurrences != 2 {
		t.Errorf("unexpected shared pattern: %+v", shared)
	}
	if !approx(shared.MeanSuccess, 0.8) {
		t.Errorf("expected mean success 0.8, got %v", shared.MeanSuccess)
	}

	if len(stats.SuccessCorrelations) != 2 {
		t.Fatalf("expected 2 success correlations, got %d", len(stats.SuccessCorrelations))
	}
	if stats.SuccessCorrelations[0].Label != "template reuse" {
		t.Errorf("success ordering wrong: %+v", stats.SuccessCorrelations)
	}
}

func TestAggregationEmpty(t *testing.T) {
	stats := NewAggregationState().Stats()
	if stats.TotalPatterns != 0 || stats.AgentCount != 0 {
		t.Errorf("empty state produced %+v", stats)
	}
	if stats.Summary() != "0 patterns across 0 agents" {
		t.Errorf("unexpected summary: %q", stats.Summary())
	}
}

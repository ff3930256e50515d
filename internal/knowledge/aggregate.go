package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/VerticalLabs-ai/recall/internal/memory"
)

// Ranking cutoffs for aggregated statistics.
const (
	topPatternTypes = 5
	topDomains      = 10
	topContexts     = 10
	topCorrelations = 15
	topShareable    = 10
)

// AggregationState holds the running counters for one aggregation pass.
// It exists only for the duration of the pass; the engine never caches it.
type AggregationState struct {
	Total    int
	Agents   map[string]bool
	Types    map[string]int
	Domains  map[string]int
	Contexts map[string]int
	Patterns map[string]*PatternAggregate
}

// PatternAggregate accumulates per-pattern signals keyed by the normalized
// pattern label.
type PatternAggregate struct {
	Label          string
	Agents         map[string]bool
	Domains        map[string]bool
	SuccessSamples []float64
	Usage          int
	ConfidenceSum  float64
	Count          int
}

// NewAggregationState creates empty counters.
func NewAggregationState() *AggregationState {
	return &AggregationState{
		Agents:   make(map[string]bool),
		Types:    make(map[string]int),
		Domains:  make(map[string]int),
		Contexts: make(map[string]int),
		Patterns: make(map[string]*PatternAggregate),
	}
}

// IsPatternKnowledge reports whether an item qualifies for aggregation:
// a "pattern" string content field, a tag containing "pattern", or one of
// the reserved pattern knowledge types. Heuristic; may admit unrelated
// items that merely look pattern-shaped.
func IsPatternKnowledge(item *Item) bool {
	switch item.KnowledgeType {
	case TypeExtractedPattern, TypeSessionLearning:
		return true
	}
	if v, ok := item.Content["pattern"]; ok && v.Kind == memory.KindString {
		return true
	}
	for _, t := range item.Tags {
		if strings.Contains(strings.ToLower(t), "pattern") {
			return true
		}
	}
	return false
}

// Observe folds one qualifying item into the running counters.
func (s *AggregationState) Observe(item *Item) {
	s.Total++
	if item.OwnerAgentID != "" {
		s.Agents[item.OwnerAgentID] = true
	}
	if item.KnowledgeType != "" {
		s.Types[item.KnowledgeType]++
	}
	if item.Domain != "" {
		s.Domains[strings.ToLower(item.Domain)]++
	}
	for _, pair := range contextPairs(item.Content) {
		s.Contexts[pair]++
	}

	label := patternLabel(item)
	agg := s.Patterns[label]
	if agg == nil {
		agg = &PatternAggregate{
			Label:   label,
			Agents:  make(map[string]bool),
			Domains: make(map[string]bool),
		}
		s.Patterns[label] = agg
	}
	agg.Count++
	agg.Usage += item.UsageCount
	agg.ConfidenceSum += item.ConfidenceScore
	if item.OwnerAgentID != "" {
		agg.Agents[item.OwnerAgentID] = true
	}
	if item.Domain != "" {
		agg.Domains[strings.ToLower(item.Domain)] = true
	}
	if item.SuccessRate != nil {
		agg.SuccessSamples = append(agg.SuccessSamples, *item.SuccessRate)
	}
}

// patternLabel normalizes the aggregate key: the content "pattern" field
// when present, otherwise the item title, lower-cased.
func patternLabel(item *Item) string {
	if v, ok := item.Content["pattern"]; ok && v.Kind == memory.KindString && v.Str != "" {
		return strings.ToLower(v.Str)
	}
	return strings.ToLower(item.Title)
}

// contextPairs renders the item's context submap as normalized key=value
// strings for the context histogram.
func contextPairs(content memory.Map) []string {
	ctx, ok := content["context"]
	if !ok || ctx.Kind != memory.KindObject {
		return nil
	}
	var pairs []string
	for k, v := range ctx.Obj {
		if sv, ok := v.ScalarKey(); ok {
			pairs = append(pairs, strings.ToLower(k)+"="+strings.ToLower(sv))
		}
	}
	return pairs
}

// FrequencyStat is a ranked histogram entry.
type FrequencyStat struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	Ratio float64 `json:"ratio"`
}

// PatternStat is a ranked pattern aggregate.
type PatternStat struct {
	Label          string  `json:"label"`
	Occurrences    int     `json:"occurrences"`
	AgentCount     int     `json:"agent_count"`
	DomainCount    int     `json:"domain_count"`
	Usage          int     `json:"usage"`
	MeanConfidence float64 `json:"mean_confidence"`
	MeanSuccess    float64 `json:"mean_success"`
	HasSuccessData bool    `json:"has_success_data"`
}

// AggregatedStats is the ranked output of one aggregation pass.
type AggregatedStats struct {
	TotalPatterns       int             `json:"total_patterns"`
	AgentCount          int             `json:"agent_count"`
	TopPatternTypes     []FrequencyStat `json:"top_pattern_types"`
	TopDomains          []FrequencyStat `json:"top_domains"`
	TopContexts         []FrequencyStat `json:"top_contexts"`
	SuccessCorrelations []PatternStat   `json:"success_correlations"`
	SharedPatterns      []PatternStat   `json:"shared_patterns"`
}

// Stats ranks the counters into the final report.
func (s *AggregationState) Stats() *AggregatedStats {
	out := &AggregatedStats{
		TotalPatterns:   s.Total,
		AgentCount:      len(s.Agents),
		TopPatternTypes: topFrequencies(s.Types, s.Total, topPatternTypes),
		TopDomains:      topFrequencies(s.Domains, s.Total, topDomains),
		TopContexts:     topFrequencies(s.Contexts, s.Total, topContexts),
	}

	all := make([]PatternStat, 0, len(s.Patterns))
	for _, agg := range s.Patterns {
		all = append(all, agg.stat())
	}
	sortPatternStats(all)

	for _, ps := range all {
		if len(out.SuccessCorrelations) < topCorrelations && ps.HasSuccessData {
			out.SuccessCorrelations = append(out.SuccessCorrelations, ps)
		}
		if len(out.SharedPatterns) < topShareable && ps.AgentCount > 1 {
			out.SharedPatterns = append(out.SharedPatterns, ps)
		}
	}
	return out
}

func (agg *PatternAggregate) stat() PatternStat {
	ps := PatternStat{
		Label:       agg.Label,
		Occurrences: agg.Count,
		AgentCount:  len(agg.Agents),
		DomainCount: len(agg.Domains),
		Usage:       agg.Usage,
	}
	if agg.Count > 0 {
		ps.MeanConfidence = agg.ConfidenceSum / float64(agg.Count)
	}
	if len(agg.SuccessSamples) > 0 {
		var sum float64
		for _, v := range agg.SuccessSamples {
			sum += v
		}
		ps.MeanSuccess = sum / float64(len(agg.SuccessSamples))
		ps.HasSuccessData = true
	}
	return ps
}

// sortPatternStats orders by mean success rate, then usage, then label for
// a stable report.
func sortPatternStats(stats []PatternStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].MeanSuccess != stats[j].MeanSuccess {
			return stats[i].MeanSuccess > stats[j].MeanSuccess
		}
		if stats[i].Usage != stats[j].Usage {
			return stats[i].Usage > stats[j].Usage
		}
		return stats[i].Label < stats[j].Label
	})
}

func topFrequencies(counts map[string]int, total, limit int) []FrequencyStat {
	stats := make([]FrequencyStat, 0, len(counts))
	for k, n := range counts {
		fs := FrequencyStat{Key: k, Count: n}
		if total > 0 {
			fs.Ratio = float64(n) / float64(total)
		}
		stats = append(stats, fs)
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Key < stats[j].Key
	})
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

// Summary renders a one-line description for the global intelligence item.
func (s *AggregatedStats) Summary() string {
	return fmt.Sprintf("%d patterns across %d agents", s.TotalPatterns, s.AgentCount)
}

package memory

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExtractorConfig controls pattern mining behavior.
type ExtractorConfig struct {
	GroupThreshold   float64 // similarity needed to absorb into a group (default 0.7)
	TemporalWindow   int     // consecutive memories per cadence window (default 3)
	TemporalVariance float64 // max interval variance as a fraction of the mean (default 0.1)
	CausalShare      float64 // fraction of a group that must share a factor (default 0.6)
}

// DefaultExtractorConfig returns sensible defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		GroupThreshold:   0.7,
		TemporalWindow:   3,
		TemporalVariance: 0.1,
		CausalShare:      0.6,
	}
}

// Extractor mines knowledge patterns from bounded sets of memories. The
// grouping pass is O(n²); callers bound the input (one agent's stale
// memories, one session's working set), never the full corpus.
type Extractor struct {
	cfg    ExtractorConfig
	logger *zap.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(cfg ExtractorConfig, logger *zap.Logger) *Extractor {
	if cfg.GroupThreshold == 0 {
		cfg = DefaultExtractorConfig()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract runs all three mining passes over the given memories. Every
// emitted pattern is backed by at least two memories.
func (e *Extractor) Extract(memories []*Record) []*Pattern {
	if len(memories) < 2 {
		return nil
	}

	patterns := e.groupBySimilarity(memories)
	patterns = append(patterns, e.mineTemporal(memories)...)
	patterns = append(patterns, e.mineCausal(memories)...)

	e.logger.Debug("pattern extraction complete",
		zap.Int("memories", len(memories)),
		zap.Int("patterns", len(patterns)))
	return patterns
}

// groupBySimilarity greedily clusters memories in input order: each
// unprocessed memory absorbs every later unprocessed memory above the
// threshold. Singleton groups are discarded.
func (e *Extractor) groupBySimilarity(memories []*Record) []*Pattern {
	processed := make([]bool, len(memories))
	var patterns []*Pattern

	for i, seed := range memories {
		if processed[i] {
			continue
		}
		processed[i] = true
		group := []*Record{seed}

		for j := i + 1; j < len(memories); j++ {
			if processed[j] {
				continue
			}
			if Similarity(seed, memories[j]) > e.cfg.GroupThreshold {
				processed[j] = true
				group = append(group, memories[j])
			}
		}
		if len(group) < 2 {
			continue
		}

		var simSum float64
		for j := 1; j < len(group); j++ {
			simSum += Similarity(group[j-1], group[j])
		}
		meanAdjacent := simSum / float64(len(group)-1)
		confidence := math.Min(1.0, 0.6*(float64(len(group))/10)+0.4*meanAdjacent)
		patterns = append(patterns, &Pattern{
			ID:          uuid.New().String(),
			Type:        majorityType(group),
			Description: fmt.Sprintf("recurring experience across %d memories: %s", len(group), seed.Title),
			Confidence:  confidence,
			Frequency:   len(group),
			MemoryIDs:   recordIDs(group),
			Context: Map{
				"seed_title": String(seed.Title),
				"tags":       tagValue(group),
			},
			Metadata: Map{"mined_by": String("similarity_grouping")},
		})
	}
	return patterns
}

// mineTemporal looks for regular cadences: any window of consecutive
// memories whose inter-arrival intervals vary by less than the configured
// fraction of the mean interval.
func (e *Extractor) mineTemporal(memories []*Record) []*Pattern {
	if len(memories) < e.cfg.TemporalWindow {
		return nil
	}
	sorted := make([]*Record, len(memories))
	copy(sorted, memories)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var patterns []*Pattern
	for i := 0; i+e.cfg.TemporalWindow <= len(sorted); i++ {
		window := sorted[i : i+e.cfg.TemporalWindow]
		intervals := make([]float64, 0, len(window)-1)
		for j := 1; j < len(window); j++ {
			intervals = append(intervals, window[j].CreatedAt.Sub(window[j-1].CreatedAt).Seconds())
		}

		var mean float64
		for _, v := range intervals {
			mean += v
		}
		mean /= float64(len(intervals))
		if mean <= 0 {
			continue
		}
		var variance float64
		for _, v := range intervals {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(intervals))
		if variance >= e.cfg.TemporalVariance*mean {
			continue
		}

		cadence := time.Duration(mean * float64(time.Second)).Round(time.Second)
		patterns = append(patterns, &Pattern{
			ID:          uuid.New().String(),
			Type:        TypeProcedural,
			Description: fmt.Sprintf("regular cadence: %d memories roughly every %s", len(window), cadence),
			Confidence:  0.8,
			Frequency:   len(window),
			MemoryIDs:   recordIDs(window),
			Context:     Map{"interval_seconds": Number(mean)},
			Metadata:    Map{"mined_by": String("temporal_cadence")},
		})
	}
	return patterns
}

// mineCausal splits memories into success and failure by the boolean
// content.success field and reports factors shared by most of either side.
func (e *Extractor) mineCausal(memories []*Record) []*Pattern {
	var succ, fail []*Record
	for _, m := range memories {
		v, ok := m.Content["success"]
		if !ok || v.Kind != KindBool {
			continue
		}
		if v.Bool {
			succ = append(succ, m)
		} else {
			fail = append(fail, m)
		}
	}

	var patterns []*Pattern
	if p := e.causalPattern(succ, "success"); p != nil {
		patterns = append(patterns, p)
	}
	if p := e.causalPattern(fail, "failure"); p != nil {
		patterns = append(patterns, p)
	}
	return patterns
}

func (e *Extractor) causalPattern(group []*Record, outcome string) *Pattern {
	if len(group) < 2 {
		return nil
	}

	// factor -> value -> occurrences
	counts := make(map[string]map[string]int)
	for _, m := range group {
		for k, v := range m.Content {
			if k == "success" {
				continue
			}
			key, ok := v.ScalarKey()
			if !ok || v.Kind == KindBool || v.Kind == KindNull {
				continue
			}
			if counts[k] == nil {
				counts[k] = make(map[string]int)
			}
			counts[k][key]++
		}
	}

	var factors []string
	var shareSum float64
	for factor, values := range counts {
		for val, n := range values {
			share := float64(n) / float64(len(group))
			if share >= e.cfg.CausalShare {
				factors = append(factors, fmt.Sprintf("%s=%s", factor, val))
				shareSum += share
			}
		}
	}
	if len(factors) == 0 {
		return nil
	}
	sort.Strings(factors)

	return &Pattern{
		ID:          uuid.New().String(),
		Type:        TypeSemantic,
		Description: fmt.Sprintf("%s correlates with %s across %d memories", outcome, strings.Join(factors, ", "), len(group)),
		Confidence:  shareSum / float64(len(factors)),
		Frequency:   len(group),
		MemoryIDs:   recordIDs(group),
		Context:     Map{"outcome": String(outcome), "factors": factorValues(factors)},
		Metadata:    Map{"mined_by": String("causal_factors")},
	}
}

// majorityType returns the most common memory type in a group. Ties break
// toward the seed's type.
func majorityType(group []*Record) Type {
	counts := make(map[Type]int, 4)
	for _, m := range group {
		counts[m.MemoryType]++
	}
	best := group[0].MemoryType
	for t, n := range counts {
		if n > counts[best] {
			best = t
		}
	}
	return best
}

func recordIDs(group []*Record) []string {
	ids := make([]string, len(group))
	for i, m := range group {
		ids[i] = m.ID
	}
	return ids
}

func tagValue(group []*Record) Value {
	seen := make(map[string]bool)
	var tags []Value
	for _, m := range group {
		for _, t := range m.Tags {
			lt := strings.ToLower(t)
			if !seen[lt] {
				seen[lt] = true
				tags = append(tags, String(lt))
			}
		}
	}
	return Value{Kind: KindArray, Arr: tags}
}

func factorValues(factors []string) Value {
	vs := make([]Value, len(factors))
	for i, f := range factors {
		vs[i] = String(f)
	}
	return Value{Kind: KindArray, Arr: vs}
}

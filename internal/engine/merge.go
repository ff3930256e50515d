package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/memory"
)

// mergeLogCadence is how many outer iterations pass between progress logs.
const mergeLogCadence = 10

// Merge deduplicates the active memory set toward targetReduction merged
// records, bounded by the configured deadline and iteration cap. Returns
// the number of records merged away; reaching a bound is normal
// termination, not an error, so the count may fall short of the target.
// A storage failure aborts the pass but preserves progress made so far.
func (e *Engine) Merge(ctx context.Context, targetReduction int) (int, error) {
	if targetReduction <= 0 {
		return 0, nil
	}

	active, err := e.loadActiveMemories(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active memories: %w", err)
	}

	start := time.Now()
	deadline := start.Add(e.cfg.MergeDeadline)
	var merged, iterations int

	for merged < targetReduction && len(active) > 1 {
		if iterations >= e.cfg.MergeMaxIterations {
			e.logger.Info("merge iteration cap reached",
				zap.Int("iterations", iterations), zap.Int("merged", merged))
			break
		}
		if !time.Now().Before(deadline) {
			e.logger.Info("merge deadline reached",
				zap.Duration("elapsed", time.Since(start)), zap.Int("merged", merged))
			break
		}
		iterations++

		sample := stratifiedSample(active, e.cfg.MergeMaxCandidates)
		bi, bj, bestSim := e.bestPair(sample)
		if bi < 0 {
			break // no pair above threshold, set has converged
		}

		primary, seed := e.orient(sample[bi], sample[bj])
		secondaries := []*memory.Record{seed}
		for _, cand := range sample {
			if cand.ID == primary.ID || cand.ID == seed.ID {
				continue
			}
			if memory.Similarity(primary, cand) > e.cfg.SimilarityThreshold {
				secondaries = append(secondaries, cand)
			}
		}
		sort.SliceStable(secondaries, func(i, j int) bool {
			return secondaries[i].Importance < secondaries[j].Importance
		})
		if needed := targetReduction - merged; len(secondaries) > needed {
			secondaries = secondaries[:needed]
		}

		updated, err := e.mergeInto(ctx, primary, secondaries)
		if err != nil {
			return merged, err
		}
		active = replaceRecord(active, updated)
		active = removeRecords(active, secondaries)
		merged += len(secondaries)

		if iterations%mergeLogCadence == 0 {
			e.logger.Info("merge progress",
				zap.Int("iterations", iterations),
				zap.Int("merged", merged),
				zap.Int("active", len(active)),
				zap.Float64("best_similarity", bestSim))
		}
	}

	e.logger.Info("merge pass complete",
		zap.Int("merged", merged),
		zap.Int("iterations", iterations),
		zap.Duration("elapsed", time.Since(start)))
	e.audit(ctx, AuditEntry{
		Action:     "memory.merge",
		EntityType: "memory_set",
		Detail: memory.Map{
			"merged":     memory.Number(float64(merged)),
			"iterations": memory.Number(float64(iterations)),
		},
	})
	return merged, nil
}

// bestPair scans sampled pairs for the most similar pair above the
// threshold. Ties prefer the pair whose would-be-discarded member has the
// lowest importance, so the surviving record keeps the most information;
// the preference flips under DiscardHighestImportance.
func (e *Engine) bestPair(sample []*memory.Record) (int, int, float64) {
	bi, bj := -1, -1
	var bestSim float64
	var bestDiscard int

	for i := 0; i < len(sample); i++ {
		for j := i + 1; j < len(sample); j++ {
			sim := memory.Similarity(sample[i], sample[j])
			if sim <= e.cfg.SimilarityThreshold {
				continue
			}
			_, discard := e.orient(sample[i], sample[j])
			switch {
			case sim > bestSim:
			case sim == bestSim && e.preferDiscard(discard.Importance, bestDiscard):
			default:
				continue
			}
			bi, bj, bestSim, bestDiscard = i, j, sim, discard.Importance
		}
	}
	return bi, bj, bestSim
}

func (e *Engine) preferDiscard(candidate, current int) bool {
	if e.cfg.DiscardPreference == DiscardHighestImportance {
		return candidate > current
	}
	return candidate < current
}

// orient splits a pair into the surviving primary and the record to be
// merged away. By default the higher-importance member survives.
func (e *Engine) orient(a, b *memory.Record) (primary, secondary *memory.Record) {
	aWins := a.Importance >= b.Importance
	if e.cfg.DiscardPreference == DiscardHighestImportance {
		aWins = a.Importance <= b.Importance
	}
	if aWins {
		return a, b
	}
	return b, a
}

// mergeInto deep-merges each secondary into the primary, persists the
// primary and archives the secondaries with a mergedInto marker. Storage
// errors propagate; partial progress before the failure is kept.
func (e *Engine) mergeInto(ctx context.Context, primary *memory.Record, secondaries []*memory.Record) (*memory.Record, error) {
	content := primary.Content.Clone()
	meta := primary.Metadata.Clone()
	if meta == nil {
		meta = memory.Map{}
	}
	tags := append([]string{}, primary.Tags...)
	importance := primary.Importance
	associated := associatedSet(primary)

	for _, sec := range secondaries {
		content = memory.MergeMaps(content, sec.Content)
		meta = memory.MergeMaps(meta, sec.Metadata)
		tags = unionTags(tags, sec.Tags)
		if sec.Importance > importance {
			importance = sec.Importance
		}
		associated[sec.ID] = true
		for id := range associatedSet(sec) {
			associated[id] = true
		}
		meta["merged_from"] = appendUnique(meta["merged_from"], sec.ID)
	}
	meta["associated_memories"] = idArray(associated)

	updated, err := e.store.UpdateMemory(ctx, primary.ID, memory.RecordPatch{
		Content:    content,
		Metadata:   meta,
		Tags:       tags,
		Importance: &importance,
	})
	if err != nil {
		return nil, fmt.Errorf("update merge primary %s: %w", primary.ID, err)
	}

	archived := true
	for _, sec := range secondaries {
		secMeta := sec.Metadata.Clone()
		if secMeta == nil {
			secMeta = memory.Map{}
		}
		secMeta["merged_into"] = memory.String(primary.ID)
		if _, err := e.store.UpdateMemory(ctx, sec.ID, memory.RecordPatch{
			Archived: &archived,
			Metadata: secMeta,
		}); err != nil {
			return nil, fmt.Errorf("archive merged memory %s: %w", sec.ID, err)
		}
	}
	return updated, nil
}

// stratifiedSample bounds pairwise comparisons by taking evenly spaced
// records from the active set.
func stratifiedSample(set []*memory.Record, max int) []*memory.Record {
	if max <= 0 || len(set) <= max {
		return set
	}
	out := make([]*memory.Record, 0, max)
	step := float64(len(set)) / float64(max)
	for i := 0; i < max; i++ {
		out = append(out, set[int(float64(i)*step)])
	}
	return out
}

func replaceRecord(set []*memory.Record, updated *memory.Record) []*memory.Record {
	if updated == nil {
		return set
	}
	for i, m := range set {
		if m.ID == updated.ID {
			set[i] = updated
			break
		}
	}
	return set
}

func removeRecords(set []*memory.Record, gone []*memory.Record) []*memory.Record {
	drop := make(map[string]bool, len(gone))
	for _, m := range gone {
		drop[m.ID] = true
	}
	out := set[:0]
	for _, m := range set {
		if !drop[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

func associatedSet(m *memory.Record) map[string]bool {
	out := make(map[string]bool)
	v, ok := m.Metadata["associated_memories"]
	if !ok || v.Kind != memory.KindArray {
		return out
	}
	for _, e := range v.Arr {
		if e.Kind == memory.KindString {
			out[e.Str] = true
		}
	}
	return out
}

func unionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, t := range a {
		seen[t] = true
	}
	for _, t := range b {
		if !seen[t] {
			seen[t] = true
			a = append(a, t)
		}
	}
	return a
}

func appendUnique(v memory.Value, id string) memory.Value {
	if v.Kind != memory.KindArray {
		v = memory.Value{Kind: memory.KindArray}
	}
	for _, e := range v.Arr {
		if e.Kind == memory.KindString && e.Str == id {
			return v
		}
	}
	v.Arr = append(v.Arr, memory.String(id))
	return v
}

func idArray(ids map[string]bool) memory.Value {
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	vs := make([]memory.Value, len(sorted))
	for i, id := range sorted {
		vs[i] = memory.String(id)
	}
	return memory.Value{Kind: memory.KindArray, Arr: vs}
}

package engine

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/knowledge"
	"github.com/VerticalLabs-ai/recall/internal/memory"
)

// AggregatePatterns streams the whole knowledge base in fixed-size pages,
// folds qualifying pattern knowledge into fresh per-call state, and upserts
// a single global pattern intelligence item. The scan yields cooperatively
// between page batches so a long pass never starves concurrent callers.
func (e *Engine) AggregatePatterns(ctx context.Context) (*knowledge.AggregatedStats, error) {
	start := time.Now()
	state := knowledge.NewAggregationState()
	var pages, scanned int

	for offset := 0; ; offset += e.cfg.PageSize {
		page, err := e.store.ListKnowledgePage(ctx, e.cfg.PageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list knowledge page at %d: %w", offset, err)
		}
		scanned += len(page)
		for _, item := range page {
			if knowledge.IsPatternKnowledge(item) {
				state.Observe(item)
			}
		}
		pages++
		if pages%e.cfg.YieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			runtime.Gosched()
		}
		if len(page) < e.cfg.PageSize {
			break
		}
	}

	stats := state.Stats()
	e.logger.Info("pattern aggregation complete",
		zap.Int("pages", pages),
		zap.Int("scanned", scanned),
		zap.Int("patterns", stats.TotalPatterns),
		zap.Duration("elapsed", time.Since(start)))

	if err := e.upsertGlobalIntelligence(ctx, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// upsertGlobalIntelligence updates the well-known global item if present,
// otherwise inserts it. An empty corpus writes nothing.
func (e *Engine) upsertGlobalIntelligence(ctx context.Context, stats *knowledge.AggregatedStats) error {
	// Policy: a pass that observed no patterns writes nothing, rather than
	// upserting an empty global item.
	if stats.TotalPatterns == 0 {
		e.logger.Debug("no pattern knowledge observed, skipping global intelligence upsert")
		return nil
	}

	content := memory.Map{
		"pattern":      memory.String("global pattern intelligence"),
		"summary":      memory.String(stats.Summary()),
		"total":        memory.Number(float64(stats.TotalPatterns)),
		"agents":       memory.Number(float64(stats.AgentCount)),
		"top_types":    frequencyValues(stats.TopPatternTypes),
		"top_domains":  frequencyValues(stats.TopDomains),
		"top_contexts": frequencyValues(stats.TopContexts),
	}

	existing, err := e.store.ListKnowledge(ctx, knowledge.Query{
		KnowledgeType: knowledge.TypeGlobalIntelligence,
		Domain:        "global",
		Limit:         1,
	})
	if err != nil {
		return fmt.Errorf("find global intelligence item: %w", err)
	}
	confidence := globalConfidence(stats)
	if len(existing) > 0 {
		if err := e.store.UpdateKnowledge(ctx, existing[0].ID, knowledge.ItemPatch{
			Content:         content,
			ConfidenceScore: &confidence,
		}); err != nil {
			return fmt.Errorf("update global intelligence item: %w", err)
		}
		return nil
	}

	item := &knowledge.Item{
		KnowledgeType:   knowledge.TypeGlobalIntelligence,
		Domain:          "global",
		Title:           "Global Pattern Intelligence",
		Content:         content,
		ConfidenceScore: confidence,
		Tags:            []string{"pattern", "global", "aggregated"},
	}
	if err := e.store.UpsertKnowledge(ctx, item); err != nil {
		return fmt.Errorf("insert global intelligence item: %w", err)
	}
	return nil
}

// globalConfidence grows with observed volume, saturating at 100 patterns.
func globalConfidence(stats *knowledge.AggregatedStats) float64 {
	c := float64(stats.TotalPatterns) / 100
	if c > 1 {
		c = 1
	}
	return c
}

func frequencyValues(stats []knowledge.FrequencyStat) memory.Value {
	vs := make([]memory.Value, len(stats))
	for i, fs := range stats {
		vs[i] = memory.Object(memory.Map{
			"key":   memory.String(fs.Key),
			"count": memory.Number(float64(fs.Count)),
			"ratio": memory.Number(fs.Ratio),
		})
	}
	return memory.Value{Kind: memory.KindArray, Arr: vs}
}

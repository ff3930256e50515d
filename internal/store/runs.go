package store

import (
	"context"
	"fmt"

	"github.com/VerticalLabs-ai/recall/internal/engine"
)

// SaveConsolidationRun persists the immutable audit record of one
// consolidation run.
func (s *Store) SaveConsolidationRun(ctx context.Context, run *engine.ConsolidationRun) error {
	titles := run.KnowledgeTitlesUpdated
	if titles == nil {
		titles = []string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO consolidation_runs (id, kind, started_at, finished_at,
			memories_processed, memories_merged, memories_decayed,
			patterns_extracted, knowledge_titles_updated, compression_ratio, rule_set)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, string(run.Kind), run.StartedAt, run.FinishedAt,
		run.MemoriesProcessed, run.MemoriesMerged, run.MemoriesDecayed,
		run.PatternsExtracted, titles, run.CompressionRatio, run.RuleSet,
	)
	if err != nil {
		return fmt.Errorf("save consolidation run %s: %w", run.ID, err)
	}
	return nil
}

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/memory"
)

// RunKind distinguishes scheduled from triggered consolidation runs.
type RunKind string

const (
	RunNightly   RunKind = "nightly"
	RunWeekly    RunKind = "weekly"
	RunTriggered RunKind = "triggered"
)

// ConsolidationRun is the immutable audit record of one consolidation
// pass. Created at run start, persisted once at the end, never mutated
// afterward.
type ConsolidationRun struct {
	ID                     string    `json:"id"`
	Kind                   RunKind   `json:"kind"`
	StartedAt              time.Time `json:"started_at"`
	FinishedAt             time.Time `json:"finished_at"`
	MemoriesProcessed      int       `json:"memories_processed"`
	MemoriesMerged         int       `json:"memories_merged"`
	MemoriesDecayed        int       `json:"memories_decayed"`
	PatternsExtracted      int       `json:"patterns_extracted"`
	KnowledgeTitlesUpdated []string  `json:"knowledge_titles_updated"`
	CompressionRatio       float64   `json:"compression_ratio"`
	RuleSet                string    `json:"rule_set"`
}

// PerformMemoryConsolidation runs a full consolidation: a global merge
// pass, a decay pass, per-agent pattern extraction, the global aggregator,
// and a graph rebuild for each touched domain, then persists the audit
// record. One agent's failure is logged and skipped; the run never rolls
// back partial progress.
func (e *Engine) PerformMemoryConsolidation(ctx context.Context, kind RunKind) (*ConsolidationRun, error) {
	run := &ConsolidationRun{
		ID:        uuid.New().String(),
		Kind:      kind,
		StartedAt: time.Now(),
		RuleSet: fmt.Sprintf("similarity>%.2f decay=%.2f archive<%.1f",
			e.cfg.SimilarityThreshold, e.cfg.DecayRate, e.cfg.ArchiveThreshold),
	}
	e.logger.Info("consolidation run started",
		zap.String("run", run.ID), zap.String("kind", string(kind)))

	active, err := e.loadActiveMemories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active set: %w", err)
	}
	activeBefore := len(active)

	target := int(e.cfg.MergeTargetFraction * float64(activeBefore))
	merged, err := e.Merge(ctx, target)
	if err != nil {
		e.logger.Error("merge pass failed", zap.String("run", run.ID), zap.Error(err))
	}
	run.MemoriesMerged = merged

	decay, err := e.ApplyDecay(ctx)
	if err != nil {
		e.logger.Error("decay pass failed", zap.String("run", run.ID), zap.Error(err))
	}
	run.MemoriesDecayed = decay.Decayed

	domains := make(map[string]bool)
	agents, err := e.store.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	for _, agentID := range agents {
		processed, titles, err := e.consolidateAgent(ctx, agentID, domains)
		if err != nil {
			e.logger.Error("agent consolidation failed",
				zap.String("run", run.ID), zap.String("agent", agentID), zap.Error(err))
			continue
		}
		run.MemoriesProcessed += processed
		run.PatternsExtracted += len(titles)
		run.KnowledgeTitlesUpdated = append(run.KnowledgeTitlesUpdated, titles...)
	}

	if _, err := e.AggregatePatterns(ctx); err != nil {
		e.logger.Error("aggregation pass failed", zap.String("run", run.ID), zap.Error(err))
	}

	for domain := range domains {
		if _, err := e.BuildKnowledgeGraph(ctx, domain); err != nil {
			e.logger.Warn("post-run graph rebuild failed",
				zap.String("run", run.ID), zap.String("domain", domain), zap.Error(err))
		}
	}

	if activeBefore > 0 {
		run.CompressionRatio = float64(run.MemoriesMerged) / float64(activeBefore)
	}
	run.FinishedAt = time.Now()
	if err := e.store.SaveConsolidationRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save consolidation run: %w", err)
	}

	e.logger.Info("consolidation run complete",
		zap.String("run", run.ID),
		zap.Int("memories_processed", run.MemoriesProcessed),
		zap.Int("merged", run.MemoriesMerged),
		zap.Int("decayed", run.MemoriesDecayed),
		zap.Int("patterns", run.PatternsExtracted),
		zap.Float64("compression", run.CompressionRatio),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)))
	e.audit(ctx, AuditEntry{Action: "consolidation." + string(kind), EntityType: "consolidation_run", EntityID: run.ID})
	e.notify(ctx, Notification{
		Kind:  "consolidation_complete",
		Title: fmt.Sprintf("%s consolidation merged %d and extracted %d patterns", kind, run.MemoriesMerged, run.PatternsExtracted),
	})
	return run, nil
}

// consolidateAgent extracts patterns from one agent's stale memories and
// persists the resulting knowledge. Returns how many memories were
// considered and the titles written.
func (e *Engine) consolidateAgent(ctx context.Context, agentID string, domains map[string]bool) (int, []string, error) {
	mems, err := e.store.ListMemories(ctx, agentID, "", e.cfg.AgentMemoryLimit)
	if err != nil {
		return 0, nil, fmt.Errorf("list memories for %s: %w", agentID, err)
	}

	cutoff := time.Now().Add(-e.cfg.StaleAfter)
	var stale []*memory.Record
	for _, m := range mems {
		if !m.Archived && m.CreatedAt.Before(cutoff) {
			stale = append(stale, m)
		}
	}
	if len(stale) == 0 {
		return 0, nil, nil
	}

	domain := dominantContentDomain(stale)
	domains[domain] = true

	var titles []string
	for _, p := range e.extractor.Extract(stale) {
		item := e.patternKnowledge(agentID, domain, p)
		if err := e.store.UpsertKnowledge(ctx, item); err != nil {
			e.logger.Warn("persist extracted pattern failed",
				zap.String("agent", agentID), zap.Error(err))
			continue
		}
		titles = append(titles, item.Title)
	}
	return len(stale), titles, nil
}

// dominantContentDomain picks the most common content "domain" field
// across a memory set, defaulting to "general".
func dominantContentDomain(mems []*memory.Record) string {
	counts := make(map[string]int)
	for _, m := range mems {
		if v, ok := m.Content["domain"]; ok && v.Kind == memory.KindString && v.Str != "" {
			counts[v.Str]++
		}
	}
	best := "general"
	bestN := 0
	for d, n := range counts {
		if n > bestN || (n == bestN && bestN > 0 && d < best) {
			best, bestN = d, n
		}
	}
	return best
}

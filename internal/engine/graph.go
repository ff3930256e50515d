package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/knowledge"
)

// BuildKnowledgeGraph loads knowledge items (optionally filtered by
// domain) and builds the ephemeral graph. Construction is O(n²) in the
// item count, so the load is bounded by GraphMaxItems; callers wanting the
// whole corpus must go domain by domain.
func (e *Engine) BuildKnowledgeGraph(ctx context.Context, domain string) (*knowledge.Graph, error) {
	start := time.Now()
	items, err := e.store.ListKnowledge(ctx, knowledge.Query{
		Domain: domain,
		Limit:  e.cfg.GraphMaxItems,
	})
	if err != nil {
		return nil, fmt.Errorf("list knowledge for graph: %w", err)
	}

	g := knowledge.Build(items, knowledge.DefaultBuildConfig())
	e.logger.Info("knowledge graph built",
		zap.String("domain", domain),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
		zap.Int("clusters", len(g.Clusters)),
		zap.Float64("strength", g.Strength),
		zap.Duration("elapsed", time.Since(start)))

	if e.mirror != nil {
		if err := e.mirror.MirrorGraph(ctx, domain, g); err != nil {
			e.logger.Warn("graph mirror failed", zap.String("domain", domain), zap.Error(err))
		}
	}
	return g, nil
}

// QueryKnowledgeGraph builds a domain-scoped graph and returns nodes
// matching the query ranked by importance and connectedness.
func (e *Engine) QueryKnowledgeGraph(ctx context.Context, q knowledge.GraphQuery) ([]*knowledge.Node, error) {
	g, err := e.BuildKnowledgeGraph(ctx, q.Domain)
	if err != nil {
		return nil, err
	}
	return knowledge.Rank(g, q), nil
}

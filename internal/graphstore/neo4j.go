package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/knowledge"
)

// Store mirrors built knowledge graphs into Neo4j for inspection. The
// engine works entirely from its in-process graph; the mirror is a
// best-effort visualisation sink.
type Store struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// New creates a Neo4j graph mirror.
func New(uri, user, password string, logger *zap.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Store{driver: driver, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the Neo4j connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// MirrorGraph replaces the stored snapshot for a domain with the given
// graph: nodes, scored edges and cluster memberships.
func (s *Store) MirrorGraph(ctx context.Context, domain string, g *knowledge.Graph) error {
	start := time.Now()
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	if _, err := session.Run(ctx,
		`MATCH (n {snapshot_domain: $domain})
		 DETACH DELETE n`,
		map[string]interface{}{"domain": domain}); err != nil {
		return fmt.Errorf("clear graph snapshot: %w", err)
	}

	if _, err := session.Run(ctx,
		`UNWIND $nodes AS node
		 CREATE (k:KnowledgeNode {
			id: node.id, snapshot_domain: $domain,
			type: node.type, domain: node.domain, label: node.label,
			importance: node.importance, connections: node.connections
		 })`,
		map[string]interface{}{"domain": domain, "nodes": nodeParams(g.Nodes)}); err != nil {
		return fmt.Errorf("mirror nodes: %w", err)
	}

	if len(g.Edges) > 0 {
		if _, err := session.Run(ctx,
			`UNWIND $edges AS edge
			 MATCH (a:KnowledgeNode {id: edge.from, snapshot_domain: $domain}),
			       (b:KnowledgeNode {id: edge.to, snapshot_domain: $domain})
			 CREATE (a)-[:RELATES_TO {
				kind: edge.kind, strength: edge.strength, confidence: edge.confidence
			 }]->(b)`,
			map[string]interface{}{"domain": domain, "edges": edgeParams(g.Edges)}); err != nil {
			return fmt.Errorf("mirror edges: %w", err)
		}
	}

	for _, c := range g.Clusters {
		if _, err := session.Run(ctx,
			`CREATE (c:KnowledgeCluster {
				id: $id, snapshot_domain: $domain,
				cohesion: $cohesion, dominant_domain: $dominant
			 })
			 WITH c
			 UNWIND $members AS member
			 MATCH (k:KnowledgeNode {id: member, snapshot_domain: $domain})
			 CREATE (k)-[:MEMBER_OF]->(c)`,
			map[string]interface{}{
				"id":       c.ID,
				"domain":   domain,
				"cohesion": c.Cohesion,
				"dominant": c.DominantDomain,
				"members":  c.NodeIDs,
			}); err != nil {
			return fmt.Errorf("mirror cluster %s: %w", c.ID, err)
		}
	}

	s.logger.Info("graph snapshot mirrored",
		zap.String("domain", domain),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
		zap.Int("clusters", len(g.Clusters)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func nodeParams(nodes []*knowledge.Node) []map[string]interface{} {
	out := make([]map[string]interface{}, len(nodes))
	for i, n := range nodes {
		out[i] = map[string]interface{}{
			"id":          n.ID,
			"type":        n.Type,
			"domain":      n.Domain,
			"label":       n.Label,
			"importance":  n.Importance,
			"connections": n.ConnectionCount,
		}
	}
	return out
}

func edgeParams(edges []*knowledge.Edge) []map[string]interface{} {
	out := make([]map[string]interface{}, len(edges))
	for i, e := range edges {
		out[i] = map[string]interface{}{
			"from":       e.FromID,
			"to":         e.ToID,
			"kind":       string(e.Kind),
			"strength":   e.Strength,
			"confidence": e.Confidence,
		}
	}
	return out
}

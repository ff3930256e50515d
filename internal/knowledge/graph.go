package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BuildConfig controls graph construction thresholds.
type BuildConfig struct {
	EdgeThreshold    float64 // minimum relation strength for an edge (default 0.3)
	ClusterThreshold float64 // minimum edge strength for cluster membership (default 0.7)
}

// DefaultBuildConfig returns the standard thresholds.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		EdgeThreshold:    0.3,
		ClusterThreshold: 0.7,
	}
}

// Build constructs a graph over the given knowledge items. O(n²) in the
// item count; callers bound the input, typically by domain.
func Build(items []*Item, cfg BuildConfig) *Graph {
	if cfg.EdgeThreshold == 0 {
		cfg = DefaultBuildConfig()
	}

	g := &Graph{BuiltAt: time.Now()}
	nodes := make(map[string]*Node, len(items))
	domains := make(map[string]string, len(items))
	for _, item := range items {
		n := &Node{
			ID:         item.ID,
			Type:       item.KnowledgeType,
			Domain:     item.Domain,
			Label:      item.Title,
			Content:    item.Content.FlattenText(),
			Importance: item.ConfidenceScore * float64(item.UsageCount),
		}
		nodes[item.ID] = n
		domains[item.ID] = item.Domain
		g.Nodes = append(g.Nodes, n)
	}

	strong := make(map[string][]*Edge) // adjacency over cluster-grade edges
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			rel := Relate(items[i], items[j])
			if rel.Strength <= cfg.EdgeThreshold {
				continue
			}
			e := &Edge{
				ID:         uuid.New().String(),
				FromID:     items[i].ID,
				ToID:       items[j].ID,
				Kind:       rel.Kind,
				Strength:   rel.Strength,
				Confidence: rel.Confidence,
				Evidence:   rel.Evidence,
			}
			g.Edges = append(g.Edges, e)
			nodes[e.FromID].ConnectionCount++
			nodes[e.ToID].ConnectionCount++
			if e.Strength > cfg.ClusterThreshold {
				strong[e.FromID] = append(strong[e.FromID], e)
				strong[e.ToID] = append(strong[e.ToID], e)
			}
		}
	}

	g.Clusters = buildClusters(g.Nodes, strong, domains)
	g.Strength = graphStrength(len(g.Nodes), g.Edges)
	return g
}

// buildClusters groups each unclustered node with its one-hop strong
// neighbors. Deliberately not a transitive closure; singleton clusters are
// discarded.
func buildClusters(nodes []*Node, strong map[string][]*Edge, domains map[string]string) []*Cluster {
	clustered := make(map[string]bool, len(nodes))
	var clusters []*Cluster

	for _, n := range nodes {
		if clustered[n.ID] || len(strong[n.ID]) == 0 {
			continue
		}
		members := []string{n.ID}
		clustered[n.ID] = true
		var cohesionSum float64
		var cohesionN int
		for _, e := range strong[n.ID] {
			other := e.FromID
			if other == n.ID {
				other = e.ToID
			}
			cohesionSum += e.Strength
			cohesionN++
			if !clustered[other] {
				clustered[other] = true
				members = append(members, other)
			}
		}
		if len(members) < 2 {
			continue
		}

		dominant := dominantDomain(members, domains)
		clusters = append(clusters, &Cluster{
			ID:             uuid.New().String(),
			NodeIDs:        members,
			Cohesion:       cohesionSum / float64(cohesionN),
			DominantDomain: dominant,
			Insights: []string{
				fmt.Sprintf("%d knowledge items cluster around %s", len(members), dominant),
			},
		})
	}
	return clusters
}

func dominantDomain(ids []string, domains map[string]string) string {
	counts := make(map[string]int)
	for _, id := range ids {
		if d := domains[id]; d != "" {
			counts[d]++
		}
	}
	var best string
	for d, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && d < best) {
			best = d
		}
	}
	if best == "" {
		return "general"
	}
	return best
}

// graphStrength is the sum of edge strengths over the theoretical maximum
// edge count n(n-1)/2, in [0,1].
func graphStrength(n int, edges []*Edge) float64 {
	if n < 2 {
		return 0
	}
	var sum float64
	for _, e := range edges {
		sum += e.Strength
	}
	return sum / (float64(n) * float64(n-1) / 2)
}

// Rank filters graph nodes by a query and orders them by
// 0.7·importance + 0.3·connectionCount.
func Rank(g *Graph, q GraphQuery) []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if q.Type != "" && !strings.EqualFold(n.Type, q.Type) {
			continue
		}
		if q.Domain != "" && !strings.EqualFold(n.Domain, q.Domain) {
			continue
		}
		if len(q.Keywords) > 0 && !matchesKeywords(n, q.Keywords) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rankScore(out[i]) > rankScore(out[j])
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func rankScore(n *Node) float64 {
	return 0.7*n.Importance + 0.3*float64(n.ConnectionCount)
}

func matchesKeywords(n *Node, keywords []string) bool {
	text := strings.ToLower(n.Label + " " + n.Content)
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

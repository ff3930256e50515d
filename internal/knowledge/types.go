package knowledge

import (
	"time"

	"github.com/VerticalLabs-ai/recall/internal/memory"
)

// Reserved knowledge types the engine writes.
const (
	TypeExtractedPattern   = "extracted_pattern"
	TypeSessionLearning    = "session_learning"
	TypeGlobalIntelligence = "global_pattern_intelligence"
)

// Item is a distilled, higher-confidence artifact derived from one or more
// memories. Persisted by the storage collaborator.
type Item struct {
	ID              string     `json:"id"`
	OwnerAgentID    string     `json:"owner_agent_id"`
	KnowledgeType   string     `json:"knowledge_type"`
	Domain          string     `json:"domain"`
	Title           string     `json:"title"`
	Content         memory.Map `json:"content"`
	ConfidenceScore float64    `json:"confidence_score"` // 0..1
	UsageCount      int        `json:"usage_count"`
	SuccessRate     *float64   `json:"success_rate,omitempty"`
	Tags            []string   `json:"tags"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ItemPatch is a partial update. Nil fields are left unchanged.
type ItemPatch struct {
	Title           *string
	Content         memory.Map
	ConfidenceScore *float64
	UsageCount      *int
	SuccessRate     *float64
	Tags            []string
}

// Query filters knowledge listings. Zero values mean "any".
type Query struct {
	OwnerAgentID  string
	KnowledgeType string
	Domain        string
	Limit         int
}

// RelationKind classifies an edge between two knowledge items.
type RelationKind string

const (
	RelationSimilar   RelationKind = "similar"
	RelationConflicts RelationKind = "conflicts"
	RelationEnables   RelationKind = "enables"
)

// Node is a knowledge item projected into a graph.
type Node struct {
	ID              string  `json:"id"`
	Type            string  `json:"type"`
	Domain          string  `json:"domain"`
	Label           string  `json:"label"`
	Content         string  `json:"content"`
	Importance      float64 `json:"importance"` // confidence × usage
	ConnectionCount int     `json:"connection_count"`
}

// Edge is a scored relationship between two nodes.
type Edge struct {
	ID         string       `json:"id"`
	FromID     string       `json:"from_id"`
	ToID       string       `json:"to_id"`
	Kind       RelationKind `json:"kind"`
	Strength   float64      `json:"strength"` // 0..1
	Confidence float64      `json:"confidence"`
	Evidence   []string     `json:"evidence"`
}

// Cluster is a group of strongly connected nodes.
type Cluster struct {
	ID             string   `json:"id"`
	NodeIDs        []string `json:"node_ids"`
	Cohesion       float64  `json:"cohesion"` // 0..1
	DominantDomain string   `json:"dominant_domain"`
	Insights       []string `json:"insights"`
}

// Graph is an ephemeral node/edge/cluster structure rebuilt per request.
type Graph struct {
	Nodes    []*Node    `json:"nodes"`
	Edges    []*Edge    `json:"edges"`
	Clusters []*Cluster `json:"clusters"`
	Strength float64    `json:"strength"` // 0..1
	BuiltAt  time.Time  `json:"built_at"`
}

// GraphQuery filters and bounds a ranked node lookup.
type GraphQuery struct {
	Type     string   `json:"type,omitempty"`
	Domain   string   `json:"domain,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

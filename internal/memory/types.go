package memory

import (
	"time"
)

// Type classifies a memory record.
type Type string

const (
	TypeEpisodic   Type = "episodic"
	TypeSemantic   Type = "semantic"
	TypeProcedural Type = "procedural"
	TypeWorking    Type = "working"
)

// Record is a single stored experience. Owned by the storage collaborator;
// the engine reads and updates records through its interface only.
type Record struct {
	ID             string    `json:"id"`
	OwnerAgentID   string    `json:"owner_agent_id"`
	MemoryType     Type      `json:"memory_type"`
	ContextKey     string    `json:"context_key"`
	Title          string    `json:"title"`
	Content        Map       `json:"content"`
	Importance     int       `json:"importance"` // 1..10
	Tags           []string  `json:"tags"`
	Metadata       Map       `json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	Archived       bool      `json:"archived"`
}

// RecordPatch is a partial update. Nil fields are left unchanged.
type RecordPatch struct {
	Title          *string
	Content        Map
	Importance     *int
	Tags           []string
	Metadata       Map
	LastAccessedAt *time.Time
	Archived       *bool
}

// Pattern is a transient description of recurring structure across two or
// more memories. Patterns are consumed immediately to produce knowledge
// writes and are never persisted or merged further.
type Pattern struct {
	ID          string   `json:"id"`
	Type        Type     `json:"type"`
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"` // 0..1
	Frequency   int      `json:"frequency"`  // >= 2
	MemoryIDs   []string `json:"memory_ids"`
	Context     Map      `json:"context"`
	Metadata    Map      `json:"metadata"`
}

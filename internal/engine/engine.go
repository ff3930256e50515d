package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/knowledge"
	"github.com/VerticalLabs-ai/recall/internal/memory"
)

// DiscardPolicy selects which member of a merge pair is archived when
// similarity ties. Policy, not invariant; see Config.
type DiscardPolicy string

const (
	DiscardLowestImportance  DiscardPolicy = "lowest-importance"
	DiscardHighestImportance DiscardPolicy = "highest-importance"
)

// Config carries every threshold, cap and deadline the engine uses. Set
// once at construction so bounds apply uniformly to all invocations.
type Config struct {
	SimilarityThreshold float64       `json:"similarity_threshold"` // merge candidates must exceed this
	MergeDeadline       time.Duration `json:"merge_deadline"`       // wall-clock budget per merge call
	MergeMaxIterations  int           `json:"merge_max_iterations"`
	MergeMaxCandidates  int           `json:"merge_max_candidates"` // sample cap per comparison root
	DiscardPreference   DiscardPolicy `json:"discard_preference"`

	DecayWindowDays  int     `json:"decay_window_days"`
	DecayRate        float64 `json:"decay_rate"`
	ArchiveThreshold float64 `json:"archive_threshold"`
	DecayConcurrency int     `json:"decay_concurrency"`

	PageSize   int `json:"page_size"`   // storage scan page size
	YieldEvery int `json:"yield_every"` // aggregator yield cadence, in pages

	StaleAfter          time.Duration `json:"stale_after"` // memory age before consolidation touches it
	AgentMemoryLimit    int           `json:"agent_memory_limit"`
	GraphMaxItems       int           `json:"graph_max_items"`
	MergeTargetFraction float64       `json:"merge_target_fraction"` // share of the active set a run reclaims

	Extractor memory.ExtractorConfig `json:"extractor"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.85,
		MergeDeadline:       30 * time.Second,
		MergeMaxIterations:  100,
		MergeMaxCandidates:  200,
		DiscardPreference:   DiscardLowestImportance,
		DecayWindowDays:     30,
		DecayRate:           0.95,
		ArchiveThreshold:    2,
		DecayConcurrency:    8,
		PageSize:            500,
		YieldEvery:          3,
		StaleAfter:          24 * time.Hour,
		AgentMemoryLimit:    500,
		GraphMaxItems:       500,
		MergeTargetFraction: 0.1,
		Extractor:           memory.DefaultExtractorConfig(),
	}
}

// Store is the storage collaborator the engine consumes. Mutation is
// last-writer-wins; the engine assumes no optimistic locking.
type Store interface {
	ListMemories(ctx context.Context, ownerAgentID string, memoryType memory.Type, limit int) ([]*memory.Record, error)
	ListActiveMemories(ctx context.Context, pageSize, offset int) ([]*memory.Record, error)
	UpdateMemory(ctx context.Context, id string, patch memory.RecordPatch) (*memory.Record, error)
	GetMemoryByKey(ctx context.Context, ownerAgentID, contextKey string) (*memory.Record, error)

	UpsertKnowledge(ctx context.Context, item *knowledge.Item) error
	UpdateKnowledge(ctx context.Context, id string, patch knowledge.ItemPatch) error
	ListKnowledge(ctx context.Context, q knowledge.Query) ([]*knowledge.Item, error)
	ListKnowledgePage(ctx context.Context, pageSize, offset int) ([]*knowledge.Item, error)

	ListAgents(ctx context.Context) ([]string, error)

	SaveSessionContext(ctx context.Context, sc *SessionContext) error
	GetSessionContext(ctx context.Context, sessionID string) (*SessionContext, error)

	SaveConsolidationRun(ctx context.Context, run *ConsolidationRun) error
}

// Notification is a fire-and-forget operator signal.
type Notification struct {
	AgentID string `json:"agent_id,omitempty"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Body    string `json:"body,omitempty"`
}

// AuditEntry records an engine side effect for provenance.
type AuditEntry struct {
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Detail     memory.Map `json:"detail,omitempty"`
}

// Notifier delivers notifications and audit records. Failures are logged
// by the engine, never propagated.
type Notifier interface {
	CreateNotification(ctx context.Context, n Notification) error
	CreateAuditLog(ctx context.Context, entry AuditEntry) error
}

// GraphMirror persists a built knowledge graph snapshot somewhere
// inspectable. Best-effort; the engine works from the in-process graph.
type GraphMirror interface {
	MirrorGraph(ctx context.Context, domain string, g *knowledge.Graph) error
}

// Engine is the consolidation and pattern-extraction engine. It owns no
// mutable state between calls beyond its injected collaborators, so a
// single value is safe to share across concurrent callers.
type Engine struct {
	store     Store
	notifier  Notifier
	mirror    GraphMirror
	extractor *memory.Extractor
	cfg       Config
	logger    *zap.Logger
}

// New constructs an engine with injected collaborators. notifier may be
// nil (side effects are skipped); mirror is optional via SetGraphMirror.
func New(store Store, notifier Notifier, cfg Config, logger *zap.Logger) *Engine {
	if cfg.SimilarityThreshold == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		store:     store,
		notifier:  notifier,
		extractor: memory.NewExtractor(cfg.Extractor, logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// SetGraphMirror attaches an optional graph snapshot sink.
func (e *Engine) SetGraphMirror(m GraphMirror) {
	e.mirror = m
}

// notify delivers a notification, logging any failure.
func (e *Engine) notify(ctx context.Context, n Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.CreateNotification(ctx, n); err != nil {
		e.logger.Warn("notification failed", zap.String("kind", n.Kind), zap.Error(err))
	}
}

// audit records an audit entry, logging any failure.
func (e *Engine) audit(ctx context.Context, entry AuditEntry) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.CreateAuditLog(ctx, entry); err != nil {
		e.logger.Warn("audit log failed", zap.String("action", entry.Action), zap.Error(err))
	}
}

// loadActiveMemories pages through the unfiltered active set.
func (e *Engine) loadActiveMemories(ctx context.Context) ([]*memory.Record, error) {
	var active []*memory.Record
	for offset := 0; ; offset += e.cfg.PageSize {
		page, err := e.store.ListActiveMemories(ctx, e.cfg.PageSize, offset)
		if err != nil {
			return nil, err
		}
		active = append(active, page...)
		if len(page) < e.cfg.PageSize {
			return active, nil
		}
	}
}

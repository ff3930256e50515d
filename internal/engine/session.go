package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/knowledge"
	"github.com/VerticalLabs-ai/recall/internal/memory"
)

// Outcome is one result observed during a session.
type Outcome struct {
	Description string    `json:"description"`
	Success     bool      `json:"success"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// SessionContext carries cross-session state for one agent task. It is
// created once, mutated additively while active, and finalized exactly
// once; afterwards it is read-only history.
type SessionContext struct {
	SessionID      string     `json:"session_id"`
	OwnerAgentID   string     `json:"owner_agent_id"`
	TaskType       string     `json:"task_type"`
	Domain         string     `json:"domain"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Outcomes       []Outcome  `json:"outcomes"`
	LearningPoints []string   `json:"learning_points"`
	CarryOver      memory.Map `json:"carry_over"`
}

// Finalized reports whether the session reached its terminal state.
func (sc *SessionContext) Finalized() bool {
	return sc.EndedAt != nil
}

// SessionRequest starts a new session.
type SessionRequest struct {
	OwnerAgentID string     `json:"owner_agent_id"`
	TaskType     string     `json:"task_type"`
	Domain       string     `json:"domain"`
	CarryOver    memory.Map `json:"carry_over,omitempty"`
}

// SessionUpdate appends to an active session.
type SessionUpdate struct {
	Outcomes       []Outcome  `json:"outcomes,omitempty"`
	LearningPoints []string   `json:"learning_points,omitempty"`
	CarryOver      memory.Map `json:"carry_over,omitempty"`
}

// taskBaselines are expected durations per task type, used by the timing
// analysis at finalize. Unknown task types fall back to defaultBaseline.
var taskBaselines = map[string]time.Duration{
	"proposal":   2 * time.Hour,
	"research":   time.Hour,
	"submission": 30 * time.Minute,
	"review":     45 * time.Minute,
}

const defaultBaseline = time.Hour

// InitializeSessionContext creates and persists a session context seeded
// with prior knowledge for the (agent, taskType, domain) triple. An
// unknown agent is a hard failure; everything else degrades gracefully.
func (e *Engine) InitializeSessionContext(ctx context.Context, req SessionRequest) (*SessionContext, error) {
	if err := e.requireAgent(ctx, req.OwnerAgentID); err != nil {
		return nil, err
	}

	carryOver := req.CarryOver.Clone()
	if carryOver == nil {
		carryOver = memory.Map{}
	}

	prior, err := e.store.ListKnowledge(ctx, knowledge.Query{
		OwnerAgentID: req.OwnerAgentID,
		Domain:       req.Domain,
		Limit:        10,
	})
	if err != nil {
		e.logger.Warn("prior knowledge lookup failed",
			zap.String("agent", req.OwnerAgentID), zap.Error(err))
	} else if len(prior) > 0 {
		titles := make([]memory.Value, len(prior))
		for i, item := range prior {
			titles[i] = memory.String(item.Title)
		}
		carryOver["prior_knowledge"] = memory.Value{Kind: memory.KindArray, Arr: titles}
	}

	if key := contextKey(req.TaskType, req.Domain); key != "" {
		rec, err := e.store.GetMemoryByKey(ctx, req.OwnerAgentID, key)
		if err != nil {
			e.logger.Warn("context memory lookup failed", zap.String("key", key), zap.Error(err))
		} else if rec != nil {
			carryOver["prior_context"] = memory.Object(rec.Content.Clone())
		}
	}

	sc := &SessionContext{
		SessionID:    uuid.New().String(),
		OwnerAgentID: req.OwnerAgentID,
		TaskType:     req.TaskType,
		Domain:       req.Domain,
		StartedAt:    time.Now(),
		CarryOver:    carryOver,
	}
	if err := e.store.SaveSessionContext(ctx, sc); err != nil {
		return nil, fmt.Errorf("save session context: %w", err)
	}

	e.logger.Info("session initialized",
		zap.String("session", sc.SessionID),
		zap.String("agent", sc.OwnerAgentID),
		zap.String("task_type", sc.TaskType),
		zap.String("domain", sc.Domain))
	e.audit(ctx, AuditEntry{Action: "session.initialize", EntityType: "session", EntityID: sc.SessionID})
	return sc, nil
}

// UpdateSessionContext appends outcomes and learning points and
// shallow-merges carry-over context. Unknown or already-finalized sessions
// warn and no-op.
func (e *Engine) UpdateSessionContext(ctx context.Context, sessionID string, update SessionUpdate) error {
	sc, err := e.store.GetSessionContext(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sc == nil {
		e.logger.Warn("update for unknown session", zap.String("session", sessionID))
		return nil
	}
	if sc.Finalized() {
		e.logger.Warn("update for finalized session", zap.String("session", sessionID))
		return nil
	}

	sc.Outcomes = append(sc.Outcomes, update.Outcomes...)
	sc.LearningPoints = append(sc.LearningPoints, update.LearningPoints...)
	if len(update.CarryOver) > 0 {
		if sc.CarryOver == nil {
			sc.CarryOver = memory.Map{}
		}
		for k, v := range update.CarryOver {
			sc.CarryOver[k] = v // shallow merge, newest wins
		}
	}
	if err := e.store.SaveSessionContext(ctx, sc); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

// FinalizeSession ends a session, derives learnings, persists them as
// knowledge, rebuilds the domain graph and runs a session-scoped
// consolidation over the agent's working memories. Idempotent: a second
// finalize is a warned no-op.
func (e *Engine) FinalizeSession(ctx context.Context, sessionID string) (*SessionContext, error) {
	sc, err := e.store.GetSessionContext(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sc == nil {
		e.logger.Warn("finalize for unknown session", zap.String("session", sessionID))
		return nil, nil
	}
	if sc.Finalized() {
		e.logger.Warn("finalize for already finalized session", zap.String("session", sessionID))
		return sc, nil
	}

	now := time.Now()
	sc.EndedAt = &now
	sc.LearningPoints = append(sc.LearningPoints, e.deriveLearnings(ctx, sc)...)

	if err := e.store.SaveSessionContext(ctx, sc); err != nil {
		return nil, fmt.Errorf("save finalized session %s: %w", sessionID, err)
	}

	if _, err := e.BuildKnowledgeGraph(ctx, sc.Domain); err != nil {
		e.logger.Warn("post-session graph rebuild failed",
			zap.String("session", sessionID), zap.Error(err))
	}
	e.consolidateSession(ctx, sc)

	e.logger.Info("session finalized",
		zap.String("session", sc.SessionID),
		zap.String("agent", sc.OwnerAgentID),
		zap.Duration("duration", now.Sub(sc.StartedAt)),
		zap.Int("outcomes", len(sc.Outcomes)),
		zap.Int("learnings", len(sc.LearningPoints)))
	e.audit(ctx, AuditEntry{Action: "session.finalize", EntityType: "session", EntityID: sc.SessionID})
	e.notify(ctx, Notification{
		AgentID: sc.OwnerAgentID,
		Kind:    "session_finalized",
		Title:   "Session finalized: " + sc.TaskType,
	})
	return sc, nil
}

// deriveLearnings runs the outcome, strategy and timing analyses and
// persists each learning as a knowledge item. Storage failures are logged;
// finalization proceeds regardless.
func (e *Engine) deriveLearnings(ctx context.Context, sc *SessionContext) []string {
	var successes int
	for _, o := range sc.Outcomes {
		if o.Success {
			successes++
		}
	}
	successRate := 0.0
	if len(sc.Outcomes) > 0 {
		successRate = float64(successes) / float64(len(sc.Outcomes))
	}

	var learnings []string
	if len(sc.Outcomes) > 0 {
		learnings = append(learnings, fmt.Sprintf(
			"outcome pattern: %d of %d outcomes succeeded for %s", successes, len(sc.Outcomes), sc.TaskType))
		if successes > 0 {
			learnings = append(learnings, fmt.Sprintf(
				"strategy for %s in %s is effective, keep approach", sc.TaskType, sc.Domain))
		} else {
			learnings = append(learnings, fmt.Sprintf(
				"strategy for %s in %s produced no successes, adjust approach", sc.TaskType, sc.Domain))
		}
	}

	baseline, ok := taskBaselines[sc.TaskType]
	if !ok {
		baseline = defaultBaseline
	}
	actual := sc.EndedAt.Sub(sc.StartedAt)
	if actual <= baseline {
		learnings = append(learnings, fmt.Sprintf(
			"timing: %s finished in %s, within the %s baseline", sc.TaskType, actual.Round(time.Second), baseline))
	} else {
		learnings = append(learnings, fmt.Sprintf(
			"timing: %s took %s, over the %s baseline", sc.TaskType, actual.Round(time.Second), baseline))
	}

	for _, learning := range learnings {
		item := &knowledge.Item{
			OwnerAgentID:    sc.OwnerAgentID,
			KnowledgeType:   knowledge.TypeSessionLearning,
			Domain:          sc.Domain,
			Title:           learning,
			Content: memory.Map{
				"session_id": memory.String(sc.SessionID),
				"task_type":  memory.String(sc.TaskType),
				"learning":   memory.String(learning),
			},
			ConfidenceScore: 0.6,
			SuccessRate:     &successRate,
			Tags:            []string{"session", "learning", sc.TaskType},
		}
		if err := e.store.UpsertKnowledge(ctx, item); err != nil {
			e.logger.Warn("persist session learning failed",
				zap.String("session", sc.SessionID), zap.Error(err))
		}
	}
	return learnings
}

// consolidateSession extracts patterns from the session agent's working
// memories and writes the resulting knowledge.
func (e *Engine) consolidateSession(ctx context.Context, sc *SessionContext) {
	mems, err := e.store.ListMemories(ctx, sc.OwnerAgentID, memory.TypeWorking, e.cfg.AgentMemoryLimit)
	if err != nil {
		e.logger.Warn("session consolidation listing failed",
			zap.String("session", sc.SessionID), zap.Error(err))
		return
	}
	patterns := e.extractor.Extract(mems)
	for _, p := range patterns {
		if err := e.store.UpsertKnowledge(ctx, e.patternKnowledge(sc.OwnerAgentID, sc.Domain, p)); err != nil {
			e.logger.Warn("persist session pattern failed",
				zap.String("session", sc.SessionID), zap.Error(err))
		}
	}
	if len(patterns) > 0 {
		e.logger.Info("session consolidation complete",
			zap.String("session", sc.SessionID),
			zap.Int("working_memories", len(mems)),
			zap.Int("patterns", len(patterns)))
	}
}

// patternKnowledge converts a transient pattern into a persistable
// knowledge item.
func (e *Engine) patternKnowledge(agentID, domain string, p *memory.Pattern) *knowledge.Item {
	ids := make([]memory.Value, len(p.MemoryIDs))
	for i, id := range p.MemoryIDs {
		ids[i] = memory.String(id)
	}
	return &knowledge.Item{
		OwnerAgentID:  agentID,
		KnowledgeType: knowledge.TypeExtractedPattern,
		Domain:        domain,
		Title:         p.Description,
		Content: memory.Map{
			"pattern":             memory.String(p.Description),
			"memory_type":         memory.String(string(p.Type)),
			"frequency":           memory.Number(float64(p.Frequency)),
			"associated_memories": {Kind: memory.KindArray, Arr: ids},
			"context":             memory.Object(p.Context),
		},
		ConfidenceScore: p.Confidence,
		Tags:            []string{"pattern", string(p.Type)},
	}
}

// requireAgent hard-fails on unregistered agents. Deliberate exception to
// the warn-and-continue rule: a session for a nonexistent agent would
// write orphaned knowledge.
func (e *Engine) requireAgent(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("agent id is required")
	}
	agents, err := e.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	for _, id := range agents {
		if id == agentID {
			return nil
		}
	}
	return fmt.Errorf("unknown agent %q", agentID)
}

func contextKey(taskType, domain string) string {
	if taskType == "" && domain == "" {
		return ""
	}
	return taskType + "/" + domain
}

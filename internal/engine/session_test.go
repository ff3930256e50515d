package engine

import (
	"context"
	"testing"
	"time"

	"github.com/VerticalLabs-ai/recall/internal/knowledge"
	"github.com/VerticalLabs-ai/recall/internal/memory"
)

func TestInitializeRequiresKnownAgent(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(t, store, nil)

	if _, err := eng.InitializeSessionContext(context.Background(), SessionRequest{
		OwnerAgentID: "ghost", TaskType: "proposal", Domain: "rfp",
	}); err == nil {
		t.Fatal("unknown agent must fail session initialization")
	}
	if _, err := eng.InitializeSessionContext(context.Background(), SessionRequest{
		TaskType: "proposal",
	}); err == nil {
		t.Fatal("empty agent id must fail session initialization")
	}
	if len(store.sessions) != 0 {
		t.Errorf("failed initialization persisted %d sessions", len(store.sessions))
	}
}

func TestInitializeSeedsCarryOver(t *testing.T) {
	store := newFakeStore()
	store.agents = []string{"agent-1"}
	store.addKnowledge(&knowledge.Item{
		OwnerAgentID:    "agent-1",
		KnowledgeType:   knowledge.TypeSessionLearning,
		Domain:          "rfp",
		Title:           "templates shorten drafting",
		ConfidenceScore: 0.6,
	})
	store.addMemory(&memory.Record{
		ID:           "ctx-1",
		OwnerAgentID: "agent-1",
		MemoryType:   memory.TypeSemantic,
		ContextKey:   "proposal/rfp",
		Content:      memory.Map{"preferred_format": memory.String("two-pager")},
	})
	eng := newTestEngine(t, store, nil)

	sc, err := eng.InitializeSessionContext(context.Background(), SessionRequest{
		OwnerAgentID: "agent-1", TaskType: "proposal", Domain: "rfp",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if sc.SessionID == "" {
		t.Fatal("expected a session id")
	}

	prior := sc.CarryOver["prior_knowledge"]
	if prior.Kind != memory.KindArray || len(prior.Arr) != 1 || prior.Arr[0].Str != "templates shorten drafting" {
		t.Errorf("unexpected prior_knowledge: %v", prior)
	}
	prevCtx := sc.CarryOver["prior_context"]
	if prevCtx.Kind != memory.KindObject || prevCtx.Obj["preferred_format"].Str != "two-pager" {
		t.Errorf("unexpected prior_context: %v", prevCtx)
	}

	if _, ok := store.sessions[sc.SessionID]; !ok {
		t.Error("session was not persisted")
	}
}

func TestUpdateUnknownSessionIsNoOp(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(t, store, nil)

	err := eng.UpdateSessionContext(context.Background(), "nope", SessionUpdate{
		LearningPoints: []string{"lost"},
	})
	if err != nil {
		t.Fatalf("unknown session must warn, not error: %v", err)
	}
	if len(store.sessions) != 0 {
		t.Error("no-op update persisted a session")
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newFakeStore()
	store.agents = []string{"agent-1"}
	eng := newTestEngine(t, store, nil)
	ctx := context.Background()

	sc, err := eng.InitializeSessionContext(ctx, SessionRequest{
		OwnerAgentID: "agent-1", TaskType: "proposal", Domain: "rfp",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	err = eng.UpdateSessionContext(ctx, sc.SessionID, SessionUpdate{
		Outcomes: []Outcome{
			{Description: "draft accepted", Success: true, OccurredAt: time.Now()},
			{Description: "deadline slipped", Success: false, OccurredAt: time.Now()},
		},
		LearningPoints: []string{"start pricing earlier"},
		CarryOver:      memory.Map{"client": memory.String("acme")},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	final, err := eng.FinalizeSession(ctx, sc.SessionID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !final.Finalized() {
		t.Fatal("finalized session must carry an end time")
	}
	if len(final.Outcomes) != 2 {
		t.Errorf("expected 2 outcomes, got %d", len(final.Outcomes))
	}
	// One manual learning plus derived outcome, strategy and timing analyses.
	if len(final.LearningPoints) != 4 {
		t.Errorf("expected 4 learning points, got %v", final.LearningPoints)
	}
	if final.CarryOver["client"].Str != "acme" {
		t.Errorf("carry-over lost: %v", final.CarryOver)
	}

	learnings := store.knowledgeByType(knowledge.TypeSessionLearning)
	if len(learnings) != 3 {
		t.Errorf("expected 3 persisted learnings, got %d", len(learnings))
	}
	for _, item := range learnings {
		if item.SuccessRate == nil || *item.SuccessRate != 0.5 {
			t.Errorf("expected success rate 0.5 on %q", item.Title)
		}
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.agents = []string{"agent-1"}
	eng := newTestEngine(t, store, nil)
	ctx := context.Background()

	sc, err := eng.InitializeSessionContext(ctx, SessionRequest{
		OwnerAgentID: "agent-1", TaskType: "review", Domain: "rfp",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	first, err := eng.FinalizeSession(ctx, sc.SessionID)
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	learningsAfterFirst := len(store.knowledgeByType(knowledge.TypeSessionLearning))

	second, err := eng.FinalizeSession(ctx, sc.SessionID)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if !second.Finalized() || !second.EndedAt.Equal(*first.EndedAt) {
		t.Error("second finalize must return the already-final state")
	}
	if got := len(store.knowledgeByType(knowledge.TypeSessionLearning)); got != learningsAfterFirst {
		t.Errorf("second finalize wrote %d extra learnings", got-learningsAfterFirst)
	}

	// Finalized sessions reject further updates silently.
	if err := eng.UpdateSessionContext(ctx, sc.SessionID, SessionUpdate{
		LearningPoints: []string{"too late"},
	}); err != nil {
		t.Fatalf("post-final update: %v", err)
	}
	stored, _ := store.GetSessionContext(ctx, sc.SessionID)
	for _, lp := range stored.LearningPoints {
		if lp == "too late" {
			t.Error("finalized session accepted an update")
		}
	}
}

func TestFinalizeUnknownSession(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(t, store, nil)

	sc, err := eng.FinalizeSession(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unknown session must not error: %v", err)
	}
	if sc != nil {
		t.Error("unknown session should finalize to nil")
	}
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/VerticalLabs-ai/recall/internal/memory"
)

func agedMemory(id string, importance int, age time.Duration) *memory.Record {
	created := time.Now().Add(-age)
	return &memory.Record{
		ID:             id,
		OwnerAgentID:   "agent-1",
		MemoryType:     memory.TypeEpisodic,
		Title:          "aged memory",
		Content:        memory.Map{"note": memory.String(id)},
		Importance:     importance,
		CreatedAt:      created,
		LastAccessedAt: created,
	}
}

func TestDecayLowersImportance(t *testing.T) {
	store := newFakeStore()
	store.addMemory(agedMemory("old", 10, 40*24*time.Hour))
	eng := newTestEngine(t, store, nil)

	res, err := eng.ApplyDecay(context.Background())
	if err != nil {
		t.Fatalf("decay: %v", err)
	}
	if res.Examined != 1 || res.Decayed != 1 || res.Archived != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	m := store.memoryByID("old")
	if m.Importance != 9 {
		t.Errorf("expected importance floor(10*0.95)=9, got %d", m.Importance)
	}
	if m.Archived {
		t.Error("importance 9 should not archive")
	}
}

func TestDecayArchivesBelowThreshold(t *testing.T) {
	store := newFakeStore()
	store.addMemory(agedMemory("fading", 1, 40*24*time.Hour))
	eng := newTestEngine(t, store, nil)

	res, err := eng.ApplyDecay(context.Background())
	if err != nil {
		t.Fatalf("decay: %v", err)
	}
	if res.Archived != 1 {
		t.Errorf("expected 1 archived, got %+v", res)
	}
	m := store.memoryByID("fading")
	if !m.Archived {
		t.Error("memory below the archive threshold must be archived")
	}
	if m.Importance != 1 {
		t.Errorf("importance floor is 1, got %d", m.Importance)
	}
}

func TestDecaySkipsRecentlyAccessed(t *testing.T) {
	store := newFakeStore()
	m := agedMemory("touched", 10, 40*24*time.Hour)
	m.LastAccessedAt = time.Now().Add(-time.Hour)
	store.addMemory(m)
	store.addMemory(agedMemory("fresh", 10, time.Hour))
	eng := newTestEngine(t, store, nil)

	res, err := eng.ApplyDecay(context.Background())
	if err != nil {
		t.Fatalf("decay: %v", err)
	}
	if res.Examined != 0 || res.Decayed != 0 {
		t.Errorf("recently created or accessed memories must be untouched: %+v", res)
	}
	if store.memoryByID("touched").Importance != 10 {
		t.Error("accessed memory lost importance")
	}
	if store.memoryByID("fresh").Importance != 10 {
		t.Error("fresh memory lost importance")
	}
}

func TestDecayNeverRaisesImportance(t *testing.T) {
	store := newFakeStore()
	store.addMemory(agedMemory("mid", 3, 60*24*time.Hour))
	eng := newTestEngine(t, store, nil)

	if _, err := eng.ApplyDecay(context.Background()); err != nil {
		t.Fatalf("decay: %v", err)
	}
	m := store.memoryByID("mid")
	if m.Importance != 2 {
		t.Errorf("expected floor(3*0.95)=2, got %d", m.Importance)
	}
	if m.Archived {
		t.Error("2.85 is above the archive threshold of 2")
	}
}

func TestDecayCountsFailures(t *testing.T) {
	store := newFakeStore()
	store.addMemory(agedMemory("old", 10, 40*24*time.Hour))
	store.failMemoryUpdates = true
	eng := newTestEngine(t, store, nil)

	res, err := eng.ApplyDecay(context.Background())
	if err != nil {
		t.Fatalf("decay failures must not propagate: %v", err)
	}
	if res.Failed != 1 || res.Decayed != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

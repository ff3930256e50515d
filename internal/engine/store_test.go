package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/knowledge"
	"github.com/VerticalLabs-ai/recall/internal/memory"
)

// fakeStore is an in-memory Store mimicking the postgres collaborator's
// semantics: last-writer-wins updates and upsert-by-natural-key knowledge.
type fakeStore struct {
	mu        sync.Mutex
	memories  []*memory.Record
	knowledge []*knowledge.Item
	sessions  map[string]*SessionContext
	agents    []string
	runs      []*ConsolidationRun

	knowledgePageCalls int
	failMemoryUpdates  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*SessionContext)}
}

func (f *fakeStore) addMemory(m *memory.Record) *memory.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	f.memories = append(f.memories, m)
	return m
}

func (f *fakeStore) addKnowledge(item *knowledge.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	f.knowledge = append(f.knowledge, item)
}

func (f *fakeStore) memoryByID(id string) *memory.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.memories {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (f *fakeStore) knowledgeByType(knowledgeType string) []*knowledge.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*knowledge.Item
	for _, item := range f.knowledge {
		if item.KnowledgeType == knowledgeType {
			out = append(out, item)
		}
	}
	return out
}

func (f *fakeStore) ListMemories(_ context.Context, ownerAgentID string, memoryType memory.Type, limit int) ([]*memory.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*memory.Record
	for _, m := range f.memories {
		if m.Archived || m.OwnerAgentID != ownerAgentID {
			continue
		}
		if memoryType != "" && m.MemoryType != memoryType {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListActiveMemories(_ context.Context, pageSize, offset int) ([]*memory.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []*memory.Record
	for _, m := range f.memories {
		if !m.Archived {
			active = append(active, m)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	if offset >= len(active) {
		return nil, nil
	}
	end := offset + pageSize
	if end > len(active) {
		end = len(active)
	}
	return active[offset:end], nil
}

func (f *fakeStore) UpdateMemory(_ context.Context, id string, patch memory.RecordPatch) (*memory.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMemoryUpdates {
		return nil, fmt.Errorf("memory update unavailable")
	}
	for _, m := range f.memories {
		if m.ID != id {
			continue
		}
		if patch.Title != nil {
			m.Title = *patch.Title
		}
		if patch.Content != nil {
			m.Content = patch.Content
		}
		if patch.Importance != nil {
			m.Importance = *patch.Importance
		}
		if patch.Tags != nil {
			m.Tags = patch.Tags
		}
		if patch.Metadata != nil {
			m.Metadata = patch.Metadata
		}
		if patch.LastAccessedAt != nil {
			m.LastAccessedAt = *patch.LastAccessedAt
		}
		if patch.Archived != nil {
			m.Archived = *patch.Archived
		}
		return m, nil
	}
	return nil, fmt.Errorf("memory %s not found", id)
}

func (f *fakeStore) GetMemoryByKey(_ context.Context, ownerAgentID, contextKey string) (*memory.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.memories {
		if !m.Archived && m.OwnerAgentID == ownerAgentID && m.ContextKey == contextKey {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpsertKnowledge(_ context.Context, item *knowledge.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.knowledge {
		if existing.OwnerAgentID == item.OwnerAgentID &&
			existing.KnowledgeType == item.KnowledgeType &&
			existing.Domain == item.Domain &&
			existing.Title == item.Title {
			existing.Content = item.Content
			if item.ConfidenceScore > existing.ConfidenceScore {
				existing.ConfidenceScore = item.ConfidenceScore
			}
			existing.UsageCount++
			if item.SuccessRate != nil {
				existing.SuccessRate = item.SuccessRate
			}
			existing.UpdatedAt = time.Now()
			return nil
		}
	}
	cp := *item
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.UsageCount == 0 {
		cp.UsageCount = 1
	}
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.knowledge = append(f.knowledge, &cp)
	return nil
}

func (f *fakeStore) UpdateKnowledge(_ context.Context, id string, patch knowledge.ItemPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.knowledge {
		if item.ID != id {
			continue
		}
		if patch.Title != nil {
			item.Title = *patch.Title
		}
		if patch.Content != nil {
			item.Content = patch.Content
		}
		if patch.ConfidenceScore != nil {
			item.ConfidenceScore = *patch.ConfidenceScore
		}
		if patch.UsageCount != nil {
			item.UsageCount = *patch.UsageCount
		}
		if patch.SuccessRate != nil {
			item.SuccessRate = patch.SuccessRate
		}
		if patch.Tags != nil {
			item.Tags = patch.Tags
		}
		item.UpdatedAt = time.Now()
		return nil
	}
	return fmt.Errorf("knowledge %s not found", id)
}

func (f *fakeStore) ListKnowledge(_ context.Context, q knowledge.Query) ([]*knowledge.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*knowledge.Item
	for _, item := range f.knowledge {
		if q.OwnerAgentID != "" && item.OwnerAgentID != q.OwnerAgentID {
			continue
		}
		if q.KnowledgeType != "" && item.KnowledgeType != q.KnowledgeType {
			continue
		}
		if q.Domain != "" && item.Domain != q.Domain {
			continue
		}
		out = append(out, item)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListKnowledgePage(_ context.Context, pageSize, offset int) ([]*knowledge.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.knowledgePageCalls++
	if offset >= len(f.knowledge) {
		return nil, nil
	}
	end := offset + pageSize
	if end > len(f.knowledge) {
		end = len(f.knowledge)
	}
	return f.knowledge[offset:end], nil
}

func (f *fakeStore) ListAgents(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.agents...), nil
}

func (f *fakeStore) SaveSessionContext(_ context.Context, sc *SessionContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sc
	f.sessions[sc.SessionID] = &cp
	return nil
}

func (f *fakeStore) GetSessionContext(_ context.Context, sessionID string) (*SessionContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *sc
	return &cp, nil
}

func (f *fakeStore) SaveConsolidationRun(_ context.Context, run *ConsolidationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func newTestEngine(t *testing.T, store *fakeStore, tweak func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if tweak != nil {
		tweak(&cfg)
	}
	return New(store, nil, cfg, zap.NewNop())
}

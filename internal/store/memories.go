package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/VerticalLabs-ai/recall/internal/memory"
)

const memoryColumns = `id, owner_agent_id, memory_type, context_key, title,
	content, importance, tags, metadata, archived, created_at, last_accessed_at`

// CreateMemory inserts a memory record, assigning an id when absent.
func (s *Store) CreateMemory(ctx context.Context, m *memory.Record) error {
	content, err := mapJSON(m.Content)
	if err != nil {
		return err
	}
	metadata, err := mapJSON(m.Metadata)
	if err != nil {
		return err
	}
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO memories (id, owner_agent_id, memory_type, context_key, title,
			content, importance, tags, metadata, archived, created_at, last_accessed_at)
		VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, $3, $4, $5,
			$6, $7, $8, $9, FALSE, NOW(), NOW())
		RETURNING id, created_at, last_accessed_at`,
		m.ID, m.OwnerAgentID, string(m.MemoryType), m.ContextKey, m.Title,
		content, m.Importance, tags, metadata,
	)
	if err := row.Scan(&m.ID, &m.CreatedAt, &m.LastAccessedAt); err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

// ListMemories returns an agent's non-archived memories, newest first.
// An empty memoryType matches every type.
func (s *Store) ListMemories(ctx context.Context, ownerAgentID string, memoryType memory.Type, limit int) ([]*memory.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE owner_agent_id = $1
		  AND ($2 = '' OR memory_type = $2)
		  AND archived = FALSE
		ORDER BY created_at DESC
		LIMIT $3`,
		ownerAgentID, string(memoryType), limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListActiveMemories pages through the non-archived set across all
// agents, oldest first.
func (s *Store) ListActiveMemories(ctx context.Context, pageSize, offset int) ([]*memory.Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE archived = FALSE
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2`,
		pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list active memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// GetMemoryByKey returns the newest memory for an (agent, contextKey)
// pair, or nil when absent.
func (s *Store) GetMemoryByKey(ctx context.Context, ownerAgentID, contextKey string) (*memory.Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE owner_agent_id = $1 AND context_key = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		ownerAgentID, contextKey)

	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory by key: %w", err)
	}
	return m, nil
}

// UpdateMemory applies a partial update and returns the updated record.
// Last-writer-wins; there is no version check.
func (s *Store) UpdateMemory(ctx context.Context, id string, patch memory.RecordPatch) (*memory.Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id)
	m, err := scanMemory(row)
	if err != nil {
		return nil, fmt.Errorf("load memory %s: %w", id, err)
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

	content, err := mapJSON(m.Content)
	if err != nil {
		return nil, err
	}
	metadata, err := mapJSON(m.Metadata)
	if err != nil {
		return nil, err
	}
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE memories
		SET title = $2, content = $3, importance = $4, tags = $5,
		    metadata = $6, last_accessed_at = $7, archived = $8
		WHERE id = $1`,
		m.ID, m.Title, content, m.Importance, tags, metadata, m.LastAccessedAt, m.Archived,
	); err != nil {
		return nil, fmt.Errorf("update memory %s: %w", id, err)
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*memory.Record, error) {
	var m memory.Record
	var memType string
	var content, metadata []byte
	var lastAccessed *time.Time

	if err := row.Scan(
		&m.ID, &m.OwnerAgentID, &memType, &m.ContextKey, &m.Title,
		&content, &m.Importance, &m.Tags, &metadata, &m.Archived,
		&m.CreatedAt, &lastAccessed,
	); err != nil {
		return nil, err
	}
	m.MemoryType = memory.Type(memType)
	if lastAccessed != nil {
		m.LastAccessedAt = *lastAccessed
	}

	var err error
	if m.Content, err = jsonMap(content); err != nil {
		return nil, err
	}
	if m.Metadata, err = jsonMap(metadata); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMemories(rows pgx.Rows) ([]*memory.Record, error) {
	var out []*memory.Record
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

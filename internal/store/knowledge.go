package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/VerticalLabs-ai/recall/internal/knowledge"
	"github.com/VerticalLabs-ai/recall/internal/memory"
)

const knowledgeColumns = `id, owner_agent_id, knowledge_type, domain, title,
	content, confidence_score, usage_count, success_rate, tags, created_at, updated_at`

// UpsertKnowledge inserts a knowledge item or, when an item with the same
// owner, type, domain and title exists, refreshes it and bumps its usage
// count.
func (s *Store) UpsertKnowledge(ctx context.Context, item *knowledge.Item) error {
	content, err := mapJSON(item.Content)
	if err != nil {
		return err
	}
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO knowledge_items (id, owner_agent_id, knowledge_type, domain, title,
			content, confidence_score, usage_count, success_rate, tags, created_at, updated_at)
		VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, $3, $4, $5,
			$6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (owner_agent_id, knowledge_type, domain, title) DO UPDATE SET
			content = EXCLUDED.content,
			confidence_score = GREATEST(knowledge_items.confidence_score, EXCLUDED.confidence_score),
			usage_count = knowledge_items.usage_count + 1,
			success_rate = COALESCE(EXCLUDED.success_rate, knowledge_items.success_rate),
			tags = EXCLUDED.tags,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		item.ID, item.OwnerAgentID, item.KnowledgeType, item.Domain, item.Title,
		content, item.ConfidenceScore, item.UsageCount, item.SuccessRate, tags,
	)
	if err := row.Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return fmt.Errorf("upsert knowledge: %w", err)
	}
	return nil
}

// UpdateKnowledge applies a partial update to an existing item.
func (s *Store) UpdateKnowledge(ctx context.Context, id string, patch knowledge.ItemPatch) error {
	row := s.db.QueryRow(ctx, `SELECT `+knowledgeColumns+` FROM knowledge_items WHERE id = $1`, id)
	item, err := scanKnowledge(row)
	if err != nil {
		return fmt.Errorf("load knowledge %s: %w", id, err)
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

	content, err := mapJSON(item.Content)
	if err != nil {
		return err
	}
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE knowledge_items
		SET title = $2, content = $3, confidence_score = $4, usage_count = $5,
		    success_rate = $6, tags = $7, updated_at = NOW()
		WHERE id = $1`,
		id, item.Title, content, item.ConfidenceScore, item.UsageCount, item.SuccessRate, tags,
	); err != nil {
		return fmt.Errorf("update knowledge %s: %w", id, err)
	}
	return nil
}

// ListKnowledge returns items matching the query, newest first. Zero
// query fields match everything.
func (s *Store) ListKnowledge(ctx context.Context, q knowledge.Query) ([]*knowledge.Item, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+knowledgeColumns+`
		FROM knowledge_items
		WHERE ($1 = '' OR owner_agent_id = $1)
		  AND ($2 = '' OR knowledge_type = $2)
		  AND ($3 = '' OR domain = $3)
		ORDER BY updated_at DESC
		LIMIT $4`,
		q.OwnerAgentID, q.KnowledgeType, q.Domain, limit)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

// ListKnowledgePage pages through the whole knowledge base ordered by
// creation time, for streaming scans.
func (s *Store) ListKnowledgePage(ctx context.Context, pageSize, offset int) ([]*knowledge.Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+knowledgeColumns+`
		FROM knowledge_items
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2`,
		pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list knowledge page: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

func scanKnowledge(row rowScanner) (*knowledge.Item, error) {
	var item knowledge.Item
	var content []byte

	if err := row.Scan(
		&item.ID, &item.OwnerAgentID, &item.KnowledgeType, &item.Domain, &item.Title,
		&content, &item.ConfidenceScore, &item.UsageCount, &item.SuccessRate,
		&item.Tags, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m, err := jsonMap(content)
	if err != nil {
		return nil, err
	}
	item.Content = m
	if item.Content == nil {
		item.Content = memory.Map{}
	}
	return &item, nil
}

func scanKnowledgeRows(rows pgx.Rows) ([]*knowledge.Item, error) {
	var out []*knowledge.Item
	for rows.Next() {
		item, err := scanKnowledge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

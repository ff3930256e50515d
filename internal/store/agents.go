package store

import (
	"context"
	"fmt"
)

// RegisterAgent upserts an agent record.
func (s *Store) RegisterAgent(ctx context.Context, id, name string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO agents (id, name, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		id, name)
	if err != nil {
		return fmt.Errorf("register agent %s: %w", id, err)
	}
	return nil
}

// ListAgents returns every registered agent id.
func (s *Store) ListAgents(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

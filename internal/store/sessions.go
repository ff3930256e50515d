package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/VerticalLabs-ai/recall/internal/engine"
)

// SaveSessionContext upserts a session context.
func (s *Store) SaveSessionContext(ctx context.Context, sc *engine.SessionContext) error {
	outcomes, err := json.Marshal(sc.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}
	carryOver, err := mapJSON(sc.CarryOver)
	if err != nil {
		return err
	}
	learnings := sc.LearningPoints
	if learnings == nil {
		learnings = []string{}
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO session_contexts (session_id, owner_agent_id, task_type, domain,
			started_at, ended_at, outcomes, learning_points, carry_over)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			outcomes = EXCLUDED.outcomes,
			learning_points = EXCLUDED.learning_points,
			carry_over = EXCLUDED.carry_over`,
		sc.SessionID, sc.OwnerAgentID, sc.TaskType, sc.Domain,
		sc.StartedAt, sc.EndedAt, outcomes, learnings, carryOver,
	)
	if err != nil {
		return fmt.Errorf("save session context %s: %w", sc.SessionID, err)
	}
	return nil
}

// GetSessionContext returns a session context, or nil when unknown.
func (s *Store) GetSessionContext(ctx context.Context, sessionID string) (*engine.SessionContext, error) {
	row := s.db.QueryRow(ctx, `
		SELECT session_id, owner_agent_id, task_type, domain,
		       started_at, ended_at, outcomes, learning_points, carry_over
		FROM session_contexts
		WHERE session_id = $1`,
		sessionID)

	var sc engine.SessionContext
	var outcomes, carryOver []byte
	err := row.Scan(
		&sc.SessionID, &sc.OwnerAgentID, &sc.TaskType, &sc.Domain,
		&sc.StartedAt, &sc.EndedAt, &outcomes, &sc.LearningPoints, &carryOver,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session context %s: %w", sessionID, err)
	}

	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &sc.Outcomes); err != nil {
			return nil, fmt.Errorf("unmarshal outcomes: %w", err)
		}
	}
	if sc.CarryOver, err = jsonMap(carryOver); err != nil {
		return nil, err
	}
	return &sc, nil
}

package store

import (
	"context"
	"fmt"

	"github.com/VerticalLabs-ai/recall/internal/engine"
)

// InsertAuditLog appends one audit entry.
func (s *Store) InsertAuditLog(ctx context.Context, entry engine.AuditEntry) error {
	detail, err := mapJSON(entry.Detail)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO audit_log (id, action, entity_type, entity_id, detail, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NOW())`,
		entry.Action, entry.EntityType, entry.EntityID, detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

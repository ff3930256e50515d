package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/memory"
)

// DecayResult summarizes one decay pass.
type DecayResult struct {
	Examined int `json:"examined"`
	Decayed  int `json:"decayed"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// ApplyDecay lowers the importance of memories neither created nor
// accessed inside the decay window and archives those that fall below the
// archive threshold. Updates are issued concurrently and awaited together;
// individual failures are logged and counted, never propagated, and there
// is no rollback.
func (e *Engine) ApplyDecay(ctx context.Context) (DecayResult, error) {
	var res DecayResult

	active, err := e.loadActiveMemories(ctx)
	if err != nil {
		return res, fmt.Errorf("load active memories: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -e.cfg.DecayWindowDays)
	type update struct {
		id         string
		importance int
		archive    bool
	}
	var updates []update
	for _, m := range active {
		if !m.CreatedAt.Before(cutoff) || m.LastAccessedAt.After(cutoff) {
			continue
		}
		res.Examined++
		decayed := float64(m.Importance) * e.cfg.DecayRate
		newImportance := int(math.Max(1, math.Floor(decayed)))
		archive := decayed < e.cfg.ArchiveThreshold
		if newImportance == m.Importance && !archive {
			continue // nothing changes, skip the write
		}
		updates = append(updates, update{id: m.ID, importance: newImportance, archive: archive})
	}

	workers := e.cfg.DecayConcurrency
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var decayed, archived, failed int64

	for _, u := range updates {
		wg.Add(1)
		go func(u update) {
			defer wg.Done()
			sem <- struct{}{}        // acquire slot
			defer func() { <-sem }() // release slot

			patch := memory.RecordPatch{Importance: &u.importance}
			if u.archive {
				t := true
				patch.Archived = &t
			}
			if _, err := e.store.UpdateMemory(ctx, u.id, patch); err != nil {
				atomic.AddInt64(&failed, 1)
				e.logger.Warn("decay update failed", zap.String("memory", u.id), zap.Error(err))
				return
			}
			atomic.AddInt64(&decayed, 1)
			if u.archive {
				atomic.AddInt64(&archived, 1)
			}
		}(u)
	}
	wg.Wait()

	res.Decayed = int(decayed)
	res.Archived = int(archived)
	res.Failed = int(failed)

	e.logger.Info("decay pass complete",
		zap.Int("examined", res.Examined),
		zap.Int("decayed", res.Decayed),
		zap.Int("archived", res.Archived),
		zap.Int("failed", res.Failed))
	e.audit(ctx, AuditEntry{
		Action:     "memory.decay",
		EntityType: "memory_set",
		Detail: memory.Map{
			"decayed":  memory.Number(float64(res.Decayed)),
			"archived": memory.Number(float64(res.Archived)),
		},
	})
	return res, nil
}

// Package usecase provides application use cases composed from the
// governance engines.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"bizcore.io/governance/internal/domain"
	apperrors "bizcore.io/governance/internal/pkg/errors"
	"bizcore.io/governance/internal/pkg/worker"
)

// ErrBatchTooLarge is returned when a request exceeds the configured cap.
var ErrBatchTooLarge = errors.New("batch too large")

// NumberingEngine is the part of the numbering engine a batch needs.
type NumberingEngine interface {
	Assign(ctx context.Context, entityType, entityID string, principal domain.Principal) (domain.AssignedNumber, error)
	GetAssignment(ctx context.Context, entityType, entityID string) (domain.AssignedNumber, error)
}

// BatchItemStatus is the outcome of one batch item.
type BatchItemStatus string

const (
	// ItemAssigned means a new number was generated for the record.
	ItemAssigned BatchItemStatus = "assigned"
	// ItemExisting means the record already had a number, which is returned.
	ItemExisting BatchItemStatus = "existing"
	// ItemFailed carries the engine error, e.g. a missing or disabled rule.
	ItemFailed BatchItemStatus = "failed"
	// ItemSkipped means the batch was cancelled before the item ran.
	ItemSkipped BatchItemStatus = "skipped"
)

// BatchItem is the outcome for one entity ID, in request order.
type BatchItem struct {
	EntityID string          `json:"entity_id"`
	Status   BatchItemStatus `json:"status"`
	Number   string          `json:"number,omitempty"`
	Err      error           `json:"-"`
}

// BatchResult summarises a batch.
type BatchResult struct {
	EntityType string      `json:"entity_type"`
	Items      []BatchItem `json:"items"`
	Assigned   int         `json:"assigned"`
	Existing   int         `json:"existing"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
}

// BatchNumberAssigner fans number assignment out over a worker pool. Each
// item runs in its own transaction, so one failing item does not affect the
// others.
type BatchNumberAssigner struct {
	engine   NumberingEngine
	pool     *worker.Pool
	maxBatch int
	log      *zap.Logger
}

// NewBatchNumberAssigner returns an assigner accepting at most maxBatch IDs
// per call.
func NewBatchNumberAssigner(engine NumberingEngine, pool *worker.Pool, maxBatch int, log *zap.Logger) *BatchNumberAssigner {
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchNumberAssigner{engine: engine, pool: pool, maxBatch: maxBatch, log: log}
}

// Assign numbers every record in entityIDs. Records that already hold a
// number report it as ItemExisting. The batch itself fails only on invalid
// input; per-item failures are reported in the result.
func (a *BatchNumberAssigner) Assign(ctx context.Context, entityType string, entityIDs []string, principal domain.Principal) (*BatchResult, error) {
	if err := a.validate(entityType, entityIDs, principal); err != nil {
		return nil, err
	}

	start := time.Now()
	items := make([]BatchItem, len(entityIDs))
	for i, id := range entityIDs {
		items[i] = BatchItem{EntityID: id, Status: ItemSkipped}
	}

	runErr := a.pool.ForEach(ctx, len(entityIDs), func(ctx context.Context, i int) {
		items[i] = a.assignOne(ctx, entityType, entityIDs[i], principal)
	})
	if runErr != nil {
		a.log.Warn("batch assignment interrupted",
			zap.String("entity_type", entityType),
			zap.Error(runErr),
		)
	}

	res := &BatchResult{EntityType: entityType, Items: items}
	for i := range items {
		switch items[i].Status {
		case ItemAssigned:
			res.Assigned++
		case ItemExisting:
			res.Existing++
		case ItemFailed:
			res.Failed++
		case ItemSkipped:
			if items[i].Err == nil {
				items[i].Err = runErr
			}
			res.Skipped++
		}
	}

	a.log.Info("batch assignment finished",
		zap.String("entity_type", entityType),
		zap.Int("requested", len(entityIDs)),
		zap.Int("assigned", res.Assigned),
		zap.Int("existing", res.Existing),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (a *BatchNumberAssigner) assignOne(ctx context.Context, entityType, entityID string, principal domain.Principal) BatchItem {
	if err := ctx.Err(); err != nil {
		return BatchItem{EntityID: entityID, Status: ItemSkipped, Err: err}
	}

	assigned, err := a.engine.Assign(ctx, entityType, entityID, principal)
	if err == nil {
		return BatchItem{EntityID: entityID, Status: ItemAssigned, Number: assigned.Number}
	}

	var already *domain.AlreadyAssignedError
	if errors.As(err, &already) {
		number := already.Number
		if number == "" {
			if existing, getErr := a.engine.GetAssignment(ctx, entityType, entityID); getErr == nil {
				number = existing.Number
			}
		}
		return BatchItem{EntityID: entityID, Status: ItemExisting, Number: number}
	}
	return BatchItem{EntityID: entityID, Status: ItemFailed, Err: err}
}

func (a *BatchNumberAssigner) validate(entityType string, entityIDs []string, principal domain.Principal) error {
	if !domain.ValidEntityType(entityType) {
		return domain.NewValidationError("EntityType", "entitytype")
	}
	if principal.IsZero() {
		return domain.NewValidationError("Principal", "required")
	}
	if len(entityIDs) == 0 {
		return domain.NewValidationError("EntityIDs", "min")
	}
	if a.maxBatch > 0 && len(entityIDs) > a.maxBatch {
		return apperrors.Wrap(
			fmt.Errorf("%w: %d ids, limit %d", ErrBatchTooLarge, len(entityIDs), a.maxBatch),
			apperrors.CodeBatchTooLarge, "batch exceeds the maximum size", http.StatusRequestEntityTooLarge,
		).WithParams(map[string]any{"limit": a.maxBatch, "requested": len(entityIDs)})
	}
	seen := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		if id == "" {
			return domain.NewValidationError("EntityIDs", "required")
		}
		if _, dup := seen[id]; dup {
			return domain.NewValidationError("EntityIDs", "unique")
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Package audit records and reads the transition audit trail.
//
// Audit entries are append-only compliance records. Nothing in this package
// (or the store contract) can update or delete one.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bizcore.io/governance/internal/domain"
	"bizcore.io/governance/internal/pkg/logger"
	"bizcore.io/governance/internal/repository"
)

// DefaultQueryLimit caps Query when the filter sets no limit.
const DefaultQueryLimit = 500

// Record appends the audit entry for a performed transition through q, which
// is normally the executor's transaction.
func Record(ctx context.Context, q repository.LifecycleQueries, req domain.TransitionRequest, at time.Time) (domain.TransitionAuditEntry, error) {
	entry := domain.TransitionAuditEntry{
		ID:          generateAuditID(),
		OccurredAt:  at,
		PrincipalID: req.Principal.ID,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		FromState:   req.FromState,
		ToState:     req.ToState,
		Reason:      req.Reason,
		IsOverride:  req.IsOverride,
	}
	if err := q.AppendTransitionAudit(ctx, entry); err != nil {
		logger.Error("Failed to write transition audit",
			zap.String("entity_type", req.EntityType),
			zap.String("entity_id", req.EntityID),
			zap.String("from_state", req.FromState),
			zap.String("to_state", req.ToState),
			zap.Error(err),
		)
		return domain.TransitionAuditEntry{}, fmt.Errorf("write transition audit: %w", err)
	}
	return entry, nil
}

// Trail reads the transition audit trail.
type Trail struct {
	q repository.LifecycleQueries
}

// NewTrail creates a Trail over q.
func NewTrail(q repository.LifecycleQueries) *Trail {
	return &Trail{q: q}
}

// History returns every transition of one record, oldest first.
func (t *Trail) History(ctx context.Context, entityType, entityID string) ([]domain.TransitionAuditEntry, error) {
	entries, err := t.q.ListTransitionAudit(ctx, domain.AuditFilter{EntityType: entityType, EntityID: entityID})
	if err != nil {
		return nil, fmt.Errorf("list history %s/%s: %w", entityType, entityID, err)
	}
	return entries, nil
}

// Query returns entries matching f, oldest first, at most DefaultQueryLimit
// when f.Limit is unset.
func (t *Trail) Query(ctx context.Context, f domain.AuditFilter) ([]domain.TransitionAuditEntry, error) {
	if f.Limit <= 0 || f.Limit > DefaultQueryLimit {
		f.Limit = DefaultQueryLimit
	}
	entries, err := t.q.ListTransitionAudit(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query transition audit: %w", err)
	}
	return entries, nil
}

// CurrentState returns the target state of the latest transition of a record,
// or "" when it has never transitioned.
func (t *Trail) CurrentState(ctx context.Context, entityType, entityID string) (string, error) {
	entries, err := t.History(ctx, entityType, entityID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[len(entries)-1].ToState, nil
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bizcore.io/governance/internal/domain"
	"bizcore.io/governance/internal/governance/audit"
	apperrors "bizcore.io/governance/internal/pkg/errors"
	"bizcore.io/governance/internal/pkg/telemetry"
	"bizcore.io/governance/internal/repository"
)

// Executor performs transitions and answers state queries.
//
// The executor does not own the caller's records: it validates, writes the
// audit entry and returns it. The caller persists entry.ToState on its own
// record.
type Executor struct {
	store   repository.Store
	clock   domain.TimeProvider
	log     *zap.Logger
	metrics *telemetry.Metrics
}

// NewExecutor returns an Executor over store.
func NewExecutor(store repository.Store, opts ...Option) *Executor {
	o := applyOptions(opts)
	return &Executor{store: store, clock: o.clock, log: o.log, metrics: o.metrics}
}

// PerformTransition validates req and records it. Validation and the audit
// write share one transaction, so a denied or failed transition leaves no
// trace in the audit trail.
func (e *Executor) PerformTransition(ctx context.Context, req domain.TransitionRequest) (domain.TransitionAuditEntry, error) {
	if err := domain.Validate(req); err != nil {
		return domain.TransitionAuditEntry{}, err
	}
	if req.Principal.IsZero() {
		return domain.TransitionAuditEntry{}, domain.NewValidationError("Principal", "required")
	}

	var entry domain.TransitionAuditEntry
	err := e.store.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		states, err := q.ListStateDefinitions(ctx, req.EntityType, false)
		if err != nil {
			return fmt.Errorf("list states: %w", err)
		}
		if len(states) == 0 {
			return &domain.MissingStateDefinitionError{EntityType: req.EntityType}
		}

		if err := validateTransition(ctx, q, req.EntityType, req.FromState, req.ToState, req.Reason, &req.Principal); err != nil {
			return err
		}

		entry, err = audit.Record(ctx, q, req, e.clock.Now())
		return err
	})
	if err != nil {
		e.observeFailure(ctx, req, err)
		return domain.TransitionAuditEntry{}, err
	}

	e.metrics.IncTransitionPerformed(ctx, req.EntityType)
	e.log.Info("transition performed",
		zap.String("entity_type", req.EntityType),
		zap.String("entity_id", req.EntityID),
		zap.String("from_state", req.FromState),
		zap.String("to_state", req.ToState),
		zap.String("principal", req.Principal.ID),
		zap.Bool("override", req.IsOverride),
	)
	return entry, nil
}

func (e *Executor) observeFailure(ctx context.Context, req domain.TransitionRequest, err error) {
	fields := []zap.Field{
		zap.String("entity_type", req.EntityType),
		zap.String("entity_id", req.EntityID),
		zap.String("from_state", req.FromState),
		zap.String("to_state", req.ToState),
		zap.String("principal", req.Principal.ID),
		zap.Error(err),
	}
	switch domain.ClassOf(err) {
	case domain.ClassPolicyDenial:
		e.metrics.IncTransitionDenied(ctx, req.EntityType)
		e.log.Debug("transition denied", fields...)
	case domain.ClassIntegrity:
		e.metrics.IncIntegrityAnomaly(ctx, req.EntityType)
		e.log.Error("transition audit integrity violation", fields...)
	case domain.ClassConfiguration:
		e.log.Warn("transition on unconfigured entity type", fields...)
	case "":
		e.log.Error("transition failed", fields...)
	}
}

// IsLocked reports whether records in state are read-only, which is true for
// locked and final states. Unknown states are not locked.
func (e *Executor) IsLocked(ctx context.Context, entityType, state string) (bool, error) {
	def, ok, err := e.lookupState(ctx, entityType, state)
	if err != nil || !ok {
		return false, err
	}
	return def.IsEditLocked(), nil
}

// IsFinal reports whether state is terminal.
func (e *Executor) IsFinal(ctx context.Context, entityType, state string) (bool, error) {
	def, ok, err := e.lookupState(ctx, entityType, state)
	if err != nil || !ok {
		return false, err
	}
	return def.Kind == domain.StateKindFinal, nil
}

// EnsureEditable returns *domain.LockedStateError when a record in state must
// not be edited.
func (e *Executor) EnsureEditable(ctx context.Context, entityType, state string) error {
	locked, err := e.IsLocked(ctx, entityType, state)
	if err != nil {
		return err
	}
	if locked {
		return &domain.LockedStateError{EntityType: entityType, State: state}
	}
	return nil
}

// DefaultState returns the active default state of an entity type.
func (e *Executor) DefaultState(ctx context.Context, entityType string) (domain.StateDefinition, error) {
	defs, err := e.store.ListStateDefinitions(ctx, entityType, false)
	if err != nil {
		return domain.StateDefinition{}, fmt.Errorf("list states %s: %w", entityType, err)
	}
	for _, d := range defs {
		if d.IsDefault {
			return d, nil
		}
	}
	return domain.StateDefinition{}, &domain.MissingStateDefinitionError{EntityType: entityType, What: "default state"}
}

// AllowedTransitions lists the active rules leaving fromState. With a
// principal, rules whose permission it lacks are left out. Final states have
// no allowed transitions.
func (e *Executor) AllowedTransitions(ctx context.Context, entityType, fromState string, principal *domain.Principal) ([]domain.TransitionRule, error) {
	final, err := e.IsFinal(ctx, entityType, fromState)
	if err != nil {
		return nil, err
	}
	if final {
		return []domain.TransitionRule{}, nil
	}

	rules, err := e.store.ListTransitionRulesFrom(ctx, entityType, fromState)
	if err != nil {
		return nil, fmt.Errorf("list transitions %s/%s: %w", entityType, fromState, err)
	}
	out := make([]domain.TransitionRule, 0, len(rules))
	for _, r := range rules {
		if r.RequiredPermission != "" && principal != nil && !principal.HasPermission(r.RequiredPermission) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (e *Executor) lookupState(ctx context.Context, entityType, state string) (domain.StateDefinition, bool, error) {
	def, err := e.store.GetStateDefinition(ctx, entityType, state)
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.StateDefinition{}, false, nil
	}
	if err != nil {
		return domain.StateDefinition{}, false, fmt.Errorf("get state %s/%s: %w", entityType, state, err)
	}
	return def, true, nil
}

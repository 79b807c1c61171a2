// Package numbering assigns human-readable, collision-free numbers to
// business records.
//
// Each entity type has at most one NumberingRule and one sequence counter.
// Assignment increments the counter and records the number in a single
// transaction, so a number is generated exactly once and never reused.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bizcore.io/governance/internal/domain"
	apperrors "bizcore.io/governance/internal/pkg/errors"
	"bizcore.io/governance/internal/pkg/telemetry"
	"bizcore.io/governance/internal/repository"
)

// Engine registers numbering rules and assigns numbers.
type Engine struct {
	store   repository.Store
	counter *Counter
	clock   domain.TimeProvider
	loc     *time.Location
	log     *zap.Logger
	metrics *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(c domain.TimeProvider) Option { return func(e *Engine) { e.clock = c } }

// WithLocation sets the location used for reset periods and date segments.
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine returns an Engine over store. Defaults: system clock, UTC, no-op
// logger and metrics.
func NewEngine(store repository.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		clock: domain.SystemTime(),
		loc:   time.UTC,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = telemetry.NoopMetrics()
	}
	e.counter = NewCounter(e.loc)
	return e
}

// RegisterRule creates or updates the rule for rule.EntityType. Updating a
// rule changes only the format of future numbers; the counter is kept.
func (e *Engine) RegisterRule(ctx context.Context, rule domain.NumberingRule) (domain.NumberingRule, error) {
	if err := domain.Validate(rule); err != nil {
		return domain.NumberingRule{}, err
	}
	now := e.clock.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	saved, err := e.store.UpsertNumberingRule(ctx, rule)
	if err != nil {
		return domain.NumberingRule{}, fmt.Errorf("register numbering rule %s: %w", rule.EntityType, err)
	}
	e.log.Info("numbering rule registered",
		zap.String("entity_type", saved.EntityType),
		zap.Bool("enabled", saved.Enabled),
		zap.String("reset", string(saved.Reset)),
	)
	return saved, nil
}

// GetRule returns the rule for entityType or *domain.NoRuleDefinedError.
func (e *Engine) GetRule(ctx context.Context, entityType string) (domain.NumberingRule, error) {
	rule, err := e.store.GetNumberingRule(ctx, entityType)
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.NumberingRule{}, &domain.NoRuleDefinedError{EntityType: entityType}
	}
	if err != nil {
		return domain.NumberingRule{}, fmt.Errorf("get numbering rule %s: %w", entityType, err)
	}
	return rule, nil
}

// ListRules returns all rules ordered by entity type.
func (e *Engine) ListRules(ctx context.Context) ([]domain.NumberingRule, error) {
	rules, err := e.store.ListNumberingRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list numbering rules: %w", err)
	}
	return rules, nil
}

// Assign generates and records the number for one record.
//
// It fails with *domain.AlreadyAssignedError if the record has a number,
// *domain.NoRuleDefinedError if the entity type has no rule and
// *domain.NumberingDisabledError if the rule is disabled. A
// *domain.DuplicateNumberError means the counter produced a number that is
// already taken; it is logged as an integrity anomaly and not retried.
func (e *Engine) Assign(ctx context.Context, entityType, entityID string, principal domain.Principal) (domain.AssignedNumber, error) {
	switch {
	case entityType == "":
		return domain.AssignedNumber{}, domain.NewValidationError("entity_type", "required")
	case entityID == "":
		return domain.AssignedNumber{}, domain.NewValidationError("entity_id", "required")
	case principal.IsZero():
		return domain.AssignedNumber{}, domain.NewValidationError("principal", "required")
	}

	var assigned domain.AssignedNumber
	err := e.store.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		existing, err := q.GetAssignedNumber(ctx, entityType, entityID)
		switch {
		case err == nil:
			return &domain.AlreadyAssignedError{EntityType: entityType, EntityID: entityID, Number: existing.Number}
		case !errors.Is(err, apperrors.ErrNotFound):
			return fmt.Errorf("lookup assigned number: %w", err)
		}

		rule, err := q.GetNumberingRule(ctx, entityType)
		if errors.Is(err, apperrors.ErrNotFound) {
			return &domain.NoRuleDefinedError{EntityType: entityType}
		}
		if err != nil {
			return fmt.Errorf("get numbering rule: %w", err)
		}
		if !rule.Enabled {
			return &domain.NumberingDisabledError{EntityType: entityType}
		}

		now := e.clock.Now().In(e.loc)
		value, err := e.counter.Next(ctx, q, rule, now)
		if err != nil {
			return err
		}

		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate assignment id: %w", err)
		}
		assigned = domain.AssignedNumber{
			ID:         id.String(),
			EntityType: entityType,
			EntityID:   entityID,
			Number:     Format(rule, value, now),
			AssignedAt: now,
			AssignedBy: principal.ID,
		}
		return q.InsertAssignedNumber(ctx, assigned)
	})
	if err != nil {
		e.observeFailure(ctx, entityType, entityID, assigned.Number, err)
		return domain.AssignedNumber{}, err
	}

	e.metrics.IncNumberAssigned(ctx, entityType)
	e.log.Info("number assigned",
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.String("number", assigned.Number),
		zap.String("principal", principal.ID),
	)
	return assigned, nil
}

func (e *Engine) observeFailure(ctx context.Context, entityType, entityID, number string, err error) {
	switch domain.ClassOf(err) {
	case domain.ClassIntegrity:
		e.metrics.IncIntegrityAnomaly(ctx, entityType)
		e.log.Error("number assignment integrity violation",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.String("number", number),
			zap.Error(err),
		)
	case domain.ClassPolicyDenial:
		e.metrics.IncNumberingRejected(ctx, entityType)
		e.log.Debug("number assignment rejected",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	case "":
		e.log.Error("number assignment failed",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}

// GetAssignedNumber returns the number recorded for a record, if any.
func (e *Engine) GetAssignedNumber(ctx context.Context, entityType, entityID string) (string, bool, error) {
	n, err := e.store.GetAssignedNumber(ctx, entityType, entityID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get assigned number %s/%s: %w", entityType, entityID, err)
	}
	return n.Number, true, nil
}

// GetAssignment returns the full assignment record for a record.
func (e *Engine) GetAssignment(ctx context.Context, entityType, entityID string) (domain.AssignedNumber, error) {
	n, err := e.store.GetAssignedNumber(ctx, entityType, entityID)
	if err != nil {
		return domain.AssignedNumber{}, fmt.Errorf("get assignment %s/%s: %w", entityType, entityID, err)
	}
	return n, nil
}

// HasAssignedNumber reports whether a record already carries a number.
func (e *Engine) HasAssignedNumber(ctx context.Context, entityType, entityID string) (bool, error) {
	_, ok, err := e.GetAssignedNumber(ctx, entityType, entityID)
	return ok, err
}

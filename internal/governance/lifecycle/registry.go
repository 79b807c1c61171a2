// Package lifecycle validates and performs state transitions of business
// records against an explicit allow-list of rules.
//
// Every entity type registers its states and the transitions between them.
// Anything not registered is denied, final states have no way out, and each
// performed transition leaves exactly one immutable audit entry.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bizcore.io/governance/internal/domain"
	apperrors "bizcore.io/governance/internal/pkg/errors"
	"bizcore.io/governance/internal/repository"
)

// Registry is the administrative side of the lifecycle engine.
type Registry struct {
	store repository.Store
	clock domain.TimeProvider
	log   *zap.Logger
}

// NewRegistry returns a Registry over store.
func NewRegistry(store repository.Store, opts ...Option) *Registry {
	o := applyOptions(opts)
	return &Registry{store: store, clock: o.clock, log: o.log}
}

// RegisterState creates or updates a state definition and reactivates it.
// Registering a default state clears the previous default of the entity
// type in the same write.
func (r *Registry) RegisterState(ctx context.Context, def domain.StateDefinition) (domain.StateDefinition, error) {
	if def.Kind == "" {
		def.Kind = domain.StateKindNormal
	}
	if def.Label == "" {
		def.Label = def.Name
	}
	if err := domain.Validate(def); err != nil {
		return domain.StateDefinition{}, err
	}
	now := r.clock.Now()
	def.CreatedAt, def.UpdatedAt = now, now

	saved, err := r.store.UpsertStateDefinition(ctx, def)
	if err != nil {
		return domain.StateDefinition{}, fmt.Errorf("register state %s/%s: %w", def.EntityType, def.Name, err)
	}
	r.log.Info("state registered",
		zap.String("entity_type", saved.EntityType),
		zap.String("state", saved.Name),
		zap.String("kind", string(saved.Kind)),
		zap.Bool("default", saved.IsDefault),
	)
	return saved, nil
}

// RegisterTransition creates or updates an allowed transition and
// reactivates it. Both states must be registered and the source state must
// not be final.
func (r *Registry) RegisterTransition(ctx context.Context, rule domain.TransitionRule) (domain.TransitionRule, error) {
	if err := domain.Validate(rule); err != nil {
		return domain.TransitionRule{}, err
	}

	var saved domain.TransitionRule
	err := r.store.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		from, err := q.GetStateDefinition(ctx, rule.EntityType, rule.FromState)
		if err != nil {
			return stateLookupError(err, "FromState")
		}
		if from.Kind == domain.StateKindFinal {
			return domain.NewValidationError("FromState", "final")
		}
		if _, err := q.GetStateDefinition(ctx, rule.EntityType, rule.ToState); err != nil {
			return stateLookupError(err, "ToState")
		}

		now := r.clock.Now()
		rule.CreatedAt, rule.UpdatedAt = now, now
		saved, err = q.UpsertTransitionRule(ctx, rule)
		return err
	})
	if err != nil {
		return domain.TransitionRule{}, fmt.Errorf("register transition %s/%s->%s: %w", rule.EntityType, rule.FromState, rule.ToState, err)
	}
	r.log.Info("transition registered",
		zap.String("entity_type", saved.EntityType),
		zap.String("from_state", saved.FromState),
		zap.String("to_state", saved.ToState),
		zap.String("required_permission", saved.RequiredPermission),
	)
	return saved, nil
}

func stateLookupError(err error, field string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.NewValidationError(field, "unknown_state")
	}
	return err
}

// DeactivateState hides a state from validation and default lookup. The row
// is kept; registering it again reactivates it.
func (r *Registry) DeactivateState(ctx context.Context, entityType, name string) error {
	if err := r.store.SetStateDefinitionActive(ctx, entityType, name, false); err != nil {
		return fmt.Errorf("deactivate state %s/%s: %w", entityType, name, err)
	}
	r.log.Info("state deactivated", zap.String("entity_type", entityType), zap.String("state", name))
	return nil
}

// DeactivateTransition withdraws an allowed transition.
func (r *Registry) DeactivateTransition(ctx context.Context, entityType, fromState, toState string) error {
	if err := r.store.SetTransitionRuleActive(ctx, entityType, fromState, toState, false); err != nil {
		return fmt.Errorf("deactivate transition %s/%s->%s: %w", entityType, fromState, toState, err)
	}
	r.log.Info("transition deactivated",
		zap.String("entity_type", entityType),
		zap.String("from_state", fromState),
		zap.String("to_state", toState),
	)
	return nil
}

// ListStates returns the state vocabulary of an entity type.
func (r *Registry) ListStates(ctx context.Context, entityType string, includeInactive bool) ([]domain.StateDefinition, error) {
	defs, err := r.store.ListStateDefinitions(ctx, entityType, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list states %s: %w", entityType, err)
	}
	return defs, nil
}

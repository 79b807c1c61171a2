package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bizcore.io/governance/internal/domain"
	apperrors "bizcore.io/governance/internal/pkg/errors"
	"bizcore.io/governance/internal/repository"
)

// Validator decides whether a transition is allowed. It never writes.
type Validator struct {
	q repository.LifecycleQueries
}

// NewValidator returns a Validator reading rules from q.
func NewValidator(q repository.LifecycleQueries) *Validator {
	return &Validator{q: q}
}

// CanTransition reports whether the transition is allowed, ignoring the
// reason requirement. A nil principal skips the permission check. Only
// storage failures are returned as errors.
func (v *Validator) CanTransition(ctx context.Context, entityType, fromState, toState string, principal *domain.Principal) (bool, error) {
	_, err := checkTransition(ctx, v.q, entityType, fromState, toState, principal)
	if err == nil {
		return true, nil
	}
	var denied *domain.InvalidTransitionError
	if errors.As(err, &denied) {
		return false, nil
	}
	return false, err
}

// Validate returns *domain.InvalidTransitionError when the transition is
// denied, including when the rule requires a reason and none is given.
func (v *Validator) Validate(ctx context.Context, entityType, fromState, toState, reason string, principal *domain.Principal) error {
	return validateTransition(ctx, v.q, entityType, fromState, toState, reason, principal)
}

func validateTransition(ctx context.Context, q repository.LifecycleQueries, entityType, fromState, toState, reason string, principal *domain.Principal) error {
	rule, err := checkTransition(ctx, q, entityType, fromState, toState, principal)
	if err != nil {
		return err
	}
	if rule.RequiresReason && strings.TrimSpace(reason) == "" {
		return deny(entityType, fromState, toState, domain.ReasonReasonRequired, "")
	}
	return nil
}

// checkTransition applies every rule except the reason requirement, in order:
// self-transition, final source state, rule existence, permission.
func checkTransition(ctx context.Context, q repository.LifecycleQueries, entityType, fromState, toState string, principal *domain.Principal) (domain.TransitionRule, error) {
	if fromState == toState {
		return domain.TransitionRule{}, deny(entityType, fromState, toState, domain.ReasonSelfTransition, "")
	}

	from, err := q.GetStateDefinition(ctx, entityType, fromState)
	switch {
	case err == nil:
		if from.Kind == domain.StateKindFinal {
			return domain.TransitionRule{}, deny(entityType, fromState, toState, domain.ReasonFinalState, fromState)
		}
	case !errors.Is(err, apperrors.ErrNotFound):
		return domain.TransitionRule{}, fmt.Errorf("get state %s/%s: %w", entityType, fromState, err)
	}

	rule, err := q.GetTransitionRule(ctx, entityType, fromState, toState)
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.TransitionRule{}, deny(entityType, fromState, toState, domain.ReasonNotAllowed, "")
	}
	if err != nil {
		return domain.TransitionRule{}, fmt.Errorf("get transition rule %s/%s->%s: %w", entityType, fromState, toState, err)
	}

	if rule.RequiredPermission != "" && principal != nil && !principal.HasPermission(rule.RequiredPermission) {
		return domain.TransitionRule{}, deny(entityType, fromState, toState, domain.ReasonPermissionDenied, rule.RequiredPermission)
	}
	return rule, nil
}

func deny(entityType, fromState, toState, reason, detail string) *domain.InvalidTransitionError {
	return &domain.InvalidTransitionError{
		EntityType: entityType,
		FromState:  fromState,
		ToState:    toState,
		Reason:     reason,
		Detail:     detail,
	}
}

// Package repository defines the rule store contract shared by the lifecycle
// and numbering engines.
//
// Audit entries and assigned numbers are append-only: the contract exposes
// no update or delete operation for them.
package repository

import (
	"context"

	"bizcore.io/governance/internal/domain"
)

// Queries is the set of storage operations. Implementations return an error
// wrapping errors.ErrNotFound from internal/pkg/errors when a single-row
// lookup finds nothing.
type Queries interface {
	LifecycleQueries
	NumberingQueries
}

// LifecycleQueries covers state definitions, transition rules and the
// transition audit trail.
type LifecycleQueries interface {
	// UpsertStateDefinition inserts or updates a definition and reactivates it.
	// When def.IsDefault is set, every other default of the entity type is
	// cleared in the same write.
	UpsertStateDefinition(ctx context.Context, def domain.StateDefinition) (domain.StateDefinition, error)
	SetStateDefinitionActive(ctx context.Context, entityType, name string, active bool) error
	// GetStateDefinition returns only active definitions.
	GetStateDefinition(ctx context.Context, entityType, name string) (domain.StateDefinition, error)
	ListStateDefinitions(ctx context.Context, entityType string, includeInactive bool) ([]domain.StateDefinition, error)

	UpsertTransitionRule(ctx context.Context, rule domain.TransitionRule) (domain.TransitionRule, error)
	SetTransitionRuleActive(ctx context.Context, entityType, fromState, toState string, active bool) error
	// GetTransitionRule returns only active rules.
	GetTransitionRule(ctx context.Context, entityType, fromState, toState string) (domain.TransitionRule, error)
	// ListTransitionRulesFrom returns the active rules leaving fromState, ordered by target.
	ListTransitionRulesFrom(ctx context.Context, entityType, fromState string) ([]domain.TransitionRule, error)

	AppendTransitionAudit(ctx context.Context, entry domain.TransitionAuditEntry) error
	// ListTransitionAudit returns entries oldest first.
	ListTransitionAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.TransitionAuditEntry, error)
}

// NumberingQueries covers numbering rules, sequence counters and assigned numbers.
type NumberingQueries interface {
	// UpsertNumberingRule creates the rule together with a zero counter, or
	// updates the format options of an existing rule leaving its counter intact.
	UpsertNumberingRule(ctx context.Context, rule domain.NumberingRule) (domain.NumberingRule, error)
	GetNumberingRule(ctx context.Context, entityType string) (domain.NumberingRule, error)
	ListNumberingRules(ctx context.Context) ([]domain.NumberingRule, error)

	// LockSequenceCounter takes the exclusive per-rule lock and returns the
	// current counter. The lock is held until the enclosing transaction ends,
	// so it may only be called inside WithTx.
	LockSequenceCounter(ctx context.Context, entityType string) (domain.SequenceCounter, error)
	SaveSequenceCounter(ctx context.Context, counter domain.SequenceCounter) error

	// InsertAssignedNumber fails with *domain.AlreadyAssignedError when the
	// entity already has a number and *domain.DuplicateNumberError when the
	// number is taken.
	InsertAssignedNumber(ctx context.Context, n domain.AssignedNumber) error
	GetAssignedNumber(ctx context.Context, entityType, entityID string) (domain.AssignedNumber, error)
}

// TxFunc runs inside a transaction. Returning an error rolls it back.
type TxFunc func(ctx context.Context, q Queries) error

// Store is a Queries implementation that can group operations atomically.
type Store interface {
	Queries
	// WithTx runs fn in a transaction. Either every write made through q is
	// visible afterwards or none is.
	WithTx(ctx context.Context, fn TxFunc) error
}

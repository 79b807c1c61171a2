package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass groups governance errors by how callers should react.
type ErrorClass string

const (
	// ClassPolicyDenial means the request was well formed but not allowed.
	ClassPolicyDenial ErrorClass = "policy_denial"
	// ClassIntegrity means a storage invariant caught something the engine should have prevented.
	ClassIntegrity ErrorClass = "integrity"
	// ClassConfiguration means the rule set is incomplete for the request.
	ClassConfiguration ErrorClass = "configuration"
	// ClassValidation means the input itself is malformed.
	ClassValidation ErrorClass = "validation"
)

type classified interface {
	Class() ErrorClass
}

// ClassOf returns the class of the first governance error in err's chain,
// or "" for storage and other unexpected failures.
func ClassOf(err error) ErrorClass {
	var c classified
	if errors.As(err, &c) {
		return c.Class()
	}
	return ""
}

// Denial reasons reported by the lifecycle validator.
const (
	ReasonSelfTransition   = "source and target state are the same"
	ReasonFinalState       = "cannot transition from final state"
	ReasonNotAllowed       = "transition is not allowed"
	ReasonPermissionDenied = "permission denied"
	ReasonReasonRequired   = "reason is required for this transition"
)

// InvalidTransitionError is returned when a transition is denied.
type InvalidTransitionError struct {
	EntityType string
	FromState  string
	ToState    string
	Reason     string
	// Detail carries the offending value, such as the missing permission.
	Detail string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition %s -> %s for %s: %s", e.FromState, e.ToState, e.EntityType, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *InvalidTransitionError) Class() ErrorClass { return ClassPolicyDenial }

// LockedStateError is returned when a caller tries to edit a record whose
// state is locked or final.
type LockedStateError struct {
	EntityType string
	State      string
}

func (e *LockedStateError) Error() string {
	return fmt.Sprintf("%s in state %q is locked for editing", e.EntityType, e.State)
}

func (e *LockedStateError) Class() ErrorClass { return ClassPolicyDenial }

// MissingStateDefinitionError is returned when an entity type has no usable
// state vocabulary (or no default state) registered.
type MissingStateDefinitionError struct {
	EntityType string
	What       string
}

func (e *MissingStateDefinitionError) Error() string {
	if e.What == "" {
		return fmt.Sprintf("no state definitions registered for %s", e.EntityType)
	}
	return fmt.Sprintf("no %s registered for %s", e.What, e.EntityType)
}

func (e *MissingStateDefinitionError) Class() ErrorClass { return ClassConfiguration }

// NoRuleDefinedError is returned when no numbering rule exists for an entity type.
type NoRuleDefinedError struct {
	EntityType string
}

func (e *NoRuleDefinedError) Error() string {
	return fmt.Sprintf("no numbering rule defined for %s", e.EntityType)
}

func (e *NoRuleDefinedError) Class() ErrorClass { return ClassPolicyDenial }

// NumberingDisabledError is returned when the entity type's rule is disabled.
type NumberingDisabledError struct {
	EntityType string
}

func (e *NumberingDisabledError) Error() string {
	return fmt.Sprintf("numbering is disabled for %s", e.EntityType)
}

func (e *NumberingDisabledError) Class() ErrorClass { return ClassPolicyDenial }

// AlreadyAssignedError is returned when a record already carries a number.
type AlreadyAssignedError struct {
	EntityType string
	EntityID   string
	Number     string
}

func (e *AlreadyAssignedError) Error() string {
	if e.Number == "" {
		return fmt.Sprintf("%s %s already has a number assigned", e.EntityType, e.EntityID)
	}
	return fmt.Sprintf("%s %s already has number %s", e.EntityType, e.EntityID, e.Number)
}

func (e *AlreadyAssignedError) Class() ErrorClass { return ClassPolicyDenial }

// DuplicateNumberError signals that a generated number collided with an
// existing one. It indicates a counter bug and is never retried.
type DuplicateNumberError struct {
	EntityType string
	Number     string
}

func (e *DuplicateNumberError) Error() string {
	return fmt.Sprintf("number %s already exists for %s", e.Number, e.EntityType)
}

func (e *DuplicateNumberError) Class() ErrorClass { return ClassIntegrity }

// ImmutableRecordError is returned when storage refuses to modify an
// append-only record.
type ImmutableRecordError struct {
	Record string
}

func (e *ImmutableRecordError) Error() string {
	return fmt.Sprintf("%s records are immutable", e.Record)
}

func (e *ImmutableRecordError) Class() ErrorClass { return ClassIntegrity }

// FieldViolation is one failed input constraint.
type FieldViolation struct {
	Field string
	Rule  string
}

// ValidationError reports malformed input to a registration or request.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+" ("+v.Rule+")")
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Class() ErrorClass { return ClassValidation }

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, rule string) *ValidationError {
	return &ValidationError{Violations: []FieldViolation{{Field: field, Rule: rule}}}
}

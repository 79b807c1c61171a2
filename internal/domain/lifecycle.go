// Package domain defines the governance types shared by the lifecycle and
// numbering engines, their stores and the HTTP layer.
package domain

import "time"

// StateKind classifies a lifecycle state.
type StateKind string

const (
	StateKindNormal StateKind = "normal"
	// StateKindLocked marks records whose content must not be edited.
	// Transitions out of a locked state are still governed by the rule table.
	StateKindLocked StateKind = "locked"
	// StateKindFinal is terminal: no transition may leave it.
	StateKindFinal StateKind = "final"
)

// Valid reports whether k is a known kind.
func (k StateKind) Valid() bool {
	switch k {
	case StateKindNormal, StateKindLocked, StateKindFinal:
		return true
	}
	return false
}

// StateDefinition is one entry of an entity type's state vocabulary.
type StateDefinition struct {
	EntityType  string    `json:"entity_type" validate:"required,entitytype"`
	Name        string    `json:"name" validate:"required,statename"`
	Label       string    `json:"label" validate:"max=100"`
	Kind        StateKind `json:"kind" validate:"required,oneof=normal locked final"`
	IsDefault   bool      `json:"is_default"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsEditLocked reports whether records in this state are read-only.
func (s StateDefinition) IsEditLocked() bool {
	return s.Kind == StateKindLocked || s.Kind == StateKindFinal
}

// TransitionRule allows one directed edge between two states.
// Anything without an active rule is denied.
type TransitionRule struct {
	EntityType         string    `json:"entity_type" validate:"required,entitytype"`
	FromState          string    `json:"from_state" validate:"required,statename"`
	ToState            string    `json:"to_state" validate:"required,statename,nefield=FromState"`
	RequiredPermission string    `json:"required_permission,omitempty" validate:"max=100"`
	RequiresReason     bool      `json:"requires_reason"`
	Description        string    `json:"description,omitempty"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TransitionRequest asks the executor to move one entity between states.
type TransitionRequest struct {
	EntityType string    `validate:"required,entitytype"`
	EntityID   string    `validate:"required,max=255"`
	FromState  string    `validate:"required"`
	ToState    string    `validate:"required"`
	Reason     string    `validate:"max=2000"`
	Principal  Principal `validate:"-"`
	// IsOverride is recorded on the audit entry only; it does not relax validation.
	IsOverride bool
}

// TransitionAuditEntry is the immutable record of one performed transition.
type TransitionAuditEntry struct {
	ID          string    `json:"id"`
	OccurredAt  time.Time `json:"occurred_at"`
	PrincipalID string    `json:"principal_id"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	FromState   string    `json:"from_state"`
	ToState     string    `json:"to_state"`
	Reason      string    `json:"reason,omitempty"`
	IsOverride  bool      `json:"is_override"`
}

// AuditFilter narrows an audit trail query. Zero fields are ignored.
type AuditFilter struct {
	EntityType  string
	EntityID    string
	PrincipalID string
	Since       time.Time
	Until       time.Time
	Limit       int
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bizcore.io/governance/internal/domain"
	apperrors "bizcore.io/governance/internal/pkg/errors"
)

// StateDefinitionInput is the body of POST /lifecycle/{entity_type}/states.
type StateDefinitionInput struct {
	Name        string           `json:"name"`
	Label       string           `json:"label,omitempty"`
	Kind        domain.StateKind `json:"kind,omitempty"`
	IsDefault   bool             `json:"is_default,omitempty"`
	Description string           `json:"description,omitempty"`
}

// TransitionRuleInput is the body of POST /lifecycle/{entity_type}/transition-rules.
type TransitionRuleInput struct {
	FromState          string `json:"from_state"`
	ToState            string `json:"to_state"`
	RequiredPermission string `json:"required_permission,omitempty"`
	RequiresReason     bool   `json:"requires_reason,omitempty"`
	Description        string `json:"description,omitempty"`
}

// TransitionInput is the body of POST .../entities/{entity_id}/transitions.
type TransitionInput struct {
	FromState  string `json:"from_state"`
	ToState    string `json:"to_state"`
	Reason     string `json:"reason,omitempty"`
	IsOverride bool   `json:"is_override,omitempty"`
}

// StateStatus reports how a state restricts its records.
type StateStatus struct {
	EntityType string `json:"entity_type"`
	State      string `json:"state"`
	Locked     bool   `json:"locked"`
	Final      bool   `json:"final"`
}

// ListStates handles GET /lifecycle/{entity_type}/states.
func (s *Server) ListStates(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"
	defs, err := s.registry.ListStates(c.Request.Context(), c.Param("entity_type"), includeInactive)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newList(defs))
}

// RegisterState handles POST /lifecycle/{entity_type}/states.
func (s *Server) RegisterState(c *gin.Context) {
	var in StateDefinitionInput
	if !bindJSON(c, &in) {
		return
	}
	saved, err := s.registry.RegisterState(c.Request.Context(), domain.StateDefinition{
		EntityType:  c.Param("entity_type"),
		Name:        in.Name,
		Label:       in.Label,
		Kind:        in.Kind,
		IsDefault:   in.IsDefault,
		Description: in.Description,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// GetStateStatus handles GET /lifecycle/{entity_type}/states/{state}.
// Unknown states are reported as neither locked nor final.
func (s *Server) GetStateStatus(c *gin.Context) {
	ctx := c.Request.Context()
	entityType, state := c.Param("entity_type"), c.Param("state")

	locked, err := s.executor.IsLocked(ctx, entityType, state)
	if err != nil {
		_ = c.Error(err)
		return
	}
	final, err := s.executor.IsFinal(ctx, entityType, state)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, StateStatus{EntityType: entityType, State: state, Locked: locked, Final: final})
}

// DeactivateState handles DELETE /lifecycle/{entity_type}/states/{state}.
func (s *Server) DeactivateState(c *gin.Context) {
	err := s.registry.DeactivateState(c.Request.Context(), c.Param("entity_type"), c.Param("state"))
	if err != nil {
		_ = c.Error(notFoundAs(err, apperrors.CodeStateNotFound, "state not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAllowedTransitions handles GET /lifecycle/{entity_type}/states/{state}/allowed.
// The result is filtered by the caller's permissions.
func (s *Server) ListAllowedTransitions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	rules, err := s.executor.AllowedTransitions(c.Request.Context(), c.Param("entity_type"), c.Param("state"), &p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newList(rules))
}

// GetDefaultState handles GET /lifecycle/{entity_type}/default-state.
func (s *Server) GetDefaultState(c *gin.Context) {
	def, err := s.executor.DefaultState(c.Request.Context(), c.Param("entity_type"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, def)
}

// RegisterTransition handles POST /lifecycle/{entity_type}/transition-rules.
func (s *Server) RegisterTransition(c *gin.Context) {
	var in TransitionRuleInput
	if !bindJSON(c, &in) {
		return
	}
	saved, err := s.registry.RegisterTransition(c.Request.Context(), domain.TransitionRule{
		EntityType:         c.Param("entity_type"),
		FromState:          in.FromState,
		ToState:            in.ToState,
		RequiredPermission: in.RequiredPermission,
		RequiresReason:     in.RequiresReason,
		Description:        in.Description,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// DeactivateTransition handles
// DELETE /lifecycle/{entity_type}/transition-rules/{from_state}/{to_state}.
func (s *Server) DeactivateTransition(c *gin.Context) {
	err := s.registry.DeactivateTransition(c.Request.Context(), c.Param("entity_type"), c.Param("from_state"), c.Param("to_state"))
	if err != nil {
		_ = c.Error(notFoundAs(err, apperrors.CodeTransitionRuleNotFound, "transition rule not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

// PerformTransition handles POST /lifecycle/{entity_type}/entities/{entity_id}/transitions.
// The caller persists the new state on its own record after a 201.
func (s *Server) PerformTransition(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var in TransitionInput
	if !bindJSON(c, &in) {
		return
	}
	entry, err := s.executor.PerformTransition(c.Request.Context(), domain.TransitionRequest{
		EntityType: c.Param("entity_type"),
		EntityID:   c.Param("entity_id"),
		FromState:  in.FromState,
		ToState:    in.ToState,
		Reason:     in.Reason,
		Principal:  p,
		IsOverride: in.IsOverride,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// GetHistory handles GET /lifecycle/{entity_type}/entities/{entity_id}/history.
func (s *Server) GetHistory(c *gin.Context) {
	entries, err := s.trail.History(c.Request.Context(), c.Param("entity_type"), c.Param("entity_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newList(entries))
}

// QueryAudit handles GET /lifecycle/audit.
func (s *Server) QueryAudit(c *gin.Context) {
	since, err := queryTime(c, "since")
	if err != nil {
		_ = c.Error(err)
		return
	}
	until, err := queryTime(c, "until")
	if err != nil {
		_ = c.Error(err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		_ = c.Error(err)
		return
	}

	entries, err := s.trail.Query(c.Request.Context(), domain.AuditFilter{
		EntityType:  c.Query("entity_type"),
		EntityID:    c.Query("entity_id"),
		PrincipalID: c.Query("principal_id"),
		Since:       since,
		Until:       until,
		Limit:       limit,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newList(entries))
}

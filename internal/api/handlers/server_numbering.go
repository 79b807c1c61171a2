package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bizcore.io/governance/internal/domain"
	apperrors "bizcore.io/governance/internal/pkg/errors"
	"bizcore.io/governance/internal/usecase"
)

// NumberingRuleInput is the body of PUT /numbering/rules/{entity_type}.
// Omitted fields take the defaults of domain.NewNumberingRule.
type NumberingRuleInput struct {
	Enabled       *bool              `json:"enabled,omitempty"`
	Prefix        string             `json:"prefix,omitempty"`
	IncludeYear   *bool              `json:"include_year,omitempty"`
	YearFormat    domain.YearFormat  `json:"year_format,omitempty"`
	IncludeMonth  bool               `json:"include_month,omitempty"`
	SequenceWidth int                `json:"sequence_width,omitempty"`
	Delimiter     *string            `json:"delimiter,omitempty"`
	Reset         domain.ResetPolicy `json:"reset,omitempty"`
	Description   string             `json:"description,omitempty"`
}

// Rule builds the full rule for entityType.
func (in NumberingRuleInput) Rule(entityType string) domain.NumberingRule {
	rule := domain.NewNumberingRule(entityType, in.Prefix)
	if in.Enabled != nil {
		rule.Enabled = *in.Enabled
	}
	if in.IncludeYear != nil {
		rule.IncludeYear = *in.IncludeYear
	}
	if in.YearFormat != "" {
		rule.YearFormat = in.YearFormat
	}
	rule.IncludeMonth = in.IncludeMonth
	if in.SequenceWidth != 0 {
		rule.SequenceWidth = in.SequenceWidth
	}
	if in.Delimiter != nil {
		rule.Delimiter = *in.Delimiter
	}
	if in.Reset != "" {
		rule.Reset = in.Reset
	}
	rule.Description = in.Description
	return rule
}

// BatchInput is the body of POST /numbering/{entity_type}/batch.
type BatchInput struct {
	EntityIDs []string `json:"entity_ids"`
}

// BatchItemResponse is one entry of a batch response.
type BatchItemResponse struct {
	EntityID string                  `json:"entity_id"`
	Status   usecase.BatchItemStatus `json:"status"`
	Number   string                  `json:"number,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// BatchResponse is the body of a batch assignment.
type BatchResponse struct {
	EntityType string              `json:"entity_type"`
	Items      []BatchItemResponse `json:"items"`
	Assigned   int                 `json:"assigned"`
	Existing   int                 `json:"existing"`
	Failed     int                 `json:"failed"`
	Skipped    int                 `json:"skipped"`
}

func newBatchResponse(res *usecase.BatchResult) BatchResponse {
	out := BatchResponse{
		EntityType: res.EntityType,
		Items:      make([]BatchItemResponse, len(res.Items)),
		Assigned:   res.Assigned,
		Existing:   res.Existing,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
	}
	for i, item := range res.Items {
		out.Items[i] = BatchItemResponse{EntityID: item.EntityID, Status: item.Status, Number: item.Number}
		if item.Err != nil {
			out.Items[i].Error = apperrors.FromDomain(item.Err).Code
		}
	}
	return out
}

// ListNumberingRules handles GET /numbering/rules.
func (s *Server) ListNumberingRules(c *gin.Context) {
	rules, err := s.numbering.ListRules(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newList(rules))
}

// GetNumberingRule handles GET /numbering/rules/{entity_type}.
func (s *Server) GetNumberingRule(c *gin.Context) {
	rule, err := s.numbering.GetRule(c.Request.Context(), c.Param("entity_type"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// PutNumberingRule handles PUT /numbering/rules/{entity_type}. The counter of
// an existing rule is kept.
func (s *Server) PutNumberingRule(c *gin.Context) {
	var in NumberingRuleInput
	if !bindJSON(c, &in) {
		return
	}
	saved, err := s.numbering.RegisterRule(c.Request.Context(), in.Rule(c.Param("entity_type")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// AssignNumber handles POST /numbering/{entity_type}/entities/{entity_id}/number.
func (s *Server) AssignNumber(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	assigned, err := s.numbering.Assign(c.Request.Context(), c.Param("entity_type"), c.Param("entity_id"), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, assigned)
}

// GetAssignedNumber handles GET /numbering/{entity_type}/entities/{entity_id}/number.
func (s *Server) GetAssignedNumber(c *gin.Context) {
	assigned, err := s.numbering.GetAssignment(c.Request.Context(), c.Param("entity_type"), c.Param("entity_id"))
	if err != nil {
		_ = c.Error(notFoundAs(err, apperrors.CodeNumberNotAssigned, "no number assigned"))
		return
	}
	c.JSON(http.StatusOK, assigned)
}

// AssignNumberBatch handles POST /numbering/{entity_type}/batch.
func (s *Server) AssignNumberBatch(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var in BatchInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := s.batch.Assign(c.Request.Context(), c.Param("entity_type"), in.EntityIDs, p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newBatchResponse(res))
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bizcore.io/governance/internal/api/middleware"
	"bizcore.io/governance/internal/domain"
	apperrors "bizcore.io/governance/internal/pkg/errors"
)

var errNoPrincipal = apperrors.Unauthorized(apperrors.CodeAuthRequired, "authentication required")

// principal returns the caller set by JWTAuth, or attaches a 401.
func principal(c *gin.Context) (domain.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c.Request.Context())
	if !ok {
		_ = c.Error(errNoPrincipal)
	}
	return p, ok
}

// bindJSON decodes the body into v, attaching a 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInvalidRequest, "malformed request body", http.StatusBadRequest))
		return false
	}
	return true
}

// notFoundAs replaces a storage not-found with a resource-specific 404.
func notFoundAs(err error, code, message string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.Wrap(err, code, message, http.StatusNotFound)
	}
	return err
}

func queryTime(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError(key, "rfc3339")
	}
	return t, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(key, "numeric")
	}
	return n, nil
}

// listResponse wraps collections so the body is always an object.
type listResponse[T any] struct {
	Items []T `json:"items"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items}
}

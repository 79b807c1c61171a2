package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "bizcore.io/governance/internal/pkg/errors"
)

// PermissionAdmin grants every administrative permission.
const PermissionAdmin = "governance.admin"

// Administrative permissions guarding rule registration.
const (
	PermissionLifecycleManage = "governance.lifecycle.manage"
	PermissionNumberingManage = "governance.numbering.manage"
	PermissionAuditRead       = "governance.audit.read"
)

// RequirePermission rejects callers whose token lacks permission.
// It guards configuration endpoints only; transition permissions are checked
// by the lifecycle validator against the rule.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c.Request.Context())
		if !ok {
			abortWithError(c, apperrors.Unauthorized(apperrors.CodeAuthRequired, "authentication required"))
			return
		}
		if p.HasPermission(PermissionAdmin) || p.HasPermission(permission) {
			c.Next()
			return
		}
		abortWithError(c, apperrors.Forbidden(apperrors.CodeForbidden, "insufficient permissions").
			WithParams(map[string]any{"permission": permission}))
	}
}

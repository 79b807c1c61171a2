// Package middleware provides the HTTP middleware chain of the governance API.
package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "bizcore.io/governance/internal/pkg/errors"
	"bizcore.io/governance/internal/pkg/logger"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Params      map[string]any         `json:"params,omitempty"`
	FieldErrors []apperrors.FieldError `json:"field_errors,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
}

// NewErrorResponse builds the client view of appErr.
func NewErrorResponse(c *gin.Context, appErr *apperrors.AppError) ErrorResponse {
	return ErrorResponse{
		Code:        appErr.Code,
		Message:     appErr.Message,
		Params:      appErr.Params,
		FieldErrors: appErr.FieldErrors,
		RequestID:   GetRequestID(c.Request.Context()),
	}
}

// ErrorHandler renders errors attached with c.Error() as one consistent JSON
// body. Governance errors keep their codes; anything else becomes a 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr := apperrors.FromDomain(err)

		fields := []zap.Field{
			zap.String("code", appErr.Code),
			zap.Int("status", appErr.HTTPStatus),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("request_id", GetRequestID(c.Request.Context())),
			zap.Error(err),
		}
		if appErr.HTTPStatus >= 500 {
			logger.Error("Request failed", fields...)
		} else {
			logger.Warn("Request rejected", fields...)
		}

		c.JSON(appErr.HTTPStatus, NewErrorResponse(c, appErr))
	}
}

// abortWithError renders appErr immediately, for middleware that stops the chain.
func abortWithError(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, NewErrorResponse(c, appErr))
}

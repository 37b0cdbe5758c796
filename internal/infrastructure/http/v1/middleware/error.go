package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"clientregistry/internal/core/apperror"
	"clientregistry/pkg/logger"
)

const ctxErrorCode = "error_code"

// ErrorRecorder receives the code of every error response.
type ErrorRecorder interface {
	ObserveError(code string)
}

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler(recorder ErrorRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// An inner middleware (idempotency) may already have rendered it.
		if !c.Writer.Written() {
			RenderError(c, c.Errors.Last().Err)
		}

		if recorder != nil {
			if code := c.GetString(ctxErrorCode); code != "" {
				recorder.ObserveError(code)
			}
		}
	}
}

// RenderError writes the JSON error body for err and returns the status and
// body it wrote.
func RenderError(c *gin.Context, err error) (int, gin.H) {
	ctx := c.Request.Context()
	status, body := errorBody(c, err)

	if status >= http.StatusInternalServerError {
		logger.Error(ctx, "request failed", "code", body["code"], "error", err)
	} else if appErr, ok := apperror.AsAppError(err); ok && appErr.Err != nil {
		logger.Warn(ctx, "request error", "code", appErr.Code, "cause", appErr.Err)
	}

	c.Set(ctxErrorCode, body["code"])
	c.AbortWithStatusJSON(status, body)
	return status, body
}

func errorBody(c *gin.Context, err error) (int, gin.H) {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.HTTPStatus, gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		}
	}

	details := map[string]any{"request_id": c.GetString(ctxRequestID)}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, gin.H{
			"code":    apperror.CodeTimeout,
			"message": "Request timed out",
			"details": details,
		}
	}
	return http.StatusInternalServerError, gin.H{
		"code":    apperror.CodeInternal,
		"message": "Internal server error",
		"details": details,
	}
}

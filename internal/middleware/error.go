package middleware

import (
	"errors"

	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// errorResponse is the body of every failed admin call.
type errorResponse struct {
	Error     *apperrors.AppError `json:"error"`
	RequestID string              `json:"request_id,omitempty"`
}

// ErrorHandler renders the last error a handler attached with c.Error.
// Errors that are not AppErrors become INTERNAL_ERROR and their text stays
// in the log only.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			appErr = apperrors.New(apperrors.ErrInternal, "internal error", err)
		}
		reqID := c.GetString(ContextRequestID)

		fields := []any{
			"request_id", reqID,
			"route", c.FullPath(),
			"code", appErr.Type,
		}
		switch {
		case appErr.HTTPStatus >= 500:
			logger.LogError(c.Request.Context(), err, "admin call failed", fields...)
		case appErr.Type == apperrors.ErrConflict:
			logger.Info("admin call rejected, run in progress", fields...)
		default:
			logger.Warn("admin call rejected", append(fields, "reason", appErr.Message)...)
		}

		c.JSON(appErr.HTTPStatus, errorResponse{Error: appErr, RequestID: reqID})
	}
}

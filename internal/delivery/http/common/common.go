package http_common

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidArgument:
		return http.StatusUnprocessableEntity
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeInvalidState:
		return http.StatusBadRequest
	case apperr.CodePermissionDenied:
		return http.StatusForbidden
	case apperr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError translates a usecase error into the HTTP error contract.
// Unknown errors log and surface as a plain 500.
func RespondError(ctx *gin.Context, logger *slog.Logger, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		status := statusOf(appErr.Code)
		if status == http.StatusInternalServerError {
			logger.Error("request failed", slog.String("error", err.Error()))
		}
		ctx.JSON(status, ErrorResponse{
			Message: appErr.Message,
			Code:    string(appErr.Code),
		})
		return
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	ctx.JSON(http.StatusInternalServerError, ErrorResponse{
		Message: "internal error",
	})
}

// RespondBadRequest reports a malformed request body or parameter.
func RespondBadRequest(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusBadRequest, ErrorResponse{Message: message})
}

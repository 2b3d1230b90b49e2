package apierror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
)

// Status HTTP статус для ошибки use case
func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateActiveRequest),
		errors.Is(err, domain.ErrOrderClosed),
		errors.Is(err, domain.ErrConcurrentStateConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnsupportedNetwork),
		errors.Is(err, domain.ErrNetworkDisabled):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCallbackSignature):
		return http.StatusUnauthorized
	case domain.IsTransientSourceError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write отвечает ошибкой; текст внутренних ошибок наружу не отдаётся
func Write(ctx *gin.Context, err error, log *slog.Logger) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			"error", err,
			"path", ctx.Request.URL.Path,
		)
		ctx.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

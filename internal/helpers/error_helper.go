package helpers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/farellandr/gatherly/internal/store"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func HTTPStatusText(code int) string {
	return http.StatusText(code)
}

func RespondWithError(c *gin.Context, statusCode int, customMessage string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   HTTPStatusText(statusCode),
		Message: customMessage,
	})
}

// RespondWithStoreError maps store sentinels to 404/409 and anything else to a
// logged 500.
func RespondWithStoreError(c *gin.Context, err error, notFoundMessage string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		RespondWithError(c, http.StatusNotFound, notFoundMessage)
	case errors.Is(err, store.ErrDuplicate):
		RespondWithError(c, http.StatusConflict, "Document already exists.")
	default:
		_ = c.Error(err)
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Store operation failed")
		RespondWithError(c, http.StatusInternalServerError, "Database error.")
	}
}

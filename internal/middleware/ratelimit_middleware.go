package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/farellandr/gatherly/internal/helpers"
	"github.com/farellandr/gatherly/internal/ratelimit"
)

// RateLimit throttles by client IP. A limiter backend failure lets the request
// through.
func RateLimit(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Msg("Rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			helpers.RespondWithError(c, http.StatusTooManyRequests, "Too many requests, slow down.")
			c.Abort()
			return
		}
		c.Next()
	}
}

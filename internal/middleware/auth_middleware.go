package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/gatherly/internal/helpers"
	"github.com/farellandr/gatherly/internal/store"
)

const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
	RoleKey     = "role"
)

func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := claimsFromHeader(c, secret)
		if err != nil {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Missing or invalid token.")
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware identifies the caller when a valid token is sent and
// lets anonymous requests through otherwise.
func OptionalAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			if claims, err := claimsFromHeader(c, secret); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// RequireRole checks the role stored on the account rather than the one baked
// into the token, so deleted accounts lose access before their tokens expire.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := GetStore(c)
		if s == nil {
			helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
			c.Abort()
			return
		}

		user, err := s.Users().GetByID(c.Request.Context(), c.GetString(UserIDKey))
		if errors.Is(err, store.ErrNotFound) {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Account no longer exists.")
			c.Abort()
			return
		}
		if err != nil {
			helpers.RespondWithStoreError(c, err, "User not found.")
			c.Abort()
			return
		}

		if user.Role != role {
			helpers.RespondWithError(c, http.StatusForbidden, "This action requires the "+role+" role.")
			c.Abort()
			return
		}
		c.Set(UsernameKey, user.Username)
		c.Set(RoleKey, user.Role)
		c.Next()
	}
}

func claimsFromHeader(c *gin.Context, secret string) (*helpers.Claims, error) {
	header := c.GetHeader("Authorization")
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return helpers.ParseToken(secret, tokenString)
}

func setClaims(c *gin.Context, claims *helpers.Claims) {
	c.Set(UserIDKey, claims.UserID)
	c.Set(UsernameKey, claims.Username)
	c.Set(RoleKey, claims.Role)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/gatherly/config"
	"github.com/farellandr/gatherly/internal/helpers"
	"github.com/farellandr/gatherly/internal/middleware"
	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/store"
)

func storeFrom(c *gin.Context) (store.Store, bool) {
	s := middleware.GetStore(c)
	if s == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return nil, false
	}
	return s, true
}

func configFrom(c *gin.Context) (*config.Config, bool) {
	cfg := middleware.GetConfig(c)
	if cfg == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Configuration not found.")
		return nil, false
	}
	return cfg, true
}

// currentUser loads the document of the authenticated caller.
func currentUser(c *gin.Context, s store.Store) (*models.User, bool) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return nil, false
	}

	user, err := s.Users().GetByID(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondWithStoreError(c, err, "User not found.")
		return nil, false
	}
	return user, true
}

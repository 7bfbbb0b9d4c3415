package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/farellandr/gatherly/internal/helpers"
	"github.com/farellandr/gatherly/internal/middleware"
	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/notify"
	"github.com/farellandr/gatherly/internal/store"
)

type UpdateProfileRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=1"`
	Bio          *string `json:"bio" binding:"omitempty,max=500"`
	Phone        *string `json:"phone"`
	Organization *string `json:"organization"`
	Website      *string `json:"website" binding:"omitempty,url"`
}

func SearchUsers(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}

	limit, err := helpers.StringToInt(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid limit.")
		return
	}
	if limit > helpers.MaxPageLimit {
		limit = helpers.MaxPageLimit
	}

	users, err := s.Users().Search(c.Request.Context(), strings.TrimSpace(c.Query("q")), limit)
	if err != nil {
		helpers.RespondWithStoreError(c, err, "User not found.")
		return
	}

	profiles := make([]models.PublicProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Public())
	}
	c.JSON(http.StatusOK, gin.H{"users": profiles})
}

func GetUser(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}

	user, err := s.Users().GetByUsername(c.Request.Context(), strings.ToLower(c.Param("username")))
	if err != nil {
		helpers.RespondWithStoreError(c, err, "User not found.")
		return
	}
	c.JSON(http.StatusOK, user.Public())
}

func UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	s, ok := storeFrom(c)
	if !ok {
		return
	}
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	update := store.ProfileUpdate{
		Name:  req.Name,
		Bio:   req.Bio,
		Phone: req.Phone,
	}
	if user.IsOrganizer() {
		update.Organization = req.Organization
		update.Website = req.Website
	}

	ctx := c.Request.Context()
	if err := s.Users().UpdateProfile(ctx, user.ID, update); err != nil {
		helpers.RespondWithStoreError(c, err, "User not found.")
		return
	}
	updated, err := s.Users().GetByID(ctx, user.ID)
	if err != nil {
		helpers.RespondWithStoreError(c, err, "User not found.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully.",
		"user":    updated,
	})
}

func UploadAvatar(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}
	cfg, ok := configFrom(c)
	if !ok {
		return
	}
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Image file is required.")
		return
	}

	uploadCfg := helpers.ImageUploadConfig(cfg.Upload.Dir, cfg.Upload.PublicPath)
	imagePath, err := helpers.UploadFile(c, fileHeader, "avatars", uploadCfg)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	old := user.ProfileImage
	if err := s.Users().UpdateProfile(c.Request.Context(), user.ID, store.ProfileUpdate{ProfileImage: &imagePath}); err != nil {
		_ = helpers.DeleteFile(uploadCfg, imagePath)
		helpers.RespondWithStoreError(c, err, "User not found.")
		return
	}
	if err := helpers.DeleteFile(uploadCfg, old); err != nil {
		log.Warn().Err(err).Str("path", old).Msg("Error deleting old avatar")
	}

	c.JSON(http.StatusOK, gin.H{"profileImage": imagePath})
}

func DeleteAccount(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}
	user, ok := currentUser(c, s)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if user.IsOrganizer() {
		_, total, err := s.Events().List(ctx, store.EventFilter{OrganizerID: user.Username, IncludeDrafts: true, Page: 1, Limit: 1})
		if err != nil {
			helpers.RespondWithStoreError(c, err, "User not found.")
			return
		}
		if total > 0 {
			helpers.RespondWithError(c, http.StatusConflict, "Delete your events before deleting the account.")
			return
		}
	}

	logger := log.With().Str("username", user.Username).Logger()
	for _, followee := range user.Following {
		if err := s.Users().Unfollow(ctx, user.Username, followee); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Warn().Err(err).Str("followee", followee).Msg("Could not detach following")
		}
	}
	for _, follower := range user.Followers {
		if err := s.Users().Unfollow(ctx, follower, user.Username); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Warn().Err(err).Str("follower", follower).Msg("Could not detach follower")
		}
	}

	if err := s.Users().Delete(ctx, user.Username); err != nil {
		helpers.RespondWithStoreError(c, err, "User not found.")
		return
	}

	logger.Info().Msg("Account deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully."})
}

func FollowUser(c *gin.Context) {
	changeFollow(c, true)
}

func UnfollowUser(c *gin.Context) {
	changeFollow(c, false)
}

func changeFollow(c *gin.Context, follow bool) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}

	follower := c.GetString(middleware.UsernameKey)
	followee := strings.ToLower(c.Param("username"))
	if follower == followee {
		helpers.RespondWithError(c, http.StatusBadRequest, "You cannot follow yourself.")
		return
	}

	ctx := c.Request.Context()
	var err error
	if follow {
		err = s.Users().Follow(ctx, follower, followee)
	} else {
		err = s.Users().Unfollow(ctx, follower, followee)
	}
	if err != nil {
		helpers.RespondWithStoreError(c, err, "User not found.")
		return
	}

	if follow {
		payload := gin.H{"follower": follower, "followee": followee}
		if err := middleware.GetPublisher(c).Publish(ctx, notify.SubjectUsersFollowed, payload); err != nil {
			log.Warn().Err(err).Msg("Could not publish follow")
		}
	}

	message := "Unfollowed successfully."
	if follow {
		message = "Followed successfully."
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

func ListFollowers(c *gin.Context) {
	listSocial(c, func(u *models.User) []string { return u.Followers }, "followers")
}

func ListFollowing(c *gin.Context) {
	listSocial(c, func(u *models.User) []string { return u.Following }, "following")
}

func listSocial(c *gin.Context, pick func(*models.User) []string, key string) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}

	user, err := s.Users().GetByUsername(c.Request.Context(), strings.ToLower(c.Param("username")))
	if err != nil {
		helpers.RespondWithStoreError(c, err, "User not found.")
		return
	}

	list := pick(user)
	if list == nil {
		list = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"username": user.Username,
		key:        list,
		"count":    len(list),
	})
}

func ListUserEvents(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}

	page, limit, err := helpers.ParsePagination(c)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	username := strings.ToLower(c.Param("username"))
	filter := store.EventFilter{
		OrganizerID:   username,
		IncludeDrafts: c.GetString(middleware.UsernameKey) == username,
		Page:          page,
		Limit:         limit,
	}
	events, total, err := s.Events().List(c.Request.Context(), filter)
	if err != nil {
		helpers.RespondWithStoreError(c, err, "Event not found.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":      events,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": helpers.TotalPages(total, limit),
	})
}

func ListMyTickets(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	tickets := user.Tickets
	if tickets == nil {
		tickets = []models.PurchasedTicket{}
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/farellandr/gatherly/internal/helpers"
	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/store"
)

type RegisterRequest struct {
	Name         string `json:"name" binding:"required"`
	Username     string `json:"username" binding:"required,min=3,max=30,alphanum"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=6"`
	Role         string `json:"role" binding:"omitempty,oneof=organizer user"`
	Organization string `json:"organization"`
}

type LoginRequest struct {
	// Login is an email address or a username.
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	s, ok := storeFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	username := strings.ToLower(req.Username)
	email := strings.ToLower(req.Email)

	if _, err := s.Users().GetByUsername(ctx, username); err == nil {
		helpers.RespondWithError(c, http.StatusConflict, "Username already taken.")
		return
	}
	if _, err := s.Users().GetByEmail(ctx, email); err == nil {
		helpers.RespondWithError(c, http.StatusConflict, "User already exists.")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to hash the password.")
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}

	user := models.User{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Username: username,
		Email:    email,
		Password: string(hashedPassword),
		Role:     role,
	}
	if role == models.RoleOrganizer {
		user.Organization = req.Organization
	}

	if err := s.Users().Create(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			helpers.RespondWithError(c, http.StatusConflict, "User already exists.")
			return
		}
		helpers.RespondWithStoreError(c, err, "User not found.")
		return
	}

	log.Info().Str("username", user.Username).Str("role", user.Role).Msg("User registered")
	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully.",
		"user":    user,
	})
}

func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	s, ok := storeFrom(c)
	if !ok {
		return
	}
	cfg, ok := configFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	login := strings.ToLower(strings.TrimSpace(req.Login))
	var (
		user *models.User
		err  error
	)
	if strings.Contains(login, "@") {
		user, err = s.Users().GetByEmail(ctx, login)
	} else {
		user, err = s.Users().GetByUsername(ctx, login)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid credentials.")
			return
		}
		helpers.RespondWithStoreError(c, err, "User not found.")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid credentials.")
		return
	}

	tokenString, err := helpers.GenerateToken(cfg.Auth.JWTSecret, user, cfg.Auth.TokenTTL)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate token.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": tokenString,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
			"role":     user.Role,
		},
	})
}

func Me(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}

	user, ok := currentUser(c, s)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

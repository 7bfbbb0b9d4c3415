package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/farellandr/gatherly/config"
	"github.com/farellandr/gatherly/internal/handlers"
	"github.com/farellandr/gatherly/internal/logger"
	"github.com/farellandr/gatherly/internal/middleware"
	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/notify"
	"github.com/farellandr/gatherly/internal/payments"
	"github.com/farellandr/gatherly/internal/ratelimit"
	"github.com/farellandr/gatherly/internal/store"
)

// Dependencies are the collaborators the route handlers reach through the gin
// context.
type Dependencies struct {
	Config    *config.Config
	Store     store.Store
	Payments  payments.Provider
	Mailer    notify.Mailer
	Publisher notify.Publisher
	Limiter   ratelimit.Limiter
}

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := config.InitStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("Error closing database")
		}
	}()

	deps := Dependencies{
		Config: cfg,
		Store:  s,
		Payments: payments.NewStripe(payments.StripeConfig{
			SecretKey:          cfg.Stripe.SecretKey,
			WebhookSecret:      cfg.Stripe.WebhookSecret,
			Currency:           cfg.Stripe.Currency,
			PlatformFeePercent: cfg.Stripe.PlatformFeePercent,
			BaseURL:            cfg.AppBaseURL,
		}),
		Mailer:    newMailer(cfg),
		Publisher: newPublisher(cfg),
		Limiter:   newLimiter(cfg),
	}
	defer deps.Publisher.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMailer(cfg *config.Config) notify.Mailer {
	if cfg.Mail.SendGridAPIKey == "" {
		log.Warn().Msg("SENDGRID_API_KEY not set, receipts will only be logged")
		return notify.LogMailer{}
	}
	return notify.NewSendGridMailer(cfg.Mail.SendGridAPIKey, cfg.Mail.From, cfg.Mail.FromName)
}

func newPublisher(cfg *config.Config) notify.Publisher {
	if cfg.NatsURL == "" {
		return notify.NopPublisher{}
	}
	p, err := notify.NewNatsPublisher(cfg.NatsURL)
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable, domain messages disabled")
		return notify.NopPublisher{}
	}
	return p
}

func newLimiter(cfg *config.Config) ratelimit.Limiter {
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(cfg.RedisURL)
		if err == nil {
			return ratelimit.NewRedisLimiter(client, cfg.RateLimit.Window, cfg.RateLimit.MaxRequests)
		}
		log.Warn().Err(err).Msg("Falling back to in-memory rate limiting")
	}
	return ratelimit.NewMemoryLimiter(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests)
}

func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	setupRoutes(r, deps)
	return r
}

func setupRoutes(r *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	auth := middleware.JWTAuthMiddleware(cfg.Auth.JWTSecret)
	optionalAuth := middleware.OptionalAuthMiddleware(cfg.Auth.JWTSecret)
	organizerOnly := middleware.RequireRole(models.RoleOrganizer)
	limited := middleware.RateLimit(deps.Limiter)

	if cfg.Upload.Dir != "" && cfg.Upload.PublicPath != "" {
		r.Static(cfg.Upload.PublicPath, cfg.Upload.Dir)
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(
		middleware.DatabaseMiddleware(deps.Store),
		middleware.ConfigMiddleware(cfg),
		middleware.PaymentsMiddleware(deps.Payments),
		middleware.NotifyMiddleware(deps.Mailer, deps.Publisher),
	)

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", limited, handlers.Register)
		authRoutes.POST("/login", limited, handlers.Login)
		authRoutes.GET("/me", auth, handlers.Me)
	}

	users := api.Group("/users")
	{
		users.GET("", handlers.SearchUsers)
		users.GET("/:username", handlers.GetUser)
		users.GET("/:username/followers", handlers.ListFollowers)
		users.GET("/:username/following", handlers.ListFollowing)
		users.GET("/:username/events", optionalAuth, handlers.ListUserEvents)
		users.POST("/:username/follow", auth, handlers.FollowUser)
		users.DELETE("/:username/follow", auth, handlers.UnfollowUser)

		me := users.Group("/me", auth)
		{
			me.PUT("", handlers.UpdateProfile)
			me.DELETE("", handlers.DeleteAccount)
			me.POST("/avatar", handlers.UploadAvatar)
			me.GET("/tickets", handlers.ListMyTickets)
			me.GET("/tickets/:ticketId/qr", handlers.GenerateTicketQR)
		}
	}

	events := api.Group("/events")
	{
		events.GET("", handlers.ListEvents)
		events.GET("/:id", optionalAuth, handlers.GetEvent)

		organizer := events.Group("", auth, organizerOnly)
		{
			organizer.POST("", handlers.CreateEvent)
			organizer.PUT("/:id", handlers.UpdateEvent)
			organizer.DELETE("/:id", handlers.DeleteEvent)
			organizer.POST("/:id/publish", handlers.PublishEvent)
			organizer.POST("/:id/unpublish", handlers.UnpublishEvent)
			organizer.POST("/:id/image", handlers.UploadEventImage)
			organizer.POST("/:id/checkin", handlers.CheckInTicket)
		}
	}

	paymentRoutes := api.Group("/payments")
	{
		paymentRoutes.POST("/webhook", handlers.StripeWebhook)
		paymentRoutes.POST("/checkout-session", auth, handlers.CreateCheckoutSession)

		connect := paymentRoutes.Group("/connect-account", auth, organizerOnly)
		{
			connect.POST("", handlers.CreateConnectAccount)
			connect.GET("", handlers.GetConnectAccount)
		}
	}
}

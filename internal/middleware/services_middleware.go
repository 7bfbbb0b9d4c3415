package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/farellandr/gatherly/config"
	"github.com/farellandr/gatherly/internal/notify"
	"github.com/farellandr/gatherly/internal/payments"
	"github.com/farellandr/gatherly/internal/store"
)

const (
	storeKey     = "store"
	paymentsKey  = "payments"
	mailerKey    = "mailer"
	publisherKey = "publisher"
	configKey    = "config"
)

func DatabaseMiddleware(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(storeKey, s)
		c.Next()
	}
}

func GetStore(c *gin.Context) store.Store {
	s, exists := c.Get(storeKey)
	if !exists {
		return nil
	}
	return s.(store.Store)
}

func PaymentsMiddleware(provider payments.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(paymentsKey, provider)
		c.Next()
	}
}

func GetPaymentProvider(c *gin.Context) payments.Provider {
	provider, exists := c.Get(paymentsKey)
	if !exists {
		return nil
	}
	return provider.(payments.Provider)
}

func NotifyMiddleware(mailer notify.Mailer, publisher notify.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(mailerKey, mailer)
		c.Set(publisherKey, publisher)
		c.Next()
	}
}

// GetMailer never returns nil; without a configured mailer receipts are logged.
func GetMailer(c *gin.Context) notify.Mailer {
	if m, exists := c.Get(mailerKey); exists {
		return m.(notify.Mailer)
	}
	return notify.LogMailer{}
}

func GetPublisher(c *gin.Context) notify.Publisher {
	if p, exists := c.Get(publisherKey); exists {
		return p.(notify.Publisher)
	}
	return notify.NopPublisher{}
}

func ConfigMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(configKey, cfg)
		c.Next()
	}
}

func GetConfig(c *gin.Context) *config.Config {
	cfg, exists := c.Get(configKey)
	if !exists {
		return nil
	}
	return cfg.(*config.Config)
}

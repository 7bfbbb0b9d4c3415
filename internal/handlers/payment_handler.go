package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/farellandr/gatherly/internal/helpers"
	"github.com/farellandr/gatherly/internal/middleware"
	"github.com/farellandr/gatherly/internal/payments"
	"github.com/farellandr/gatherly/internal/store"
)

const maxWebhookBytes = 64 * 1024

type CheckoutRequest struct {
	EventID     string `json:"eventId" binding:"required"`
	TicketType  string `json:"ticketType" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,min=1,max=20"`
	OrganizerID string `json:"organizerId"`
}

func providerFrom(c *gin.Context) (payments.Provider, bool) {
	provider := middleware.GetPaymentProvider(c)
	if provider == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Payment provider not configured.")
		return nil, false
	}
	return provider, true
}

func CreateConnectAccount(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}
	provider, ok := providerFrom(c)
	if !ok {
		return
	}
	user, ok := currentUser(c, s)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	logger := log.With().Str("username", user.Username).Logger()

	if user.StripeAccountID == "" {
		accountID, err := provider.CreateConnectedAccount(ctx, user.Email)
		if err != nil {
			logger.Error().Err(err).Msg("Could not create payout account")
			helpers.RespondWithError(c, http.StatusBadGateway, "Failed to create payout account.")
			return
		}

		if err := s.Users().SetStripeAccount(ctx, user.ID, accountID); err != nil {
			helpers.RespondWithStoreError(c, err, "User not found.")
			return
		}
		user.StripeAccountID = accountID
		logger.Info().Str("account_id", accountID).Msg("Payout account created")
	}

	url, err := provider.OnboardingLink(ctx, user.StripeAccountID)
	if err != nil {
		logger.Error().Err(err).Msg("Could not create onboarding link")
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to create onboarding link.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accountId": user.StripeAccountID,
		"url":       url,
	})
}

func GetConnectAccount(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}
	provider, ok := providerFrom(c)
	if !ok {
		return
	}
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	if user.StripeAccountID == "" {
		helpers.RespondWithError(c, http.StatusNotFound, "No payout account yet.")
		return
	}

	status, err := provider.AccountStatus(c.Request.Context(), user.StripeAccountID)
	if err != nil {
		log.Error().Err(err).Str("username", user.Username).Msg("Could not load payout account")
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to load payout account.")
		return
	}
	c.JSON(http.StatusOK, status)
}

func CreateCheckoutSession(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	s, ok := storeFrom(c)
	if !ok {
		return
	}
	provider, ok := providerFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	event, err := s.Events().Get(ctx, req.EventID)
	if err != nil {
		helpers.RespondWithStoreError(c, err, "Event not found.")
		return
	}
	if event.Draft {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}
	if req.OrganizerID != "" && req.OrganizerID != event.OrganizerID {
		helpers.RespondWithError(c, http.StatusBadRequest, "Organizer does not match the event.")
		return
	}

	ticketType := event.TicketType(req.TicketType)
	if ticketType == nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket type not found.")
		return
	}
	if ticketType.Remaining() < req.Quantity {
		helpers.RespondWithError(c, http.StatusConflict, "Not enough tickets left.")
		return
	}

	buyer, ok := currentUser(c, s)
	if !ok {
		return
	}

	if ticketType.Price == 0 {
		purchase := completedPurchase{
			SessionID:  "free_" + uuid.New().String(),
			Email:      buyer.Email,
			Username:   buyer.Username,
			EventID:    event.ID,
			TicketType: ticketType.Name,
			Quantity:   req.Quantity,
		}
		ticket, err := fulfillPurchase(c, s, purchase)
		if err != nil {
			respondFulfillmentError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message": "Free tickets issued.",
			"ticket":  ticket,
		})
		return
	}

	organizer, err := s.Users().GetByUsername(ctx, event.OrganizerID)
	if err != nil {
		helpers.RespondWithStoreError(c, err, "Organizer not found.")
		return
	}
	if organizer.StripeAccountID == "" {
		helpers.RespondWithError(c, http.StatusConflict, "Organizer cannot accept payments yet.")
		return
	}

	session, err := provider.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		AccountID:     organizer.StripeAccountID,
		EventID:       event.ID,
		EventTitle:    event.Title,
		TicketType:    ticketType.Name,
		UnitAmount:    ticketType.Price,
		Quantity:      req.Quantity,
		CustomerEmail: buyer.Email,
		Metadata: map[string]string{
			"eventId":     event.ID,
			"ticketType":  ticketType.Name,
			"quantity":    strconv.Itoa(req.Quantity),
			"username":    buyer.Username,
			"organizerId": organizer.Username,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Could not create checkout session")
		helpers.RespondWithError(c, http.StatusBadGateway, "Payment session creation failed.")
		return
	}

	c.JSON(http.StatusOK, session)
}

// StripeWebhook fulfils completed checkouts. Anything but a bad signature or a
// successful fulfilment answers non-2xx so the provider redelivers.
func StripeWebhook(c *gin.Context) {
	provider, ok := providerFrom(c)
	if !ok {
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		helpers.RespondWithError(c, http.StatusRequestEntityTooLarge, "Payload too large.")
		return
	}

	event, err := provider.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid signature.")
			return
		}
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid payload.")
		return
	}

	logger := log.With().Str("stripe_event", event.ID).Str("type", event.Type).Logger()
	if !event.Fulfillable() {
		logger.Debug().Msg("Webhook ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	s, ok := storeFrom(c)
	if !ok {
		return
	}

	sess := event.Session
	quantity, err := strconv.Atoi(sess.Metadata["quantity"])
	if err != nil || quantity < 1 {
		quantity = 1
	}
	purchase := completedPurchase{
		SessionID:   sess.ID,
		Email:       sess.CustomerEmail,
		Username:    sess.Metadata["username"],
		EventID:     sess.Metadata["eventId"],
		TicketType:  sess.Metadata["ticketType"],
		Quantity:    quantity,
		AmountTotal: sess.AmountTotal,
		Currency:    sess.Currency,
	}

	ticket, err := fulfillPurchase(c, s, purchase)
	if err != nil {
		logger.Error().Err(err).Str("session", sess.ID).Msg("Ticket fulfillment failed")
		respondFulfillmentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "ticketId": ticket.ID})
}

func respondFulfillmentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errPurchaserNotFound):
		helpers.RespondWithError(c, http.StatusNotFound, "Purchaser not found.")
	case errors.Is(err, store.ErrNotFound):
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
	default:
		helpers.RespondWithStoreError(c, err, "Event not found.")
	}
}

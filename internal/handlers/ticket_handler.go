package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/farellandr/gatherly/internal/helpers"
	"github.com/farellandr/gatherly/internal/store"
)

func GenerateTicketQR(c *gin.Context) {
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

	ticket := user.Ticket(c.Param("ticketId"))
	if ticket == nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		return
	}
	if ticket.Used {
		helpers.RespondWithError(c, http.StatusForbidden, "Ticket already used.")
		return
	}

	qrData := helpers.GenerateQRCodeData(helpers.TicketRef{
		TicketID: ticket.ID,
		Username: user.Username,
		EventID:  ticket.EventID,
	}, cfg.Auth.JWTSecret)

	qrImage, err := qrcode.Encode(qrData, qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code.")
		return
	}

	c.Data(http.StatusOK, "image/png", qrImage)
}

func CheckInTicket(c *gin.Context) {
	var validationRequest struct {
		QRData string `json:"qr_data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&validationRequest); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid request payload.")
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
	event, ok := ownedEvent(c, s)
	if !ok {
		return
	}

	ref, err := helpers.ParseQRCodeData(validationRequest.QRData, cfg.Auth.JWTSecret)
	if err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "Invalid QR code.")
		return
	}
	if ref.EventID != event.ID {
		helpers.RespondWithError(c, http.StatusBadRequest, "Ticket is for another event.")
		return
	}

	ticket, err := s.Users().MarkTicketUsed(c.Request.Context(), ref.Username, ref.TicketID, time.Now())
	switch {
	case errors.Is(err, store.ErrTicketUsed):
		helpers.RespondWithError(c, http.StatusConflict, "Ticket already used.")
		return
	case err != nil:
		helpers.RespondWithStoreError(c, err, "Ticket not found.")
		return
	}

	log.Info().Str("ticket_id", ticket.ID).Str("event_id", event.ID).Msg("Ticket checked in")
	c.JSON(http.StatusOK, gin.H{
		"message": "Ticket validated successfully.",
		"ticket": gin.H{
			"event_title": event.Title,
			"ticket_type": ticket.TicketType,
			"quantity":    ticket.Quantity,
			"holder":      ref.Username,
		},
	})
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/farellandr/gatherly/internal/middleware"
	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/notify"
	"github.com/farellandr/gatherly/internal/store"
)

var errPurchaserNotFound = errors.New("purchaser not found")

// completedPurchase is a paid (or free) checkout waiting to become a ticket.
type completedPurchase struct {
	SessionID   string
	Email       string
	Username    string
	EventID     string
	TicketType  string
	Quantity    int
	AmountTotal int64
	Currency    string
}

// fulfillPurchase appends the ticket to the purchaser and the purchase record to
// the event. Both writes are keyed by the checkout session id, so replaying a
// purchase returns the ticket issued the first time without writing again.
func fulfillPurchase(c *gin.Context, s store.Store, p completedPurchase) (*models.PurchasedTicket, error) {
	ctx := c.Request.Context()
	logger := log.With().Str("session", p.SessionID).Str("event_id", p.EventID).Logger()

	buyer, err := findPurchaser(ctx, s, p)
	if err != nil {
		return nil, err
	}

	event, err := s.Events().Get(ctx, p.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", p.EventID, err)
	}

	if p.Currency == "" {
		if cfg := middleware.GetConfig(c); cfg != nil {
			p.Currency = cfg.Stripe.Currency
		}
	}

	now := time.Now().UTC()
	ticket := models.PurchasedTicket{
		ID:                uuid.New().String(),
		EventID:           event.ID,
		EventTitle:        event.Title,
		TicketType:        p.TicketType,
		Quantity:          p.Quantity,
		AmountTotal:       p.AmountTotal,
		Currency:          p.Currency,
		CheckoutSessionID: p.SessionID,
		PurchasedAt:       now,
	}

	added, err := s.Users().AppendTicket(ctx, buyer.ID, ticket)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errPurchaserNotFound
		}
		return nil, fmt.Errorf("append ticket: %w", err)
	}

	recorded, err := s.Events().RecordPurchase(ctx, event.ID, models.PurchaseRecord{
		Username:          buyer.Username,
		Email:             buyer.Email,
		TicketType:        p.TicketType,
		Quantity:          p.Quantity,
		AmountTotal:       p.AmountTotal,
		CheckoutSessionID: p.SessionID,
		PurchasedAt:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	if !added {
		logger.Info().Msg("Duplicate fulfillment, ticket already issued")
		buyer, err = s.Users().GetByID(ctx, buyer.ID)
		if err != nil {
			return nil, fmt.Errorf("reload purchaser: %w", err)
		}
		for i := range buyer.Tickets {
			if buyer.Tickets[i].CheckoutSessionID == p.SessionID {
				ticket = buyer.Tickets[i]
				break
			}
		}
	}

	if recorded {
		announcePurchase(c, buyer, event, ticket)
	}
	logger.Info().Str("username", buyer.Username).Bool("new", added).Msg("Tickets fulfilled")
	return &ticket, nil
}

func findPurchaser(ctx context.Context, s store.Store, p completedPurchase) (*models.User, error) {
	if p.Email != "" {
		user, err := s.Users().GetByEmail(ctx, p.Email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if p.Username != "" {
		user, err := s.Users().GetByUsername(ctx, p.Username)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, errPurchaserNotFound
}

// announcePurchase mails the receipt and publishes the sale. Failures are
// logged only; the ticket is already issued.
func announcePurchase(c *gin.Context, buyer *models.User, event *models.Event, ticket models.PurchasedTicket) {
	ctx := c.Request.Context()
	logger := log.With().Str("ticket_id", ticket.ID).Logger()

	err := middleware.GetMailer(c).SendTicketReceipt(ctx, notify.Receipt{
		Name:        buyer.Name,
		Email:       buyer.Email,
		EventTitle:  event.Title,
		EventDate:   event.Date,
		Venue:       event.Venue,
		TicketType:  ticket.TicketType,
		Quantity:    ticket.Quantity,
		AmountTotal: ticket.AmountTotal,
		Currency:    ticket.Currency,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Could not send receipt")
	}

	payload := gin.H{
		"ticketId":    ticket.ID,
		"eventId":     event.ID,
		"organizerId": event.OrganizerID,
		"username":    buyer.Username,
		"ticketType":  ticket.TicketType,
		"quantity":    ticket.Quantity,
		"amountTotal": ticket.AmountTotal,
	}
	if err := middleware.GetPublisher(c).Publish(ctx, notify.SubjectTicketsPurchased, payload); err != nil {
		logger.Warn().Err(err).Msg("Could not publish purchase")
	}
}

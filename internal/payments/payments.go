// Package payments wraps the payment processor used for organizer payouts and
// ticket checkout.
package payments

import (
	"context"
	"errors"
)

const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type Provider interface {
	// CreateConnectedAccount opens a payout account for an organizer.
	CreateConnectedAccount(ctx context.Context, email string) (string, error)
	OnboardingLink(ctx context.Context, accountID string) (string, error)
	AccountStatus(ctx context.Context, accountID string) (*AccountStatus, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// ParseWebhook verifies the signature header against the raw payload.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

type AccountStatus struct {
	AccountID        string `json:"accountId"`
	ChargesEnabled   bool   `json:"chargesEnabled"`
	PayoutsEnabled   bool   `json:"payoutsEnabled"`
	DetailsSubmitted bool   `json:"detailsSubmitted"`
}

type CheckoutRequest struct {
	AccountID     string
	EventID       string
	EventTitle    string
	TicketType    string
	UnitAmount    int64
	Quantity      int
	CustomerEmail string
	Metadata      map[string]string
}

func (r CheckoutRequest) Total() int64 {
	return r.UnitAmount * int64(r.Quantity)
}

type CheckoutSession struct {
	ID             string `json:"sessionId"`
	URL            string `json:"url"`
	ApplicationFee int64  `json:"applicationFee"`
}

type WebhookEvent struct {
	ID      string
	Type    string
	Session *CompletedSession
}

// Fulfillable reports whether the event carries a paid checkout session.
func (e *WebhookEvent) Fulfillable() bool {
	if e.Session == nil {
		return false
	}
	return e.Session.PaymentStatus == "paid" || e.Session.PaymentStatus == "no_payment_required"
}

type CompletedSession struct {
	ID            string
	CustomerEmail string
	AmountTotal   int64
	Currency      string
	PaymentStatus string
	Metadata      map[string]string
}

// ApplicationFee is the platform's cut of total, in minor units, rounded down.
func ApplicationFee(total int64, percent int) int64 {
	if percent <= 0 || total <= 0 {
		return 0
	}
	return total * int64(percent) / 100
}

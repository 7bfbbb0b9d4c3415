package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "12.50 USD", FormatAmount(1250, "usd"))
	assert.Equal(t, "0.05 EUR", FormatAmount(5, "eur"))
	assert.Equal(t, "-3.00 USD", FormatAmount(-300, "usd"))
}

func TestRenderReceipt(t *testing.T) {
	subject, plain, html := renderReceipt(Receipt{
		Name:        "Ana",
		EventTitle:  "Launch Party",
		EventDate:   "2026-11-01",
		Venue:       "The Hall",
		TicketType:  "VIP",
		Quantity:    2,
		AmountTotal: 9000,
		Currency:    "usd",
	})

	assert.Equal(t, "Your tickets for Launch Party", subject)
	assert.Contains(t, plain, "2 x VIP")
	assert.Contains(t, plain, "90.00 USD")
	assert.Contains(t, html, "<strong>Launch Party</strong>")
}

func TestNopImplementations(t *testing.T) {
	assert.NoError(t, LogMailer{}.SendTicketReceipt(context.Background(), Receipt{Email: "a@b.c"}))
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), SubjectEventsPublished, map[string]string{"id": "x"}))
}

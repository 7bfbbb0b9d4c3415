package models

import "time"

// TicketType is a purchasable tier defined on an event.
type TicketType struct {
	Name     string `json:"name" bson:"name" binding:"required"`
	Price    int64  `json:"price" bson:"price" binding:"min=0"`
	Quantity int    `json:"quantity" bson:"quantity" binding:"required,min=1"`
	Sold     int    `json:"sold" bson:"sold"`
}

func (t TicketType) Remaining() int {
	if t.Sold >= t.Quantity {
		return 0
	}
	return t.Quantity - t.Sold
}

// PurchasedTicket is embedded in the purchasing user's document.
type PurchasedTicket struct {
	ID                string     `json:"id" bson:"id"`
	EventID           string     `json:"eventId" bson:"eventId"`
	EventTitle        string     `json:"eventTitle" bson:"eventTitle"`
	TicketType        string     `json:"ticketType" bson:"ticketType"`
	Quantity          int        `json:"quantity" bson:"quantity"`
	AmountTotal       int64      `json:"amountTotal" bson:"amountTotal"`
	Currency          string     `json:"currency" bson:"currency"`
	CheckoutSessionID string     `json:"checkoutSessionId" bson:"checkoutSessionId"`
	PurchasedAt       time.Time  `json:"purchasedAt" bson:"purchasedAt"`
	Used              bool       `json:"used" bson:"used"`
	UsedAt            *time.Time `json:"usedAt,omitempty" bson:"usedAt,omitempty"`
}

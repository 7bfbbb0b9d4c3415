package models

import "time"

// PurchaseRecord is embedded in the event document.
type PurchaseRecord struct {
	Username          string    `json:"username" bson:"username"`
	Email             string    `json:"email" bson:"email"`
	TicketType        string    `json:"ticketType" bson:"ticketType"`
	Quantity          int       `json:"quantity" bson:"quantity"`
	AmountTotal       int64     `json:"amountTotal" bson:"amountTotal"`
	CheckoutSessionID string    `json:"checkoutSessionId" bson:"checkoutSessionId"`
	PurchasedAt       time.Time `json:"purchasedAt" bson:"purchasedAt"`
}

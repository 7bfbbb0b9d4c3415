package models

import (
	"time"
)

type Event struct {
	ID          string           `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	Title       string           `json:"title" bson:"title" gorm:"not null"`
	Description string           `json:"description" bson:"description"`
	Category    string           `json:"category,omitempty" bson:"category,omitempty" gorm:"index"`
	Date        string           `json:"date" bson:"date"`
	StartTime   string           `json:"startTime" bson:"startTime"`
	EndTime     string           `json:"endTime" bson:"endTime"`
	Venue       string           `json:"venue" bson:"venue"`
	Address     string           `json:"address,omitempty" bson:"address,omitempty"`
	City        string           `json:"city,omitempty" bson:"city,omitempty" gorm:"index"`
	Image       string           `json:"image,omitempty" bson:"image,omitempty"`
	TicketTypes []TicketType     `json:"ticketTypes" bson:"ticketTypes" gorm:"type:text;serializer:json"`
	Purchases   []PurchaseRecord `json:"purchases,omitempty" bson:"purchases" gorm:"type:text;serializer:json"`
	Draft       bool             `json:"draft" bson:"draft" gorm:"index"`
	OrganizerID string           `json:"organizerId" bson:"organizerId" gorm:"index;not null"`
	CreatedAt   time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt" bson:"updatedAt"`
}

func (event *Event) TicketType(name string) *TicketType {
	for i := range event.TicketTypes {
		if event.TicketTypes[i].Name == name {
			return &event.TicketTypes[i]
		}
	}
	return nil
}

func (event *Event) HasCheckoutSession(sessionID string) bool {
	for _, p := range event.Purchases {
		if p.CheckoutSessionID == sessionID {
			return true
		}
	}
	return false
}

// Public strips purchase records, which only the owner may see.
func (event Event) Public() Event {
	event.Purchases = nil
	return event
}

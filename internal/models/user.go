package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID              string            `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(36)"`
	Name            string            `json:"name" bson:"name" gorm:"not null"`
	Username        string            `json:"username" bson:"username" gorm:"uniqueIndex;not null"`
	Email           string            `json:"email" bson:"email" gorm:"uniqueIndex;not null"`
	Password        string            `json:"-" bson:"password" gorm:"not null"`
	Role            string            `json:"role" bson:"role" gorm:"not null;default:'user'"`
	Organization    string            `json:"organization,omitempty" bson:"organization,omitempty"`
	Bio             string            `json:"bio,omitempty" bson:"bio,omitempty"`
	Website         string            `json:"website,omitempty" bson:"website,omitempty"`
	Phone           string            `json:"phone,omitempty" bson:"phone,omitempty"`
	ProfileImage    string            `json:"profileImage,omitempty" bson:"profileImage,omitempty"`
	Followers       []string          `json:"followers" bson:"followers" gorm:"type:text;serializer:json"`
	Following       []string          `json:"following" bson:"following" gorm:"type:text;serializer:json"`
	StripeAccountID string            `json:"stripeAccountId,omitempty" bson:"stripeAccountId,omitempty"`
	Tickets         []PurchasedTicket `json:"tickets" bson:"tickets" gorm:"type:text;serializer:json"`
	CreatedAt       time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt" bson:"updatedAt"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	return
}

func (user *User) IsOrganizer() bool {
	return user.Role == RoleOrganizer
}

// Ticket returns the purchased ticket with the given id, or nil.
func (user *User) Ticket(id string) *PurchasedTicket {
	for i := range user.Tickets {
		if user.Tickets[i].ID == id {
			return &user.Tickets[i]
		}
	}
	return nil
}

func (user *User) HasCheckoutSession(sessionID string) bool {
	for _, t := range user.Tickets {
		if t.CheckoutSessionID == sessionID {
			return true
		}
	}
	return false
}

// PublicProfile is what other users see.
type PublicProfile struct {
	Username       string `json:"username"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	Organization   string `json:"organization,omitempty"`
	Bio            string `json:"bio,omitempty"`
	Website        string `json:"website,omitempty"`
	ProfileImage   string `json:"profileImage,omitempty"`
	FollowerCount  int    `json:"followerCount"`
	FollowingCount int    `json:"followingCount"`
}

func (user *User) Public() PublicProfile {
	return PublicProfile{
		Username:       user.Username,
		Name:           user.Name,
		Role:           user.Role,
		Organization:   user.Organization,
		Bio:            user.Bio,
		Website:        user.Website,
		ProfileImage:   user.ProfileImage,
		FollowerCount:  len(user.Followers),
		FollowingCount: len(user.Following),
	}
}

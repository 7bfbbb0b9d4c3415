// Package store defines the document repositories the API reads and writes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/farellandr/gatherly/internal/models"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrDuplicate  = errors.New("document already exists")
	ErrTicketUsed = errors.New("ticket already used")
)

type Store interface {
	Users() UserRepository
	Events() EventRepository
	Close(ctx context.Context) error
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdateProfile sets the non-nil fields of the update and nothing else.
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error
	SetStripeAccount(ctx context.Context, userID, accountID string) error
	Delete(ctx context.Context, username string) error
	Search(ctx context.Context, query string, limit int) ([]models.User, error)
	// Follow adds follower to followee's followers and followee to follower's
	// following. Repeating it leaves both lists unchanged.
	Follow(ctx context.Context, follower, followee string) error
	Unfollow(ctx context.Context, follower, followee string) error
	// AppendTicket pushes a ticket unless one with the same checkout session id
	// is already present. It reports whether the ticket was added.
	AppendTicket(ctx context.Context, userID string, ticket models.PurchasedTicket) (bool, error)
	// MarkTicketUsed flips the used flag of one unused ticket. It returns
	// ErrTicketUsed when the ticket was already checked in.
	MarkTicketUsed(ctx context.Context, username, ticketID string, at time.Time) (*models.PurchasedTicket, error)
}

// ProfileUpdate carries the profile fields a user may edit. Nil means keep.
type ProfileUpdate struct {
	Name         *string
	Bio          *string
	Phone        *string
	Organization *string
	Website      *string
	ProfileImage *string
}

type EventRepository interface {
	// Create inserts a new event and returns ErrDuplicate when the id is taken.
	Create(ctx context.Context, event *models.Event) error
	Get(ctx context.Context, id string) (*models.Event, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter EventFilter) ([]models.Event, int64, error)
	// UpdateDetails loads the event, lets mutate edit it and writes back the
	// organizer-editable fields only. Purchases, image and owner are never
	// written. An error from mutate aborts the update and is returned as is.
	UpdateDetails(ctx context.Context, id string, mutate func(*models.Event) error) (*models.Event, error)
	// SetDraft reports whether the flag actually changed.
	SetDraft(ctx context.Context, id string, draft bool) (bool, error)
	SetImage(ctx context.Context, id, image string) error
	// RecordPurchase appends the record and increments the sold counter of its
	// ticket type, once per checkout session id.
	RecordPurchase(ctx context.Context, eventID string, record models.PurchaseRecord) (bool, error)
}

type EventFilter struct {
	OrganizerID   string
	IncludeDrafts bool
	City          string
	Category      string
	Query         string
	Page          int
	Limit         int
}

func (f EventFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

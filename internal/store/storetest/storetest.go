// Package storetest holds the behaviour every store.Store backend must share.
// Backend test files call Run with a constructor for an empty store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/store"
)

// Run executes the shared repository tests, each against a fresh store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateUserRejectsDuplicates", testCreateUserRejectsDuplicates},
		{"GetMissingReturnsNotFound", testGetMissingReturnsNotFound},
		{"FollowIsIdempotent", testFollowIsIdempotent},
		{"FollowUnknownUser", testFollowUnknownUser},
		{"AppendTicketOncePerSession", testAppendTicketOncePerSession},
		{"MarkTicketUsedOnce", testMarkTicketUsedOnce},
		{"StaleUserCopyKeepsTickets", testStaleUserCopyKeepsTickets},
		{"CreateEventRejectsDuplicateID", testCreateEventRejectsDuplicateID},
		{"RecordPurchaseIncrementsSoldOnce", testRecordPurchaseIncrementsSoldOnce},
		{"DraftAndImageKeepPurchases", testDraftAndImageKeepPurchases},
		{"UpdateDetailsKeepsPurchases", testUpdateDetailsKeepsPurchases},
		{"ConcurrentPurchasesAreAllCounted", testConcurrentPurchasesAreAllCounted},
		{"ListFiltersAndPaginates", testListFiltersAndPaginates},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func createUser(t *testing.T, s store.Store, username string) *models.User {
	t.Helper()
	user := &models.User{
		ID:       "id-" + username,
		Name:     username,
		Username: username,
		Email:    username + "@example.com",
		Password: "hash",
		Role:     models.RoleUser,
	}
	require.NoError(t, s.Users().Create(context.Background(), user))
	return user
}

func createEvent(t *testing.T, s store.Store, id string) *models.Event {
	t.Helper()
	event := &models.Event{
		ID:          id,
		Title:       "Launch party",
		OrganizerID: "olive",
		Draft:       true,
		TicketTypes: []models.TicketType{{Name: "General", Price: 2500, Quantity: 10}},
	}
	require.NoError(t, s.Events().Create(context.Background(), event))
	return event
}

func ticket(id, sessionID string) models.PurchasedTicket {
	return models.PurchasedTicket{
		ID:                id,
		EventID:           "launch",
		TicketType:        "General",
		Quantity:          2,
		CheckoutSessionID: sessionID,
		PurchasedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
}

func purchase(sessionID string, quantity int) models.PurchaseRecord {
	return models.PurchaseRecord{
		Username:          "ana",
		TicketType:        "General",
		Quantity:          quantity,
		CheckoutSessionID: sessionID,
		PurchasedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testCreateUserRejectsDuplicates(t *testing.T, s store.Store) {
	ctx := context.Background()
	createUser(t, s, "ana")

	err := s.Users().Create(ctx, &models.User{ID: "id-2", Name: "Ana", Username: "ana", Email: "other@example.com", Password: "x"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	err = s.Users().Create(ctx, &models.User{ID: "id-3", Name: "Ana", Username: "ana2", Email: "ana@example.com", Password: "x"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func testGetMissingReturnsNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Users().GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Events().Get(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.Events().Delete(ctx, "nope"), store.ErrNotFound)
	assert.ErrorIs(t, s.Users().Delete(ctx, "nobody"), store.ErrNotFound)

	bio := "hello"
	assert.ErrorIs(t, s.Users().UpdateProfile(ctx, "missing", store.ProfileUpdate{Bio: &bio}), store.ErrNotFound)
	assert.ErrorIs(t, s.Users().SetStripeAccount(ctx, "missing", "acct_1"), store.ErrNotFound)
	_, err = s.Users().MarkTicketUsed(ctx, "nobody", "t-1", time.Now())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Events().SetDraft(ctx, "nope", false)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Events().SetImage(ctx, "nope", "/uploads/x.png"), store.ErrNotFound)
	_, err = s.Events().UpdateDetails(ctx, "nope", func(*models.Event) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testFollowIsIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	createUser(t, s, "ana")
	createUser(t, s, "ben")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Users().Follow(ctx, "ana", "ben"))
	}

	ana, err := s.Users().GetByUsername(ctx, "ana")
	require.NoError(t, err)
	ben, err := s.Users().GetByUsername(ctx, "ben")
	require.NoError(t, err)
	assert.Equal(t, []string{"ben"}, ana.Following)
	assert.Equal(t, []string{"ana"}, ben.Followers)
	assert.Empty(t, ana.Followers)

	require.NoError(t, s.Users().Unfollow(ctx, "ana", "ben"))
	ana, _ = s.Users().GetByUsername(ctx, "ana")
	ben, _ = s.Users().GetByUsername(ctx, "ben")
	assert.Empty(t, ana.Following)
	assert.Empty(t, ben.Followers)
}

func testFollowUnknownUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	createUser(t, s, "ana")

	assert.ErrorIs(t, s.Users().Follow(ctx, "ana", "ghost"), store.ErrNotFound)
	assert.ErrorIs(t, s.Users().Follow(ctx, "ghost", "ana"), store.ErrNotFound)

	ana, err := s.Users().GetByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.Empty(t, ana.Following)
	assert.Empty(t, ana.Followers)
}

func testAppendTicketOncePerSession(t *testing.T, s store.Store) {
	ctx := context.Background()
	ana := createUser(t, s, "ana")

	added, err := s.Users().AppendTicket(ctx, ana.ID, ticket("t-1", "cs_1"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Users().AppendTicket(ctx, ana.ID, ticket("t-2", "cs_1"))
	require.NoError(t, err)
	assert.False(t, added)

	got, err := s.Users().GetByID(ctx, ana.ID)
	require.NoError(t, err)
	require.Len(t, got.Tickets, 1)
	assert.Equal(t, "t-1", got.Tickets[0].ID)

	_, err = s.Users().AppendTicket(ctx, "missing", ticket("t-3", "cs_3"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testMarkTicketUsedOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	ana := createUser(t, s, "ana")
	_, err := s.Users().AppendTicket(ctx, ana.ID, ticket("t-1", "cs_1"))
	require.NoError(t, err)

	at := time.Date(2026, 12, 1, 19, 30, 0, 0, time.UTC)
	used, err := s.Users().MarkTicketUsed(ctx, "ana", "t-1", at)
	require.NoError(t, err)
	assert.True(t, used.Used)
	require.NotNil(t, used.UsedAt)
	assert.True(t, at.Equal(*used.UsedAt))

	_, err = s.Users().MarkTicketUsed(ctx, "ana", "t-1", at)
	assert.ErrorIs(t, err, store.ErrTicketUsed)

	_, err = s.Users().MarkTicketUsed(ctx, "ana", "t-unknown", at)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Users().GetByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.True(t, got.Ticket("t-1").Used)
}

// A copy read before a purchase must not be able to erase it through the
// narrow profile and check-in writes.
func testStaleUserCopyKeepsTickets(t *testing.T, s store.Store) {
	ctx := context.Background()
	createUser(t, s, "ana")
	stale, err := s.Users().GetByUsername(ctx, "ana")
	require.NoError(t, err)

	_, err = s.Users().AppendTicket(ctx, stale.ID, ticket("t-1", "cs_1"))
	require.NoError(t, err)
	_, err = s.Users().AppendTicket(ctx, stale.ID, ticket("t-2", "cs_2"))
	require.NoError(t, err)

	bio := "hello"
	image := "/uploads/avatars/ana.png"
	require.NoError(t, s.Users().UpdateProfile(ctx, stale.ID, store.ProfileUpdate{Bio: &bio, ProfileImage: &image}))
	require.NoError(t, s.Users().SetStripeAccount(ctx, stale.ID, "acct_1"))
	_, err = s.Users().MarkTicketUsed(ctx, "ana", "t-2", time.Now())
	require.NoError(t, err)

	got, err := s.Users().GetByID(ctx, stale.ID)
	require.NoError(t, err)
	require.Len(t, got.Tickets, 2)
	assert.False(t, got.Ticket("t-1").Used)
	assert.True(t, got.Ticket("t-2").Used)
	assert.Equal(t, "hello", got.Bio)
	assert.Equal(t, image, got.ProfileImage)
	assert.Equal(t, "acct_1", got.StripeAccountID)
	assert.Equal(t, stale.Name, got.Name)
	assert.Empty(t, stale.Tickets)
}

func testCreateEventRejectsDuplicateID(t *testing.T, s store.Store) {
	ctx := context.Background()
	createEvent(t, s, "launch")
	_, err := s.Events().RecordPurchase(ctx, "launch", purchase("cs_1", 1))
	require.NoError(t, err)

	again := &models.Event{ID: "launch", Title: "Takeover", OrganizerID: "paul"}
	assert.ErrorIs(t, s.Events().Create(ctx, again), store.ErrDuplicate)

	got, err := s.Events().Get(ctx, "launch")
	require.NoError(t, err)
	assert.Equal(t, "olive", got.OrganizerID)
	assert.Equal(t, "Launch party", got.Title)
	assert.Len(t, got.Purchases, 1)
}

func testRecordPurchaseIncrementsSoldOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	createEvent(t, s, "launch")

	record := purchase("cs_1", 3)
	added, err := s.Events().RecordPurchase(ctx, "launch", record)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Events().RecordPurchase(ctx, "launch", record)
	require.NoError(t, err)
	assert.False(t, added)

	got, err := s.Events().Get(ctx, "launch")
	require.NoError(t, err)
	assert.Equal(t, 3, got.TicketType("General").Sold)
	assert.Len(t, got.Purchases, 1)

	_, err = s.Events().RecordPurchase(ctx, "missing", purchase("cs_2", 1))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDraftAndImageKeepPurchases(t *testing.T, s store.Store) {
	ctx := context.Background()
	createEvent(t, s, "launch")
	stale, err := s.Events().Get(ctx, "launch")
	require.NoError(t, err)

	_, err = s.Events().RecordPurchase(ctx, "launch", purchase("cs_1", 3))
	require.NoError(t, err)

	changed, err := s.Events().SetDraft(ctx, stale.ID, false)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.Events().SetDraft(ctx, stale.ID, false)
	require.NoError(t, err)
	assert.False(t, changed)
	require.NoError(t, s.Events().SetImage(ctx, stale.ID, "/uploads/events/launch.png"))

	got, err := s.Events().Get(ctx, "launch")
	require.NoError(t, err)
	assert.False(t, got.Draft)
	assert.Equal(t, "/uploads/events/launch.png", got.Image)
	assert.Len(t, got.Purchases, 1)
	assert.Equal(t, 3, got.TicketType("General").Sold)
}

func testUpdateDetailsKeepsPurchases(t *testing.T, s store.Store) {
	ctx := context.Background()
	createEvent(t, s, "launch")
	_, err := s.Events().RecordPurchase(ctx, "launch", purchase("cs_1", 2))
	require.NoError(t, err)
	require.NoError(t, s.Events().SetImage(ctx, "launch", "/uploads/events/launch.png"))

	updated, err := s.Events().UpdateDetails(ctx, "launch", func(e *models.Event) error {
		e.Title = "Launch night"
		e.Venue = "Rooftop"
		e.TicketTypes[0].Quantity = 20
		e.Purchases = nil
		e.Image = ""
		e.OrganizerID = "paul"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Launch night", updated.Title)

	got, err := s.Events().Get(ctx, "launch")
	require.NoError(t, err)
	assert.Equal(t, "Launch night", got.Title)
	assert.Equal(t, "Rooftop", got.Venue)
	assert.Equal(t, 20, got.TicketType("General").Quantity)
	assert.Equal(t, 2, got.TicketType("General").Sold)
	assert.Len(t, got.Purchases, 1)
	assert.Equal(t, "/uploads/events/launch.png", got.Image)
	assert.Equal(t, "olive", got.OrganizerID)

	refused := errors.New("refused")
	_, err = s.Events().UpdateDetails(ctx, "launch", func(e *models.Event) error {
		e.Title = "Never stored"
		return refused
	})
	assert.ErrorIs(t, err, refused)

	got, err = s.Events().Get(ctx, "launch")
	require.NoError(t, err)
	assert.Equal(t, "Launch night", got.Title)
}

func testConcurrentPurchasesAreAllCounted(t *testing.T, s store.Store) {
	ctx := context.Background()
	createEvent(t, s, "launch")

	const buyers = 8
	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := s.Events().RecordPurchase(ctx, "launch", purchase(fmt.Sprintf("cs_%d", i), 1))
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			// Edits may lose the race and give up; sales must never be lost.
			_, _ = s.Events().UpdateDetails(ctx, "launch", func(e *models.Event) error {
				e.Title = fmt.Sprintf("Launch party %d", i)
				return nil
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Events().Get(ctx, "launch")
	require.NoError(t, err)
	assert.Len(t, got.Purchases, buyers)
	assert.Equal(t, buyers, got.TicketType("General").Sold)
}

func testListFiltersAndPaginates(t *testing.T, s store.Store) {
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	events := []models.Event{
		{ID: "a", Title: "Jazz night", City: "Lisbon", Category: "music", OrganizerID: "olive"},
		{ID: "b", Title: "Rock fest", City: "Porto", Category: "music", OrganizerID: "olive"},
		{ID: "c", Title: "Secret jazz", City: "Lisbon", Category: "music", OrganizerID: "olive", Draft: true},
		{ID: "d", Title: "Tech talk", City: "Lisbon", Category: "tech", OrganizerID: "paul"},
	}
	for i := range events {
		events[i].CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Events().Create(ctx, &events[i]))
	}
	_, err := s.Events().RecordPurchase(ctx, "a", purchase("cs_1", 1))
	require.NoError(t, err)

	list, total, err := s.Events().List(ctx, store.EventFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 3)
	assert.Equal(t, "d", list[0].ID, "newest first")
	for _, e := range list {
		assert.False(t, e.Draft)
		assert.Empty(t, e.Purchases)
	}

	_, total, err = s.Events().List(ctx, store.EventFilter{City: "lisbon", Query: "JAZZ", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = s.Events().List(ctx, store.EventFilter{Category: "tech", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = s.Events().List(ctx, store.EventFilter{OrganizerID: "olive", IncludeDrafts: true, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	list, total, err = s.Events().List(ctx, store.EventFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 1)
}

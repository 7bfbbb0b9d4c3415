package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/farellandr/gatherly/config"
	"github.com/farellandr/gatherly/internal/helpers"
	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/notify"
	"github.com/farellandr/gatherly/internal/payments"
	"github.com/farellandr/gatherly/internal/ratelimit"
	"github.com/farellandr/gatherly/internal/store/gormstore"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testWebhookSecret = "whsec_test_secret"
)

// fakeProvider answers outbound Stripe calls locally and keeps the real
// webhook verification.
type fakeProvider struct {
	*payments.Stripe

	mu        sync.Mutex
	accounts  int
	checkouts []payments.CheckoutRequest
}

func (f *fakeProvider) CreateConnectedAccount(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts++
	return "acct_test_" + strconv.Itoa(f.accounts), nil
}

func (f *fakeProvider) OnboardingLink(_ context.Context, accountID string) (string, error) {
	return "https://connect.stripe.test/onboarding/" + accountID, nil
}

func (f *fakeProvider) AccountStatus(_ context.Context, accountID string) (*payments.AccountStatus, error) {
	return &payments.AccountStatus{AccountID: accountID, DetailsSubmitted: true}, nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, req)
	id := fmt.Sprintf("cs_test_%d", len(f.checkouts))
	return &payments.CheckoutSession{
		ID:             id,
		URL:            "https://checkout.stripe.test/" + id,
		ApplicationFee: payments.ApplicationFee(req.Total(), 5),
	}, nil
}

type recordingMailer struct {
	mu       sync.Mutex
	receipts []notify.Receipt
}

func (m *recordingMailer) SendTicketReceipt(_ context.Context, r notify.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = append(m.receipts, r)
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

type testEnv struct {
	t         *testing.T
	cfg       *config.Config
	router    *gin.Engine
	store     *gormstore.Store
	provider  *fakeProvider
	mailer    *recordingMailer
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	s, err := gormstore.OpenSQLite(filepath.Join(dir, "gatherly.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	cfg := &config.Config{
		Auth:      config.AuthConfig{JWTSecret: testJWTSecret, TokenTTL: time.Hour},
		Stripe:    config.StripeConfig{WebhookSecret: testWebhookSecret, Currency: "usd", PlatformFeePercent: 5},
		Upload:    config.UploadConfig{Dir: filepath.Join(dir, "uploads"), PublicPath: "/uploads"},
		RateLimit: config.RateLimitConfig{Window: time.Minute, MaxRequests: 100},
	}

	env := &testEnv{
		t:         t,
		cfg:       cfg,
		store:     s,
		provider:  &fakeProvider{Stripe: payments.NewStripe(payments.StripeConfig{WebhookSecret: testWebhookSecret, Currency: "usd"})},
		mailer:    &recordingMailer{},
		publisher: &recordingPublisher{},
	}
	env.router = NewRouter(Dependencies{
		Config:    cfg,
		Store:     s,
		Payments:  env.provider,
		Mailer:    env.mailer,
		Publisher: env.publisher,
		Limiter:   ratelimit.NewMemoryLimiter(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests),
	})
	return env
}

func (e *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signup registers a user and returns a bearer token for it.
func (e *testEnv) signup(username, role string) string {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/auth/register", gin.H{
		"name":     username,
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
		"role":     role,
	}, "")
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/auth/login", gin.H{"login": username, "password": "secret123"}, "")
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	decode(e.t, w, &resp)
	return resp.Token
}

func (e *testEnv) createEvent(token, id string, ticketTypes []models.TicketType) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/events", gin.H{
		"id":          id,
		"title":       "Event " + id,
		"date":        "2026-12-01",
		"startTime":   "19:00",
		"endTime":     "23:00",
		"venue":       "Main hall",
		"city":        "Lisbon",
		"category":    "music",
		"ticketTypes": ticketTypes,
	}, token)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
}

func (e *testEnv) publish(token, id string) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/events/"+id+"/publish", nil, token)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
}

func (e *testEnv) user(username string) *models.User {
	e.t.Helper()
	u, err := e.store.Users().GetByUsername(context.Background(), username)
	require.NoError(e.t, err)
	return u
}

func (e *testEnv) event(id string) *models.Event {
	e.t.Helper()
	ev, err := e.store.Events().Get(context.Background(), id)
	require.NoError(e.t, err)
	return ev
}

func (e *testEnv) webhook(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func signedHeader(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  secret,
	}).Header
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func checkoutCompleted(sessionID, email, eventID, ticketType string, quantity int, amount int64) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_%s",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": %q,
      "object": "checkout.session",
      "amount_total": %d,
      "currency": "usd",
      "payment_status": "paid",
      "customer_details": {"email": %q},
      "metadata": {"eventId": %q, "ticketType": %q, "quantity": "%d"}
    }
  }
}`, sessionID, sessionID, amount, email, eventID, ticketType, quantity))
}

var generalAdmission = []models.TicketType{{Name: "General", Price: 2500, Quantity: 5}}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("ana", "")

	w := env.do(http.MethodPost, "/api/auth/register", gin.H{
		"name": "Other", "username": "ana", "email": "other@example.com", "password": "secret123",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/api/auth/register", gin.H{"username": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/auth/login", gin.H{"login": "ana@example.com", "password": "secret123"}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/auth/login", gin.H{"login": "ana", "password": "wrong-pass"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/auth/login", gin.H{"login": "nobody", "password": "secret123"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var me map[string]any
	decode(t, w, &me)
	assert.Equal(t, "ana", me["username"])
	assert.Equal(t, models.RoleUser, me["role"])
	assert.NotContains(t, me, "password")

	w = env.do(http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginIsRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.router = NewRouter(Dependencies{
		Config:    env.cfg,
		Store:     env.store,
		Payments:  env.provider,
		Mailer:    env.mailer,
		Publisher: env.publisher,
		Limiter:   ratelimit.NewMemoryLimiter(time.Minute, 2),
	})

	body := gin.H{"login": "nobody", "password": "secret123"}
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/auth/login", body, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/auth/login", body, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/api/auth/login", body, "").Code)
}

func TestFollowHoldsEachUsernameOnce(t *testing.T) {
	env := newTestEnv(t)
	ana := env.signup("ana", "")
	env.signup("ben", "")

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodPost, "/api/users/ben/follow", nil, ana)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	assert.Equal(t, []string{"ben"}, env.user("ana").Following)
	assert.Equal(t, []string{"ana"}, env.user("ben").Followers)
	assert.Equal(t, 2, env.publisher.count(notify.SubjectUsersFollowed))

	w := env.do(http.MethodGet, "/api/users/ben/followers", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var followers struct {
		Followers []string `json:"followers"`
		Count     int      `json:"count"`
	}
	decode(t, w, &followers)
	assert.Equal(t, []string{"ana"}, followers.Followers)
	assert.Equal(t, 1, followers.Count)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/users/ana/follow", nil, ana).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/users/ghost/follow", nil, ana).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/users/ben/follow", nil, "").Code)

	w = env.do(http.MethodDelete, "/api/users/ben/follow", nil, ana)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.user("ana").Following)
	assert.Empty(t, env.user("ben").Followers)
}

func TestPublicProfileHidesPrivateFields(t *testing.T) {
	env := newTestEnv(t)
	env.signup("ana", "")

	w := env.do(http.MethodGet, "/api/users/ana", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var profile map[string]any
	decode(t, w, &profile)
	assert.Equal(t, "ana", profile["username"])
	assert.NotContains(t, profile, "password")
	assert.NotContains(t, profile, "tickets")
	assert.NotContains(t, profile, "email")

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/users/ghost", nil, "").Code)

	w = env.do(http.MethodGet, "/api/users?q=an", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var search struct {
		Users []map[string]any `json:"users"`
	}
	decode(t, w, &search)
	require.Len(t, search.Users, 1)
	assert.Equal(t, "ana", search.Users[0]["username"])
}

func TestUpdateProfileIgnoresOrganizerFieldsForUsers(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("ana", "")

	w := env.do(http.MethodPut, "/api/users/me", gin.H{"bio": "hello", "organization": "Acme"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ana := env.user("ana")
	assert.Equal(t, "hello", ana.Bio)
	assert.Empty(t, ana.Organization)
}

func TestCreateEvent(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)
	paul := env.signup("paul", models.RoleOrganizer)
	ana := env.signup("ana", "")

	w := env.do(http.MethodPost, "/api/events", gin.H{"title": "No id", "date": "2026-12-01", "venue": "Hall"}, olive)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/events", gin.H{"id": "bad", "title": "Bad date", "date": "01/12/2026", "venue": "Hall"}, olive)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/events", gin.H{"id": "x", "title": "Nope", "date": "2026-12-01", "venue": "Hall"}, ana)
	assert.Equal(t, http.StatusForbidden, w.Code)

	env.createEvent(olive, "launch", generalAdmission)
	assert.True(t, env.event("launch").Draft)
	assert.Equal(t, "olive", env.event("launch").OrganizerID)

	body := gin.H{"id": "launch", "title": "Again", "date": "2026-12-01", "venue": "Hall"}
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/events", body, olive).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/api/events", body, paul).Code)
}

func TestGetEvent(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)
	ana := env.signup("ana", "")

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/events/missing", nil, "").Code)

	env.createEvent(olive, "launch", generalAdmission)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/events/launch", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/events/launch", nil, ana).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/events/launch", nil, olive).Code)

	env.publish(olive, "launch")
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/events/launch", nil, "").Code)
	assert.Equal(t, 1, env.publisher.count(notify.SubjectEventsPublished))
}

func TestListingExcludesDrafts(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)

	env.createEvent(olive, "public", generalAdmission)
	env.createEvent(olive, "hidden", generalAdmission)
	env.publish(olive, "public")

	w := env.do(http.MethodGet, "/api/events", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Events []models.Event `json:"events"`
		Total  int64          `json:"total"`
		Page   int            `json:"page"`
		Limit  int            `json:"limit"`
	}
	decode(t, w, &listing)
	require.Len(t, listing.Events, 1)
	assert.Equal(t, "public", listing.Events[0].ID)
	assert.Equal(t, int64(1), listing.Total)
	assert.Equal(t, 1, listing.Page)
	assert.Equal(t, 10, listing.Limit)

	w = env.do(http.MethodGet, "/api/users/olive/events", nil, "")
	decode(t, w, &listing)
	assert.Equal(t, int64(1), listing.Total)

	w = env.do(http.MethodGet, "/api/users/olive/events", nil, olive)
	decode(t, w, &listing)
	assert.Equal(t, int64(2), listing.Total)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/events?page=zero", nil, "").Code)
}

func TestUpdateAndDeleteEvent(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)
	paul := env.signup("paul", models.RoleOrganizer)
	env.createEvent(olive, "launch", generalAdmission)

	update := gin.H{"title": "Launch party", "date": "2026-12-02", "venue": "Rooftop"}
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPut, "/api/events/launch", update, paul).Code)

	w := env.do(http.MethodPut, "/api/events/launch", update, olive)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ev := env.event("launch")
	assert.Equal(t, "Launch party", ev.Title)
	assert.Equal(t, "Rooftop", ev.Venue)
	require.Len(t, ev.TicketTypes, 1)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodDelete, "/api/events/launch", nil, paul).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/api/events/launch", nil, olive).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/events/launch", nil, olive).Code)
}

func TestConnectAccountAndCheckout(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)
	ana := env.signup("ana", "")
	env.createEvent(olive, "launch", generalAdmission)

	checkout := gin.H{"eventId": "launch", "ticketType": "General", "quantity": 2}
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/payments/checkout-session", checkout, ana).Code)

	env.publish(olive, "launch")
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/payments/checkout-session", checkout, ana).Code)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/api/payments/connect-account", nil, ana).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/payments/connect-account", nil, olive).Code)

	w := env.do(http.MethodPost, "/api/payments/connect-account", nil, olive)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var link struct {
		AccountID string `json:"accountId"`
		URL       string `json:"url"`
	}
	decode(t, w, &link)
	assert.Equal(t, "acct_test_1", link.AccountID)
	assert.Contains(t, link.URL, "acct_test_1")

	// A second call reuses the stored account.
	env.do(http.MethodPost, "/api/payments/connect-account", nil, olive)
	assert.Equal(t, 1, env.provider.accounts)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/payments/connect-account", nil, olive).Code)

	w = env.do(http.MethodPost, "/api/payments/checkout-session", checkout, ana)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var session payments.CheckoutSession
	decode(t, w, &session)
	assert.Equal(t, "cs_test_1", session.ID)

	require.Len(t, env.provider.checkouts, 1)
	req := env.provider.checkouts[0]
	assert.Equal(t, "acct_test_1", req.AccountID)
	assert.Equal(t, int64(2500), req.UnitAmount)
	assert.Equal(t, 2, req.Quantity)
	assert.Equal(t, "ana@example.com", req.CustomerEmail)
	assert.Equal(t, "ana", req.Metadata["username"])
	assert.Equal(t, "olive", req.Metadata["organizerId"])

	tooMany := gin.H{"eventId": "launch", "ticketType": "General", "quantity": 6}
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/payments/checkout-session", tooMany, ana).Code)

	unknown := gin.H{"eventId": "launch", "ticketType": "VIP", "quantity": 1}
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/payments/checkout-session", unknown, ana).Code)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)
	env.signup("ana", "")
	env.createEvent(olive, "launch", generalAdmission)
	env.publish(olive, "launch")

	payload := checkoutCompleted("cs_1", "ana@example.com", "launch", "General", 2, 5000)

	w := env.webhook(payload, signedHeader(payload, "whsec_wrong"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.webhook(payload, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, env.user("ana").Tickets)
	ev := env.event("launch")
	assert.Empty(t, ev.Purchases)
	assert.Equal(t, 0, ev.TicketType("General").Sold)
	assert.Empty(t, env.mailer.receipts)
}

func TestWebhookFulfillsOncePerSession(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)
	env.signup("ana", "")
	env.createEvent(olive, "launch", generalAdmission)
	env.publish(olive, "launch")

	payload := checkoutCompleted("cs_1", "ana@example.com", "launch", "General", 2, 5000)
	for i := 0; i < 2; i++ {
		w := env.webhook(payload, signedHeader(payload, testWebhookSecret))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	ana := env.user("ana")
	require.Len(t, ana.Tickets, 1)
	ticket := ana.Tickets[0]
	assert.Equal(t, "launch", ticket.EventID)
	assert.Equal(t, "General", ticket.TicketType)
	assert.Equal(t, 2, ticket.Quantity)
	assert.Equal(t, int64(5000), ticket.AmountTotal)
	assert.Equal(t, "cs_1", ticket.CheckoutSessionID)

	ev := env.event("launch")
	assert.Equal(t, 2, ev.TicketType("General").Sold)
	require.Len(t, ev.Purchases, 1)
	assert.Equal(t, "ana", ev.Purchases[0].Username)

	assert.Len(t, env.mailer.receipts, 1)
	assert.Equal(t, 1, env.publisher.count(notify.SubjectTicketsPurchased))

	w := env.do(http.MethodGet, "/api/users/me/tickets", nil, env.signup("ben", ""))
	require.Equal(t, http.StatusOK, w.Code)
	var mine struct {
		Tickets []models.PurchasedTicket `json:"tickets"`
	}
	decode(t, w, &mine)
	assert.Empty(t, mine.Tickets)

	assert.Equal(t, http.StatusConflict, env.do(http.MethodDelete, "/api/events/launch", nil, olive).Code)
}

func TestWebhookUnknownPurchaserOrEvent(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)
	env.signup("ana", "")
	env.createEvent(olive, "launch", generalAdmission)

	payload := checkoutCompleted("cs_1", "ghost@example.com", "launch", "General", 1, 2500)
	w := env.webhook(payload, signedHeader(payload, testWebhookSecret))
	assert.Equal(t, http.StatusNotFound, w.Code)

	payload = checkoutCompleted("cs_2", "ana@example.com", "missing", "General", 1, 2500)
	w = env.webhook(payload, signedHeader(payload, testWebhookSecret))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, env.user("ana").Tickets)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte(`{"id": "evt_2", "object": "event", "type": "payment_intent.created", "data": {"object": {"id": "pi_1", "object": "payment_intent"}}}`)

	w := env.webhook(payload, signedHeader(payload, testWebhookSecret))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFreeTicketAndCheckIn(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)
	ana := env.signup("ana", "")
	env.createEvent(olive, "meetup", []models.TicketType{{Name: "Free", Price: 0, Quantity: 10}})
	env.createEvent(olive, "other", []models.TicketType{{Name: "Free", Price: 0, Quantity: 10}})
	env.publish(olive, "meetup")

	w := env.do(http.MethodPost, "/api/payments/checkout-session", gin.H{"eventId": "meetup", "ticketType": "Free", "quantity": 1}, ana)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var issued struct {
		Ticket models.PurchasedTicket `json:"ticket"`
	}
	decode(t, w, &issued)
	require.NotEmpty(t, issued.Ticket.ID)
	assert.Empty(t, env.provider.checkouts)
	assert.Equal(t, 1, env.event("meetup").TicketType("Free").Sold)

	w = env.do(http.MethodGet, "/api/users/me/tickets/"+issued.Ticket.ID+"/qr", nil, ana)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/users/me/tickets/nope/qr", nil, ana).Code)

	qr := helpers.GenerateQRCodeData(helpers.TicketRef{
		TicketID: issued.Ticket.ID,
		Username: "ana",
		EventID:  "meetup",
	}, testJWTSecret)

	assert.Equal(t, http.StatusForbidden,
		env.do(http.MethodPost, "/api/events/meetup/checkin", gin.H{"qr_data": qr + "0"}, olive).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/api/events/other/checkin", gin.H{"qr_data": qr}, olive).Code)

	w = env.do(http.MethodPost, "/api/events/meetup/checkin", gin.H{"qr_data": qr}, olive)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.user("ana").Ticket(issued.Ticket.ID).Used)

	assert.Equal(t, http.StatusConflict,
		env.do(http.MethodPost, "/api/events/meetup/checkin", gin.H{"qr_data": qr}, olive).Code)
	assert.Equal(t, http.StatusForbidden,
		env.do(http.MethodGet, "/api/users/me/tickets/"+issued.Ticket.ID+"/qr", nil, ana).Code)
}

func TestDeleteAccountDetachesFollows(t *testing.T) {
	env := newTestEnv(t)
	ana := env.signup("ana", "")
	ben := env.signup("ben", "")
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/users/ben/follow", nil, ana).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/users/ana/follow", nil, ben).Code)

	w := env.do(http.MethodDelete, "/api/users/me", nil, ana)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	b := env.user("ben")
	assert.Empty(t, b.Followers)
	assert.Empty(t, b.Following)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/users/ana", nil, "").Code)
}

func TestSalesSurviveOrganizerEdits(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)
	ana := env.signup("ana", "")
	env.createEvent(olive, "launch", generalAdmission)
	env.publish(olive, "launch")

	payload := checkoutCompleted("cs_1", "ana@example.com", "launch", "General", 2, 5000)
	require.Equal(t, http.StatusOK, env.webhook(payload, signedHeader(payload, testWebhookSecret)).Code)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/events/launch/unpublish", nil, olive).Code)
	env.publish(olive, "launch")
	assert.Equal(t, 2, env.publisher.count(notify.SubjectEventsPublished))

	update := gin.H{
		"title":       "Launch party",
		"date":        "2026-12-02",
		"venue":       "Rooftop",
		"ticketTypes": []models.TicketType{{Name: "General", Price: 3000, Quantity: 8}},
	}
	w := env.do(http.MethodPut, "/api/events/launch", update, olive)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	shrink := gin.H{
		"title":       "Launch party",
		"date":        "2026-12-02",
		"venue":       "Rooftop",
		"ticketTypes": []models.TicketType{{Name: "General", Price: 3000, Quantity: 1}},
	}
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/events/launch", shrink, olive).Code)

	ev := env.event("launch")
	assert.Equal(t, "Launch party", ev.Title)
	assert.False(t, ev.Draft)
	require.Len(t, ev.Purchases, 1)
	tt := ev.TicketType("General")
	require.NotNil(t, tt)
	assert.Equal(t, 2, tt.Sold)
	assert.Equal(t, 8, tt.Quantity)
	assert.Equal(t, int64(3000), tt.Price)

	require.Equal(t, http.StatusOK, env.do(http.MethodPut, "/api/users/me", gin.H{"bio": "hi"}, ana).Code)
	require.Len(t, env.user("ana").Tickets, 1)

	payload = checkoutCompleted("cs_2", "ana@example.com", "launch", "General", 1, 3000)
	require.Equal(t, http.StatusOK, env.webhook(payload, signedHeader(payload, testWebhookSecret)).Code)

	first := env.user("ana").Tickets[0]
	qr := helpers.GenerateQRCodeData(helpers.TicketRef{TicketID: first.ID, Username: "ana", EventID: "launch"}, testJWTSecret)
	w = env.do(http.MethodPost, "/api/events/launch/checkin", gin.H{"qr_data": qr}, olive)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	holder := env.user("ana")
	require.Len(t, holder.Tickets, 2)
	assert.True(t, holder.Ticket(first.ID).Used)
	assert.False(t, holder.Tickets[1].Used)
	assert.Equal(t, "hi", holder.Bio)
	assert.Equal(t, 3, env.event("launch").TicketType("General").Sold)
}

func TestDeletedAccountTokenLosesAccess(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)
	env.signup("ben", "")

	require.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/api/users/me", nil, olive).Code)

	body := gin.H{"id": "ghost-event", "title": "Ghost", "date": "2026-12-01", "venue": "Hall"}
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/events", body, olive).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/payments/connect-account", nil, olive).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/users/ben/follow", nil, olive).Code)

	_, err := env.store.Events().Get(context.Background(), "ghost-event")
	assert.Error(t, err)
	assert.Empty(t, env.user("ben").Followers)
}

func (e *testEnv) upload(path, token, filename string, content []byte) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	require.NoError(e.t, err)
	_, err = part.Write(content)
	require.NoError(e.t, err)
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestImageUploads(t *testing.T) {
	env := newTestEnv(t)
	olive := env.signup("olive", models.RoleOrganizer)
	env.createEvent(olive, "launch", generalAdmission)

	png, err := qrcode.Encode("gatherly", qrcode.Low, 64)
	require.NoError(t, err)

	w := env.upload("/api/users/me/avatar", olive, "me.png", png)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var avatar struct {
		ProfileImage string `json:"profileImage"`
	}
	decode(t, w, &avatar)
	assert.Regexp(t, `^/uploads/avatars/.+\.png$`, avatar.ProfileImage)
	assert.Equal(t, avatar.ProfileImage, env.user("olive").ProfileImage)

	served := env.do(http.MethodGet, avatar.ProfileImage, nil, "")
	assert.Equal(t, http.StatusOK, served.Code)

	w = env.upload("/api/users/me/avatar", olive, "notes.png", []byte("plain text, not an image"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.upload("/api/events/launch/image", olive, "cover.png", png)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, env.event("launch").Image, "/uploads/events/")
}

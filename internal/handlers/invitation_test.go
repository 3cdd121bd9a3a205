package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/authz"
	"github.com/acadium/acadium-api/internal/invitation"
	"github.com/acadium/acadium-api/internal/license"
	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/reconciler"
	"github.com/acadium/acadium-api/internal/repository/inmem"
	"github.com/acadium/acadium-api/internal/security"
)

// stubLimiter rejects everything once tripped.
type stubLimiter struct {
	reject bool
}

func (l *stubLimiter) Allow(context.Context, string) (bool, error) { return !l.reject, nil }
func (l *stubLimiter) Stop()                                       {}

type tokenCapture struct {
	tokens []string
}

func (m *tokenCapture) SendInvite(recipientEmail, inviterName, inviteURL string) error {
	m.tokens = append(m.tokens, inviteURL)
	return nil
}

type invitationFixture struct {
	handler *InvitationHandler
	db      *inmem.DB
	mailer  *tokenCapture
	limiter *stubLimiter
	feed    *reconciler.InProcessFeed
}

func newInvitationFixture(t *testing.T, purchased int) *invitationFixture {
	t.Helper()
	db := inmem.NewDB()
	db.SeedSubscriber(models.Subscriber{
		UserID:            "tenant-1",
		Email:             "owner@example.com",
		LicensesPurchased: purchased,
	})
	mailer := &tokenCapture{}
	ledger := license.NewLedger(db.SubscriberRepository(), db.InvitationRepository(), zerolog.Nop())
	registry := invitation.NewRegistry(db.InvitationRepository(), ledger, mailer, "%s", zerolog.Nop())
	limiter := &stubLimiter{}
	feed := reconciler.NewInProcessFeed()
	handler := NewInvitationHandler(
		registry,
		db.UserRepository(),
		limiter,
		security.NewEventRecorder(db.SecurityEventRepository(), zerolog.Nop()),
		feed,
		zerolog.Nop(),
	)
	return &invitationFixture{handler: handler, db: db, mailer: mailer, limiter: limiter, feed: feed}
}

func adminRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := authz.WithIdentity(req.Context(), "tenant-1", "user-1", "owner@example.com", models.RoleAdmin)
	return req.WithContext(ctx)
}

func TestCreateBatchReportsMixedOutcomes(t *testing.T) {
	fx := newInvitationFixture(t, 2)

	body := `{"invitations":[
		{"invitee_email":"a@example.com"},
		{"invitee_email":"b@example.com","role":"admin"},
		{"invitee_email":"c@example.com"}
	]}`
	rec := httptest.NewRecorder()
	fx.handler.CreateBatch(rec, adminRequest(http.MethodPost, "/api/invitations", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var response struct {
		Success bool `json:"success"`
		Results []struct {
			Email        string `json:"email"`
			Status       string `json:"status"`
			InvitationID string `json:"invitation_id"`
			Error        string `json:"error"`
		} `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Success {
		t.Error("success = true despite a failed invitee")
	}
	if len(response.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(response.Results))
	}
	for i, want := range []string{"sent", "sent", "failed"} {
		if response.Results[i].Status != want {
			t.Errorf("results[%d].status = %q, want %q", i, response.Results[i].Status, want)
		}
	}
	if response.Results[2].Error == "" {
		t.Error("failed result carries no error message")
	}
	if len(fx.mailer.tokens) != 2 {
		t.Fatalf("dispatched %d invites, want 2", len(fx.mailer.tokens))
	}
}

func TestCreateBatchRequiresIdentity(t *testing.T) {
	fx := newInvitationFixture(t, 2)

	req := httptest.NewRequest(http.MethodPost, "/api/invitations", strings.NewReader(`{"invitations":[]}`))
	rec := httptest.NewRecorder()
	fx.handler.CreateBatch(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateBatchRateLimited(t *testing.T) {
	fx := newInvitationFixture(t, 2)
	fx.limiter.reject = true

	rec := httptest.NewRecorder()
	fx.handler.CreateBatch(rec, adminRequest(http.MethodPost, "/api/invitations", `{"invitations":[{"invitee_email":"a@example.com"}]}`))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	events, err := fx.db.SecurityEventRepository().ListRecent(context.Background(), "tenant-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != models.SecurityEventRateLimited {
		t.Fatalf("events = %+v, want one rate_limited", events)
	}
}

func acceptRequest(handler *InvitationHandler, token string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router := mux.NewRouter()
	router.HandleFunc("/accept-invitation/{token}", handler.Accept).Methods(http.MethodGet)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accept-invitation/"+token, nil))
	return rec
}

func TestAcceptCreatesMembershipAndPublishes(t *testing.T) {
	fx := newInvitationFixture(t, 2)

	rec := httptest.NewRecorder()
	fx.handler.CreateBatch(rec, adminRequest(http.MethodPost, "/api/invitations", `{"invitations":[{"invitee_email":"dana@example.com"}]}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	token := fx.mailer.tokens[0]

	ctx := context.Background()
	events, err := fx.feed.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	rec = acceptRequest(fx.handler, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d, body %s", rec.Code, rec.Body.String())
	}

	member, err := fx.db.UserRepository().GetUserByEmail(ctx, "dana@example.com")
	if err != nil {
		t.Fatalf("membership record: %v", err)
	}
	if member.TenantID != "tenant-1" || member.Role != models.RoleStandard {
		t.Fatalf("member = %+v", member)
	}

	select {
	case event := <-events:
		if event.TenantID != "tenant-1" {
			t.Fatalf("event tenant = %q", event.TenantID)
		}
	default:
		t.Fatal("no membership event published")
	}

	// Second click succeeds without a second membership or seat.
	rec = acceptRequest(fx.handler, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat accept status = %d", rec.Code)
	}
	snapshot, err := fx.db.SubscriberRepository().GetByUserID(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.LicensesUsed != 1 {
		t.Fatalf("licenses_used = %d, want 1", snapshot.LicensesUsed)
	}
}

func TestAcceptUnknownTokenIsGenericNotFound(t *testing.T) {
	fx := newInvitationFixture(t, 2)

	rec := acceptRequest(fx.handler, "bogus-token")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Success || response.Message == "" {
		t.Fatalf("response = %+v", response)
	}

	events, err := fx.db.SecurityEventRepository().ListRecent(context.Background(), "tenant-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != models.SecurityEventInvalidToken {
		t.Fatalf("events = %+v, want one invalid_token", events)
	}
}

func TestCancelEndpoint(t *testing.T) {
	fx := newInvitationFixture(t, 2)

	rec := httptest.NewRecorder()
	fx.handler.CreateBatch(rec, adminRequest(http.MethodPost, "/api/invitations", `{"invitations":[{"invitee_email":"dana@example.com"}]}`))
	var response struct {
		Results []struct {
			InvitationID string `json:"invitation_id"`
		} `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	invitationID := response.Results[0].InvitationID

	router := mux.NewRouter()
	router.HandleFunc("/api/invitations/{id}", fx.handler.Cancel).Methods(http.MethodDelete)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodDelete, "/api/invitations/"+invitationID, ""))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodDelete, "/api/invitations/"+invitationID, ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("repeat cancel status = %d, want 404", rec.Code)
	}
}

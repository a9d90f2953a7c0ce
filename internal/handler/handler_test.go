package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/gather-events/gather/internal/memory"
	"github.com/gather-events/gather/internal/model"
	"github.com/gather-events/gather/internal/notify"
	"github.com/gather-events/gather/internal/service"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.NewStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	regSvc := service.NewRegistrationService(store, store, &notify.LogDispatcher{Log: log}, log)
	eventSvc := service.NewEventService(store, regSvc)
	h := New(eventSvc, regSvc)

	r := chi.NewRouter()
	r.Get("/health", HealthCheck)
	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Put("/{id}", h.UpdateEvent)
		r.Delete("/{id}", h.DeleteEvent)
		r.Post("/{id}/register", h.Register)
		r.Get("/{id}/registrations", h.ListRegistrations)
		r.Get("/{id}/registrations/{userID}", h.GetUserRegistration)
		r.Get("/{id}/counts", h.GetCounts)
		r.Post("/{id}/reminders", h.SendReminders)
	})
	r.Delete("/registrations/{id}", h.Cancel)
	r.Get("/users/{userID}/registrations", h.ListUserRegistrations)
	r.Post("/users/welcome", h.SendWelcome)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func createEvent(t *testing.T, router http.Handler, capacity int) model.Event {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"title":        "Go Meetup",
		"date":         "2030-06-01",
		"start_time":   "18:00",
		"location":     "Community Hall",
		"category":     "technology",
		"capacity":     capacity,
		"organizer_id": "org-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[model.Event](t, w)
}

func registerUser(t *testing.T, router http.Handler, eventID, userID string) model.Registration {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/events/"+eventID+"/register", map[string]any{
		"user_id":    userID,
		"user_email": userID + "@example.com",
		"user_name":  userID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[model.Registration](t, w)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateEvent_InvalidBody(t *testing.T) {
	router := newTestRouter(t)

	// capacity must be positive per the validate tag.
	w := doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"title":        "Go Meetup",
		"date":         "2030-06-01",
		"capacity":     -1,
		"organizer_id": "org-1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown fields are rejected.
	w = doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"title": "Go Meetup", "date": "2030-06-01", "capacity": 5,
		"organizer_id": "org-1", "surprise": true,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_FlowOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	event := createEvent(t, router, 1)

	first := registerUser(t, router, event.ID, "alice")
	require.Equal(t, model.StatusConfirmed, first.Status)

	second := registerUser(t, router, event.ID, "bob")
	require.Equal(t, model.StatusWaitlist, second.Status)

	// Duplicate registration conflicts.
	w := doJSON(t, router, http.MethodPost, "/events/"+event.ID+"/register", map[string]any{
		"user_id": "alice", "user_email": "alice@example.com", "user_name": "alice",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	// Counts reflect both registrations.
	w = doJSON(t, router, http.MethodGet, "/events/"+event.ID+"/counts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	counts := decodeBody[model.Counts](t, w)
	require.Equal(t, model.Counts{Confirmed: 1, Waitlist: 1}, counts)

	// The waitlisted user sees their position.
	w = doJSON(t, router, http.MethodGet, "/events/"+event.ID+"/registrations/bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	userReg := decodeBody[model.UserRegistrationResponse](t, w)
	require.Equal(t, model.StatusWaitlist, userReg.Registration.Status)
	require.Equal(t, 1, userReg.WaitlistPosition)

	// Cancelling the confirmed registration promotes bob.
	w = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/registrations/%d", first.ID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodGet, "/events/"+event.ID+"/registrations/bob", nil)
	userReg = decodeBody[model.UserRegistrationResponse](t, w)
	require.Equal(t, model.StatusConfirmed, userReg.Registration.Status)
	require.Zero(t, userReg.WaitlistPosition)
}

func TestRegister_UnknownEvent(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/events/nope/register", map[string]any{
		"user_id": "alice", "user_email": "alice@example.com", "user_name": "alice",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegister_InvalidEmail(t *testing.T) {
	router := newTestRouter(t)
	event := createEvent(t, router, 5)

	w := doJSON(t, router, http.MethodPost, "/events/"+event.ID+"/register", map[string]any{
		"user_id": "alice", "user_email": "not-an-email", "user_name": "alice",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancel_Errors(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodDelete, "/registrations/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/registrations/999", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateEvent_CapacityRaiseOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	event := createEvent(t, router, 1)

	registerUser(t, router, event.ID, "alice")
	registerUser(t, router, event.ID, "bob")

	w := doJSON(t, router, http.MethodPut, "/events/"+event.ID, map[string]any{
		"capacity": 2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/events/"+event.ID+"/counts", nil)
	counts := decodeBody[model.Counts](t, w)
	require.Equal(t, model.Counts{Confirmed: 2, Waitlist: 0}, counts)
}

func TestListEvents_Filters(t *testing.T) {
	router := newTestRouter(t)
	createEvent(t, router, 5)

	w := doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"title": "Art Fair", "date": "2030-07-01", "capacity": 20,
		"category": "arts", "is_featured": true, "organizer_id": "org-2",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/events?category=arts", nil)
	events := decodeBody[[]model.Event](t, w)
	require.Len(t, events, 1)
	require.Equal(t, "Art Fair", events[0].Title)

	w = doJSON(t, router, http.MethodGet, "/events?featured=true", nil)
	events = decodeBody[[]model.Event](t, w)
	require.Len(t, events, 1)

	w = doJSON(t, router, http.MethodGet, "/events", nil)
	events = decodeBody[[]model.Event](t, w)
	require.Len(t, events, 2)
}

func TestUserRegistrations(t *testing.T) {
	router := newTestRouter(t)
	e1 := createEvent(t, router, 5)
	e2 := createEvent(t, router, 5)

	registerUser(t, router, e1.ID, "alice")
	registerUser(t, router, e2.ID, "alice")

	w := doJSON(t, router, http.MethodGet, "/users/alice/registrations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	regs := decodeBody[[]model.Registration](t, w)
	require.Len(t, regs, 2)
}

func TestSendReminders(t *testing.T) {
	router := newTestRouter(t)
	event := createEvent(t, router, 1)
	registerUser(t, router, event.ID, "alice")
	registerUser(t, router, event.ID, "bob") // waitlisted, gets no reminder

	w := doJSON(t, router, http.MethodPost, "/events/"+event.ID+"/reminders", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	result := decodeBody[map[string]int](t, w)
	require.Equal(t, 1, result["scheduled"])
}

func TestSendWelcome(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/users/welcome", map[string]any{
		"user_name": "Alice", "user_email": "alice@example.com",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, router, http.MethodPost, "/users/welcome", map[string]any{
		"user_name": "Alice", "user_email": "nope",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

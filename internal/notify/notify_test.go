package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gather-events/gather/internal/model"
)

func testEvent() *model.Event {
	return &model.Event{
		ID:        "evt-1",
		Title:     "Go Meetup",
		Date:      "2030-06-01",
		StartTime: "18:00",
		Location:  "Community Hall",
	}
}

func testRegistration(status model.Status) *model.Registration {
	return &model.Registration{
		ID:        7,
		EventID:   "evt-1",
		UserID:    "alice",
		UserEmail: "alice@example.com",
		UserName:  "Alice",
		Status:    status,
	}
}

func TestForRegistration_PicksKindByStatus(t *testing.T) {
	event := testEvent()

	confirmed := ForRegistration(event, testRegistration(model.StatusConfirmed))
	require.Equal(t, KindRegistrationConfirmation, confirmed.Kind())

	waitlisted := ForRegistration(event, testRegistration(model.StatusWaitlist))
	require.Equal(t, KindWaitlistConfirmation, waitlisted.Kind())
	require.Equal(t, "alice@example.com", waitlisted.Recipient())
}

func TestEnvelope_WireShape(t *testing.T) {
	msg := ForRegistration(testEvent(), testRegistration(model.StatusConfirmed))

	raw, err := json.Marshal(NewEnvelope(msg))
	require.NoError(t, err)

	var decoded struct {
		Type string         `json:"type"`
		To   string         `json:"to"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "registration_confirmation", decoded.Type)
	require.Equal(t, "alice@example.com", decoded.To)
	require.Equal(t, "Go Meetup", decoded.Data["eventTitle"])
	require.Equal(t, "confirmed", decoded.Data["status"])
	require.Equal(t, float64(7), decoded.Data["registrationId"])
	require.NotContains(t, decoded.Data, "userEmail", "recipient lives in the envelope, not the payload")
}

func TestWelcomeEnvelope_IncludesEmail(t *testing.T) {
	raw, err := json.Marshal(NewEnvelope(Welcome{UserName: "Alice", UserEmail: "alice@example.com"}))
	require.NoError(t, err)

	var decoded struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "welcome", decoded.Type)
	require.Equal(t, "alice@example.com", decoded.Data["userEmail"])
}

func TestEmailDispatcher_PostsEnvelope(t *testing.T) {
	var received Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewEmailDispatcher(srv.URL)
	msg := ForReminder(testEvent(), testRegistration(model.StatusConfirmed), 3)
	require.NoError(t, d.Dispatch(context.Background(), msg))
	require.Equal(t, KindEventReminder, received.Type)
	require.Equal(t, "alice@example.com", received.To)
}

func TestEmailDispatcher_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mail provider down", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewEmailDispatcher(srv.URL)
	err := d.Dispatch(context.Background(), Welcome{UserName: "Alice", UserEmail: "alice@example.com"})
	require.ErrorContains(t, err, "502")
}

func TestLogDispatcher(t *testing.T) {
	d := &LogDispatcher{Log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	require.NoError(t, d.Dispatch(context.Background(), Welcome{UserEmail: "alice@example.com"}))
}

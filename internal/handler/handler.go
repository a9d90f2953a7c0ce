// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gather-events/gather/internal/ledger"
	"github.com/gather-events/gather/internal/model"
	"github.com/gather-events/gather/internal/service"
)

var validate = validator.New()

// Handler holds all HTTP handlers for the event registration API.
type Handler struct {
	events        *service.EventService
	registrations *service.RegistrationService
}

// New constructs a Handler.
func New(events *service.EventService, registrations *service.RegistrationService) *Handler {
	return &Handler{events: events, registrations: registrations}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// writeDomainError maps ledger errors to HTTP statuses; anything else
// is treated as a bad request from the service's validation layer.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, ledger.ErrRegistrationNotFound):
		writeError(w, http.StatusNotFound, "registration not found")
	case errors.Is(err, ledger.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "you are already registered for this event")
	case errors.Is(err, ledger.ErrCapacityConflict):
		writeError(w, http.StatusConflict, "registration conflicted with another request, please retry")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// ─── Event handlers ───────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events?category=&featured=
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	featured := r.URL.Query().Get("featured") == "true"

	events, err := h.events.ListEvents(r.Context(), category, featured)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// UpdateEvent handles PUT /events/{id}
// Raising the capacity promotes waitlisted registrants into the new slots.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.UpdateEvent(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.DeleteEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Registration handlers ────────────────────────────────────────────────────

// Register handles POST /events/{id}/register
// Performs a concurrency-safe registration; the response status field
// is either confirmed or waitlist.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.registrations.Register(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

// Cancel handles DELETE /registrations/{id}
// Cancelling a confirmed registration promotes the earliest
// waitlisted registrant for the event.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "registration id must be an integer")
		return
	}

	if err := h.registrations.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRegistrations handles GET /events/{id}/registrations
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.registrations.ListByEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// GetUserRegistration handles GET /events/{id}/registrations/{userID}
// Returns the user's registration plus their current waitlist
// position (omitted when confirmed).
func (h *Handler) GetUserRegistration(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")

	reg, err := h.registrations.GetUserRegistration(r.Context(), eventID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if reg == nil {
		writeError(w, http.StatusNotFound, "user is not registered for this event")
		return
	}

	resp := model.UserRegistrationResponse{Registration: reg}
	if reg.Status == model.StatusWaitlist {
		pos, err := h.registrations.GetWaitlistPosition(r.Context(), eventID, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to compute waitlist position")
			return
		}
		resp.WaitlistPosition = pos
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetCounts handles GET /events/{id}/counts
func (h *Handler) GetCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.registrations.GetCounts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}

// ListUserRegistrations handles GET /users/{userID}/registrations
func (h *Handler) ListUserRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.registrations.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list registrations")
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// SendReminders handles POST /events/{id}/reminders
// Fans out an event reminder to every confirmed registrant.
func (h *Handler) SendReminders(w http.ResponseWriter, r *http.Request) {
	sent, err := h.registrations.SendReminders(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"scheduled": sent})
}

// welcomeRequest is the signup-hook payload.
type welcomeRequest struct {
	UserName  string `json:"user_name" validate:"required"`
	UserEmail string `json:"user_email" validate:"required,email"`
}

// SendWelcome handles POST /users/welcome
// Called by the auth layer after signup; the core only dispatches.
func (h *Handler) SendWelcome(w http.ResponseWriter, r *http.Request) {
	var req welcomeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.registrations.SendWelcome(r.Context(), req.UserName, req.UserEmail); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Package service implements business logic, validation, and
// orchestration between HTTP handlers and the storage layer. The
// registration service is the capacity-allocation core: it decides
// whether a request is confirmed or waitlisted, promotes waitlisted
// registrants when slots free up, and keeps confirmed counts within
// event capacity under concurrency.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gather-events/gather/internal/ledger"
	"github.com/gather-events/gather/internal/model"
	"github.com/gather-events/gather/internal/notify"
)

const dispatchTimeout = 10 * time.Second

// RegistrationService orchestrates registration, cancellation, and
// waitlist promotion.
type RegistrationService struct {
	events     ledger.EventLookup
	ledger     ledger.Ledger
	dispatcher notify.Dispatcher
	log        *slog.Logger
}

// NewRegistrationService constructs a RegistrationService with its
// dependencies.
func NewRegistrationService(
	events ledger.EventLookup,
	reg ledger.Ledger,
	dispatcher notify.Dispatcher,
	log *slog.Logger,
) *RegistrationService {
	return &RegistrationService{events: events, ledger: reg, dispatcher: dispatcher, log: log}
}

// decideStatus is the capacity allocation rule: a request is confirmed
// while confirmed registrations are below capacity, waitlisted after.
// Callers must hold the event lock so the count cannot move between
// the decision and the insert.
func decideStatus(capacity, confirmedCount int) model.Status {
	if confirmedCount < capacity {
		return model.StatusConfirmed
	}
	return model.StatusWaitlist
}

// Register attempts to register a user for an event. The returned
// registration's status is either confirmed or waitlist. A user with
// an active registration for the event is rejected with
// ledger.ErrAlreadyRegistered.
func (s *RegistrationService) Register(ctx context.Context, eventID string, req model.RegisterRequest) (*model.Registration, error) {
	req.UserEmail = strings.TrimSpace(strings.ToLower(req.UserEmail))
	req.UserID = strings.TrimSpace(req.UserID)
	req.UserName = strings.TrimSpace(req.UserName)
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if req.UserEmail == "" {
		return nil, fmt.Errorf("user_email is required")
	}
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}

	var (
		reg   *model.Registration
		event *model.Event
	)
	err := s.ledger.WithEventLock(ctx, eventID, func(tx ledger.Txn) error {
		event = tx.Event()

		existing, err := tx.FindByEventAndUser(req.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ledger.ErrAlreadyRegistered
		}

		confirmed, err := tx.CountByStatus(model.StatusConfirmed)
		if err != nil {
			return err
		}

		reg, err = tx.Insert(&model.Registration{
			EventID:   eventID,
			UserID:    req.UserID,
			UserEmail: req.UserEmail,
			UserName:  req.UserName,
			Status:    decideStatus(event.Capacity, confirmed),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(notify.ForRegistration(event, reg))
	return reg, nil
}

// Cancel transitions a registration to cancelled. If it occupied a
// confirmed slot, the earliest waitlisted registrant for the event is
// promoted into it under the same lock. Cancelling an already
// cancelled registration is a no-op.
func (s *RegistrationService) Cancel(ctx context.Context, registrationID int64) error {
	reg, err := s.ledger.FindByID(ctx, registrationID)
	if err != nil {
		return err
	}

	var (
		promoted *model.Registration
		event    *model.Event
	)
	err = s.ledger.WithEventLock(ctx, reg.EventID, func(tx ledger.Txn) error {
		event = tx.Event()

		// Re-read under the lock; the snapshot above may be stale.
		current, err := tx.FindByID(registrationID)
		if err != nil {
			return err
		}
		if current.Status == model.StatusCancelled {
			return nil
		}

		wasConfirmed := current.Status == model.StatusConfirmed
		if _, err := tx.UpdateStatus(registrationID, model.StatusCancelled); err != nil {
			return err
		}
		if wasConfirmed {
			promoted, err = promoteLocked(tx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if promoted != nil {
		s.dispatch(notify.ForRegistration(event, promoted))
	}
	return nil
}

// promoteLocked promotes the earliest waitlisted registration if a
// confirmed slot is free. It re-verifies the confirmed count against
// capacity, so it stays idle when the organizer has shrunk capacity
// below the confirmed count. Returns nil when nothing was promoted.
func promoteLocked(tx ledger.Txn) (*model.Registration, error) {
	confirmed, err := tx.CountByStatus(model.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	if confirmed >= tx.Event().Capacity {
		return nil, nil
	}

	waitlist, err := tx.ListWaitlistOrdered()
	if err != nil {
		return nil, err
	}
	if len(waitlist) == 0 {
		return nil, nil
	}

	return tx.UpdateStatus(waitlist[0].ID, model.StatusConfirmed)
}

// FillOpenSlots promotes waitlisted registrants until the event is
// full or the waitlist is empty. Called when an organizer raises an
// event's capacity. Returns the promoted registrations in order.
func (s *RegistrationService) FillOpenSlots(ctx context.Context, eventID string) ([]model.Registration, error) {
	var (
		promoted []model.Registration
		event    *model.Event
	)
	err := s.ledger.WithEventLock(ctx, eventID, func(tx ledger.Txn) error {
		event = tx.Event()
		for {
			reg, err := promoteLocked(tx)
			if err != nil {
				return err
			}
			if reg == nil {
				return nil
			}
			promoted = append(promoted, *reg)
		}
	})
	if err != nil {
		return nil, err
	}

	for i := range promoted {
		s.dispatch(notify.ForRegistration(event, &promoted[i]))
	}
	return promoted, nil
}

// GetCounts returns the confirmed and waitlist occupancy of an event.
func (s *RegistrationService) GetCounts(ctx context.Context, eventID string) (*model.Counts, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}

	confirmed, err := s.ledger.CountByStatus(ctx, eventID, model.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	waitlist, err := s.ledger.CountByStatus(ctx, eventID, model.StatusWaitlist)
	if err != nil {
		return nil, err
	}
	return &model.Counts{Confirmed: confirmed, Waitlist: waitlist}, nil
}

// GetUserRegistration returns the user's active registration for the
// event, or nil if there is none.
func (s *RegistrationService) GetUserRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.ledger.FindByEventAndUser(ctx, eventID, userID)
}

// GetWaitlistPosition returns the user's 1-based position on the
// event's waitlist, or 0 if the user is not waitlisted.
func (s *RegistrationService) GetWaitlistPosition(ctx context.Context, eventID, userID string) (int, error) {
	waitlist, err := s.ledger.ListWaitlistOrdered(ctx, eventID)
	if err != nil {
		return 0, err
	}
	for i, reg := range waitlist {
		if reg.UserID == userID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// ListByEvent returns all active registrations for an event after
// verifying it exists.
func (s *RegistrationService) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.ledger.ListByEvent(ctx, eventID)
}

// ListByUser returns all of a user's active registrations.
func (s *RegistrationService) ListByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	return s.ledger.ListByUser(ctx, userID)
}

// SendReminders dispatches an event reminder to every confirmed
// registrant and returns how many were sent.
func (s *RegistrationService) SendReminders(ctx context.Context, eventID string) (int, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return 0, err
	}

	regs, err := s.ledger.ListByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}

	days := daysUntil(event.Date, time.Now().UTC())
	sent := 0
	for i := range regs {
		if regs[i].Status != model.StatusConfirmed {
			continue
		}
		s.dispatch(notify.ForReminder(event, &regs[i], days))
		sent++
	}
	return sent, nil
}

// SendWelcome dispatches a welcome message for a freshly signed-up
// user. The signup flow itself lives outside this service.
func (s *RegistrationService) SendWelcome(ctx context.Context, userName, userEmail string) error {
	userEmail = strings.TrimSpace(strings.ToLower(userEmail))
	if userEmail == "" {
		return fmt.Errorf("user_email is required")
	}
	s.dispatch(notify.Welcome{UserName: userName, UserEmail: userEmail})
	return nil
}

// daysUntil counts whole days from now to an ISO date, never below 0.
func daysUntil(date string, now time.Time) int {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0
	}
	days := int(d.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// dispatch schedules a fire-and-forget notification. Failures are
// logged and swallowed here: a slow or broken dispatcher must never
// delay or fail the registration decision that triggered it.
func (s *RegistrationService) dispatch(msg notify.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
			s.log.Error("notification dispatch failed",
				"kind", string(msg.Kind()),
				"to", msg.Recipient(),
				"error", err,
			)
		}
	}()
}

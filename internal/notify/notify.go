// Package notify defines the transactional notification messages the
// registration core emits and the dispatchers that deliver them.
//
// Dispatch is strictly fire-and-forget: delivery failures are logged
// by the caller and never surfaced to whoever triggered the
// registration or promotion. Retries, if any, are the delivery
// backend's problem, not the core's.
package notify

import (
	"context"
	"log/slog"

	"github.com/gather-events/gather/internal/model"
)

// Kind tags a notification message.
type Kind string

const (
	KindWelcome                  Kind = "welcome"
	KindRegistrationConfirmation Kind = "registration_confirmation"
	KindEventReminder            Kind = "event_reminder"
	KindWaitlistConfirmation     Kind = "waitlist_confirmation"
)

// Message is a tagged variant over the four notification kinds. The
// unexported method seals the set: each kind carries exactly the
// fields its template requires, nothing duck-typed.
type Message interface {
	Kind() Kind
	Recipient() string
	data() any
}

// Welcome greets a newly signed-up user.
type Welcome struct {
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}

func (m Welcome) Kind() Kind        { return KindWelcome }
func (m Welcome) Recipient() string { return m.UserEmail }
func (m Welcome) data() any         { return m }

// RegistrationConfirmation reports the outcome of a registration
// request or a waitlist promotion.
type RegistrationConfirmation struct {
	UserName       string       `json:"userName"`
	UserEmail      string       `json:"-"`
	EventTitle     string       `json:"eventTitle"`
	EventDate      string       `json:"eventDate"`
	EventTime      string       `json:"eventTime"`
	EventLocation  string       `json:"eventLocation"`
	Status         model.Status `json:"status"`
	RegistrationID int64        `json:"registrationId"`
}

func (m RegistrationConfirmation) Kind() Kind        { return KindRegistrationConfirmation }
func (m RegistrationConfirmation) Recipient() string { return m.UserEmail }
func (m RegistrationConfirmation) data() any         { return m }

// EventReminder nudges a confirmed registrant ahead of the event.
type EventReminder struct {
	UserName       string `json:"userName"`
	UserEmail      string `json:"-"`
	EventID        string `json:"eventId"`
	EventTitle     string `json:"eventTitle"`
	EventDate      string `json:"eventDate"`
	EventTime      string `json:"eventTime"`
	EventLocation  string `json:"eventLocation"`
	DaysUntilEvent int    `json:"daysUntilEvent"`
}

func (m EventReminder) Kind() Kind        { return KindEventReminder }
func (m EventReminder) Recipient() string { return m.UserEmail }
func (m EventReminder) data() any         { return m }

// WaitlistConfirmation acknowledges a waitlist placement.
type WaitlistConfirmation struct {
	UserName       string `json:"userName"`
	UserEmail      string `json:"-"`
	EventTitle     string `json:"eventTitle"`
	EventDate      string `json:"eventDate"`
	EventTime      string `json:"eventTime"`
	EventLocation  string `json:"eventLocation"`
	RegistrationID int64  `json:"registrationId"`
}

func (m WaitlistConfirmation) Kind() Kind        { return KindWaitlistConfirmation }
func (m WaitlistConfirmation) Recipient() string { return m.UserEmail }
func (m WaitlistConfirmation) data() any         { return m }

// Envelope is the wire form every dispatcher sends.
type Envelope struct {
	Type Kind   `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

// NewEnvelope wraps a message for delivery.
func NewEnvelope(m Message) Envelope {
	return Envelope{Type: m.Kind(), To: m.Recipient(), Data: m.data()}
}

// ForRegistration builds the confirmation message matching the
// registration's status: a registration confirmation for confirmed
// slots, a waitlist confirmation otherwise.
func ForRegistration(event *model.Event, reg *model.Registration) Message {
	if reg.Status == model.StatusWaitlist {
		return WaitlistConfirmation{
			UserName:       reg.UserName,
			UserEmail:      reg.UserEmail,
			EventTitle:     event.Title,
			EventDate:      event.Date,
			EventTime:      event.StartTime,
			EventLocation:  event.Location,
			RegistrationID: reg.ID,
		}
	}
	return RegistrationConfirmation{
		UserName:       reg.UserName,
		UserEmail:      reg.UserEmail,
		EventTitle:     event.Title,
		EventDate:      event.Date,
		EventTime:      event.StartTime,
		EventLocation:  event.Location,
		Status:         reg.Status,
		RegistrationID: reg.ID,
	}
}

// ForReminder builds an event reminder for a confirmed registrant.
func ForReminder(event *model.Event, reg *model.Registration, daysUntil int) Message {
	return EventReminder{
		UserName:       reg.UserName,
		UserEmail:      reg.UserEmail,
		EventID:        event.ID,
		EventTitle:     event.Title,
		EventDate:      event.Date,
		EventTime:      event.StartTime,
		EventLocation:  event.Location,
		DaysUntilEvent: daysUntil,
	}
}

// Dispatcher delivers notification messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// LogDispatcher writes notifications to the log instead of delivering
// them. Default when no delivery backend is configured.
type LogDispatcher struct {
	Log *slog.Logger
}

// Dispatch implements Dispatcher.
func (d *LogDispatcher) Dispatch(ctx context.Context, msg Message) error {
	d.Log.InfoContext(ctx, "notification",
		"kind", string(msg.Kind()),
		"to", msg.Recipient(),
	)
	return nil
}

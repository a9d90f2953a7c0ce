// Package ledger declares the storage contracts the registration core
// is written against. Implementations live in internal/postgres and
// internal/memory; the services never see a concrete store.
package ledger

import (
	"context"
	"errors"

	"github.com/gather-events/gather/internal/model"
)

// ErrEventNotFound is returned when a requested event does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrRegistrationNotFound is returned when a registration id is unknown.
var ErrRegistrationNotFound = errors.New("registration not found")

// ErrAlreadyRegistered is returned when the same user registers twice
// for the same event.
var ErrAlreadyRegistered = errors.New("user already registered for this event")

// ErrCapacityConflict is returned when concurrent updates to the same
// event collide at commit time. Transient: the caller should retry.
var ErrCapacityConflict = errors.New("conflicting concurrent registration, retry")

// EventLookup is the read-only view of the event catalog the
// registration core depends on.
type EventLookup interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// Txn is the view of the ledger inside a held event lock. All writes
// go through a Txn; if the WithEventLock callback returns an error,
// none of them persist.
type Txn interface {
	// Event returns the locked event row as read at lock acquisition.
	Event() *model.Event

	CountByStatus(status model.Status) (int, error)
	FindByID(id int64) (*model.Registration, error)
	FindByEventAndUser(userID string) (*model.Registration, error)
	ListWaitlistOrdered() ([]model.Registration, error)

	// Insert assigns a unique monotonically increasing id and the
	// registration timestamp, then stores the record.
	Insert(reg *model.Registration) (*model.Registration, error)

	// UpdateStatus transitions a registration to newStatus. Fails with
	// ErrRegistrationNotFound if the id is unknown.
	UpdateStatus(id int64, newStatus model.Status) (*model.Registration, error)
}

// Ledger is the registration store. WithEventLock serialises every
// decide-then-write sequence for one event: the lock is acquired on
// entry, released on all exit paths, and two callbacks for the same
// event never run concurrently. The remaining methods are lock-free
// reads for query endpoints.
type Ledger interface {
	WithEventLock(ctx context.Context, eventID string, fn func(tx Txn) error) error

	CountByStatus(ctx context.Context, eventID string, status model.Status) (int, error)
	FindByID(ctx context.Context, id int64) (*model.Registration, error)
	FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.Registration, error)
	ListWaitlistOrdered(ctx context.Context, eventID string) ([]model.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	ListByUser(ctx context.Context, userID string) ([]model.Registration, error)
}

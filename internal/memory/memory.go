// Package memory implements the event store and registration ledger
// in process memory. It backs the test suite and the STORE=memory
// demo mode, and mirrors the Postgres implementation's semantics:
// per-event serialisation of writes, and no partial writes surviving
// a failed lock callback.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gather-events/gather/internal/ledger"
	"github.com/gather-events/gather/internal/model"
)

// Store holds both the event catalog and the registration ledger.
type Store struct {
	mu     sync.Mutex
	events map[string]*model.Event
	regs   map[int64]*model.Registration
	nextID int64

	// locks serialises WithEventLock callbacks per event. Entries are
	// created lazily and never removed.
	locks map[string]*sync.Mutex
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		events: make(map[string]*model.Event),
		regs:   make(map[int64]*model.Registration),
		locks:  make(map[string]*sync.Mutex),
	}
}

// ─── Event catalog ───────────────────────────────────────────────────

// Create inserts a new event with a generated UUID.
func (s *Store) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	now := time.Now().UTC()
	event := &model.Event{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Location:    req.Location,
		Category:    req.Category,
		Capacity:    req.Capacity,
		IsFeatured:  req.IsFeatured,
		OrganizerID: req.OrganizerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event

	clone := *event
	return &clone, nil
}

// List returns events ordered by date, optionally filtered.
func (s *Store) List(ctx context.Context, category string, featuredOnly bool) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []model.Event
	for _, e := range s.events {
		if category != "" && e.Category != category {
			continue
		}
		if featuredOnly && !e.IsFeatured {
			continue
		}
		events = append(events, *e)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

// GetByID returns a single event or ledger.ErrEventNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ledger.ErrEventNotFound
	}
	clone := *e
	return &clone, nil
}

// Update persists the given event row.
func (s *Store) Update(ctx context.Context, event *model.Event) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; !ok {
		return nil, ledger.ErrEventNotFound
	}
	event.UpdatedAt = time.Now().UTC()
	clone := *event
	s.events[event.ID] = &clone
	return event, nil
}

// Delete removes an event and all of its registrations.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ledger.ErrEventNotFound
	}
	delete(s.events, id)
	for regID, reg := range s.regs {
		if reg.EventID == id {
			delete(s.regs, regID)
		}
	}
	return nil
}

// ─── Registration ledger ─────────────────────────────────────────────

func (s *Store) eventLock(eventID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[eventID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[eventID] = lock
	}
	return lock
}

// WithEventLock serialises fn against all other callbacks for the
// same event. Mutations made through the Txn are journalled and
// undone if fn returns an error, so a failed registration attempt
// leaves the ledger unchanged.
func (s *Store) WithEventLock(ctx context.Context, eventID string, fn func(tx ledger.Txn) error) error {
	lock := s.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()

	event, err := s.GetByID(ctx, eventID)
	if err != nil {
		return err
	}

	tx := &memTxn{store: s, event: event}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) CountByStatus(ctx context.Context, eventID string, status model.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(eventID, status), nil
}

func (s *Store) countLocked(eventID string, status model.Status) int {
	n := 0
	for _, reg := range s.regs {
		if reg.EventID == eventID && reg.Status == status {
			n++
		}
	}
	return n
}

func (s *Store) FindByID(ctx context.Context, id int64) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[id]
	if !ok {
		return nil, ledger.ErrRegistrationNotFound
	}
	clone := *reg
	return &clone, nil
}

func (s *Store) FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findActiveLocked(eventID, userID), nil
}

func (s *Store) findActiveLocked(eventID, userID string) *model.Registration {
	for _, reg := range s.regs {
		if reg.EventID == eventID && reg.UserID == userID && reg.Status != model.StatusCancelled {
			clone := *reg
			return &clone
		}
	}
	return nil
}

func (s *Store) ListWaitlistOrdered(ctx context.Context, eventID string) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitlistLocked(eventID), nil
}

func (s *Store) waitlistLocked(eventID string) []model.Registration {
	var regs []model.Registration
	for _, reg := range s.regs {
		if reg.EventID == eventID && reg.Status == model.StatusWaitlist {
			regs = append(regs, *reg)
		}
	}
	sortByRegistrationOrder(regs)
	return regs
}

func (s *Store) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var regs []model.Registration
	for _, reg := range s.regs {
		if reg.EventID == eventID && reg.Status != model.StatusCancelled {
			regs = append(regs, *reg)
		}
	}
	sortByRegistrationOrder(regs)
	return regs, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var regs []model.Registration
	for _, reg := range s.regs {
		if reg.UserID == userID && reg.Status != model.StatusCancelled {
			regs = append(regs, *reg)
		}
	}
	sortByRegistrationOrder(regs)
	return regs, nil
}

// sortByRegistrationOrder orders by registered_at ascending with ids
// breaking ties, the waitlist's promotion order.
func sortByRegistrationOrder(regs []model.Registration) {
	sort.Slice(regs, func(i, j int) bool {
		if !regs[i].RegisteredAt.Equal(regs[j].RegisteredAt) {
			return regs[i].RegisteredAt.Before(regs[j].RegisteredAt)
		}
		return regs[i].ID < regs[j].ID
	})
}

// memTxn applies mutations directly and keeps an undo journal so
// WithEventLock can roll them back when the callback fails.
type memTxn struct {
	store *Store
	event *model.Event
	undo  []func()
}

func (t *memTxn) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTxn) Event() *model.Event { return t.event }

func (t *memTxn) CountByStatus(status model.Status) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.countLocked(t.event.ID, status), nil
}

func (t *memTxn) FindByID(id int64) (*model.Registration, error) {
	return t.store.FindByID(context.Background(), id)
}

func (t *memTxn) FindByEventAndUser(userID string) (*model.Registration, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.findActiveLocked(t.event.ID, userID), nil
}

func (t *memTxn) ListWaitlistOrdered() ([]model.Registration, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.waitlistLocked(t.event.ID), nil
}

func (t *memTxn) Insert(reg *model.Registration) (*model.Registration, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	t.store.nextID++
	id := t.store.nextID

	stored := *reg
	stored.ID = id
	stored.EventID = t.event.ID
	stored.RegisteredAt = time.Now().UTC()
	t.store.regs[id] = &stored

	t.undo = append(t.undo, func() {
		delete(t.store.regs, id)
	})

	clone := stored
	return &clone, nil
}

func (t *memTxn) UpdateStatus(id int64, newStatus model.Status) (*model.Registration, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	reg, ok := t.store.regs[id]
	if !ok {
		return nil, ledger.ErrRegistrationNotFound
	}

	prev := reg.Status
	reg.Status = newStatus
	t.undo = append(t.undo, func() {
		if r, ok := t.store.regs[id]; ok {
			r.Status = prev
		}
	})

	clone := *reg
	return &clone, nil
}

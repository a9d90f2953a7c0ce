package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gather-events/gather/internal/model"
)

// EventStore is the event catalog as seen by the event service.
// Implemented by postgres.EventRepository and memory.Store.
type EventStore interface {
	Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	List(ctx context.Context, category string, featuredOnly bool) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	Update(ctx context.Context, event *model.Event) (*model.Event, error)
	Delete(ctx context.Context, id string) error
}

const maxCapacity = 100_000

// EventService orchestrates event catalog operations.
type EventService struct {
	events        EventStore
	registrations *RegistrationService
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(events EventStore, registrations *RegistrationService) *EventService {
	return &EventService{events: events, registrations: registrations}
}

// CreateEvent validates the request and delegates to the store.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, fmt.Errorf("event title is required")
	}
	if req.Date == "" {
		return nil, fmt.Errorf("event date is required")
	}
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be a positive integer")
	}
	if req.Capacity > maxCapacity {
		return nil, fmt.Errorf("capacity cannot exceed %d", maxCapacity)
	}
	return s.events.Create(ctx, req)
}

// ListEvents returns events, optionally filtered by category or the
// featured flag.
func (s *EventService) ListEvents(ctx context.Context, category string, featuredOnly bool) ([]model.Event, error) {
	return s.events.List(ctx, category, featuredOnly)
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	return s.events.GetByID(ctx, id)
}

// UpdateEvent applies the requested field changes. Raising capacity
// frees slots, so waitlisted registrants are promoted afterwards;
// existing confirmed registrations are never demoted, even when the
// new capacity is below the confirmed count.
func (s *EventService) UpdateEvent(ctx context.Context, id string, req model.UpdateEventRequest) (*model.Event, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldCapacity := event.Capacity

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("event title cannot be empty")
		}
		event.Title = title
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.Date != nil {
		event.Date = *req.Date
	}
	if req.StartTime != nil {
		event.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		event.EndTime = *req.EndTime
	}
	if req.Location != nil {
		event.Location = *req.Location
	}
	if req.Category != nil {
		event.Category = *req.Category
	}
	if req.IsFeatured != nil {
		event.IsFeatured = *req.IsFeatured
	}
	if req.Capacity != nil {
		if *req.Capacity <= 0 {
			return nil, fmt.Errorf("capacity must be a positive integer")
		}
		if *req.Capacity > maxCapacity {
			return nil, fmt.Errorf("capacity cannot exceed %d", maxCapacity)
		}
		event.Capacity = *req.Capacity
	}

	updated, err := s.events.Update(ctx, event)
	if err != nil {
		return nil, err
	}

	if updated.Capacity > oldCapacity {
		if _, err := s.registrations.FillOpenSlots(ctx, id); err != nil {
			return nil, fmt.Errorf("promote after capacity raise: %w", err)
		}
	}
	return updated, nil
}

// DeleteEvent removes an event and its registrations.
func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	return s.events.Delete(ctx, id)
}

// Package postgres implements the event store and registration ledger
// on PostgreSQL. It uses pgx directly (no ORM) for transparency and
// performance.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gather-events/gather/internal/ledger"
	"github.com/gather-events/gather/internal/model"
)

const eventColumns = `id, title, description, event_date, start_time, end_time,
	location, category, capacity, is_featured, organizer_id, created_at, updated_at`

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Date, &e.StartTime, &e.EndTime,
		&e.Location, &e.Category, &e.Capacity, &e.IsFeatured, &e.OrganizerID,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event and returns it with a generated UUID.
func (r *EventRepository) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
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

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		event.ID, event.Title, event.Description, event.Date, event.StartTime,
		event.EndTime, event.Location, event.Category, event.Capacity,
		event.IsFeatured, event.OrganizerID, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

// List returns events ordered by date ascending, optionally filtered
// by category and/or featured flag.
func (r *EventRepository) List(ctx context.Context, category string, featuredOnly bool) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	args := []any{}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if featuredOnly {
		query += " AND is_featured"
	}
	query += " ORDER BY event_date ASC, created_at ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetByID returns a single event or ledger.ErrEventNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// Update persists the given event row. The caller (the service layer)
// is responsible for having applied field changes and validation.
func (r *EventRepository) Update(ctx context.Context, event *model.Event) (*model.Event, error) {
	event.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET title = $2, description = $3, event_date = $4,
		 start_time = $5, end_time = $6, location = $7, category = $8,
		 capacity = $9, is_featured = $10, updated_at = $11
		 WHERE id = $1`,
		event.ID, event.Title, event.Description, event.Date, event.StartTime,
		event.EndTime, event.Location, event.Category, event.Capacity,
		event.IsFeatured, event.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ledger.ErrEventNotFound
	}
	return event, nil
}

// Delete removes an event; its registrations go with it via the
// foreign-key cascade.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEventNotFound
	}
	return nil
}

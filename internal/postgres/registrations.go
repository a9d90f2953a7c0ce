package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gather-events/gather/internal/ledger"
	"github.com/gather-events/gather/internal/model"
)

const regColumns = `id, event_id, user_id, user_email, user_name, status, registered_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the query
// helpers below serve lock-free reads and in-transaction reads alike.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RegistrationLedger implements ledger.Ledger on PostgreSQL.
//
// ─────────────────────────────────────────────────────────────────────
// THE LAST-SEAT RACE
// ─────────────────────────────────────────────────────────────────────
//
// Two requests racing for the final slot must not both read
// confirmed=9, both see capacity=10, and both insert as confirmed.
// WithEventLock closes the race with pessimistic locking:
// SELECT ... FOR UPDATE on the event row acquires a row-level
// exclusive lock, so any concurrent WithEventLock for the same event
// blocks until the first transaction commits or rolls back. Every
// decide-then-write sequence (allocation, cancellation, promotion)
// runs inside that lock, which also prevents a promotion and a fresh
// registration from claiming the same freed slot.
// ─────────────────────────────────────────────────────────────────────
type RegistrationLedger struct {
	db *pgxpool.Pool
}

// NewRegistrationLedger constructs a RegistrationLedger.
func NewRegistrationLedger(db *pgxpool.Pool) *RegistrationLedger {
	return &RegistrationLedger{db: db}
}

// WithEventLock runs fn inside a transaction holding an exclusive
// row lock on the event. On error the transaction is rolled back and
// no write persists.
func (l *RegistrationLedger) WithEventLock(ctx context.Context, eventID string, fn func(tx ledger.Txn) error) error {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	)
	var event *model.Event
	event, err = scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ledger.ErrEventNotFound
			return err
		}
		err = fmt.Errorf("lock event row: %w", err)
		return err
	}

	if err = fn(&pgTxn{ctx: ctx, tx: tx, event: event}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		err = mapPgError(fmt.Errorf("commit transaction: %w", err))
		return err
	}
	return nil
}

// mapPgError translates transient Postgres failures into the domain's
// retryable conflict error and duplicate-key violations into the
// duplicate-registration error.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return ledger.ErrCapacityConflict
		case "23505": // unique_violation on the active-user index
			return ledger.ErrAlreadyRegistered
		}
	}
	return err
}

func (l *RegistrationLedger) CountByStatus(ctx context.Context, eventID string, status model.Status) (int, error) {
	return countByStatus(ctx, l.db, eventID, status)
}

func (l *RegistrationLedger) FindByID(ctx context.Context, id int64) (*model.Registration, error) {
	return findByID(ctx, l.db, id)
}

func (l *RegistrationLedger) FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	return findByEventAndUser(ctx, l.db, eventID, userID)
}

func (l *RegistrationLedger) ListWaitlistOrdered(ctx context.Context, eventID string) ([]model.Registration, error) {
	return listWaitlistOrdered(ctx, l.db, eventID)
}

// ListByEvent returns all non-cancelled registrations for an event in
// registration order.
func (l *RegistrationLedger) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return queryRegistrations(ctx, l.db,
		`SELECT `+regColumns+` FROM registrations
		 WHERE event_id = $1 AND status <> 'cancelled'
		 ORDER BY registered_at ASC, id ASC`,
		eventID,
	)
}

// ListByUser returns all non-cancelled registrations for a user.
func (l *RegistrationLedger) ListByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	return queryRegistrations(ctx, l.db,
		`SELECT `+regColumns+` FROM registrations
		 WHERE user_id = $1 AND status <> 'cancelled'
		 ORDER BY registered_at ASC, id ASC`,
		userID,
	)
}

// pgTxn is the in-lock view handed to WithEventLock callbacks.
type pgTxn struct {
	ctx   context.Context
	tx    pgx.Tx
	event *model.Event
}

func (t *pgTxn) Event() *model.Event { return t.event }

func (t *pgTxn) CountByStatus(status model.Status) (int, error) {
	return countByStatus(t.ctx, t.tx, t.event.ID, status)
}

func (t *pgTxn) FindByID(id int64) (*model.Registration, error) {
	return findByID(t.ctx, t.tx, id)
}

func (t *pgTxn) FindByEventAndUser(userID string) (*model.Registration, error) {
	return findByEventAndUser(t.ctx, t.tx, t.event.ID, userID)
}

func (t *pgTxn) ListWaitlistOrdered() ([]model.Registration, error) {
	return listWaitlistOrdered(t.ctx, t.tx, t.event.ID)
}

func (t *pgTxn) Insert(reg *model.Registration) (*model.Registration, error) {
	row := t.tx.QueryRow(t.ctx,
		`INSERT INTO registrations (event_id, user_id, user_email, user_name, status, registered_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 RETURNING id, registered_at`,
		t.event.ID, reg.UserID, reg.UserEmail, reg.UserName, reg.Status,
	)
	if err := row.Scan(&reg.ID, &reg.RegisteredAt); err != nil {
		return nil, mapPgError(fmt.Errorf("insert registration: %w", err))
	}
	reg.EventID = t.event.ID
	return reg, nil
}

func (t *pgTxn) UpdateStatus(id int64, newStatus model.Status) (*model.Registration, error) {
	row := t.tx.QueryRow(t.ctx,
		`UPDATE registrations SET status = $2 WHERE id = $1
		 RETURNING `+regColumns,
		id, newStatus,
	)
	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("update registration status: %w", err)
	}
	return reg, nil
}

// ─── Shared query helpers ────────────────────────────────────────────

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	err := row.Scan(
		&reg.ID, &reg.EventID, &reg.UserID, &reg.UserEmail, &reg.UserName,
		&reg.Status, &reg.RegisteredAt,
	)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func countByStatus(ctx context.Context, q querier, eventID string, status model.Status) (int, error) {
	var n int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = $2`,
		eventID, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

func findByID(ctx context.Context, q querier, id int64) (*model.Registration, error) {
	reg, err := scanRegistration(q.QueryRow(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// findByEventAndUser returns the user's active (non-cancelled)
// registration for the event, or nil if there is none.
func findByEventAndUser(ctx context.Context, q querier, eventID, userID string) (*model.Registration, error) {
	reg, err := scanRegistration(q.QueryRow(ctx,
		`SELECT `+regColumns+` FROM registrations
		 WHERE event_id = $1 AND user_id = $2 AND status <> 'cancelled'`,
		eventID, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user registration: %w", err)
	}
	return reg, nil
}

func listWaitlistOrdered(ctx context.Context, q querier, eventID string) ([]model.Registration, error) {
	return queryRegistrations(ctx, q,
		`SELECT `+regColumns+` FROM registrations
		 WHERE event_id = $1 AND status = 'waitlist'
		 ORDER BY registered_at ASC, id ASC`,
		eventID,
	)
}

func queryRegistrations(ctx context.Context, q querier, sql string, args ...any) ([]model.Registration, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

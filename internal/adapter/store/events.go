package store

import (
	"context"
	"fmt"
	"time"

	"planit/internal/domain"
)

func (s *SQLiteStore) CreateEvent(ctx context.Context, ownerID string, e domain.Event) (*domain.Event, error) {
	if err := checkSpan(e.Start, e.End); err != nil {
		return nil, err
	}
	e.ID = newID(s.now())
	e.OwnerID = ownerID
	e.Start, e.End = e.Start.UTC(), e.End.UTC()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO events (id, owner_id, title, description, start_at, end_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, ownerID, e.Title, e.Description, formatTime(e.Start), formatTime(e.End),
	); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) getEvent(ctx context.Context, ownerID, id string) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, title, description, start_at, end_at FROM events WHERE owner_id = ? AND id = ?", ownerID, id)
	e, err := scanEvent(row)
	if err != nil {
		return nil, notFound(err, "event")
	}
	return e, nil
}

// UpdateEvent applies the non-nil fields of upd.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, ownerID, id string, upd domain.EventUpdate) (*domain.Event, error) {
	e, err := s.getEvent(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		e.Title = *upd.Title
	}
	if upd.Description != nil {
		e.Description = *upd.Description
	}
	if upd.Start != nil {
		e.Start = upd.Start.UTC()
	}
	if upd.End != nil {
		e.End = upd.End.UTC()
	}
	if err := checkSpan(e.Start, e.End); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE events SET title = ?, description = ?, start_at = ?, end_at = ? WHERE id = ?",
		e.Title, e.Description, formatTime(e.Start), formatTime(e.End), id,
	); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) DeleteEvent(ctx context.Context, ownerID, id string) (*domain.Event, error) {
	e, err := s.getEvent(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("delete event: %w", err)
	}
	return e, nil
}

// ListEvents returns events starting in [from, to), ordered by start.
func (s *SQLiteStore) ListEvents(ctx context.Context, ownerID string, from, to time.Time) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, description, start_at, end_at FROM events
		 WHERE owner_id = ? AND start_at >= ? AND start_at < ? ORDER BY start_at`,
		ownerID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	out := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEvent(row scanner) (*domain.Event, error) {
	var e domain.Event
	var start, end string
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &start, &end); err != nil {
		return nil, err
	}
	e.Start, e.End = parseTime(start), parseTime(end)
	return &e, nil
}

// --- routines ---

func (s *SQLiteStore) CreateRoutine(ctx context.Context, ownerID string, r domain.Routine) (*domain.Routine, error) {
	if r.Days == 0 {
		return nil, fmt.Errorf("%w: routine needs at least one weekday", domain.ErrInvalidInput)
	}
	r.ID = newID(s.now())
	r.OwnerID = ownerID
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO routines (id, owner_id, title, description, flexible, start_time, end_time, days)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, ownerID, r.Title, r.Description, boolInt(r.Flexible), r.StartTime, r.EndTime, int(r.Days),
	); err != nil {
		return nil, fmt.Errorf("insert routine: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) ListRoutines(ctx context.Context, ownerID string) ([]domain.Routine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, description, flexible, start_time, end_time, days
		 FROM routines WHERE owner_id = ? ORDER BY start_time, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	defer rows.Close()
	out := []domain.Routine{}
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteRoutine(ctx context.Context, ownerID, id string) (*domain.Routine, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, description, flexible, start_time, end_time, days
		 FROM routines WHERE owner_id = ? AND id = ?`, ownerID, id)
	r, err := scanRoutine(row)
	if err != nil {
		return nil, notFound(err, "routine")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM routines WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("delete routine: %w", err)
	}
	return r, nil
}

func scanRoutine(row scanner) (*domain.Routine, error) {
	var r domain.Routine
	var flexible, days int
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Description, &flexible, &r.StartTime, &r.EndTime, &days); err != nil {
		return nil, err
	}
	r.Flexible = flexible != 0
	r.Days = domain.Weekdays(days)
	return &r, nil
}

package postgres

import (
	"context"
	"database/sql"

	"rolechat/internal/domain/roleplay/port"
)

const eventColumns = `id, role_id, session_id, title, description, date, tags, is_active, selected, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*port.Event, error) {
	e := &port.Event{}
	err := row.Scan(&e.ID, &e.RoleID, &e.SessionID, &e.Title, &e.Description, &e.Date, &e.Tags,
		&e.IsActive, &e.Selected, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *Repository) CreateEvent(ctx context.Context, e *port.Event) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO memory_events (role_id, session_id, title, description, date, tags, is_active, selected)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		e.RoleID, e.SessionID, e.Title, e.Description, e.Date, e.Tags, e.IsActive, e.Selected,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	return mapError(err)
}

func (r *Repository) GetEvent(ctx context.Context, id int64) (*port.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM memory_events WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (r *Repository) listEvents(ctx context.Context, where string, args ...any) ([]*port.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM memory_events `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*port.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *Repository) ListEvents(ctx context.Context) ([]*port.Event, error) {
	return r.listEvents(ctx, "")
}

func (r *Repository) ListEventsBySession(ctx context.Context, sessionID int64) ([]*port.Event, error) {
	return r.listEvents(ctx, `WHERE session_id = $1`, sessionID)
}

func (r *Repository) UpdateEvent(ctx context.Context, id int64, patch port.EventPatch) (*port.Event, error) {
	var out *port.Event
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		e, err := scanEvent(tx.QueryRowContext(ctx,
			`SELECT `+eventColumns+` FROM memory_events WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapError(err)
		}
		patch.Apply(e)
		out, err = scanEvent(tx.QueryRowContext(ctx,
			`UPDATE memory_events SET role_id=$1, session_id=$2, title=$3, description=$4, date=$5,
			 tags=$6, is_active=$7, selected=$8, updated_at=NOW()
			 WHERE id=$9 RETURNING `+eventColumns,
			e.RoleID, e.SessionID, e.Title, e.Description, e.Date, e.Tags, e.IsActive, e.Selected, id,
		))
		return mapError(err)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) DeleteEvent(ctx context.Context, id int64) (*port.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx,
		`DELETE FROM memory_events WHERE id = $1 RETURNING `+eventColumns, id))
	if err != nil {
		return nil, mapError(err)
	}
	return e, nil
}

package postgres

import (
	"context"
	"database/sql"

	"rolechat/internal/domain/roleplay/port"
)

const sessionColumns = `id, role_id, user_id, title, rule, sessions_input, is_active, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*port.ChatSession, error) {
	s := &port.ChatSession{}
	var userID sql.NullInt64
	err := row.Scan(&s.ID, &s.RoleID, &userID, &s.Title, &s.Rule, &s.SessionsInput, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := userID.Int64
		s.UserID = &uid
	}
	return s, nil
}

func (r *Repository) CreateSession(ctx context.Context, s *port.ChatSession) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO chat_sessions (role_id, user_id, title, rule, sessions_input, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		s.RoleID, nullInt64(s.UserID), s.Title, s.Rule, s.SessionsInput, s.IsActive,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return mapError(err)
}

func (r *Repository) GetSession(ctx context.Context, id int64) (*port.ChatSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *Repository) listSessions(ctx context.Context, tail string, args ...any) ([]*port.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*port.ChatSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *Repository) ListSessions(ctx context.Context) ([]*port.ChatSession, error) {
	return r.listSessions(ctx, `ORDER BY id`)
}

func (r *Repository) ListSessionsByRole(ctx context.Context, roleID int64) ([]*port.ChatSession, error) {
	return r.listSessions(ctx, `WHERE role_id = $1 ORDER BY created_at DESC, id DESC`, roleID)
}

func (r *Repository) UpdateSession(ctx context.Context, id int64, patch port.SessionPatch) (*port.ChatSession, error) {
	var out *port.ChatSession
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		s, err := scanSession(tx.QueryRowContext(ctx,
			`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapError(err)
		}
		patch.Apply(s)
		out, err = scanSession(tx.QueryRowContext(ctx,
			`UPDATE chat_sessions SET role_id=$1, user_id=$2, title=$3, rule=$4, sessions_input=$5,
			 is_active=$6, updated_at=NOW()
			 WHERE id=$7 RETURNING `+sessionColumns,
			s.RoleID, nullInt64(s.UserID), s.Title, s.Rule, s.SessionsInput, s.IsActive, id,
		))
		return mapError(err)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSession 消息随外键级联删除，仍有记忆或事件时拒绝
func (r *Repository) DeleteSession(ctx context.Context, id int64) error {
	return execDelete(ctx, r.db, port.ErrSessionInUse, `DELETE FROM chat_sessions WHERE id = $1`, id)
}

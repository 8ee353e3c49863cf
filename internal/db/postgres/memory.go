package postgres

import (
	"context"
	"database/sql"

	"rolechat/internal/domain/roleplay/port"
)

const memoryColumns = `id, role_id, session_id, content, token_count, section, tags, is_active, selected, created_at, updated_at`

func scanMemory(row interface{ Scan(...any) error }) (*port.Memory, error) {
	m := &port.Memory{}
	err := row.Scan(&m.ID, &m.RoleID, &m.SessionID, &m.Content, &m.TokenCount, &m.Section, &m.Tags,
		&m.IsActive, &m.Selected, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) CreateMemory(ctx context.Context, m *port.Memory) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO memory_memories (role_id, session_id, content, token_count, section, tags, is_active, selected)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		m.RoleID, m.SessionID, m.Content, m.TokenCount, m.Section, m.Tags, m.IsActive, m.Selected,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	return mapError(err)
}

func (r *Repository) GetMemory(ctx context.Context, id int64) (*port.Memory, error) {
	m, err := scanMemory(r.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memory_memories WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *Repository) listMemories(ctx context.Context, where string, args ...any) ([]*port.Memory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memory_memories `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mems := []*port.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		mems = append(mems, m)
	}
	return mems, rows.Err()
}

func (r *Repository) ListMemories(ctx context.Context) ([]*port.Memory, error) {
	return r.listMemories(ctx, "")
}

func (r *Repository) ListMemoriesBySession(ctx context.Context, sessionID int64) ([]*port.Memory, error) {
	return r.listMemories(ctx, `WHERE session_id = $1`, sessionID)
}

func (r *Repository) ListActiveMemories(ctx context.Context, sessionID int64) ([]*port.Memory, error) {
	return r.listMemories(ctx, `WHERE session_id = $1 AND is_active = TRUE`, sessionID)
}

func (r *Repository) UpdateMemory(ctx context.Context, id int64, patch port.MemoryPatch) (*port.Memory, error) {
	var out *port.Memory
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		m, err := scanMemory(tx.QueryRowContext(ctx,
			`SELECT `+memoryColumns+` FROM memory_memories WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapError(err)
		}
		patch.Apply(m)
		out, err = scanMemory(tx.QueryRowContext(ctx,
			`UPDATE memory_memories SET role_id=$1, session_id=$2, content=$3, token_count=$4, section=$5,
			 tags=$6, is_active=$7, selected=$8, updated_at=NOW()
			 WHERE id=$9 RETURNING `+memoryColumns,
			m.RoleID, m.SessionID, m.Content, m.TokenCount, m.Section, m.Tags, m.IsActive, m.Selected, id,
		))
		return mapError(err)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) DeleteMemory(ctx context.Context, id int64) (*port.Memory, error) {
	m, err := scanMemory(r.db.QueryRowContext(ctx,
		`DELETE FROM memory_memories WHERE id = $1 RETURNING `+memoryColumns, id))
	if err != nil {
		return nil, mapError(err)
	}
	return m, nil
}

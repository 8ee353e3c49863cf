package postgres

import (
	"context"
	"database/sql"

	"rolechat/internal/domain/roleplay/port"
)

func (r *Repository) CreateUser(ctx context.Context, u *port.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, created_at`,
		u.Username, u.PasswordHash,
	).Scan(&u.ID, &u.CreatedAt)
	return mapError(err)
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (*port.User, error) {
	u := &port.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*port.User, error) {
	return r.getUser(ctx, `id = $1`, id)
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*port.User, error) {
	return r.getUser(ctx, `username = $1`, username)
}

func (r *Repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return execAffected(ctx, r.db, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
}

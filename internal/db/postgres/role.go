package postgres

import (
	"context"
	"database/sql"

	"rolechat/internal/domain/roleplay/port"
)

const roleColumns = `r.id, r.name, r.age, r.occupation, r.description, r.personality, r.speaking_style,
	r.hobbies, r.worldview, r.category, r.image, r.is_public, r.user_id, r.created_at, r.updated_at`

func scanRole(row interface{ Scan(...any) error }) (*port.Role, error) {
	r := &port.Role{}
	var age sql.NullInt32
	err := row.Scan(&r.ID, &r.Name, &age, &r.Occupation, &r.Description, &r.Personality, &r.SpeakingStyle,
		&r.Hobbies, &r.Worldview, &r.Category, &r.Image, &r.IsPublic, &r.UserID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if age.Valid {
		a := int(age.Int32)
		r.Age = &a
	}
	return r, nil
}

func nullAge(age *int) interface{} {
	if age == nil {
		return nil
	}
	return *age
}

func (r *Repository) CreateRole(ctx context.Context, role *port.Role) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO roles (name, age, occupation, description, personality, speaking_style, hobbies,
		 worldview, category, image, is_public, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		role.Name, nullAge(role.Age), role.Occupation, role.Description, role.Personality, role.SpeakingStyle,
		role.Hobbies, role.Worldview, role.Category, role.Image, role.IsPublic, role.UserID,
	).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	return mapError(err)
}

func (r *Repository) getRole(ctx context.Context, query string, arg int64) (*port.Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return role, err
}

func (r *Repository) GetRole(ctx context.Context, id int64) (*port.Role, error) {
	return r.getRole(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = $1`, id)
}

func (r *Repository) GetRoleBySession(ctx context.Context, sessionID int64) (*port.Role, error) {
	return r.getRole(ctx,
		`SELECT `+roleColumns+` FROM roles r JOIN chat_sessions s ON s.role_id = r.id WHERE s.id = $1`,
		sessionID)
}

func (r *Repository) listRoles(ctx context.Context, query string, args ...any) ([]*port.Role, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []*port.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *Repository) ListRoles(ctx context.Context) ([]*port.Role, error) {
	return r.listRoles(ctx, `SELECT `+roleColumns+` FROM roles r ORDER BY r.id`)
}

func (r *Repository) ListPublicRoles(ctx context.Context) ([]*port.Role, error) {
	return r.listRoles(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.is_public = TRUE ORDER BY r.id`)
}

func (r *Repository) ListRolesByUser(ctx context.Context, userID int64) ([]*port.Role, error) {
	return r.listRoles(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.user_id = $1 ORDER BY r.id`, userID)
}

func (r *Repository) ListChattingRoles(ctx context.Context, userID int64) ([]*port.Role, error) {
	return r.listRoles(ctx,
		`SELECT `+roleColumns+` FROM roles r
		 WHERE r.id IN (SELECT DISTINCT role_id FROM chat_sessions WHERE user_id = $1)
		 ORDER BY r.id`, userID)
}

func (r *Repository) UpdateRole(ctx context.Context, id int64, patch port.RolePatch) (*port.Role, error) {
	var out *port.Role
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		role, err := scanRole(tx.QueryRowContext(ctx,
			`SELECT `+roleColumns+` FROM roles r WHERE r.id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapError(err)
		}
		patch.Apply(role)
		_, err = tx.ExecContext(ctx,
			`UPDATE roles SET name=$1, age=$2, occupation=$3, description=$4, personality=$5, speaking_style=$6,
			 hobbies=$7, worldview=$8, category=$9, image=$10, is_public=$11, updated_at=NOW()
			 WHERE id=$12`,
			role.Name, nullAge(role.Age), role.Occupation, role.Description, role.Personality, role.SpeakingStyle,
			role.Hobbies, role.Worldview, role.Category, role.Image, role.IsPublic, id,
		)
		if err != nil {
			return mapError(err)
		}
		out, err = scanRole(tx.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = $1`, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) DeleteRole(ctx context.Context, id int64) (*port.Role, error) {
	var out *port.Role
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		role, err := scanRole(tx.QueryRowContext(ctx,
			`SELECT `+roleColumns+` FROM roles r WHERE r.id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapError(err)
		}
		if err := execDelete(ctx, tx, port.ErrRoleInUse, `DELETE FROM roles WHERE id = $1`, id); err != nil {
			return err
		}
		out = role
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"rolechat/internal/domain/roleplay/port"
)

const modelAPIColumns = `id, user_id, name, provider, config, is_active, created_at`

func scanModelAPI(row interface{ Scan(...any) error }) (*port.ModelAPI, error) {
	m := &port.ModelAPI{}
	var cfg []byte
	if err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Provider, &cfg, &m.IsActive, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Config = json.RawMessage(cfg)
	return m, nil
}

func configJSON(cfg json.RawMessage) string {
	if len(cfg) == 0 {
		return "{}"
	}
	return string(cfg)
}

func (r *Repository) CreateModelAPI(ctx context.Context, m *port.ModelAPI) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO model_apis (user_id, name, provider, config, is_active)
		 VALUES ($1, $2, $3, $4::jsonb, $5) RETURNING id, created_at`,
		m.UserID, m.Name, m.Provider, configJSON(m.Config), m.IsActive,
	).Scan(&m.ID, &m.CreatedAt)
	return mapError(err)
}

// userID 为 0 时不按用户过滤
const ownedModelAPI = `id = $1 AND ($2::bigint = 0 OR user_id = $2)`

func (r *Repository) GetModelAPI(ctx context.Context, id, userID int64) (*port.ModelAPI, error) {
	m, err := scanModelAPI(r.db.QueryRowContext(ctx,
		`SELECT `+modelAPIColumns+` FROM model_apis WHERE `+ownedModelAPI, id, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *Repository) ListModelAPIs(ctx context.Context, userID int64) ([]*port.ModelAPI, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+modelAPIColumns+` FROM model_apis WHERE ($1::bigint = 0 OR user_id = $1) ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apis := []*port.ModelAPI{}
	for rows.Next() {
		m, err := scanModelAPI(rows)
		if err != nil {
			return nil, err
		}
		apis = append(apis, m)
	}
	return apis, rows.Err()
}

func (r *Repository) UpdateModelAPI(ctx context.Context, id, userID int64, patch port.ModelAPIPatch) (*port.ModelAPI, error) {
	var out *port.ModelAPI
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		m, err := scanModelAPI(tx.QueryRowContext(ctx,
			`SELECT `+modelAPIColumns+` FROM model_apis WHERE `+ownedModelAPI+` FOR UPDATE`, id, userID))
		if err != nil {
			return mapError(err)
		}
		patch.Apply(m)
		out, err = scanModelAPI(tx.QueryRowContext(ctx,
			`UPDATE model_apis SET name=$1, config=$2::jsonb, is_active=$3 WHERE id=$4
			 RETURNING `+modelAPIColumns,
			m.Name, configJSON(m.Config), m.IsActive, id,
		))
		return mapError(err)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) DeleteModelAPI(ctx context.Context, id, userID int64) error {
	return execAffected(ctx, r.db, `DELETE FROM model_apis WHERE `+ownedModelAPI, id, userID)
}

package postgres

import (
	"context"

	applog "rolechat/internal/platform/log"
)

// EnsureSchema 确保全部业务表存在（幂等）
func (r *Repository) EnsureSchema(ctx context.Context) error {
	applog.Info("[Storage] Ensuring schema...")
	ddl := `
	CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      VARCHAR(64) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS roles (
		id             BIGSERIAL PRIMARY KEY,
		name           VARCHAR(255) NOT NULL,
		age            INTEGER,
		occupation     VARCHAR(255) NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		personality    TEXT NOT NULL DEFAULT '',
		speaking_style TEXT NOT NULL DEFAULT '',
		hobbies        TEXT NOT NULL DEFAULT '',
		worldview      TEXT NOT NULL DEFAULT '',
		category       VARCHAR(64) NOT NULL DEFAULT '',
		image          VARCHAR(1024) NOT NULL DEFAULT '',
		is_public      BOOLEAN NOT NULL DEFAULT FALSE,
		user_id        BIGINT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_roles_user ON roles(user_id);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id             BIGSERIAL PRIMARY KEY,
		role_id        BIGINT NOT NULL REFERENCES roles(id),
		user_id        BIGINT,
		title          VARCHAR(255) NOT NULL DEFAULT '',
		rule           TEXT NOT NULL DEFAULT '',
		sessions_input TEXT NOT NULL DEFAULT '',
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_role ON chat_sessions(role_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON chat_sessions(user_id);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id         BIGSERIAL PRIMARY KEY,
		session_id BIGINT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		sender     VARCHAR(16) NOT NULL CHECK (sender IN ('user', 'assistant')),
		message    TEXT NOT NULL,
		timestamp  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session_id ON chat_messages(session_id, id DESC);

	CREATE TABLE IF NOT EXISTS memory_memories (
		id          BIGSERIAL PRIMARY KEY,
		role_id     BIGINT NOT NULL REFERENCES roles(id),
		session_id  BIGINT NOT NULL REFERENCES chat_sessions(id),
		content     TEXT NOT NULL DEFAULT '',
		token_count INTEGER NOT NULL DEFAULT 0,
		section     VARCHAR(64) NOT NULL DEFAULT '',
		tags        VARCHAR(255) NOT NULL DEFAULT '',
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		selected    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_memories_session_active ON memory_memories(session_id, is_active);

	CREATE TABLE IF NOT EXISTS memory_events (
		id          BIGSERIAL PRIMARY KEY,
		role_id     BIGINT NOT NULL REFERENCES roles(id),
		session_id  BIGINT NOT NULL REFERENCES chat_sessions(id),
		title       VARCHAR(255) NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		date        VARCHAR(64) NOT NULL DEFAULT '',
		tags        VARCHAR(255) NOT NULL DEFAULT '',
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		selected    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_events_session ON memory_events(session_id);

	CREATE TABLE IF NOT EXISTS model_apis (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL,
		name       VARCHAR(255) NOT NULL,
		provider   VARCHAR(32) NOT NULL,
		config     JSONB NOT NULL DEFAULT '{}',
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_model_apis_user ON model_apis(user_id);
	`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		applog.Error("[Storage] ❌ Failed to ensure schema", "error", err)
		return err
	}
	applog.Info("[Storage] ✅ Schema ready")
	return nil
}

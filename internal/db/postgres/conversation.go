package postgres

import (
	"context"
	"database/sql"

	"rolechat/internal/domain/roleplay/port"
)

const messageColumns = `id, session_id, sender, message, timestamp, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*port.ChatMessage, error) {
	m := &port.ChatMessage{}
	var sender string
	if err := row.Scan(&m.ID, &m.SessionID, &sender, &m.Message, &m.Timestamp, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Sender = port.Sender(sender)
	return m, nil
}

// appendMessage 会话不存在时不插入，返回 ErrNotFound
func appendMessage(ctx context.Context, q queryer, sessionID int64, sender port.Sender, text string) (*port.ChatMessage, error) {
	row := q.QueryRowContext(ctx,
		`INSERT INTO chat_messages (session_id, sender, message)
		 SELECT $1::bigint, $2::text, $3::text WHERE EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1)
		 RETURNING `+messageColumns,
		sessionID, string(sender), text,
	)
	m, err := scanMessage(row)
	if err != nil {
		return nil, mapError(err)
	}
	return m, nil
}

func (r *Repository) AppendMessage(ctx context.Context, sessionID int64, sender port.Sender, text string) (*port.ChatMessage, error) {
	return appendMessage(ctx, r.db, sessionID, sender, text)
}

func (r *Repository) AppendTurn(ctx context.Context, sessionID int64, userText, assistantText string) (*port.ChatMessage, *port.ChatMessage, error) {
	var userMsg, assistantMsg *port.ChatMessage
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if userMsg, err = appendMessage(ctx, tx, sessionID, port.SenderUser, userText); err != nil {
			return err
		}
		assistantMsg, err = appendMessage(ctx, tx, sessionID, port.SenderAssistant, assistantText)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return userMsg, assistantMsg, nil
}

func (r *Repository) RecentMessages(ctx context.Context, sessionID int64, limit int) ([]*port.ChatMessage, error) {
	return r.ListMessages(ctx, sessionID, limit, 0)
}

func (r *Repository) CountMessages(ctx context.Context, sessionID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`, sessionID,
	).Scan(&n)
	return n, err
}

// ListMessages 同一事务写入的两条消息时间戳相同，按 id 排序保证稳定
func (r *Repository) ListMessages(ctx context.Context, sessionID int64, limit, offset int) ([]*port.ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM chat_messages
		 WHERE session_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*port.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *Repository) GetMessage(ctx context.Context, id int64) (*port.ChatMessage, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *Repository) UpdateMessageText(ctx context.Context, id int64, text string) (*port.ChatMessage, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		`UPDATE chat_messages SET message = $1, updated_at = NOW() WHERE id = $2
		 RETURNING `+messageColumns,
		text, id,
	))
	if err != nil {
		return nil, mapError(err)
	}
	return m, nil
}

func (r *Repository) DeleteMessage(ctx context.Context, id int64) error {
	return execAffected(ctx, r.db, `DELETE FROM chat_messages WHERE id = $1`, id)
}

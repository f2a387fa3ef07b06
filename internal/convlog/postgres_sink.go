package convlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/AyushPatel04/dental-chatbot/internal/chatflow"
)

// PostgresSink appends exchanges to the conversation_logs table.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	if db == nil {
		panic("convlog: db cannot be nil")
	}
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, ex chatflow.Exchange) error {
	payload, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("convlog: marshal exchange: %w", err)
	}
	replies := make([]string, 0, len(ex.Replies))
	for _, msg := range ex.Replies {
		replies = append(replies, msg.Content)
	}

	query := `
		INSERT INTO conversation_logs (session_id, stage, user_message, bot_replies, payload, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query,
		ex.SessionID,
		ex.Stage,
		ex.User.Content,
		pq.Array(replies),
		payload,
		ex.At,
	); err != nil {
		return fmt.Errorf("convlog: insert conversation log: %w", err)
	}
	return nil
}

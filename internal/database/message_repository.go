package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/chatwire/internal/domain"
)

// MessageRepo implements domain.MessageRepository backed by PostgreSQL.
// Messages are append-only; there is no update or delete path.
type MessageRepo struct {
	pool *pgxpool.Pool
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Insert(ctx context.Context, msg *domain.Message) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, channel_id, sender, body, sent_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.MessageID, msg.ChannelID, msg.Sender, msg.Text, msg.SentAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListByChannel(ctx context.Context, channelID string) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, channel_id, sender, body, sent_at
		FROM messages
		WHERE channel_id = $1
		ORDER BY sent_at, id
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg := domain.Message{Type: domain.KindMessage}
		if err := rows.Scan(&msg.MessageID, &msg.ChannelID, &msg.Sender, &msg.Text, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return messages, nil
}

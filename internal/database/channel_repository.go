package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/chatwire/internal/domain"
)

// ChannelRepo implements domain.ChannelRepository backed by PostgreSQL.
type ChannelRepo struct {
	pool *pgxpool.Pool
}

var _ domain.ChannelRepository = (*ChannelRepo)(nil)

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

// Create records a channel. Creating an existing channel is a no-op, so
// clients can treat channel creation as idempotent.
func (r *ChannelRepo) Create(ctx context.Context, ch domain.Channel) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO channels (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, ch.ID)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	return nil
}

func (r *ChannelRepo) List(ctx context.Context) ([]domain.Channel, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read channels: %w", err)
	}
	return channels, nil
}

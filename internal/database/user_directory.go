package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/chatwire/internal/domain"
)

// UserDirectory implements domain.UserDirectory backed by PostgreSQL. Users
// are recorded on first authenticated connect and never removed, so the
// users listing can include offline users.
type UserDirectory struct {
	pool *pgxpool.Pool
}

var _ domain.UserDirectory = (*UserDirectory)(nil)

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) EnsureUser(ctx context.Context, username string) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO users (username) VALUES ($1)
		ON CONFLICT (username) DO NOTHING
	`, username)
	if err != nil {
		return fmt.Errorf("failed to record user: %w", err)
	}
	return nil
}

func (d *UserDirectory) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT username FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var usernames []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		usernames = append(usernames, username)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return usernames, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is a registered account.
type User struct {
	ID        string
	Username  string
	Password  string // bcrypt hash
	CreatedAt time.Time
}

// CreateUser inserts a new user with a generated id and returns it.
func (s *Store) CreateUser(ctx context.Context, username, hashedPassword string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &User{
		ID:        uuid.NewString(),
		Username:  username,
		Password:  hashedPassword,
		CreatedAt: time.Now(),
	}

	query := `INSERT INTO users (id, username, password, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.GetDB().ExecContext(ctx, query,
		user.ID, user.Username, user.Password, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUserByUsername retrieves a user by username. Returns nil when not found.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, username, password, created_at FROM users WHERE username = ?`

	var user User
	err := s.db.GetDB().QueryRowContext(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.Password, &user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pvs_monitor/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

var _ Authorization = (*UserRepository)(nil)

const (
	insertUserSQL           = `INSERT INTO users (username, password_hash) VALUES (?, ?)`
	selectUserByUsernameSQL = `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`
)

// Create inserts a new operator and returns its ID.
func (r *UserRepository) Create(ctx context.Context, username, passwordHash string) (int, error) {
	res, err := r.db.ExecContext(ctx, insertUserSQL, username, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", username, err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for user %q: %w", username, err)
	}
	return int(lastID), nil
}

// GetByUsername returns (nil, nil) if the user does not exist.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx, selectUserByUsernameSQL, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user %q: %w", username, err)
	}
	return &u, nil
}

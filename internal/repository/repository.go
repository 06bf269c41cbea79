package repository

import (
	"context"
	"database/sql"
	"time"

	"pvs_monitor/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// SnapshotRepo keeps the latest record of every device; older values are overwritten.
type SnapshotRepo interface {
	Save(ctx context.Context, devices []models.DeviceRecord, at time.Time) error
	Load(ctx context.Context) (models.Snapshot, error)
}

// EventFilter narrows an event listing. Zero values disable a condition.
type EventFilter struct {
	From  time.Time
	To    time.Time
	Type  string
	Limit int
}

type EventRepo interface {
	Append(ctx context.Context, e models.PollEvent) error
	List(ctx context.Context, f EventFilter) ([]models.PollEvent, error)
}

type Repository struct {
	Snapshots SnapshotRepo
	Events    EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Snapshots: NewSnapshotSQLite(db),
		Events:    NewEventSQLite(db),
		Auth:      NewUserRepository(db),
	}
}

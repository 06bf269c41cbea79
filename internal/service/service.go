package service

import (
	"context"
	"time"

	"pvs_monitor/internal/models"
	"pvs_monitor/internal/poller"
	"pvs_monitor/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Monitoring exposes the read-only device view.
type Monitoring interface {
	Devices(ctx context.Context, deviceType string) ([]DeviceView, error)
	Device(ctx context.Context, serial string) (DeviceView, error)
	Capability() (models.Capability, error)
	Snapshot() models.Snapshot
}

// Polling exposes the scheduler to the API.
type Polling interface {
	Trigger(ctx context.Context) (models.Snapshot, error)
	Status() poller.Status
	Subscribe() (<-chan models.Snapshot, func())
}

type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.PollEvent, error)
}

type Service struct {
	Monitoring
	Polling
	EventLog
	Authorization
}

type Options struct {
	Naming NamingOptions
	Auth   AuthOptions
}

// NewService wires the repository layer and the poll service into the API-facing services.
func NewService(repos *repository.Repository, polls *PollService, opts Options) *Service {
	return &Service{
		Monitoring:    NewMonitoringService(polls, opts.Naming),
		Polling:       polls,
		EventLog:      NewEventLogService(repos.Events),
		Authorization: NewAuthService(repos.Auth, opts.Auth),
	}
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From  time.Time // inclusive; zero means no lower bound
	To    time.Time // inclusive; zero means no upper bound
	Type  string    // "", "INITIALIZED", "SETUP_FAILED", "POLL_OK", "POLL_PARTIAL", "POLL_FAILED", ...
	Limit int       // newest N; zero means all
}

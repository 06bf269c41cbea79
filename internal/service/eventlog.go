package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"pvs_monitor/internal/models"
	"pvs_monitor/internal/repository"
)

// MaxLogLimit caps a single listing.
const MaxLogLimit = 1000

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
	errInvalidLimit     = errors.New("invalid limit: must not be negative")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter turns an API filter into the repository query.
func normalizeAndValidateFilter(f LogFilter) (repository.EventFilter, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return repository.EventFilter{}, errInvalidTimeRange
	}
	if f.Limit < 0 {
		return repository.EventFilter{}, errInvalidLimit
	}
	limit := f.Limit
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	return repository.EventFilter{
		From:  from,
		To:    to,
		Type:  normalizeEventType(f.Type),
		Limit: limit,
	}, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.PollEvent, error) {
	rf, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, rf)
}

// Record appends an event, stamping it now when no time is set.
func (s *EventLogService) Record(ctx context.Context, typ, description string, meta any) error {
	return s.eventRepo.Append(ctx, models.PollEvent{
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: description,
		Metadata:    meta,
	})
}

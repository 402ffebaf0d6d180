package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mount_modeling/internal/models"
	"mount_modeling/internal/repository"
)

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: from must be <= to")
	errUnknownEventType = errors.New("unknown event type")
)

var knownEventTypes = map[string]bool{
	models.EventRunStart:   true,
	models.EventRunFinish:  true,
	models.EventRunCancel:  true,
	models.EventPoint:      true,
	models.EventModel:      true,
	models.EventConnection: true,
	models.EventError:      true,
}

func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType accepts "run-start", " point " and the like.
func normalizeEventType(s string) string {
	s = strings.TrimSpace(strings.ToUpper(s))
	return strings.ReplaceAll(s, "-", "_")
}

type logQuery struct {
	from, to time.Time
	typ      string
}

func normalizeFilter(f LogFilter) (logQuery, error) {
	q := logQuery{
		from: normalizeToUTC(f.From),
		to:   normalizeToUTC(f.To),
		typ:  normalizeEventType(f.Type),
	}
	if !q.from.IsZero() && !q.to.IsZero() && q.from.After(q.to) {
		return logQuery{}, errInvalidTimeRange
	}
	if q.typ != "" && !knownEventTypes[q.typ] {
		return logQuery{}, fmt.Errorf("%w: %q", errUnknownEventType, f.Type)
	}
	return q, nil
}

// List returns the model log history, oldest first.
func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.ModelEvent, error) {
	q, err := normalizeFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, q.from, q.to, q.typ)
}

// IsValidationError reports whether err comes from a bad filter.
func IsValidationError(err error) bool {
	return errors.Is(err, errInvalidTimeRange) || errors.Is(err, errUnknownEventType)
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mount_modeling/internal/models"
)

// fakeEventRepo records appended events and the last List query.
type fakeEventRepo struct {
	mu sync.Mutex

	appended  []models.ModelEvent
	appendErr error

	gotFrom time.Time
	gotTo   time.Time
	gotType string
	events  []models.ModelEvent
	listErr error
	calls   int
}

func (f *fakeEventRepo) Append(_ context.Context, e models.ModelEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, e)
	return f.appendErr
}

func (f *fakeEventRepo) List(_ context.Context, from, to time.Time, typ string) ([]models.ModelEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotFrom, f.gotTo, f.gotType = from, to, typ
	return f.events, f.listErr
}

func (f *fakeEventRepo) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.appended))
	for _, e := range f.appended {
		out = append(out, e.Type)
	}
	return out
}

func Test_normalizeEventType(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":             "",
		"  POINT ":     "POINT",
		"error":        "ERROR",
		" run-start ":  "RUN_START",
		"Run_Finish":   "RUN_FINISH",
		"connection\t": "CONNECTION",
	}
	for in, want := range cases {
		if got := normalizeEventType(in); got != want {
			t.Errorf("normalizeEventType(%q) = %q; want %q", in, got, want)
		}
	}
}

func Test_normalizeFilter(t *testing.T) {
	t.Parallel()

	plus2 := time.FixedZone("UTC+2", 2*3600)
	tests := []struct {
		name     string
		in       LogFilter
		wantFrom time.Time
		wantType string
		wantErr  error
	}{
		{name: "empty filter", in: LogFilter{}},
		{
			name:     "zone and type normalized",
			in:       LogFilter{From: time.Date(2026, 3, 1, 22, 0, 0, 0, plus2), Type: "model"},
			wantFrom: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
			wantType: models.EventModel,
		},
		{
			name: "from after to",
			in: LogFilter{
				From: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			},
			wantErr: errInvalidTimeRange,
		},
		{name: "unknown type", in: LogFilter{Type: "TELEMETRY"}, wantErr: errUnknownEventType},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q, err := normalizeFilter(tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v; want %v", err, tc.wantErr)
			}
			if err != nil {
				if !IsValidationError(err) {
					t.Fatalf("expected a validation error, got %v", err)
				}
				return
			}
			if !q.from.Equal(tc.wantFrom) || (!q.from.IsZero() && q.from.Location() != time.UTC) {
				t.Fatalf("from = %v; want %v in UTC", q.from, tc.wantFrom)
			}
			if q.typ != tc.wantType {
				t.Fatalf("type = %q; want %q", q.typ, tc.wantType)
			}
		})
	}
}

func TestEventLogService_List_PassesNormalizedQuery(t *testing.T) {
	frepo := &fakeEventRepo{events: []models.ModelEvent{{EventID: "e-1", Type: models.EventPoint}}}
	svc := NewEventLogService(frepo)

	minus5 := time.FixedZone("UTC-5", -5*3600)
	out, err := svc.List(context.Background(), LogFilter{
		From: time.Date(2026, 4, 10, 19, 0, 0, 0, minus5),
		To:   time.Date(2026, 4, 11, 6, 0, 0, 0, time.UTC),
		Type: " point",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].EventID != "e-1" {
		t.Fatalf("unexpected events: %+v", out)
	}
	if !frepo.gotFrom.Equal(time.Date(2026, 4, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from passed to repo = %v", frepo.gotFrom)
	}
	if frepo.gotType != models.EventPoint {
		t.Fatalf("type passed to repo = %q", frepo.gotType)
	}
}

func TestEventLogService_List_RejectsBeforeQuerying(t *testing.T) {
	frepo := &fakeEventRepo{}
	svc := NewEventLogService(frepo)

	if _, err := svc.List(context.Background(), LogFilter{Type: "STOP"}); !errors.Is(err, errUnknownEventType) {
		t.Fatalf("expected errUnknownEventType, got %v", err)
	}
	if frepo.calls != 0 {
		t.Fatalf("repo queried %d times on a bad filter", frepo.calls)
	}
}

func TestEventLogService_List_RepoError(t *testing.T) {
	frepo := &fakeEventRepo{listErr: errors.New("db down")}
	svc := NewEventLogService(frepo)

	if _, err := svc.List(context.Background(), LogFilter{}); !errors.Is(err, frepo.listErr) {
		t.Fatalf("expected repo error, got %v", err)
	}
}

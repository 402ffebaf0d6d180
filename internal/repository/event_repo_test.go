package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"mount_modeling/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

// timestampArg matches a stored timestamp string within a window around now.
type timestampArg struct{}

func (timestampArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	ts, err := time.Parse(timestampLayout, s)
	if err != nil {
		return false
	}
	return time.Since(ts).Abs() < 5*time.Second
}

var eventColumns = []string{"id", "run_id", "occurred_at", "type", "message", "meta"}

func TestEventSQLite_AppendFillsDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	repo := NewEventSQLite(db)

	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WithArgs(sqlmock.AnyArg(), "run-1", timestampArg{}, "POINT", "point 1 committed", `{"index":1}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Append(testCtx(t), models.ModelEvent{
		RunID:       "run-1",
		Type:        " point ",
		Description: "point 1 committed",
		Metadata:    map[string]int{"index": 1},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventSQLite_AppendWithoutRunOrMeta(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	repo := NewEventSQLite(db)

	at := time.Date(2026, 3, 1, 21, 30, 0, 0, time.FixedZone("CET", 3600))
	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WithArgs("ev-1", nil, "2026-03-01 20:30:00.000", "CONNECTION", "mount connected", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Append(testCtx(t), models.ModelEvent{
		EventID:     "ev-1",
		OccurredAt:  at,
		Type:        models.EventConnection,
		Description: "mount connected",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventSQLite_AppendDBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	repo := NewEventSQLite(db)

	mock.ExpectExec("INSERT INTO model_events").WillReturnError(errors.New("database is locked"))

	err = repo.Append(testCtx(t), models.ModelEvent{Type: models.EventError, Description: "x"})
	if err == nil || !strings.Contains(err.Error(), "locked") {
		t.Fatalf("expected error, got %v", err)
	}
}

func TestEventSQLite_ListNoFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	repo := NewEventSQLite(db)

	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	meta, _ := json.Marshal(map[string]any{"stars": 12.0})
	rows := sqlmock.NewRows(eventColumns).
		AddRow("1", "run-1", now, "MODEL", "model saved as BASE", string(meta)).
		AddRow("2", nil, now.Add(time.Minute), "CONNECTION", "mount lost", nil)
	mock.ExpectQuery(regexp.QuoteMeta(selectEventSQL + " ORDER BY occurred_at ASC")).WillReturnRows(rows)

	got, err := repo.List(testCtx(t), time.Time{}, time.Time{}, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].RunID != "run-1" || got[1].RunID != "" {
		t.Fatalf("unexpected events %+v", got)
	}
	b, _ := json.Marshal(got[0].Metadata)
	if string(b) != string(meta) {
		t.Fatalf("metadata mismatch: %s vs %s", b, meta)
	}
	if got[1].Metadata != nil {
		t.Fatalf("expected nil meta, got %#v", got[1].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventSQLite_ListWithFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	repo := NewEventSQLite(db)

	from := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	to := from.Add(2 * time.Hour)
	query := selectEventSQL + ` WHERE occurred_at >= ? AND occurred_at <= ? AND type = ? ORDER BY occurred_at ASC`

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("2026-03-01 20:00:00.000", "2026-03-01 22:00:00.000", "ERROR").
		WillReturnRows(sqlmock.NewRows(eventColumns).AddRow("9", "run-2", from, "ERROR", "solve failed", nil))

	got, err := repo.List(testCtx(t), from, to, " error ")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].EventID != "9" {
		t.Fatalf("unexpected events %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventSQLite_ListScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	repo := NewEventSQLite(db)

	rows := sqlmock.NewRows(eventColumns).AddRow("x", nil, 123, "POINT", "msg", nil)
	mock.ExpectQuery(regexp.QuoteMeta(selectEventSQL)).WillReturnRows(rows)

	if _, err := repo.List(testCtx(t), time.Time{}, time.Time{}, ""); err == nil {
		t.Fatal("expected scan error")
	}
}

package repository

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"mount_modeling/internal/models"
	"mount_modeling/internal/repository/db"

	"github.com/DATA-DOG/go-sqlmock"
)

func sampleRun() models.ModelRun {
	started := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)
	return models.ModelRun{
		ID:         "run-1",
		Kind:       models.RunBase,
		ImageDir:   "images/2026-03-01-21-00-00",
		ResultFile: "images/2026-03-01-21-00-00_base.dat",
		Committed:  1,
		Failed:     1,
		Points: []models.TargetPoint{
			{Azimuth: 30, Altitude: 25, Active: false, Solve: true},
			{Azimuth: 150, Altitude: 25, Active: true, Solve: true},
		},
		Results: []models.PointResult{
			{Index: 1, Azimuth: 30, Altitude: 25, RaJNow: 3.2, DecJNow: 12.5, Pierside: "W", Solved: true, Committed: true, AlignmentIndex: 1},
			{Index: 2, Azimuth: 150, Altitude: 25, Message: "solve failed: No stars found"},
		},
		StartedAt:  started,
		FinishedAt: started.Add(10 * time.Minute),
	}
}

func TestRunSQLite_SaveWritesRunAndPoints(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer conn.Close()
	repo := NewRunSQLite(conn)
	run := sampleRun()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertRunSQL)).
		WithArgs("run-1", "Base", run.ImageDir, run.ResultFile, false, false, 1, 1, "",
			sqlmock.AnyArg(), "2026-03-01 21:00:00.000", "2026-03-01 21:10:00.000").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteRunPointsSQL)).WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(insertRunPointSQL)).WithArgs("run-1", 1, true, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertRunPointSQL)).WithArgs("run-1", 2, false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Save(testCtx(t), run); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestRunSQLite_SaveRollsBackOnPointError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer conn.Close()
	repo := NewRunSQLite(conn)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertRunSQL)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteRunPointsSQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(insertRunPointSQL)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := repo.Save(testCtx(t), sampleRun()); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestRunSQLite_GetUnknown(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer conn.Close()
	repo := NewRunSQLite(conn)

	mock.ExpectQuery(regexp.QuoteMeta(selectRunSQL)).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.Get(testCtx(t), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunSQLite_LastCommittedNone(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer conn.Close()
	repo := NewRunSQLite(conn)

	mock.ExpectQuery(regexp.QuoteMeta(lastCommittedRunSQL)).WithArgs("Base").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := repo.LastCommitted(testCtx(t), models.RunBase)
	if err != nil || got != nil {
		t.Fatalf("want nil, nil; got %v, %v", got, err)
	}
}

func TestRunSQLite_RoundTrip(t *testing.T) {
	conn, err := db.InitDB(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer conn.Close()
	repo := NewRunSQLite(conn)
	ctx := testCtx(t)

	run := sampleRun()
	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// saving again replaces, it does not duplicate points
	run.Message = "finished"
	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	got, err := repo.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != models.RunBase || got.Message != "finished" || len(got.Results) != 2 || len(got.Points) != 2 {
		t.Fatalf("unexpected run %+v", got)
	}
	if !got.StartedAt.Equal(run.StartedAt) || !got.FinishedAt.Equal(run.FinishedAt) {
		t.Fatalf("times: %v %v", got.StartedAt, got.FinishedAt)
	}
	if got.Results[1].Message != run.Results[1].Message {
		t.Fatalf("point message lost: %+v", got.Results[1])
	}

	committed, err := repo.LastCommitted(ctx, models.RunBase)
	if err != nil {
		t.Fatalf("LastCommitted: %v", err)
	}
	if len(committed) != 1 || committed[0].Index != 1 || committed[0].Pierside != "W" {
		t.Fatalf("unexpected committed points %+v", committed)
	}

	runs, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 || runs[0].Results != nil {
		t.Fatalf("unexpected list %+v", runs)
	}
}

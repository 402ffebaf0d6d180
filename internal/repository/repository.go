package repository

import (
	"context"
	"database/sql"
	"time"

	"mount_modeling/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// RunRepo keeps the history of model runs and their per-point results.
type RunRepo interface {
	Save(ctx context.Context, run models.ModelRun) error
	Get(ctx context.Context, id string) (models.ModelRun, error)
	List(ctx context.Context, limit int) ([]models.ModelRun, error)
	// LastCommitted returns the committed points of the newest run of kind
	// that committed anything, or nil when there is none.
	LastCommitted(ctx context.Context, kind models.RunKind) ([]models.PointResult, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.ModelEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.ModelEvent, error)
}

type Repository struct {
	RunRepo   RunRepo
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		RunRepo:   NewRunSQLite(db),
		EventRepo: NewEventSQLite(db),
		Auth:      NewUserRepository(db),
	}
}

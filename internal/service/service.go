package service

import (
	"context"

	"mount_modeling/internal/alignment"
	"mount_modeling/internal/imaging"
	"mount_modeling/internal/logger"
	"mount_modeling/internal/models"
	"mount_modeling/internal/mount"
	"mount_modeling/internal/observability"
	"mount_modeling/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Modeling drives model runs: one at a time, cancellable, observable.
type Modeling interface {
	Start(ctx context.Context, req RunRequest) (models.ModelRun, error)
	RunBatch(ctx context.Context, path string) (models.ModelRun, error)
	Cancel(ctx context.Context) error
	Progress() models.Progress
	ModelLog() []string
	ListRuns(ctx context.Context, limit int) ([]models.ModelRun, error)
	GetRun(ctx context.Context, id string) (models.ModelRun, error)
	TargetPoints(ctx context.Context) ([]models.TargetPoint, error)
	SaveTargetPoints(ctx context.Context, points []models.TargetPoint) error
}

// Monitoring exposes read-only mount and imaging state.
type Monitoring interface {
	GetStatus(ctx context.Context) (models.MountStatus, error)
	GetAlignment(ctx context.Context) (models.AlignmentModel, error)
	ImagingStatus(ctx context.Context) (imaging.DeviceStatus, error)
}

// Alignment edits the mount's alignment model outside of a run.
type Alignment interface {
	DeletePoint(ctx context.Context, index int) error
	LoadModel(ctx context.Context, name string) error
}

// EventLog exposes the persisted model log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.ModelEvent, error)
}

// MountControl is the part of the mount link the services drive. All
// commands go through the link's queue.
type MountControl interface {
	Enqueue(cmd mount.Command)
	Send(ctx context.Context, cmd mount.Command) (string, error)
	Status() models.MountStatus
	// RefreshStatus queries position and slew state behind every queued command.
	RefreshStatus(ctx context.Context) (models.MountStatus, error)
	// RefreshAlignment re-reads the star list and model names into Alignment.
	RefreshAlignment(ctx context.Context) error
	Alignment() *alignment.Store
}

// Imager captures and plate-solves frames.
type Imager interface {
	Capture(ctx context.Context, req imaging.CaptureRequest) (imaging.CaptureResult, error)
	Solve(ctx context.Context, req imaging.SolveRequest) (imaging.SolveResult, error)
	Status(ctx context.Context) (imaging.DeviceStatus, error)
}

type Service struct {
	Modeling
	Monitoring
	Alignment
	EventLog
	Authorization
}

// Deps are the collaborators NewService wires together.
type Deps struct {
	Repos    *repository.Repository
	Mount    MountControl
	Imager   Imager
	Modeling ModelingOptions
	Auth     AuthOptions
	Logger   *logger.Logger
	Metrics  *observability.Collector
}

func NewService(d Deps) *Service {
	modeling := NewModelingService(d.Mount, d.Imager, d.Repos.RunRepo, d.Repos.EventRepo, d.Modeling, d.Logger, d.Metrics)
	align := NewAlignmentService(d.Mount, d.Logger)
	align.busy = modeling.isRunning
	return &Service{
		Modeling:      modeling,
		Monitoring:    NewMonitoringService(d.Mount, d.Imager),
		Alignment:     align,
		EventLog:      NewEventLogService(d.Repos.EventRepo),
		Authorization: NewAuthService(d.Repos.Auth, d.Auth),
	}
}

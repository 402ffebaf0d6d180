package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mount_modeling/internal/imaging"
	"mount_modeling/internal/logger"
	"mount_modeling/internal/models"
	"mount_modeling/internal/observability"
	"mount_modeling/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrRunInProgress       = errors.New("a model run is already in progress")
	ErrNoRunInProgress     = errors.New("no model run in progress")
	ErrInvalidRunKind      = errors.New("invalid run kind")
	ErrNoTargetPoints      = errors.New("no active target points")
	ErrNoBaseModel         = errors.New("no base model available")
	ErrBatchDataIncomplete = errors.New("batch data incomplete")
	ErrNoPointsFile        = errors.New("no points file configured")
	ErrBatchPathNotAllowed = errors.New("batch file must be a .dat file inside the image directory")
)

const (
	defaultSlewPollInterval = 500 * time.Millisecond
	defaultSlewTimeout      = 3 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
	defaultImageDir         = "images"

	minBaseModelStars = 3
)

// ModelingOptions come from the modeling and imaging config sections.
type ModelingOptions struct {
	ImageDir         string
	SettleTime       time.Duration
	SlewStartDelay   time.Duration
	SlewTimeout      time.Duration
	SlewPollInterval time.Duration
	// CommandTimeout bounds mount commands sent while cleaning up a run.
	CommandTimeout  time.Duration
	KeepImages      bool
	ClearModelFirst bool
	// Simulation lifts the base model precondition of Refinement and Boost.
	Simulation bool
	PointsFile string

	// Capture is the exposure template; Path is filled per point.
	Capture   imaging.CaptureRequest
	ScaleHint float64
	Blind     bool

	LogLines int
}

func (o *ModelingOptions) applyDefaults() {
	if o.ImageDir == "" {
		o.ImageDir = defaultImageDir
	}
	if o.SlewTimeout <= 0 {
		o.SlewTimeout = defaultSlewTimeout
	}
	if o.SlewPollInterval <= 0 {
		o.SlewPollInterval = defaultSlewPollInterval
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = defaultCommandTimeout
	}
}

// activeRun is the one run the service is executing.
type activeRun struct {
	run       models.ModelRun
	base      []models.PointResult
	cancel    context.CancelFunc
	cancelled atomic.Bool
	started   time.Time
	done      chan struct{}
}

// ModelingService is the model build orchestrator. It accepts one run at a
// time and executes it on its own goroutine; all mount traffic goes through
// the link's command queue.
type ModelingService struct {
	mount   MountControl
	imager  Imager
	runs    repository.RunRepo
	events  *modelLog
	log     *logger.Logger
	metrics *observability.Collector
	opts    ModelingOptions

	mu       sync.Mutex
	active   *activeRun
	progress models.Progress
}

func NewModelingService(
	mount MountControl,
	imager Imager,
	runs repository.RunRepo,
	events repository.EventRepo,
	opts ModelingOptions,
	log *logger.Logger,
	metrics *observability.Collector,
) *ModelingService {
	opts.applyDefaults()
	l := log.Named("modeling")
	return &ModelingService{
		mount:    mount,
		imager:   imager,
		runs:     runs,
		events:   newModelLog(events, l, opts.LogLines),
		log:      l,
		metrics:  metrics,
		opts:     opts,
		progress: idleProgress(),
	}
}

func idleProgress() models.Progress {
	return models.Progress{State: models.StateIdle, TimeLeft: "--:--"}
}

// Start validates the request, then launches the run in the background.
// Precondition failures are returned before any mount command is sent.
func (s *ModelingService) Start(ctx context.Context, req RunRequest) (models.ModelRun, error) {
	if !req.Kind.Valid() {
		return models.ModelRun{}, fmt.Errorf("%w: %q", ErrInvalidRunKind, req.Kind)
	}
	if req.Kind == models.RunBatch {
		return models.ModelRun{}, fmt.Errorf("%w: batch runs replay a result file", ErrInvalidRunKind)
	}
	if s.isRunning() {
		return models.ModelRun{}, ErrRunInProgress
	}

	points, err := s.targetPoints(req)
	if err != nil {
		return models.ModelRun{}, err
	}
	if countActive(points) == 0 {
		return models.ModelRun{}, ErrNoTargetPoints
	}

	var base []models.PointResult
	if req.Kind == models.RunRefinement || req.Kind == models.RunBoost {
		if base, err = s.baseModel(ctx); err != nil {
			return models.ModelRun{}, err
		}
	}

	ar := s.newRun(req.Kind, points)
	ar.base = base
	if err := s.launch(ctx, ar, s.runPoints); err != nil {
		return models.ModelRun{}, err
	}
	return s.snapshotRun(ar), nil
}

// RunBatch replays a recorded result file into the mount's alignment model.
// Relative paths are taken from the image directory, and nothing outside it
// is read. The file is validated completely before the first command goes out.
func (s *ModelingService) RunBatch(ctx context.Context, path string) (models.ModelRun, error) {
	if s.isRunning() {
		return models.ModelRun{}, ErrRunInProgress
	}
	path, err := s.batchPath(path)
	if err != nil {
		return models.ModelRun{}, err
	}
	results, err := repository.ReadResultFile(path)
	if err != nil {
		if errors.Is(err, repository.ErrMissingColumn) || errors.Is(err, repository.ErrRaggedColumns) {
			s.events.add(ctx, "", models.EventError, nil, "Batch file %s rejected: %v", filepath.Base(path), err)
			return models.ModelRun{}, fmt.Errorf("%w: %v", ErrBatchDataIncomplete, err)
		}
		return models.ModelRun{}, err
	}
	if len(results) == 0 {
		return models.ModelRun{}, fmt.Errorf("%w: %s holds no points", ErrBatchDataIncomplete, path)
	}

	ar := s.newRun(models.RunBatch, nil)
	ar.run.Results = results
	ar.run.ResultFile = path
	if err := s.launch(ctx, ar, s.replayBatch); err != nil {
		return models.ModelRun{}, err
	}
	return s.snapshotRun(ar), nil
}

// batchPath resolves name against the image directory and refuses anything
// that leaves it, symlinks included.
func (s *ModelingService) batchPath(name string) (string, error) {
	if filepath.Ext(name) != ".dat" {
		return "", fmt.Errorf("%w: %s", ErrBatchPathNotAllowed, name)
	}
	root, err := filepath.Abs(s.opts.ImageDir)
	if err != nil {
		return "", err
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if !within(root, path) {
		return "", fmt.Errorf("%w: %s", ErrBatchPathNotAllowed, name)
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		resolvedRoot, rerr := filepath.EvalSymlinks(root)
		if rerr != nil {
			resolvedRoot = root
		}
		if !within(resolvedRoot, resolved) {
			return "", fmt.Errorf("%w: %s", ErrBatchPathNotAllowed, name)
		}
	}
	return path, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func (s *ModelingService) newRun(kind models.RunKind, points []models.TargetPoint) *activeRun {
	now := time.Now().UTC()
	return &activeRun{
		run: models.ModelRun{
			ID:         uuid.NewString(),
			Kind:       kind,
			Points:     points,
			ImageDir:   filepath.Join(s.opts.ImageDir, now.Format("2006-01-02-15-04-05")),
			KeepImages: s.opts.KeepImages,
			StartedAt:  now,
		},
		started: now,
		done:    make(chan struct{}),
	}
}

// launch claims the single run slot and starts body on its own goroutine.
// The run outlives the request context but keeps its values.
func (s *ModelingService) launch(ctx context.Context, ar *activeRun, body func(context.Context, *activeRun)) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ar.cancel = cancel

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		cancel()
		return ErrRunInProgress
	}
	s.active = ar
	s.progress = models.Progress{
		RunID:    ar.run.ID,
		Kind:     ar.run.Kind,
		State:    models.StatePreparing,
		Running:  true,
		Total:    len(ar.run.Points),
		TimeLeft: "--:--",
	}
	s.mu.Unlock()

	s.persistRun(ctx, ar)
	s.events.add(ctx, ar.run.ID, models.EventRunStart, map[string]any{"kind": ar.run.Kind, "points": len(ar.run.Points)},
		"Start %s model", ar.run.Kind)
	s.log.Infow("model_run_started", "run_id", ar.run.ID, "kind", ar.run.Kind, "points", len(ar.run.Points))

	go func() {
		defer s.finish(runCtx, ar)
		defer cancel()
		body(runCtx, ar)
	}()
	return nil
}

// finish persists the run, records metrics and returns the service to idle.
func (s *ModelingService) finish(ctx context.Context, ar *activeRun) {
	defer close(ar.done)

	s.mu.Lock()
	ar.run.FinishedAt = time.Now().UTC()
	ar.run.Cancelled = ar.cancelled.Load()
	s.mu.Unlock()

	elapsed := ar.run.FinishedAt.Sub(ar.started)
	s.metrics.ObserveRun(string(ar.run.Kind), elapsed)
	s.persistRun(ctx, ar)

	run := s.snapshotRun(ar)
	s.events.add(ctx, run.ID, models.EventRunFinish,
		map[string]any{"committed": run.Committed, "failed": run.Failed, "cancelled": run.Cancelled},
		"%s model run finished. Number of modeled points: %3d", run.Kind, run.Committed)
	s.log.Infow("model_run_finished",
		"run_id", run.ID,
		"kind", run.Kind,
		"committed", run.Committed,
		"failed", run.Failed,
		"cancelled", run.Cancelled,
		"elapsed", elapsed.String(),
	)

	s.mu.Lock()
	s.active = nil
	s.progress = idleProgress()
	s.mu.Unlock()
}

func (s *ModelingService) persistRun(ctx context.Context, ar *activeRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Save(context.WithoutCancel(ctx), s.snapshotRun(ar)); err != nil {
		s.log.Errorw("model_run_persist_failed", "run_id", ar.run.ID, "err", err)
	}
}

// Cancel asks the active run to stop and waits until it has. The run
// observes the request between points and on every capture/solve poll.
func (s *ModelingService) Cancel(ctx context.Context) error {
	ar := s.requestCancel()
	if ar == nil {
		return ErrNoRunInProgress
	}
	select {
	case <-ar.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ModelingService) requestCancel() *activeRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	ar := s.active
	if ar == nil {
		return nil
	}
	ar.cancelled.Store(true)
	ar.cancel()
	return ar
}

// Wait blocks until no run is active or ctx ends.
func (s *ModelingService) Wait(ctx context.Context) error {
	s.mu.Lock()
	ar := s.active
	s.mu.Unlock()
	if ar == nil {
		return nil
	}
	select {
	case <-ar.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ModelingService) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *ModelingService) Progress() models.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *ModelingService) setProgress(fn func(p *models.Progress)) {
	s.mu.Lock()
	fn(&s.progress)
	s.mu.Unlock()
}

func (s *ModelingService) setState(st models.RunState) {
	s.setProgress(func(p *models.Progress) { p.State = st })
}

// ModelLog returns the recent operator log lines, oldest first.
func (s *ModelingService) ModelLog() []string {
	return s.events.snapshot()
}

// updateRun mutates the active run record under the service lock.
func (s *ModelingService) updateRun(ar *activeRun, fn func(run *models.ModelRun)) {
	s.mu.Lock()
	fn(&ar.run)
	s.mu.Unlock()
}

func (s *ModelingService) snapshotRun(ar *activeRun) models.ModelRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := ar.run
	run.Points = append([]models.TargetPoint(nil), ar.run.Points...)
	run.Results = append([]models.PointResult(nil), ar.run.Results...)
	return run
}

func (s *ModelingService) ListRuns(ctx context.Context, limit int) ([]models.ModelRun, error) {
	return s.runs.List(ctx, limit)
}

// GetRun returns the live record for the active run, the stored one otherwise.
func (s *ModelingService) GetRun(ctx context.Context, id string) (models.ModelRun, error) {
	s.mu.Lock()
	ar := s.active
	s.mu.Unlock()
	if ar != nil && ar.run.ID == id {
		return s.snapshotRun(ar), nil
	}
	return s.runs.Get(ctx, id)
}

// TargetPoints reads the configured points file.
func (s *ModelingService) TargetPoints(_ context.Context) ([]models.TargetPoint, error) {
	if s.opts.PointsFile == "" {
		return nil, ErrNoPointsFile
	}
	return repository.LoadTargetPoints(s.opts.PointsFile)
}

// SaveTargetPoints replaces the configured points file.
func (s *ModelingService) SaveTargetPoints(_ context.Context, points []models.TargetPoint) error {
	if s.opts.PointsFile == "" {
		return ErrNoPointsFile
	}
	return repository.SaveTargetPoints(s.opts.PointsFile, points)
}

// baseModel checks that a base model exists to refine and returns the
// committed points of the last base run. Simulation skips the mount check.
func (s *ModelingService) baseModel(ctx context.Context) ([]models.PointResult, error) {
	var base []models.PointResult
	if s.runs != nil {
		var err error
		if base, err = s.runs.LastCommitted(ctx, models.RunBase); err != nil {
			return nil, fmt.Errorf("load base run: %w", err)
		}
	}
	if s.opts.Simulation {
		return base, nil
	}

	stars := s.mount.Status().AlignmentStars
	if stars < minBaseModelStars {
		return nil, fmt.Errorf("%w: mount reports %d stars", ErrNoBaseModel, stars)
	}
	if !s.mount.Alignment().CheckConsistency(stars) {
		s.log.Warnw("alignment_store_inconsistent", "stored", s.mount.Alignment().Len(), "reported", stars)
		return nil, fmt.Errorf("%w: alignment mirror does not match the mount", ErrNoBaseModel)
	}
	if len(base) == 0 {
		return nil, fmt.Errorf("%w: no committed base run recorded", ErrNoBaseModel)
	}
	return base, nil
}

// targetPoints resolves the request's points and applies the run kind's
// point policy.
func (s *ModelingService) targetPoints(req RunRequest) ([]models.TargetPoint, error) {
	points := append([]models.TargetPoint(nil), req.Points...)
	if len(points) == 0 {
		file := req.PointsFile
		if file == "" {
			file = s.opts.PointsFile
		}
		if file != "" {
			loaded, err := repository.LoadTargetPoints(file)
			if err != nil {
				return nil, err
			}
			points = loaded
		}
	}
	return expandPoints(req.Kind, points, req.Repeats)
}

// expandPoints builds the TimeChange and Hysteresis sequences from the first
// one or two positions; other kinds use points as given.
func expandPoints(kind models.RunKind, points []models.TargetPoint, repeats int) ([]models.TargetPoint, error) {
	if repeats <= 0 {
		repeats = 1
	}
	switch kind {
	case models.RunTimeChange:
		if len(points) == 0 {
			return nil, ErrNoTargetPoints
		}
		out := make([]models.TargetPoint, repeats)
		for i := range out {
			out[i] = models.TargetPoint{Azimuth: points[0].Azimuth, Altitude: points[0].Altitude, Active: true, Solve: true}
		}
		return out, nil
	case models.RunHysteresis:
		if len(points) < 2 {
			return nil, fmt.Errorf("%w: hysteresis needs two positions", ErrNoTargetPoints)
		}
		out := make([]models.TargetPoint, 0, 2*repeats)
		for i := 0; i < repeats; i++ {
			out = append(out,
				models.TargetPoint{Azimuth: points[0].Azimuth, Altitude: points[0].Altitude, Active: true, Solve: true},
				models.TargetPoint{Azimuth: points[1].Azimuth, Altitude: points[1].Altitude, Active: true, Solve: false},
			)
		}
		return out, nil
	}
	return points, nil
}

func countActive(points []models.TargetPoint) int {
	n := 0
	for _, p := range points {
		if p.Active {
			n++
		}
	}
	return n
}

// IsPreconditionError reports whether err means a run was refused before it started.
func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrInvalidRunKind) ||
		errors.Is(err, ErrNoTargetPoints) ||
		errors.Is(err, ErrNoBaseModel) ||
		errors.Is(err, ErrBatchDataIncomplete) ||
		errors.Is(err, ErrBatchPathNotAllowed) ||
		errors.Is(err, ErrNoPointsFile)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"mount_modeling/internal/coords"
	"mount_modeling/internal/imaging"
	"mount_modeling/internal/models"
	"mount_modeling/internal/mount"
	"mount_modeling/internal/observability"
	"mount_modeling/internal/repository"
)

var (
	errSlewTimeout = errors.New("slew did not finish in time")
	errCancelled   = errors.New("run cancelled")
)

// pointRun carries the state of one point-driven run.
type pointRun struct {
	s       *ModelingService
	ar      *activeRun
	kind    models.RunKind
	session bool // newalig sent, endalig pending
	slewed  bool
}

// runPoints walks the target list: slew, settle, capture, solve and, for
// Base and Refinement, commit each solved point into an open model session.
func (s *ModelingService) runPoints(ctx context.Context, ar *activeRun) {
	r := &pointRun{s: s, ar: ar, kind: ar.run.Kind}
	id := ar.run.ID

	if err := os.MkdirAll(ar.run.ImageDir, 0o755); err != nil {
		s.failRun(ctx, ar, fmt.Errorf("create image dir: %w", err))
		return
	}

	s.mount.Enqueue(mount.Unpark())
	s.mount.Enqueue(mount.TrackingOn())

	if r.kind == models.RunBase && s.opts.ClearModelFirst {
		if err := r.clearModel(ctx); err != nil {
			s.failRun(ctx, ar, err)
			return
		}
	}
	if r.kind.CommitsPerPoint() {
		if err := r.openSession(ctx); err != nil {
			s.failRun(ctx, ar, err)
			return
		}
		if r.kind == models.RunRefinement && len(ar.base) > 0 {
			s.events.add(ctx, id, models.EventModel, nil, "Replaying %d base points", len(ar.base))
			r.addPoints(ctx, ar.base)
		}
	}

	points := s.snapshotRun(ar).Points
	start := time.Now()
	for i, p := range points {
		if r.cancelled(ctx) {
			break
		}
		if !p.Active {
			s.metrics.IncPoint(string(r.kind), observability.PointSkipped)
			r.advance(i, len(points), start)
			continue
		}
		if err := r.measurePoint(ctx, i, p); errors.Is(err, errCancelled) {
			break
		}
		r.advance(i, len(points), start)
	}

	r.complete(ctx)
}

func (r *pointRun) cancelled(ctx context.Context) bool {
	return r.ar.cancelled.Load() || ctx.Err() != nil
}

// measurePoint handles one active point. Failures are recorded on the
// point and do not end the run; only cancellation does.
func (r *pointRun) measurePoint(ctx context.Context, i int, p models.TargetPoint) error {
	s, id := r.s, r.ar.run.ID

	s.events.add(ctx, id, models.EventPoint, nil, "Slewing to point %2d @ Az: %3.0f° Alt: %2.0f°", i+1, p.Azimuth, p.Altitude)
	if r.kind != models.RunTimeChange || !r.slewed {
		if err := r.slew(ctx, p); err != nil {
			if r.cancelled(ctx) {
				return errCancelled
			}
			r.recordFailure(ctx, i, p, fmt.Sprintf("slew failed: %v", err))
			return err
		}
		r.slewed = true
		if r.kind == models.RunTimeChange {
			s.mount.Enqueue(mount.TrackingOff())
		}
	}

	if err := r.settle(ctx); err != nil {
		return errCancelled
	}
	if !p.Solve {
		return nil
	}

	res, err := r.capture(ctx, i, p)
	if err != nil {
		if r.cancelled(ctx) {
			return errCancelled
		}
		r.recordFailure(ctx, i, p, res.Message)
		return err
	}

	if r.kind.CommitsPerPoint() {
		r.commit(ctx, i, &res)
	} else {
		s.metrics.IncPoint(string(r.kind), observability.PointSolved)
	}
	s.updateRun(r.ar, func(run *models.ModelRun) { run.Results = append(run.Results, res) })
	return nil
}

// slew starts an alt/az slew and waits until the mount reports it finished.
// Only status read after the slew was accepted counts; the polled snapshot
// can predate the slew and still say the mount is at rest.
func (r *pointRun) slew(ctx context.Context, p models.TargetPoint) error {
	s := r.s
	s.setState(models.StateSlewing)

	reply, err := s.mount.Send(ctx, mount.SlewAltAz(p.Azimuth, p.Altitude))
	if err != nil {
		return err
	}
	if err := mount.CheckSlewReply(reply); err != nil {
		return err
	}
	if err := sleepCtx(ctx, s.opts.SlewStartDelay); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.SlewTimeout)
	defer cancel()
	t := time.NewTicker(s.opts.SlewPollInterval)
	defer t.Stop()
	for {
		st, err := s.mount.RefreshStatus(ctx)
		switch {
		case ctx.Err() != nil:
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errSlewTimeout
			}
			return ctx.Err()
		case err != nil:
			// a lost reply is retried on the next tick until the slew timeout
			s.log.Debugw("slew_status_failed", "run_id", r.ar.run.ID, "err", err)
		case !st.Slewing:
			return nil
		}
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
}

// settle counts the settle time down one second at a time for observers.
func (r *pointRun) settle(ctx context.Context) error {
	s := r.s
	remaining := s.opts.SettleTime
	s.setState(models.StateSettling)
	for remaining > 0 {
		step := min(remaining, time.Second)
		s.setProgress(func(p *models.Progress) { p.SettleRemaining = int(math.Ceil(remaining.Seconds())) })
		if err := sleepCtx(ctx, step); err != nil {
			return err
		}
		remaining -= step
	}
	s.setProgress(func(p *models.Progress) { p.SettleRemaining = 0 })
	return nil
}

// capture reads the settled mount position, then captures and solves a frame.
func (r *pointRun) capture(ctx context.Context, i int, p models.TargetPoint) (models.PointResult, error) {
	s, id := r.s, r.ar.run.ID
	st, err := s.mount.RefreshStatus(ctx)
	if err != nil {
		return models.PointResult{
			Index:    i,
			Azimuth:  p.Azimuth,
			Altitude: p.Altitude,
			Message:  fmt.Sprintf("mount position unavailable: %v", err),
		}, err
	}
	res := models.PointResult{
		Index:                 i,
		Azimuth:               p.Azimuth,
		Altitude:              p.Altitude,
		RaJ2000:               st.RaJ2000,
		DecJ2000:              st.DecJ2000,
		RaJNow:                st.RaJNow,
		DecJNow:               st.DecJNow,
		Pierside:              st.Pierside,
		LocalSiderealTime:     st.LocalSiderealTime,
		RefractionTemperature: st.RefractionTemperature,
		RefractionPressure:    st.RefractionPressure,
	}

	s.setState(models.StateCapturing)
	s.events.add(ctx, id, models.EventPoint, nil, "Capturing image for modeling point %2d", i+1)
	req := s.opts.Capture
	req.Path = filepath.Join(r.ar.run.ImageDir, fmt.Sprintf("model%03d.fit", i))
	if r.kind == models.RunTimeChange {
		s.mount.Enqueue(mount.TrackingOn())
	}
	shot, err := s.imager.Capture(ctx, req)
	if r.kind == models.RunTimeChange {
		s.mount.Enqueue(mount.TrackingOff())
	}
	if err == nil && !shot.Success {
		err = fmt.Errorf("%w: %s", imaging.ErrCaptureFailed, shot.Message)
	}
	if err != nil {
		res.Message = fmt.Sprintf("capture failed: %v", err)
		return res, err
	}
	res.ImagePath = shot.Path

	s.setState(models.StateSolving)
	s.events.add(ctx, id, models.EventPoint, nil, "Solving image %s", filepath.Base(shot.Path))
	sol, err := s.imager.Solve(ctx, imaging.SolveRequest{
		ImagePath: shot.Path,
		RaHint:    st.RaJ2000,
		DecHint:   st.DecJ2000,
		ScaleHint: s.opts.ScaleHint,
		Blind:     s.opts.Blind,
	})
	if err != nil {
		res.Message = fmt.Sprintf("solving error: %v", err)
		return res, err
	}

	jd := st.JulianDate
	if jd == 0 {
		jd = julianDate(time.Now())
	}
	res.Solved = true
	res.Message = sol.Message
	res.RaJ2000Solved, res.DecJ2000Solved = sol.RaJ2000, sol.DecJ2000
	res.RaJNowSolved, res.DecJNowSolved = coords.Precess(sol.RaJ2000, sol.DecJ2000, jd)
	res.RaError, res.DecError = coords.PointingError(st.RaJ2000, st.DecJ2000, sol.RaJ2000, sol.DecJ2000)
	res.Scale, res.Angle, res.TimeToSolve = sol.Scale, sol.Angle, sol.TimeToSolve

	s.events.add(ctx, id, models.EventPoint,
		map[string]any{"index": i, "ra_error": res.RaError, "dec_error": res.DecError},
		"RA_diff: %2.1f    DEC_diff: %2.1f", res.RaError, res.DecError)
	return res, nil
}

// commit adds a solved point to the open model session and mirrors it.
func (r *pointRun) commit(ctx context.Context, i int, res *models.PointResult) {
	s, id := r.s, r.ar.run.ID
	s.setState(models.StateCommitting)

	idx, err := r.addPoint(ctx, *res)
	if err != nil {
		res.Message = fmt.Sprintf("point could not be added: %v", err)
		s.metrics.IncPoint(string(r.kind), observability.PointFailed)
		s.updateRun(r.ar, func(run *models.ModelRun) { run.Failed++ })
		s.events.add(ctx, id, models.EventError, map[string]any{"index": i}, "Point could not be added - please check!")
		s.log.Warnw("model_point_rejected", "run_id", id, "point", i+1, "err", err)
		return
	}

	res.Committed = true
	res.AlignmentIndex = idx
	s.mount.Alignment().AddPoint(alignmentPoint(*res, idx))
	s.metrics.IncPoint(string(r.kind), observability.PointCommitted)
	s.updateRun(r.ar, func(run *models.ModelRun) {
		run.Committed++
		run.Points[i].Active = false
	})
	s.events.add(ctx, id, models.EventPoint, map[string]any{"index": i, "alignment_index": idx}, "Point added")
	s.log.Infow("model_point_committed", "run_id", id, "point", i+1, "alignment_index", idx)
}

func (r *pointRun) addPoint(ctx context.Context, res models.PointResult) (int, error) {
	reply, err := r.s.mount.Send(ctx, mount.AddResultPoint(res))
	if err != nil {
		return 0, err
	}
	return mount.ParseAddPointReply(reply)
}

// addPoints sends already measured points into the open session. Rejected
// points are logged and skipped.
func (r *pointRun) addPoints(ctx context.Context, results []models.PointResult) (added int) {
	s, id := r.s, r.ar.run.ID
	for _, res := range results {
		if r.cancelled(ctx) {
			return added
		}
		idx, err := r.addPoint(ctx, res)
		if err != nil {
			s.events.add(ctx, id, models.EventError, nil, "Point could not be added")
			s.log.Warnw("model_point_rejected", "run_id", id, "index", res.Index, "err", err)
			continue
		}
		added++
		s.events.add(ctx, id, models.EventPoint, nil, "Added point %d @ Az:%d, Alt:%d", idx, int(res.Azimuth), int(res.Altitude))
	}
	return added
}

func (r *pointRun) recordFailure(ctx context.Context, i int, p models.TargetPoint, msg string) {
	s, id := r.s, r.ar.run.ID
	res := models.PointResult{Index: i, Azimuth: p.Azimuth, Altitude: p.Altitude, Message: msg}
	s.metrics.IncPoint(string(r.kind), observability.PointFailed)
	s.updateRun(r.ar, func(run *models.ModelRun) {
		run.Results = append(run.Results, res)
		run.Failed++
	})
	s.events.add(ctx, id, models.EventError, map[string]any{"index": i}, "Point %d: %s", i+1, msg)
	s.log.Warnw("model_point_failed", "run_id", id, "point", i+1, "reason", msg)
}

// advance publishes "i of n", percent and the elapsed-time based ETA.
func (r *pointRun) advance(i, n int, start time.Time) {
	done := i + 1
	left := time.Duration(float64(time.Since(start)) / float64(done) * float64(n-done))
	run := r.s.snapshotRun(r.ar)
	r.s.setProgress(func(p *models.Progress) {
		p.Current = done
		p.Total = n
		p.Percent = float64(done) / float64(n) * 100
		p.TimeLeft = formatTimeLeft(left)
		p.Committed = run.Committed
		p.Failed = run.Failed
	})
}

func (r *pointRun) clearModel(ctx context.Context) error {
	s := r.s
	s.events.add(ctx, r.ar.run.ID, models.EventModel, nil, "Clearing alignment model")
	reply, err := s.mount.Send(ctx, mount.ClearModel())
	if err != nil {
		return fmt.Errorf("clear model: %w", err)
	}
	if err := mount.CheckAccepted(reply); err != nil {
		return fmt.Errorf("clear model: %w", err)
	}
	s.mount.Alignment().Clear()
	s.mount.Alignment().SetReportedCount(0)
	s.events.add(ctx, r.ar.run.ID, models.EventModel, nil, "Model cleared!")
	return nil
}

func (r *pointRun) openSession(ctx context.Context) error {
	reply, err := r.s.mount.Send(ctx, mount.NewAlignment())
	if err != nil {
		return fmt.Errorf("open model session: %w", err)
	}
	if err := mount.CheckAccepted(reply); err != nil {
		return fmt.Errorf("open model session: %w", err)
	}
	r.session = true
	r.s.events.add(ctx, r.ar.run.ID, models.EventModel, nil, "Opening calculation")
	return nil
}

// complete closes the run: the model session is ended and saved unless the
// run was cancelled, Boost commits its own results, and the result file is
// written. Every run ends with tracking on.
func (r *pointRun) complete(ctx context.Context) {
	s, ar := r.s, r.ar
	cancelled := r.cancelled(ctx)
	// Cleanup must reach the mount even after cancellation.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CommandTimeout)
	defer cancel()

	if cancelled {
		s.events.add(cctx, ar.run.ID, models.EventRunCancel, nil, "%s model canceled !", r.kind)
		if r.session {
			if _, err := s.mount.Send(cctx, mount.EndAlignment()); err != nil {
				s.log.Warnw("model_session_close_failed", "run_id", ar.run.ID, "err", err)
			}
		}
	} else {
		switch {
		case r.session:
			r.endAndSave(cctx)
		case r.kind == models.RunBoost:
			r.commitBoost(cctx)
		}
	}
	// TimeChange leaves tracking off between captures.
	s.mount.Enqueue(mount.TrackingOn())

	r.writeResults(cctx)
	if !s.opts.KeepImages {
		if err := os.RemoveAll(ar.run.ImageDir); err != nil {
			s.log.Warnw("image_dir_remove_failed", "dir", ar.run.ImageDir, "err", err)
		}
	}
}

func (r *pointRun) endAndSave(ctx context.Context) {
	s, id := r.s, r.ar.run.ID
	r.session = false
	reply, err := s.mount.Send(ctx, mount.EndAlignment())
	if err == nil {
		err = mount.CheckEndAlignment(reply)
	}
	if err != nil {
		r.modelNotComputed(ctx, err)
		return
	}
	s.events.add(ctx, id, models.EventModel, nil, "Model successful finished!")
	r.saveModel(ctx, modelNameFor(r.kind))
}

// commitBoost replays the base points and this run's solved points as one
// batch, then saves the result as the refinement model.
func (r *pointRun) commitBoost(ctx context.Context) {
	s, id := r.s, r.ar.run.ID
	solved := solvedResults(s.snapshotRun(r.ar).Results)
	if len(solved) == 0 {
		s.events.add(ctx, id, models.EventModel, nil, "Nothing solved, model left unchanged")
		return
	}
	if err := r.openSession(ctx); err != nil {
		r.modelNotComputed(ctx, err)
		return
	}
	r.addPoints(ctx, r.ar.base)
	for _, res := range solved {
		idx, err := r.addPoint(ctx, res)
		if err != nil {
			s.metrics.IncPoint(string(r.kind), observability.PointFailed)
			s.updateRun(r.ar, func(run *models.ModelRun) { run.Failed++ })
			s.log.Warnw("model_point_rejected", "run_id", id, "point", res.Index+1, "err", err)
			continue
		}
		s.metrics.IncPoint(string(r.kind), observability.PointCommitted)
		s.updateRun(r.ar, func(run *models.ModelRun) {
			run.Committed++
			run.Points[res.Index].Active = false
			for k := range run.Results {
				if run.Results[k].Index == res.Index {
					run.Results[k].Committed = true
					run.Results[k].AlignmentIndex = idx
				}
			}
		})
	}
	r.endAndSave(ctx)
}

func (r *pointRun) modelNotComputed(ctx context.Context, err error) {
	r.s.updateRun(r.ar, func(run *models.ModelRun) { run.Message = "model could not be calculated with current data" })
	r.s.events.add(ctx, r.ar.run.ID, models.EventError, nil, "Model could not be calculated with current data!")
	r.s.log.Warnw("model_not_computed", "run_id", r.ar.run.ID, "err", err)
}

func (r *pointRun) saveModel(ctx context.Context, name string) {
	s := r.s
	reply, err := s.mount.Send(ctx, mount.SaveModel(name))
	if err == nil {
		err = mount.CheckAccepted(reply)
	}
	if err != nil {
		s.events.add(ctx, r.ar.run.ID, models.EventError, nil, "Model %s could not be saved", name)
		s.log.Warnw("model_save_failed", "run_id", r.ar.run.ID, "name", name, "err", err)
		return
	}
	s.events.add(ctx, r.ar.run.ID, models.EventModel, nil, "Model saved as %s", name)
}

// writeResults stores the solved points next to the image directory. A
// refinement file also carries the base points it was built on.
func (r *pointRun) writeResults(ctx context.Context) {
	s, ar := r.s, r.ar
	results := solvedResults(s.snapshotRun(ar).Results)
	if len(results) == 0 {
		return
	}
	if r.kind == models.RunRefinement || r.kind == models.RunBoost {
		results = withBase(ar.base, results)
	}

	path := ar.run.ImageDir + r.kind.FileSuffix()
	if err := repository.WriteResultFile(path, results); err != nil {
		s.updateRun(ar, func(run *models.ModelRun) { run.Message = "result file could not be written" })
		s.events.add(ctx, ar.run.ID, models.EventError, nil, "Result file could not be written: %v", err)
		s.log.Errorw("result_file_write_failed", "run_id", ar.run.ID, "path", path, "err", err)
		return
	}
	s.updateRun(ar, func(run *models.ModelRun) { run.ResultFile = path })
	s.events.add(ctx, ar.run.ID, models.EventModel, nil, "Results written to %s", filepath.Base(path))
}

// failRun ends a run that could not get past preparation.
func (s *ModelingService) failRun(ctx context.Context, ar *activeRun, err error) {
	s.updateRun(ar, func(run *models.ModelRun) { run.Message = err.Error() })
	s.events.add(ctx, ar.run.ID, models.EventError, nil, "Run aborted: %v", err)
	s.log.Errorw("model_run_aborted", "run_id", ar.run.ID, "err", err)
	s.mount.Enqueue(mount.TrackingOn())
}

func modelNameFor(kind models.RunKind) string {
	if kind == models.RunBase {
		return mount.ModelBase
	}
	return mount.ModelRefine
}

func solvedResults(results []models.PointResult) []models.PointResult {
	out := make([]models.PointResult, 0, len(results))
	for _, r := range results {
		if r.Solved {
			out = append(out, r)
		}
	}
	return out
}

// withBase prefixes base to results, renumbering results after it.
func withBase(base, results []models.PointResult) []models.PointResult {
	out := make([]models.PointResult, 0, len(base)+len(results))
	out = append(out, base...)
	for _, r := range results {
		r.Index += len(base)
		out = append(out, r)
	}
	return out
}

// alignmentPoint is the store's view of a committed result.
func alignmentPoint(res models.PointResult, idx int) models.AlignmentPoint {
	ha := coords.NormalizeHours(res.LocalSiderealTime - res.RaJNowSolved)
	if ha >= 12 {
		ha -= 24
	}
	return models.AlignmentPoint{
		Index:       idx,
		HourAngle:   ha,
		Declination: res.DecJNowSolved,
		RMSError:    math.Hypot(res.RaError, res.DecError),
		ErrorAngle:  math.Mod(math.Atan2(res.RaError, res.DecError)*180/math.Pi+360, 360),
	}
}

func formatTimeLeft(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// julianDate converts t to a Julian date.
func julianDate(t time.Time) float64 {
	return 2440587.5 + float64(t.UnixNano())/float64(24*time.Hour)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package service

import (
	"context"
	"time"

	"mount_modeling/internal/models"
	"mount_modeling/internal/mount"
	"mount_modeling/internal/observability"
)

// replayBatch programs a recorded result set into the mount: the current
// model is backed up as BATCH, then newalig, one newalpt per row and
// endalig. Rejected rows are logged and skipped; only a failed endalig
// means the model was not taken.
func (s *ModelingService) replayBatch(ctx context.Context, ar *activeRun) {
	r := &pointRun{s: s, ar: ar, kind: models.RunBatch}
	id := ar.run.ID
	results := s.snapshotRun(ar).Results
	s.setProgress(func(p *models.Progress) { p.Total = len(results) })

	s.events.add(ctx, id, models.EventModel, nil, "Start Batch modeling. Saving actual model to %s", mount.ModelBatch)
	r.saveModel(ctx, mount.ModelBatch)

	if err := r.openSession(ctx); err != nil {
		s.failRun(ctx, ar, err)
		return
	}
	s.setState(models.StateCommitting)

	start := time.Now()
	for i, res := range results {
		if r.cancelled(ctx) {
			break
		}
		idx, err := r.addPoint(ctx, res)
		if err != nil {
			s.metrics.IncPoint(string(models.RunBatch), observability.PointFailed)
			s.updateRun(ar, func(run *models.ModelRun) {
				run.Failed++
				run.Results[i].Message = "point could not be added"
			})
			s.events.add(ctx, id, models.EventError, map[string]any{"row": i}, "Point could not be added")
			s.log.Warnw("batch_point_rejected", "run_id", id, "row", i+1, "err", err)
		} else {
			s.metrics.IncPoint(string(models.RunBatch), observability.PointCommitted)
			s.updateRun(ar, func(run *models.ModelRun) {
				run.Committed++
				run.Results[i].Committed = true
				run.Results[i].AlignmentIndex = idx
			})
			s.events.add(ctx, id, models.EventPoint, nil, "Added point %d @ Az:%d, Alt:%d", idx, int(res.Azimuth), int(res.Altitude))
		}
		r.advance(i, len(results), start)
	}

	// The session has to be closed even when cancelled.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CommandTimeout)
	defer cancel()
	r.session = false
	reply, err := s.mount.Send(cctx, mount.EndAlignment())
	if err == nil {
		err = mount.CheckEndAlignment(reply)
	}
	if err != nil {
		r.modelNotComputed(cctx, err)
		return
	}
	s.events.add(cctx, id, models.EventModel, nil, "Model successful finished!")
}

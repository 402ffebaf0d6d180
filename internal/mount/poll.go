package mount

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"mount_modeling/internal/models"
)

// startPolls launches one goroutine per periodic task. Each tick is
// independent: a failing or panicking tick does not stop the next one.
func (l *Link) startPolls(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	l.every(ctx, &wg, "fast", l.opts.FastInterval, l.pollFast)
	l.every(ctx, &wg, "medium", l.opts.MediumInterval, l.pollMedium)
	l.every(ctx, &wg, "alignment", l.opts.AlignmentInterval, func(ctx context.Context) {
		_ = l.RefreshAlignment(ctx)
	})
	return &wg
}

func (l *Link) every(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, task func(context.Context)) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if l.State() == Connected {
					l.runTask(ctx, name, task)
				}
			}
		}
	}()
}

func (l *Link) runTask(ctx context.Context, name string, task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorw("mount_poll_panic", "task", name, "panic", r)
		}
	}()
	task(ctx)
}

// pollMedium pushes refraction corrections when due, then reads the combined
// medium status frame.
func (l *Link) pollMedium(ctx context.Context) {
	for _, cmd := range RefractionCommands(l.opts.Refraction, l.opts.Weather, l.status.Snapshot()) {
		l.Enqueue(cmd)
	}
	reply, err := l.Send(ctx, StatusMedium())
	if err != nil {
		l.log.Debugw("status_medium_failed", "err", err)
		return
	}
	_ = l.status.ApplyMedium(reply)
}

func (l *Link) pollFast(ctx context.Context) {
	if _, err := l.RefreshStatus(ctx); err != nil {
		l.log.Debugw("status_fast_failed", "err", err)
	}
}

// RefreshStatus reads the fast status through the command queue and returns
// the updated snapshot. The reply reflects every command queued before it,
// unlike Status, which may predate them by a poll interval. Fields that fail
// to decode keep their previous value and are not reported as an error.
func (l *Link) RefreshStatus(ctx context.Context) (models.MountStatus, error) {
	reply, err := l.Send(ctx, StatusFast())
	if err != nil {
		return models.MountStatus{}, err
	}
	if err := l.status.ApplyFast(reply); errors.Is(err, ErrShortFrame) {
		return models.MountStatus{}, err
	}
	return l.status.Snapshot(), nil
}

// queryIdentity reads firmware and site once per connection.
func (l *Link) queryIdentity(ctx context.Context) {
	if reply, err := l.Send(ctx, FirmwareQuery()); err == nil {
		_ = l.status.ApplyFirmware(reply)
	} else {
		l.log.Debugw("firmware_query_failed", "err", err)
	}
	if reply, err := l.Send(ctx, SiteQuery()); err == nil {
		_ = l.status.ApplySite(reply)
	} else {
		l.log.Debugw("site_query_failed", "err", err)
	}
	st := l.status.Snapshot()
	l.log.Infow("mount_identified",
		"product", st.ProductName,
		"firmware", st.FirmwareNumber,
		"latitude", st.SiteLatitude,
		"longitude", st.SiteLongitude,
	)
}

// RefreshAlignment re-reads the star list and model names from the mount.
// Stars whose reply cannot be decoded are left out and show up as an
// inconsistency against the mount's own count; that is reported, not fixed.
func (l *Link) RefreshAlignment(ctx context.Context) error {
	reply, err := l.Send(ctx, StarCount())
	if err != nil {
		return err
	}
	n, err := ParseCount(reply)
	if err != nil {
		l.log.Warnw("alignment_count_invalid", "reply", reply, "err", err)
		return err
	}

	points := make([]models.AlignmentPoint, 0, n)
	for i := 1; i <= n; i++ {
		r, err := l.Send(ctx, StarInfo(i))
		if err != nil {
			return err
		}
		p, err := ParseStarInfo(i, r)
		if err != nil {
			l.metrics.IncParseFailure("AlignmentStar")
			l.log.Warnw("alignment_star_parse_failed", "star", i, "reply", r, "err", err)
			continue
		}
		points = append(points, p)
	}

	l.align.SetFromBatch(points)
	l.align.SetReportedCount(n)
	l.status.setAlignmentStars(n)
	if !l.align.CheckConsistency(n) {
		l.log.Warnw("alignment_store_inconsistent", "stored", len(points), "reported", n)
	}

	return l.refreshModelNames(ctx)
}

func (l *Link) refreshModelNames(ctx context.Context) error {
	reply, err := l.Send(ctx, ModelCount())
	if err != nil {
		return err
	}
	n, err := ParseCount(reply)
	if err != nil {
		l.log.Warnw("model_count_invalid", "reply", reply, "err", err)
		return err
	}
	names := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		r, err := l.Send(ctx, ModelName(i))
		if err != nil {
			return err
		}
		if name := strings.TrimSpace(trimReply(r)); name != "" {
			names = append(names, name)
		}
	}
	l.align.SetNames(names)
	return nil
}

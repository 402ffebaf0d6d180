// Package imaging captures frames and plate-solves them through a pluggable
// backend. Backends are job based: a request returns a receipt that is
// polled until the job completes.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mount_modeling/internal/logger"
	"mount_modeling/internal/observability"
)

var (
	// ErrTimeout is returned when a capture or solve job does not finish in time.
	ErrTimeout = errors.New("imaging job timed out")
	// ErrCaptureFailed wraps the backend message of a failed capture.
	ErrCaptureFailed = errors.New("capture failed")
	// ErrSolveFailed wraps the backend message of a failed solve.
	ErrSolveFailed = errors.New("solve failed")
)

const (
	DefaultPollInterval   = 200 * time.Millisecond
	DefaultCaptureTimeout = 2 * time.Minute
	DefaultSolveTimeout   = 3 * time.Minute
)

// CaptureRequest describes one exposure.
type CaptureRequest struct {
	Binning  int
	Exposure time.Duration
	Gain     string
	Speed    string
	Subframe bool
	X, Y     int
	Width    int
	Height   int
	// Path is the destination file including directory.
	Path string
}

type CaptureResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// SolveRequest carries the image and optional hints. RaHint is J2000 hours,
// DecHint J2000 degrees, ScaleHint arcsec per pixel; zero hints are omitted.
type SolveRequest struct {
	ImagePath string
	RaHint    float64
	DecHint   float64
	ScaleHint float64
	Blind     bool
}

type SolveResult struct {
	Success     bool    `json:"success"`
	Message     string  `json:"message"`
	RaJ2000     float64 `json:"ra_j2000"`
	DecJ2000    float64 `json:"dec_j2000"`
	Scale       float64 `json:"scale"`
	Angle       float64 `json:"angle"`
	TimeToSolve float64 `json:"time_to_solve"`
}

// DeviceStatus is what a backend reports about its camera and solver.
type DeviceStatus struct {
	Backend string `json:"backend"`
	Camera  string `json:"camera"`
	Solver  string `json:"solver"`
	Message string `json:"message,omitempty"`
}

// Backend is one capture/solve provider.
type Backend interface {
	Name() string
	// StartCapture begins an exposure and returns its receipt. A refused
	// capture is reported as an error carrying the backend message.
	StartCapture(ctx context.Context, req CaptureRequest) (string, error)
	// ImagePath reports the saved file once the exposure is done.
	ImagePath(ctx context.Context, receipt string) (path string, ready bool, err error)
	StartSolve(ctx context.Context, req SolveRequest) (string, error)
	// SolveStatus reports the result once done is true. A finished but
	// unsuccessful solve has done true and Success false.
	SolveStatus(ctx context.Context, receipt string) (res SolveResult, done bool, err error)
	Status(ctx context.Context) (DeviceStatus, error)
}

type Options struct {
	PollInterval   time.Duration
	CaptureTimeout time.Duration
	SolveTimeout   time.Duration
	Logger         *logger.Logger
	Metrics        *observability.Collector
}

// Gateway runs capture and solve jobs to completion. Both calls block the
// calling goroutine, poll the backend on an interval and return as soon as
// ctx is cancelled or the job timeout expires.
type Gateway struct {
	backend Backend
	opts    Options
	log     *logger.Logger
	metrics *observability.Collector
}

func NewGateway(backend Backend, opts Options) *Gateway {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = DefaultCaptureTimeout
	}
	if opts.SolveTimeout <= 0 {
		opts.SolveTimeout = DefaultSolveTimeout
	}
	return &Gateway{
		backend: backend,
		opts:    opts,
		log:     opts.Logger.Named("imaging"),
		metrics: opts.Metrics,
	}
}

func (g *Gateway) Backend() string { return g.backend.Name() }

// Status asks the backend for its device states.
func (g *Gateway) Status(ctx context.Context) (DeviceStatus, error) {
	return g.backend.Status(ctx)
}

// Capture exposes one frame and waits for the file.
func (g *Gateway) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	start := time.Now()
	res, err := g.capture(ctx, req)
	g.metrics.ObserveImaging("capture", err == nil, time.Since(start))
	if err != nil {
		g.log.Warnw("capture_failed", "path", req.Path, "err", err)
		return res, err
	}
	g.log.Infow("capture_done", "path", res.Path, "elapsed", time.Since(start).String())
	return res, nil
}

func (g *Gateway) capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.CaptureTimeout)
	defer cancel()

	receipt, err := g.backend.StartCapture(ctx, req)
	if err != nil {
		return CaptureResult{Message: err.Error()}, err
	}

	var path string
	err = g.poll(ctx, "capture", func() (bool, error) {
		p, ready, err := g.backend.ImagePath(ctx, receipt)
		if err != nil || !ready {
			return false, err
		}
		path = p
		return true, nil
	})
	if err != nil {
		return CaptureResult{Message: err.Error()}, err
	}
	return CaptureResult{Success: true, Message: "OK", Path: path}, nil
}

// Solve plate-solves an image and waits for the result. A result whose
// message says the solver is still working is polled again.
func (g *Gateway) Solve(ctx context.Context, req SolveRequest) (SolveResult, error) {
	start := time.Now()
	res, err := g.solve(ctx, req)
	g.metrics.ObserveImaging("solve", err == nil, time.Since(start))
	if err != nil {
		g.log.Warnw("solve_failed", "image", req.ImagePath, "err", err)
		return res, err
	}
	g.log.Infow("solve_done",
		"image", req.ImagePath,
		"ra_j2000", res.RaJ2000,
		"dec_j2000", res.DecJ2000,
		"time_to_solve", res.TimeToSolve,
	)
	return res, nil
}

func (g *Gateway) solve(ctx context.Context, req SolveRequest) (SolveResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.SolveTimeout)
	defer cancel()

	receipt, err := g.backend.StartSolve(ctx, req)
	if err != nil {
		return SolveResult{Message: err.Error()}, err
	}

	var res SolveResult
	err = g.poll(ctx, "solve", func() (bool, error) {
		r, done, err := g.backend.SolveStatus(ctx, receipt)
		if err != nil || !done {
			return false, err
		}
		res = r
		return true, nil
	})
	if err != nil {
		return SolveResult{Message: err.Error()}, err
	}
	if !res.Success {
		return res, fmt.Errorf("%w: %s", ErrSolveFailed, res.Message)
	}
	return res, nil
}

// poll calls check until it reports done. Transient backend errors are
// retried; the job ends on ctx cancellation or its deadline.
func (g *Gateway) poll(ctx context.Context, job string, check func() (bool, error)) error {
	t := time.NewTicker(g.opts.PollInterval)
	defer t.Stop()
	for {
		done, err := check()
		if done {
			return nil
		}
		if err != nil {
			if errors.Is(err, ErrCaptureFailed) || errors.Is(err, ErrSolveFailed) {
				return err
			}
			g.log.Debugw("imaging_poll_error", "job", job, "err", err)
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrTimeout, job)
			}
			return ctx.Err()
		case <-t.C:
		}
	}
}

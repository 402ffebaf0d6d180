package imaging

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
)

// Simulation pretends to capture and solves to the hint plus a small,
// repeatable offset so dry runs produce non-zero pointing errors.
type Simulation struct {
	// FailSolve, when set, is asked with the 1-based solve number and fails
	// that solve when it returns true.
	FailSolve func(n int) bool

	mu     sync.Mutex
	solves int
	images map[string]string
	jobs   map[string]*simJob
}

type simJob struct {
	req   SolveRequest
	n     int
	polls int
}

func NewSimulation() *Simulation {
	return &Simulation{
		images: make(map[string]string),
		jobs:   make(map[string]*simJob),
	}
}

func (s *Simulation) Name() string { return "simulation" }

func (s *Simulation) StartCapture(_ context.Context, req CaptureRequest) (string, error) {
	receipt := uuid.NewString()
	path := req.Path
	if path == "" {
		path = receipt + ".fit"
	}
	s.mu.Lock()
	s.images[receipt] = path
	s.mu.Unlock()
	return receipt, nil
}

func (s *Simulation) ImagePath(_ context.Context, receipt string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.images[receipt]
	if !ok {
		return "", false, fmt.Errorf("%w: unknown receipt %s", ErrCaptureFailed, receipt)
	}
	delete(s.images, receipt)
	return path, true, nil
}

func (s *Simulation) StartSolve(_ context.Context, req SolveRequest) (string, error) {
	receipt := uuid.NewString()
	s.mu.Lock()
	s.solves++
	s.jobs[receipt] = &simJob{req: req, n: s.solves}
	s.mu.Unlock()
	return receipt, nil
}

// SolveStatus answers "Solving" once per job before returning the result.
func (s *Simulation) SolveStatus(_ context.Context, receipt string) (SolveResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[receipt]
	if !ok {
		return SolveResult{}, false, fmt.Errorf("%w: unknown receipt %s", ErrSolveFailed, receipt)
	}
	job.polls++
	if job.polls == 1 {
		return SolveResult{}, false, nil
	}
	delete(s.jobs, receipt)

	if s.FailSolve != nil && s.FailSolve(job.n) {
		return SolveResult{Message: "No stars found"}, true, nil
	}
	dRA, dDec := simulatedOffset(job.n)
	return SolveResult{
		Success:     true,
		Message:     "Matched",
		RaJ2000:     math.Mod(job.req.RaHint+dRA+24, 24),
		DecJ2000:    math.Max(-90, math.Min(90, job.req.DecHint+dDec)),
		Scale:       job.req.ScaleHint,
		Angle:       float64(job.n%360) * 1.5,
		TimeToSolve: 0.5,
	}, true, nil
}

// simulatedOffset returns a few tens of arcseconds in each axis, varying with n.
func simulatedOffset(n int) (raHours, decDeg float64) {
	raHours = float64(1+n%3) * 0.0005
	decDeg = float64(1+n%2) * 0.005
	if n%2 == 0 {
		decDeg = -decDeg
	}
	return raHours, decDeg
}

func (s *Simulation) Status(context.Context) (DeviceStatus, error) {
	return DeviceStatus{Backend: s.Name(), Camera: "IDLE", Solver: "IDLE"}, nil
}

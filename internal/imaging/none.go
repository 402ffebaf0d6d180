package imaging

import (
	"context"
	"fmt"
)

const notOK = "Not OK"

// None is the backend used when no camera is configured. Every job fails.
type None struct{}

func (None) Name() string { return "none" }

func (None) StartCapture(context.Context, CaptureRequest) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrCaptureFailed, notOK)
}

func (None) ImagePath(context.Context, string) (string, bool, error) {
	return "", false, fmt.Errorf("%w: %s", ErrCaptureFailed, notOK)
}

func (None) StartSolve(context.Context, SolveRequest) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrSolveFailed, notOK)
}

func (None) SolveStatus(context.Context, string) (SolveResult, bool, error) {
	return SolveResult{Message: notOK}, true, nil
}

func (None) Status(context.Context) (DeviceStatus, error) {
	return DeviceStatus{Backend: "none", Camera: "IDLE", Solver: "IDLE"}, nil
}

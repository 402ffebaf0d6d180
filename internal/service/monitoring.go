package service

import (
	"context"
	"time"

	"mount_modeling/internal/imaging"
	"mount_modeling/internal/models"
)

type MonitoringService struct {
	mount  MountControl
	imager Imager
}

func NewMonitoringService(mount MountControl, imager Imager) *MonitoringService {
	return &MonitoringService{mount: mount, imager: imager}
}

// GetStatus returns the latest mount telemetry. Until the first status frame
// arrives UpdatedAt is zero and only the connection and identity fields mean anything.
func (s *MonitoringService) GetStatus(ctx context.Context) (models.MountStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.MountStatus{}, err
	}
	st := s.mount.Status()
	st.UpdatedAt = toUTC(st.UpdatedAt)
	return st, nil
}

// GetAlignment returns the mirrored alignment model with its consistency verdict.
func (s *MonitoringService) GetAlignment(ctx context.Context) (models.AlignmentModel, error) {
	if err := ctx.Err(); err != nil {
		return models.AlignmentModel{}, err
	}
	return s.mount.Alignment().Snapshot(), nil
}

// ImagingStatus asks the imaging backend for camera and solver state.
func (s *MonitoringService) ImagingStatus(ctx context.Context) (imaging.DeviceStatus, error) {
	if s.imager == nil {
		return imaging.DeviceStatus{Backend: "none", Camera: "DISCONNECTED", Solver: "DISCONNECTED"}, nil
	}
	return s.imager.Status(ctx)
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

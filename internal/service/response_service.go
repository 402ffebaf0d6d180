package service

import (
	"time"

	"mount_modeling/internal/models"
)

// RunRequest starts a model run.
type RunRequest struct {
	Kind models.RunKind `json:"kind"`
	// Points overrides the configured target list when non-empty.
	Points []models.TargetPoint `json:"points,omitempty"`
	// PointsFile is a TOML target list, used when Points is empty.
	PointsFile string `json:"points_file,omitempty"`
	// Repeats is the number of measurements for TimeChange and the number of
	// back-and-forth pairs for Hysteresis.
	Repeats int `json:"repeats,omitempty"`
}

// LogFilter supports model log filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "RUN_START", "RUN_FINISH", "RUN_CANCEL", "POINT", "MODEL", "CONNECTION", "ERROR"
}

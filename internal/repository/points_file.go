package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"mount_modeling/internal/models"

	"github.com/BurntSushi/toml"
)

// pointsDoc is the on-disk shape of a target list. Active and solve default
// to true when a point leaves them out.
type pointsDoc struct {
	Points []pointEntry `toml:"points"`
}

type pointEntry struct {
	Azimuth  float64 `toml:"azimuth"`
	Altitude float64 `toml:"altitude"`
	Active   *bool   `toml:"active,omitempty"`
	Solve    *bool   `toml:"solve,omitempty"`
}

// LoadTargetPoints reads a [[points]] list.
func LoadTargetPoints(path string) ([]models.TargetPoint, error) {
	var doc pointsDoc
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("decode points file %s: %w", path, err)
	}
	out := make([]models.TargetPoint, 0, len(doc.Points))
	for i, p := range doc.Points {
		if p.Altitude < -5 || p.Altitude > 90 || p.Azimuth < 0 || p.Azimuth >= 360 {
			return nil, fmt.Errorf("points file %s: point %d az %.2f alt %.2f out of range", path, i+1, p.Azimuth, p.Altitude)
		}
		out = append(out, models.TargetPoint{
			Azimuth:  p.Azimuth,
			Altitude: p.Altitude,
			Active:   p.Active == nil || *p.Active,
			Solve:    p.Solve == nil || *p.Solve,
		})
	}
	return out, nil
}

// SaveTargetPoints writes points back, keeping their active flags.
func SaveTargetPoints(path string, points []models.TargetPoint) error {
	doc := pointsDoc{Points: make([]pointEntry, len(points))}
	for i, p := range points {
		active, solve := p.Active, p.Solve
		doc.Points[i] = pointEntry{Azimuth: p.Azimuth, Altitude: p.Altitude, Active: &active, Solve: &solve}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create points dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create points file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode points file: %w", err)
	}
	return f.Close()
}

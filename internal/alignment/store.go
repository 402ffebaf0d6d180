// Package alignment mirrors the mount's alignment model in memory.
package alignment

import (
	"errors"
	"fmt"
	"sync"

	"mount_modeling/internal/models"
)

// ErrIndexOutOfRange is returned when a point index does not address a stored point.
var ErrIndexOutOfRange = errors.New("alignment point index out of range")

// Store is the ordered list of alignment points plus the independently
// polled list of model names stored in the mount. Safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	points        []models.AlignmentPoint
	names         []string
	reportedCount int
}

func NewStore() *Store {
	return &Store{}
}

// AddPoint appends p and returns its zero-based position.
func (s *Store) AddPoint(p models.AlignmentPoint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
	return len(s.points) - 1
}

// DeletePoint removes the point at the zero-based index.
func (s *Store) DeletePoint(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.points) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(s.points))
	}
	s.points = append(s.points[:index:index], s.points[index+1:]...)
	return nil
}

// SetFromBatch replaces every point at once. Readers see either the old or
// the new list, never a mix.
func (s *Store) SetFromBatch(points []models.AlignmentPoint) {
	next := make([]models.AlignmentPoint, len(points))
	copy(next, points)

	s.mu.Lock()
	s.points = next
	s.mu.Unlock()
}

// Clear drops all points.
func (s *Store) Clear() {
	s.SetFromBatch(nil)
}

// Points returns a copy of the current list.
func (s *Store) Points() []models.AlignmentPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AlignmentPoint, len(s.points))
	copy(out, s.points)
	return out
}

// Len is the number of stored points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// CheckConsistency reports whether the store holds exactly the number of
// points the mount reports. A mismatch is never corrected here.
func (s *Store) CheckConsistency(reportedCount int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points) == reportedCount
}

// SetReportedCount records the mount's own star count.
func (s *Store) SetReportedCount(n int) {
	s.mu.Lock()
	s.reportedCount = n
	s.mu.Unlock()
}

// SetNames replaces the model name list.
func (s *Store) SetNames(names []string) {
	next := make([]string, len(names))
	copy(next, names)

	s.mu.Lock()
	s.names = next
	s.mu.Unlock()
}

// Names returns a copy of the model name list.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Snapshot returns points, names and the consistency verdict from one read.
func (s *Store) Snapshot() models.AlignmentModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := models.AlignmentModel{
		Points:        make([]models.AlignmentPoint, len(s.points)),
		Names:         make([]string, len(s.names)),
		ReportedCount: s.reportedCount,
		Consistent:    len(s.points) == s.reportedCount,
	}
	copy(m.Points, s.points)
	copy(m.Names, s.names)
	return m
}

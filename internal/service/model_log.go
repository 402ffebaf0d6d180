package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mount_modeling/internal/logger"
	"mount_modeling/internal/models"
	"mount_modeling/internal/repository"

	"github.com/google/uuid"
)

const defaultModelLogLines = 500

// modelLog keeps the operator-facing run log: the newest lines in memory,
// every line also appended to the event repository.
type modelLog struct {
	repo repository.EventRepo
	log  *logger.Logger

	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newModelLog(repo repository.EventRepo, log *logger.Logger, capacity int) *modelLog {
	if capacity <= 0 {
		capacity = defaultModelLogLines
	}
	return &modelLog{repo: repo, log: log, lines: make([]string, capacity)}
}

// add records one line. Persistence failures are logged and do not reach the run.
func (m *modelLog) add(ctx context.Context, runID, typ string, meta map[string]any, format string, args ...any) {
	now := time.Now().UTC()
	text := fmt.Sprintf(format, args...)

	m.mu.Lock()
	m.lines[m.next] = now.Format("15:04:05") + " - " + text
	m.next = (m.next + 1) % len(m.lines)
	if m.next == 0 {
		m.full = true
	}
	m.mu.Unlock()

	if m.repo == nil {
		return
	}
	ev := models.ModelEvent{
		EventID:     uuid.NewString(),
		RunID:       runID,
		OccurredAt:  now,
		Type:        typ,
		Description: text,
	}
	if len(meta) > 0 {
		ev.Metadata = meta
	}
	if err := m.repo.Append(context.WithoutCancel(ctx), ev); err != nil {
		m.log.Warnw("model_log_persist_failed", "type", typ, "err", err)
	}
}

// snapshot returns the kept lines, oldest first.
func (m *modelLog) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		return append([]string(nil), m.lines[:m.next]...)
	}
	out := make([]string, 0, len(m.lines))
	out = append(out, m.lines[m.next:]...)
	return append(out, m.lines[:m.next]...)
}

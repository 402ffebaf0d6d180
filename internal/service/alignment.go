package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"mount_modeling/internal/alignment"
	"mount_modeling/internal/logger"
	"mount_modeling/internal/mount"
)

var (
	ErrInvalidModelName = errors.New("invalid model name")
	ErrModelNotFound    = errors.New("model not stored on the mount")
)

// maxModelNameLen is the longest name the mount's model store accepts.
const maxModelNameLen = 15

type AlignmentService struct {
	mount MountControl
	log   *logger.Logger
	// busy reports an active model run; model changes are refused meanwhile.
	busy func() bool
}

func NewAlignmentService(mount MountControl, log *logger.Logger) *AlignmentService {
	return &AlignmentService{mount: mount, log: log.Named("alignment")}
}

// DeletePoint removes the star at the zero-based index from the mount and,
// once the mount accepts, from the mirrored store.
func (s *AlignmentService) DeletePoint(ctx context.Context, index int) error {
	if s.busy != nil && s.busy() {
		return ErrRunInProgress
	}
	store := s.mount.Alignment()
	if index < 0 || index >= store.Len() {
		return fmt.Errorf("%w: %d (have %d)", alignment.ErrIndexOutOfRange, index, store.Len())
	}

	reply, err := s.mount.Send(ctx, mount.DeleteStar(index+1))
	if err != nil {
		return fmt.Errorf("delete star %d: %w", index+1, err)
	}
	if err := mount.CheckAccepted(reply); err != nil {
		s.log.Warnw("alignment_delete_rejected", "star", index+1, "reply", reply)
		return fmt.Errorf("delete star %d: %w", index+1, err)
	}

	if err := store.DeletePoint(index); err != nil {
		return err
	}
	if n := store.Snapshot().ReportedCount; n > 0 {
		store.SetReportedCount(n - 1)
	}
	s.log.Infow("alignment_star_deleted", "star", index+1, "remaining", store.Len())
	return nil
}

// LoadModel makes the named stored model the active one and re-reads the
// mirror. Names the mount has not listed are refused without a command.
func (s *AlignmentService) LoadModel(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxModelNameLen || strings.ContainsAny(name, "#:") {
		return fmt.Errorf("%w: %q", ErrInvalidModelName, name)
	}
	if s.busy != nil && s.busy() {
		return ErrRunInProgress
	}
	store := s.mount.Alignment()
	if names := store.Names(); len(names) > 0 && !slices.Contains(names, name) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	reply, err := s.mount.Send(ctx, mount.LoadModel(name))
	if err != nil {
		return fmt.Errorf("load model %s: %w", name, err)
	}
	if err := mount.CheckAccepted(reply); err != nil {
		s.log.Warnw("model_load_rejected", "model", name, "reply", reply)
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	s.log.Infow("model_loaded", "model", name)

	if err := s.mount.RefreshAlignment(ctx); err != nil {
		s.log.Warnw("alignment_refresh_after_load_failed", "model", name, "err", err)
	}
	return nil
}

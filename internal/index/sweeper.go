package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ierrors "github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/partition"
	"github.com/Aman-CERP/eventindexer/internal/store"
)

// SweepResult describes one retention pass.
type SweepResult struct {
	// Cutoff is the instant partitions must be older than to expire.
	Cutoff time.Time

	// Managed is the number of partitions whose names parsed.
	Managed int

	// Unmanaged lists names that did not parse and were left alone.
	Unmanaged []string

	// Expired is the exact set selected for deletion, sorted.
	Expired []string

	// AlreadyGone lists expired names another sweep deleted first.
	AlreadyGone []string

	// DryRun is set when nothing was deleted on purpose.
	DryRun bool
}

// Deleted returns the expired partitions this pass removed.
func (r *SweepResult) Deleted() []string {
	if r.DryRun {
		return nil
	}
	gone := make(map[string]struct{}, len(r.AlreadyGone))
	for _, name := range r.AlreadyGone {
		gone[name] = struct{}{}
	}
	var out []string
	for _, name := range r.Expired {
		if _, ok := gone[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Sweeper deletes partitions older than the retention window.
type Sweeper struct {
	backend store.Backend
	namer   *partition.Namer
	now     func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper creates a Sweeper for partitions named by namer.
func NewSweeper(backend store.Backend, namer *partition.Namer, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{backend: backend, namer: namer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan computes the expired set without deleting anything.
func (s *Sweeper) Plan(ctx context.Context, retentionDays int) (*SweepResult, error) {
	if retentionDays < 0 || retentionDays > partition.MaxRetentionDays {
		return nil, ierrors.ValidationError(
			fmt.Sprintf("retention days must be between 0 and %d, got %d", partition.MaxRetentionDays, retentionDays), nil)
	}

	names, err := s.backend.ListIndices(ctx, "*")
	if err != nil {
		return nil, ierrors.BackendError("failed to list indices", err)
	}

	cutoff := partition.Cutoff(s.now(), retentionDays)
	result := &SweepResult{Cutoff: cutoff}
	for _, name := range names {
		ts, err := s.namer.ParseTimestamp(name)
		if err != nil {
			result.Unmanaged = append(result.Unmanaged, name)
			continue
		}
		result.Managed++
		if ts.Before(cutoff) {
			result.Expired = append(result.Expired, name)
		}
	}
	return result, nil
}

// Sweep deletes every managed partition whose timestamp is strictly before
// now minus retentionDays days, in a single delete call.
func (s *Sweeper) Sweep(ctx context.Context, retentionDays int) (*SweepResult, error) {
	result, err := s.Plan(ctx, retentionDays)
	if err != nil {
		return nil, err
	}

	if len(result.Expired) == 0 {
		slog.Info("nothing_to_delete",
			slog.Time("cutoff", result.Cutoff),
			slog.Int("managed", result.Managed))
		return result, nil
	}

	err = s.backend.DeleteIndices(ctx, result.Expired)
	var missing *store.MissingIndicesError
	switch {
	case err == nil:
	case errors.As(err, &missing):
		result.AlreadyGone = missing.Names
		slog.Info("partitions_already_deleted", slog.Any("partitions", missing.Names))
	default:
		return nil, ierrors.New(ierrors.ErrCodeSweepFailed, "failed to delete expired partitions", err).
			WithDetail("partitions", fmt.Sprintf("%v", result.Expired))
	}

	slog.Info("partitions_deleted",
		slog.Any("partitions", result.Deleted()),
		slog.Time("cutoff", result.Cutoff))
	return result, nil
}

// DryRun returns the result of Plan marked as a dry run.
func (s *Sweeper) DryRun(ctx context.Context, retentionDays int) (*SweepResult, error) {
	result, err := s.Plan(ctx, retentionDays)
	if err != nil {
		return nil, err
	}
	result.DryRun = true
	return result, nil
}

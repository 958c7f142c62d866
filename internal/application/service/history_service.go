package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// HistoryRecorder is the append-only audit log of workflow actions
type HistoryRecorder interface {
	// Append stores entry; it fails only on malformed input or storage errors
	Append(ctx context.Context, entry *entity.HistoryEntry) error
	// List returns an instance's entries by timestamp, ties by insertion order
	List(ctx context.Context, instanceID int64) ([]*entity.HistoryEntry, error)
	// ListForReport returns entries across every instance of a report
	ListForReport(ctx context.Context, reportID int64) ([]*entity.HistoryEntry, error)
}

type historyRecorderImpl struct {
	historyRepo port.HistoryRepository
	now         Clock
}

// NewHistoryRecorder creates a HistoryRecorder backed by historyRepo
func NewHistoryRecorder(historyRepo port.HistoryRepository, now Clock) HistoryRecorder {
	if now == nil {
		now = utcNow
	}
	return &historyRecorderImpl{historyRepo: historyRepo, now: now}
}

func (h *historyRecorderImpl) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil history entry", entity.ErrValidation)
	}
	if entry.InstanceID <= 0 || entry.ReportID <= 0 {
		return fmt.Errorf("%w: history entry needs instance and report ids", entity.ErrValidation)
	}
	if !entity.IsHistoryAction(entry.Action) {
		return fmt.Errorf("%w: unknown history action %q", entity.ErrValidation, entry.Action)
	}
	if entry.ActorID == "" {
		return fmt.Errorf("%w: history entry needs an actor", entity.ErrValidation)
	}
	if entry.ID != 0 {
		return fmt.Errorf("%w: history entry %d already recorded", entity.ErrValidation, entry.ID)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = h.now()
	}
	return h.historyRepo.Append(ctx, entry)
}

func (h *historyRecorderImpl) List(ctx context.Context, instanceID int64) ([]*entity.HistoryEntry, error) {
	return h.historyRepo.ListByInstance(ctx, instanceID)
}

func (h *historyRecorderImpl) ListForReport(ctx context.Context, reportID int64) ([]*entity.HistoryEntry, error) {
	return h.historyRepo.ListByReport(ctx, reportID)
}

// Package worker mirrors locally written family keys to the remote
// backend. It consumes key sync messages from the queue and also scans
// the pending rows periodically so nothing is lost when messages are.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"caretaker/internal/amqp"
	"caretaker/internal/backend"
	"caretaker/internal/storage"
)

type SyncWorker struct {
	storage   *storage.SQLiteRepository
	backend   backend.Backend
	batchSize int
}

func NewSyncWorker(repo *storage.SQLiteRepository, be backend.Backend, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   repo,
		backend:   be,
		batchSize: batchSize,
	}
}

// HandleKeySync processes one key sync message. The message only names
// the key; the current value is read from local storage, so stale
// messages for an already overwritten key still push the latest state.
func (w *SyncWorker) HandleKeySync(ctx context.Context, msg *amqp.KeySyncMessage) error {
	slog.InfoContext(ctx, "Processing key sync message",
		"family_id", msg.FamilyID,
		"key", msg.Key)

	return w.syncKey(ctx, msg.FamilyID, msg.Key)
}

// ProcessPendingKeys mirrors any rows still marked pending. This is a
// backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPendingKeys(ctx context.Context) error {
	pending, err := w.storage.ListPendingSync(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending rows: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending rows", "count", len(pending))

	for _, row := range pending {
		if err := w.syncKey(ctx, row.FamilyID, row.Key); err != nil {
			slog.ErrorContext(ctx, "Failed to sync pending row",
				"family_id", row.FamilyID, "key", row.Key, "error", err)
		}
	}

	return nil
}

// StartupSyncCheck drains rows left pending across worker downtime. It
// uses a larger batch than the periodic scan.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.ListPendingSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending rows for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending rows found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending rows on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, row := range pending {
		if err := w.syncKey(ctx, row.FamilyID, row.Key); err != nil {
			slog.ErrorContext(ctx, "Failed to sync row during startup",
				"family_id", row.FamilyID, "key", row.Key, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", successCount,
		"errors", errorCount)

	return nil
}

func (w *SyncWorker) syncKey(ctx context.Context, familyID, key string) error {
	row, err := w.storage.GetRow(ctx, familyID, key)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted locally after the message was queued; mirror the
		// deletion.
		if err := w.backend.Remove(ctx, familyID, key); err != nil {
			return fmt.Errorf("remove from backend: %w", err)
		}
		slog.InfoContext(ctx, "Removed key from backend",
			"family_id", familyID, "key", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get row from storage: %w", err)
	}

	if row.SyncStatus == storage.SyncSynced {
		return nil
	}

	if err := w.backend.Push(ctx, familyID, key, row.Value); err != nil {
		if markErr := w.storage.MarkSyncError(ctx, familyID, key); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error",
				"family_id", familyID, "key", key, "error", markErr)
		}
		return fmt.Errorf("push to backend: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, familyID, key); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced",
			"family_id", familyID, "key", key, "error", err)
		// The push itself worked; don't requeue the message.
	}

	slog.InfoContext(ctx, "Successfully synced key",
		"family_id", familyID, "key", key)

	return nil
}

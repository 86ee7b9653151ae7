package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"caretaker/internal/amqp"
	"caretaker/internal/backend"
	"caretaker/internal/storage"
)

func newTestWorker(t *testing.T) (*SyncWorker, *storage.SQLiteRepository, *backend.Memory) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	be := backend.NewMemory()
	return NewSyncWorker(repo, be, 10), repo, be
}

func TestHandleKeySync(t *testing.T) {
	w, repo, be := newTestWorker(t)
	ctx := context.Background()

	_ = repo.Set(ctx, "fam1", "worklog", json.RawMessage(`{"2025-02":[]}`))

	msg := amqp.NewKeySyncMessage("fam1", "worklog")
	if err := w.HandleKeySync(ctx, msg); err != nil {
		t.Fatalf("HandleKeySync: %v", err)
	}

	value, ok, _ := be.Fetch(ctx, "fam1", "worklog")
	if !ok || string(value) != `{"2025-02":[]}` {
		t.Fatalf("backend value = %s ok=%v", value, ok)
	}

	row, err := repo.GetRow(ctx, "fam1", "worklog")
	if err != nil || row.SyncStatus != storage.SyncSynced {
		t.Fatalf("row status = %q err=%v", row.SyncStatus, err)
	}
}

func TestHandleKeySyncDeletedRow(t *testing.T) {
	w, _, be := newTestWorker(t)
	ctx := context.Background()

	// The key exists remotely but was deleted locally before the
	// message arrived.
	_ = be.Push(ctx, "fam1", "worklog", json.RawMessage(`{}`))

	msg := amqp.NewKeySyncMessage("fam1", "worklog")
	if err := w.HandleKeySync(ctx, msg); err != nil {
		t.Fatalf("HandleKeySync: %v", err)
	}

	if _, ok, _ := be.Fetch(ctx, "fam1", "worklog"); ok {
		t.Fatal("backend row should be removed")
	}
}

func TestHandleKeySyncAlreadySynced(t *testing.T) {
	w, repo, be := newTestWorker(t)
	ctx := context.Background()

	_ = repo.SetSynced(ctx, "fam1", "settings", json.RawMessage(`{}`))

	msg := amqp.NewKeySyncMessage("fam1", "settings")
	if err := w.HandleKeySync(ctx, msg); err != nil {
		t.Fatalf("HandleKeySync: %v", err)
	}

	// Already-synced rows are not pushed again.
	if _, ok, _ := be.Fetch(ctx, "fam1", "settings"); ok {
		t.Fatal("synced row should not be re-pushed")
	}
}

func TestProcessPendingKeys(t *testing.T) {
	w, repo, be := newTestWorker(t)
	ctx := context.Background()

	_ = repo.Set(ctx, "fam1", "worklog", json.RawMessage(`{}`))
	_ = repo.Set(ctx, "fam1", "payslips", json.RawMessage(`{}`))
	_ = repo.Set(ctx, "fam2", "settings", json.RawMessage(`{}`))

	if err := w.ProcessPendingKeys(ctx); err != nil {
		t.Fatalf("ProcessPendingKeys: %v", err)
	}

	for _, probe := range []struct{ family, key string }{
		{"fam1", "worklog"},
		{"fam1", "payslips"},
		{"fam2", "settings"},
	} {
		if _, ok, _ := be.Fetch(ctx, probe.family, probe.key); !ok {
			t.Errorf("%s/%s not mirrored", probe.family, probe.key)
		}
	}

	pending, _ := repo.ListPendingSync(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("still %d pending rows", len(pending))
	}
}

type failingBackend struct {
	backend.Backend
}

func (failingBackend) Push(context.Context, string, string, json.RawMessage) error {
	return errors.New("backend down")
}

func TestPushFailureMarksError(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	w := NewSyncWorker(repo, failingBackend{backend.NewMemory()}, 10)
	ctx := context.Background()

	_ = repo.Set(ctx, "fam1", "worklog", json.RawMessage(`{}`))

	if err := w.HandleKeySync(ctx, amqp.NewKeySyncMessage("fam1", "worklog")); err == nil {
		t.Fatal("expected push error")
	}

	row, _ := repo.GetRow(ctx, "fam1", "worklog")
	if row.SyncStatus != storage.SyncError {
		t.Fatalf("row status = %q", row.SyncStatus)
	}
}

func TestStartupSyncCheck(t *testing.T) {
	w, repo, be := newTestWorker(t)
	ctx := context.Background()

	_ = repo.Set(ctx, "fam1", "worklog", json.RawMessage(`{}`))

	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("StartupSyncCheck: %v", err)
	}
	if _, ok, _ := be.Fetch(ctx, "fam1", "worklog"); !ok {
		t.Fatal("pending row not drained on startup")
	}
}

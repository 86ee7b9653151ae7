package actionlog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"caretaker/internal/auth"
	"caretaker/internal/core"
	"caretaker/internal/storage"
	"caretaker/internal/store"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewLogger(store.NewManager(repo, nil, nil, nil), nil)
}

func session(familyID string, role core.Role) auth.Session {
	return auth.Session{
		Token:    "tok-" + familyID,
		Username: "user-" + familyID,
		FamilyID: familyID,
		Role:     role,
	}
}

func TestLogAndRead(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()
	sess := session("fam1", core.RoleAdmin)

	if err := l.Log(ctx, sess, "add_activity", "shabbat on 2025-02-07"); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Log(ctx, sess, "delete_activity", "shabbat on 2025-02-07"); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Entries(ctx, sess, "")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	// Newest first.
	if entries[0].Action != "delete_activity" || entries[1].Action != "add_activity" {
		t.Fatalf("unexpected order: %s, %s", entries[0].Action, entries[1].Action)
	}
}

func TestLogWithoutSessionIsNoOp(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()

	if err := l.Log(ctx, auth.Session{}, "add_activity", "x"); err != nil {
		t.Fatalf("Log without session: %v", err)
	}

	entries, err := l.Entries(ctx, session("fam1", core.RoleAdmin), "")
	if err != nil || len(entries) != 0 {
		t.Fatalf("entries = %d err=%v", len(entries), err)
	}
}

func TestFamilyIsolation(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()

	_ = l.Log(ctx, session("fam1", core.RoleAdmin), "add_activity", "a")
	_ = l.Log(ctx, session("fam2", core.RoleAdmin), "add_activity", "b")

	entries, err := l.Entries(ctx, session("fam1", core.RoleAdmin), "")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].FamilyID != "fam1" {
		t.Fatalf("cross-family leak: %+v", entries)
	}
}

func TestRoleFilter(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()

	admin := session("fam1", core.RoleAdmin)
	caretaker := auth.Session{Token: "t2", Username: "dana", FamilyID: "fam1", Role: core.RoleCaretaker}

	_ = l.Log(ctx, admin, "add_activity", "a")
	_ = l.Log(ctx, caretaker, "add_activity", "b")

	entries, err := l.Entries(ctx, admin, core.RoleCaretaker)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Username != "dana" {
		t.Fatalf("filtered entries = %+v", entries)
	}
}

func TestCap(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()
	sess := session("fam1", core.RoleAdmin)

	for i := 0; i < maxEntries+25; i++ {
		if err := l.Log(ctx, sess, "add_activity", fmt.Sprintf("entry %d", i)); err != nil {
			t.Fatalf("Log %d: %v", i, err)
		}
	}

	entries, err := l.Entries(ctx, sess, "")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != maxEntries {
		t.Fatalf("got %d entries, want %d", len(entries), maxEntries)
	}
	// The newest entry survives, the oldest were dropped.
	if entries[0].Details != fmt.Sprintf("entry %d", maxEntries+24) {
		t.Fatalf("newest entry = %q", entries[0].Details)
	}
}

func TestClear(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()
	sess := session("fam1", core.RoleAdmin)

	_ = l.Log(ctx, sess, "add_activity", "a")
	if err := l.Clear(ctx, sess); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	entries, _ := l.Entries(ctx, sess, "")
	if len(entries) != 0 {
		t.Fatalf("entries after clear = %d", len(entries))
	}
}

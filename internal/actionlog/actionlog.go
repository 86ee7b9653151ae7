// Package actionlog keeps the per-family audit trail of worklog
// mutations. Entries are stored newest first under a single family
// key and capped, oldest dropped first.
package actionlog

import (
	"context"
	"fmt"
	"time"

	"caretaker/internal/auth"
	"caretaker/internal/core"
	"caretaker/internal/log"
	"caretaker/internal/store"
)

const (
	storeKey   = "actionLog"
	maxEntries = 1000
)

// Entry is one audit record.
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username"`
	Role      core.Role `json:"role"`
	FamilyID  string    `json:"familyId"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
}

type Logger struct {
	stores *store.Manager
	logger *log.Logger
}

func NewLogger(stores *store.Manager, logger *log.Logger) *Logger {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentActionLog)
	}
	return &Logger{stores: stores, logger: logger}
}

// Log prepends an entry to the caller's family log. Without an active
// session it is a no-op, never an error; audit logging must not break
// the operation it records.
func (l *Logger) Log(ctx context.Context, session auth.Session, action, details string) error {
	if session.Token == "" || session.FamilyID == "" {
		return nil
	}

	fs := l.stores.Family(session.FamilyID)
	entries, err := store.Get(ctx, fs, storeKey, []Entry{})
	if err != nil {
		return fmt.Errorf("read action log: %w", err)
	}

	now := time.Now()
	entry := Entry{
		ID:        now.UnixMilli(),
		Timestamp: now,
		Username:  session.Username,
		Role:      session.Role,
		FamilyID:  session.FamilyID,
		Action:    action,
		Details:   details,
	}

	entries = append([]Entry{entry}, entries...)
	if len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}

	if err := store.Set(ctx, fs, storeKey, entries); err != nil {
		return fmt.Errorf("write action log: %w", err)
	}

	l.logger.DebugContext(ctx, "Logged action",
		log.FieldFamilyID, session.FamilyID,
		log.FieldUsername, session.Username,
		"action", action)

	return nil
}

// Entries returns the caller's family log, newest first, optionally
// filtered by the acting user's role. Entries recorded for another
// family are never returned.
func (l *Logger) Entries(ctx context.Context, session auth.Session, roleFilter core.Role) ([]Entry, error) {
	fs := l.stores.Family(session.FamilyID)
	entries, err := store.Get(ctx, fs, storeKey, []Entry{})
	if err != nil {
		return nil, fmt.Errorf("read action log: %w", err)
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.FamilyID != session.FamilyID {
			continue
		}
		if roleFilter != "" && e.Role != roleFilter {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Clear wipes the family's log. There is no single-entry deletion.
func (l *Logger) Clear(ctx context.Context, session auth.Session) error {
	fs := l.stores.Family(session.FamilyID)
	if err := store.Set(ctx, fs, storeKey, []Entry{}); err != nil {
		return fmt.Errorf("clear action log: %w", err)
	}
	return nil
}

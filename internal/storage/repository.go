// Package storage is the local cache layer: a SQLite key-value table
// of per-family JSON documents plus the users table backing auth.
// Reads are served from here synchronously; the sync_status column
// drives the best-effort mirror to the remote backend.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Sync states of a family_data row.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

// Row is one family_data record.
type Row struct {
	FamilyID   string
	Key        string
	Value      json.RawMessage
	UpdatedAt  time.Time
	SyncStatus string
}

// PendingRow identifies a row awaiting backend sync.
type PendingRow struct {
	FamilyID string
	Key      string
}

// User is a stored credential record.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	FamilyID     string
	Role         string
	CreatedAt    time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Get returns the stored value for a family key. The second return is
// false when no row exists.
func (r *SQLiteRepository) Get(ctx context.Context, familyID, key string) (json.RawMessage, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM family_data WHERE family_id = ? AND key = ?`,
		familyID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", familyID, key, err)
	}
	return json.RawMessage(value), true, nil
}

// GetRow returns the full record including its sync status.
func (r *SQLiteRepository) GetRow(ctx context.Context, familyID, key string) (Row, error) {
	row := Row{FamilyID: familyID, Key: key}
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value, updated_at, sync_status FROM family_data WHERE family_id = ? AND key = ?`,
		familyID, key).Scan(&value, &row.UpdatedAt, &row.SyncStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("get row %s/%s: %w", familyID, key, err)
	}
	row.Value = json.RawMessage(value)
	return row, nil
}

// Set upserts a value and marks the row pending sync.
func (r *SQLiteRepository) Set(ctx context.Context, familyID, key string, value json.RawMessage) error {
	return r.put(ctx, familyID, key, value, SyncPending)
}

// SetSynced upserts a value already confirmed on the backend, e.g.
// from a background refresh or a full pull. It must not re-queue the
// row for sync.
func (r *SQLiteRepository) SetSynced(ctx context.Context, familyID, key string, value json.RawMessage) error {
	return r.put(ctx, familyID, key, value, SyncSynced)
}

func (r *SQLiteRepository) put(ctx context.Context, familyID, key string, value json.RawMessage, status string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO family_data (family_id, key, value, updated_at, sync_status)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP, ?)
		 ON CONFLICT (family_id, key) DO UPDATE SET
		   value = excluded.value,
		   updated_at = CURRENT_TIMESTAMP,
		   sync_status = excluded.sync_status`,
		familyID, key, string(value), status)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", familyID, key, err)
	}
	return nil
}

// Delete removes a family key. Missing rows are not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, familyID, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM family_data WHERE family_id = ? AND key = ?`, familyID, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", familyID, key, err)
	}
	return nil
}

// Clear removes every key of a family.
func (r *SQLiteRepository) Clear(ctx context.Context, familyID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM family_data WHERE family_id = ?`, familyID)
	if err != nil {
		return fmt.Errorf("clear family %s: %w", familyID, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		slog.InfoContext(ctx, "Cleared family data", "family_id", familyID, "rows", n)
	}
	return nil
}

// Keys lists every key stored for a family.
func (r *SQLiteRepository) Keys(ctx context.Context, familyID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key FROM family_data WHERE family_id = ? ORDER BY key`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list keys for %s: %w", familyID, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListPendingSync returns rows awaiting backend sync, oldest first.
func (r *SQLiteRepository) ListPendingSync(ctx context.Context, limit int) ([]PendingRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT family_id, key FROM family_data
		 WHERE sync_status = ? ORDER BY updated_at ASC LIMIT ?`,
		SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending sync rows: %w", err)
	}
	defer rows.Close()

	var pending []PendingRow
	for rows.Next() {
		var p PendingRow
		if err := rows.Scan(&p.FamilyID, &p.Key); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// MarkSynced marks a row as successfully mirrored to the backend.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, familyID, key string) error {
	if err := r.setSyncStatus(ctx, familyID, key, SyncSynced); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Row marked as synced", "family_id", familyID, "key", key)
	return nil
}

// MarkSyncError marks a row as having failed its backend sync. The
// periodic pending scan will not retry it; a later write resets it.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, familyID, key string) error {
	if err := r.setSyncStatus(ctx, familyID, key, SyncError); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Row marked with sync error", "family_id", familyID, "key", key)
	return nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, familyID, key, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE family_data SET sync_status = ? WHERE family_id = ? AND key = ?`,
		status, familyID, key)
	if err != nil {
		return fmt.Errorf("mark %s/%s %s: %w", familyID, key, status, err)
	}
	return nil
}

// CreateUser inserts a credential record. A duplicate username fails
// on the unique index.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u User) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, family_id, role) VALUES (?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.FamilyID, u.Role)
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", u.Username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", u.Username, err)
	}
	return id, nil
}

// UserByUsername looks a user up by exact username.
func (r *SQLiteRepository) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, family_id, role, created_at
		 FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FamilyID, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("user by username: %w", err)
	}
	return u, nil
}

// UsersByFamily lists the members of a family, oldest first.
func (r *SQLiteRepository) UsersByFamily(ctx context.Context, familyID string) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, password_hash, family_id, role, created_at
		 FROM users WHERE family_id = ? ORDER BY id ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("users by family %s: %w", familyID, err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FamilyID, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user, scoped by family so one family cannot
// delete another's members.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, id int64, familyID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = ? AND family_id = ?`, id, familyID)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

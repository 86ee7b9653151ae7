// Package store coordinates family data between the local SQLite
// cache and the remote backend. Reads are always served locally;
// writes land locally first and are mirrored to the backend best
// effort, through the queue when one is configured or a background
// push otherwise. The backend never sits on a request's critical path
// except where a caller explicitly awaits it.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"caretaker/internal/backend"
	"caretaker/internal/log"
	"caretaker/internal/storage"
)

const backendOpTimeout = 10 * time.Second

// Publisher hands a key sync notification to the worker queue.
type Publisher interface {
	PublishKeySync(ctx context.Context, familyID, key string) error
}

// Manager owns the shared pieces of the pipeline and hands out
// per-family views.
type Manager struct {
	repo      *storage.SQLiteRepository
	backend   backend.Backend
	publisher Publisher
	group     singleflight.Group
	logger    *log.Logger
}

func NewManager(repo *storage.SQLiteRepository, be backend.Backend, publisher Publisher, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentStore)
	}
	return &Manager{
		repo:      repo,
		backend:   be,
		publisher: publisher,
		logger:    logger,
	}
}

// Family returns the store view scoped to one family.
func (m *Manager) Family(familyID string) *FamilyStore {
	return &FamilyStore{m: m, familyID: familyID}
}

// FamilyStore is a Manager scoped to a single family's keys.
type FamilyStore struct {
	m        *Manager
	familyID string
}

func (s *FamilyStore) FamilyID() string {
	return s.familyID
}

// Get decodes a family key into T, falling back to def when the key
// exists nowhere. A local hit also triggers a background refresh from
// the backend so a stale cache heals on the next read.
func Get[T any](ctx context.Context, s *FamilyStore, key string, def T) (T, error) {
	raw, ok, err := s.GetRaw(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return def, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// Set encodes a value and writes it through the store.
func Set[T any](ctx context.Context, s *FamilyStore, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.SetRaw(ctx, key, raw)
}

// SetToBackend encodes a value, writes it locally and pushes it to the
// backend before returning. For the few writes that must be durable
// remotely, e.g. settings changed right before sign-out.
func SetToBackend[T any](ctx context.Context, s *FamilyStore, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.SetRawToBackend(ctx, key, raw)
}

// GetRaw reads one key. On a local miss it consults the backend
// synchronously, caching whatever it finds.
func (s *FamilyStore) GetRaw(ctx context.Context, key string) (json.RawMessage, bool, error) {
	value, ok, err := s.m.repo.Get(ctx, s.familyID, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		s.refreshAsync(key)
		return value, true, nil
	}

	if s.m.backend == nil {
		return nil, false, nil
	}

	fetched, err, _ := s.m.group.Do("get:"+s.familyID+":"+key, func() (any, error) {
		remote, found, err := s.m.backend.Fetch(ctx, s.familyID, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return json.RawMessage(nil), nil
		}
		if err := s.m.repo.SetSynced(ctx, s.familyID, key, remote); err != nil {
			return nil, err
		}
		return remote, nil
	})
	if err != nil {
		s.m.logger.WarnContext(ctx, "Backend fetch failed, serving miss",
			log.FieldFamilyID, s.familyID, log.FieldKey, key, log.FieldError, err)
		return nil, false, nil
	}
	raw := fetched.(json.RawMessage)
	if raw == nil {
		return nil, false, nil
	}
	return raw, true, nil
}

// SetRaw writes a key locally and queues its mirror to the backend.
func (s *FamilyStore) SetRaw(ctx context.Context, key string, value json.RawMessage) error {
	if err := s.m.repo.Set(ctx, s.familyID, key, value); err != nil {
		return err
	}
	s.notifySync(ctx, key)
	return nil
}

// SetRawToBackend writes a key locally and awaits the backend push.
func (s *FamilyStore) SetRawToBackend(ctx context.Context, key string, value json.RawMessage) error {
	if err := s.m.repo.Set(ctx, s.familyID, key, value); err != nil {
		return err
	}
	if s.m.backend == nil {
		return nil
	}
	if err := s.m.backend.Push(ctx, s.familyID, key, value); err != nil {
		if merr := s.m.repo.MarkSyncError(ctx, s.familyID, key); merr != nil {
			s.m.logger.ErrorContext(ctx, "Failed to mark sync error",
				log.FieldFamilyID, s.familyID, log.FieldKey, key, log.FieldError, merr)
		}
		return fmt.Errorf("push %s: %w", key, err)
	}
	return s.m.repo.MarkSynced(ctx, s.familyID, key)
}

// Remove deletes a key locally and queues the backend removal.
func (s *FamilyStore) Remove(ctx context.Context, key string) error {
	if err := s.m.repo.Delete(ctx, s.familyID, key); err != nil {
		return err
	}
	if s.m.backend != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), backendOpTimeout)
			defer cancel()
			if err := s.m.backend.Remove(ctx, s.familyID, key); err != nil {
				s.m.logger.WarnContext(ctx, "Backend remove failed",
					log.FieldFamilyID, s.familyID, log.FieldKey, key, log.FieldError, err)
			}
		}()
	}
	return nil
}

// Clear drops every locally cached key of the family. The backend is
// left untouched.
func (s *FamilyStore) Clear(ctx context.Context) error {
	return s.m.repo.Clear(ctx, s.familyID)
}

// Keys lists the locally cached keys of the family.
func (s *FamilyStore) Keys(ctx context.Context) ([]string, error) {
	return s.m.repo.Keys(ctx, s.familyID)
}

// SyncAllFromBackend pulls every key of the family from the backend
// into the local cache. Returns the number of keys pulled.
func (s *FamilyStore) SyncAllFromBackend(ctx context.Context) (int, error) {
	if s.m.backend == nil {
		return 0, nil
	}
	all, err := s.m.backend.FetchAll(ctx, s.familyID)
	if err != nil {
		return 0, fmt.Errorf("fetch all: %w", err)
	}
	for key, value := range all {
		if err := s.m.repo.SetSynced(ctx, s.familyID, key, value); err != nil {
			return 0, fmt.Errorf("cache %s: %w", key, err)
		}
	}
	s.m.logger.InfoContext(ctx, "Synced family data from backend",
		log.FieldFamilyID, s.familyID, "keys", len(all))
	return len(all), nil
}

// SelfTestResult reports whether the local cache is writable and, when
// a backend is configured, whether it answers.
type SelfTestResult struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
	FamilyID  string `json:"familyId,omitempty"`
	Backend   bool   `json:"backend"`
}

const selfTestKey = "__selftest__"

// SelfTest round-trips a sentinel key through the local cache. A cache
// that cannot take the write is the one hard failure of the whole
// pipeline, so it decides Available; backend reachability is reported
// alongside without failing the probe.
func (s *FamilyStore) SelfTest(ctx context.Context) SelfTestResult {
	result := SelfTestResult{FamilyID: s.familyID}

	if err := s.m.repo.Set(ctx, s.familyID, selfTestKey, json.RawMessage(`"ok"`)); err != nil {
		result.Error = err.Error()
		return result
	}
	value, ok, err := s.m.repo.Get(ctx, s.familyID, selfTestKey)
	if err != nil || !ok || !bytes.Equal(value, json.RawMessage(`"ok"`)) {
		result.Error = fmt.Sprintf("sentinel read back failed: ok=%v err=%v", ok, err)
		return result
	}
	if err := s.m.repo.Delete(ctx, s.familyID, selfTestKey); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Available = true

	if s.m.backend != nil {
		if err := s.m.backend.Ping(ctx); err != nil {
			result.Error = err.Error()
		} else {
			result.Backend = true
		}
	}
	return result
}

// notifySync hands the key to the worker queue, or pushes directly in
// the background when no queue is configured. Publish failures fall
// back to the direct push; the pending row also remains for the
// worker's periodic scan.
func (s *FamilyStore) notifySync(ctx context.Context, key string) {
	if s.m.publisher != nil {
		err := s.m.publisher.PublishKeySync(ctx, s.familyID, key)
		if err == nil {
			return
		}
		s.m.logger.WarnContext(ctx, "Publish failed, falling back to direct push",
			log.FieldFamilyID, s.familyID, log.FieldKey, key, log.FieldError, err)
	}
	if s.m.backend == nil {
		return
	}
	go s.pushPending(key)
}

// pushPending mirrors the current local state of a key to the backend
// and records the outcome on the row. Concurrent pushes of the same
// key collapse into one.
func (s *FamilyStore) pushPending(key string) {
	_, _, _ = s.m.group.Do("set:"+s.familyID+":"+key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), backendOpTimeout)
		defer cancel()

		row, err := s.m.repo.GetRow(ctx, s.familyID, key)
		if err != nil {
			// Row deleted since the write; mirror the deletion.
			if rerr := s.m.backend.Remove(ctx, s.familyID, key); rerr != nil {
				s.m.logger.WarnContext(ctx, "Backend remove failed",
					log.FieldFamilyID, s.familyID, log.FieldKey, key, log.FieldError, rerr)
			}
			return nil, nil
		}
		if row.SyncStatus == storage.SyncSynced {
			return nil, nil
		}

		if err := s.m.backend.Push(ctx, s.familyID, key, row.Value); err != nil {
			s.m.logger.WarnContext(ctx, "Backend push failed",
				log.FieldFamilyID, s.familyID, log.FieldKey, key, log.FieldError, err)
			if merr := s.m.repo.MarkSyncError(ctx, s.familyID, key); merr != nil {
				s.m.logger.ErrorContext(ctx, "Failed to mark sync error",
					log.FieldFamilyID, s.familyID, log.FieldKey, key, log.FieldError, merr)
			}
			return nil, err
		}
		if err := s.m.repo.MarkSynced(ctx, s.familyID, key); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// refreshAsync re-fetches a key from the backend in the background and
// replaces the cached copy when the backend differs. Pending local
// writes are never overwritten.
func (s *FamilyStore) refreshAsync(key string) {
	if s.m.backend == nil {
		return
	}
	go func() {
		_, _, _ = s.m.group.Do("refresh:"+s.familyID+":"+key, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), backendOpTimeout)
			defer cancel()

			row, err := s.m.repo.GetRow(ctx, s.familyID, key)
			if err != nil || row.SyncStatus != storage.SyncSynced {
				return nil, nil
			}

			remote, found, err := s.m.backend.Fetch(ctx, s.familyID, key)
			if err != nil || !found {
				return nil, nil
			}
			if bytes.Equal(remote, row.Value) {
				return nil, nil
			}
			if err := s.m.repo.SetSynced(ctx, s.familyID, key, remote); err != nil {
				s.m.logger.WarnContext(ctx, "Background refresh failed",
					log.FieldFamilyID, s.familyID, log.FieldKey, key, log.FieldError, err)
			}
			return nil, nil
		})
	}()
}

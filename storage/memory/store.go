// Package memory provides an in-memory record and backup store. It is
// intended for tests and demos; data does not survive the process.
package memory

import (
	"context"
	"errors"
	"sort"
	stdSync "sync"

	synccore "github.com/c0deZ3R0/go-sync-core"
	"github.com/c0deZ3R0/go-sync-core/recovery"
)

var ErrBackupNotFound = errors.New("backup not found")

type backupEntry struct {
	meta    recovery.BackupMetadata
	payload []byte
}

// Store keeps collections and backups in maps guarded by one mutex.
type Store struct {
	mu          stdSync.RWMutex
	collections map[string][]synccore.Record
	backups     map[string]backupEntry
}

var (
	_ recovery.CollectionStore = (*Store)(nil)
	_ recovery.BackupStore     = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{
		collections: make(map[string][]synccore.Record),
		backups:     make(map[string]backupEntry),
	}
}

// Seed replaces a collection's contents without going through the
// CollectionStore interface. Test helper.
func (s *Store) Seed(collection string, records []synccore.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = cloneAll(records)
}

func (s *Store) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) GetCollectionData(ctx context.Context, collection string) ([]synccore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.collections[collection]), nil
}

func (s *Store) ReplaceCollectionData(ctx context.Context, collection string, records []synccore.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = cloneAll(records)
	return len(records), nil
}

func (s *Store) ClearCollectionData(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = nil
	return nil
}

// InsertRecord appends one record to a collection.
func (s *Store) InsertRecord(ctx context.Context, collection string, record synccore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], synccore.CloneRecord(record))
	return nil
}

func (s *Store) StoreBackup(ctx context.Context, meta recovery.BackupMetadata, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(payload))
	copy(stored, payload)
	s.backups[meta.ID] = backupEntry{meta: meta, payload: stored}
	return nil
}

func (s *Store) LoadBackup(ctx context.Context, id string) (recovery.BackupMetadata, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.backups[id]
	if !ok {
		return recovery.BackupMetadata{}, nil, ErrBackupNotFound
	}
	payload := make([]byte, len(entry.payload))
	copy(payload, entry.payload)
	return entry.meta, payload, nil
}

func (s *Store) ListBackups(ctx context.Context) ([]recovery.BackupMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metas := make([]recovery.BackupMetadata, 0, len(s.backups))
	for _, entry := range s.backups {
		metas = append(metas, entry.meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt.After(metas[j].CreatedAt) })
	return metas, nil
}

func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.backups[id]; !ok {
		return ErrBackupNotFound
	}
	delete(s.backups, id)
	return nil
}

// TamperBackup corrupts a stored backup payload in place. Test helper for
// integrity verification paths.
func (s *Store) TamperBackup(id string, mutate func([]byte) []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.backups[id]
	if !ok {
		return false
	}
	entry.payload = mutate(entry.payload)
	s.backups[id] = entry
	return true
}

func cloneAll(records []synccore.Record) []synccore.Record {
	out := make([]synccore.Record, len(records))
	for i, r := range records {
		out[i] = synccore.CloneRecord(r)
	}
	return out
}

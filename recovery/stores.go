package recovery

import (
	"context"

	synccore "github.com/c0deZ3R0/go-sync-core"
)

// CollectionStore is the persistence hook recovery depends on for entity
// data. Implementations can use any storage backend; the storage/sqlite and
// storage/postgres packages provide ready-made ones.
type CollectionStore interface {
	// Collections lists every known collection name.
	Collections(ctx context.Context) ([]string, error)

	// GetCollectionData returns every record in a collection.
	GetCollectionData(ctx context.Context, collection string) ([]synccore.Record, error)

	// ReplaceCollectionData atomically replaces a collection's records and
	// returns the stored count.
	ReplaceCollectionData(ctx context.Context, collection string, records []synccore.Record) (int, error)

	// ClearCollectionData removes every record in a collection.
	ClearCollectionData(ctx context.Context, collection string) error
}

// BackupStore persists backup payloads and their metadata.
type BackupStore interface {
	// StoreBackup persists a payload and its metadata under meta.ID.
	StoreBackup(ctx context.Context, meta BackupMetadata, payload []byte) error

	// LoadBackup retrieves a backup by id.
	LoadBackup(ctx context.Context, id string) (BackupMetadata, []byte, error)

	// ListBackups returns all backup metadata, newest first.
	ListBackups(ctx context.Context) ([]BackupMetadata, error)

	// DeleteBackup removes a backup and its metadata.
	DeleteBackup(ctx context.Context, id string) error
}

// SyncTriggerer lets recovery kick off a sync cycle after a forced resync.
// *scheduler.Scheduler satisfies it.
type SyncTriggerer interface {
	TriggerManualSync(collection string) error
}

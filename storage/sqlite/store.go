// Package sqlite provides a SQLite-backed record and backup store for the
// sync core's recovery service.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	stdSync "sync"
	"time"

	synccore "github.com/c0deZ3R0/go-sync-core"
	syncErrors "github.com/c0deZ3R0/go-sync-core/errors"
	"github.com/c0deZ3R0/go-sync-core/logging"
	"github.com/c0deZ3R0/go-sync-core/recovery"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Operation constants for consistent error reporting
const (
	opCollections = "sqlite.Collections"
	opGet         = "sqlite.GetCollectionData"
	opReplace     = "sqlite.ReplaceCollectionData"
	opClear       = "sqlite.ClearCollectionData"
	opInsert      = "sqlite.InsertRecord"
	opBackupOp    = "sqlite.StoreBackup"
	opLoadBackup  = "sqlite.LoadBackup"
	opListBackups = "sqlite.ListBackups"
)

var (
	ErrStoreClosed    = errors.New("store is closed")
	ErrBackupNotFound = errors.New("backup not found")
)

// Config holds configuration options for the Store.
//
// Production-ready defaults are applied by DefaultConfig() including WAL
// mode and a bounded connection pool.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// When true, automatically appends "?_journal_mode=WAL" to DataSourceName.
	EnableWAL bool

	// Connection pool settings.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h, IdleTime=5m
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "?_journal_mode=") {
			c.DataSourceName += "?_journal_mode=WAL"
		}
	}
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// Store persists collection records and backups in SQLite. Records are kept
// as JSON documents keyed by collection; duplicate entity ids are storable
// on purpose so the recovery service can find and collapse them.
type Store struct {
	db     *sql.DB
	mu     stdSync.RWMutex
	closed bool
}

// Compile-time checks against the recovery store interfaces
var (
	_ recovery.CollectionStore = (*Store)(nil)
	_ recovery.BackupStore     = (*Store)(nil)
)

// New creates a Store from a Config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()
	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.WithComponent(logging.Component("sqlite-store"))
	logger.InfoContext(context.Background(), "Opening SQLite database",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	return store, nil
}

// setupSchema creates the records and backups tables if they don't exist.
// entity_id is deliberately not unique: integrity validation must be able
// to observe duplicates.
func (s *Store) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS records (
        seq         INTEGER PRIMARY KEY AUTOINCREMENT,
        collection  TEXT NOT NULL,
        entity_id   TEXT NOT NULL,
        data        TEXT NOT NULL,
        stored_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_records_collection ON records (collection);
    CREATE INDEX IF NOT EXISTS idx_records_entity ON records (collection, entity_id);

    CREATE TABLE IF NOT EXISTS backups (
        id          TEXT PRIMARY KEY,
        metadata    TEXT NOT NULL,
        payload     BLOB NOT NULL,
        created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Collections lists every collection with at least one record.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT collection FROM records ORDER BY collection`)
	if err != nil {
		return nil, syncErrors.WrapOpComponent(err, opCollections, "storage/sqlite")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, syncErrors.WrapOpComponent(err, opCollections, "storage/sqlite")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetCollectionData returns every record in a collection in insertion order.
func (s *Store) GetCollectionData(ctx context.Context, collection string) ([]synccore.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE collection = ? ORDER BY seq ASC`, collection)
	if err != nil {
		return nil, syncErrors.WrapOpComponent(err, opGet, "storage/sqlite")
	}
	defer rows.Close()

	var records []synccore.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, syncErrors.WrapOpComponent(err, opGet, "storage/sqlite")
		}
		var record synccore.Record
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, syncErrors.WrapOpComponentKind(err, opGet, "storage/sqlite", syncErrors.KindCorruption)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ReplaceCollectionData atomically swaps a collection's contents.
func (s *Store) ReplaceCollectionData(ctx context.Context, collection string, records []synccore.Record) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, syncErrors.WrapOpComponent(err, opReplace, "storage/sqlite")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
		return 0, syncErrors.WrapOpComponent(err, opReplace, "storage/sqlite")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (collection, entity_id, data) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, syncErrors.WrapOpComponent(err, opReplace, "storage/sqlite")
	}
	defer stmt.Close()

	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return 0, syncErrors.WrapOpComponent(err, opReplace, "storage/sqlite")
		}
		id, _ := synccore.RecordString(record, "id")
		if _, err := stmt.ExecContext(ctx, collection, id, string(data)); err != nil {
			return 0, syncErrors.WrapOpComponent(err, opReplace, "storage/sqlite")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, syncErrors.WrapOpComponent(err, opReplace, "storage/sqlite")
	}
	return len(records), nil
}

// ClearCollectionData removes every record in a collection.
func (s *Store) ClearCollectionData(ctx context.Context, collection string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection)
	return syncErrors.WrapOpComponent(err, opClear, "storage/sqlite")
}

// InsertRecord appends one record to a collection. Intended for seeding and
// for orchestrators that apply incoming changes record by record.
func (s *Store) InsertRecord(ctx context.Context, collection string, record synccore.Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return syncErrors.WrapOpComponent(err, opInsert, "storage/sqlite")
	}
	id, _ := synccore.RecordString(record, "id")
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (collection, entity_id, data) VALUES (?, ?, ?)`,
		collection, id, string(data))
	return syncErrors.WrapOpComponent(err, opInsert, "storage/sqlite")
}

// StoreBackup persists a backup payload and its metadata under meta.ID.
func (s *Store) StoreBackup(ctx context.Context, meta recovery.BackupMetadata, payload []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return syncErrors.WrapOpComponent(err, opBackupOp, "storage/sqlite")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO backups (id, metadata, payload, created_at) VALUES (?, ?, ?, ?)`,
		meta.ID, string(metaJSON), payload, meta.CreatedAt)
	return syncErrors.WrapOpComponent(err, opBackupOp, "storage/sqlite")
}

// LoadBackup retrieves a backup by id.
func (s *Store) LoadBackup(ctx context.Context, id string) (recovery.BackupMetadata, []byte, error) {
	if err := s.checkOpen(); err != nil {
		return recovery.BackupMetadata{}, nil, err
	}

	var metaJSON string
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata, payload FROM backups WHERE id = ?`, id).Scan(&metaJSON, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return recovery.BackupMetadata{}, nil,
			syncErrors.WrapOpComponentKind(ErrBackupNotFound, opLoadBackup, "storage/sqlite", syncErrors.KindNotFound)
	}
	if err != nil {
		return recovery.BackupMetadata{}, nil, syncErrors.WrapOpComponent(err, opLoadBackup, "storage/sqlite")
	}

	var meta recovery.BackupMetadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return recovery.BackupMetadata{}, nil,
			syncErrors.WrapOpComponentKind(err, opLoadBackup, "storage/sqlite", syncErrors.KindCorruption)
	}
	return meta, payload, nil
}

// ListBackups returns all backup metadata, newest first.
func (s *Store) ListBackups(ctx context.Context) ([]recovery.BackupMetadata, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT metadata FROM backups ORDER BY created_at DESC`)
	if err != nil {
		return nil, syncErrors.WrapOpComponent(err, opListBackups, "storage/sqlite")
	}
	defer rows.Close()

	var metas []recovery.BackupMetadata
	for rows.Next() {
		var metaJSON string
		if err := rows.Scan(&metaJSON); err != nil {
			return nil, syncErrors.WrapOpComponent(err, opListBackups, "storage/sqlite")
		}
		var meta recovery.BackupMetadata
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, syncErrors.WrapOpComponentKind(err, opListBackups, "storage/sqlite", syncErrors.KindCorruption)
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// DeleteBackup removes a backup and its metadata.
func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return syncErrors.WrapOpComponent(err, "sqlite.DeleteBackup", "storage/sqlite")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return syncErrors.WrapOpComponentKind(ErrBackupNotFound, "sqlite.DeleteBackup", "storage/sqlite", syncErrors.KindNotFound)
	}
	return nil
}

// Close closes the underlying database. Further calls fail with
// ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

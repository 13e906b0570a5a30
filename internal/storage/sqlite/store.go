// Package sqlite provides an ObjectStore persisted in a SQLite database.
// A single database file can hold any number of named buckets.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/promptpub/internal/storage"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

// DB is an open object database.
type DB struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database at dsn.
func Open(dsn string) (*DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to execute %q", stmt)
		}
	}

	d := &DB{db: db}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return d, nil
}

func (d *DB) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS objects (
			bucket TEXT NOT NULL,
			object_key TEXT NOT NULL,
			body BLOB NOT NULL,
			size INTEGER NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			last_modified_ns INTEGER NOT NULL,
			PRIMARY KEY (bucket, object_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_objects_modified ON objects(bucket, last_modified_ns)`,
	}
	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "failed to execute schema statement")
		}
	}
	return nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Bucket returns the store for bucket name.
func (d *DB) Bucket(name string) *Store {
	return &Store{db: d.db, bucket: name, now: time.Now}
}

// Store is one bucket of a DB.
type Store struct {
	db     *sqlx.DB
	bucket string
	now    func() time.Time
}

var _ storage.ObjectStore = (*Store)(nil)

type objectRow struct {
	Key            string         `db:"object_key"`
	Body           []byte         `db:"body"`
	Size           int64          `db:"size"`
	ContentType    string         `db:"content_type"`
	Metadata       sql.NullString `db:"metadata"`
	LastModifiedNS int64          `db:"last_modified_ns"`
}

func (r *objectRow) info() (storage.ObjectInfo, error) {
	info := storage.ObjectInfo{
		Key:          r.Key,
		Size:         r.Size,
		ContentType:  r.ContentType,
		LastModified: time.Unix(0, r.LastModifiedNS).UTC(),
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		if err := json.Unmarshal([]byte(r.Metadata.String), &info.Metadata); err != nil {
			return info, errors.Wrapf(err, "failed to unmarshal metadata for %s", r.Key)
		}
	}
	return info, nil
}

// Name implements storage.ObjectStore.
func (s *Store) Name() string { return s.bucket }

// Get implements storage.ObjectStore.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	var row objectRow
	err := s.db.GetContext(ctx, &row, `SELECT object_key, body, size, content_type, metadata, last_modified_ns
		FROM objects WHERE bucket = ? AND object_key = ?`, s.bucket, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(storage.ErrNotFound, "%s/%s", s.bucket, key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s/%s", s.bucket, key)
	}
	info, err := row.info()
	if err != nil {
		return nil, err
	}
	return &storage.Object{ObjectInfo: info, Body: row.Body}, nil
}

// Head implements storage.ObjectStore.
func (s *Store) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	var row objectRow
	err := s.db.GetContext(ctx, &row, `SELECT object_key, size, content_type, metadata, last_modified_ns
		FROM objects WHERE bucket = ? AND object_key = ?`, s.bucket, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(storage.ErrNotFound, "%s/%s", s.bucket, key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to head %s/%s", s.bucket, key)
	}
	info, err := row.info()
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Put implements storage.ObjectStore.
func (s *Store) Put(ctx context.Context, key string, body []byte, opts storage.PutOptions) error {
	var metadata sql.NullString
	if len(opts.Metadata) > 0 {
		b, err := json.Marshal(opts.Metadata)
		if err != nil {
			return errors.Wrap(err, "failed to marshal metadata")
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}
	if body == nil {
		body = []byte{}
	}

	query := `INSERT INTO objects (bucket, object_key, body, size, content_type, metadata, last_modified_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, object_key) DO UPDATE SET
			body=excluded.body,
			size=excluded.size,
			content_type=excluded.content_type,
			metadata=excluded.metadata,
			last_modified_ns=excluded.last_modified_ns`

	_, err := s.db.ExecContext(ctx, query,
		s.bucket, key, body, len(body), opts.ContentType, metadata, s.now().UnixNano())
	if err != nil {
		return errors.Wrapf(err, "failed to put %s/%s", s.bucket, key)
	}
	return nil
}

// List implements storage.ObjectStore.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var rows []objectRow
	err := s.db.SelectContext(ctx, &rows, `SELECT object_key, size, content_type, metadata, last_modified_ns
		FROM objects
		WHERE bucket = ? AND substr(object_key, 1, length(?)) = ?
		ORDER BY object_key`, s.bucket, prefix, prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s/%s", s.bucket, prefix)
	}

	result := make([]storage.ObjectInfo, 0, len(rows))
	for i := range rows {
		info, err := rows[i].info()
		if err != nil {
			return nil, err
		}
		result = append(result, info)
	}
	return result, nil
}

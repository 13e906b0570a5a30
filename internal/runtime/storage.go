package runtime

import (
	"context"
	"io"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/config"
	"github.com/tjfontaine/promptpub/internal/domain"
	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/storage/localfs"
	"github.com/tjfontaine/promptpub/internal/storage/memory"
	s3store "github.com/tjfontaine/promptpub/internal/storage/s3"
	"github.com/tjfontaine/promptpub/internal/storage/sqlite"
)

// bucketOpener returns the store for one bucket name.
type bucketOpener func(bucket string) (storage.ObjectStore, error)

// openStorage builds the router for cfg. Closers release backend
// resources and must be closed by the caller.
func openStorage(ctx context.Context, cfg *config.StorageConfig) (storage.Router, []io.Closer, error) {
	var (
		open    bucketOpener
		closers []io.Closer
	)

	switch cfg.Type {
	case config.StorageMemory:
		open = func(bucket string) (storage.ObjectStore, error) {
			return memory.New(bucket), nil
		}

	case config.StorageLocal:
		open = func(bucket string) (storage.ObjectStore, error) {
			return localfs.New(filepath.Join(cfg.Local.Root, bucket))
		}

	case config.StorageSQLite:
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open sqlite storage")
		}
		closers = append(closers, db)
		open = func(bucket string) (storage.ObjectStore, error) {
			return db.Bucket(bucket), nil
		}

	case config.StorageS3:
		client, err := s3store.NewClient(ctx, s3store.ClientConfig{
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "create s3 client")
		}
		open = func(bucket string) (storage.ObjectStore, error) {
			return s3store.New(client, bucket), nil
		}

	default:
		return nil, nil, &domain.ConfigError{Field: "storage.type", Reason: "unsupported storage type " + cfg.Type}
	}

	router, err := buildRouter(cfg, open)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, nil, err
	}
	return router, closers, nil
}

// buildRouter opens each distinct bucket once. Environments without their
// own bucket share the default.
func buildRouter(cfg *config.StorageConfig, open bucketOpener) (storage.Router, error) {
	opened := make(map[string]storage.ObjectStore)
	get := func(bucket string) (storage.ObjectStore, error) {
		if s, ok := opened[bucket]; ok {
			return s, nil
		}
		s, err := open(bucket)
		if err != nil {
			return nil, errors.Wrapf(err, "open bucket %s", bucket)
		}
		opened[bucket] = s
		return s, nil
	}

	def, err := get(cfg.Bucket)
	if err != nil {
		return nil, err
	}
	router := storage.PerEnvironment{
		Default: def,
		ByEnv:   make(map[domain.Environment]storage.ObjectStore),
	}
	for _, env := range domain.Environments {
		bucket := cfg.OutputBucket(env)
		if bucket == cfg.Bucket {
			continue
		}
		s, err := get(bucket)
		if err != nil {
			return nil, err
		}
		router.ByEnv[env] = s
	}
	return router, nil
}

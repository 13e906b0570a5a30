// Package localfs provides an ObjectStore rooted at a local directory.
// Object attributes are kept in JSON sidecars under a hidden directory so
// the tree itself mirrors bucket keys one to one.
package localfs

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/storage"
)

const metaDir = ".promptpub-meta"

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Store keeps objects as files below root.
type Store struct {
	root string
	name string

	mu sync.RWMutex
}

var _ storage.ObjectStore = (*Store)(nil)

// New creates a store rooted at dir. The directory is created if missing.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", abs)
	}
	return &Store{root: abs, name: filepath.Base(abs)}, nil
}

// Name implements storage.ObjectStore.
func (s *Store) Name() string { return s.name }

// Root returns the directory the store is rooted at.
func (s *Store) Root() string { return s.root }

func (s *Store) paths(key string) (string, string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key || strings.HasPrefix(clean, metaDir) {
		return "", "", errors.Newf("invalid object key %q", key)
	}
	file := filepath.Join(s.root, filepath.FromSlash(clean))
	meta := filepath.Join(s.root, metaDir, filepath.FromSlash(clean)+".json")
	return file, meta, nil
}

// Get implements storage.ObjectStore.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := s.head(key)
	if err != nil {
		return nil, err
	}
	file, _, _ := s.paths(key)
	body, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return &storage.Object{ObjectInfo: *info, Body: body}, nil
}

// Head implements storage.ObjectStore.
func (s *Store) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head(key)
}

func (s *Store) head(key string) (*storage.ObjectInfo, error) {
	file, meta, err := s.paths(key)
	if err != nil {
		return nil, errors.Wrapf(storage.ErrNotFound, "%v", err)
	}
	st, err := os.Stat(file)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && st.IsDir()) {
		return nil, errors.Wrapf(storage.ErrNotFound, "%s/%s", s.name, key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", key)
	}

	info := &storage.ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		LastModified: st.ModTime().UTC(),
	}
	if b, err := os.ReadFile(meta); err == nil {
		var sc sidecar
		if err := json.Unmarshal(b, &sc); err != nil {
			return nil, errors.Wrapf(err, "decode attributes of %s", key)
		}
		info.ContentType = sc.ContentType
		info.Metadata = sc.Metadata
	}
	return info, nil
}

// Put implements storage.ObjectStore.
func (s *Store) Put(ctx context.Context, key string, body []byte, opts storage.PutOptions) error {
	file, meta, err := s.paths(key)
	if err != nil {
		return err
	}
	sc, err := json.Marshal(sidecar{ContentType: opts.ContentType, Metadata: opts.Metadata})
	if err != nil {
		return errors.Wrap(err, "encode attributes")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range []string{file, meta} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return errors.Wrapf(err, "create directory for %s", key)
		}
	}
	if err := writeAtomic(file, body); err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	if err := writeAtomic(meta, sc); err != nil {
		return errors.Wrapf(err, "write attributes of %s", key)
	}
	return nil
}

// List implements storage.ObjectStore.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []storage.ObjectInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == metaDir && filepath.Dir(p) == s.root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) || strings.HasSuffix(key, ".tmp") {
			return nil
		}
		info, err := s.head(key)
		if err != nil {
			return err
		}
		result = append(result, *info)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", prefix)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func writeAtomic(name string, data []byte) error {
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, name)
}

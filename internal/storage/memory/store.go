// Package memory provides an in-process ObjectStore.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/storage"
)

// Store is an in-memory implementation of storage.ObjectStore.
type Store struct {
	name string
	now  func() time.Time

	mu      sync.RWMutex
	objects map[string]*storage.Object
}

var _ storage.ObjectStore = (*Store)(nil)

// New creates a new in-memory store.
func New(name string) *Store {
	return &Store{
		name:    name,
		now:     time.Now,
		objects: make(map[string]*storage.Object),
	}
}

// Name implements storage.ObjectStore.
func (s *Store) Name() string { return s.name }

// Get implements storage.ObjectStore.
func (s *Store) Get(_ context.Context, key string) (*storage.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, errors.Wrapf(storage.ErrNotFound, "%s/%s", s.name, key)
	}
	return cloneObject(obj), nil
}

// Head implements storage.ObjectStore.
func (s *Store) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &obj.ObjectInfo, nil
}

// Put implements storage.ObjectStore.
func (s *Store) Put(_ context.Context, key string, body []byte, opts storage.PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = cloneObject(&storage.Object{
		ObjectInfo: storage.ObjectInfo{
			Key:          key,
			Size:         int64(len(body)),
			ContentType:  opts.ContentType,
			LastModified: s.now().UTC(),
			Metadata:     opts.Metadata,
		},
		Body: body,
	})
	return nil
}

// List implements storage.ObjectStore.
func (s *Store) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []storage.ObjectInfo
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		result = append(result, cloneObject(obj).ObjectInfo)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func cloneObject(o *storage.Object) *storage.Object {
	c := *o
	c.Body = append([]byte(nil), o.Body...)
	if o.Metadata != nil {
		c.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Package storage defines the object-store boundary the pipeline reads
// prompt inputs from and publishes artifacts to.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/domain"
)

// ErrNotFound is returned when a key does not exist in a store.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object without its body.
type ObjectInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"content_type,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Object is a stored object and its body.
type Object struct {
	ObjectInfo
	Body []byte
}

// PutOptions carries the attributes written alongside an object body.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore is a flat key/value object namespace. Put overwrites.
type ObjectStore interface {
	// Name identifies the store, for example the bucket name.
	Name() string
	Get(ctx context.Context, key string) (*Object, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Put(ctx context.Context, key string, body []byte, opts PutOptions) error
	// List returns objects whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ReadAll is a helper for stores backed by streaming bodies.
func ReadAll(r io.ReadCloser) ([]byte, error) {
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read object body")
	}
	return b, nil
}

// Router picks the store that holds a given location or environment.
type Router interface {
	// Input returns the store for an input location such as a bucket name.
	// An empty location selects the default store.
	Input(location string) (ObjectStore, error)
	// Output returns the store artifacts for env are published to.
	Output(env domain.Environment) (ObjectStore, error)
}

// Single routes everything to one store.
type Single struct {
	Store ObjectStore
}

// Input implements Router.
func (s Single) Input(string) (ObjectStore, error) { return s.Store, nil }

// Output implements Router.
func (s Single) Output(domain.Environment) (ObjectStore, error) { return s.Store, nil }

// PerEnvironment routes outputs to a store per environment and inputs to
// whichever known store carries the requested name.
type PerEnvironment struct {
	Default ObjectStore
	ByEnv   map[domain.Environment]ObjectStore
}

// Input implements Router.
func (p PerEnvironment) Input(location string) (ObjectStore, error) {
	if location == "" || (p.Default != nil && location == p.Default.Name()) {
		if p.Default == nil {
			return nil, errors.New("no default store configured")
		}
		return p.Default, nil
	}
	for _, env := range domain.Environments {
		if s, ok := p.ByEnv[env]; ok && s.Name() == location {
			return s, nil
		}
	}
	return nil, errors.Newf("unknown storage location %q", location)
}

// Output implements Router.
func (p PerEnvironment) Output(env domain.Environment) (ObjectStore, error) {
	if s, ok := p.ByEnv[env]; ok {
		return s, nil
	}
	if p.Default == nil {
		return nil, errors.Newf("no store configured for environment %q", env)
	}
	return p.Default, nil
}

// Package storagetest holds a behavioural suite every ObjectStore
// implementation is run against.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/promptpub/internal/storage"
)

// Run exercises store. The store must start empty.
func Run(t *testing.T, store storage.ObjectStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, "prompt_inputs/missing.json")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("Get() error = %v, want ErrNotFound", err)
		}
		if _, err := store.Head(ctx, "prompt_inputs/missing.json"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("Head() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutGetHead", func(t *testing.T) {
		opts := storage.PutOptions{ContentType: "application/json", Metadata: map[string]string{"env": "prod"}}
		if err := store.Put(ctx, "prompt_inputs/ada.json", []byte(`{"a":1}`), opts); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		obj, err := store.Get(ctx, "prompt_inputs/ada.json")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(obj.Body) != `{"a":1}` {
			t.Errorf("Body = %q", obj.Body)
		}
		if obj.Size != 7 {
			t.Errorf("Size = %d, want 7", obj.Size)
		}

		info, err := store.Head(ctx, "prompt_inputs/ada.json")
		if err != nil {
			t.Fatalf("Head() error = %v", err)
		}
		if info.ContentType != "application/json" {
			t.Errorf("ContentType = %q", info.ContentType)
		}
		if diff := cmp.Diff(map[string]string{"env": "prod"}, info.Metadata); diff != "" {
			t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
		}
		if info.LastModified.IsZero() {
			t.Error("LastModified not set")
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		key := "beta/outputs/ada.md"
		if err := store.Put(ctx, key, []byte("first"), storage.PutOptions{ContentType: "text/markdown"}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := store.Put(ctx, key, []byte("second"), storage.PutOptions{ContentType: "text/markdown"}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		obj, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(obj.Body) != "second" {
			t.Errorf("Body = %q, want last write", obj.Body)
		}
	})

	t.Run("ListByPrefix", func(t *testing.T) {
		for _, key := range []string{"beta/outputs/b.html", "beta/outputs/a.html", "prod/outputs/c.html"} {
			if err := store.Put(ctx, key, []byte("x"), storage.PutOptions{ContentType: "text/html"}); err != nil {
				t.Fatalf("Put(%s) error = %v", key, err)
			}
		}
		items, err := store.List(ctx, "beta/outputs/")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		var keys []string
		for _, it := range items {
			keys = append(keys, it.Key)
		}
		want := []string{"beta/outputs/a.html", "beta/outputs/ada.md", "beta/outputs/b.html"}
		if diff := cmp.Diff(want, keys); diff != "" {
			t.Errorf("List keys mismatch (-want +got):\n%s", diff)
		}

		none, err := store.List(ctx, "nothing/")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(none) != 0 {
			t.Errorf("List(nothing/) = %v, want empty", none)
		}
	})
}

package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestLocalFSStore(t *testing.T) {
	storagetest.Run(t, newTestStore(t))
}

func TestLocalFSStore_ReadsPlainFiles(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.Root(), "prompt_templates")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "welcome_email.txt"), []byte("Hi {{name}}"), 0o644); err != nil {
		t.Fatal(err)
	}

	obj, err := s.Get(context.Background(), "prompt_templates/welcome_email.txt")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(obj.Body) != "Hi {{name}}" {
		t.Errorf("Body = %q", obj.Body)
	}
	if obj.ContentType != "" || obj.Metadata != nil {
		t.Errorf("unexpected attributes on plain file: %+v", obj.ObjectInfo)
	}
}

func TestLocalFSStore_RejectsEscapingKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"../outside.txt", "a/../../b", "/abs", "", ".promptpub-meta/x.json"} {
		if err := s.Put(ctx, key, []byte("x"), storage.PutOptions{}); err == nil {
			t.Errorf("Put(%q) succeeded, want error", key)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound", key, err)
		}
	}
}

func TestLocalFSStore_ListSkipsAttributes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, "prod/outputs/x.html", []byte("x"), storage.PutOptions{ContentType: "text/html"}); err != nil {
		t.Fatal(err)
	}
	items, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 1 || items[0].Key != "prod/outputs/x.html" {
		t.Errorf("List() = %+v", items)
	}
	if items[0].ContentType != "text/html" {
		t.Errorf("ContentType = %q", items[0].ContentType)
	}
}

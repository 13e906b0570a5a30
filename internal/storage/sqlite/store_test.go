package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/storage/storagetest"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "objects.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, openTestDB(t).Bucket("promptpub-beta"))
}

func TestSQLiteStore_BucketsAreIsolated(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	beta := db.Bucket("beta-bucket")
	prod := db.Bucket("prod-bucket")

	if err := beta.Put(ctx, "beta/outputs/ada.html", []byte("<p>hi</p>"), storage.PutOptions{ContentType: "text/html"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, err := prod.Get(ctx, "beta/outputs/ada.html"); err == nil {
		t.Fatal("object leaked across buckets")
	}
	items, err := prod.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("prod List() = %v, want empty", items)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Bucket("b").Put(ctx, "k", []byte("v"), storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db.Close()

	obj, err := db.Bucket("b").Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(obj.Body) != "v" {
		t.Errorf("Body = %q, want v", obj.Body)
	}
}

package memory

import (
	"context"
	"testing"

	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, New("test-bucket"))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := New("test-bucket")
	ctx := context.Background()

	body := []byte("hello")
	if err := store.Put(ctx, "k", body, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	body[0] = 'j'

	obj, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(obj.Body) != "hello" {
		t.Errorf("Body = %q, caller mutation leaked into the store", obj.Body)
	}
	obj.Body[0] = 'y'

	again, _ := store.Get(ctx, "k")
	if string(again.Body) != "hello" {
		t.Errorf("Body = %q, returned slice aliases the store", again.Body)
	}
}

package trigger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/tjfontaine/promptpub/internal/domain"
	"github.com/tjfontaine/promptpub/internal/environment"
	"github.com/tjfontaine/promptpub/internal/pipeline"
	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingRunner struct {
	mu     sync.Mutex
	inputs []pipeline.Input
	block  chan struct{}
	err    error
}

func (r *recordingRunner) Run(ctx context.Context, in pipeline.Input) (*domain.ExecutionContext, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	r.inputs = append(r.inputs, in)
	r.mu.Unlock()
	return &domain.ExecutionContext{ExecutionID: in.ExecutionID}, r.err
}

func (r *recordingRunner) seen() []pipeline.Input {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.Input(nil), r.inputs...)
}

func TestLocalStarter_StartAndWait(t *testing.T) {
	runner := &recordingRunner{err: errors.New("boom")}
	s := NewLocalStarter(runner, time.Second, discardLogger())

	id1, err := s.Start(context.Background(), pipeline.Input{Key: "prompt_inputs/a.json"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	id2, err := s.Start(context.Background(), pipeline.Input{Key: "prompt_inputs/b.json", ExecutionID: "fixed"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if id1 == "" || id1 == id2 || id2 != "fixed" {
		t.Errorf("ids = %q, %q", id1, id2)
	}

	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := len(runner.seen()); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}

	if _, err := s.Start(context.Background(), pipeline.Input{Key: "prompt_inputs/c.json"}); !errors.Is(err, ErrStopped) {
		t.Errorf("Start() after Wait error = %v, want ErrStopped", err)
	}
}

func TestLocalStarter_RunOutlivesRequestContext(t *testing.T) {
	runner := &recordingRunner{block: make(chan struct{})}
	s := NewLocalStarter(runner, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := s.Start(ctx, pipeline.Input{Key: "prompt_inputs/a.json"}); err != nil {
		t.Fatal(err)
	}
	cancel()
	close(runner.block)

	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(runner.seen()); got != 1 {
		t.Errorf("runs = %d, want the run to complete despite cancellation", got)
	}
}

func TestLocalStarter_Timeout(t *testing.T) {
	runner := &recordingRunner{block: make(chan struct{})}
	defer close(runner.block)
	s := NewLocalStarter(runner, 10*time.Millisecond, discardLogger())

	if _, err := s.Start(context.Background(), pipeline.Input{Key: "prompt_inputs/a.json"}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v, want the run to be bounded by the timeout", err)
	}
	if got := len(runner.seen()); got != 0 {
		t.Errorf("runs recorded = %d, want 0 for a timed-out run", got)
	}
}

type fakeStarter struct {
	inputs []pipeline.Input
}

func (f *fakeStarter) Start(_ context.Context, in pipeline.Input) (string, error) {
	f.inputs = append(f.inputs, in)
	return "exec-1", nil
}

func uploadEvent(bucket, key string) UploadEvent {
	var rec UploadRecord
	rec.S3.Bucket.Name = bucket
	rec.S3.Object.Key = key
	return UploadEvent{Records: []UploadRecord{rec}}
}

func TestUploadHandler(t *testing.T) {
	store := memory.New("promptpub")
	ctx := context.Background()
	put := func(key string, meta map[string]string) {
		if err := store.Put(ctx, key, []byte("{}"), storage.PutOptions{Metadata: meta}); err != nil {
			t.Fatal(err)
		}
	}
	put("prompt_inputs/welcome ada.json", map[string]string{"env": "prod"})
	put("prompt_inputs/prod-b.json", map[string]string{"env": "qa"})
	put("prompt_inputs/c.json", nil)

	resolver, err := environment.NewResolver("beta")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		key     string
		wantKey string
		wantEnv string
	}{
		{"metadata env, url-encoded key", "prompt_inputs/welcome+ada.json", "prompt_inputs/welcome ada.json", "prod"},
		{"invalid metadata falls back to prefix", "prompt_inputs/prod-b.json", "prompt_inputs/prod-b.json", "prod"},
		{"default", "prompt_inputs/c.json", "prompt_inputs/c.json", "beta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &fakeStarter{}
			h := NewUploadHandler(starter, storage.Single{Store: store}, resolver)
			id, in, err := h.Handle(ctx, uploadEvent("promptpub", tt.key))
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if id != "exec-1" || in.ExecutionID != "exec-1" {
				t.Errorf("id = %q", id)
			}
			if len(starter.inputs) != 1 {
				t.Fatalf("starts = %d", len(starter.inputs))
			}
			got := starter.inputs[0]
			if got.Key != tt.wantKey || got.Env != tt.wantEnv || got.StorageID != "promptpub" {
				t.Errorf("input = %+v", got)
			}
		})
	}
}

func TestUploadHandler_Errors(t *testing.T) {
	resolver, _ := environment.NewResolver("beta")
	h := NewUploadHandler(&fakeStarter{}, storage.Single{Store: memory.New("b")}, resolver)
	ctx := context.Background()

	if _, _, err := h.Handle(ctx, UploadEvent{}); !domain.IsValidation(err) {
		t.Errorf("empty event error = %v, want validation", err)
	}
	for _, key := range []string{"beta/outputs/ada.md", "prompt_templates/welcome_email.txt", "prompt_inputs/notes.txt"} {
		if _, _, err := h.Handle(ctx, uploadEvent("b", key)); !domain.IsValidation(err) {
			t.Errorf("Handle(%q) error = %v, want validation", key, err)
		}
	}
	if _, _, err := h.Handle(ctx, uploadEvent("b", "prompt_inputs/missing.json")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing object error = %v, want ErrNotFound", err)
	}
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/promptpub/internal/api/messages"
	"github.com/tjfontaine/promptpub/internal/domain"
	"github.com/tjfontaine/promptpub/internal/environment"
	"github.com/tjfontaine/promptpub/internal/inference"
	"github.com/tjfontaine/promptpub/internal/publish"
	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/storage/memory"
	"github.com/tjfontaine/promptpub/internal/tokens"
)

// fakeTransport fails with the queued errors, then answers with text.
type fakeTransport struct {
	mu    sync.Mutex
	fails []error
	text  string
	calls int
}

func (f *fakeTransport) CreateMessage(context.Context, *messages.MessagesRequest) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.fails) > 0 {
		err := f.fails[0]
		f.fails = f.fails[1:]
		return nil, err
	}
	return json.Marshal(map[string]any{
		"content": []map[string]any{{"type": "text", "text": f.text}},
	})
}

type harness struct {
	store     *memory.Store
	transport *fakeTransport
	coord     *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New("promptpub")
	resolver, err := environment.NewResolver("beta")
	if err != nil {
		t.Fatal(err)
	}
	tr := &fakeTransport{text: "Welcome aboard"}
	inv := inference.NewInvoker(tr,
		inference.WithLogger(discardLogger()),
		inference.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
	router := storage.Single{Store: store}
	coord := NewCoordinator(&Stages{
		Resolver:  resolver,
		Router:    router,
		Invoker:   inv,
		Publisher: publish.NewPublisher(router, discardLogger()),
		Counter:   tokens.NewEstimator(),
		Logger:    discardLogger(),
	})
	return &harness{store: store, transport: tr, coord: coord}
}

func (h *harness) put(t *testing.T, key, body string, meta map[string]string) {
	t.Helper()
	if err := h.store.Put(context.Background(), key, []byte(body), storage.PutOptions{Metadata: meta}); err != nil {
		t.Fatal(err)
	}
}

const adaConfig = `{"template":"welcome_{{name}}.txt","variables":{"name":"Ada"},"output_slug":"ada","output_format":"md"}`

func TestCoordinator_EndToEndMarkdown(t *testing.T) {
	h := newHarness(t)
	h.put(t, "prompt_templates/welcome_{{name}}.txt", "Hi {{name}}", nil)
	h.put(t, "prompt_inputs/ada.json", adaConfig, nil)

	ec, err := h.coord.Run(context.Background(), Input{Key: "prompt_inputs/ada.json"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if ec.RenderedPrompt != "Hi Ada" {
		t.Errorf("RenderedPrompt = %q, want %q", ec.RenderedPrompt, "Hi Ada")
	}
	if ec.Environment != domain.EnvBeta {
		t.Errorf("Environment = %q, want beta", ec.Environment)
	}
	if ec.OutputReference != "beta/outputs/ada.md" {
		t.Errorf("OutputReference = %q", ec.OutputReference)
	}
	if ec.ExecutionID == "" {
		t.Error("ExecutionID not assigned")
	}
	if ec.PromptTokens == 0 {
		t.Error("PromptTokens not recorded")
	}

	obj, err := h.store.Get(context.Background(), "beta/outputs/ada.md")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if want := "# ada\n\nWelcome aboard\n"; string(obj.Body) != want {
		t.Errorf("artifact body = %q, want %q", obj.Body, want)
	}
	if obj.ContentType != "text/markdown" {
		t.Errorf("ContentType = %q", obj.ContentType)
	}
}

func TestCoordinator_UnresolvedVariableStopsBeforeInference(t *testing.T) {
	h := newHarness(t)
	h.put(t, "prompt_templates/welcome_email.txt", "Hi {{name}}, your code is {{missing}}", nil)
	h.put(t, "prompt_inputs/ada.json", `{"variables":{"name":"Ada"}}`, nil)

	ec, err := h.coord.Run(context.Background(), Input{Key: "prompt_inputs/ada.json"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want validation error", err)
	}
	var unresolved *domain.UnresolvedVariableError
	if !errors.As(err, &unresolved) {
		t.Fatalf("error = %v, want *domain.UnresolvedVariableError", err)
	}
	if len(unresolved.Tokens) != 1 || unresolved.Tokens[0] != "{{missing}}" {
		t.Errorf("Tokens = %v", unresolved.Tokens)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageRender {
		t.Errorf("failing stage = %v, want render", err)
	}
	if h.transport.calls != 0 {
		t.Errorf("inference called %d times, want 0", h.transport.calls)
	}
	if ec.OutputReference != "" {
		t.Error("output written for a failed run")
	}
}

func TestCoordinator_ThrottledThenSucceeds(t *testing.T) {
	h := newHarness(t)
	h.transport.fails = []error{
		domain.ErrRateLimit("throttled"),
		domain.ErrRateLimit("throttled"),
		domain.ErrRateLimit("throttled"),
	}
	h.put(t, "prompt_templates/welcome_email.txt", "Hi {{name}}", nil)
	h.put(t, "prompt_inputs/prod-ada.json", `{"variables":{"name":"Ada"}}`, nil)

	ec, err := h.coord.Run(context.Background(), Input{Key: "prompt_inputs/prod-ada.json"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ec.AttemptsUsed != 4 {
		t.Errorf("AttemptsUsed = %d, want 4", ec.AttemptsUsed)
	}
	if ec.Environment != domain.EnvProd {
		t.Errorf("Environment = %q, want prod from the name prefix", ec.Environment)
	}
	if ec.OutputReference != "prod/outputs/prod-ada.html" {
		t.Errorf("OutputReference = %q", ec.OutputReference)
	}
}

func TestCoordinator_EnvironmentPriority(t *testing.T) {
	h := newHarness(t)
	h.put(t, "prompt_templates/welcome_email.txt", "Hi", nil)
	h.put(t, "prompt_inputs/beta-x.json", `{"output_slug":"x"}`, map[string]string{"env": "prod"})

	ec, err := h.coord.Run(context.Background(), Input{Key: "prompt_inputs/beta-x.json"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ec.Environment != domain.EnvProd {
		t.Errorf("metadata should beat the name prefix, got %q", ec.Environment)
	}

	ec, err = h.coord.Run(context.Background(), Input{Key: "prompt_inputs/beta-x.json", Env: "beta"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ec.Environment != domain.EnvBeta {
		t.Errorf("explicit env should win, got %q", ec.Environment)
	}

	_, err = h.coord.Run(context.Background(), Input{Key: "prompt_inputs/beta-x.json", Env: "staging"})
	var envErr *domain.InvalidEnvironmentError
	if !errors.As(err, &envErr) {
		t.Errorf("error = %v, want *domain.InvalidEnvironmentError", err)
	}
}

func TestCoordinator_MissingInputs(t *testing.T) {
	h := newHarness(t)

	_, err := h.coord.Run(context.Background(), Input{Key: "prompt_inputs/nope.json"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing input error = %v, want ErrNotFound", err)
	}

	h.put(t, "prompt_inputs/ada.json", `{"template":"absent.txt"}`, nil)
	_, err = h.coord.Run(context.Background(), Input{Key: "prompt_inputs/ada.json", Env: "beta"})
	if !domain.IsValidation(err) {
		t.Errorf("missing template error = %v, want validation", err)
	}
}

func TestCoordinator_PermanentInferenceFailure(t *testing.T) {
	h := newHarness(t)
	h.transport.fails = []error{domain.ErrAuthentication("bad key").WithStatusCode(401)}
	h.put(t, "prompt_templates/welcome_email.txt", "Hi", nil)
	h.put(t, "prompt_inputs/ada.json", `{}`, nil)

	_, err := h.coord.Run(context.Background(), Input{Key: "prompt_inputs/ada.json"})
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeAuthentication {
		t.Fatalf("error = %v, want authentication APIError", err)
	}
	if h.transport.calls != 1 {
		t.Errorf("calls = %d, want 1", h.transport.calls)
	}
	items, _ := h.store.List(context.Background(), "beta/outputs/")
	if len(items) != 0 {
		t.Errorf("artifact published after failure: %v", items)
	}
}

func TestStages_WriteOnce(t *testing.T) {
	h := newHarness(t)
	h.put(t, "prompt_templates/welcome_email.txt", "Hi", nil)
	h.put(t, "prompt_inputs/ada.json", `{}`, nil)

	ec := &domain.ExecutionContext{InputReference: "prompt_inputs/ada.json", Environment: domain.EnvProd}
	stages := h.coord.Stages()
	if err := stages[0].Process(context.Background(), ec); err == nil {
		t.Error("resolve overwrote an existing environment")
	}
	if err := stages[1].Process(context.Background(), ec); err != nil {
		t.Fatalf("render error = %v", err)
	}
	if err := stages[1].Process(context.Background(), ec); err == nil {
		t.Error("render ran twice on the same context")
	}
	if err := stages[3].Process(context.Background(), ec); err == nil {
		t.Error("publish ran without model output")
	}
}

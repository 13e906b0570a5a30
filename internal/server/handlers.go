package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/domain"
	"github.com/tjfontaine/promptpub/internal/environment"
	"github.com/tjfontaine/promptpub/internal/pipeline"
	"github.com/tjfontaine/promptpub/internal/prompt"
	"github.com/tjfontaine/promptpub/internal/publish"
	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/trigger"
)

var (
	errRouteNotFound    = errors.New("route not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errRateLimited      = errors.New("rate limit exceeded")
	errInvalidEnv       = errors.New("env must be beta or prod")
	errInvalidBody      = errors.New("invalid JSON body")
	errInvalidKey       = errors.New("body.key must be a prompt_inputs/*.json key")
)

type handlers struct {
	router   storage.Router
	resolver *environment.Resolver
	starter  trigger.Starter
	uploads  *trigger.UploadHandler
}

type errorResponse struct {
	Error string `json:"error"`
}

type outputItem struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

type outputsResponse struct {
	Bucket string       `json:"bucket"`
	Prefix string       `json:"prefix"`
	Items  []outputItem `json:"items"`
}

type regenerateRequest struct {
	Key string `json:"key"`
}

type startedResponse struct {
	Started     bool           `json:"started"`
	ExecutionID string         `json:"execution_id"`
	Input       pipeline.Input `json:"input"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	AddError(r.Context(), err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeFailure maps err to a status: validation failures are the caller's
// fault, everything else is ours.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, r, http.StatusBadRequest, err)
	case errors.Is(err, trigger.ErrStopped):
		writeError(w, r, http.StatusServiceUnavailable, err)
	default:
		AddError(r.Context(), err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// queryEnv returns the env query parameter or the configured default.
func (h *handlers) queryEnv(r *http.Request) (domain.Environment, bool) {
	raw := r.URL.Query().Get("env")
	if raw == "" {
		return h.resolver.Default(), true
	}
	return domain.ParseEnvironment(raw)
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listOutputs(w http.ResponseWriter, r *http.Request) {
	env, ok := h.queryEnv(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, errInvalidEnv)
		return
	}
	store, err := h.router.Output(env)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	prefix := publish.OutputPrefix(env)
	objects, err := store.List(r.Context(), prefix)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	resp := outputsResponse{Bucket: store.Name(), Prefix: prefix, Items: make([]outputItem, 0, len(objects))}
	for _, obj := range objects {
		resp.Items = append(resp.Items, outputItem{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) regenerate(w http.ResponseWriter, r *http.Request) {
	env, ok := h.queryEnv(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, errInvalidEnv)
		return
	}

	var body regenerateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
			writeError(w, r, http.StatusBadRequest, errInvalidBody)
			return
		}
	}
	if !prompt.IsInputKey(body.Key) {
		writeError(w, r, http.StatusBadRequest, errInvalidKey)
		return
	}

	store, err := h.router.Input("")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	in := pipeline.Input{StorageID: store.Name(), Key: body.Key, Env: string(env)}
	id, err := h.starter.Start(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	in.ExecutionID = id
	AddLogField(r.Context(), "execution_id", id)
	writeJSON(w, http.StatusOK, startedResponse{Started: true, ExecutionID: id, Input: in})
}

func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	var ev trigger.UploadEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&ev); err != nil {
		writeError(w, r, http.StatusBadRequest, errInvalidBody)
		return
	}

	id, in, err := h.uploads.Handle(r.Context(), ev)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	AddLogField(r.Context(), "execution_id", id)
	writeJSON(w, http.StatusOK, startedResponse{Started: true, ExecutionID: id, Input: in})
}

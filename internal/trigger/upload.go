package trigger

import (
	"context"
	"net/url"

	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/domain"
	"github.com/tjfontaine/promptpub/internal/environment"
	"github.com/tjfontaine/promptpub/internal/pipeline"
	"github.com/tjfontaine/promptpub/internal/prompt"
	"github.com/tjfontaine/promptpub/internal/storage"
)

// UploadEvent is an S3-style object-created notification.
type UploadEvent struct {
	Records []UploadRecord `json:"Records"`
}

// UploadRecord is one entry of an UploadEvent.
type UploadRecord struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// UploadHandler turns upload notifications into executions.
type UploadHandler struct {
	starter  Starter
	router   storage.Router
	resolver *environment.Resolver
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(starter Starter, router storage.Router, resolver *environment.Resolver) *UploadHandler {
	return &UploadHandler{starter: starter, router: router, resolver: resolver}
}

// Handle starts an execution for the first record of ev. The environment is
// taken from the object's env metadata, then its name prefix, then the
// default, and passed to the run explicitly.
func (h *UploadHandler) Handle(ctx context.Context, ev UploadEvent) (string, pipeline.Input, error) {
	if len(ev.Records) == 0 {
		return "", pipeline.Input{}, &domain.ConfigError{Field: "Records", Reason: "event has no records"}
	}
	rec := ev.Records[0]

	// Notification keys arrive URL-encoded.
	key, err := url.QueryUnescape(rec.S3.Object.Key)
	if err != nil {
		return "", pipeline.Input{}, &domain.ConfigError{Field: "s3.object.key", Reason: err.Error()}
	}
	if key == "" {
		return "", pipeline.Input{}, &domain.ConfigError{Field: "s3.object.key", Reason: "must not be empty"}
	}
	if !prompt.IsInputKey(key) {
		return "", pipeline.Input{}, &domain.ConfigError{Field: "s3.object.key", Reason: "must be a " + prompt.InputPrefix + "*.json key"}
	}

	store, err := h.router.Input(rec.S3.Bucket.Name)
	if err != nil {
		return "", pipeline.Input{}, err
	}
	info, err := store.Head(ctx, key)
	if err != nil {
		return "", pipeline.Input{}, errors.Wrapf(err, "inspect uploaded object %s", key)
	}
	env, err := h.resolver.Resolve("", info.Metadata["env"], key)
	if err != nil {
		return "", pipeline.Input{}, err
	}

	in := pipeline.Input{StorageID: rec.S3.Bucket.Name, Key: key, Env: string(env)}
	id, err := h.starter.Start(ctx, in)
	if err != nil {
		return "", in, err
	}
	in.ExecutionID = id
	return id, in, nil
}

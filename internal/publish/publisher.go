package publish

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/domain"
	"github.com/tjfontaine/promptpub/internal/storage"
)

// Publisher writes formatted artifacts. Writes to the same address
// overwrite; there is no versioning.
type Publisher struct {
	router storage.Router
	logger *slog.Logger
}

// NewPublisher creates a publisher writing through router.
func NewPublisher(router storage.Router, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{router: router, logger: logger}
}

// Publish formats result and writes it to {env}/outputs/{slug}.{ext} in the
// store that serves env.
func (p *Publisher) Publish(ctx context.Context, result *domain.InferenceResult, slug string, format domain.OutputFormat, env domain.Environment) (*domain.PublishedArtifact, error) {
	if !env.Valid() {
		return nil, &domain.InvalidEnvironmentError{Value: string(env)}
	}
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("nothing to publish")
	}
	format = domain.NormalizeFormat(string(format))

	store, err := p.router.Output(env)
	if err != nil {
		return nil, errors.Wrapf(err, "select output store for %s", env)
	}

	artifact := &domain.PublishedArtifact{
		Location:    OutputKey(env, slug, format),
		ContentType: format.ContentType(),
		Body:        Format(slug, result.Text, format),
	}
	if err := store.Put(ctx, artifact.Location, artifact.Body, storage.PutOptions{
		ContentType: artifact.ContentType,
		Metadata:    map[string]string{"env": string(env)},
	}); err != nil {
		return nil, errors.Wrapf(err, "publish %s", artifact.Location)
	}

	p.logger.Info("published artifact",
		slog.String("store", store.Name()),
		slog.String("key", artifact.Location),
		slog.String("content_type", artifact.ContentType),
		slog.Int("bytes", len(artifact.Body)),
	)
	return artifact, nil
}

package pipeline

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/domain"
	"github.com/tjfontaine/promptpub/internal/environment"
	"github.com/tjfontaine/promptpub/internal/prompt"
	"github.com/tjfontaine/promptpub/internal/publish"
	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/template"
	"github.com/tjfontaine/promptpub/internal/tokens"
)

// Stage names.
const (
	StageResolve = "resolve"
	StageRender  = "render"
	StageInvoke  = "invoke"
	StagePublish = "publish"
)

// Invoker produces model output for a rendered prompt.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, maxTokens int) (*domain.InferenceResult, error)
}

// Publisher writes model output as an artifact.
type Publisher interface {
	Publish(ctx context.Context, result *domain.InferenceResult, slug string, format domain.OutputFormat, env domain.Environment) (*domain.PublishedArtifact, error)
}

// Stages holds the dependencies of the four pipeline stages.
type Stages struct {
	Resolver  *environment.Resolver
	Router    storage.Router
	Invoker   Invoker
	Publisher Publisher
	Counter   tokens.Counter
	Logger    *slog.Logger
}

// All returns the stages in execution order.
func (s *Stages) All() []Stage {
	return []Stage{s.Resolve(), s.Render(), s.Invoke(), s.Publish()}
}

func alreadySet(field string) error {
	return errors.AssertionFailedf("execution context field %s already written", field)
}

// Resolve returns the environment resolution stage.
func (s *Stages) Resolve() Stage {
	return NewStage(StageResolve, func(ctx context.Context, ec *domain.ExecutionContext) error {
		if ec.Environment != "" {
			return alreadySet("environment")
		}

		var metadataEnv string
		if ec.RequestedEnvironment == "" {
			store, err := s.Router.Input(ec.StorageLocation)
			if err != nil {
				return err
			}
			info, err := store.Head(ctx, ec.InputReference)
			if err != nil {
				return errors.Wrapf(err, "inspect input %s", ec.InputReference)
			}
			metadataEnv = info.Metadata["env"]
		}

		env, err := s.Resolver.Resolve(ec.RequestedEnvironment, metadataEnv, ec.InputReference)
		if err != nil {
			return err
		}
		ec.Environment = env
		return nil
	})
}

// Render returns the stage that loads the prompt configuration and renders
// its template.
func (s *Stages) Render() Stage {
	return NewStage(StageRender, func(ctx context.Context, ec *domain.ExecutionContext) error {
		if ec.PromptConfig != nil {
			return alreadySet("prompt_config")
		}
		if ec.RenderedPrompt != "" {
			return alreadySet("rendered_prompt")
		}

		store, err := s.Router.Input(ec.StorageLocation)
		if err != nil {
			return err
		}
		input, err := store.Get(ctx, ec.InputReference)
		if err != nil {
			return errors.Wrapf(err, "read prompt config %s", ec.InputReference)
		}
		cfg, err := prompt.Parse(input.Body, ec.InputReference)
		if err != nil {
			return err
		}
		if err := publish.ValidateSlug(cfg.OutputSlug); err != nil {
			return err
		}

		templateKey := prompt.TemplateKey(cfg.Template)
		tmpl, err := store.Get(ctx, templateKey)
		if errors.Is(err, storage.ErrNotFound) {
			return &domain.ConfigError{Field: "template", Reason: "template " + templateKey + " not found"}
		}
		if err != nil {
			return errors.Wrapf(err, "read template %s", templateKey)
		}

		rendered, err := template.Render(string(tmpl.Body), cfg.Variables)
		if err != nil {
			return err
		}

		ec.PromptConfig = cfg
		ec.RenderedPrompt = rendered
		if s.Counter != nil {
			ec.PromptTokens = s.Counter.Count(rendered).Tokens
		}
		s.logger().Info("rendered prompt",
			slog.String("execution_id", ec.ExecutionID),
			slog.String("env", string(ec.Environment)),
			slog.String("slug", cfg.OutputSlug),
			slog.String("format", string(cfg.OutputFormat)),
			slog.Int("prompt_tokens", ec.PromptTokens),
		)
		return nil
	})
}

// Invoke returns the inference stage.
func (s *Stages) Invoke() Stage {
	return NewStage(StageInvoke, func(ctx context.Context, ec *domain.ExecutionContext) error {
		if ec.ModelOutput != "" {
			return alreadySet("model_output")
		}
		if ec.RenderedPrompt == "" || ec.PromptConfig == nil {
			return errors.AssertionFailedf("invoke requires a rendered prompt")
		}

		res, err := s.Invoker.Invoke(ctx, ec.RenderedPrompt, ec.PromptConfig.MaxTokens)
		if err != nil {
			return err
		}
		ec.ModelOutput = res.Text
		ec.AttemptsUsed = res.AttemptsUsed
		return nil
	})
}

// Publish returns the publishing stage.
func (s *Stages) Publish() Stage {
	return NewStage(StagePublish, func(ctx context.Context, ec *domain.ExecutionContext) error {
		if ec.OutputReference != "" {
			return alreadySet("output_reference")
		}
		if ec.ModelOutput == "" || ec.PromptConfig == nil {
			return errors.AssertionFailedf("publish requires model output")
		}

		artifact, err := s.Publisher.Publish(ctx,
			&domain.InferenceResult{Text: ec.ModelOutput, AttemptsUsed: ec.AttemptsUsed},
			ec.PromptConfig.OutputSlug, ec.PromptConfig.OutputFormat, ec.Environment)
		if err != nil {
			return err
		}
		ec.OutputReference = artifact.Location
		return nil
	})
}

func (s *Stages) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

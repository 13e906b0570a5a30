package domain

import "strings"

// Environment is one of the two isolated deployment contexts.
type Environment string

const (
	EnvBeta Environment = "beta"
	EnvProd Environment = "prod"
)

// Environments lists every recognized environment value.
var Environments = []Environment{EnvBeta, EnvProd}

// ParseEnvironment returns the environment named by s. Matching is exact:
// "Beta" or " prod" are not environments.
func ParseEnvironment(s string) (Environment, bool) {
	switch Environment(s) {
	case EnvBeta, EnvProd:
		return Environment(s), true
	}
	return "", false
}

// Valid reports whether e is a recognized environment.
func (e Environment) Valid() bool {
	_, ok := ParseEnvironment(string(e))
	return ok
}

func (e Environment) String() string { return string(e) }

// OutputFormat selects how a published artifact is rendered.
type OutputFormat string

const (
	FormatHTML     OutputFormat = "html"
	FormatMarkdown OutputFormat = "md"
)

// NormalizeFormat lower-cases s and falls back to html for anything
// that is not a known format.
func NormalizeFormat(s string) OutputFormat {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatHTML, FormatMarkdown:
		return f
	}
	return FormatHTML
}

// Extension returns the file extension used in output keys.
func (f OutputFormat) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return "html"
}

// ContentType returns the MIME type stored with the artifact.
func (f OutputFormat) ContentType() string {
	if f == FormatMarkdown {
		return "text/markdown"
	}
	return "text/html"
}

// PromptConfig is the per-execution configuration object. It is read once
// at pipeline start and never mutated afterwards.
type PromptConfig struct {
	Template     string         `json:"template"`
	Variables    map[string]any `json:"variables"`
	OutputSlug   string         `json:"output_slug"`
	OutputFormat OutputFormat   `json:"output_format"`
	MaxTokens    int            `json:"max_tokens"`
}

// InferenceResult is the text produced by a successful inference call.
type InferenceResult struct {
	Text         string `json:"text"`
	AttemptsUsed int    `json:"attempts_used"`
}

// PublishedArtifact describes an object written by the publisher.
type PublishedArtifact struct {
	Location    string `json:"location"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"-"`
}

// ExecutionContext is threaded through the pipeline stages of a single run.
// Stages append the fields they produce and never rewrite fields written by
// an earlier stage.
type ExecutionContext struct {
	ExecutionID string `json:"execution_id"`

	// Inputs supplied by the trigger.
	StorageLocation      string `json:"storage_location"`
	InputReference       string `json:"input_reference"`
	RequestedEnvironment string `json:"requested_environment,omitempty"`

	// Resolve stage.
	Environment Environment `json:"environment,omitempty"`

	// Render stage.
	PromptConfig   *PromptConfig `json:"prompt_config,omitempty"`
	RenderedPrompt string        `json:"rendered_prompt,omitempty"`
	PromptTokens   int           `json:"prompt_tokens,omitempty"`

	// Invoke stage.
	ModelOutput  string `json:"model_output,omitempty"`
	AttemptsUsed int    `json:"attempts_used,omitempty"`

	// Publish stage.
	OutputReference string `json:"output_reference,omitempty"`
}

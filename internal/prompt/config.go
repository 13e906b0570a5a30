// Package prompt loads per-execution prompt configuration objects and maps
// them to storage keys.
package prompt

import (
	"bytes"
	"encoding/json"
	"path"
	"strconv"
	"strings"

	"github.com/tjfontaine/promptpub/internal/domain"
)

const (
	// InputPrefix is where prompt configuration objects are uploaded.
	InputPrefix = "prompt_inputs/"
	// TemplatePrefix is where templates are stored.
	TemplatePrefix = "prompt_templates/"

	DefaultTemplate  = "welcome_email.txt"
	DefaultMaxTokens = 200
)

// rawConfig mirrors the JSON document before defaults are applied.
type rawConfig struct {
	Template     *string         `json:"template"`
	Variables    map[string]any  `json:"variables"`
	OutputSlug   string          `json:"output_slug"`
	Slug         string          `json:"slug"`
	OutputFormat string          `json:"output_format"`
	MaxTokens    json.RawMessage `json:"max_tokens"`
}

// Parse decodes a prompt configuration document read from inputKey and
// applies defaults. Numbers in variables are kept as json.Number so they
// render exactly as written.
func Parse(data []byte, inputKey string) (*domain.PromptConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw rawConfig
	if err := dec.Decode(&raw); err != nil {
		return nil, &domain.ConfigError{Reason: "malformed JSON: " + err.Error()}
	}

	cfg := &domain.PromptConfig{
		Template:     DefaultTemplate,
		Variables:    raw.Variables,
		OutputFormat: domain.NormalizeFormat(raw.OutputFormat),
	}
	if raw.Template != nil {
		cfg.Template = strings.TrimSpace(*raw.Template)
		if cfg.Template == "" {
			return nil, &domain.ConfigError{Field: "template", Reason: "must not be empty"}
		}
	}
	if cfg.Variables == nil {
		cfg.Variables = map[string]any{}
	}
	for name, v := range cfg.Variables {
		switch v.(type) {
		case string, json.Number, bool:
		default:
			return nil, &domain.ConfigError{Field: "variables." + name, Reason: "must be a string, number or boolean"}
		}
	}

	cfg.OutputSlug = DeriveSlug(raw.OutputSlug, raw.Slug, inputKey)

	maxTokens, err := parseMaxTokens(raw.MaxTokens)
	if err != nil {
		return nil, err
	}
	cfg.MaxTokens = maxTokens

	return cfg, nil
}

func parseMaxTokens(raw json.RawMessage) (int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return DefaultMaxTokens, nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil && f == float64(int(f)) {
			n, err = int(f), nil
		}
	}
	if err != nil {
		return 0, &domain.ConfigError{Field: "max_tokens", Reason: "must be an integer"}
	}
	if n <= 0 {
		return 0, &domain.ConfigError{Field: "max_tokens", Reason: "must be positive"}
	}
	return n, nil
}

// DeriveSlug picks the output slug: the explicit output_slug, then the
// legacy slug field, then the input key's base name without ".json".
func DeriveSlug(outputSlug, legacySlug, inputKey string) string {
	if s := strings.TrimSpace(outputSlug); s != "" {
		return s
	}
	if s := strings.TrimSpace(legacySlug); s != "" {
		return s
	}
	return strings.TrimSuffix(path.Base(inputKey), ".json")
}

// TemplateKey returns the storage key of the named template.
func TemplateKey(name string) string {
	return TemplatePrefix + name
}

// IsInputKey reports whether key names a prompt configuration object.
func IsInputKey(key string) bool {
	return strings.HasPrefix(key, InputPrefix) && strings.HasSuffix(key, ".json") && len(key) > len(InputPrefix)+len(".json")
}

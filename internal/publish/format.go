// Package publish formats inference output and writes it to the output
// store of an environment.
package publish

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/promptpub/internal/domain"
)

var (
	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	bodyEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\n", "<br/>\n")
)

// Format renders text as an artifact body for format.
func Format(slug, text string, format domain.OutputFormat) []byte {
	if format == domain.FormatMarkdown {
		return []byte("# " + slug + "\n\n" + text + "\n")
	}

	title := htmlEscaper.Replace(slug)
	return []byte(fmt.Sprintf(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>%s</title>
</head>
<body style="font-family: system-ui, -apple-system, Segoe UI, Roboto, Arial, sans-serif; line-height: 1.5; margin: 2rem;">
  <h1>%s</h1>
  <div>%s</div>
</body>
</html>
`, title, title, bodyEscaper.Replace(text)))
}

// OutputKey returns the deterministic address of an artifact.
func OutputKey(env domain.Environment, slug string, format domain.OutputFormat) string {
	return fmt.Sprintf("%s/outputs/%s.%s", env, slug, format.Extension())
}

// OutputPrefix returns the key prefix all artifacts of env share.
func OutputPrefix(env domain.Environment) string {
	return string(env) + "/outputs/"
}

// ValidateSlug rejects slugs that would escape the outputs prefix.
func ValidateSlug(slug string) error {
	switch {
	case strings.TrimSpace(slug) == "":
		return &domain.ConfigError{Field: "output_slug", Reason: "must not be empty"}
	case strings.ContainsAny(slug, `/\`), strings.Contains(slug, ".."):
		return &domain.ConfigError{Field: "output_slug", Reason: fmt.Sprintf("%q must not contain path separators or '..'", slug)}
	}
	return nil
}

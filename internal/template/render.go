// Package template renders prompt templates by flat key/value substitution.
//
// A placeholder is written {{identifier}} where identifier is made of
// Unicode letters, digits, hyphens and underscores. Whitespace inside the braces is
// tolerated when detecting leftovers, but only the exact {{key}} form is
// substituted. There are no conditionals, loops or nested templates.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tjfontaine/promptpub/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*[\p{L}\p{M}\p{N}\p{Pc}-]+\s*\}\}`)

// Render substitutes every supplied variable into tmpl and fails with a
// *domain.UnresolvedVariableError if any placeholder remains afterwards.
// The same inputs always yield the same output.
func Render(tmpl string, variables map[string]any) (string, error) {
	keys := make([]string, 0, len(variables))
	for k := range variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rendered := tmpl
	for _, k := range keys {
		rendered = strings.ReplaceAll(rendered, "{{"+k+"}}", FormatValue(variables[k]))
	}

	if leftovers := placeholderPattern.FindAllString(rendered, -1); len(leftovers) > 0 {
		return "", &domain.UnresolvedVariableError{Tokens: sortedUnique(leftovers)}
	}
	return rendered, nil
}

// Placeholders returns the identifiers referenced by tmpl, sorted and
// de-duplicated.
func Placeholders(tmpl string) []string {
	matches := placeholderPattern.FindAllString(tmpl, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSpace(m[2:len(m)-2]))
	}
	return sortedUnique(names)
}

// FormatValue converts a variable value to the text substituted into a
// template. Decoded JSON numbers render exactly as written; float64 values
// use the shortest representation, so integral ones have no fractional part.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func sortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", ErrRateLimit("slow down"), true},
		{"overloaded", ErrOverloaded("busy"), true},
		{"transport", ErrTransport("connection reset"), true},
		{"server", NewAPIError(ErrorTypeServer, "boom"), true},
		{"empty response", ErrEmptyResponse, true},
		{"wrapped empty response", fmt.Errorf("attempt 2: %w", ErrEmptyResponse), true},
		{"invalid request", ErrInvalidRequest("bad"), false},
		{"authentication", ErrAuthentication("no key"), false},
		{"validation", &ConfigError{Field: "max_tokens", Reason: "must be positive"}, false},
		{"plain", errors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestValidationClass(t *testing.T) {
	errs := []error{
		&ConfigError{Reason: "template must not be empty"},
		&InvalidEnvironmentError{Value: "staging"},
		&UnresolvedVariableError{Tokens: []string{"{{name}}"}},
		fmt.Errorf("render: %w", &UnresolvedVariableError{Tokens: []string{"{{x}}"}}),
	}
	for _, err := range errs {
		if !IsValidation(err) {
			t.Errorf("IsValidation(%v) = false, want true", err)
		}
		if IsRetryable(err) {
			t.Errorf("IsRetryable(%v) = true, want false", err)
		}
	}

	if IsValidation(ErrRateLimit("x")) {
		t.Error("IsValidation(rate limit) = true, want false")
	}
}

func TestUnresolvedVariableNames(t *testing.T) {
	err := &UnresolvedVariableError{Tokens: []string{"{{ b }}", "{{a}}", "{{b}}"}}
	if diff := cmp.Diff([]string{"a", "b"}, err.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	if got, want := err.Error(), "unresolved template variables found: {{ b }}, {{a}}, {{b}}"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestInferenceExhaustedUnwrapsLastCause(t *testing.T) {
	last := ErrRateLimit("throttled")
	err := error(&InferenceExhaustedError{Attempts: 6, Last: last})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr != last {
		t.Fatalf("errors.As did not reach the last cause: %v", err)
	}
	if !IsRetryable(err) {
		t.Error("an exhausted rate limit keeps its transient class")
	}
	var exhausted *InferenceExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 6 {
		t.Errorf("errors.As(*InferenceExhaustedError) = %v", exhausted)
	}
}

func TestAPIErrorStatus(t *testing.T) {
	tests := []struct {
		err  *APIError
		want int
	}{
		{ErrRateLimit("x"), http.StatusTooManyRequests},
		{ErrOverloaded("x"), http.StatusServiceUnavailable},
		{ErrTransport("x"), http.StatusBadGateway},
		{ErrInvalidRequest("x"), http.StatusBadRequest},
		{ErrAuthentication("x"), http.StatusUnauthorized},
		{ErrOverloaded("x").WithStatusCode(529), 529},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatusCode(); got != tt.want {
			t.Errorf("%v.HTTPStatusCode() = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAPIErrorMessage(t *testing.T) {
	if got, want := ErrRateLimit("slow down").Error(), "rate_limit (rate_limit_exceeded): slow down"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got, want := ErrOverloaded("busy").Error(), "overloaded: busy"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNormalizeFormat(t *testing.T) {
	tests := map[string]OutputFormat{
		"md":   FormatMarkdown,
		" MD ": FormatMarkdown,
		"html": FormatHTML,
		"pdf":  FormatHTML,
		"":     FormatHTML,
	}
	for in, want := range tests {
		if got := NormalizeFormat(in); got != want {
			t.Errorf("NormalizeFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseEnvironment(t *testing.T) {
	for _, s := range []string{"beta", "prod"} {
		if env, ok := ParseEnvironment(s); !ok || string(env) != s {
			t.Errorf("ParseEnvironment(%q) = %q, %v", s, env, ok)
		}
	}
	for _, s := range []string{"", "Beta", " prod", "staging"} {
		if _, ok := ParseEnvironment(s); ok {
			t.Errorf("ParseEnvironment(%q) ok = true, want false", s)
		}
	}
}

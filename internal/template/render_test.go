package template

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/promptpub/internal/domain"
)

func TestRender_SubstitutesVariables(t *testing.T) {
	got, err := Render("Hi {{name}}, you are {{age}} and {{name}} again", map[string]any{
		"name": "Ada",
		"age":  json.Number("36"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Hi Ada, you are 36 and Ada again"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRender_Deterministic(t *testing.T) {
	tmpl := "{{a}}-{{b}}-{{c}}"
	vars := map[string]any{"a": "{{b}}", "b": "2", "c": 3.5}

	first, err := Render(tmpl, vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 50; i++ {
		got, err := Render(tmpl, vars)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != first {
			t.Fatalf("render %d differs: %q vs %q", i, got, first)
		}
	}
}

func TestRender_UnresolvedSortedAndDeduplicated(t *testing.T) {
	_, err := Render("{{zeta}} {{ alpha }} {{zeta}} {{name}} {{missing-one}}", map[string]any{"name": "Ada"})
	if err == nil {
		t.Fatal("expected error")
	}

	var unresolved *domain.UnresolvedVariableError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedVariableError, got %T", err)
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Error("expected validation class")
	}

	wantTokens := []string{"{{ alpha }}", "{{missing-one}}", "{{zeta}}"}
	if diff := cmp.Diff(wantTokens, unresolved.Tokens); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
	wantNames := []string{"alpha", "missing-one", "zeta"}
	if diff := cmp.Diff(wantNames, unresolved.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestRender_UnicodePlaceholders(t *testing.T) {
	_, err := Render("Hi {{naïve}} and {{名前}}", map[string]any{})
	var unresolved *domain.UnresolvedVariableError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedVariableError, got %v", err)
	}
	if diff := cmp.Diff([]string{"naïve", "名前"}, unresolved.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	got, err := Render("Hi {{名前}}", map[string]any{"名前": "Ada"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hi Ada" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestRender_SpacedPlaceholderIsNotSubstituted(t *testing.T) {
	_, err := Render("Hello {{ name }}", map[string]any{"name": "Ada"})
	var unresolved *domain.UnresolvedVariableError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedVariableError, got %v", err)
	}
}

func TestRender_NoPlaceholders(t *testing.T) {
	got, err := Render("plain text {not a placeholder}", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "plain text {not a placeholder}" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{{b}} {{ a }} {{b}} {{c_d}}")
	want := []string{"a", "b", "c_d"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"x", "x"},
		{float64(3), "3"},
		{2.5, "2.5"},
		{json.Number("7.0"), "7.0"},
		{true, "true"},
		{42, "42"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

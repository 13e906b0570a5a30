package environment

import (
	"errors"
	"testing"

	"github.com/tjfontaine/promptpub/internal/domain"
)

func TestNewResolver_RejectsInvalidDefault(t *testing.T) {
	if _, err := NewResolver("staging"); err == nil {
		t.Fatal("expected error for invalid default")
	}
}

func TestResolve_PriorityOrder(t *testing.T) {
	r, err := NewResolver("beta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		explicit string
		meta     string
		resource string
		want     domain.Environment
	}{
		{"explicit wins", "prod", "beta", "prompt_inputs/beta-x.json", domain.EnvProd},
		{"metadata over name", "", "prod", "prompt_inputs/beta-x.json", domain.EnvProd},
		{"invalid metadata ignored", "", "qa", "prompt_inputs/prod-x.json", domain.EnvProd},
		{"name prefix", "", "", "prompt_inputs/prod-welcome.json", domain.EnvProd},
		{"prefix only on base name", "", "", "prod-inputs/welcome.json", domain.EnvBeta},
		{"default", "", "", "prompt_inputs/welcome.json", domain.EnvBeta},
		{"empty name", "", "", "", domain.EnvBeta},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.explicit, tt.meta, tt.resource)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_InvalidExplicitIsRejected(t *testing.T) {
	r, _ := NewResolver("prod")

	for _, explicit := range []string{"staging", "Beta", " prod", "PROD", "dev"} {
		_, err := r.Resolve(explicit, "beta", "beta-x.json")
		if err == nil {
			t.Fatalf("expected error for %q", explicit)
		}
		var invalid *domain.InvalidEnvironmentError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidEnvironmentError, got %T", err)
		}
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation class for %q", explicit)
		}
	}
}

func TestResolve_OnlyRecognizedValues(t *testing.T) {
	r, _ := NewResolver("beta")
	inputs := []string{"", "beta", "prod", "x", "beta-", "prod-"}
	for _, meta := range inputs {
		for _, name := range inputs {
			got, err := r.Resolve("", meta, name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Valid() {
				t.Fatalf("Resolve(%q, %q) = %q", meta, name, got)
			}
		}
	}
}

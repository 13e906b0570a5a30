// Package environment decides which deployment environment an execution
// belongs to.
package environment

import (
	"path"
	"strings"

	"github.com/tjfontaine/promptpub/internal/domain"
)

// Resolver applies the environment priority order: explicit override,
// resource metadata tag, file name prefix, configured default.
type Resolver struct {
	fallback domain.Environment
}

// NewResolver creates a resolver whose last-resort answer is def.
func NewResolver(def string) (*Resolver, error) {
	env, ok := domain.ParseEnvironment(def)
	if !ok {
		return nil, &domain.InvalidEnvironmentError{Value: def}
	}
	return &Resolver{fallback: env}, nil
}

// Default returns the configured default environment.
func (r *Resolver) Default() domain.Environment {
	return r.fallback
}

// Resolve returns the environment for a resource. Empty strings mean the
// input is absent. A non-empty explicit value that is not beta or prod is
// rejected rather than replaced with the default; an unrecognized metadata
// tag is ignored.
func (r *Resolver) Resolve(explicit, metadataEnv, resourceName string) (domain.Environment, error) {
	if explicit != "" {
		env, ok := domain.ParseEnvironment(explicit)
		if !ok {
			return "", &domain.InvalidEnvironmentError{Value: explicit}
		}
		return env, nil
	}
	if env, ok := domain.ParseEnvironment(metadataEnv); ok {
		return env, nil
	}
	if env, ok := FromName(resourceName); ok {
		return env, nil
	}
	return r.fallback, nil
}

// FromName applies the beta-/prod- file name prefix convention to the last
// path element of name.
func FromName(name string) (domain.Environment, bool) {
	if name == "" {
		return "", false
	}
	base := path.Base(name)
	for _, env := range domain.Environments {
		if strings.HasPrefix(base, string(env)+"-") {
			return env, true
		}
	}
	return "", false
}

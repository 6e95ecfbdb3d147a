package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds an adapter for one model of a provider.
type Factory func(model string) (Adapter, error)

// Registry maps provider names to adapter factories and resolves model
// specs such as "anthropic:claude-sonnet-4" or a bare "gpt-4o".
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	patterns  []providerPattern
}

type providerPattern struct {
	glob     string
	provider string
}

// NewRegistry creates an empty registry that infers openai for gpt-* and
// o1/o3/o4 models and anthropic for claude-* models.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		patterns: []providerPattern{
			{"claude*", "anthropic"},
			{"gpt*", "openai"},
			{"o1*", "openai"},
			{"o3*", "openai"},
			{"o4*", "openai"},
			{"chatgpt*", "openai"},
		},
	}
}

// Register adds a provider factory. Returns an error if the provider is
// already registered.
func (r *Registry) Register(provider string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[provider]; exists {
		return fmt.Errorf("provider already registered: %s", provider)
	}
	r.factories[provider] = f
	return nil
}

// Alias routes bare model names matching glob (only trailing * supported)
// to provider. Aliases added later take precedence.
func (r *Registry) Alias(glob, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append([]providerPattern{{glob, provider}}, r.patterns...)
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Split parses spec into provider and model name. A spec without an
// explicit provider prefix is matched against the alias patterns.
func (r *Registry) Split(spec string) (provider, name string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", fmt.Errorf("empty model spec")
	}
	if p, m, ok := strings.Cut(spec, ":"); ok && p != "" && m != "" {
		return p, m, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	lower := strings.ToLower(spec)
	for _, pp := range r.patterns {
		if matchGlob(pp.glob, lower) {
			return pp.provider, spec, nil
		}
	}
	return "", "", fmt.Errorf("cannot infer provider for model %q (use provider:model)", spec)
}

// Resolve builds the adapter for spec.
func (r *Registry) Resolve(spec string) (Adapter, error) {
	provider, name, err := r.Split(spec)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.factories[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider not registered: %s", provider)
	}
	a, err := f(name)
	if err != nil {
		return nil, fmt.Errorf("build %s adapter for %s: %w", provider, name, err)
	}
	return a, nil
}

// matchGlob checks if name matches a simple glob pattern (only trailing * supported).
func matchGlob(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(name, prefix)
	}
	return pattern == name
}

// ResolveWrapped resolves spec and applies opts, drawing the rate limiter
// for the spec's provider from limiters.
func (r *Registry) ResolveWrapped(spec string, opts Options, limiters *Limiters) (Adapter, error) {
	provider, _, err := r.Split(spec)
	if err != nil {
		return nil, err
	}
	a, err := r.Resolve(spec)
	if err != nil {
		return nil, err
	}
	opts.Limiter = limiters.For(provider)
	return Wrap(a, opts), nil
}

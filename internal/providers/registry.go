package providers

import (
	"net/url"
	"slices"
	"strings"
)

// Registry resolves captured traffic to a Provider. Lookups walk providers
// in name order so ambiguous matches resolve the same way every time.
type Registry struct {
	providers []Provider
}

// NewRegistry builds a registry; a later provider with a duplicate name
// replaces the earlier one.
func NewRegistry(providers ...Provider) *Registry {
	byName := make(map[string]Provider, len(providers))
	for _, provider := range providers {
		byName[provider.Name()] = provider
	}
	registry := &Registry{providers: make([]Provider, 0, len(byName))}
	for _, provider := range byName {
		registry.providers = append(registry.providers, provider)
	}
	slices.SortFunc(registry.providers, func(a, b Provider) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return registry
}

func DefaultRegistry() *Registry {
	return NewRegistry(AnthropicProvider{}, OpenAIProvider{})
}

func (r *Registry) Get(name string) (Provider, bool) {
	return r.find(func(p Provider) bool { return p.Name() == name })
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.providers))
	for i, provider := range r.providers {
		names[i] = provider.Name()
	}
	return names
}

// ForURL matches the request host against provider API hosts, subdomains
// included. Relative URLs never match.
func (r *Registry) ForURL(rawURL string) (Provider, bool) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return nil, false
	}
	host := strings.ToLower(parsed.Hostname())
	return r.find(func(p Provider) bool {
		return slices.ContainsFunc(p.Hosts(), func(candidate string) bool {
			candidate = strings.ToLower(candidate)
			return host == candidate || strings.HasSuffix(host, "."+candidate)
		})
	})
}

// ForModel matches provider model prefixes, for traffic sent through a
// custom base URL.
func (r *Registry) ForModel(model string) (Provider, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return nil, false
	}
	return r.find(func(p Provider) bool {
		return slices.ContainsFunc(p.ModelPrefixes(), func(prefix string) bool {
			return strings.HasPrefix(model, prefix)
		})
	})
}

// Detect tries the request URL first and falls back to the model name.
func (r *Registry) Detect(rawURL, model string) (Provider, bool) {
	if provider, ok := r.ForURL(rawURL); ok {
		return provider, true
	}
	return r.ForModel(model)
}

func (r *Registry) find(match func(Provider) bool) (Provider, bool) {
	i := slices.IndexFunc(r.providers, match)
	if i < 0 {
		return nil, false
	}
	return r.providers[i], true
}

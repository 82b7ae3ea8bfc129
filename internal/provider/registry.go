// Package provider - Registry construction and priority ordering.
package provider

import (
	"sort"

	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/pkg/logging"
)

// constructors maps provider names to their factories.
var constructors = map[string]func(apiKey string) DataProvider{
	"covalent":    func(k string) DataProvider { return NewCovalent(k) },
	"mobula":      func(k string) DataProvider { return NewMobula(k) },
	"zerion":      func(k string) DataProvider { return NewZerion(k) },
	"zapper":      func(k string) DataProvider { return NewZapper(k) },
	"alchemy":     func(k string) DataProvider { return NewAlchemy(k) },
	"debank":      func(k string) DataProvider { return NewDeBank(k) },
	"bitquery":    func(k string) DataProvider { return NewBitquery(k) },
	"moralis":     func(k string) DataProvider { return NewMoralis(k) },
	"blockvision": func(k string) DataProvider { return NewBlockVision(k) },
}

// Health is one provider's health snapshot for the status surface.
type Health struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Priority int    `json:"priority"`
	Healthy  bool   `json:"healthy"`
	HasKey   bool   `json:"has_api_key"`
}

// Registry holds the configured providers in fixed priority order.
type Registry struct {
	providers []DataProvider
	log       *logging.Logger
}

// NewRegistry builds providers from the configured name lists. Unknown
// names are logged and skipped; a missing API key keeps the provider
// registered but inert. BlockVision is always registered: it is the
// only Sui-specific source and costs nothing when unused.
func NewRegistry(cfg *config.AggregatorConfig, log *logging.Logger) *Registry {
	r := &Registry{log: log.Component("provider")}

	seen := make(map[string]bool)
	add := func(names []string, tier Priority) {
		for _, name := range names {
			if seen[name] {
				continue
			}
			ctor, ok := constructors[name]
			if !ok {
				r.log.Warn("unknown provider in config", "provider", name)
				continue
			}
			seen[name] = true
			p := ctor(cfg.APIKey(name))
			// The tier follows list placement, so operators can
			// promote or demote a vendor without a rebuild.
			if tiered, ok := p.(interface{ setPriority(Priority) }); ok {
				tiered.setPriority(tier)
			}
			r.providers = append(r.providers, p)
		}
	}
	add(cfg.PrimaryProviders, PriorityPrimary)
	add(cfg.SecondaryProviders, PrioritySecondary)
	add(cfg.FallbackProviders, PriorityFallback)
	if !seen["blockvision"] {
		r.providers = append(r.providers, NewBlockVision(cfg.APIKey("blockvision")))
	}

	// Stable: ties keep configuration order.
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].Priority() < r.providers[j].Priority()
	})

	for _, p := range r.providers {
		r.log.Debug("provider registered", "provider", p.Name(),
			"priority", int(p.Priority()), "has_key", hasAPIKey(p))
	}
	return r
}

// All returns the providers in priority order.
func (r *Registry) All() []DataProvider {
	out := make([]DataProvider, len(r.providers))
	copy(out, r.providers)
	return out
}

// ForChain returns the providers supporting a chain, chain-specific
// ones first within their tier, preserving priority order otherwise.
func (r *Registry) ForChain(chainName string) []DataProvider {
	var specific, generic []DataProvider
	for _, p := range r.providers {
		if !p.SupportsChain(chainName) {
			continue
		}
		if p.Type() == TypeChainSpecific {
			specific = append(specific, p)
		} else {
			generic = append(generic, p)
		}
	}
	return append(specific, generic...)
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (DataProvider, bool) {
	for _, p := range r.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// ResetAll clears every provider's error count.
func (r *Registry) ResetAll() {
	for _, p := range r.providers {
		p.ResetErrors()
	}
	r.log.Info("provider error counters reset", "providers", len(r.providers))
}

// HealthSnapshot reports every provider's current state.
func (r *Registry) HealthSnapshot() []*Health {
	out := make([]*Health, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, &Health{
			Name:     p.Name(),
			Type:     string(p.Type()),
			Priority: int(p.Priority()),
			Healthy:  p.Healthy(),
			HasKey:   hasAPIKey(p),
		})
	}
	return out
}

// hasAPIKey peeks at the embedded base via the one place every vendor
// shares it.
func hasAPIKey(p DataProvider) bool {
	type keyed interface{ hasKey() bool }
	if k, ok := p.(keyed); ok {
		return k.hasKey()
	}
	return false
}

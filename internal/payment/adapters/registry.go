package adapters

import (
	"strings"

	"github.com/smallbiznis/loadpass/internal/config"
	"github.com/smallbiznis/loadpass/internal/payment/domain"
)

// Registry holds one adapter per provider, built once from static configuration.
// A provider whose configuration is incomplete keeps its construction error, which
// is returned on every lookup.
type Registry struct {
	adapters map[string]domain.PaymentAdapter
	errs     map[string]error
}

func NewRegistry(configs map[string]domain.AdapterConfig, factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		adapters: map[string]domain.PaymentAdapter{},
		errs:     map[string]error{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		cfg := configs[provider]
		cfg.Provider = provider
		adapter, err := factory.NewAdapter(cfg)
		if err != nil {
			registry.errs[provider] = err
			continue
		}
		registry.adapters[provider] = adapter
	}
	return registry
}

// ConfigsFromConfig maps application configuration to per-provider adapter settings.
func ConfigsFromConfig(cfg config.Config) map[string]domain.AdapterConfig {
	return map[string]domain.AdapterConfig{
		domain.ProviderSquare: {
			SignatureKey:    cfg.Square.WebhookSignatureKey,
			NotificationURL: cfg.Square.WebhookURL,
		},
	}
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	provider = normalize(provider)
	if _, ok := r.adapters[provider]; ok {
		return true
	}
	_, ok := r.errs[provider]
	return ok
}

func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)
	if err, ok := r.errs[provider]; ok {
		return nil, err
	}
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/gosimple/slug"
	"github.com/spf13/viper"
)

// CatalogEntry is one purchasable package as declared in catalog.yml.
type CatalogEntry struct {
	Handle            string `mapstructure:"handle"`
	Name              string `mapstructure:"name"`
	SquareVariationID string `mapstructure:"square_variation_id"`
	Price             int64  `mapstructure:"price"`
	Currency          string `mapstructure:"currency"`
	UserReceivedLoads int64  `mapstructure:"user_received_loads"`
}

type CatalogConfig struct {
	Packages []CatalogEntry `mapstructure:"packages"`
}

type CatalogHolder struct {
	current atomic.Value // holds CatalogConfig

	mu        sync.Mutex
	listeners []func(CatalogConfig)
}

// NewCatalogHolder reads catalog.yml when present and watches it for changes.
// A missing file yields an empty catalog.
func NewCatalogHolder(cfg Config) (*CatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("catalog")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/loadpass")
	if cfg.CatalogPath != "" {
		v.AddConfigPath(cfg.CatalogPath)
	}
	v.AddConfigPath(".")

	return newCatalogHolder(v, true)
}

// LoadCatalogFile reads a single catalog file once, without watching.
func LoadCatalogFile(path string) (*CatalogHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yml")
	return newCatalogHolder(v, false)
}

func newCatalogHolder(v *viper.Viper, watch bool) (*CatalogHolder, error) {
	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	holder := &CatalogHolder{}
	if !found {
		holder.current.Store(CatalogConfig{})
		return holder, nil
	}

	cfg, err := decodeCatalog(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeCatalog(v)
			if err != nil {
				log.Printf("[catalog-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[catalog-config] reloaded from %s", e.Name)
			holder.notify(updated)
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *CatalogHolder) Get() CatalogConfig {
	return h.current.Load().(CatalogConfig)
}

// OnChange registers fn to run after every successful reload.
func (h *CatalogHolder) OnChange(fn func(CatalogConfig)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func (h *CatalogHolder) notify(cfg CatalogConfig) {
	h.mu.Lock()
	listeners := append([]func(CatalogConfig){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

func decodeCatalog(v *viper.Viper) (CatalogConfig, error) {
	var cfg CatalogConfig
	if err := v.UnmarshalKey("catalog", &cfg); err != nil {
		return CatalogConfig{}, err
	}
	normalizeCatalog(&cfg)
	if err := validateCatalog(cfg); err != nil {
		return CatalogConfig{}, err
	}
	return cfg, nil
}

func normalizeCatalog(cfg *CatalogConfig) {
	for i := range cfg.Packages {
		entry := &cfg.Packages[i]
		entry.Name = strings.TrimSpace(entry.Name)
		entry.SquareVariationID = strings.TrimSpace(entry.SquareVariationID)
		entry.Currency = strings.ToUpper(strings.TrimSpace(entry.Currency))
		if entry.Currency == "" {
			entry.Currency = "USD"
		}
		entry.Handle = strings.TrimSpace(entry.Handle)
		if entry.Handle == "" && entry.Name != "" {
			entry.Handle = slug.Make(entry.Name)
		}
	}
}

func validateCatalog(cfg CatalogConfig) error {
	seen := make(map[string]struct{}, len(cfg.Packages))
	for i, entry := range cfg.Packages {
		if entry.Handle == "" {
			return fmt.Errorf("catalog.packages[%d]: handle or name is required", i)
		}
		if _, ok := seen[entry.Handle]; ok {
			return fmt.Errorf("catalog.packages[%d]: duplicate handle %q", i, entry.Handle)
		}
		seen[entry.Handle] = struct{}{}
		if entry.SquareVariationID == "" {
			return fmt.Errorf("catalog.packages[%d]: square_variation_id is required", i)
		}
		if entry.UserReceivedLoads <= 0 {
			return fmt.Errorf("catalog.packages[%d]: user_received_loads must be positive", i)
		}
		if entry.Price < 0 {
			return fmt.Errorf("catalog.packages[%d]: price cannot be negative", i)
		}
	}
	return nil
}

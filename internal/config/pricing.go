package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TemplateProduct is one purchasable CV template in the authoritative catalog.
type TemplateProduct struct {
	Price     int64 `mapstructure:"price"`
	Downloads int   `mapstructure:"downloads"`
}

// SubscriptionPlan is a time-boxed premium plan.
type SubscriptionPlan struct {
	Price    int64 `mapstructure:"price"`
	TermDays int   `mapstructure:"termDays"`
}

// FreeTierLimit is a per-day usage cap, split by identity kind.
type FreeTierLimit struct {
	Authenticated int `mapstructure:"authenticated"`
	Anonymous     int `mapstructure:"anonymous"`
}

// PricingConfig is the authoritative price table plus free-tier limits.
// Components receive immutable snapshots of it, never ambient env lookups.
type PricingConfig struct {
	Templates map[string]TemplateProduct `mapstructure:"templates"`
	Plans     map[string]SubscriptionPlan `mapstructure:"plans"`
	FreeTier  map[string]FreeTierLimit    `mapstructure:"freeTier"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Templates: map[string]TemplateProduct{
			"professional": {Price: 3000, Downloads: 5},
			"modern":       {Price: 5000, Downloads: 5},
			"creative":     {Price: 5000, Downloads: 5},
		},
		Plans: map[string]SubscriptionPlan{
			"interview-pack": {Price: 15000, TermDays: 30},
		},
		FreeTier: map[string]FreeTierLimit{
			"question_views":     {Authenticated: 20, Anonymous: 10},
			"interview_sessions": {Authenticated: 1, Anonymous: 1},
		},
	}
}

// Template returns the catalog entry for a template product.
func (c PricingConfig) Template(product string) (TemplateProduct, bool) {
	entry, ok := c.Templates[strings.ToLower(strings.TrimSpace(product))]
	return entry, ok
}

// Plan returns the subscription plan definition.
func (c PricingConfig) Plan(plan string) (SubscriptionPlan, bool) {
	entry, ok := c.Plans[strings.ToLower(strings.TrimSpace(plan))]
	return entry, ok
}

// FreeLimit returns the daily free-usage cap for a feature and identity kind.
// Unknown features get no free usage.
func (c PricingConfig) FreeLimit(feature string, authenticated bool) int {
	entry, ok := c.FreeTier[strings.ToLower(strings.TrimSpace(feature))]
	if !ok {
		return 0
	}
	if authenticated {
		return entry.Authenticated
	}
	return entry.Anonymous
}

// PricingHolder serves the current pricing snapshot and hot-reloads it from
// pricing.yml when the file changes.
type PricingHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingHolder() (*PricingHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/cvforge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CVFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &PricingHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultPricingConfig())
		return holder, nil
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		if err := validatePricingConfig(updated); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPricingHolder wraps a fixed config, used by tests.
func NewStaticPricingHolder(cfg PricingConfig) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PricingHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func validatePricingConfig(cfg PricingConfig) error {
	if len(cfg.Templates) == 0 {
		return errors.New("pricing.templates cannot be empty")
	}
	for name, entry := range cfg.Templates {
		if entry.Price <= 0 || entry.Downloads <= 0 {
			return errors.New("pricing.templates." + name + " must have positive price and downloads")
		}
	}
	for name, entry := range cfg.Plans {
		if entry.Price <= 0 || entry.TermDays <= 0 {
			return errors.New("pricing.plans." + name + " must have positive price and term")
		}
	}
	return nil
}

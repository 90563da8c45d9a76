package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// StorefrontConfig holds operational settings that staff may change without a redeploy.
type StorefrontConfig struct {
	Delivery      DeliveryConfig     `mapstructure:"delivery"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

type DeliveryConfig struct {
	// MinLeadDays is the first-delivery fallback when checkout carries no preferred date.
	MinLeadDays int      `mapstructure:"minLeadDays"`
	TimeSlots   []string `mapstructure:"timeSlots"`
	Timezone    string   `mapstructure:"timezone"`
}

type NotificationConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	DigestCron string `mapstructure:"digestCron"`
}

func DefaultStorefrontConfig() StorefrontConfig {
	return StorefrontConfig{
		Delivery: DeliveryConfig{
			MinLeadDays: 4,
			TimeSlots:   []string{"指定なし", "午前中", "14-16時", "16-18時", "18-20時", "19-21時"},
			Timezone:    "Asia/Tokyo",
		},
		Notifications: NotificationConfig{
			Enabled:    true,
			DigestCron: "0 18 * * *",
		},
	}
}

// Location resolves the delivery timezone, falling back to UTC.
func (c DeliveryConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return time.UTC
	}
	return loc
}

// NormalizeTimeSlot returns the configured slot matching value, or the first slot when value is unknown.
func (c DeliveryConfig) NormalizeTimeSlot(value string) string {
	value = strings.TrimSpace(value)
	for _, slot := range c.TimeSlots {
		if slot == value {
			return slot
		}
	}
	if len(c.TimeSlots) == 0 {
		return ""
	}
	return c.TimeSlots[0]
}

type StorefrontConfigHolder struct {
	current atomic.Value // holds StorefrontConfig
}

// NewStaticStorefrontConfigHolder returns a holder that never reloads.
func NewStaticStorefrontConfigHolder(cfg StorefrontConfig) *StorefrontConfigHolder {
	holder := &StorefrontConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewStorefrontConfigHolder(log *zap.Logger) (*StorefrontConfigHolder, error) {
	log = log.Named("storefront.config")
	v := viper.New()

	v.SetConfigName("storefront")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/futorumeshi")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FUTORUMESHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultStorefrontConfig()
	v.SetDefault("storefront.delivery.minLeadDays", defaults.Delivery.MinLeadDays)
	v.SetDefault("storefront.delivery.timeSlots", defaults.Delivery.TimeSlots)
	v.SetDefault("storefront.delivery.timezone", defaults.Delivery.Timezone)
	v.SetDefault("storefront.notifications.enabled", defaults.Notifications.Enabled)
	v.SetDefault("storefront.notifications.digestCron", defaults.Notifications.DigestCron)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
		log.Info("storefront.yml not found, using defaults")
	}

	var cfg StorefrontConfig
	if err := v.UnmarshalKey("storefront", &cfg); err != nil {
		return nil, err
	}
	if err := validateStorefrontConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticStorefrontConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated StorefrontConfig
		if err := v.UnmarshalKey("storefront", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateStorefrontConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *StorefrontConfigHolder) Get() StorefrontConfig {
	return h.current.Load().(StorefrontConfig)
}

func validateStorefrontConfig(cfg StorefrontConfig) error {
	if cfg.Delivery.MinLeadDays < 0 {
		return errors.New("storefront.delivery.minLeadDays cannot be negative")
	}
	if len(cfg.Delivery.TimeSlots) == 0 {
		return errors.New("storefront.delivery.timeSlots cannot be empty")
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.Delivery.Timezone)); err != nil {
		return fmt.Errorf("storefront.delivery.timezone: %w", err)
	}
	if cfg.Notifications.Enabled && strings.TrimSpace(cfg.Notifications.DigestCron) == "" {
		return errors.New("storefront.notifications.digestCron is required when notifications are enabled")
	}
	return nil
}

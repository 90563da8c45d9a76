package scheduler

import (
	"time"

	"github.com/smallbiznis/futorumeshi/internal/config"
)

// Config controls the scheduler tick and per-job limits.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	LockTTL     time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		JobTimeout:  30 * time.Second,
		LockTTL:     10 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{RunInterval: cfg.SchedulerInterval}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

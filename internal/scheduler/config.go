package scheduler

import "time"

// Config controls scheduler cadence and per job timeouts.
type Config struct {
	RunInterval  time.Duration
	SweepTimeout time.Duration
	DrainTimeout time.Duration
	DrainBatch   int
	EnabledJobs  []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  24 * time.Hour,
		SweepTimeout: 10 * time.Minute,
		DrainTimeout: 30 * time.Second,
		DrainBatch:   100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = defaults.SweepTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaults.DrainTimeout
	}
	if c.DrainBatch <= 0 {
		c.DrainBatch = defaults.DrainBatch
	}
	return c
}

func (c Config) isJobEnabled(name string) bool {
	if len(c.EnabledJobs) == 0 {
		return true
	}
	for _, job := range c.EnabledJobs {
		if job == name {
			return true
		}
	}
	return false
}

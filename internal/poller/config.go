package poller

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the adaptive interval bounds.
type Config struct {
	MinInterval      time.Duration // floor while a chat is busy (default: 1s)
	StartInterval    time.Duration // delay after Start (default: 3s)
	MaxInterval      time.Duration // ceiling for quiet chats and errors (default: 30s)
	InactiveInterval time.Duration // delay after Throttle (default: 60s)
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinInterval:      1 * time.Second,
		StartInterval:    3 * time.Second,
		MaxInterval:      30 * time.Second,
		InactiveInterval: 60 * time.Second,
	}
}

// Validate reports whether the bounds are usable: 0 < Min <= Start <= Max
// and Inactive >= Max.
func (c Config) Validate() error {
	if c.MinInterval <= 0 {
		return errors.New("poller: min interval must be positive")
	}
	if c.StartInterval < c.MinInterval {
		return fmt.Errorf("poller: start interval %s below min interval %s", c.StartInterval, c.MinInterval)
	}
	if c.MaxInterval < c.StartInterval {
		return fmt.Errorf("poller: max interval %s below start interval %s", c.MaxInterval, c.StartInterval)
	}
	if c.InactiveInterval < c.MaxInterval {
		return fmt.Errorf("poller: inactive interval %s below max interval %s", c.InactiveInterval, c.MaxInterval)
	}
	return nil
}

// nextInterval applies one poll outcome to the current interval. The result
// always lies in [Min, Max], so a throttled interval drops back to Max after
// the first poll.
func (c Config) nextInterval(cur time.Duration, novel int, err error) time.Duration {
	var next time.Duration
	switch {
	case err != nil:
		next = cur * 2
	case novel > 0:
		next = cur / 2
	default:
		next = cur * 3 / 2
	}

	if next < c.MinInterval {
		next = c.MinInterval
	}
	if next > c.MaxInterval {
		next = c.MaxInterval
	}
	return next
}

// Package health aggregates connection probes into a broker health status.
package health

import (
	"sort"
	"sync"
	"time"
)

// Status is the health of a single probe or of the whole broker.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the latest result recorded for a target.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message"`
	Latency     time.Duration `json:"latency_ns"`
	LastChecked time.Time     `json:"last_checked"`
}

// Checker collects one probe round. Build a fresh one per round.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewChecker creates an empty checker. With no targets the broker counts as
// healthy.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// Record stores the outcome of a probe performed elsewhere.
func (c *Checker) Record(name string, err error, latency time.Duration) {
	check := Check{
		Name:        name,
		Status:      StatusHealthy,
		Message:     "OK",
		Latency:     latency,
		LastChecked: time.Now(),
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}

	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// Overall is healthy when every target is, unhealthy when none is and
// degraded in between.
func (c *Checker) Overall() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.overallLocked()
}

func (c *Checker) overallLocked() Status {
	failing := 0
	for _, check := range c.checks {
		if check.Status != StatusHealthy {
			failing++
		}
	}
	switch {
	case failing == 0:
		return StatusHealthy
	case failing < len(c.checks):
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// Checks returns the recorded results sorted by name.
func (c *Checker) Checks() []Check {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Check, 0, len(c.checks))
	for _, check := range c.checks {
		out = append(out, check)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

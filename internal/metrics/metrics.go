// Package metrics implements the broker's in-memory counters and the
// read-only status surface (C6), grounded on the teacher's connection
// pool Stats snapshot pattern.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks lifetime connection count, total envelopes, and a
// per-type histogram. Counters are in-memory only and reset on restart by
// design; this is not a defect to be fixed.
type Collector struct {
	startedAt time.Time

	totalConnections atomic.Uint64
	totalEnvelopes   atomic.Uint64

	mu      sync.Mutex
	byType  map[string]uint64
}

func New() *Collector {
	return &Collector{startedAt: time.Now(), byType: make(map[string]uint64)}
}

// RecordConnection bumps the lifetime connection counter. Called once per
// successful registration, not per TCP accept, so a rejected or replaced
// login attempt does not inflate it.
func (c *Collector) RecordConnection() {
	c.totalConnections.Add(1)
}

// RecordEnvelope bumps the total and per-type envelope counters. Satisfies
// router.Metrics.
func (c *Collector) RecordEnvelope(envType string) {
	c.totalEnvelopes.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byType[envType]++
}

// Snapshot is a point-in-time read of every counter, safe to serialize.
type Snapshot struct {
	TotalConnections uint64
	TotalEnvelopes   uint64
	ByType           map[string]uint64
	UptimeSeconds    float64
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	byType := make(map[string]uint64, len(c.byType))
	for k, v := range c.byType {
		byType[k] = v
	}
	c.mu.Unlock()

	return Snapshot{
		TotalConnections: c.totalConnections.Load(),
		TotalEnvelopes:   c.totalEnvelopes.Load(),
		ByType:           byType,
		UptimeSeconds:    time.Since(c.startedAt).Seconds(),
	}
}

package generator

import (
	"sync"
	"time"
)

// Metrics tracks generation counts and timings across runs and watch
// events.
type Metrics struct {
	TotalJobs       int64
	Written         int64
	Unchanged       int64
	CacheHits       int64
	Stale           int64
	FailedJobs      int64
	AverageDuration time.Duration
	TotalDuration   time.Duration
	mutex           sync.RWMutex
}

// NewMetrics creates an empty metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record adds the outcome of one job
func (m *Metrics) Record(outcome Outcome, err error, d time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalJobs++
	m.TotalDuration += d

	switch {
	case err != nil:
		m.FailedJobs++
	case outcome == OutcomeWritten:
		m.Written++
	case outcome == OutcomeUnchanged:
		m.Unchanged++
	case outcome == OutcomeSkipped:
		m.CacheHits++
	case outcome == OutcomeStale:
		m.Stale++
	}

	m.AverageDuration = m.TotalDuration / time.Duration(m.TotalJobs)
}

// Snapshot returns a copy of the current counters
func (m *Metrics) Snapshot() Metrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return Metrics{
		TotalJobs:       m.TotalJobs,
		Written:         m.Written,
		Unchanged:       m.Unchanged,
		CacheHits:       m.CacheHits,
		Stale:           m.Stale,
		FailedJobs:      m.FailedJobs,
		AverageDuration: m.AverageDuration,
		TotalDuration:   m.TotalDuration,
	}
}

// SuccessRate returns the share of jobs that did not fail, in percent
func (m *Metrics) SuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalJobs == 0 {
		return 0.0
	}
	return float64(m.TotalJobs-m.FailedJobs) / float64(m.TotalJobs) * 100.0
}

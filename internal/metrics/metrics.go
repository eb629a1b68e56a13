package metrics

import "sync/atomic"

// Metrics captures serving and reload counters.
type Metrics struct {
	viewsServed    atomic.Int64
	viewsFailed    atomic.Int64
	reloads        atomic.Int64
	reloadFailures atomic.Int64
}

func New() *Metrics { return &Metrics{} }

// RecordView counts a built view; a non-nil err counts as failed.
func (m *Metrics) RecordView(err error) {
	m.viewsServed.Add(1)
	if err != nil {
		m.viewsFailed.Add(1)
	}
}

// RecordReload counts a snapshot reload attempt.
func (m *Metrics) RecordReload(err error) {
	m.reloads.Add(1)
	if err != nil {
		m.reloadFailures.Add(1)
	}
}

func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"views_served":    m.viewsServed.Load(),
		"views_failed":    m.viewsFailed.Load(),
		"reloads":         m.reloads.Load(),
		"reload_failures": m.reloadFailures.Load(),
	}
}

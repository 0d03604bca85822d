package api

import (
	"sync/atomic"

	"github.com/matheus3301/admiral/internal/chat"
	"github.com/matheus3301/admiral/internal/metrics"
)

// Watchers counts attached Watch streams. A session with at least one
// watcher is considered in the foreground and polls at the active interval.
type Watchers struct {
	n       atomic.Int64
	metrics *metrics.Metrics
}

var _ chat.ActivityProvider = (*Watchers)(nil)

func NewWatchers(m *metrics.Metrics) *Watchers {
	return &Watchers{metrics: m}
}

func (w *Watchers) add(delta int64) {
	n := w.n.Add(delta)
	if w.metrics != nil {
		w.metrics.Watchers.Set(float64(n))
	}
}

// Count returns the number of attached watchers.
func (w *Watchers) Count() int64 {
	return w.n.Load()
}

// Active implements chat.ActivityProvider.
func (w *Watchers) Active() bool {
	return w.n.Load() > 0
}

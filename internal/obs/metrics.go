package obs

import (
	"sync/atomic"

	"main/internal/event"
)

const maxEventKind = int(event.KindRiskViolation)

// Metrics collects lightweight pipeline counters. All methods are safe for
// concurrent use; a nil receiver is a no-op so components can carry an
// optional reference.
type Metrics struct {
	eventCounts [maxEventKind + 1]atomic.Uint64
	violations  atomic.Uint64
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	EventCounts map[event.Kind]uint64
	Violations  uint64
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts a delivered event by kind.
func (m *Metrics) ObserveEvent(kind event.Kind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.eventCounts) {
		m.eventCounts[idx].Add(1)
	}
	if kind == event.KindRiskViolation {
		m.violations.Add(1)
	}
}

// Snapshot captures the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	snapshot := Snapshot{EventCounts: make(map[event.Kind]uint64)}
	if m == nil {
		return snapshot
	}
	for i := range m.eventCounts {
		if count := m.eventCounts[i].Load(); count > 0 {
			snapshot.EventCounts[event.Kind(i)] = count
		}
	}
	snapshot.Violations = m.violations.Load()
	return snapshot
}

package retrieval

import "sync/atomic"

// Metrics counts pipeline outcomes.
type Metrics struct {
	selections     atomic.Int64
	empty          atomic.Int64
	povFallbacks   atomic.Int64
	syncFallbacks  atomic.Int64
	smartAttempts  atomic.Int64
	smartFallbacks atomic.Int64
	rejected       atomic.Int64
}

func (m *Metrics) IncSelections()     { m.selections.Add(1) }
func (m *Metrics) IncEmpty()          { m.empty.Add(1) }
func (m *Metrics) IncPOVFallbacks()   { m.povFallbacks.Add(1) }
func (m *Metrics) IncSyncFallbacks()  { m.syncFallbacks.Add(1) }
func (m *Metrics) IncSmartAttempts()  { m.smartAttempts.Add(1) }
func (m *Metrics) IncSmartFallbacks() { m.smartFallbacks.Add(1) }
func (m *Metrics) AddRejected(n int)  { m.rejected.Add(int64(n)) }

type MetricsSnapshot struct {
	Selections     int64 `json:"selections"`
	Empty          int64 `json:"empty"`
	POVFallbacks   int64 `json:"pov_fallbacks"`
	SyncFallbacks  int64 `json:"sync_fallbacks"`
	SmartAttempts  int64 `json:"smart_attempts"`
	SmartFallbacks int64 `json:"smart_fallbacks"`
	Rejected       int64 `json:"rejected"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Selections:     m.selections.Load(),
		Empty:          m.empty.Load(),
		POVFallbacks:   m.povFallbacks.Load(),
		SyncFallbacks:  m.syncFallbacks.Load(),
		SmartAttempts:  m.smartAttempts.Load(),
		SmartFallbacks: m.smartFallbacks.Load(),
		Rejected:       m.rejected.Load(),
	}
}

package engine

import "sync/atomic"

// Metrics captures lightweight runtime counters for the scoring service.
type Metrics struct {
	ranks         atomic.Int64
	offloaded     atomic.Int64
	syncTransfers atomic.Int64
	syncSkipped   atomic.Int64
	spawns        atomic.Int64
	timeouts      atomic.Int64
	crashes       atomic.Int64
	cancellations atomic.Int64
}

func (m *Metrics) IncRanks()         { m.ranks.Add(1) }
func (m *Metrics) IncOffloaded()     { m.offloaded.Add(1) }
func (m *Metrics) IncSyncTransfers() { m.syncTransfers.Add(1) }
func (m *Metrics) IncSyncSkipped()   { m.syncSkipped.Add(1) }
func (m *Metrics) IncSpawns()        { m.spawns.Add(1) }
func (m *Metrics) IncTimeouts()      { m.timeouts.Add(1) }
func (m *Metrics) IncCrashes()       { m.crashes.Add(1) }
func (m *Metrics) IncCancellations() { m.cancellations.Add(1) }

// MetricsSnapshot is a point-in-time copy for reporting/logging.
type MetricsSnapshot struct {
	Ranks         int64 `json:"ranks"`
	Offloaded     int64 `json:"offloaded"`
	SyncTransfers int64 `json:"sync_transfers"`
	SyncSkipped   int64 `json:"sync_skipped"`
	WorkerSpawns  int64 `json:"worker_spawns"`
	Timeouts      int64 `json:"timeouts"`
	Crashes       int64 `json:"crashes"`
	Cancellations int64 `json:"cancellations"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Ranks:         m.ranks.Load(),
		Offloaded:     m.offloaded.Load(),
		SyncTransfers: m.syncTransfers.Load(),
		SyncSkipped:   m.syncSkipped.Load(),
		WorkerSpawns:  m.spawns.Load(),
		Timeouts:      m.timeouts.Load(),
		Crashes:       m.crashes.Load(),
		Cancellations: m.cancellations.Load(),
	}
}

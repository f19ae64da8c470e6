package proxy

import "sync/atomic"

// Stats holds engine counters. The engine increments them on its event
// loop; the management API reads them from other goroutines, so they are
// atomics.
type Stats struct {
	Accepted         atomic.Uint64 // requests that became clients
	Duplicates       atomic.Uint64 // suppressed duplicate requests
	Filtered         atomic.Uint64 // UDP datagrams and TCP messages rejected by the interface filter
	ProtocolErrors   atomic.Uint64 // NotImp/FormErr replies
	Replies          atomic.Uint64 // responses sent
	Truncated        atomic.Uint64 // responses cut at the size bound (TC set on UDP; TCP sends the prefix)
	DNS64Synthesized atomic.Uint64 // AAAA records synthesized from A records
	InFlight         atomic.Int64  // clients currently in the registry
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Accepted         uint64 `json:"accepted"`
	Duplicates       uint64 `json:"duplicates"`
	Filtered         uint64 `json:"filtered"`
	ProtocolErrors   uint64 `json:"protocol_errors"`
	Replies          uint64 `json:"replies"`
	Truncated        uint64 `json:"truncated"`
	DNS64Synthesized uint64 `json:"dns64_synthesized"`
	InFlight         int    `json:"in_flight"`
}

// Stats returns a snapshot of the engine counters.
func (p *Proxy) Stats() StatsSnapshot {
	return StatsSnapshot{
		Accepted:         p.stats.Accepted.Load(),
		Duplicates:       p.stats.Duplicates.Load(),
		Filtered:         p.stats.Filtered.Load(),
		ProtocolErrors:   p.stats.ProtocolErrors.Load(),
		Replies:          p.stats.Replies.Load(),
		Truncated:        p.stats.Truncated.Load(),
		DNS64Synthesized: p.stats.DNS64Synthesized.Load(),
		InFlight:         int(p.stats.InFlight.Load()),
	}
}

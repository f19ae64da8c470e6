// Package proxy implements the relay engine: it admits DNS queries from
// configured input interfaces, asks the resolver on the output interface,
// and assembles complete responses from the resolver's cache, including
// CNAME chasing, negative-answer packaging, UDP truncation, duplicate
// suppression and optional DNS64 synthesis (RFC 6147).
//
// The engine holds no locks of its own: every entry point runs on the
// resolver's event loop, and cache walks are bracketed with the store's
// lock pair.
package proxy

import (
	"net/netip"

	"github.com/jroosing/relaydns/internal/resolvers"
)

// Store is the resolver-owned state the engine reads while assembling a
// response: the cache group index and the shared clock, guarded by the
// resolver's lock pair. Group and record pointers are only valid between
// Lock and Unlock.
type Store interface {
	Lock()
	Unlock()
	Now() int64
	CacheGroupForName(name string) *resolvers.CacheGroup
}

// QuestionRouter starts and stops resolver questions. Both calls must be
// made on the resolver's event loop.
type QuestionRouter interface {
	StartQuestion(q *resolvers.Question)
	StopQuestion(q *resolvers.Question)
}

// PacketWriter sends a datagram reply back to a UDP client.
type PacketWriter interface {
	WriteTo(msg []byte, addr netip.AddrPort) error
}

// StreamWriter sends a length-prefixed reply on an accepted TCP
// connection and closes it when the engine retires the client. Stream
// identity (interface value comparison) is the teardown key.
type StreamWriter interface {
	WriteMessage(msg []byte) error
	Close() error
}

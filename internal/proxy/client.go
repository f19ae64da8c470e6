package proxy

import (
	"net/netip"

	"github.com/jroosing/relaydns/internal/dns"
	"github.com/jroosing/relaydns/internal/resolvers"
)

// dns64State tracks a client's progress through the DNS64 state machine.
// A state is set at most once per transition and never moves back toward
// dns64Initial.
type dns64State int

const (
	dns64Initial        dns64State = iota
	dns64AwaitingASynth            // querying A records to synthesize AAAA answers
	dns64PtrTrying                 // querying the remapped in-addr.arpa PTR
	dns64PtrSuccess                // remapped PTR answered; prepend a CNAME
	dns64PtrNxDomain               // remapped PTR failed; answer NXDOMAIN
)

// client is the per-request state held from ingress until the response is
// sent (or the request is torn down). qname and qtype snapshot the
// original question; the live resolver question may be rewritten by DNS64
// transitions.
type client struct {
	addr  netip.AddrPort
	tcp   bool
	msgID uint16

	// requestFlags is the second 16-bit word of the request header,
	// verbatim.
	requestFlags uint16

	// ifIndex is the input interface the request arrived on.
	ifIndex uint32

	// Return path: exactly one of these is set.
	pkt    PacketWriter
	stream StreamWriter

	// optRR holds the client's raw EDNS(0) OPT record; rcvBufSize is the
	// UDP payload size it advertised. Both zero when EDNS was absent.
	optRR      []byte
	rcvBufSize uint16

	// Question snapshot, pre-transform.
	qname string
	qtype dns.RecordType

	// q is the live resolver question; q.Context points back here.
	q resolvers.Question

	dns64state dns64State
}

// registry is the set of in-flight clients. The engine is single-threaded
// on the resolver loop, so membership needs no locking; order is
// irrelevant.
type registry struct {
	clients []*client
}

// insert appends a client.
func (r *registry) insert(pc *client) {
	r.clients = append(r.clients, pc)
}

// findDuplicate returns the in-flight client matching the duplicate
// suppression tuple (source address+port, message id, qtype, qclass,
// qname), or nil. Name comparison is case-insensitive.
func (r *registry) findDuplicate(addr netip.AddrPort, msgID uint16, qtype dns.RecordType, qclass dns.RecordClass, qname string) *client {
	for _, pc := range r.clients {
		if pc.addr == addr &&
			pc.msgID == msgID &&
			pc.qtype == qtype &&
			pc.q.Qclass == qclass &&
			dns.EqualNames(pc.qname, qname) {
			return pc
		}
	}
	return nil
}

// findByStream returns the TCP client pinned to the given stream, or nil.
func (r *registry) findByStream(sw StreamWriter) *client {
	for _, pc := range r.clients {
		if pc.tcp && pc.stream == sw {
			return pc
		}
	}
	return nil
}

// remove unlinks a client by identity. Removing an absent client is a
// no-op.
func (r *registry) remove(pc *client) {
	for i, cur := range r.clients {
		if cur == pc {
			last := len(r.clients) - 1
			r.clients[i] = r.clients[last]
			r.clients[last] = nil
			r.clients = r.clients[:last]
			return
		}
	}
}

// len reports the in-flight client count.
func (r *registry) len() int {
	return len(r.clients)
}

// Package resolvers implements the recursive side of the relay: a
// TTL-aware record cache organized as per-owner-name groups, a question
// lifecycle with callbacks delivered on a single event-loop goroutine, and
// an upstream exchanger that forwards queries out the configured egress
// interface over UDP with TCP retry on truncation.
//
// The cache is the contract with the response path: callbacks announce
// that records for a question are present, and the consumer walks the
// cache group itself (under the cache lock) to build a complete response.
package resolvers

import "github.com/jroosing/relaydns/internal/dns"

// AnswerFunc is invoked on the event loop for records arriving for a
// question. addRecord is false for deliveries that only retract or update
// bookkeeping; consumers act only on addRecord == true.
type AnswerFunc func(q *Question, rec *CacheRecord, addRecord bool)

// Question is a live resolver question. The owner may rewrite Name and
// Qtype between Stop and Start calls; the resolver treats them as fixed
// while the question is running.
type Question struct {
	Name   string
	Qtype  dns.RecordType
	Qclass dns.RecordClass

	// InterfaceIndex selects the egress interface for the upstream
	// exchange. Zero means no binding.
	InterfaceIndex uint32

	// TimeoutQuestion makes an unanswered exchange surface as a negative
	// delivery instead of staying silent.
	TimeoutQuestion bool

	// ReturnIntermediates delivers negative answers and CNAME
	// intermediates, not just terminal positives.
	ReturnIntermediates bool

	// ProxyQuestion marks questions asked on behalf of a downstream
	// client; their upstream queries echo RequestFlags and OptRR.
	ProxyQuestion bool

	// RequestFlags is the flags word echoed on the upstream query for
	// proxy questions.
	RequestFlags uint16

	// OptRR is the client's raw EDNS(0) OPT record, appended verbatim to
	// the upstream query's additional section when present.
	OptRR []byte

	// ResponseFlags is filled with the upstream reply's flags word once
	// an exchange completes. Zero until then.
	ResponseFlags uint16

	Callback AnswerFunc
	Context  any
}

// CacheRecord is one record in a cache group. Negative entries mark an
// authoritative "no such data" answer for (Name, Rrtype, Rrclass); their
// SOA side-pointer carries the authority record needed to package the
// negative response.
type CacheRecord struct {
	Name        string
	Rrtype      dns.RecordType
	Rrclass     dns.RecordClass
	OriginalTTL uint32
	Data        any // same shapes as dns.Record.Data

	Negative bool

	// TimeRcvd is the cache clock value (seconds) when the record was
	// stored. Consumers age TTLs as OriginalTTL - (now - TimeRcvd).
	TimeRcvd int64

	// ResponseFlags is the flags word of the upstream response this
	// record arrived in.
	ResponseFlags uint16

	// SOA points at the authority SOA cached alongside a negative
	// answer, if the upstream supplied one.
	SOA *CacheRecord
}

// CacheGroup is the set of cache records sharing an owner name.
type CacheGroup struct {
	Name    string
	Members []*CacheRecord
}

// AnswersQuestion reports whether the record answers the question under
// DNS matching rules: same owner name (case-insensitive), same class, and
// either the queried type, a CNAME alias, or a negative marker for the
// queried type.
func (cr *CacheRecord) AnswersQuestion(q *Question) bool {
	if cr.Rrclass != q.Qclass || !dns.EqualNames(cr.Name, q.Name) {
		return false
	}
	if cr.Negative {
		return cr.Rrtype == q.Qtype
	}
	return cr.Rrtype == q.Qtype || cr.Rrtype == dns.TypeCNAME
}

// Record converts the cache record to a wire record with the given TTL.
func (cr *CacheRecord) Record(ttl uint32) dns.Record {
	return dns.Record{
		Name:  cr.Name,
		Type:  cr.Rrtype,
		Class: cr.Rrclass,
		TTL:   ttl,
		Data:  cr.Data,
	}
}

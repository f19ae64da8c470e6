package proxy

import (
	"errors"

	"github.com/jroosing/relaydns/internal/dns"
	"github.com/jroosing/relaydns/internal/resolvers"
)

// errNoRecords reports that the cache held nothing answering the live
// question; the caller replies ServFail.
var errNoRecords = errors.New("proxy: no records answer the question")

// maxCNAMEHops bounds the alias chase so pathological cache content
// cannot extend assembly without limit.
const maxCNAMEHops = 8

// answer is the resolver callback for a client's live question. Each
// record arrival drives the DNS64 state machine and, once a terminal
// record is in, assembles and sends the full response from cache.
func (p *Proxy) answer(q *resolvers.Question, rec *resolvers.CacheRecord, addRecord bool) {
	if !addRecord {
		return
	}
	pc, ok := q.Context.(*client)
	if !ok {
		return
	}
	cfg := p.config()

	if cfg.DNS64 != nil {
		switch pc.dns64state {
		case dns64Initial:
			// A negative AAAA answer restarts the question as an A query
			// for synthesis (RFC 6147 Section 5.1.6).
			if rec.Negative && q.Qtype == dns.TypeAAAA &&
				rec.Rrtype == dns.TypeAAAA && rec.Rrclass == dns.ClassIN {
				p.router.StopQuestion(q)
				pc.dns64state = dns64AwaitingASynth
				q.Qtype = dns.TypeA
				p.router.StartQuestion(q)
				return
			}
		case dns64PtrTrying:
			// Only a positive PTR answer makes the remap usable
			// (RFC 6147 Section 5.3.1); anything else means NXDOMAIN.
			if !rec.Negative && q.Qtype == dns.TypePTR &&
				rec.Rrtype == dns.TypePTR && rec.Rrclass == dns.ClassIN {
				pc.dns64state = dns64PtrSuccess
			} else {
				pc.dns64state = dns64PtrNxDomain
			}
		}
	}

	var out []byte
	var truncated bool
	if pc.dns64state == dns64PtrNxDomain {
		out = p.buildRcodeReply(pc, dns.QRFlag|uint16(dns.RCodeNXDomain))
	} else {
		if !rec.Negative && rec.Rrtype != q.Qtype {
			// The resolver is still following a CNAME chain; wait for
			// the terminal record.
			return
		}
		var err error
		out, truncated, err = p.assemble(pc, cfg)
		if err != nil {
			flags := dns.QRFlag | uint16(dns.RCodeServFail)
			if q.ResponseFlags != 0 {
				flags = q.ResponseFlags
			}
			out = p.buildRcodeReply(pc, flags)
		}
	}

	if out != nil {
		if truncated {
			p.stats.Truncated.Add(1)
		}
		p.send(out, pc.addr, pc.pkt, pc.stream)
	}
	p.teardown(pc, out != nil)
}

// assemble walks the cache for the client's working question and builds
// the complete reply. truncated is true when the size bound cut the
// answer set; the returned message is then the safe prefix.
func (p *Proxy) assemble(pc *client, cfg *Config) (out []byte, truncated bool, err error) {
	limit := dns.AbsoluteMaxMessageData
	if !pc.tcp {
		if pc.rcvBufSize == 0 {
			limit = dns.MinMessageSize
		} else {
			limit = min(int(pc.rcvBufSize), dns.AbsoluteMaxMessageData)
		}
	}

	p.store.Lock()
	defer p.store.Unlock()
	now := p.store.Now()

	workingName := pc.qname
	if pc.dns64state == dns64PtrSuccess {
		// The live question holds the remapped in-addr.arpa name whose
		// PTR records answer the client.
		workingName = pc.q.Name
	}

	var b *dns.Builder
	hops := 0

scan:
	for {
		group := p.store.CacheGroupForName(workingName)
		if group == nil {
			p.logger.Debug("no cache group for working name", "name", workingName)
			return nil, false, errNoRecords
		}

		var soa, cname *resolvers.CacheRecord
		for _, cr := range group.Members {
			if !recordAnswers(cr, &pc.q) {
				continue
			}
			if b == nil {
				// First match: the header mirrors this record's
				// response flags, and the question echoes the client's
				// original name and type.
				b = dns.NewBuilder(pc.msgID, mirrorFlags(pc.requestFlags, cr.ResponseFlags), limit)
				if err := b.PutQuestion(dns.Question{Name: pc.qname, Type: pc.qtype, Class: pc.q.Qclass}); err != nil {
					return nil, false, err
				}
				if pc.dns64state == dns64PtrSuccess {
					alias := dns.Record{
						Name:  pc.qname,
						Type:  dns.TypeCNAME,
						Class: dns.ClassIN,
						Data:  pc.q.Name,
					}
					if err := b.PutRR(dns.SectionAnswer, alias, 0); err != nil {
						truncated = true
						break scan
					}
				}
			}
			if !cr.Negative {
				rr := cr.Record(agedTTL(cr, now))
				if pc.dns64state == dns64AwaitingASynth && cr.Rrtype == dns.TypeA {
					synth, ok := synthesizeAAAA(cfg.DNS64, cr, rr.TTL)
					if !ok {
						continue
					}
					rr = synth
					p.stats.DNS64Synthesized.Add(1)
				}
				if err := b.PutRR(dns.SectionAnswer, rr, rr.TTL); err != nil {
					truncated = true
					break scan
				}
			}
			if cr.SOA != nil {
				soa = cr.SOA
			}
			if pc.q.Qtype != cr.Rrtype && cr.Rrtype == dns.TypeCNAME && !cr.Negative {
				cname = cr
			}
		}

		if soa != nil && b != nil {
			if err := b.PutRR(dns.SectionAuthority, soa.Record(soa.OriginalTTL), soa.OriginalTTL); err != nil {
				truncated = true
				break scan
			}
		}
		if cname == nil {
			break
		}
		if hops >= maxCNAMEHops {
			p.logger.Warn("cname chain too long, stopping chase", "qname", pc.qname, "hops", hops)
			break
		}
		target, ok := cname.Data.(string)
		if !ok {
			break
		}
		workingName = target
		hops++
	}

	if b == nil {
		return nil, false, errNoRecords
	}
	if !truncated && pc.rcvBufSize != 0 {
		if err := b.PutResponseOPT(); err != nil {
			truncated = true
		}
	}
	if truncated {
		if pc.tcp {
			// A TCP reply cannot signal truncation; send what fits.
			p.logger.Error("tcp reply exceeds message bound, sending partial answer",
				"qname", pc.qname, "len", b.Len())
		} else {
			b.SetTC()
		}
	}
	return b.Finish(), truncated, nil
}

// buildRcodeReply builds a minimal reply carrying only the client's
// original question under the given flags word. Returns nil when even the
// question cannot be encoded.
func (p *Proxy) buildRcodeReply(pc *client, flags uint16) []byte {
	b := dns.NewBuilder(pc.msgID, flags, dns.AbsoluteMaxMessageData)
	if err := b.PutQuestion(dns.Question{Name: pc.qname, Type: pc.qtype, Class: pc.q.Qclass}); err != nil {
		p.logger.Warn("cannot encode question for error reply", "qname", pc.qname, "err", err)
		return nil
	}
	return b.Finish()
}

// recordAnswers reports whether a record from the working name's group
// answers the live question: class match plus the queried type, a CNAME
// alias, or a negative marker of the queried type.
func recordAnswers(cr *resolvers.CacheRecord, q *resolvers.Question) bool {
	if cr.Rrclass != q.Qclass {
		return false
	}
	if cr.Negative {
		return cr.Rrtype == q.Qtype
	}
	return cr.Rrtype == q.Qtype || cr.Rrtype == dns.TypeCNAME
}

// mirrorFlags derives the response flags word from a cache record's
// captured upstream flags: RD and CD always reflect the client's request;
// everything else (AA, TC, RA, AD, rcode) passes through.
func mirrorFlags(requestFlags, responseFlags uint16) uint16 {
	f := responseFlags
	f = f&^dns.RDFlag | requestFlags&dns.RDFlag
	f = f&^dns.CDFlag | requestFlags&dns.CDFlag
	return f
}

// agedTTL returns the record's TTL adjusted for time spent in cache.
func agedTTL(cr *resolvers.CacheRecord, now int64) uint32 {
	remaining := int64(cr.OriginalTTL) - (now - cr.TimeRcvd)
	if remaining < 0 {
		return 0
	}
	return uint32(remaining)
}

// synthesizeAAAA maps an A record into the NAT64 prefix, producing the
// AAAA record announced to the client (RFC 6052 address format).
func synthesizeAAAA(cfg *DNS64Config, cr *resolvers.CacheRecord, ttl uint32) (dns.Record, bool) {
	if cfg == nil {
		return dns.Record{}, false
	}
	raw, ok := cr.Data.([]byte)
	if !ok || len(raw) != 4 {
		return dns.Record{}, false
	}
	v6 := cfg.Prefix.Synthesize([4]byte(raw))
	return dns.Record{
		Name:  cr.Name,
		Type:  dns.TypeAAAA,
		Class: cr.Rrclass,
		TTL:   ttl,
		Data:  v6[:],
	}, true
}

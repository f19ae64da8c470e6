package proxy

import (
	"log/slog"
	"net/netip"
	"sync/atomic"

	"github.com/jroosing/relaydns/internal/dns"
	"github.com/jroosing/relaydns/internal/resolvers"
)

// Proxy is the relay engine. All methods except Init, Terminate and Stats
// must run on the resolver's event loop.
type Proxy struct {
	logger *slog.Logger
	store  Store
	router QuestionRouter

	cfg   atomic.Pointer[Config]
	reg   registry
	stats Stats
}

// New creates an engine with an empty configuration: until Init runs, the
// interface filter rejects everything.
func New(store Store, router QuestionRouter, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Proxy{logger: logger, store: store, router: router}
	p.cfg.Store(&Config{})
	return p
}

// OnUDPMessage handles a DNS datagram received on a UDP socket. ifindex
// identifies the interface the datagram arrived on; w is the return path
// for the reply.
func (p *Proxy) OnUDPMessage(msg []byte, src netip.AddrPort, ifindex uint32, w PacketWriter) {
	p.ingress(msg, src, ifindex, w, nil)
}

// OnTCPMessage handles one length-delimited DNS message from an accepted
// TCP connection. An empty msg means the peer closed the connection: the
// client pinned to the stream (if any) is torn down without a reply. The
// interface filter is consulted on every message, not just at accept,
// since a long-lived connection can span reconfigurations; a rejection is
// handled like a close.
func (p *Proxy) OnTCPMessage(msg []byte, src netip.AddrPort, ifindex uint32, sw StreamWriter) {
	if len(msg) == 0 || !p.config().admits(ifindex) {
		if len(msg) != 0 {
			p.stats.Filtered.Add(1)
			p.logger.Warn("rejecting tcp message: interface not admitted", "ifindex", ifindex, "src", src)
		}
		pc := p.reg.findByStream(sw)
		if pc == nil {
			_ = sw.Close()
			return
		}
		p.teardown(pc, false)
		return
	}
	p.ingress(msg, src, ifindex, nil, sw)
}

// ingress is the common request path: filter, validate, dedupe, build a
// client and start its resolver question.
func (p *Proxy) ingress(msg []byte, src netip.AddrPort, ifindex uint32, w PacketWriter, sw StreamWriter) {
	tcp := sw != nil
	cfg := p.config()

	if !tcp && !cfg.admits(ifindex) {
		p.stats.Filtered.Add(1)
		p.logger.Warn("rejecting query: interface not admitted", "ifindex", ifindex, "src", src)
		return
	}
	if len(msg) < dns.HeaderSize {
		p.logger.Debug("dropping short message", "len", len(msg), "src", src)
		return
	}

	off := 0
	h, _ := dns.ParseHeader(msg, &off)

	// Only standard queries are served; responses and other opcodes get
	// NotImplemented.
	if h.Flags&(dns.QRFlag|dns.OpcodeMask) != 0 {
		p.stats.ProtocolErrors.Add(1)
		p.sendError(msg, src, w, sw, dns.RCodeNotImp)
		return
	}
	if h.QDCount != 1 || h.ANCount != 0 || h.NSCount != 0 {
		p.stats.ProtocolErrors.Add(1)
		p.logger.Debug("malformed header", "src", src,
			"questions", h.QDCount, "answers", h.ANCount, "authorities", h.NSCount)
		p.sendError(msg, src, w, sw, dns.RCodeFormErr)
		return
	}

	q, err := dns.ParseQuestion(msg, &off)
	if err != nil {
		p.stats.ProtocolErrors.Add(1)
		p.logger.Debug("unparseable question", "src", src, "err", err)
		p.sendError(msg, src, w, sw, dns.RCodeFormErr)
		return
	}

	// A malformed OPT is ignored, not a format error.
	var optRR []byte
	var rcvBufSize uint16
	if start, end, ok, err := dns.LocateOPT(msg); err != nil {
		p.logger.Debug("ignoring unparseable additional section", "src", src, "err", err)
	} else if ok {
		size, err := dns.ParseOPTAt(msg, start)
		if err != nil {
			p.logger.Debug("ignoring malformed edns option", "src", src, "err", err)
		} else {
			rcvBufSize = size
			optRR = make([]byte, end-start)
			copy(optRR, msg[start:end])
		}
	}

	if dup := p.reg.findDuplicate(src, h.ID, q.Type, q.Class, q.Name); dup != nil {
		p.stats.Duplicates.Add(1)
		p.logger.Debug("suppressing duplicate request", "src", src, "qname", q.Name)
		return
	}

	pc := &client{
		addr:         src,
		tcp:          tcp,
		msgID:        h.ID,
		requestFlags: h.Flags,
		ifIndex:      ifindex,
		pkt:          w,
		stream:       sw,
		optRR:        optRR,
		rcvBufSize:   rcvBufSize,
		qname:        q.Name,
		qtype:        q.Type,
	}
	pc.q = resolvers.Question{
		Name:                q.Name,
		Qtype:               q.Type,
		Qclass:              q.Class,
		InterfaceIndex:      cfg.OutputInterface,
		TimeoutQuestion:     true,
		ReturnIntermediates: true,
		ProxyQuestion:       true,
		RequestFlags:        h.Flags,
		OptRR:               optRR,
		Callback:            p.answer,
		Context:             pc,
	}

	if cfg.DNS64 != nil {
		p.applyDNS64Ingress(pc, cfg.DNS64)
	}

	p.reg.insert(pc)
	p.stats.Accepted.Add(1)
	p.stats.InFlight.Add(1)

	p.router.StartQuestion(&pc.q)
}

// applyDNS64Ingress rewrites the live question before it starts:
// reverse-IPv6 PTR names under the NAT64 prefix become in-addr.arpa PTR
// questions, and (under forced synthesis) AAAA questions become A
// questions.
func (p *Proxy) applyDNS64Ingress(pc *client, cfg *DNS64Config) {
	switch {
	case pc.qtype == dns.TypePTR:
		v6, ok := reverseIPv6Address(pc.qname)
		if !ok {
			return
		}
		v4, ok := cfg.Prefix.ExtractIPv4(v6)
		if !ok {
			return
		}
		pc.q.Name = reverseIPv4Name(v4)
		pc.dns64state = dns64PtrTrying
		p.logger.Debug("dns64 ptr remap", "from", pc.qname, "to", pc.q.Name)
	case pc.qtype == dns.TypeAAAA && cfg.ForceAAAASynthesis:
		pc.q.Qtype = dns.TypeA
		pc.dns64state = dns64AwaitingASynth
	}
}

// sendError replies with the given rcode, echoing the client's header and
// as much of its message body as fits, then disposes the return path for
// TCP clients. Used for protocol errors before a client exists.
func (p *Proxy) sendError(msg []byte, src netip.AddrPort, w PacketWriter, sw StreamWriter, rcode dns.RCode) {
	n := min(len(msg), dns.HeaderSize+dns.AbsoluteMaxMessageData)
	out := make([]byte, n)
	copy(out, msg[:n])
	out[2] |= byte(dns.QRFlag >> 8)
	out[3] = byte(rcode)

	p.send(out, src, w, sw)
	if sw != nil {
		_ = sw.Close()
	}
}

// send writes a reply over the client's transport.
func (p *Proxy) send(out []byte, src netip.AddrPort, w PacketWriter, sw StreamWriter) {
	var err error
	if sw != nil {
		err = sw.WriteMessage(out)
	} else if w != nil {
		err = w.WriteTo(out, src)
	}
	if err != nil {
		p.logger.Warn("reply send failed", "src", src, "err", err)
	}
}

// teardown retires a client: the resolver question is stopped, the client
// leaves the registry, the platform context (the accepted TCP connection)
// is disposed, and the owned OPT buffer is released — exactly once, in
// that order.
func (p *Proxy) teardown(pc *client, replied bool) {
	p.router.StopQuestion(&pc.q)
	p.reg.remove(pc)
	p.stats.InFlight.Add(-1)
	if pc.stream != nil {
		_ = pc.stream.Close()
		pc.stream = nil
	}
	pc.optRR = nil
	if replied {
		p.stats.Replies.Add(1)
	}
}

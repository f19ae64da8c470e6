package proxy

import (
	"log/slog"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/relaydns/internal/dns"
	"github.com/jroosing/relaydns/internal/resolvers"
)

const (
	testInputIface  = uint32(1)
	testOutputIface = uint32(2)
	testNow         = int64(1_000_000)
)

type fakeStore struct {
	now    int64
	groups map[string]*resolvers.CacheGroup
}

func newFakeStore() *fakeStore {
	return &fakeStore{now: testNow, groups: map[string]*resolvers.CacheGroup{}}
}

func (s *fakeStore) Lock()      {}
func (s *fakeStore) Unlock()    {}
func (s *fakeStore) Now() int64 { return s.now }

func (s *fakeStore) CacheGroupForName(name string) *resolvers.CacheGroup {
	return s.groups[dns.NormalizeName(name)]
}

func (s *fakeStore) add(records ...*resolvers.CacheRecord) {
	for _, cr := range records {
		key := dns.NormalizeName(cr.Name)
		g := s.groups[key]
		if g == nil {
			g = &resolvers.CacheGroup{Name: cr.Name}
			s.groups[key] = g
		}
		g.Members = append(g.Members, cr)
	}
}

type fakeRouter struct {
	onStart func(q *resolvers.Question)
	started int
	stopped int
}

func (r *fakeRouter) StartQuestion(q *resolvers.Question) {
	r.started++
	if r.onStart != nil {
		r.onStart(q)
	}
}

func (r *fakeRouter) StopQuestion(*resolvers.Question) {
	r.stopped++
}

type fakePacketWriter struct {
	msgs [][]byte
}

func (f *fakePacketWriter) WriteTo(msg []byte, _ netip.AddrPort) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeStream struct {
	msgs   [][]byte
	closed bool
}

func (f *fakeStream) WriteMessage(msg []byte) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func newTestEngine(t *testing.T, store *fakeStore, router *fakeRouter) *Proxy {
	t.Helper()
	p := New(store, router, slog.Default())
	p.Init([]uint32{testInputIface}, testOutputIface, nil, 0, false)
	return p
}

func newDNS64Engine(t *testing.T, store *fakeStore, router *fakeRouter, force bool) *Proxy {
	t.Helper()
	p := New(store, router, slog.Default())
	addr := netip.MustParseAddr("64:ff9b::").As16()
	p.Init([]uint32{testInputIface}, testOutputIface, addr[:], 96, force)
	return p
}

// buildQuery encodes a query; optPayload > 0 appends an OPT record.
func buildQuery(t *testing.T, id, flags uint16, name string, qtype dns.RecordType, optPayload uint16) []byte {
	t.Helper()
	b := dns.NewBuilder(id, flags, dns.AbsoluteMaxMessageData)
	require.NoError(t, b.PutQuestion(dns.Question{Name: name, Type: qtype, Class: dns.ClassIN}))
	if optPayload > 0 {
		opt := []byte{0x00, 0x00, 0x29, byte(optPayload >> 8), byte(optPayload), 0, 0, 0, 0, 0x00, 0x00}
		require.NoError(t, b.PutRawRR(dns.SectionAdditional, opt))
	}
	return b.Finish()
}

func positive(name string, rrtype dns.RecordType, ttl uint32, data any, responseFlags uint16, receivedAt int64) *resolvers.CacheRecord {
	return &resolvers.CacheRecord{
		Name:          name,
		Rrtype:        rrtype,
		Rrclass:       dns.ClassIN,
		OriginalTTL:   ttl,
		Data:          data,
		TimeRcvd:      receivedAt,
		ResponseFlags: responseFlags,
	}
}

var clientAddr = netip.MustParseAddrPort("198.51.100.1:5555")

func TestHappyUDPAQuery(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newTestEngine(t, store, router)

	rec := positive("example.test", dns.TypeA, 60, []byte{203, 0, 113, 7},
		dns.QRFlag|dns.RDFlag|dns.RAFlag, testNow-10)
	store.add(rec)
	router.onStart = func(q *resolvers.Question) { q.Callback(q, rec, true) }

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x1234, dns.RDFlag, "example.test", dns.TypeA, 0),
		clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	assert.LessOrEqual(t, len(w.msgs[0]), dns.HeaderSize+dns.MinMessageSize)

	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), m.Header.ID)
	assert.NotZero(t, m.Header.Flags&dns.QRFlag)
	assert.Equal(t, dns.RCodeNoError, dns.RCodeFromFlags(m.Header.Flags))
	assert.NotZero(t, m.Header.Flags&dns.RDFlag)
	require.Len(t, m.Questions, 1)
	assert.Equal(t, dns.Question{Name: "example.test", Type: dns.TypeA, Class: dns.ClassIN}, m.Questions[0])
	require.Len(t, m.Answers, 1)
	assert.Equal(t, uint32(50), m.Answers[0].TTL) // 60s original, 10s in cache
	assert.Equal(t, []byte{203, 0, 113, 7}, m.Answers[0].Data)
	assert.Empty(t, m.Authorities)
	assert.Empty(t, m.Additionals) // no EDNS in, no OPT out

	// The client is retired after the reply.
	assert.Equal(t, 1, router.stopped)
	assert.Equal(t, 0, engine.Stats().InFlight)
}

func TestEDNSQueryWithCNAMEChain(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newTestEngine(t, store, router)

	upstream := dns.QRFlag | dns.RDFlag | dns.RAFlag
	alias := positive("a.test", dns.TypeCNAME, 300, "b.test", upstream, testNow)
	target := positive("b.test", dns.TypeAAAA, 300,
		append([]byte{0x20, 0x01, 0x0d, 0xb8}, append(make([]byte, 11), 1)...), upstream, testNow)
	store.add(alias, target)
	router.onStart = func(q *resolvers.Question) {
		// Intermediate first, terminal second, like a real chase.
		q.Callback(q, alias, true)
		q.Callback(q, target, true)
	}

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0xBEEF, dns.RDFlag, "a.test", dns.TypeAAAA, 1232),
		clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	assert.LessOrEqual(t, len(w.msgs[0]), dns.HeaderSize+1232)

	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), m.Header.ID)
	require.Len(t, m.Answers, 2)
	assert.Equal(t, dns.TypeCNAME, m.Answers[0].Type)
	assert.Equal(t, "b.test", m.Answers[0].Data)
	assert.Equal(t, dns.TypeAAAA, m.Answers[1].Type)
	require.Len(t, m.Additionals, 1)
	assert.Equal(t, dns.TypeOPT, m.Additionals[0].Type)
	assert.Equal(t, dns.RecordClass(dns.ResponseOPTPayloadSize), m.Additionals[0].Class)
}

func TestNotImplementedOpcode(t *testing.T) {
	router := &fakeRouter{}
	engine := newTestEngine(t, newFakeStore(), router)

	msg := buildQuery(t, 0x0AB0, 0, "zone.test", dns.TypeA, 0)
	msg[2] |= 0x28 // opcode Update

	w := &fakePacketWriter{}
	engine.OnUDPMessage(msg, clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0AB0), m.Header.ID)
	assert.NotZero(t, m.Header.Flags&dns.QRFlag)
	assert.Equal(t, dns.RCodeNotImp, dns.RCodeFromFlags(m.Header.Flags))
	require.Len(t, m.Questions, 1)
	assert.Equal(t, "zone.test", m.Questions[0].Name)
	assert.Empty(t, m.Answers)
	assert.Zero(t, router.started)
}

func TestMalformedHeaderFormErr(t *testing.T) {
	router := &fakeRouter{}
	engine := newTestEngine(t, newFakeStore(), router)

	msg := buildQuery(t, 0x0AB1, dns.RDFlag, "zone.test", dns.TypeA, 0)
	msg[5] = 2 // QDCount = 2

	w := &fakePacketWriter{}
	engine.OnUDPMessage(msg, clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	out := w.msgs[0]
	assert.Equal(t, byte(dns.RCodeFormErr), out[3])
	assert.NotZero(t, out[2]&0x80)
	// The body is echoed verbatim.
	assert.Equal(t, msg[4:], out[4:])
	assert.Zero(t, router.started)
}

func TestShortMessageDroppedSilently(t *testing.T) {
	router := &fakeRouter{}
	engine := newTestEngine(t, newFakeStore(), router)

	w := &fakePacketWriter{}
	engine.OnUDPMessage([]byte{0x12, 0x34, 0x00}, clientAddr, testInputIface, w)
	assert.Empty(t, w.msgs)
	assert.Zero(t, router.started)
}

func TestDuplicateSuppression(t *testing.T) {
	router := &fakeRouter{}
	engine := newTestEngine(t, newFakeStore(), router)

	msg := buildQuery(t, 0x7777, dns.RDFlag, "dup.test", dns.TypeA, 0)
	w := &fakePacketWriter{}
	engine.OnUDPMessage(msg, clientAddr, testInputIface, w)
	engine.OnUDPMessage(msg, clientAddr, testInputIface, w)

	assert.Equal(t, 1, router.started)
	assert.Equal(t, 1, engine.Stats().InFlight)
	assert.Equal(t, uint64(1), engine.Stats().Duplicates)
	assert.Empty(t, w.msgs)

	// A different id from the same client is not a duplicate.
	engine.OnUDPMessage(buildQuery(t, 0x7778, dns.RDFlag, "dup.test", dns.TypeA, 0),
		clientAddr, testInputIface, w)
	assert.Equal(t, 2, router.started)
}

func TestInterfaceFilter(t *testing.T) {
	router := &fakeRouter{}
	engine := newTestEngine(t, newFakeStore(), router)

	w := &fakePacketWriter{}
	msg := buildQuery(t, 1, dns.RDFlag, "x.test", dns.TypeA, 0)

	engine.OnUDPMessage(msg, clientAddr, 99, w) // not configured
	engine.OnUDPMessage(msg, clientAddr, 0, w)  // index zero never admitted
	assert.Empty(t, w.msgs)
	assert.Zero(t, router.started)

	// After Terminate no datagram originates a client.
	engine.Terminate()
	engine.OnUDPMessage(msg, clientAddr, testInputIface, w)
	assert.Empty(t, w.msgs)
	assert.Zero(t, router.started)
	assert.Equal(t, uint64(3), engine.Stats().Filtered)
}

func TestNoRecordsYieldsServFail(t *testing.T) {
	store := newFakeStore() // empty cache
	router := &fakeRouter{}
	engine := newTestEngine(t, store, router)

	rec := positive("missing.test", dns.TypeA, 30, []byte{192, 0, 2, 1}, dns.QRFlag, testNow)
	router.onStart = func(q *resolvers.Question) { q.Callback(q, rec, true) }

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x0901, dns.RDFlag, "missing.test", dns.TypeA, 0),
		clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, dns.RCodeServFail, dns.RCodeFromFlags(m.Header.Flags))
	require.Len(t, m.Questions, 1)
	assert.Equal(t, "missing.test", m.Questions[0].Name)
	assert.Empty(t, m.Answers)
}

func TestNoRecordsEchoesResolverResponseFlags(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newTestEngine(t, store, router)

	rec := positive("refused.test", dns.TypeA, 30, []byte{192, 0, 2, 1}, dns.QRFlag, testNow)
	router.onStart = func(q *resolvers.Question) {
		q.ResponseFlags = dns.QRFlag | uint16(dns.RCodeRefused)
		q.Callback(q, rec, true)
	}

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x0902, dns.RDFlag, "refused.test", dns.TypeA, 0),
		clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, dns.RCodeRefused, dns.RCodeFromFlags(m.Header.Flags))
}

func TestNegativeAnswerCarriesSOA(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newTestEngine(t, store, router)

	soa := positive("test", dns.TypeSOA, 900,
		dns.SOAData{MName: "ns1.test", RName: "hostmaster.test", Serial: 1, Minimum: 300},
		dns.QRFlag, testNow)
	marker := &resolvers.CacheRecord{
		Name:          "gone.test",
		Rrtype:        dns.TypeAAAA,
		Rrclass:       dns.ClassIN,
		OriginalTTL:   300,
		Negative:      true,
		TimeRcvd:      testNow,
		ResponseFlags: dns.QRFlag | uint16(dns.RCodeNXDomain),
		SOA:           soa,
	}
	store.add(marker)
	router.onStart = func(q *resolvers.Question) { q.Callback(q, marker, true) }

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x0903, dns.RDFlag, "gone.test", dns.TypeAAAA, 0),
		clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, dns.RCodeNXDomain, dns.RCodeFromFlags(m.Header.Flags))
	assert.Empty(t, m.Answers)
	require.Len(t, m.Authorities, 1)
	assert.Equal(t, dns.TypeSOA, m.Authorities[0].Type)
	assert.Equal(t, uint32(900), m.Authorities[0].TTL) // original TTL, not aged
}

func TestUDPTruncationSetsTC(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newTestEngine(t, store, router)

	records := make([]*resolvers.CacheRecord, 40)
	for i := range records {
		records[i] = positive("big.test", dns.TypeA, 60,
			[]byte{10, 0, byte(i >> 8), byte(i)}, dns.QRFlag, testNow)
	}
	store.add(records...)
	router.onStart = func(q *resolvers.Question) { q.Callback(q, records[0], true) }

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x0B16, dns.RDFlag, "big.test", dns.TypeA, 0),
		clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	assert.LessOrEqual(t, len(w.msgs[0]), dns.HeaderSize+dns.MinMessageSize)

	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	assert.NotZero(t, m.Header.Flags&dns.TCFlag)
	assert.NotEmpty(t, m.Answers)
	assert.Less(t, len(m.Answers), 40)
	assert.Equal(t, uint64(1), engine.Stats().Truncated)
}

func TestEDNSBufSizeRaisesUDPBound(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newTestEngine(t, store, router)

	records := make([]*resolvers.CacheRecord, 40)
	for i := range records {
		records[i] = positive("big.test", dns.TypeA, 60,
			[]byte{10, 0, byte(i >> 8), byte(i)}, dns.QRFlag, testNow)
	}
	store.add(records...)
	router.onStart = func(q *resolvers.Question) { q.Callback(q, records[0], true) }

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x0B17, dns.RDFlag, "big.test", dns.TypeA, 1232),
		clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	assert.Zero(t, m.Header.Flags&dns.TCFlag)
	assert.Len(t, m.Answers, 40)
}

func TestFlagMirroring(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newTestEngine(t, store, router)

	// Upstream answered with RA but neither RD nor CD; the client set
	// both.
	rec := positive("flags.test", dns.TypeA, 60, []byte{192, 0, 2, 9},
		dns.QRFlag|dns.RAFlag|dns.AAFlag, testNow)
	store.add(rec)
	router.onStart = func(q *resolvers.Question) { q.Callback(q, rec, true) }

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x0F1A, dns.RDFlag|dns.CDFlag, "flags.test", dns.TypeA, 0),
		clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	assert.NotZero(t, m.Header.Flags&dns.RDFlag)
	assert.NotZero(t, m.Header.Flags&dns.CDFlag)
	assert.NotZero(t, m.Header.Flags&dns.RAFlag)
	assert.NotZero(t, m.Header.Flags&dns.AAFlag)
}

func TestTCPQueryAndTeardown(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newTestEngine(t, store, router)

	sw := &fakeStream{}
	engine.OnTCPMessage(buildQuery(t, 0x0C01, dns.RDFlag, "pending.test", dns.TypeA, 0),
		clientAddr, testInputIface, sw)
	assert.Equal(t, 1, router.started)
	assert.Equal(t, 1, engine.Stats().InFlight)

	// Peer closes while the question is in flight.
	engine.OnTCPMessage(nil, clientAddr, testInputIface, sw)
	assert.Equal(t, 1, router.stopped)
	assert.True(t, sw.closed)
	assert.Empty(t, sw.msgs)
	assert.Equal(t, 0, engine.Stats().InFlight)
}

func TestTCPReplyAndClose(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newTestEngine(t, store, router)

	rec := positive("tcp.test", dns.TypeA, 60, []byte{192, 0, 2, 5}, dns.QRFlag, testNow)
	store.add(rec)
	router.onStart = func(q *resolvers.Question) { q.Callback(q, rec, true) }

	sw := &fakeStream{}
	engine.OnTCPMessage(buildQuery(t, 0x0C02, dns.RDFlag, "tcp.test", dns.TypeA, 0),
		clientAddr, testInputIface, sw)

	require.Len(t, sw.msgs, 1)
	m, err := dns.ParseMessage(sw.msgs[0])
	require.NoError(t, err)
	require.Len(t, m.Answers, 1)
	// The accepted connection is disposed once the response is sent.
	assert.True(t, sw.closed)
}

func TestDNS64AAAASynthesis(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newDNS64Engine(t, store, router, false)

	aRecord := positive("host", dns.TypeA, 60, []byte{192, 0, 2, 33}, dns.QRFlag, testNow)
	negAAAA := &resolvers.CacheRecord{
		Name: "host", Rrtype: dns.TypeAAAA, Rrclass: dns.ClassIN,
		OriginalTTL: 300, Negative: true, TimeRcvd: testNow,
		ResponseFlags: dns.QRFlag | uint16(dns.RCodeNoError),
	}
	router.onStart = func(q *resolvers.Question) {
		switch q.Qtype {
		case dns.TypeAAAA:
			q.Callback(q, negAAAA, true)
		case dns.TypeA:
			store.add(aRecord)
			q.Callback(q, aRecord, true)
		}
	}

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x6464, dns.RDFlag, "host", dns.TypeAAAA, 0),
		clientAddr, testInputIface, w)

	// Restarted once: AAAA first, then A.
	assert.Equal(t, 2, router.started)

	require.Len(t, w.msgs, 1)
	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	require.Len(t, m.Questions, 1)
	assert.Equal(t, dns.TypeAAAA, m.Questions[0].Type) // original question echoed
	require.Len(t, m.Answers, 1)
	assert.Equal(t, dns.TypeAAAA, m.Answers[0].Type)
	ip, ok := m.Answers[0].IPv6()
	require.True(t, ok)
	assert.Equal(t, "64:ff9b::c000:221", ip.String())
	assert.Equal(t, uint64(1), engine.Stats().DNS64Synthesized)
}

func TestDNS64ForcedSynthesisSkipsAAAAQuery(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newDNS64Engine(t, store, router, true)

	aRecord := positive("host", dns.TypeA, 60, []byte{198, 51, 100, 2}, dns.QRFlag, testNow)
	store.add(aRecord)
	router.onStart = func(q *resolvers.Question) {
		require.Equal(t, dns.TypeA, q.Qtype) // rewritten at ingress
		q.Callback(q, aRecord, true)
	}

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x6465, dns.RDFlag, "host", dns.TypeAAAA, 0),
		clientAddr, testInputIface, w)

	assert.Equal(t, 1, router.started)
	require.Len(t, w.msgs, 1)
	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	require.Len(t, m.Answers, 1)
	assert.Equal(t, dns.TypeAAAA, m.Answers[0].Type)
}

const reverseV6Name = "1.2.2.0.0.0.0.c.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.b.9.f.f.4.6.0.0.ip6.arpa"

func TestDNS64PTRRemapSuccess(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newDNS64Engine(t, store, router, false)

	ptr := positive("33.2.0.192.in-addr.arpa", dns.TypePTR, 120, "host.example", dns.QRFlag, testNow)
	router.onStart = func(q *resolvers.Question) {
		require.Equal(t, "33.2.0.192.in-addr.arpa", q.Name) // rewritten at ingress
		store.add(ptr)
		q.Callback(q, ptr, true)
	}

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x6466, dns.RDFlag, reverseV6Name, dns.TypePTR, 0),
		clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	require.Len(t, m.Questions, 1)
	assert.Equal(t, reverseV6Name, m.Questions[0].Name) // original name echoed
	require.Len(t, m.Answers, 2)

	// Synthetic CNAME maps the ip6.arpa name onto the in-addr.arpa name.
	assert.Equal(t, dns.TypeCNAME, m.Answers[0].Type)
	assert.Equal(t, reverseV6Name, m.Answers[0].Name)
	assert.Equal(t, "33.2.0.192.in-addr.arpa", m.Answers[0].Data)
	assert.Equal(t, uint32(0), m.Answers[0].TTL)

	assert.Equal(t, dns.TypePTR, m.Answers[1].Type)
	assert.Equal(t, "host.example", m.Answers[1].Data)
}

func TestDNS64PTRRemapFailureIsNXDomain(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newDNS64Engine(t, store, router, false)

	neg := &resolvers.CacheRecord{
		Name: "33.2.0.192.in-addr.arpa", Rrtype: dns.TypePTR, Rrclass: dns.ClassIN,
		OriginalTTL: 300, Negative: true, TimeRcvd: testNow,
		ResponseFlags: dns.QRFlag | uint16(dns.RCodeNXDomain),
	}
	router.onStart = func(q *resolvers.Question) { q.Callback(q, neg, true) }

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x6467, dns.RDFlag, reverseV6Name, dns.TypePTR, 0),
		clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, dns.RCodeNXDomain, dns.RCodeFromFlags(m.Header.Flags))
	assert.Empty(t, m.Answers)
	require.Len(t, m.Questions, 1)
	assert.Equal(t, reverseV6Name, m.Questions[0].Name)
}

func TestDNS64PTROutsidePrefixNotRemapped(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	engine := newDNS64Engine(t, store, router, false)

	// Reverse name of 2001:db8::1 lies outside the NAT64 prefix.
	foreign := "1.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.8.b.d.0.1.0.0.2.ip6.arpa"
	ptr := positive(foreign, dns.TypePTR, 120, "real.example", dns.QRFlag, testNow)
	store.add(ptr)
	router.onStart = func(q *resolvers.Question) {
		require.Equal(t, foreign, q.Name) // untouched
		q.Callback(q, ptr, true)
	}

	w := &fakePacketWriter{}
	engine.OnUDPMessage(buildQuery(t, 0x6468, dns.RDFlag, foreign, dns.TypePTR, 0),
		clientAddr, testInputIface, w)

	require.Len(t, w.msgs, 1)
	m, err := dns.ParseMessage(w.msgs[0])
	require.NoError(t, err)
	require.Len(t, m.Answers, 1)
	assert.Equal(t, dns.TypePTR, m.Answers[0].Type)
}

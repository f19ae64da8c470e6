package resolvers

import (
	"context"
	"log/slog"

	"github.com/jroosing/relaydns/internal/dns"
)

// Core runs the resolver event loop. All question callbacks are delivered
// serially on the loop goroutine; callers outside the loop hand work in
// with Submit. StartQuestion and StopQuestion must be invoked on the loop
// (directly from a callback, or from a submitted function).
type Core struct {
	logger   *slog.Logger
	cache    *Cache
	upstream *Upstream

	events chan func()
	active map[*Question]struct{}
}

// New creates a resolver core around the given cache and upstream.
func New(cache *Cache, upstream *Upstream, logger *slog.Logger) *Core {
	return &Core{
		logger:   logger,
		cache:    cache,
		upstream: upstream,
		events:   make(chan func(), 1024),
		active:   make(map[*Question]struct{}),
	}
}

// Run drains the event loop until the context is cancelled.
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.events:
			fn()
		}
	}
}

// Submit schedules fn on the event loop.
func (c *Core) Submit(fn func()) {
	c.events <- fn
}

// Lock acquires the shared cache lock.
func (c *Core) Lock() { c.cache.Lock() }

// Unlock releases the shared cache lock.
func (c *Core) Unlock() { c.cache.Unlock() }

// Now returns the resolver clock in seconds.
func (c *Core) Now() int64 { return c.cache.Now() }

// CacheGroupForName exposes the cache group for an owner name. The caller
// must hold the cache lock.
func (c *Core) CacheGroupForName(name string) *CacheGroup {
	return c.cache.CacheGroupForName(name)
}

// StartQuestion activates a question. Answers already in cache are
// delivered immediately; otherwise an upstream exchange starts and its
// outcome is delivered when it completes.
func (c *Core) StartQuestion(q *Question) {
	c.active[q] = struct{}{}

	// Serve from cache only when the chain reaches a terminal record;
	// a dangling intermediate means the upstream still has to answer.
	hits := c.cacheHits(q)
	if len(hits) > 0 {
		last := hits[len(hits)-1]
		if last.Negative || last.Rrtype == q.Qtype {
			c.deliver(q, hits)
			return
		}
	}
	go c.resolve(q)
}

// StopQuestion deactivates a question. Pending deliveries for it are
// dropped; an exchange still in flight completes, but its reply is
// neither cached nor delivered unless the question has been started again.
func (c *Core) StopQuestion(q *Question) {
	delete(c.active, q)
}

func (c *Core) isActive(q *Question) bool {
	_, ok := c.active[q]
	return ok
}

// maxAliasHops bounds CNAME chain walking during cache collection.
const maxAliasHops = 8

// cacheHits collects cached records answering q, under the cache lock.
// CNAME aliases are followed so the terminal record of a chain is
// delivered along with its intermediates.
func (c *Core) cacheHits(q *Question) []*CacheRecord {
	c.cache.Lock()
	defer c.cache.Unlock()

	var hits []*CacheRecord
	name := q.Name
	for hop := 0; hop <= maxAliasHops; hop++ {
		group := c.cache.CacheGroupForName(name)
		if group == nil {
			return hits
		}
		var alias string
		for _, cr := range group.Members {
			if cr.Rrclass != q.Qclass || !dns.EqualNames(cr.Name, name) {
				continue
			}
			if cr.Negative {
				if cr.Rrtype == q.Qtype {
					hits = append(hits, cr)
				}
				continue
			}
			if cr.Rrtype == q.Qtype {
				hits = append(hits, cr)
			} else if cr.Rrtype == dns.TypeCNAME {
				hits = append(hits, cr)
				if target, ok := cr.Data.(string); ok {
					alias = target
				}
			}
		}
		if alias == "" || q.Qtype == dns.TypeCNAME {
			return hits
		}
		name = alias
	}
	return hits
}

// resolve performs the upstream exchange off-loop and posts the result
// back for cache population and delivery.
func (c *Core) resolve(q *Question) {
	reply, err := c.upstream.Exchange(q)
	c.Submit(func() { c.finish(q, reply, err) })
}

func (c *Core) finish(q *Question, reply dns.Message, err error) {
	if !c.isActive(q) {
		return
	}

	if err != nil {
		if c.logger != nil {
			c.logger.Warn("upstream exchange failed", "qname", q.Name, "qtype", uint16(q.Qtype), "err", err)
		}
		if q.TimeoutQuestion {
			q.ResponseFlags = dns.QRFlag | uint16(dns.RCodeServFail)
			c.deliver(q, []*CacheRecord{c.syntheticNegative(q)})
		}
		return
	}

	q.ResponseFlags = reply.Header.Flags

	rcode := dns.RCodeFromFlags(reply.Header.Flags)
	if rcode != dns.RCodeNoError && rcode != dns.RCodeNXDomain {
		// Upstream failures are not cached; surface them directly.
		c.deliver(q, []*CacheRecord{c.syntheticNegative(q)})
		return
	}

	records := c.recordsFromReply(q, reply)
	c.cache.Store(records)
	c.deliver(q, c.cacheHits(q))
}

// deliver fires the question callback once per record, stopping early if
// a callback retires the question.
func (c *Core) deliver(q *Question, records []*CacheRecord) {
	for _, cr := range records {
		if !c.isActive(q) {
			return
		}
		if !q.ReturnIntermediates && (cr.Negative || cr.Rrtype != q.Qtype) {
			continue
		}
		q.Callback(q, cr, true)
	}
}

// syntheticNegative builds an uncached negative marker used when an
// exchange fails outright; the consumer sees "no data" and packages the
// question's failure rcode from ResponseFlags.
func (c *Core) syntheticNegative(q *Question) *CacheRecord {
	return &CacheRecord{
		Name:          q.Name,
		Rrtype:        q.Qtype,
		Rrclass:       q.Qclass,
		OriginalTTL:   servfailMarkerTTL,
		Negative:      true,
		TimeRcvd:      c.cache.Now(),
		ResponseFlags: q.ResponseFlags,
	}
}

// recordsFromReply converts an upstream reply into cache records: one per
// answer record, plus a negative marker (with the authority SOA as a side
// pointer) for NXDOMAIN and NODATA outcomes.
func (c *Core) recordsFromReply(q *Question, reply dns.Message) []*CacheRecord {
	now := c.cache.Now()
	flags := reply.Header.Flags

	var out []*CacheRecord
	for _, rr := range reply.Answers {
		if rr.Type == dns.TypeOPT {
			continue
		}
		out = append(out, &CacheRecord{
			Name:          rr.Name,
			Rrtype:        rr.Type,
			Rrclass:       rr.Class,
			OriginalTTL:   rr.TTL,
			Data:          rr.Data,
			TimeRcvd:      now,
			ResponseFlags: flags,
		})
	}

	nxdomain := dns.RCodeFromFlags(flags) == dns.RCodeNXDomain
	if nxdomain || len(out) == 0 {
		marker := &CacheRecord{
			Name:          q.Name,
			Rrtype:        q.Qtype,
			Rrclass:       q.Qclass,
			OriginalTTL:   defaultNegTTL,
			Negative:      true,
			TimeRcvd:      now,
			ResponseFlags: flags,
		}
		for _, rr := range reply.Authorities {
			if rr.Type != dns.TypeSOA {
				continue
			}
			soaData, ok := rr.Data.(dns.SOAData)
			if !ok {
				continue
			}
			marker.SOA = &CacheRecord{
				Name:          rr.Name,
				Rrtype:        rr.Type,
				Rrclass:       rr.Class,
				OriginalTTL:   rr.TTL,
				Data:          rr.Data,
				TimeRcvd:      now,
				ResponseFlags: flags,
			}
			marker.OriginalTTL = min(rr.TTL, soaData.Minimum)
			break
		}
		out = append(out, marker)
	}
	return out
}

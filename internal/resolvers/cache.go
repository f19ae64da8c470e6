package resolvers

import (
	"container/list"
	"sync"
	"time"

	"github.com/jroosing/relaydns/internal/dns"
)

// Cache TTL policy.
const (
	defaultMaxGroups  = 4096
	maxPositiveTTL    = 24 * 3600 // seconds
	maxNegativeTTL    = 3600
	defaultNegTTL     = 300 // RFC 2308 fallback when no SOA minimum
	servfailMarkerTTL = 30
)

// Cache holds records grouped by owner name with LRU eviction and lazy
// expiry. Consumers walking a group hold the cache lock for the duration
// of the walk and must not retain record pointers past unlock.
type Cache struct {
	mu sync.Mutex

	maxGroups int
	lru       *list.List              // front = oldest group
	groups    map[string]*cacheBucket // normalized owner name -> bucket
}

type cacheBucket struct {
	group CacheGroup
	elem  *list.Element
}

// NewCache creates a cache bounded to maxGroups owner names.
// maxGroups <= 0 selects the default bound.
func NewCache(maxGroups int) *Cache {
	if maxGroups <= 0 {
		maxGroups = defaultMaxGroups
	}
	return &Cache{
		maxGroups: maxGroups,
		lru:       list.New(),
		groups:    make(map[string]*cacheBucket),
	}
}

// Lock acquires the cache lock. Paired with Unlock around group walks.
func (c *Cache) Lock() { c.mu.Lock() }

// Unlock releases the cache lock.
func (c *Cache) Unlock() { c.mu.Unlock() }

// Now returns the cache clock in seconds.
func (c *Cache) Now() int64 { return time.Now().Unix() }

// CacheGroupForName returns the group for the given owner name, or nil.
// The caller must hold the cache lock. Expired members are dropped before
// the group is returned; a group emptied by expiry reads as absent.
func (c *Cache) CacheGroupForName(name string) *CacheGroup {
	b := c.groups[dns.NormalizeName(name)]
	if b == nil {
		return nil
	}
	now := c.Now()
	kept := b.group.Members[:0]
	for _, cr := range b.group.Members {
		if remainingTTL(cr, now) > 0 {
			kept = append(kept, cr)
		}
	}
	b.group.Members = kept
	if len(kept) == 0 {
		c.dropLocked(b)
		return nil
	}
	c.lru.MoveToBack(b.elem)
	return &b.group
}

// Store inserts records into their owner-name groups. Existing members
// with the same (name, type, class) as an incoming record are replaced as
// a set, so a fresh answer displaces the previous RRset (and a negative
// marker displaces stale positives of its type, and vice versa).
func (c *Cache) Store(records []*CacheRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type rrsetKey struct {
		name   string
		rrtype dns.RecordType
		class  dns.RecordClass
	}
	purged := make(map[rrsetKey]bool)

	for _, cr := range records {
		key := dns.NormalizeName(cr.Name)
		b := c.groups[key]
		if b == nil {
			b = &cacheBucket{group: CacheGroup{Name: cr.Name}}
			b.elem = c.lru.PushBack(key)
			c.groups[key] = b
			c.evictLocked()
		}

		rk := rrsetKey{name: key, rrtype: cr.Rrtype, class: cr.Rrclass}
		if !purged[rk] {
			kept := b.group.Members[:0]
			for _, old := range b.group.Members {
				if old.Rrtype == cr.Rrtype && old.Rrclass == cr.Rrclass {
					continue
				}
				kept = append(kept, old)
			}
			b.group.Members = kept
			purged[rk] = true
		}

		b.group.Members = append(b.group.Members, cr)
		c.lru.MoveToBack(b.elem)
	}
}

func (c *Cache) dropLocked(b *cacheBucket) {
	c.lru.Remove(b.elem)
	delete(c.groups, dns.NormalizeName(b.group.Name))
}

func (c *Cache) evictLocked() {
	for len(c.groups) > c.maxGroups {
		front := c.lru.Front()
		if front == nil {
			return
		}
		key := front.Value.(string)
		c.lru.Remove(front)
		delete(c.groups, key)
	}
}

// remainingTTL returns the record's aged TTL in seconds, zero or below
// meaning expired.
func remainingTTL(cr *CacheRecord, now int64) int64 {
	ttl := int64(cr.OriginalTTL)
	switch {
	case cr.Negative && ttl > maxNegativeTTL:
		ttl = maxNegativeTTL
	case !cr.Negative && ttl > maxPositiveTTL:
		ttl = maxPositiveTTL
	}
	return ttl - (now - cr.TimeRcvd)
}

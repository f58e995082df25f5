// Package hostcache resolves a host's names into addresses, caching the
// result with a 15-second TTL (spec.md §4.5). Grounded on
// controlplane/telemetry/cmd/geoprobe-agent's hand-rolled offsetCache
// (RWMutex-guarded map with a maxAge eviction rule) for shape, superseded
// here by the jellydator/ttlcache library the wider pack already depends on
// for the same kind of problem.
package hostcache

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/malbeclabs/doublezero/internal/hostprovider"
)

// defaultTTL is the eviction age for a cached resolution result, per
// spec.md §4.5: "evict_old() removes entries whose last_access is older
// than 15 seconds."
const defaultTTL = 15 * time.Second

// NameError records a single failed name resolution within a host's
// otherwise-successful lookup.
type NameError struct {
	Name    string
	Message string
}

// Resolution is the outcome of resolving every name belonging to a host: a
// sorted, deduplicated set of addresses plus any per-name errors. It's
// immutable once constructed and safe to share across readers.
type Resolution struct {
	Addresses []net.IP
	Errors    []NameError
}

// Equal reports whether two resolutions have the same address set (used by
// the scheduler to detect resolution changes per spec.md §4.6 point 2).
// Name errors are not compared — only the addresses that affect task
// scheduling matter for change detection.
func (r Resolution) Equal(other Resolution) bool {
	if len(r.Addresses) != len(other.Addresses) {
		return false
	}
	for i, a := range r.Addresses {
		if !a.Equal(other.Addresses[i]) {
			return false
		}
	}
	return true
}

// Resolver resolves a single name into zero or more addresses. The default
// is net.DefaultResolver.LookupIPAddr; tests substitute a fake.
type Resolver func(ctx context.Context, name string) ([]net.IP, error)

// DefaultResolver resolves name via the standard library's resolver.
func DefaultResolver(ctx context.Context, name string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, name)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

// Cache resolves hostprovider.Host values into Resolutions, caching each
// result by HostID with a TTL. Concurrent Gets for a host that is not yet
// cached are not merged: each starts its own resolution, and the last one
// to finish is the result left in the cache.
type Cache struct {
	cache    *ttlcache.Cache[hostprovider.HostID, Resolution]
	resolver Resolver
}

// New constructs a Cache with the given resolver (pass nil for
// DefaultResolver).
func New(resolver Resolver) *Cache {
	if resolver == nil {
		resolver = DefaultResolver
	}
	c := ttlcache.New[hostprovider.HostID, Resolution](
		ttlcache.WithTTL[hostprovider.HostID, Resolution](defaultTTL),
	)
	return &Cache{cache: c, resolver: resolver}
}

// Lookup is a pending or ready resolution, mirroring spec.md §4.5's
// `get(host) -> Lookup`: Get() blocks until the resolution is available,
// whether it was already cached (ready) or just kicked off (pending).
type Lookup struct {
	done   chan struct{}
	result Resolution
}

// Get blocks until the resolution completes or ctx is canceled.
func (l *Lookup) Get(ctx context.Context) (Resolution, error) {
	select {
	case <-l.done:
		return l.result, nil
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	}
}

// Get returns a ready Lookup if host.ID is cached, refreshing its
// last-access time; otherwise it spawns a resolution over host.Names and
// returns a pending Lookup. Each of host.Names is resolved independently so
// one bad name doesn't block the others (spec.md §4.5).
func (c *Cache) Get(ctx context.Context, host hostprovider.Host) *Lookup {
	if item := c.cache.Get(host.ID); item != nil {
		l := &Lookup{done: make(chan struct{})}
		l.result = item.Value()
		close(l.done)
		return l
	}

	l := &Lookup{done: make(chan struct{})}
	go func() {
		defer close(l.done)
		res := c.resolveHost(ctx, host)
		l.result = res
		c.cache.Set(host.ID, res, defaultTTL)
	}()
	return l
}

func (c *Cache) resolveHost(ctx context.Context, host hostprovider.Host) Resolution {
	var res Resolution
	seen := make(map[string]net.IP)
	for _, name := range host.Names {
		ips, err := c.resolver(ctx, name)
		if err != nil {
			res.Errors = append(res.Errors, NameError{Name: name, Message: err.Error()})
			continue
		}
		for _, ip := range ips {
			seen[ip.String()] = ip
		}
	}
	for _, ip := range seen {
		res.Addresses = append(res.Addresses, ip)
	}
	sort.Slice(res.Addresses, func(i, j int) bool {
		return res.Addresses[i].String() < res.Addresses[j].String()
	})
	return res
}

// EvictOld removes entries untouched for longer than the TTL. ttlcache
// already expires entries lazily on Get and via its own background janitor
// once Start is called; EvictOld additionally forces a sweep on the
// scheduler's own tick cadence, matching spec.md §4.6 point 1 ("Tick: evict
// the name cache...").
func (c *Cache) EvictOld() {
	c.cache.DeleteExpired()
}

// Start runs the cache's background expiration goroutine until ctx is
// canceled.
func (c *Cache) Start(ctx context.Context) {
	go c.cache.Start()
	go func() {
		<-ctx.Done()
		c.cache.Stop()
	}()
}

package probescheduler

import (
	"net/netip"
	"sort"
	"sync"

	"github.com/malbeclabs/doublezero/internal/hostprovider"
)

// hostSnapshot holds one host's published Pinged state behind its own
// mutex, so a reader of one host never blocks on writes to another —
// spec.md §4.7's "single-host locking is sufficient" requirement.
type hostSnapshot struct {
	mu     sync.Mutex
	pinged Pinged
}

// SnapshotStore is the scheduler's published view: one Pinged per tracked
// host, readable by presenters concurrently with the scheduler's own
// writes. Grounded on client/doublezerod/internal/probing's routeStore,
// which the same package uses to publish live route state behind a
// similar two-tier (map-level, then per-entry) lock.
type SnapshotStore struct {
	mu    sync.RWMutex
	hosts map[hostprovider.HostID]*hostSnapshot
}

// NewSnapshotStore constructs an empty SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{hosts: make(map[hostprovider.HostID]*hostSnapshot)}
}

func (s *SnapshotStore) getOrCreate(host hostprovider.HostID) *hostSnapshot {
	s.mu.RLock()
	h, ok := s.hosts[host]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hosts[host]; ok {
		return h
	}
	h = &hostSnapshot{}
	s.hosts[host] = h
	return h
}

// Result records a reply, replacing any prior result for the same target
// and pruning any address-scoped error for that target — per spec.md
// §6.2, a target has at most one outstanding outcome at a time.
func (s *SnapshotStore) Result(host hostprovider.HostID, r PingResult) {
	h := s.getOrCreate(host)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pinged.Errors = pruneErrorsForTarget(h.pinged.Errors, r.Target)
	h.pinged.Results = upsertResult(h.pinged.Results, r)
}

// Error records an address- or host-scoped error. An address-scoped error
// also prunes any existing result for that target, since the two are
// mutually exclusive outcomes for one target.
func (s *SnapshotStore) Error(host hostprovider.HostID, e PingError) {
	h := s.getOrCreate(host)
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.Kind == ErrorKindAddress {
		h.pinged.Results = pruneResultsForTarget(h.pinged.Results, e.Target)
	}
	h.pinged.Errors = upsertError(h.pinged.Errors, e)
}

// ClearHost wipes a host's published results and errors, without removing
// the host entry itself — used when a resolution change invalidates all
// prior state for the host (spec.md §4.6 point 2).
func (s *SnapshotStore) ClearHost(host hostprovider.HostID) {
	h := s.getOrCreate(host)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pinged = Pinged{}
}

// RemoveHost deletes a host's entry entirely — used when the host
// disappears from the provider (spec.md §4.6 point 1).
func (s *SnapshotStore) RemoveHost(host hostprovider.HostID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hosts, host)
}

// Snapshot returns a copy of host's current Pinged state.
func (s *SnapshotStore) Snapshot(host hostprovider.HostID) (Pinged, bool) {
	s.mu.RLock()
	h, ok := s.hosts[host]
	s.mu.RUnlock()
	if !ok {
		return Pinged{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return Pinged{
		Results: append([]PingResult(nil), h.pinged.Results...),
		Errors:  append([]PingError(nil), h.pinged.Errors...),
	}, true
}

// All returns a copy of every tracked host's Pinged state.
func (s *SnapshotStore) All() map[hostprovider.HostID]Pinged {
	s.mu.RLock()
	ids := make([]hostprovider.HostID, 0, len(s.hosts))
	for id := range s.hosts {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make(map[hostprovider.HostID]Pinged, len(ids))
	for _, id := range ids {
		if p, ok := s.Snapshot(id); ok {
			out[id] = p
		}
	}
	return out
}

func pruneErrorsForTarget(errs []PingError, target netip.Addr) []PingError {
	out := errs[:0:0]
	for _, e := range errs {
		if e.matchesTarget(target) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func pruneResultsForTarget(results []PingResult, target netip.Addr) []PingResult {
	out := results[:0:0]
	for _, r := range results {
		if r.Target == target {
			continue
		}
		out = append(out, r)
	}
	return out
}

func upsertResult(results []PingResult, r PingResult) []PingResult {
	for i, existing := range results {
		if existing.Target == r.Target {
			results[i] = r
			return results
		}
	}
	results = append(results, r)
	sort.Slice(results, func(i, j int) bool {
		return results[i].Target.String() < results[j].Target.String()
	})
	return results
}

func upsertError(errs []PingError, e PingError) []PingError {
	for i, existing := range errs {
		if existing.Kind == e.Kind && existing.Target == e.Target && existing.Host == e.Host {
			errs[i] = e
			return errs
		}
	}
	errs = append(errs, e)
	return errs
}

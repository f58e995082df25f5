// Package probescheduler implements the per-(host,address) ping/timeout
// state machine, deadline queue, deferred-token correlation map, and
// snapshot store described in spec.md §4.6-4.7. Grounded throughout on
// client/doublezerod/internal/probing (scheduler.go, worker.go, store.go,
// liveness.go, limiter.go, config.go), adapted from that package's
// route-liveness reprobe model to this spec's Ping/Timeout/deferred-token
// model.
package probescheduler

import (
	"net"
	"net/netip"
	"time"

	"github.com/malbeclabs/doublezero/internal/hostprovider"
	"github.com/malbeclabs/doublezero/internal/icmpcore"
)

// TaskState is a per-(host,address) task's position in the Ping -> Timeout
// -> Ping cycle (spec.md §4.6).
type TaskState int

const (
	TaskPing TaskState = iota
	TaskTimeout
)

func (s TaskState) String() string {
	if s == TaskTimeout {
		return "timeout"
	}
	return "ping"
}

// TaskKey identifies one probe task: a host and one of its resolved
// addresses. netip.Addr (rather than net.IP) is used because it's
// comparable and therefore usable directly as a map key, following
// client/doublezerod/internal/probing/store.go's RouteKey.
type TaskKey struct {
	Host hostprovider.HostID
	Addr netip.Addr
}

// deferredEntry is a live, in-flight echo request: a token awaiting either
// a reply or a timeout. Per spec.md §3, a token is live iff its task has
// transitioned from Ping to Timeout.
type deferredEntry struct {
	Key       TaskKey
	StartedAt time.Time
}

// ErrorKind distinguishes an address-scoped error from a host-scoped one
// (spec.md §6.2).
type ErrorKind int

const (
	ErrorKindAddress ErrorKind = iota
	ErrorKindHost
)

// PingError is one entry in a host's published error list.
type PingError struct {
	Kind    ErrorKind
	Target  netip.Addr // valid when Kind == ErrorKindAddress
	Host    string     // valid when Kind == ErrorKindHost
	Message string
	Sampled time.Time
}

func (e PingError) matchesTarget(target netip.Addr) bool {
	return e.Kind == ErrorKindAddress && e.Target == target
}

// PingResult is one entry in a host's published result list, matching the
// Reply consumer schema in spec.md §6.2.
type PingResult struct {
	Kind             icmpcore.Family
	Outcome          icmpcore.Outcome
	Code             uint8
	Sequence         uint16
	RTT              time.Duration
	Sampled          time.Time
	Target           netip.Addr
	Source           netip.Addr
	Dest             netip.Addr
	Checksum         uint16
	ExpectedChecksum uint16
}

// Pinged is the per-host snapshot published by the scheduler and read by
// external presenters (spec.md §4.7, §6.2). For any address, at most one of
// Results/Errors holds an entry keyed by that address at any time.
type Pinged struct {
	Results []PingResult
	Errors  []PingError
}

// netipFromIP converts a net.IP (as returned by hostcache.Resolution) into
// a netip.Addr for use as a map key. 4-in-6 addresses are unmapped to their
// 4-byte form so the same host never yields two distinct keys for one
// address.
func netipFromIP(ip net.IP) (netip.Addr, bool) {
	a, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

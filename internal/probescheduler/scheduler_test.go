package probescheduler

import (
	"log/slog"
	"math/rand"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/doublezero/internal/hostcache"
	"github.com/malbeclabs/doublezero/internal/hostprovider"
	"github.com/malbeclabs/doublezero/internal/icmpcore"
	"github.com/stretchr/testify/require"
)

// newTestScheduler builds a Scheduler directly, bypassing New/Config.Validate
// so tests can exercise the pure event handlers without a live Pinger or
// Cache — neither onResolution, onReply, nor the non-unicast short-circuit
// of dispatchPing touch cfg.Pinger or cfg.Cache.
func newTestScheduler(t *testing.T, clock clockwork.Clock) *Scheduler {
	t.Helper()
	return &Scheduler{
		cfg: Config{
			Clock:         clock,
			Logger:        slog.Default(),
			RetryInterval: time.Second,
			ProbeTimeout:  10 * time.Second,
		},
		store:        newTaskStore(),
		snapshots:    NewSnapshotStore(),
		metrics:      NewMetrics(nil),
		deferred:     make(map[uint64]deferredEntry),
		lastRes:      make(map[hostprovider.HostID]hostcache.Resolution),
		lastSeen:     make(map[hostprovider.HostID]hostprovider.Host),
		limiter:      NewLimiter(0),
		tokens:       rand.New(rand.NewSource(1)),
		replyCh:      make(chan replyEvent, 8),
		resolutionCh: make(chan resolutionEvent, 8),
		sendBuf:      icmpcore.NewBuffer(),
	}
}

func TestOnResolution_SchedulesPingPerAddress(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(t, clock)

	host := hostprovider.NewHost([]string{"a.example"}, nil)
	res := hostcache.Resolution{Addresses: []net.IP{net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2")}}

	s.onResolution(resolutionEvent{host: host, res: res})

	require.Equal(t, 2, s.store.Len())
	key := TaskKey{Host: host.ID, Addr: netip.MustParseAddr("10.0.0.1")}
	state, ok := s.store.Get(key)
	require.True(t, ok)
	require.Equal(t, TaskPing, state)
}

func TestOnResolution_UnchangedResolutionIsNoop(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(t, clock)

	host := hostprovider.NewHost([]string{"a.example"}, nil)
	res := hostcache.Resolution{Addresses: []net.IP{net.ParseIP("10.0.0.1")}}
	s.onResolution(resolutionEvent{host: host, res: res})

	key := TaskKey{Host: host.ID, Addr: netip.MustParseAddr("10.0.0.1")}
	s.store.Upsert(key, clock.Now().Add(time.Hour), TaskTimeout)

	s.onResolution(resolutionEvent{host: host, res: res})

	state, ok := s.store.Get(key)
	require.True(t, ok)
	require.Equal(t, TaskTimeout, state, "unchanged resolution must not touch the existing task")
}

func TestOnResolution_ChangedResolutionWipesStaleAddress(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(t, clock)

	host := hostprovider.NewHost([]string{"a.example"}, nil)
	s.onResolution(resolutionEvent{host: host, res: hostcache.Resolution{
		Addresses: []net.IP{net.ParseIP("10.0.0.1")},
	}})
	staleKey := TaskKey{Host: host.ID, Addr: netip.MustParseAddr("10.0.0.1")}
	s.deferred[42] = deferredEntry{Key: staleKey, StartedAt: clock.Now()}
	s.snapshots.Result(host.ID, PingResult{Target: staleKey.Addr, Sampled: clock.Now()})

	s.onResolution(resolutionEvent{host: host, res: hostcache.Resolution{
		Addresses: []net.IP{net.ParseIP("10.0.0.2")},
	}})

	_, ok := s.store.Get(staleKey)
	require.False(t, ok, "stale address's task must be removed")
	_, ok = s.deferred[42]
	require.False(t, ok, "stale address's deferred token must be removed")

	p, _ := s.snapshots.Snapshot(host.ID)
	require.Empty(t, p.Results, "snapshot must be wiped on resolution change")

	newKey := TaskKey{Host: host.ID, Addr: netip.MustParseAddr("10.0.0.2")}
	_, ok = s.store.Get(newKey)
	require.True(t, ok, "new address must get a fresh Ping task")
}

func TestOnResolution_HostErrorPublishesHostScopedError(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(t, clock)
	host := hostprovider.NewHost([]string{"a.example"}, nil)

	s.onResolution(resolutionEvent{host: host, err: net.UnknownNetworkError("boom")})

	p, ok := s.snapshots.Snapshot(host.ID)
	require.True(t, ok)
	require.Len(t, p.Errors, 1)
	require.Equal(t, ErrorKindHost, p.Errors[0].Kind)
}

func TestOnReply_MatchesDeferredTokenAndReschedules(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(t, clock)

	host := hostprovider.NewHostID([]string{"a"}, nil)
	key := TaskKey{Host: host, Addr: netip.MustParseAddr("10.0.0.1")}
	s.store.Upsert(key, clock.Now().Add(time.Second), TaskTimeout)
	s.deferred[7] = deferredEntry{Key: key, StartedAt: clock.Now()}

	clock.Advance(50 * time.Millisecond)
	s.onReply(replyEvent{result: &icmpcore.RecvResult{
		Response: icmpcore.Response{Outcome: icmpcore.OutcomeReply, Sequence: 1},
		Token:    7,
	}})

	_, stillDeferred := s.deferred[7]
	require.False(t, stillDeferred)

	state, ok := s.store.Get(key)
	require.True(t, ok)
	require.Equal(t, TaskPing, state)

	p, ok := s.snapshots.Snapshot(host)
	require.True(t, ok)
	require.Len(t, p.Results, 1)
	require.Equal(t, 50*time.Millisecond, p.Results[0].RTT)

	deadline, ok := s.store.PeekDeadline()
	require.True(t, ok)
	require.Equal(t, clock.Now().Add(950*time.Millisecond), deadline,
		"reschedule must land at started_at+1s, not now+RetryInterval")
}

func TestOnReply_SlowReplyReprobesImmediately(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(t, clock)

	host := hostprovider.NewHostID([]string{"a"}, nil)
	key := TaskKey{Host: host, Addr: netip.MustParseAddr("10.0.0.1")}
	startedAt := clock.Now()
	s.store.Upsert(key, startedAt.Add(2*time.Second), TaskTimeout)
	s.deferred[7] = deferredEntry{Key: key, StartedAt: startedAt}

	clock.Advance(2 * time.Second)
	s.onReply(replyEvent{result: &icmpcore.RecvResult{
		Response: icmpcore.Response{Outcome: icmpcore.OutcomeReply, Sequence: 1},
		Token:    7,
	}})

	deadline, ok := s.store.PeekDeadline()
	require.True(t, ok)
	require.Equal(t, clock.Now(), deadline,
		"an RTT >= 1s must reprobe immediately rather than waiting another RetryInterval")
}

func TestOnReply_UnknownTokenIsDropped(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(t, clock)

	s.onReply(replyEvent{result: &icmpcore.RecvResult{Token: 999}})

	require.Equal(t, 0, s.store.Len())
}

func TestOnDeadline_TimeoutReschedulesToPingAndPublishesError(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(t, clock)

	host := hostprovider.NewHostID([]string{"a"}, nil)
	key := TaskKey{Host: host, Addr: netip.MustParseAddr("10.0.0.1")}
	s.store.Upsert(key, clock.Now(), TaskTimeout)

	s.onDeadline(clock.Now())

	state, ok := s.store.Get(key)
	require.True(t, ok)
	require.Equal(t, TaskPing, state)

	p, _ := s.snapshots.Snapshot(host)
	require.Len(t, p.Errors, 1)
	require.Equal(t, "timeout", p.Errors[0].Message)
}

func TestDispatchPing_SkipsNonUnicastWithoutTouchingPinger(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(t, clock)

	host := hostprovider.NewHostID([]string{"a"}, nil)
	key := TaskKey{Host: host, Addr: netip.MustParseAddr("127.0.0.1")}

	// cfg.Pinger is nil; if dispatchPing reached the send path this would
	// panic, proving the unicast-eligibility check short-circuits first.
	s.dispatchPing(key, clock.Now())

	_, ok := s.store.Get(key)
	require.False(t, ok)
	require.Empty(t, s.deferred)
}

func TestForgetHost_RemovesAllTraces(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(t, clock)

	host := hostprovider.NewHost([]string{"a"}, nil)
	key := TaskKey{Host: host.ID, Addr: netip.MustParseAddr("10.0.0.1")}
	s.store.Upsert(key, clock.Now(), TaskPing)
	s.deferred[1] = deferredEntry{Key: key, StartedAt: clock.Now()}
	s.lastRes[host.ID] = hostcache.Resolution{}
	s.lastSeen[host.ID] = host
	s.snapshots.Result(host.ID, PingResult{Target: key.Addr, Sampled: clock.Now()})

	s.forgetHost(host.ID)

	require.Equal(t, 0, s.store.Len())
	require.Empty(t, s.deferred)
	require.NotContains(t, s.lastRes, host.ID)
	require.NotContains(t, s.lastSeen, host.ID)
	_, ok := s.snapshots.Snapshot(host.ID)
	require.False(t, ok)
}

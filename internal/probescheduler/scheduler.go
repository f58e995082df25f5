package probescheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"net"
	"net/netip"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/doublezero/internal/hostcache"
	"github.com/malbeclabs/doublezero/internal/hostprovider"
	"github.com/malbeclabs/doublezero/internal/icmpcore"
)

// replyEvent carries a decoded pinger result into the scheduler's run loop.
type replyEvent struct {
	result *icmpcore.RecvResult
}

// resolutionEvent carries a completed (or failed) host resolution into the
// scheduler's run loop.
type resolutionEvent struct {
	host hostprovider.Host
	res  hostcache.Resolution
	err  error
}

// Scheduler is the cooperative, single-goroutine event loop described in
// spec.md §4.6: it owns the task store and the deferred-token map
// exclusively, so neither needs its own lock beyond what taskStore already
// provides for the benefit of metrics/test readers. Grounded on
// client/doublezerod/internal/probing's scheduler.go+worker.go pair
// (a single owning goroutine multiplexing ticks, replies, and deadlines
// over a select loop), generalized from that package's route-liveness
// reprobe state machine to this spec's Ping/Timeout/deferred-token model.
type Scheduler struct {
	cfg       Config
	store     *taskStore
	snapshots *SnapshotStore
	metrics   *Metrics

	deferred map[uint64]deferredEntry
	lastRes  map[hostprovider.HostID]hostcache.Resolution
	lastSeen map[hostprovider.HostID]hostprovider.Host

	limiter *Limiter
	tokens  *rand.Rand

	replyCh      chan replyEvent
	resolutionCh chan resolutionEvent

	sendBuf *icmpcore.Buffer
}

// New constructs a Scheduler from cfg, which is validated (and defaulted)
// in place.
func New(cfg Config, metrics *Metrics) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Scheduler{
		cfg:          cfg,
		store:        newTaskStore(),
		snapshots:    NewSnapshotStore(),
		metrics:      metrics,
		deferred:     make(map[uint64]deferredEntry),
		lastRes:      make(map[hostprovider.HostID]hostcache.Resolution),
		lastSeen:     make(map[hostprovider.HostID]hostprovider.Host),
		limiter:      NewLimiter(cfg.MaxConcurrentResolutions),
		tokens:       rand.New(rand.NewSource(time.Now().UnixNano())),
		replyCh:      make(chan replyEvent, defaultReplyBuffer),
		resolutionCh: make(chan resolutionEvent, defaultReplyBuffer),
		sendBuf:      icmpcore.NewBuffer(),
	}, nil
}

// Snapshots returns the scheduler's published state store. Safe to read
// concurrently with Run.
func (s *Scheduler) Snapshots() *SnapshotStore {
	return s.snapshots
}

func (s *Scheduler) log() *slog.Logger { return s.cfg.Logger }

func (s *Scheduler) clock() clockwork.Clock { return s.cfg.Clock }

// nextToken returns a fresh correlation token, vanishingly unlikely to
// collide with any currently-deferred token (spec.md §3: tokens identify
// in-flight requests, not sequence numbers).
func (s *Scheduler) nextToken() uint64 {
	for {
		t := s.tokens.Uint64()
		if _, live := s.deferred[t]; !live {
			return t
		}
	}
}

// onTick re-reads the host provider, prunes vanished hosts, and kicks off
// a bounded-concurrency resolution for every remaining host (spec.md §4.6
// point 1).
func (s *Scheduler) onTick(ctx context.Context) {
	s.cfg.Cache.EvictOld()

	hosts := s.cfg.Provider.Hosts()
	current := make(map[hostprovider.HostID]struct{}, len(hosts))
	for _, h := range hosts {
		current[h.ID] = struct{}{}
	}

	for id := range s.lastSeen {
		if _, ok := current[id]; !ok {
			s.forgetHost(id)
		}
	}

	for _, h := range hosts {
		if h.Ignore {
			continue
		}
		s.lastSeen[h.ID] = h
		host := h
		s.metrics.ResolutionsRun.Inc()
		go func() {
			s.limiter.Acquire()
			defer s.limiter.Release()
			res, err := s.cfg.Cache.Get(ctx, host).Get(ctx)
			select {
			case s.resolutionCh <- resolutionEvent{host: host, res: res, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	s.metrics.TasksActive.Set(float64(s.store.Len()))
}

// forgetHost removes every trace of a host that's disappeared from the
// provider: its tasks, any deferred tokens awaiting a reply for it, its
// resolution memory, and its published snapshot (spec.md §4.6 point 1).
func (s *Scheduler) forgetHost(id hostprovider.HostID) {
	s.store.RemoveHost(id)
	for tok, d := range s.deferred {
		if d.Key.Host == id {
			delete(s.deferred, tok)
		}
	}
	delete(s.lastRes, id)
	delete(s.lastSeen, id)
	s.snapshots.RemoveHost(id)
}

// onResolution applies a completed resolution: if it differs from the
// host's previous resolution, prior tasks/deferred entries/snapshot state
// for the host are wiped, name errors are published, and a fresh Ping task
// is scheduled for every resolved address (spec.md §4.6 point 2).
func (s *Scheduler) onResolution(ev resolutionEvent) {
	now := s.clock().Now()

	if ev.err != nil {
		s.snapshots.Error(ev.host.ID, PingError{
			Kind:    ErrorKindHost,
			Host:    ev.host.String(),
			Message: ev.err.Error(),
			Sampled: now,
		})
		return
	}

	if prev, ok := s.lastRes[ev.host.ID]; ok && prev.Equal(ev.res) {
		return
	}
	s.lastRes[ev.host.ID] = ev.res

	for _, key := range s.store.RemoveHost(ev.host.ID) {
		for tok, d := range s.deferred {
			if d.Key == key {
				delete(s.deferred, tok)
			}
		}
	}
	s.snapshots.ClearHost(ev.host.ID)

	for _, nameErr := range ev.res.Errors {
		s.snapshots.Error(ev.host.ID, PingError{
			Kind:    ErrorKindHost,
			Host:    nameErr.Name,
			Message: nameErr.Message,
			Sampled: now,
		})
	}

	for _, ip := range ev.res.Addresses {
		addr, ok := netipFromIP(ip)
		if !ok {
			continue
		}
		key := TaskKey{Host: ev.host.ID, Addr: addr}
		s.store.Upsert(key, now, TaskPing)
	}
}

// onReply correlates an inbound echo reply/error against the deferred
// token map and, if still live, publishes a result and reschedules the
// task to Ping (spec.md §4.6 point 3).
func (s *Scheduler) onReply(ev replyEvent) {
	r := ev.result
	d, ok := s.deferred[r.Token]
	if !ok {
		s.metrics.RepliesDropped.Inc()
		return
	}
	delete(s.deferred, r.Token)

	if _, stillTracked := s.store.Get(d.Key); !stillTracked {
		return
	}

	now := s.clock().Now()
	s.metrics.RepliesMatched.Inc()

	s.snapshots.Result(d.Key.Host, PingResult{
		Kind:             r.Kind,
		Outcome:          r.Outcome,
		Code:             r.Code,
		Sequence:         r.Sequence,
		RTT:              now.Sub(d.StartedAt),
		Sampled:          now,
		Target:           d.Key.Addr,
		Source:           mustNetip(r.Source),
		Dest:             mustNetip(r.Dest),
		Checksum:         r.Checksum,
		ExpectedChecksum: r.ExpectedChecksum,
	})

	// spec.md §4.6 point 3: reschedule to max(started_at + 1s, now), not a
	// flat now+RetryInterval — a slow reply (RTT >= 1s) is reprobed
	// immediately rather than waiting a further RetryInterval on top of it.
	next := d.StartedAt.Add(time.Second)
	if now.After(next) {
		next = now
	}
	s.store.Upsert(d.Key, next, TaskPing)
}

// onDeadline handles a task whose deadline has arrived: a Ping task sends
// an echo request and becomes a Timeout task; a Timeout task publishes a
// timeout error and becomes a fresh Ping task (spec.md §4.6).
func (s *Scheduler) onDeadline(now time.Time) {
	key, state, ok := s.store.PopDue(now)
	if !ok {
		return
	}

	switch state {
	case TaskPing:
		s.dispatchPing(key, now)
	case TaskTimeout:
		// The timed-out request's token is no longer live: a late reply
		// carrying it must be dropped, not matched.
		for tok, d := range s.deferred {
			if d.Key == key {
				delete(s.deferred, tok)
			}
		}
		s.metrics.Timeouts.Inc()
		s.snapshots.Error(key.Host, PingError{
			Kind:    ErrorKindAddress,
			Target:  key.Addr,
			Message: "timeout",
			Sampled: now,
		})
		s.store.Upsert(key, now.Add(s.cfg.RetryInterval), TaskPing)
	}
}

func (s *Scheduler) dispatchPing(key TaskKey, now time.Time) {
	if !icmpcore.IsUnicastEligible(net.IP(key.Addr.AsSlice())) {
		return
	}

	token := s.nextToken()
	s.sendBuf.Clear()
	_, err := s.cfg.Pinger.Ping(s.sendBuf, net.IP(key.Addr.AsSlice()), token, nil)
	if err != nil {
		s.metrics.SendErrors.Inc()
		s.snapshots.Error(key.Host, PingError{
			Kind:    ErrorKindAddress,
			Target:  key.Addr,
			Message: err.Error(),
			Sampled: now,
		})
		s.store.Upsert(key, now.Add(s.cfg.RetryInterval), TaskPing)
		return
	}

	s.metrics.PingsSent.Inc()
	s.deferred[token] = deferredEntry{Key: key, StartedAt: now}
	s.store.Upsert(key, now.Add(s.cfg.ProbeTimeout), TaskTimeout)
}

func mustNetip(ip net.IP) netip.Addr {
	a, ok := netipFromIP(ip)
	if !ok {
		return netip.Addr{}
	}
	return a
}

package probescheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/malbeclabs/doublezero/internal/icmpcore"
)

// Run drives the scheduler's event loop until ctx is canceled. It starts
// the background reply-receiver goroutines, primes the provider on entry,
// and then multiplexes ticks, resolutions, replies, and task deadlines
// over a single select — the same reset-vs-due-now-race pattern
// client/doublezerod/internal/probing/worker.go uses to avoid missing a
// deadline that lands between two timer resets.
func (s *Scheduler) Run(ctx context.Context) error {
	recvErrCh := s.startReceivers(ctx)

	ticker := s.clock().NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	timer := s.clock().NewTimer(s.cfg.TickInterval)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.Chan()
	}

	s.onTick(ctx)

	for {
		var timerCh <-chan time.Time
		if due, ok := s.store.PeekDeadline(); ok {
			now := s.clock().Now()
			if !due.After(now) {
				s.onDeadline(now)
				continue
			}
			timer.Reset(due.Sub(now))
			timerCh = timer.Chan()
		}

		select {
		case <-ctx.Done():
			return nil
		case err := <-recvErrCh:
			return err
		case <-ticker.Chan():
			s.onTick(ctx)
		case ev := <-s.resolutionCh:
			s.onResolution(ev)
		case ev := <-s.replyCh:
			s.onReply(ev)
		case now := <-timerCh:
			s.onDeadline(now)
		}
	}
}

// startReceivers launches one goroutine per address family, each blocking
// on the pinger's socket and forwarding decoded results onto replyCh until
// ctx is canceled. A readiness-poll failure (spec.md §7: "Receive readiness
// failure | Bubbles up; terminates pinger | Fatal") is sent on the returned
// channel instead, for Run to surface as the loop's terminal error.
func (s *Scheduler) startReceivers(ctx context.Context) <-chan error {
	errCh := make(chan error, 2)
	go s.receiveLoop(ctx, icmpcore.FamilyV4, errCh)
	go s.receiveLoop(ctx, icmpcore.FamilyV6, errCh)
	return errCh
}

func (s *Scheduler) receiveLoop(ctx context.Context, family icmpcore.Family, errCh chan<- error) {
	buf := icmpcore.NewBuffer()
	recv := s.cfg.Pinger.RecvV4
	if family == icmpcore.FamilyV6 {
		recv = s.cfg.Pinger.RecvV6
	}

	for {
		if ctx.Err() != nil {
			return
		}
		buf.Clear()
		result, err := recv(buf)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			var pollErr *icmpcore.PollError
			if errors.As(err, &pollErr) {
				select {
				case errCh <- fmt.Errorf("probescheduler: %s receive: %w", family, err):
				case <-ctx.Done():
				}
				return
			}
			// Decoded-buffer/ancillary-data errors are dropped with a trace
			// per spec.md §7; only readiness-poll failures are fatal.
			s.log().Warn("probescheduler: recv error", "family", family, "error", err)
			continue
		}
		select {
		case s.replyCh <- replyEvent{result: result}:
		case <-ctx.Done():
			return
		}
	}
}

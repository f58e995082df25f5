package probescheduler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/doublezero/internal/hostcache"
	"github.com/malbeclabs/doublezero/internal/hostprovider"
	"github.com/malbeclabs/doublezero/internal/icmpcore"
)

const (
	defaultTickInterval   = 10 * time.Second
	defaultProbeTimeout   = 10 * time.Second
	defaultRetryInterval  = 1 * time.Second
	defaultMaxConcurrency = 64
	defaultReplyBuffer    = 256
)

var (
	ErrMissingProvider = errors.New("probescheduler: config.Provider is required")
	ErrMissingCache    = errors.New("probescheduler: config.Cache is required")
	ErrMissingPinger   = errors.New("probescheduler: config.Pinger is required")
)

// Config configures a Scheduler. Mirrors the Config/Validate shape of
// client/doublezerod/internal/probing.Config and
// controlplane/telemetry/internal/state.CollectorConfig: a plain struct
// with a Validate method that fills in defaults and rejects missing
// required collaborators.
type Config struct {
	// Logger receives structured scheduler events. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock is the time source driving ticks and deadlines. Defaults to
	// clockwork.NewRealClock(); tests substitute a FakeClock.
	Clock clockwork.Clock

	// Provider supplies the current host set. Required.
	Provider hostprovider.Provider

	// Cache resolves host names into addresses. Required.
	Cache *hostcache.Cache

	// Pinger sends and receives ICMP echoes. Required.
	Pinger *icmpcore.Pinger

	// TickInterval is how often the scheduler re-reads Provider and sweeps
	// the name cache (spec.md §4.6 point 1). Defaults to 10s.
	TickInterval time.Duration

	// ProbeTimeout is how long a task waits in state Timeout, after its
	// echo request was sent, before the timeout fires (spec.md §4.6).
	// Defaults to 10s.
	ProbeTimeout time.Duration

	// RetryInterval is how long a task waits in state Ping, after a timeout
	// or a send failure, before the next echo request (spec.md §4.6).
	// Defaults to 1s.
	RetryInterval time.Duration

	// MaxConcurrentResolutions bounds in-flight name resolutions started by
	// ticks. Zero selects the default of 64; a negative value means
	// unlimited.
	MaxConcurrentResolutions int
}

// Validate fills in defaults for unset optional fields and returns an error
// if a required collaborator is missing.
func (c *Config) Validate() error {
	if c.Provider == nil {
		return ErrMissingProvider
	}
	if c.Cache == nil {
		return ErrMissingCache
	}
	if c.Pinger == nil {
		return ErrMissingPinger
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.MaxConcurrentResolutions == 0 {
		c.MaxConcurrentResolutions = defaultMaxConcurrency
	}
	return nil
}

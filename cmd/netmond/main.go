// Command netmond is a demonstration liveness monitor: it resolves a
// fixed set of hosts, pings every resolved address on a schedule, and
// periodically prints each host's published snapshot. Grounded on
// telemetry/global-monitor/cmd/global-monitor/main.go's flag/logger/signal
// wiring, simplified to a single static host set in place of that
// program's on-chain device discovery.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"log/slog"
	"net/http"

	"github.com/malbeclabs/doublezero/internal/hostcache"
	"github.com/malbeclabs/doublezero/internal/hostprovider"
	"github.com/malbeclabs/doublezero/internal/icmpcore"
	"github.com/malbeclabs/doublezero/internal/probescheduler"
)

var (
	hostsFlag     = flag.String("hosts", "localhost", "Comma-separated list of names to monitor, one host per name.")
	tickInterval  = flag.Duration("tick-interval", 10*time.Second, "How often the scheduler re-reads the host set and sweeps the name cache.")
	probeTimeout  = flag.Duration("probe-timeout", 10*time.Second, "How long a ping waits for a reply before timing out.")
	retryInterval = flag.Duration("retry-interval", 1*time.Second, "How long a timed-out address waits before being pinged again.")
	printInterval = flag.Duration("print-interval", 15*time.Second, "How often to print the current snapshot to stdout.")
	metricsAddr   = flag.String("metrics-addr", ":9090", "Address to serve Prometheus metrics on.")
	verbose       = flag.Bool("verbose", false, "Enable debug logging.")

	// Set by LDFLAGS.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	flag.Parse()
	log := newLogger(*verbose)
	log.Info("netmond starting", "version", version, "commit", commit, "date", date)

	if err := run(log); err != nil {
		log.Error("netmond exited with error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	names := strings.Split(*hostsFlag, ",")
	hosts := make([]hostprovider.Host, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		hosts = append(hosts, hostprovider.NewHost([]string{n}, nil))
	}
	if len(hosts) == 0 {
		return fmt.Errorf("netmond: no hosts configured; pass -hosts")
	}
	provider := hostprovider.NewStaticProvider(hosts...)

	cache := hostcache.New(nil)
	cache.Start(ctx)

	pinger, err := icmpcore.NewPinger()
	if err != nil {
		return fmt.Errorf("netmond: opening pinger: %w", err)
	}
	defer pinger.Close()

	reg := prometheus.NewRegistry()
	metrics := probescheduler.NewMetrics(reg)

	sched, err := probescheduler.New(probescheduler.Config{
		Logger:        log,
		Clock:         clockwork.NewRealClock(),
		Provider:      provider,
		Cache:         cache,
		Pinger:        pinger,
		TickInterval:  *tickInterval,
		ProbeTimeout:  *probeTimeout,
		RetryInterval: *retryInterval,
	}, metrics)
	if err != nil {
		return fmt.Errorf("netmond: building scheduler: %w", err)
	}

	go serveMetrics(ctx, log, reg, *metricsAddr)
	go printSnapshots(ctx, log, sched, names)

	return sched.Run(ctx)
}

func serveMetrics(ctx context.Context, log *slog.Logger, reg *prometheus.Registry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server failed", "error", err)
	}
}

func printSnapshots(ctx context.Context, log *slog.Logger, sched *probescheduler.Scheduler, names []string) {
	ticker := time.NewTicker(*printInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range names {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				host := hostprovider.NewHost([]string{name}, nil)
				p, ok := sched.Snapshots().Snapshot(host.ID)
				if !ok {
					continue
				}
				logSnapshot(log, name, p)
			}
		}
	}
}

func logSnapshot(log *slog.Logger, name string, p probescheduler.Pinged) {
	for _, r := range p.Results {
		log.Info("ping result",
			"host", name,
			"target", r.Target,
			"outcome", r.Outcome,
			"rtt", r.RTT,
		)
	}
	for _, e := range p.Errors {
		log.Warn("ping error",
			"host", name,
			"target", targetOrEmpty(e.Target),
			"message", e.Message,
		)
	}
}

func targetOrEmpty(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}))
}

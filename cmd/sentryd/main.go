// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command sentryd runs the detection/enforcement/sync daemon: it tails
// configured log sources, matches attack patterns, filters candidate IPs by
// CIDR policy, enforces kernel packet-filter blocks, and syncs enforced
// blocks with peers through a shared store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentryd/sentryd/internal/cidr"
	"github.com/sentryd/sentryd/internal/config"
	"github.com/sentryd/sentryd/internal/daemon"
	"github.com/sentryd/sentryd/internal/kernel"
	"github.com/sentryd/sentryd/internal/logging"
	"github.com/sentryd/sentryd/internal/safemode"
	"github.com/sentryd/sentryd/internal/store"
)

const (
	exitOK             = 0
	exitStartupError   = 1
	exitConfigInvalid  = 2
	defaultStateDir    = "/var/lib/sentryd"
	defaultMainConfig  = "/etc/sentryd/sentryd.conf"
	defaultOverlayGlob = "/etc/sentryd/conf.d"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sentryd", flag.ContinueOnError)
	configPath := fs.String("config", defaultMainConfig, "path to the main INI config file")
	configDir := fs.String("config-dir", defaultOverlayGlob, "directory of additional *.ini/*.conf overlays")
	stateDir := fs.String("state-dir", defaultStateDir, "directory for crash-loop and cache state")
	dryRun := fs.Bool("dry-run", false, "log intended firewall changes without applying them")
	testConfig := fs.Bool("test-config", false, "validate the config and exit")
	testIP := fs.String("test-ip", "", "classify an address against the loaded never/always filters and exit")
	if err := fs.Parse(args); err != nil {
		return exitStartupError
	}

	configureLogging()
	log := logging.WithComponent("main")

	snap, warnings, err := config.Load(*configPath, *configDir)
	for _, w := range warnings {
		log.Warn("config warning", "detail", w.String())
	}
	if err != nil {
		log.WithError(err).Error("config load failed")
		if *testConfig {
			return exitConfigInvalid
		}
		return exitStartupError
	}
	if *dryRun {
		snap.Firewall.DryRun = true
	}

	if *testConfig {
		fmt.Printf("config OK: %d detector(s), %d compiled pattern(s)\n", len(snap.Detectors), len(snap.CompiledPatterns))
		return exitOK
	}

	if *testIP != "" {
		return runTestIP(snap, *testIP)
	}

	mon := safemode.New(*stateDir, safemode.DefaultConfig())
	if !safemode.ShouldSkipDetection() && mon.ShouldEnterSafeMode() {
		log.Error("too many recent crashes, refusing to start (safe mode)")
		return exitStartupError
	}

	cfgMgr := config.NewManagerWithSnapshot(snap, *configPath, *configDir)
	backend := kernel.NewBackend(snap.Firewall)

	var blockStore store.BlockStore
	if snap.Store.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := store.NewPostgresStore(ctx, snap.Store.DSN)
		cancel()
		if err != nil {
			log.WithError(err).Error("connecting to shared store failed, continuing without peer sync")
		} else {
			blockStore = pg
		}
	}

	sup := daemon.New(cfgMgr, backend, blockStore)

	if snap.MetricsListen != "" {
		startMetricsServer(snap.MetricsListen, sup, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go handleReloadSignal(ctx, sup)

	runErr := sup.Run(ctx)
	_ = mon.RecordExit(0, 0, false)
	if runErr != nil {
		log.WithError(runErr).Error("daemon exited with error")
		return exitStartupError
	}
	return exitOK
}

// runTestIP classifies addr against the loaded config's CIDR filters without
// touching the kernel backend or shared store.
func runTestIP(snap *config.Snapshot, addr string) int {
	if net.ParseIP(addr) == nil {
		fmt.Fprintf(os.Stderr, "not an IP address: %s\n", addr)
		return exitStartupError
	}
	set := cidr.NewSet(append(snap.NeverBlockV4, snap.NeverBlockV6...), append(snap.AlwaysBlockV4, snap.AlwaysBlockV6...))
	verdict := cidr.Classify(addr, set, emptyLedger{})
	switch verdict {
	case cidr.NeverBlock:
		fmt.Printf("%s: never-block (will not be enforced)\n", addr)
	case cidr.AlreadyEnforced:
		fmt.Printf("%s: already enforced\n", addr)
	default:
		fmt.Printf("%s: candidate (eligible for enforcement)\n", addr)
	}
	return exitOK
}

type emptyLedger struct{}

func (emptyLedger) IsEnforced(net.IP) bool { return false }

func handleReloadSignal(ctx context.Context, sup *daemon.Supervisor) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sighup:
			sup.RequestReload()
		}
	}
}

func startMetricsServer(addr string, sup *daemon.Supervisor, log *logging.Logger) {
	if err := sup.Metrics().Register(); err != nil {
		log.WithError(err).Warn("metrics registration failed")
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
}

func configureLogging() {
	level := logging.LevelInfo
	switch strings.ToLower(os.Getenv("SENTRYD_LOG_LEVEL")) {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	asJSON := os.Getenv("SENTRYD_LOG_FORMAT") == "json"
	cfg := logging.Config{Level: level, JSON: asJSON}

	if host := os.Getenv("SENTRYD_SYSLOG_HOST"); host != "" {
		sw, err := logging.NewSyslogWriter(logging.SyslogConfig{
			Enabled: true,
			Host:    host,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "sentryd: syslog forwarder disabled: %v\n", err)
		} else {
			cfg.Output = sw
		}
	}

	logging.SetDefault(logging.New(cfg))
}
